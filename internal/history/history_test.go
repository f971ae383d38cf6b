package history

import (
	"errors"
	"fmt"
	"testing"

	"genpanel/internal/domain"
)

func TestAppendThenUndoReturnsToEmpty(t *testing.T) {
	for _, n := range []int{1, 3, 7} {
		h := New()
		for i := 0; i < n; i++ {
			h.Append(
				domain.TextTurn(domain.RoleUser, fmt.Sprintf("prompt %d", i)),
				domain.TextTurn(domain.RoleModel, fmt.Sprintf("reply %d", i)),
			)
		}
		if h.Len() != 2*n {
			t.Fatalf("after %d exchanges Len = %d, want %d", n, h.Len(), 2*n)
		}
		for i := 0; i < n; i++ {
			if err := h.UndoLastExchange(); err != nil {
				t.Fatalf("undo %d returned error: %v", i, err)
			}
		}
		if h.Len() != 0 {
			t.Fatalf("after %d undos Len = %d, want 0", n, h.Len())
		}
	}
}

func TestUndoOnEmptyFails(t *testing.T) {
	h := New()
	if err := h.UndoLastExchange(); !errors.Is(err, domain.ErrEmptyHistory) {
		t.Fatalf("expected ErrEmptyHistory, got %v", err)
	}
}

func TestUndoRemovesExactlyLastPair(t *testing.T) {
	h := New()
	h.Append(domain.TextTurn(domain.RoleUser, "first"), domain.TextTurn(domain.RoleModel, "one"))
	h.Append(domain.TextTurn(domain.RoleUser, "second"), domain.TextTurn(domain.RoleModel, "two"))
	if err := h.UndoLastExchange(); err != nil {
		t.Fatalf("undo error: %v", err)
	}
	turns := h.AsRequestContext()
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
	if turns[0].Text() != "first" || turns[1].Text() != "one" {
		t.Fatalf("unexpected surviving turns: %q / %q", turns[0].Text(), turns[1].Text())
	}
}

func TestResetClears(t *testing.T) {
	h := New()
	h.Append(domain.TextTurn(domain.RoleUser, "a"), domain.TextTurn(domain.RoleModel, "b"))
	h.Reset()
	if h.Len() != 0 {
		t.Fatalf("Len after reset = %d, want 0", h.Len())
	}
}

func TestAsRequestContextIsACopy(t *testing.T) {
	h := New()
	h.Append(domain.TextTurn(domain.RoleUser, "a"), domain.TextTurn(domain.RoleModel, "b"))
	ctx := h.AsRequestContext()
	ctx[0] = domain.TextTurn(domain.RoleUser, "mutated")
	if h.AsRequestContext()[0].Text() != "a" {
		t.Fatal("mutating the returned slice must not affect the history")
	}
}
