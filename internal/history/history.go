// Package history holds the ordered conversation log exchanged with the
// model. Turns are only ever appended in user/model pairs and removed in
// pairs, which keeps undo well-defined; the log is therefore always of even
// length after a successful exchange.
package history

import (
	"genpanel/internal/domain"
)

// History is an append-only (truncatable-by-pairs) sequence of turns. It has
// no internal locking: the session controller serializes all mutation by
// allowing at most one active worker per session.
type History struct {
	turns []domain.Turn
}

// New returns an empty history.
func New() *History {
	return &History{}
}

// Append records a completed exchange atomically.
func (h *History) Append(user, model domain.Turn) {
	h.turns = append(h.turns, user, model)
}

// UndoLastExchange removes the last user/model pair. It reports
// domain.ErrEmptyHistory when fewer than two turns exist; the history is left
// untouched in that case.
func (h *History) UndoLastExchange() error {
	if len(h.turns) < 2 {
		return domain.ErrEmptyHistory
	}
	h.turns = h.turns[:len(h.turns)-2]
	return nil
}

// Reset clears the history.
func (h *History) Reset() {
	h.turns = nil
}

// Len returns the number of recorded turns.
func (h *History) Len() int {
	return len(h.turns)
}

// AsRequestContext returns the ordered turn sequence for inclusion in the
// next model call. The returned slice is a copy; mutating it does not affect
// the history.
func (h *History) AsRequestContext() []domain.Turn {
	out := make([]domain.Turn, len(h.turns))
	copy(out, h.turns)
	return out
}
