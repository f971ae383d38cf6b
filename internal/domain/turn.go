package domain

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Part is one content unit inside a turn: text, an inline PNG payload, or both
// empty (which callers should treat as absent). Image payloads are kept as
// encoded bytes so the history can be replayed into provider requests without
// re-encoding on every send.
type Part struct {
	Text string
	PNG  []byte
}

// Turn is one role-tagged message unit exchanged with the model.
type Turn struct {
	Role  Role
	Parts []Part
}

// TextTurn builds a single-part text turn for the given role.
func TextTurn(role Role, text string) Turn {
	return Turn{Role: role, Parts: []Part{{Text: text}}}
}

// UserTurn builds a user turn carrying optional context images followed by the
// prompt text, mirroring the order the provider expects reference images in.
func UserTurn(text string, pngs [][]byte) Turn {
	parts := make([]Part, 0, len(pngs)+1)
	for _, png := range pngs {
		if len(png) == 0 {
			continue
		}
		parts = append(parts, Part{PNG: png})
	}
	if text != "" {
		parts = append(parts, Part{Text: text})
	}
	return Turn{Role: RoleUser, Parts: parts}
}

// Text concatenates the text content of all parts.
func (t Turn) Text() string {
	var out string
	for _, p := range t.Parts {
		out += p.Text
	}
	return out
}
