package domain

import "time"

// Turn is one message in a conversation, attributed to the user or the
// assistant. Immutable once created; the session controller replaces the
// content of a pending assistant turn exactly once when it resolves.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

func NewTurn(role Role, content string) Turn {
	return Turn{Role: role, Content: content, Timestamp: time.Now()}
}

// WellFormed reports whether the turn may be stored in history or forwarded
// upstream. Only user and assistant turns with content qualify; transient
// status and system messages never enter history.
func (t Turn) WellFormed() bool {
	if t.Content == "" {
		return false
	}
	return t.Role == UserRole || t.Role == AssistantRole
}
