package domain

import "context"

// Completer abstracts the upstream chat-completion provider.
type Completer interface {
	// Complete sends the composed messages upstream and returns the reply
	// text. Providers substitute EmptyReplyFallback when the upstream
	// succeeds but yields no usable text, so a nil error never comes with
	// an empty reply.
	Complete(ctx context.Context, messages []ChatMessage) (string, error)
}

type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type Role string

const (
	UserRole      Role = "user"
	AssistantRole Role = "assistant"
	SystemRole    Role = "system"
)

// EmptyReplyFallback stands in for an upstream reply that came back empty.
// It is a reply, not an error.
const EmptyReplyFallback = "I'm not sure how to respond just now. Let's try another way to ask that."
