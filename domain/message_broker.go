package domain

import (
	"context"
	"time"
)

// MessageBroker decouples transcript producers (chat sessions) from
// consumers (the websocket surface).
type MessageBroker interface {
	// Publish sends a message to a topic with a routing key.
	Publish(ctx context.Context, topic string, routingKey string, message []byte) error

	// Subscribe listens for messages on a topic and routing key.
	Subscribe(ctx context.Context, topic string, routingKey string) (<-chan Message, error)

	// Unsubscribe releases a topic and routing key once its subscriber is
	// gone. Subscribers that never unsubscribe leak topic channels.
	Unsubscribe(topic string, routingKey string) error

	// Close closes the broker.
	Close() error
}

// Message is one payload received from the broker.
type Message struct {
	Topic      string
	RoutingKey string
	Payload    []byte
	Timestamp  time.Time
}

// TranscriptEventType enumerates what a session tells its render surface.
type TranscriptEventType string

const (
	// EventTurn announces a new transcript entry (user turn, greeting, or
	// the pending placeholder).
	EventTurn TranscriptEventType = "turn"
	// EventResolve replaces the content of the pending entry exactly once.
	EventResolve TranscriptEventType = "resolve"
	// EventStatus updates the one-line status surface.
	EventStatus TranscriptEventType = "status"
	// EventClear wipes the transcript.
	EventClear TranscriptEventType = "clear"
	// EventAudio carries synthesized speech for a spoken reply.
	EventAudio TranscriptEventType = "audio"
	// EventDraft inserts recognized speech into the input surface.
	EventDraft TranscriptEventType = "draft"
)

// TranscriptEvent is the wire form of a session-to-surface notification.
type TranscriptEvent struct {
	Type      TranscriptEventType `json:"type"`
	SessionID string              `json:"session_id"`
	EntryID   int                 `json:"entry_id,omitempty"`
	Role      Role                `json:"role,omitempty"`
	Text      string              `json:"text,omitempty"`
	Audio     []byte              `json:"audio,omitempty"`
	Timestamp time.Time           `json:"timestamp"`
}
