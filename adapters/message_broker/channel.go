package message_broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/luminanexus/chavruta/domain"
	"github.com/luminanexus/chavruta/utils/log"
	"go.uber.org/zap"
)

// ChannelMessageBroker implements domain.MessageBroker on Go channels. One
// process, no external broker: sessions publish transcript events keyed by
// session id, the websocket surface subscribes per connection and
// unsubscribes at teardown. Routing keys are per-session, so reclaiming a
// key on Unsubscribe is what keeps the topic map bounded.
type ChannelMessageBroker struct {
	topics map[string]chan domain.Message
	mu     sync.Mutex
	closed bool
}

func NewChannelMessageBroker() *ChannelMessageBroker {
	return &ChannelMessageBroker{
		topics: make(map[string]chan domain.Message),
	}
}

func makeKey(topic, routingKey string) string {
	return topic + ":" + routingKey
}

const topicBuffer = 100

// Publish sends a message to a topic and routing key. A full topic channel
// drops the message rather than blocking the session. The send happens
// under the same lock Unsubscribe closes under, so it can never hit a
// closed channel.
func (b *ChannelMessageBroker) Publish(ctx context.Context, topic string, routingKey string, message []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("message broker is closed")
	}

	key := makeKey(topic, routingKey)
	channel, exists := b.topics[key]
	if !exists {
		channel = make(chan domain.Message, topicBuffer)
		b.topics[key] = channel
	}

	msg := domain.Message{
		Topic:      topic,
		RoutingKey: routingKey,
		Payload:    message,
		Timestamp:  time.Now(),
	}

	select {
	case channel <- msg:
		return nil
	default:
		return fmt.Errorf("topic channel is full: %s:%s", topic, routingKey)
	}
}

// Subscribe listens for messages on a topic and routing key.
func (b *ChannelMessageBroker) Subscribe(ctx context.Context, topic string, routingKey string) (<-chan domain.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("message broker is closed")
	}

	key := makeKey(topic, routingKey)
	channel, exists := b.topics[key]
	if !exists {
		channel = make(chan domain.Message, topicBuffer)
		b.topics[key] = channel
	}

	log.WithCtx(ctx).Debug("subscribed to topic",
		zap.String("topic", topic),
		zap.String("routingKey", routingKey))
	return channel, nil
}

// Unsubscribe drops a topic channel and closes it so any forwarder draining
// it exits. Idempotent; unsubscribing a key that was never subscribed is a
// no-op.
func (b *ChannelMessageBroker) Unsubscribe(topic string, routingKey string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := makeKey(topic, routingKey)
	if channel, exists := b.topics[key]; exists {
		delete(b.topics, key)
		close(channel)
	}
	return nil
}

// TopicCount returns the number of active topic channels.
func (b *ChannelMessageBroker) TopicCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics)
}

// Close closes the broker and all topic channels.
func (b *ChannelMessageBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	for _, channel := range b.topics {
		close(channel)
	}
	b.topics = make(map[string]chan domain.Message)
	return nil
}
