package domain

import (
	"context"
	"time"
)

// CancelTopic carries cancellation notices from the HTTP surface to the
// websocket session holding the in-flight generation.
const CancelTopic = "chat.cancel"

// MessageBroker defines the interface for message broker operations
type MessageBroker interface {
	// Publish sends a message to a specific topic/channel with a routing key
	Publish(ctx context.Context, topic string, routingKey string, message []byte) error

	// Subscribe listens for messages on a specific topic/channel and routing key
	Subscribe(ctx context.Context, topic string, routingKey string) (<-chan Message, error)

	// Close closes the message broker connection
	Close() error
}

// Message represents a message received from the broker
type Message struct {
	Topic      string
	RoutingKey string
	Payload    []byte
	Timestamp  time.Time
}

// CancelNotice asks whichever session is generating for the given
// conversation to abort at its next fragment boundary.
type CancelNotice struct {
	ConversationID string    `json:"conversation_id"`
	UserID         int       `json:"user_id"`
	RequestedAt    time.Time `json:"requested_at"`
}
