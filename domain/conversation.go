package domain

import "context"

// ConversationStore persists conversation transcripts across sessions.
type ConversationStore interface {
	// Append adds a completed turn to the conversation's transcript.
	Append(ctx context.Context, conversationID string, turn Turn) error

	// Load retrieves the transcript for a conversation, oldest turn first.
	// A conversation that was never written loads as an empty transcript.
	Load(ctx context.Context, conversationID string) ([]Turn, error)

	// Clear removes the conversation's transcript.
	Clear(ctx context.Context, conversationID string) error

	// TurnCount returns the number of stored turns.
	TurnCount(ctx context.Context, conversationID string) (int, error)
}
