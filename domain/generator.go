package domain

import "context"

// Generator abstracts a streaming text generation backend.
type Generator interface {
	// Name identifies the backend in logs.
	Name() string
	// Stream starts a generation and returns a lazy sequence of events.
	Stream(ctx context.Context, req GenerationRequest) (Stream, error)
}

// Stream is a lazy, cancellable sequence of generation events.
// Recv returns io.EOF once the stream is exhausted. Close releases the
// underlying producer; it is safe to call more than once.
type Stream interface {
	Recv() (Event, error)
	Close() error
}

type EventType int

const (
	EventTextDelta EventType = iota
	EventError
	EventDone
)

// Event is one item of a generation stream. Text carries the incremental
// fragment for EventTextDelta; Err carries the failure for EventError.
type Event struct {
	Type EventType
	Text string
	Err  error
}

type Role string

const (
	UserRole      Role = "user"
	AssistantRole Role = "assistant"
	SystemRole    Role = "system"
)

type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Turn pairs one user message with the assistant's response to it.
type Turn struct {
	User      string `json:"user"`
	Assistant string `json:"assistant"`
}

// GenerationConfig holds the sampling parameters of a single request.
// Immutable once the request has been dispatched.
type GenerationConfig struct {
	SystemMessage string  `json:"system_message"`
	MaxTokens     int     `json:"max_tokens"`
	Temperature   float64 `json:"temperature"`
	TopP          float64 `json:"top_p"`
	UseLocalModel bool    `json:"use_local_model"`
}

// GenerationRequest is what a backend receives: the role-tagged message
// list plus sampling parameters.
type GenerationRequest struct {
	Messages    []ChatMessage
	MaxTokens   int
	Temperature float64
	TopP        float64
}

// BuildMessages builds the role-tagged message list for a new turn: one
// system entry, then for each prior turn a user and an assistant entry,
// then the new user message. Empty fields of prior turns are omitted
// rather than sent as empty strings.
func BuildMessages(systemMessage string, history []Turn, message string) []ChatMessage {
	messages := make([]ChatMessage, 0, len(history)*2+2)
	messages = append(messages, ChatMessage{Role: SystemRole, Content: systemMessage})
	for _, turn := range history {
		if turn.User != "" {
			messages = append(messages, ChatMessage{Role: UserRole, Content: turn.User})
		}
		if turn.Assistant != "" {
			messages = append(messages, ChatMessage{Role: AssistantRole, Content: turn.Assistant})
		}
	}
	messages = append(messages, ChatMessage{Role: UserRole, Content: message})
	return messages
}
