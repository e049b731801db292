package llm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/norachat/agentic/domain"
)

// MockTurn represents a single scripted response from the mock generator.
type MockTurn struct {
	Text       string        // text to emit, chunked for realistic streaming
	Chunks     []string      // explicit fragments; overrides Text when set
	Delay      time.Duration // optional delay before the first fragment
	ChunkDelay time.Duration // optional delay before each fragment
	Err        error         // return this error instead of responding
}

// MockGenerator is a configurable backend for tests. It returns scripted
// responses and records every request for verification.
type MockGenerator struct {
	name      string
	turns     []MockTurn
	turnIndex int
	Requests  []domain.GenerationRequest
	mu        sync.Mutex
}

func NewMockGenerator(name string) *MockGenerator {
	return &MockGenerator{name: name}
}

func (m *MockGenerator) Name() string {
	return m.name
}

// AddTurn adds a scripted turn and returns the generator for chaining.
func (m *MockGenerator) AddTurn(t MockTurn) *MockGenerator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, t)
	return m
}

// AddTextResponse adds a simple text response.
func (m *MockGenerator) AddTextResponse(text string) *MockGenerator {
	return m.AddTurn(MockTurn{Text: text})
}

// AddError adds a turn that fails with the given error.
func (m *MockGenerator) AddError(err error) *MockGenerator {
	return m.AddTurn(MockTurn{Err: err})
}

// Reset clears recorded requests and rewinds the script.
func (m *MockGenerator) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turnIndex = 0
	m.Requests = nil
}

func (m *MockGenerator) Stream(ctx context.Context, req domain.GenerationRequest) (domain.Stream, error) {
	m.mu.Lock()
	m.Requests = append(m.Requests, req)

	if m.turnIndex >= len(m.turns) {
		m.mu.Unlock()
		return nil, fmt.Errorf("mock generator: no more turns configured (expected turn %d, have %d)", m.turnIndex, len(m.turns))
	}

	turn := m.turns[m.turnIndex]
	m.turnIndex++
	m.mu.Unlock()

	return newEventStream(ctx, func(ctx context.Context, events chan<- domain.Event) error {
		if turn.Delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(turn.Delay):
			}
		}

		if turn.Err != nil {
			return turn.Err
		}

		chunks := turn.Chunks
		if chunks == nil {
			chunks = chunkText(turn.Text, 10)
		}
		for _, chunk := range chunks {
			if turn.ChunkDelay > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(turn.ChunkDelay):
				}
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case events <- domain.Event{Type: domain.EventTextDelta, Text: chunk}:
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case events <- domain.Event{Type: domain.EventDone}:
		}
		return nil
	}), nil
}

// chunkText splits text into chunks of approximately the given size,
// breaking at word boundaries when possible.
func chunkText(text string, chunkSize int) []string {
	if len(text) == 0 {
		return nil
	}
	if len(text) <= chunkSize {
		return []string{text}
	}

	var chunks []string
	for len(text) > 0 {
		if len(text) <= chunkSize {
			chunks = append(chunks, text)
			break
		}

		breakPoint := chunkSize
		for i := chunkSize; i > chunkSize/2; i-- {
			if text[i] == ' ' {
				breakPoint = i + 1 // include the space in the current chunk
				break
			}
		}

		chunks = append(chunks, text[:breakPoint])
		text = text[breakPoint:]
	}
	return chunks
}
