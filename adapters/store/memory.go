package store

import (
	"context"
	"sync"

	"github.com/norachat/agentic/domain"
)

// MemoryStore is the in-process ConversationStore used for tests and for
// deployments without Redis. Transcripts do not survive a restart.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string][]domain.Turn
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string][]domain.Turn),
	}
}

func (s *MemoryStore) Append(ctx context.Context, conversationID string, turn domain.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[conversationID] = append(s.conversations[conversationID], turn)
	return nil
}

func (s *MemoryStore) Load(ctx context.Context, conversationID string) ([]domain.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := s.conversations[conversationID]
	turns := make([]domain.Turn, len(stored))
	copy(turns, stored)
	return turns, nil
}

func (s *MemoryStore) Clear(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conversations, conversationID)
	return nil
}

func (s *MemoryStore) TurnCount(ctx context.Context, conversationID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conversations[conversationID]), nil
}
