package usecase

import (
	"sync"

	"github.com/trihan96/FunPayServer/internal/biz/domain"
)

const maxHistoryPerUser = 20

// HistoryStore keeps a bounded per-user transcript of the conversation.
// Oldest entries are dropped once the cap is reached; callers get copies so
// the stored slices cannot be mutated from outside.
type HistoryStore struct {
	mu      sync.Mutex
	entries map[string][]domain.ChatMessage
}

// NewHistoryStore creates an empty history store
func NewHistoryStore() *HistoryStore {
	return &HistoryStore{entries: make(map[string][]domain.ChatMessage)}
}

// Append records one transcript entry for the user
func (s *HistoryStore) Append(userName string, msg domain.ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := append(s.entries[userName], msg)
	if len(history) > maxHistoryPerUser {
		history = history[len(history)-maxHistoryPerUser:]
	}
	s.entries[userName] = history
}

// Get returns a copy of the user's transcript, oldest first
func (s *HistoryStore) Get(userName string) []domain.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := s.entries[userName]
	result := make([]domain.ChatMessage, len(history))
	copy(result, history)
	return result
}

// Len returns the number of stored entries for the user
func (s *HistoryStore) Len(userName string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries[userName])
}
