package usecase

import (
	"math"
	"sync"
	"time"
)

// PausedUser is one entry of the active pause list
type PausedUser struct {
	UserName         string
	RemainingMinutes int
}

// PauseStore holds per-user auto-response suppression flags with a TTL.
// Expired entries are purged lazily on read.
type PauseStore struct {
	mu      sync.Mutex
	expires map[string]time.Time
	now     func() time.Time
}

// NewPauseStore creates an empty pause store
func NewPauseStore() *PauseStore {
	return &PauseStore{
		expires: make(map[string]time.Time),
		now:     time.Now,
	}
}

// Pause suppresses auto-responses for the user for the given number of
// minutes. Repeated calls overwrite the expiry. Minutes <= 0 is accepted and
// expires on the next check.
func (s *PauseStore) Pause(userName string, minutes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expires[userName] = s.now().Add(time.Duration(minutes) * time.Minute)
}

// Unpause removes the suppression and reports whether the user was paused
func (s *PauseStore) Unpause(userName string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, wasPaused := s.expires[userName]
	delete(s.expires, userName)
	return wasPaused
}

// IsPaused reports whether the user is currently paused. An entry whose
// expiry has passed is treated as absent and purged.
func (s *PauseStore) IsPaused(userName string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiry, ok := s.expires[userName]
	if !ok {
		return false
	}
	// An entry is live strictly before its expiry instant
	if !s.now().Before(expiry) {
		delete(s.expires, userName)
		return false
	}
	return true
}

// RemainingMinutes returns the remaining pause time, ceiling-rounded, or 0
func (s *PauseStore) RemainingMinutes(userName string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiry, ok := s.expires[userName]
	if !ok {
		return 0
	}
	remaining := expiry.Sub(s.now())
	if remaining < 0 {
		return 0
	}
	return int(math.Ceil(remaining.Minutes()))
}

// ListActive returns all paused users with their remaining minutes
func (s *PauseStore) ListActive() []PausedUser {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []PausedUser
	for userName, expiry := range s.expires {
		remaining := expiry.Sub(s.now())
		if remaining < 0 {
			remaining = 0
		}
		result = append(result, PausedUser{
			UserName:         userName,
			RemainingMinutes: int(math.Ceil(remaining.Minutes())),
		})
	}
	return result
}
