package state

import (
	"sync"
	"time"
)

type entry[T any] struct {
	value   T
	touched time.Time
}

// Memory is a concurrency-safe map of user sessions with idle eviction.
type Memory[T any] struct {
	mu       sync.RWMutex
	sessions map[int64]entry[T]
	now      func() time.Time
}

// NewMemory constructs an empty store. A nil clock falls back to time.Now.
func NewMemory[T any](now func() time.Time) *Memory[T] {
	if now == nil {
		now = time.Now
	}
	return &Memory[T]{
		sessions: make(map[int64]entry[T]),
		now:      now,
	}
}

// Get returns the session for a user if one exists.
func (m *Memory[T]) Get(userID int64) (T, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.sessions[userID]
	return e.value, ok
}

// Set stores the session for a user, replacing any previous one.
func (m *Memory[T]) Set(userID int64, value T) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[userID] = entry[T]{value: value, touched: m.now()}
}

// Clear removes the session for a user.
func (m *Memory[T]) Clear(userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
}

// InProgress reports whether the user currently has a session.
func (m *Memory[T]) InProgress(userID int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.sessions[userID]
	return ok
}

// Len returns the number of live sessions.
func (m *Memory[T]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Evict drops sessions untouched for longer than idle and returns how many were removed.
func (m *Memory[T]) Evict(idle time.Duration) int {
	if idle <= 0 {
		return 0
	}
	cutoff := m.now().Add(-idle)
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, e := range m.sessions {
		if e.touched.Before(cutoff) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}
