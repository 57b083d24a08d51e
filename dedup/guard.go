// Package dedup suppresses repeated delivery of the same logical action
// within a short window.
package dedup

import (
	"context"
	"sync"
	"time"
)

// DefaultWindow is how long a recorded action key suppresses repeats.
const DefaultWindow = 90 * time.Second

// Guard is a check-and-record capability. Seen reports whether key was
// recorded within the guard's window before now; when it was not, Seen
// records key at now before returning false. The check and the record
// are atomic with respect to other callers.
type Guard interface {
	Seen(ctx context.Context, key string, now time.Time) (bool, error)
}

// Memory is a process-local Guard. Entries are never swept; an entry is
// overwritten the next time its key is looked up after the window passes.
type Memory struct {
	mu      sync.Mutex
	window  time.Duration
	entries map[string]time.Time
}

// compile-time interface check
var _ Guard = (*Memory)(nil)

// NewMemory returns a Memory guard. A non-positive window uses DefaultWindow.
func NewMemory(window time.Duration) *Memory {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Memory{
		window:  window,
		entries: make(map[string]time.Time),
	}
}

// Seen implements Guard. An empty key is never suppressed nor recorded.
func (m *Memory) Seen(_ context.Context, key string, now time.Time) (bool, error) {
	if key == "" {
		return false, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.entries[key]; ok && now.Sub(prev) < m.window {
		return true, nil
	}
	m.entries[key] = now
	return false, nil
}

// Window returns the suppression window.
func (m *Memory) Window() time.Duration {
	return m.window
}

// Len returns the number of recorded keys, stale ones included.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
