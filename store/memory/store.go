// Package memory provides the in-process Store. It is the default backend
// and the one used by tests; everything is lost on restart.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xraph/slackrelay/dedup"
	"github.com/xraph/slackrelay/dlq"
	"github.com/xraph/slackrelay/id"
	relaystore "github.com/xraph/slackrelay/store"
)

// compile-time interface check.
var _ relaystore.Store = (*Store)(nil)

// DefaultMaxEntries bounds the dead-letter record.
const DefaultMaxEntries = 1000

// Store is an in-memory implementation of store.Store.
type Store struct {
	mu sync.RWMutex

	maxEntries int
	dlqEntries map[string]*dlq.Entry // keyed by ID string
	guards     map[string]*dedup.Memory

	closed bool
}

// Option configures a Store.
type Option func(*Store)

// WithMaxEntries bounds the dead-letter record. Non-positive means
// DefaultMaxEntries.
func WithMaxEntries(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxEntries = n
		}
	}
}

// New creates a new in-memory store.
func New(opts ...Option) *Store {
	s := &Store{
		maxEntries: DefaultMaxEntries,
		dlqEntries: make(map[string]*dlq.Entry),
		guards:     make(map[string]*dedup.Memory),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Ping reports whether the store is still open.
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return relaystore.ErrClosed
	}
	return nil
}

// Close marks the store as closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// ──────────────────────────────────────────────────
// Dedup
// ──────────────────────────────────────────────────

// Guard returns the memory guard for namespace, creating it with window
// on first use.
func (s *Store) Guard(namespace string, window time.Duration) dedup.Guard {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.guards[namespace]
	if !ok {
		g = dedup.NewMemory(window)
		s.guards[namespace] = g
	}
	return g
}

// ──────────────────────────────────────────────────
// dlq.Store
// ──────────────────────────────────────────────────

// Push adds an entry, dropping the oldest ones beyond the bound.
func (s *Store) Push(_ context.Context, entry *dlq.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return relaystore.ErrClosed
	}
	s.dlqEntries[entry.ID.String()] = copyEntry(entry)
	s.trimLocked()
	return nil
}

// ListDLQ returns DLQ entries newest first, optionally filtered.
func (s *Store) ListDLQ(_ context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*dlq.Entry, 0, len(s.dlqEntries))
	for _, e := range s.dlqEntries {
		if !opts.Match(e) {
			continue
		}
		result = append(result, copyEntry(e))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].FailedAt.After(result[j].FailedAt)
	})

	return applyPagination(result, opts.Offset, opts.Limit), nil
}

// GetDLQ returns a DLQ entry by ID.
func (s *Store) GetDLQ(_ context.Context, dlqID id.ID) (*dlq.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.dlqEntries[dlqID.String()]
	if !ok {
		return nil, dlq.ErrNotFound
	}
	return copyEntry(e), nil
}

// UpdateDLQ replaces a stored entry.
func (s *Store) UpdateDLQ(_ context.Context, entry *dlq.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := entry.ID.String()
	if _, ok := s.dlqEntries[key]; !ok {
		return dlq.ErrNotFound
	}
	s.dlqEntries[key] = copyEntry(entry)
	return nil
}

// Purge deletes DLQ entries that failed before a threshold.
func (s *Store) Purge(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for k, e := range s.dlqEntries {
		if e.FailedAt.Before(before) {
			delete(s.dlqEntries, k)
			count++
		}
	}
	return count, nil
}

// CountDLQ returns the total number of DLQ entries.
func (s *Store) CountDLQ(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return int64(len(s.dlqEntries)), nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

// trimLocked drops the oldest entries until the bound holds.
func (s *Store) trimLocked() {
	for len(s.dlqEntries) > s.maxEntries {
		var oldestKey string
		var oldest time.Time
		for k, e := range s.dlqEntries {
			if oldestKey == "" || e.FailedAt.Before(oldest) {
				oldestKey, oldest = k, e.FailedAt
			}
		}
		delete(s.dlqEntries, oldestKey)
	}
}

func copyEntry(e *dlq.Entry) *dlq.Entry {
	cp := *e
	if e.ReplayedAt != nil {
		t := *e.ReplayedAt
		cp.ReplayedAt = &t
	}
	return &cp
}

func applyPagination[T any](items []*T, offset, limit int) []*T {
	if offset > 0 && offset < len(items) {
		items = items[offset:]
	} else if offset >= len(items) {
		return nil
	}

	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}

	return items
}
