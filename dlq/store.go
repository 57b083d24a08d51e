package dlq

import (
	"context"
	"errors"
	"time"

	"github.com/xraph/slackrelay/id"
)

// ErrNotFound is returned when a DLQ entry does not exist.
var ErrNotFound = errors.New("dlq: entry not found")

// ErrAlreadyReplayed is returned when replaying an entry that was already
// delivered by an earlier replay.
var ErrAlreadyReplayed = errors.New("dlq: entry already replayed")

// ErrReplayInProgress is returned when another replay of the same entry
// has not finished yet.
var ErrReplayInProgress = errors.New("dlq: replay already in progress")

// Store defines the persistence contract for the dead letter queue.
// Stores are bounded and may drop the oldest entries.
type Store interface {
	// Push adds a failed forward.
	Push(ctx context.Context, entry *Entry) error

	// ListDLQ returns entries newest first, optionally filtered.
	ListDLQ(ctx context.Context, opts ListOpts) ([]*Entry, error)

	// GetDLQ returns an entry by ID or ErrNotFound.
	GetDLQ(ctx context.Context, dlqID id.ID) (*Entry, error)

	// UpdateDLQ saves a modified entry. It returns ErrNotFound if the
	// entry no longer exists.
	UpdateDLQ(ctx context.Context, entry *Entry) error

	// Purge deletes entries that failed before a threshold.
	Purge(ctx context.Context, before time.Time) (int64, error)

	// CountDLQ returns the total number of entries.
	CountDLQ(ctx context.Context) (int64, error)
}
