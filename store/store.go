// Package store defines the composite Store interface for bridge state.
//
// Each subsystem defines its own store interface, and the aggregate Store
// composes them. State is short-lived by nature: dedup records expire
// with their window and the dead-letter record is bounded.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/xraph/slackrelay/dedup"
	"github.com/xraph/slackrelay/dlq"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store: closed")

// Store is the aggregate persistence interface.
type Store interface {
	dlq.Store

	// Guard returns a dedup guard whose keys live in namespace and
	// expire after window. Calls with the same namespace share state.
	Guard(namespace string, window time.Duration) dedup.Guard

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close releases the backend.
	Close() error
}
