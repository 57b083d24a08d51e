package slackrelay

import (
	"errors"

	"github.com/xraph/slackrelay/dlq"
	"github.com/xraph/slackrelay/store"
)

// Sentinel errors returned by Bridge operations.
var (
	// ErrNoSigningSecret is returned when a Bridge is created without a
	// Slack signing secret. Requests could never verify.
	ErrNoSigningSecret = errors.New("slackrelay: signing secret is required")

	// ErrNoForwardURL is returned when a forward is requested but no
	// downstream URL is configured.
	ErrNoForwardURL = errors.New("slackrelay: forward url is not configured")

	// ErrInvalidConfig wraps configuration validation failures.
	ErrInvalidConfig = errors.New("slackrelay: invalid config")

	// ErrDLQDisabled is returned by dead-letter operations when the
	// dead-letter record is turned off.
	ErrDLQDisabled = errors.New("slackrelay: dead-letter record is disabled")

	// ErrStoreClosed is returned when a store operation is attempted after the store is closed.
	ErrStoreClosed = store.ErrClosed

	// ErrDLQNotFound is returned when a DLQ entry cannot be found.
	ErrDLQNotFound = dlq.ErrNotFound
)
