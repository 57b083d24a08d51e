package dlq

import (
	"time"

	"github.com/xraph/slackrelay/delivery"
	"github.com/xraph/slackrelay/id"
	"github.com/xraph/slackrelay/internal/entity"
)

// Entry records a forward that ended without a 2xx.
type Entry struct {
	entity.Entity

	// ID is the unique TypeID for this DLQ entry.
	ID id.ID `json:"id"`

	// ForwardID references the failed forward in the logs.
	ForwardID id.ID `json:"forward_id"`

	// Type is the forward type ("slackAction", "cronPost").
	Type string `json:"type"`

	// ActionKey is the dedup key of the relayed action, if any.
	ActionKey string `json:"action_key,omitempty"`

	// Target is the last URL tried, with secrets masked.
	Target string `json:"target"`

	// Body is the raw body that failed to deliver.
	Body string `json:"body"`

	// ContentType is the content type the body was sent with.
	ContentType string `json:"content_type,omitempty"`

	// Status is the forward's final status.
	Status delivery.Status `json:"status"`

	// Error is the error message from the final attempt.
	Error string `json:"error"`

	// AttemptCount is the number of attempts of the last forward.
	AttemptCount int `json:"attempt_count"`

	// LastStatusCode is the HTTP status code from the final send.
	LastStatusCode int `json:"last_status_code,omitempty"`

	// ReplayCount is how many times an operator replayed the entry.
	ReplayCount int `json:"replay_count"`

	// ReplayedAt is set once a replay is delivered.
	ReplayedAt *time.Time `json:"replayed_at,omitempty"`

	// FailedAt is when the forward failed.
	FailedAt time.Time `json:"failed_at"`
}

// ListOpts configures filtering and pagination for DLQ listing.
type ListOpts struct {
	Offset int
	Limit  int
	Type   string
	From   *time.Time
	To     *time.Time
}

// Match reports whether e passes the type and time filters of opts.
func (opts ListOpts) Match(e *Entry) bool {
	if opts.Type != "" && e.Type != opts.Type {
		return false
	}
	if opts.From != nil && e.FailedAt.Before(*opts.From) {
		return false
	}
	if opts.To != nil && e.FailedAt.After(*opts.To) {
		return false
	}
	return true
}
