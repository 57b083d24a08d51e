package delivery

import (
	"errors"
	"net/http"

	"github.com/xraph/slackrelay/id"
)

// ErrNoTarget is reported when a forward has no downstream URL.
var ErrNoTarget = errors.New("delivery: no target url")

// FormContentType is the content type used for relayed Slack bodies.
const FormContentType = "application/x-www-form-urlencoded"

// Status is the terminal state of a forward.
type Status string

const (
	// StatusDelivered means the downstream answered 2xx.
	StatusDelivered Status = "delivered"

	// StatusExhausted means every retry hit a transient failure.
	StatusExhausted Status = "exhausted"

	// StatusTerminal means the downstream answered with a non-retryable status.
	StatusTerminal Status = "terminal"

	// StatusAborted means the forward never ran to completion (no target,
	// bad URL, or the context ended).
	StatusAborted Status = "aborted"
)

// Request is one body to relay downstream.
type Request struct {
	// ID tags every log line and span of the forward. Generated when nil.
	ID id.ID

	// Type names the forward for logs (e.g. "slackAction", "cronPost").
	Type string

	// URL is the full downstream URL, query included.
	URL string

	// Body is sent verbatim on every send, redirects included.
	Body []byte

	// ContentType defaults to FormContentType.
	ContentType string

	// Header holds extra request headers.
	Header http.Header
}

// Attempt is the mutable state of one forward. It never outlives Deliver.
type Attempt struct {
	URL          string
	Number       int
	Sends        int
	LastStatus   int
	LastLocation string
}

// Outcome is the result of a forward.
type Outcome struct {
	ID         id.ID  `json:"id"`
	Status     Status `json:"status"`
	StatusCode int    `json:"status_code,omitempty"`
	Attempts   int    `json:"attempts"`
	Sends      int    `json:"sends"`
	URL        string `json:"-"`
	Error      string `json:"error,omitempty"`
	Response   string `json:"response,omitempty"`
	LatencyMs  int    `json:"latency_ms"`
}

// Failed reports whether the forward did not reach a 2xx.
func (o Outcome) Failed() bool {
	return o.Status != StatusDelivered
}
