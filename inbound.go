package slackrelay

import (
	"net/http"
	"time"

	"github.com/xraph/slackrelay/id"
	"github.com/xraph/slackrelay/payload"
	"github.com/xraph/slackrelay/signature"
)

// InboundRequest is the immutable capture of one relay request.
type InboundRequest struct {
	ID         id.ID
	Body       []byte
	Signature  string
	Timestamp  string
	ReceivedAt time.Time
}

// NewInboundRequest captures the authenticity headers and body of r.
func NewInboundRequest(h http.Header, body []byte, receivedAt time.Time) InboundRequest {
	return InboundRequest{
		ID:         id.NewRequestID(),
		Body:       body,
		Signature:  h.Get(signature.HeaderSignature),
		Timestamp:  h.Get(signature.HeaderTimestamp),
		ReceivedAt: receivedAt,
	}
}

// Reasons a verified, unsuppressed request was not forwarded.
const (
	SkipNoForwardURL = "no_forward_url"
	SkipShuttingDown = "shutting_down"
)

// Disposition reports what Dispatch did with a verified request.
type Disposition struct {
	RequestID id.ID        `json:"request_id"`
	Kind      payload.Kind `json:"kind"`
	Shape     string       `json:"shape"`
	ActionKey string       `json:"action_key,omitempty"`

	// Suppressed is set when the action key was seen within the window.
	Suppressed bool `json:"suppressed"`

	// ForwardID is set when a forward was started.
	ForwardID id.ID `json:"forward_id"`

	// Skipped names why no forward was started, if none was.
	Skipped string `json:"skipped,omitempty"`
}
