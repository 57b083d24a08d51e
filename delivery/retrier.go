package delivery

import (
	"net/http"
	"time"
)

// Decision is the outcome of evaluating one send.
type Decision int

const (
	// Delivered means the send succeeded (2xx).
	Delivered Decision = iota

	// Retry means the send failed transiently and attempts remain.
	Retry

	// Exhausted means the send failed transiently and no attempts remain.
	Exhausted

	// Terminal means the status is final and not worth retrying.
	Terminal
)

// Result holds the outcome of a single send.
type Result struct {
	StatusCode int
	Error      string
	Response   string
	Location   string
	LatencyMs  int

	// Invalid marks a request that could not even be built.
	Invalid bool
}

// Retrier decides what to do after a send.
type Retrier struct {
	maxRetries int
	step       time.Duration
	ceiling    time.Duration
}

// NewRetrier creates a retrier. Backoff grows linearly by step and is
// capped at ceiling.
func NewRetrier(maxRetries int, step, ceiling time.Duration) *Retrier {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Retrier{maxRetries: maxRetries, step: step, ceiling: ceiling}
}

// MaxRetries returns the retry budget.
func (r *Retrier) MaxRetries() int { return r.maxRetries }

// Decide determines what to do after the send of the given attempt
// (numbered from 1).
//
// Decision matrix:
//   - 2xx → Delivered
//   - 429, 5xx, connection error → Retry while attempt <= maxRetries, else Exhausted
//   - anything else (4xx, unfollowed 3xx, 1xx) → Terminal
func (r *Retrier) Decide(res Result, attempt int) Decision {
	code := res.StatusCode

	if code >= 200 && code < 300 {
		return Delivered
	}
	if res.Invalid {
		return Terminal
	}
	if IsTransient(res) {
		if attempt <= r.maxRetries {
			return Retry
		}
		return Exhausted
	}
	return Terminal
}

// Backoff returns the wait after the given failed attempt:
// min(step*attempt, ceiling).
func (r *Retrier) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := r.step * time.Duration(attempt)
	if r.ceiling > 0 && d > r.ceiling {
		return r.ceiling
	}
	return d
}

// IsTransient reports whether a send failed in a way a retry may fix.
func IsTransient(res Result) bool {
	code := res.StatusCode
	if code == 0 {
		return res.Error != ""
	}
	return code == http.StatusTooManyRequests || code >= 500
}

// IsRedirect reports whether code is a redirect the Forwarder follows.
func IsRedirect(code int) bool {
	switch code {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther:
		return true
	}
	return false
}
