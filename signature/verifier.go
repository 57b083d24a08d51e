package signature

import (
	"crypto/hmac"
	"errors"
	"strconv"
	"time"
)

// DefaultTolerance is the maximum age of a request timestamp.
const DefaultTolerance = 5 * time.Minute

// Verification failures. Result.Err maps a Reason onto one of these.
var (
	ErrMissingHeader     = errors.New("signature: signature or timestamp header is missing")
	ErrMalformedHeader   = errors.New("signature: timestamp is not a valid unix time")
	ErrStaleTimestamp    = errors.New("signature: timestamp outside allowed window")
	ErrSignatureMismatch = errors.New("signature: signature mismatch")
)

// Reason is a short diagnostic code for a verification outcome.
type Reason string

const (
	ReasonOK                Reason = "ok"
	ReasonMissingHeader     Reason = "missing_header"
	ReasonMalformedHeader   Reason = "malformed_header"
	ReasonStaleTimestamp    Reason = "stale_timestamp"
	ReasonSignatureMismatch Reason = "signature_mismatch"
)

// Result is the outcome of verifying one request.
type Result struct {
	OK     bool
	Reason Reason
}

// Err returns the sentinel error for a failed result, or nil.
func (r Result) Err() error {
	switch r.Reason {
	case ReasonOK:
		return nil
	case ReasonMissingHeader:
		return ErrMissingHeader
	case ReasonMalformedHeader:
		return ErrMalformedHeader
	case ReasonStaleTimestamp:
		return ErrStaleTimestamp
	default:
		return ErrSignatureMismatch
	}
}

func fail(reason Reason) Result { return Result{Reason: reason} }

// Verifier checks Slack request signatures against one signing secret.
type Verifier struct {
	secret    string
	tolerance time.Duration
	now       func() time.Time
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithTolerance overrides the accepted timestamp age.
func WithTolerance(d time.Duration) VerifierOption {
	return func(v *Verifier) {
		if d > 0 {
			v.tolerance = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) {
		if now != nil {
			v.now = now
		}
	}
}

// NewVerifier returns a Verifier for the given signing secret.
func NewVerifier(secret string, opts ...VerifierOption) *Verifier {
	v := &Verifier{
		secret:    secret,
		tolerance: DefaultTolerance,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify checks the signature and timestamp headers against body.
func (v *Verifier) Verify(signatureHeader, timestampHeader string, body []byte) Result {
	return Verify(v.secret, signatureHeader, timestampHeader, body, v.now(), v.tolerance)
}

// Verify checks a v0 signature. It fails closed: an empty secret, a missing
// or unparsable header, a timestamp more than tolerance older than now, or a
// signature of the wrong length all reject. Timestamps ahead of now are
// accepted.
func Verify(secret, signatureHeader, timestampHeader string, body []byte, now time.Time, tolerance time.Duration) Result {
	if secret == "" || signatureHeader == "" || timestampHeader == "" {
		return fail(ReasonMissingHeader)
	}

	ts, err := strconv.ParseInt(timestampHeader, 10, 64)
	if err != nil || ts <= 0 {
		return fail(ReasonMalformedHeader)
	}

	age := now.Sub(time.Unix(ts, 0))
	if age > tolerance {
		return fail(ReasonStaleTimestamp)
	}

	expected := sign(secret, timestampHeader, body)
	if !hmac.Equal([]byte(expected), []byte(signatureHeader)) {
		return fail(ReasonSignatureMismatch)
	}
	return Result{OK: true, Reason: ReasonOK}
}
