package delivery

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/slackrelay/id"
	"github.com/xraph/slackrelay/observability"
	"github.com/xraph/slackrelay/ratelimit"
)

// ForwarderConfig holds forwarder configuration.
type ForwarderConfig struct {
	RequestTimeout time.Duration
	MaxRetries     int
	BackoffStep    time.Duration
	BackoffCap     time.Duration

	// RatePerSecond throttles sends per target host. 0 disables it.
	RatePerSecond int
	Limiter       *ratelimit.Limiter

	// Transport overrides the HTTP transport. Nil uses the default.
	Transport http.RoundTripper

	Metrics *observability.Metrics
	Tracer  *observability.Tracer

	// Sleep waits between retries. Nil uses a timer that honors ctx.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultForwarderConfig returns the production retry policy: three
// retries with 3s, 6s and 9s waits and a 25s per-send timeout.
func DefaultForwarderConfig() ForwarderConfig {
	return ForwarderConfig{
		RequestTimeout: 25 * time.Second,
		MaxRetries:     3,
		BackoffStep:    3 * time.Second,
		BackoffCap:     9 * time.Second,
	}
}

// Forwarder delivers a body downstream, following redirects by hand and
// retrying transient failures.
type Forwarder struct {
	sender  *Sender
	retrier *Retrier
	config  ForwarderConfig
	logger  *slog.Logger
}

// NewForwarder creates a forwarder.
func NewForwarder(cfg ForwarderConfig, logger *slog.Logger) *Forwarder {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepContext
	}
	if cfg.RatePerSecond > 0 && cfg.Limiter == nil {
		cfg.Limiter = ratelimit.New()
	}
	return &Forwarder{
		sender:  NewSender(cfg.RequestTimeout, cfg.Transport),
		retrier: NewRetrier(cfg.MaxRetries, cfg.BackoffStep, cfg.BackoffCap),
		config:  cfg,
		logger:  logger,
	}
}

// Deliver runs one forward to completion.
//
// Each cycle makes one primary send. A 301/302/303 carrying a Location is
// followed once with the same body and method, and the resolved location
// becomes the target for later cycles. A 429, 5xx or connection error
// waits Backoff(attempt) and starts the next cycle while attempt <=
// MaxRetries, so a downstream that always fails sees MaxRetries+1 primary
// sends. Any other status ends the forward.
func (f *Forwarder) Deliver(ctx context.Context, req Request) Outcome {
	if req.ID.IsNil() {
		req.ID = id.NewForwardID()
	}
	start := time.Now()

	var span trace.Span
	if f.config.Tracer != nil {
		ctx, span = f.config.Tracer.StartForwardSpan(ctx, req.ID.String(), req.Type, RedactURL(req.URL))
	}
	f.config.Metrics.ForwardStarted()

	out := f.run(ctx, req)
	out.ID = req.ID
	out.LatencyMs = int(time.Since(start).Milliseconds())

	f.config.Metrics.RecordForward(string(out.Status), time.Since(start).Seconds())
	if span != nil {
		f.config.Tracer.EndForwardSpan(span, string(out.Status), out.StatusCode, out.Attempts, out.LatencyMs, out.Error)
	}
	f.logOutcome(ctx, req, out)
	return out
}

func (f *Forwarder) run(ctx context.Context, req Request) Outcome {
	if req.URL == "" {
		return Outcome{Status: StatusAborted, Error: ErrNoTarget.Error()}
	}

	a := &Attempt{URL: req.URL, Number: 1}
	for {
		res, err := f.send(ctx, a, req)
		if err != nil {
			return a.outcome(StatusAborted, res, err.Error())
		}

		if IsRedirect(res.StatusCode) && res.Location != "" {
			f.logger.InfoContext(ctx, "forward redirect",
				"forward_id", req.ID, "status", res.StatusCode,
				"location", RedactURL(res.Location), "attempt", a.Number)
			observability.AddEvent(ctx, "redirect",
				attribute.Int("http.status_code", res.StatusCode),
				attribute.Int("relay.attempt", a.Number))

			a.LastLocation = res.Location
			a.URL = res.Location
			res, err = f.send(ctx, a, req)
			if err != nil {
				return a.outcome(StatusAborted, res, err.Error())
			}
		}

		switch f.retrier.Decide(res, a.Number) {
		case Delivered:
			return a.outcome(StatusDelivered, res, "")

		case Retry:
			wait := f.retrier.Backoff(a.Number)
			f.logger.WarnContext(ctx, "forward retry",
				"forward_id", req.ID, "status", res.StatusCode, "error", res.Error,
				"attempt", a.Number, "backoff", wait)
			observability.AddEvent(ctx, "retry",
				attribute.Int("relay.attempt", a.Number),
				attribute.Int64("relay.backoff_ms", wait.Milliseconds()))

			if err := f.config.Sleep(ctx, wait); err != nil {
				return a.outcome(StatusAborted, res, err.Error())
			}
			a.Number++

		case Exhausted:
			return a.outcome(StatusExhausted, res, failureText(res))

		default:
			return a.outcome(StatusTerminal, res, failureText(res))
		}
	}
}

// send performs one HTTP send against a.URL. A non-nil error means the
// forward cannot continue (rate-limit wait cancelled or context done).
func (f *Forwarder) send(ctx context.Context, a *Attempt, req Request) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if f.config.Limiter != nil {
		if err := f.config.Limiter.Wait(ctx, hostOf(a.URL), f.config.RatePerSecond); err != nil {
			return Result{}, err
		}
	}

	res := f.sender.Send(ctx, a.URL, req)
	a.Sends++
	a.LastStatus = res.StatusCode
	f.config.Metrics.RecordSend()

	f.logger.DebugContext(ctx, "forward send",
		"forward_id", req.ID, "url", RedactURL(a.URL), "status", res.StatusCode,
		"latency_ms", res.LatencyMs, "attempt", a.Number, "send", a.Sends)
	return res, nil
}

func (f *Forwarder) logOutcome(ctx context.Context, req Request, out Outcome) {
	attrs := []any{
		"forward_id", out.ID, "type", req.Type, "status", out.Status,
		"http_status", out.StatusCode, "attempts", out.Attempts,
		"sends", out.Sends, "latency_ms", out.LatencyMs,
	}
	if out.URL != "" {
		attrs = append(attrs, "url", RedactURL(out.URL))
	}

	switch out.Status {
	case StatusDelivered:
		f.logger.InfoContext(ctx, "forward delivered", attrs...)
	default:
		attrs = append(attrs, "error", out.Error)
		f.logger.ErrorContext(ctx, "forward failed", attrs...)
	}
}

func (a *Attempt) outcome(status Status, res Result, errText string) Outcome {
	return Outcome{
		Status:     status,
		StatusCode: res.StatusCode,
		Attempts:   a.Number,
		Sends:      a.Sends,
		URL:        a.URL,
		Error:      errText,
		Response:   res.Response,
	}
}

func failureText(res Result) string {
	if res.Error != "" {
		return res.Error
	}
	return "downstream status " + strconv.Itoa(res.StatusCode)
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Host
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
