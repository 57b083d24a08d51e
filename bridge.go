package slackrelay

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/xraph/slackrelay/dedup"
	"github.com/xraph/slackrelay/delivery"
	"github.com/xraph/slackrelay/dlq"
	"github.com/xraph/slackrelay/id"
	"github.com/xraph/slackrelay/notify"
	"github.com/xraph/slackrelay/observability"
	"github.com/xraph/slackrelay/payload"
	"github.com/xraph/slackrelay/signature"
	"github.com/xraph/slackrelay/store"
)

// Forward types, sent downstream as the "type" query parameter.
const (
	TypeSlackAction = "slackAction"
	TypeCronPost    = "cronPost"
)

// Downstream query parameters.
const (
	paramType     = "type"
	paramInternal = "internal"
)

const cronContentType = "text/plain"

// Inbound outcomes recorded in metrics.
const (
	inboundRejected   = "rejected"
	inboundSuppressed = "suppressed"
	inboundForwarded  = "forwarded"
)

// Verify checks the Slack signature of in against the configured secret.
func (b *Bridge) Verify(in InboundRequest) signature.Result {
	res := b.verifier.Verify(in.Signature, in.Timestamp, in.Body)
	if !res.OK {
		b.metrics.RecordInbound(inboundRejected)
	}
	return res
}

// Dispatch parses a verified request, drops it when its action was seen
// within the dedup window, and otherwise starts a detached forward of the
// raw body. It never blocks on the downstream and never fails: a parse
// error falls back to the raw body, and a dedup backend error lets the
// request through. With no downstream configured, or once Shutdown has
// begun, nothing is forwarded and Disposition.Skipped says why.
func (b *Bridge) Dispatch(ctx context.Context, in InboundRequest) Disposition {
	p := payload.Parse(in.Body)
	d := Disposition{
		RequestID: in.ID,
		Kind:      p.Kind,
		Shape:     b.classifier.Classify(p),
		ActionKey: dedup.ActionKey(p.Data),
	}
	if d.ActionKey == "" {
		d.ActionKey = dedup.RawKey(in.Body)
	}

	received := in.ReceivedAt
	if received.IsZero() {
		received = b.Now()
	}

	if d.ActionKey != "" {
		seen, err := b.guard.Seen(ctx, d.ActionKey, received)
		switch {
		case err != nil:
			b.logger.WarnContext(ctx, "dedup check failed, forwarding",
				"request_id", in.ID, "action_key", d.ActionKey, "error", err)
		case seen:
			b.logger.InfoContext(ctx, "suppressed",
				"request_id", in.ID, "action_key", d.ActionKey, "shape", d.Shape)
			b.metrics.RecordInbound(inboundSuppressed)
			b.metrics.RecordSuppressed()
			d.Suppressed = true
			return d
		}
	}

	target := b.forwardURL(TypeSlackAction)
	if target == "" {
		b.logger.ErrorContext(ctx, "not forwarding",
			"request_id", in.ID, "error", ErrNoForwardURL)
		d.Skipped = SkipNoForwardURL
		return d
	}

	req := delivery.Request{
		ID:          id.NewForwardID(),
		Type:        TypeSlackAction,
		URL:         target,
		Body:        in.Body,
		ContentType: delivery.FormContentType,
	}

	b.mu.Lock()
	if b.closing {
		b.mu.Unlock()
		b.logger.WarnContext(ctx, "not forwarding, shutting down", "request_id", in.ID)
		d.Skipped = SkipShuttingDown
		return d
	}
	b.inflight.Add(1)
	b.mu.Unlock()

	d.ForwardID = req.ID
	b.logger.InfoContext(ctx, "relaying",
		"request_id", in.ID, "forward_id", req.ID, "kind", d.Kind, "shape", d.Shape)
	b.metrics.RecordInbound(inboundForwarded)

	fctx := context.WithoutCancel(ctx)
	go func() {
		defer b.inflight.Done()
		b.forward(fctx, req, d.ActionKey, in.ID)
	}()
	return d
}

// forward delivers req and records the failure when it does not reach a 2xx.
func (b *Bridge) forward(ctx context.Context, req delivery.Request, actionKey string, requestID id.ID) delivery.Outcome {
	out := b.forwarder.Deliver(ctx, req)
	if out.Failed() {
		b.recordFailure(ctx, req, out, actionKey, requestID)
	}
	return out
}

func (b *Bridge) recordFailure(ctx context.Context, req delivery.Request, out delivery.Outcome, actionKey string, requestID id.ID) {
	if b.dlqSvc != nil && out.Status != delivery.StatusAborted {
		if _, err := b.dlqSvc.PushFailed(ctx, req, out, actionKey); err != nil {
			b.logger.ErrorContext(ctx, "dead-letter push failed",
				"forward_id", out.ID, "error", err)
		}
	}

	a := notify.Alert{
		Title:      "Forward to downstream failed (" + req.Type + ")",
		ErrorClass: string(out.Status),
		Message:    out.Error,
		ForwardID:  out.ID.String(),
		Hint:       failureHint(out),
	}
	if !requestID.IsNil() {
		a.RequestID = requestID.String()
	}
	if err := b.notifier.Notify(ctx, a); err != nil {
		b.logger.WarnContext(ctx, "alert not sent", "forward_id", out.ID, "error", err)
	}
}

func failureHint(out delivery.Outcome) string {
	switch out.Status {
	case delivery.StatusAborted:
		return "The forward was cut short before a final answer."
	case delivery.StatusExhausted:
		return "The downstream kept failing after every retry. Check its logs and quotas."
	default:
		return "The downstream rejected the request. Check its deployment and access settings."
	}
}

// forwardURL returns the downstream URL for a forward type, or "" when no
// downstream is configured.
func (b *Bridge) forwardURL(forwardType string) string {
	base := b.config.Forward.URL
	if base == "" {
		return ""
	}

	u, err := url.Parse(base)
	if err != nil {
		// Left unparsed so the send fails as a terminal bad request.
		return base
	}
	q := u.Query()
	q.Set(paramType, forwardType)
	q.Set(paramInternal, b.config.Forward.Secret)
	u.RawQuery = q.Encode()
	return u.String()
}

// TriggerCron forwards an empty body of type cronPost and waits for the
// outcome. It returns ErrNoForwardURL when no downstream is configured.
func (b *Bridge) TriggerCron(ctx context.Context) (delivery.Outcome, error) {
	if b.config.Forward.URL == "" {
		b.logger.ErrorContext(ctx, "cron trigger failed", "error", ErrNoForwardURL)
		return delivery.Outcome{Status: delivery.StatusAborted, Error: ErrNoForwardURL.Error()}, ErrNoForwardURL
	}

	req := delivery.Request{
		ID:          id.NewForwardID(),
		Type:        TypeCronPost,
		URL:         b.forwardURL(TypeCronPost),
		ContentType: cronContentType,
	}
	b.logger.InfoContext(ctx, "cron triggered",
		"forward_id", req.ID, "target", MaskURL(b.config.Forward.URL))
	return b.forward(ctx, req, "", id.Nil), nil
}

// Redeliver re-sends a dead-lettered body. The URL is rebuilt from the
// entry's type so the stored target never needs the secret.
func (b *Bridge) Redeliver(ctx context.Context, e *dlq.Entry) delivery.Outcome {
	contentType := e.ContentType
	if contentType == "" {
		contentType = delivery.FormContentType
	}
	return b.forwarder.Deliver(ctx, delivery.Request{
		ID:          id.NewForwardID(),
		Type:        e.Type,
		URL:         b.forwardURL(e.Type),
		Body:        []byte(e.Body),
		ContentType: contentType,
	})
}

var _ dlq.Redeliverer = (*Bridge)(nil)

// DLQ returns the dead-letter service, or ErrDLQDisabled.
func (b *Bridge) DLQ() (*dlq.Service, error) {
	if b.dlqSvc == nil {
		return nil, ErrDLQDisabled
	}
	return b.dlqSvc, nil
}

// ReplayDLQ re-forwards one dead-lettered entry.
func (b *Bridge) ReplayDLQ(ctx context.Context, dlqID id.ID) (delivery.Outcome, error) {
	svc, err := b.DLQ()
	if err != nil {
		return delivery.Outcome{}, err
	}
	return svc.Replay(ctx, dlqID, b)
}

// Wait blocks until every detached forward has finished.
func (b *Bridge) Wait() {
	b.inflight.Wait()
}

// Shutdown stops new forwards from starting, waits for in-flight ones,
// bounded by ctx, then closes the store. Forwards are never cancelled.
func (b *Bridge) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	b.closing = true
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		b.logger.WarnContext(ctx, "shutdown deadline reached with forwards in flight")
		return ctx.Err()
	}

	if err := b.store.Close(); err != nil && !errors.Is(err, store.ErrClosed) {
		return err
	}
	return nil
}

// EnvSummary is the secret-free view of the configuration served at /env.
type EnvSummary struct {
	ForwardURL       *string `json:"forward_url"`
	BridgeSecretSet  bool    `json:"bridge_secret_set"`
	SigningSecretSet bool    `json:"signing_secret_set"`
	AlertsEnabled    bool    `json:"alerts_enabled"`
	DedupBackend     string  `json:"dedup_backend"`
	DLQEnabled       bool    `json:"dlq_enabled"`
	Env              string  `json:"env"`
}

// EnvSummary reports which settings are present without revealing them.
func (b *Bridge) EnvSummary() EnvSummary {
	cfg := b.config
	s := EnvSummary{
		BridgeSecretSet:  cfg.Forward.Secret != "",
		SigningSecretSet: cfg.Slack.SigningSecret != "",
		AlertsEnabled:    b.notifier.Enabled(),
		DedupBackend:     cfg.Dedup.Backend,
		DLQEnabled:       b.dlqSvc != nil,
		Env:              cfg.Alerts.Env,
	}
	if cfg.Forward.URL != "" {
		masked := MaskURL(cfg.Forward.URL)
		s.ForwardURL = &masked
	}
	return s
}

// LogEnvCheck writes the masked summary as one startup line.
func (b *Bridge) LogEnvCheck(ctx context.Context) {
	s := b.EnvSummary()
	forward := "<unset>"
	if s.ForwardURL != nil {
		forward = *s.ForwardURL
	}
	b.logger.InfoContext(ctx, "ENV CHECK",
		"forward_url", forward,
		"bridge_secret_set", s.BridgeSecretSet,
		"signing_secret_set", s.SigningSecretSet,
		"alerts_enabled", s.AlertsEnabled,
		"dedup_backend", s.DedupBackend,
		"dlq_enabled", s.DLQEnabled,
	)
}

// MaskURL keeps the scheme, host and last path segment of raw, e.g.
// "https://script.google.com/.../exec". Query and fragment are dropped.
func MaskURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "[unparseable url]"
	}
	prefix := u.Scheme + "://" + u.Host

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	last := segments[len(segments)-1]
	switch {
	case last == "":
		return prefix
	case len(segments) == 1:
		return prefix + "/" + last
	default:
		return prefix + "/.../" + last
	}
}

// Now returns the bridge's clock reading.
func (b *Bridge) Now() time.Time { return b.now() }

// Config returns a copy of the active configuration.
func (b *Bridge) Config() Config { return b.config }

// Store returns the state backend.
func (b *Bridge) Store() store.Store { return b.store }

// Metrics returns the Prometheus instruments, or nil.
func (b *Bridge) Metrics() *observability.Metrics { return b.metrics }
