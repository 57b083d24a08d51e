package slackrelay

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/xraph/slackrelay/dedup"
	"github.com/xraph/slackrelay/delivery"
	"github.com/xraph/slackrelay/dlq"
	"github.com/xraph/slackrelay/notify"
	"github.com/xraph/slackrelay/observability"
	"github.com/xraph/slackrelay/payload"
	"github.com/xraph/slackrelay/signature"
	"github.com/xraph/slackrelay/store"
	"github.com/xraph/slackrelay/store/memory"
)

// Namespaces of the store's dedup guards.
const (
	guardActions = "action"
	guardAlerts  = "alert"
)

// Forwarder delivers one request downstream. *delivery.Forwarder is the
// production implementation.
type Forwarder interface {
	Deliver(ctx context.Context, req delivery.Request) delivery.Outcome
}

// Bridge is the Slack-to-downstream relay.
type Bridge struct {
	config     Config
	store      store.Store
	guard      dedup.Guard
	verifier   *signature.Verifier
	classifier *payload.Classifier
	forwarder  Forwarder
	dlqSvc     *dlq.Service
	notifier   *notify.Notifier
	metrics    *observability.Metrics
	tracer     *observability.Tracer
	logger     *slog.Logger

	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
	transport   http.RoundTripper
	alertClient *http.Client

	mu       sync.Mutex
	closing  bool
	inflight sync.WaitGroup
}

// Option configures a Bridge instance.
type Option func(*Bridge) error

// New creates a new Bridge with the given options.
func New(opts ...Option) (*Bridge, error) {
	b := &Bridge{
		config: DefaultConfig(),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, err
		}
	}
	if err := b.config.Validate(); err != nil {
		return nil, err
	}
	if err := b.wireServices(); err != nil {
		return nil, err
	}
	return b, nil
}

// wireServices initializes the internal services after options have been applied.
func (b *Bridge) wireServices() error {
	cfg := b.config

	if b.store == nil {
		b.store = memory.New(memory.WithMaxEntries(cfg.DLQ.MaxEntries))
	}
	if b.guard == nil {
		b.guard = b.store.Guard(guardActions, cfg.Dedup.Window)
	}

	b.verifier = signature.NewVerifier(cfg.Slack.SigningSecret,
		signature.WithTolerance(cfg.Slack.Tolerance),
		signature.WithClock(b.now),
	)

	classifier, err := payload.NewClassifier()
	if err != nil {
		return err
	}
	b.classifier = classifier

	if b.forwarder == nil {
		b.forwarder = delivery.NewForwarder(delivery.ForwarderConfig{
			RequestTimeout: cfg.Forward.RequestTimeout,
			MaxRetries:     cfg.Forward.MaxRetries,
			BackoffStep:    cfg.Forward.BackoffStep,
			BackoffCap:     cfg.Forward.BackoffCap,
			RatePerSecond:  cfg.Forward.RatePerSecond,
			Transport:      b.transport,
			Metrics:        b.metrics,
			Tracer:         b.tracer,
			Sleep:          b.sleep,
		}, b.logger)
	}

	if cfg.DLQ.Enabled {
		b.dlqSvc = dlq.NewService(b.store, b.metrics, b.logger)
	}

	b.notifier = notify.New(notify.Config{
		Enabled:    cfg.Alerts.Enabled,
		WebhookURL: cfg.Alerts.WebhookURL,
		Env:        cfg.Alerts.Env,
		Guard:      b.store.Guard(guardAlerts, notify.DefaultDedupWindow),
		Client:     b.alertClient,
		Metrics:    b.metrics,
		Sleep:      b.sleep,
		Now:        b.now,
	}, b.logger)
	return nil
}

// WithConfig replaces the whole configuration.
func WithConfig(cfg Config) Option {
	return func(b *Bridge) error {
		b.config = cfg
		return nil
	}
}

// WithSigningSecret sets the Slack signing secret.
func WithSigningSecret(secret string) Option {
	return func(b *Bridge) error {
		b.config.Slack.SigningSecret = secret
		return nil
	}
}

// WithForwardURL sets the downstream base URL and shared secret.
func WithForwardURL(url, secret string) Option {
	return func(b *Bridge) error {
		b.config.Forward.URL = url
		b.config.Forward.Secret = secret
		return nil
	}
}

// WithStore sets the state backend. The default is an in-memory store.
func WithStore(s store.Store) Option {
	return func(b *Bridge) error {
		b.store = s
		return nil
	}
}

// WithGuard overrides the action dedup guard taken from the store.
func WithGuard(g dedup.Guard) Option {
	return func(b *Bridge) error {
		b.guard = g
		return nil
	}
}

// WithForwarder overrides the downstream forwarder.
func WithForwarder(f Forwarder) Option {
	return func(b *Bridge) error {
		b.forwarder = f
		return nil
	}
}

// WithLogger sets the structured logger for the Bridge instance.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) error {
		if logger != nil {
			b.logger = logger
		}
		return nil
	}
}

// WithMetrics enables Prometheus instruments.
func WithMetrics(m *observability.Metrics) Option {
	return func(b *Bridge) error {
		b.metrics = m
		return nil
	}
}

// WithTracer enables forward spans.
func WithTracer(t *observability.Tracer) Option {
	return func(b *Bridge) error {
		b.tracer = t
		return nil
	}
}

// WithClock sets the time source used for verification and dedup.
func WithClock(now func() time.Time) Option {
	return func(b *Bridge) error {
		b.now = now
		return nil
	}
}

// WithSleep replaces the wait used between retries.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(b *Bridge) error {
		b.sleep = sleep
		return nil
	}
}

// WithTransport sets the HTTP transport for downstream sends.
func WithTransport(rt http.RoundTripper) Option {
	return func(b *Bridge) error {
		b.transport = rt
		return nil
	}
}

// WithAlertClient sets the HTTP client used for operator alerts.
func WithAlertClient(c *http.Client) Option {
	return func(b *Bridge) error {
		b.alertClient = c
		return nil
	}
}
