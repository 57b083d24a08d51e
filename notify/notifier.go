// Package notify posts operator alerts to a Slack incoming webhook.
package notify

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/xraph/slackrelay/dedup"
	"github.com/xraph/slackrelay/observability"
)

// DefaultDedupWindow suppresses repeats of the same alert fingerprint.
const DefaultDedupWindow = 60 * time.Second

const (
	maxAttempts   = 3
	firstDelay    = 2 * time.Second
	messageCutoff = 200
)

// Alert describes one operator-facing failure.
type Alert struct {
	Title      string
	ErrorClass string
	Message    string
	RequestID  string
	ForwardID  string
	Hint       string
}

// Config holds notifier configuration.
type Config struct {
	Enabled    bool
	WebhookURL string
	Env        string

	// Guard suppresses repeated fingerprints. Nil uses a memory guard
	// with DefaultDedupWindow.
	Guard   dedup.Guard
	Client  *http.Client
	Metrics *observability.Metrics
	Sleep   func(ctx context.Context, d time.Duration) error
	Now     func() time.Time
}

// Notifier sends alerts. A disabled or unconfigured notifier is a no-op.
type Notifier struct {
	config Config
	logger *slog.Logger
}

// New creates a notifier.
func New(cfg Config, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Guard == nil {
		cfg.Guard = dedup.NewMemory(DefaultDedupWindow)
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepContext
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Env == "" {
		cfg.Env = "unknown"
	}
	return &Notifier{config: cfg, logger: logger}
}

// Enabled reports whether alerts will be posted.
func (n *Notifier) Enabled() bool {
	return n != nil && n.config.Enabled && n.config.WebhookURL != ""
}

// Notify posts a, unless alerts are off or the same fingerprint was sent
// within the dedup window. 429 and 5xx are retried with 2s and 4s waits;
// any other non-2xx gives up. Errors are returned for logging only.
func (n *Notifier) Notify(ctx context.Context, a Alert) error {
	if !n.Enabled() {
		return nil
	}

	fp := Fingerprint(a.ErrorClass, a.Message)
	seen, err := n.config.Guard.Seen(ctx, fp, n.config.Now())
	if err != nil {
		n.logger.WarnContext(ctx, "alert dedup failed", "error", err)
	}
	if seen {
		n.config.Metrics.RecordAlert("deduped")
		return nil
	}

	body, err := json.Marshal(map[string]any{"blocks": Blocks(n.config.Env, fp, a)})
	if err != nil {
		return fmt.Errorf("notify: marshal blocks: %w", err)
	}

	delay := firstDelay
	for attempt := 1; ; attempt++ {
		code, err := n.post(ctx, body)
		switch {
		case err == nil && code >= 200 && code < 300:
			n.config.Metrics.RecordAlert("sent")
			return nil
		case err == nil && code != http.StatusTooManyRequests && code < 500:
			n.config.Metrics.RecordAlert("failed")
			return fmt.Errorf("notify: webhook status %d", code)
		case attempt >= maxAttempts:
			n.config.Metrics.RecordAlert("failed")
			if err != nil {
				return fmt.Errorf("notify: webhook: %w", err)
			}
			return fmt.Errorf("notify: webhook status %d after %d attempts", code, attempt)
		}

		if sleepErr := n.config.Sleep(ctx, delay); sleepErr != nil {
			return sleepErr
		}
		delay *= 2
	}
}

func (n *Notifier) post(ctx context.Context, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.config.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := n.config.Client.Do(req) //nolint:gosec // G107: operator-configured webhook.
	if err != nil {
		return 0, err
	}
	_ = resp.Body.Close()
	return resp.StatusCode, nil
}

// Fingerprint identifies an alert by class and the first 200 bytes of its
// message.
func Fingerprint(errorClass, message string) string {
	if len(message) > messageCutoff {
		message = message[:messageCutoff]
	}
	sum := sha256.Sum256([]byte(errorClass + "|" + message))
	return hex.EncodeToString(sum[:])
}

var scrubbers = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`xox[bap]-[A-Za-z0-9-]+`), "[MASKED_TOKEN]"},
	{regexp.MustCompile(`Bearer\s+[A-Za-z0-9.\-_]+`), "Bearer [MASKED]"},
	{regexp.MustCompile(`(?i)(secret|token|key|internal)=([^&\s]+)`), "${1}=[MASKED]"},
}

// Scrub masks Slack tokens, bearer credentials and secret-like query
// parameters in s.
func Scrub(s string) string {
	for _, sc := range scrubbers {
		s = sc.re.ReplaceAllString(s, sc.repl)
	}
	return s
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
