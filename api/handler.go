// Package api exposes a Bridge over HTTP: the Slack relay endpoints, the
// health, env and cron routes, and the dead-letter admin API.
package api

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/xraph/slackrelay"
)

// Auth headers for the auxiliary routes.
const (
	HeaderBridgeSecret = "X-Bridge-Secret"
	HeaderCronToken    = "X-Cron-Token"
)

// maxBodyBytes bounds inbound Slack bodies.
const maxBodyBytes = 1 << 20

// Handler is the root HTTP handler of the relay service.
type Handler struct {
	bridge   *slackrelay.Bridge
	logger   *slog.Logger
	gatherer prometheus.Gatherer
	router   chi.Router
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithGatherer serves g at GET /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(h *Handler) { h.gatherer = g }
}

// NewHandler creates the HTTP handler for b.
func NewHandler(b *slackrelay.Bridge, opts ...Option) *Handler {
	h := &Handler{
		bridge: b,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.router = h.routes()
	return h
}

func (h *Handler) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(requestID)
	r.Use(logging(h.logger))
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "slackrelay")
	})

	// Slack interactivity
	r.Post("/slack/actions", h.relay)
	r.Post("/slack/interactivity", h.relay)

	// Service
	r.Get("/health", h.health)
	r.Get("/ready", h.ready)
	r.Get("/env", h.env)
	r.Post("/cron/post", h.cron)
	if h.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	}

	// Admin
	r.Route("/admin", func(r chi.Router) {
		r.Use(h.requireBridgeSecret)
		r.Get("/dlq", h.listDLQ)
		r.Delete("/dlq", h.purgeDLQ)
		r.Post("/dlq/replay", h.replayBulkDLQ)
		r.Get("/dlq/{id}", h.getDLQ)
		r.Post("/dlq/{id}/replay", h.replayDLQ)
		r.Get("/stats", h.getStats)
	})
	return r
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// requireBridgeSecret admits requests carrying the forward secret. With no
// secret configured the admin API is closed.
func (h *Handler) requireBridgeSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secret := h.bridge.Config().Forward.Secret
		if secret == "" {
			writeError(w, http.StatusForbidden, "admin api disabled")
			return
		}
		if !equalSecret(r.Header.Get(HeaderBridgeSecret), secret) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func equalSecret(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// JSON helpers.

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best effort
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// queryInt returns a non-negative query parameter as int or a default value.
func queryInt(r *http.Request, key string, defaultVal int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || n < 0 {
		return defaultVal
	}
	return n
}
