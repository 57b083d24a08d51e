package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/xraph/slackrelay"
)

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// health is a liveness check and never touches a backend.
func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Timestamp: time.Now().UTC()})
}

// ready pings the state backend.
func (h *Handler) ready(w http.ResponseWriter, r *http.Request) {
	if err := h.bridge.Store().Ping(r.Context()); err != nil {
		h.logger.WarnContext(r.Context(), "store ping failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable", Timestamp: time.Now().UTC()})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ready", Timestamp: time.Now().UTC()})
}

func (h *Handler) env(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.bridge.EnvSummary())
}

type cronResponse struct {
	Success bool   `json:"success"`
	Status  int    `json:"status,omitempty"`
	Error   string `json:"error,omitempty"`
}

// cron forwards an empty cronPost and reports the downstream outcome.
// Only a delivered forward counts as success.
func (h *Handler) cron(w http.ResponseWriter, r *http.Request) {
	if token := h.bridge.Config().Cron.Token; token != "" && !equalSecret(r.Header.Get(HeaderCronToken), token) {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	out, err := h.bridge.TriggerCron(r.Context())
	if err != nil {
		msg := err.Error()
		if errors.Is(err, slackrelay.ErrNoForwardURL) {
			msg = "Invalid URL"
		}
		writeJSON(w, http.StatusInternalServerError, cronResponse{Error: msg})
		return
	}
	if out.Failed() {
		writeJSON(w, http.StatusInternalServerError, cronResponse{Status: out.StatusCode, Error: out.Error})
		return
	}
	writeJSON(w, http.StatusOK, cronResponse{Success: true, Status: out.StatusCode})
}
