package api

import (
	"net/http"
)

type statsResponse struct {
	DLQSize    int64 `json:"dlq_size"`
	DLQEnabled bool  `json:"dlq_enabled"`
}

func (h *Handler) getStats(w http.ResponseWriter, r *http.Request) {
	svc, err := h.bridge.DLQ()
	if err != nil {
		writeJSON(w, http.StatusOK, statsResponse{})
		return
	}

	dlqCount, err := svc.Count(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, statsResponse{
		DLQSize:    dlqCount,
		DLQEnabled: true,
	})
}
