package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/xraph/slackrelay"
	"github.com/xraph/slackrelay/dlq"
	"github.com/xraph/slackrelay/id"
)

// dlqService resolves the dead-letter service or writes the error.
func (h *Handler) dlqService(w http.ResponseWriter) (*dlq.Service, bool) {
	svc, err := h.bridge.DLQ()
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return nil, false
	}
	return svc, true
}

func (h *Handler) listDLQ(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.dlqService(w)
	if !ok {
		return
	}

	opts := dlq.ListOpts{
		Offset: queryInt(r, "offset", 0),
		Limit:  queryInt(r, "limit", 50),
		Type:   r.URL.Query().Get("type"),
	}

	entries, err := svc.List(r.Context(), opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []*dlq.Entry{}
	}

	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) getDLQ(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.dlqService(w)
	if !ok {
		return
	}

	dlqID, err := id.ParseDLQID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid DLQ ID")
		return
	}

	e, err := svc.Get(r.Context(), dlqID)
	if err != nil {
		if errors.Is(err, slackrelay.ErrDLQNotFound) {
			writeError(w, http.StatusNotFound, "DLQ entry not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, e)
}

func (h *Handler) replayDLQ(w http.ResponseWriter, r *http.Request) {
	dlqID, err := id.ParseDLQID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid DLQ ID")
		return
	}

	out, replayErr := h.bridge.ReplayDLQ(r.Context(), dlqID)
	if replayErr != nil {
		switch {
		case errors.Is(replayErr, slackrelay.ErrDLQDisabled), errors.Is(replayErr, slackrelay.ErrDLQNotFound):
			writeError(w, http.StatusNotFound, replayErr.Error())
		case errors.Is(replayErr, dlq.ErrAlreadyReplayed), errors.Is(replayErr, dlq.ErrReplayInProgress):
			writeError(w, http.StatusConflict, replayErr.Error())
		default:
			writeError(w, http.StatusInternalServerError, replayErr.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, out)
}

type replayBulkRequest struct {
	From string `json:"from"` // RFC3339
	To   string `json:"to"`   // RFC3339
}

func (h *Handler) replayBulkDLQ(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.dlqService(w)
	if !ok {
		return
	}

	var req replayBulkRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	from, err := time.Parse(time.RFC3339, req.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid 'from' time format (use RFC3339)")
		return
	}
	to, err := time.Parse(time.RFC3339, req.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid 'to' time format (use RFC3339)")
		return
	}

	count, replayErr := svc.ReplayBulk(r.Context(), from, to, h.bridge)
	if replayErr != nil {
		writeError(w, http.StatusInternalServerError, replayErr.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{"delivered": count})
}

// purgeDLQ removes entries that failed before ?before= (RFC3339), or all
// entries when it is absent.
func (h *Handler) purgeDLQ(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.dlqService(w)
	if !ok {
		return
	}

	before := time.Now().UTC().Add(time.Second)
	if v := r.URL.Query().Get("before"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid 'before' time format (use RFC3339)")
			return
		}
		before = t
	}

	n, err := svc.Purge(r.Context(), before)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{"purged": n})
}
