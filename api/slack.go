package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/xraph/slackrelay"
)

// relay verifies a Slack interactivity request, acks it with an empty 200
// and hands it to the bridge. The ack is flushed before anything else
// happens so Slack's three second deadline never depends on the
// downstream.
func (h *Handler) relay(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "Request Entity Too Large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	in := slackrelay.NewInboundRequest(r.Header, body, h.bridge.Now())
	if res := h.bridge.Verify(in); !res.OK {
		h.logger.WarnContext(r.Context(), "invalid slack signature",
			"request_id", in.ID, "reason", res.Reason)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Length", "0")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	h.bridge.Dispatch(r.Context(), in)
}
