package delivery

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const maxResponseBody = 1024 // 1KB cap on response body storage

// UserAgent is sent on every outbound request.
const UserAgent = "slackrelay/1.0"

// HeaderForwardID carries the forward ID downstream.
const HeaderForwardID = "X-Slackrelay-Forward-ID"

// Sender performs a single HTTP POST. It never follows redirects: a
// redirected POST must stay a POST, so the Forwarder follows them itself.
type Sender struct {
	client *http.Client
}

// NewSender creates a sender with the given HTTP timeout. A nil transport
// uses http.DefaultTransport; either way the transport is traced.
func NewSender(timeout time.Duration, transport http.RoundTripper) *Sender {
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &Sender{
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(transport),
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Send posts req.Body to target and returns the result.
func (s *Sender) Send(ctx context.Context, target string, req Request) Result {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(req.Body))
	if err != nil {
		return Result{Error: fmt.Sprintf("create request: %v", err), Invalid: true}
	}

	contentType := req.ContentType
	if contentType == "" {
		contentType = FormContentType
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("User-Agent", UserAgent)
	if !req.ID.IsNil() {
		httpReq.Header.Set(HeaderForwardID, req.ID.String())
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	start := time.Now()
	resp, err := s.client.Do(httpReq) //nolint:gosec // G107: target is the operator-configured downstream.
	latency := time.Since(start).Milliseconds()

	if err != nil {
		return Result{
			Error:     err.Error(),
			LatencyMs: int(latency),
		}
	}
	defer resp.Body.Close()

	res := Result{
		StatusCode: resp.StatusCode,
		LatencyMs:  int(latency),
	}
	if IsRedirect(resp.StatusCode) {
		// Location resolves relative references against target.
		if loc, locErr := resp.Location(); locErr == nil {
			res.Location = loc.String()
		}
	}

	respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if readErr != nil {
		res.Error = fmt.Sprintf("read response: %v", readErr)
		return res
	}
	res.Response = string(respBody)
	return res
}
