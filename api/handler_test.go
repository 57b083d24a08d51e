package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/xraph/slackrelay"
	"github.com/xraph/slackrelay/api"
	"github.com/xraph/slackrelay/observability"
	"github.com/xraph/slackrelay/signature"
	"github.com/xraph/slackrelay/store/memory"
)

const (
	signingSecret = "8f742231b10e8888abcd99yyyzzz85a5"
	bridgeSecret  = "s3cret"
	forwardURL    = "https://script.google.com/macros/s/AKfy123/exec"
)

type captured struct {
	Method string
	URL    string
	Body   string
}

// downstream is a scripted RoundTripper standing in for the forward target.
type downstream struct {
	mu      sync.Mutex
	reqs    []captured
	respond func(r *http.Request) *http.Response
}

func (d *downstream) RoundTrip(r *http.Request) (*http.Response, error) {
	var body []byte
	if r.Body != nil {
		body, _ = io.ReadAll(r.Body)
	}
	d.mu.Lock()
	d.reqs = append(d.reqs, captured{Method: r.Method, URL: r.URL.String(), Body: string(body)})
	respond := d.respond
	d.mu.Unlock()

	resp := respond(r)
	resp.Request = r
	return resp, nil
}

func (d *downstream) requests() []captured {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]captured(nil), d.reqs...)
}

func (d *downstream) setStatus(code int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.respond = status(code)
}

func status(code int) func(*http.Request) *http.Response {
	return func(*http.Request) *http.Response { return response(code, nil) }
}

func response(code int, header http.Header) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{
		StatusCode: code,
		Header:     header,
		Body:       io.NopCloser(strings.NewReader("")),
	}
}

type fixture struct {
	srv    *httptest.Server
	bridge *slackrelay.Bridge
	down   *downstream
	reg    *prometheus.Registry
}

func newFixture(t *testing.T, mutate func(*slackrelay.Config), opts ...slackrelay.Option) *fixture {
	t.Helper()

	cfg := slackrelay.DefaultConfig()
	cfg.Slack.SigningSecret = signingSecret
	cfg.Forward.URL = forwardURL
	cfg.Forward.Secret = bridgeSecret
	if mutate != nil {
		mutate(&cfg)
	}

	down := &downstream{respond: status(http.StatusOK)}
	reg := prometheus.NewRegistry()
	all := append([]slackrelay.Option{
		slackrelay.WithConfig(cfg),
		slackrelay.WithTransport(down),
		slackrelay.WithMetrics(observability.NewMetrics(reg)),
		slackrelay.WithSleep(func(context.Context, time.Duration) error { return nil }),
	}, opts...)
	b, err := slackrelay.New(all...)
	if err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(api.NewHandler(b, api.WithGatherer(reg)))
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, bridge: b, down: down, reg: reg}
}

func actionBody(messageTS, actionID, triggerID string) string {
	js := `{"type":"block_actions","trigger_id":"` + triggerID + `",` +
		`"user":{"id":"U1"},"container":{"message_ts":"` + messageTS + `"},` +
		`"actions":[{"action_id":"` + actionID + `"}]}`
	return "payload=" + url.QueryEscape(js)
}

func postSlack(t *testing.T, srv *httptest.Server, body, secret string) *http.Response {
	t.Helper()
	return postSlackAt(t, srv, body, secret, time.Now())
}

func postSlackAt(t *testing.T, srv *httptest.Server, body, secret string, at time.Time) *http.Response {
	t.Helper()
	ts := at.Unix()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, srv.URL+"/slack/actions", strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set(signature.HeaderTimestamp, strconv.FormatInt(ts, 10))
	req.Header.Set(signature.HeaderSignature, signature.Sign(secret, ts, []byte(body)))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	return resp
}

func do(t *testing.T, method, target string, header http.Header, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, target, r)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	return resp
}

func admin() http.Header {
	return http.Header{api.HeaderBridgeSecret: {bridgeSecret}}
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode body: %v", err)
	}
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(b)
}

// --- Relay ---

func TestRelay_AckBeforeDownstream(t *testing.T) {
	f := newFixture(t, nil)
	release := make(chan struct{})
	f.down.respond = func(*http.Request) *http.Response {
		<-release
		return response(http.StatusOK, nil)
	}

	body := "payload=%7B%22actions%22%3A%5B%7B%22action_id%22%3A%22approve%22%7D%5D%7D"
	resp := postSlack(t, f.srv, body, signingSecret)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if got := readBody(t, resp); got != "" {
		t.Fatalf("expected empty body, got %q", got)
	}

	// The ack arrived while the downstream is still holding the forward.
	close(release)
	f.bridge.Wait()

	reqs := f.down.requests()
	if len(reqs) != 1 {
		t.Fatalf("expected 1 downstream send, got %d", len(reqs))
	}
	if reqs[0].Body != body {
		t.Fatalf("body not relayed verbatim: %q", reqs[0].Body)
	}
	if !strings.Contains(reqs[0].URL, "type=slackAction") || !strings.Contains(reqs[0].URL, "internal="+bridgeSecret) {
		t.Fatalf("unexpected target %q", reqs[0].URL)
	}
}

func TestRelay_InvalidSignature(t *testing.T) {
	f := newFixture(t, nil)

	resp := postSlack(t, f.srv, actionBody("1.2", "approve", "t1"), "wrong-secret")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	if got := strings.TrimSpace(readBody(t, resp)); got != "Unauthorized" {
		t.Fatalf("body = %q", got)
	}

	f.bridge.Wait()
	if n := len(f.down.requests()); n != 0 {
		t.Fatalf("expected no downstream call, got %d", n)
	}
}

func TestRelay_MissingHeaders(t *testing.T) {
	f := newFixture(t, nil)

	resp := do(t, http.MethodPost, f.srv.URL+"/slack/interactivity", nil, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestRelay_DuplicateActionSuppressed(t *testing.T) {
	f := newFixture(t, nil)

	for _, trigger := range []string{"t1", "t2"} {
		resp := postSlack(t, f.srv, actionBody("1.2", "approve", trigger), signingSecret)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		resp.Body.Close()
	}
	f.bridge.Wait()

	if n := len(f.down.requests()); n != 1 {
		t.Fatalf("expected 1 forward, got %d", n)
	}
}

func TestRelay_DedupFollowsBridgeClock(t *testing.T) {
	var mu sync.Mutex
	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	f := newFixture(t, nil, slackrelay.WithClock(clock))
	body := actionBody("1.2", "approve", "t1")

	resp := postSlackAt(t, f.srv, body, signingSecret, clock())
	resp.Body.Close()

	mu.Lock()
	now = now.Add(91 * time.Second)
	mu.Unlock()

	resp = postSlackAt(t, f.srv, body, signingSecret, clock())
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	f.bridge.Wait()

	if n := len(f.down.requests()); n != 2 {
		t.Fatalf("expected 2 forwards after the window, got %d", n)
	}
}

func TestRelay_RedirectFollowedWithSameBody(t *testing.T) {
	f := newFixture(t, nil)
	f.down.respond = func(r *http.Request) *http.Response {
		if r.URL.Host == "alt.example" {
			return response(http.StatusOK, nil)
		}
		return response(http.StatusFound, http.Header{"Location": {"https://alt.example/exec"}})
	}

	body := actionBody("1.2", "approve", "t1")
	resp := postSlack(t, f.srv, body, signingSecret)
	resp.Body.Close()
	f.bridge.Wait()

	reqs := f.down.requests()
	if len(reqs) != 2 {
		t.Fatalf("expected 2 sends, got %d", len(reqs))
	}
	second := reqs[1]
	if second.URL != "https://alt.example/exec" {
		t.Fatalf("second send to %q", second.URL)
	}
	if second.Method != http.MethodPost || second.Body != body {
		t.Fatalf("redirect changed the request: %+v", second)
	}
}

func TestRelay_InteractivityAlias(t *testing.T) {
	f := newFixture(t, nil)
	body := actionBody("1.2", "approve", "t1")
	ts := time.Now().Unix()

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, f.srv.URL+"/slack/interactivity", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set(signature.HeaderTimestamp, strconv.FormatInt(ts, 10))
	req.Header.Set(signature.HeaderSignature, signature.Sign(signingSecret, ts, []byte(body)))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	f.bridge.Wait()
	if n := len(f.down.requests()); n != 1 {
		t.Fatalf("expected 1 forward, got %d", n)
	}
}

// --- Service routes ---

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)

	resp := do(t, http.MethodGet, f.srv.URL+"/health", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatal("missing X-Request-ID")
	}
	var body map[string]any
	decodeBody(t, resp, &body)
	if body["status"] != "ok" || body["timestamp"] == nil {
		t.Fatalf("unexpected body %v", body)
	}
}

// stallingStore blocks Ping until released, or fails it when err is set.
type stallingStore struct {
	*memory.Store
	release chan struct{}
	err     error
}

func (s *stallingStore) Ping(ctx context.Context) error {
	if s.err != nil {
		return s.err
	}
	select {
	case <-s.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestHealthDoesNotTouchStore(t *testing.T) {
	st := &stallingStore{Store: memory.New(), release: make(chan struct{})}
	defer close(st.release)
	f := newFixture(t, nil, slackrelay.WithStore(st))

	client := &http.Client{Timeout: time.Second}
	start := time.Now()
	resp, err := client.Get(f.srv.URL + "/health")
	if err != nil {
		t.Fatalf("health blocked on the store: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("health took %s", elapsed)
	}
	var body map[string]any
	decodeBody(t, resp, &body)
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("status=%d body=%v", resp.StatusCode, body)
	}
}

func TestReady(t *testing.T) {
	f := newFixture(t, nil)
	resp := do(t, http.MethodGet, f.srv.URL+"/ready", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	down := &stallingStore{Store: memory.New(), err: errors.New("connection refused")}
	f = newFixture(t, nil, slackrelay.WithStore(down))
	resp = do(t, http.MethodGet, f.srv.URL+"/ready", nil, nil)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestEnv(t *testing.T) {
	f := newFixture(t, nil)

	resp := do(t, http.MethodGet, f.srv.URL+"/env", nil, nil)
	raw := readBody(t, resp)
	if strings.Contains(raw, bridgeSecret) || strings.Contains(raw, signingSecret) || strings.Contains(raw, "AKfy123") {
		t.Fatalf("env leaks secrets: %s", raw)
	}

	var body map[string]any
	if err := json.Unmarshal([]byte(raw), &body); err != nil {
		t.Fatal(err)
	}
	if body["forward_url"] != "https://script.google.com/.../exec" {
		t.Fatalf("forward_url = %v", body["forward_url"])
	}
	if body["bridge_secret_set"] != true || body["signing_secret_set"] != true {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestCron(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*slackrelay.Config)
		downstream int
		header     http.Header
		wantCode   int
		wantOK     bool
		wantSends  int
	}{
		{name: "delivered", downstream: 200, wantCode: 200, wantOK: true, wantSends: 1},
		{name: "exhausted", downstream: 503, wantCode: 500, wantSends: 4},
		{name: "terminal", downstream: 404, wantCode: 500, wantSends: 1},
		{
			name:     "unconfigured",
			mutate:   func(c *slackrelay.Config) { c.Forward.URL = "" },
			wantCode: 500,
		},
		{
			name:     "token required",
			mutate:   func(c *slackrelay.Config) { c.Cron.Token = "tick" },
			wantCode: 401,
		},
		{
			name:       "token accepted",
			mutate:     func(c *slackrelay.Config) { c.Cron.Token = "tick" },
			header:     http.Header{api.HeaderCronToken: {"tick"}},
			downstream: 200, wantCode: 200, wantOK: true, wantSends: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.mutate)
			if tt.downstream != 0 {
				f.down.setStatus(tt.downstream)
			}

			resp := do(t, http.MethodPost, f.srv.URL+"/cron/post", tt.header, nil)
			if resp.StatusCode != tt.wantCode {
				t.Fatalf("expected %d, got %d", tt.wantCode, resp.StatusCode)
			}
			var body map[string]any
			decodeBody(t, resp, &body)
			if tt.wantCode != http.StatusUnauthorized && body["success"] != tt.wantOK {
				t.Fatalf("success = %v, want %v (%v)", body["success"], tt.wantOK, body)
			}

			reqs := f.down.requests()
			if len(reqs) != tt.wantSends {
				t.Fatalf("expected %d sends, got %d", tt.wantSends, len(reqs))
			}
			for _, r := range reqs {
				if r.Body != "" || !strings.Contains(r.URL, "type=cronPost") {
					t.Fatalf("unexpected cron request %+v", r)
				}
			}
		})
	}
}

func TestMetrics(t *testing.T) {
	f := newFixture(t, nil)

	resp := postSlack(t, f.srv, actionBody("1.2", "approve", "t1"), signingSecret)
	resp.Body.Close()
	f.bridge.Wait()

	resp = do(t, http.MethodGet, f.srv.URL+"/metrics", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	text := readBody(t, resp)
	for _, name := range []string{"slackrelay_inbound_requests_total", "slackrelay_forwards_total"} {
		if !strings.Contains(text, name) {
			t.Fatalf("metrics missing %s", name)
		}
	}
}

// --- Admin ---

func TestAdmin_RequiresSecret(t *testing.T) {
	f := newFixture(t, nil)

	resp := do(t, http.MethodGet, f.srv.URL+"/admin/dlq", nil, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = do(t, http.MethodGet, f.srv.URL+"/admin/dlq", http.Header{api.HeaderBridgeSecret: {"nope"}}, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestAdmin_DisabledWithoutSecret(t *testing.T) {
	f := newFixture(t, func(c *slackrelay.Config) { c.Forward.Secret = "" })

	resp := do(t, http.MethodGet, f.srv.URL+"/admin/dlq", http.Header{api.HeaderBridgeSecret: {""}}, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestAdmin_DLQLifecycle(t *testing.T) {
	f := newFixture(t, nil)
	f.down.setStatus(http.StatusNotFound)

	body := actionBody("1.2", "approve", "t1")
	resp := postSlack(t, f.srv, body, signingSecret)
	resp.Body.Close()
	f.bridge.Wait()

	// List
	resp = do(t, http.MethodGet, f.srv.URL+"/admin/dlq", admin(), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", resp.StatusCode)
	}
	var list []map[string]any
	decodeBody(t, resp, &list)
	if len(list) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(list))
	}
	entryID, _ := list[0]["id"].(string)
	if list[0]["status"] != "terminal" || list[0]["body"] != body {
		t.Fatalf("unexpected entry %v", list[0])
	}
	if target, _ := list[0]["target"].(string); strings.Contains(target, bridgeSecret) {
		t.Fatalf("target leaks secret: %q", target)
	}

	// Get
	resp = do(t, http.MethodGet, f.srv.URL+"/admin/dlq/"+entryID, admin(), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Stats
	resp = do(t, http.MethodGet, f.srv.URL+"/admin/stats", admin(), nil)
	var stats map[string]any
	decodeBody(t, resp, &stats)
	if stats["dlq_size"] != float64(1) {
		t.Fatalf("dlq_size = %v", stats["dlq_size"])
	}

	// Replay
	f.down.setStatus(http.StatusOK)
	resp = do(t, http.MethodPost, f.srv.URL+"/admin/dlq/"+entryID+"/replay", admin(), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("replay: expected 200, got %d", resp.StatusCode)
	}
	var out map[string]any
	decodeBody(t, resp, &out)
	if out["status"] != "delivered" {
		t.Fatalf("replay outcome %v", out)
	}
	reqs := f.down.requests()
	if last := reqs[len(reqs)-1]; last.Body != body || !strings.Contains(last.URL, "internal="+bridgeSecret) {
		t.Fatalf("replay request %+v", last)
	}

	// Replay again
	resp = do(t, http.MethodPost, f.srv.URL+"/admin/dlq/"+entryID+"/replay", admin(), nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("second replay: expected 409, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Purge
	resp = do(t, http.MethodDelete, f.srv.URL+"/admin/dlq", admin(), nil)
	var purged map[string]int64
	decodeBody(t, resp, &purged)
	if purged["purged"] != 1 {
		t.Fatalf("purged = %d, want 1", purged["purged"])
	}
}

func TestAdmin_DLQNotFound(t *testing.T) {
	f := newFixture(t, nil)

	resp := do(t, http.MethodGet, f.srv.URL+"/admin/dlq/not-an-id", admin(), nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = do(t, http.MethodPost, f.srv.URL+"/admin/dlq/dlq_01h455vb4pex5vsknk084sn02q/replay", admin(), nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestAdmin_BulkReplay(t *testing.T) {
	f := newFixture(t, nil)

	resp := do(t, http.MethodPost, f.srv.URL+"/admin/dlq/replay", admin(), map[string]any{"from": "yesterday"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	f.down.setStatus(http.StatusBadRequest)
	for _, ts := range []string{"1.1", "1.2"} {
		r := postSlack(t, f.srv, actionBody(ts, "approve", "t"), signingSecret)
		r.Body.Close()
	}
	f.bridge.Wait()

	f.down.setStatus(http.StatusOK)
	now := time.Now().UTC()
	resp = do(t, http.MethodPost, f.srv.URL+"/admin/dlq/replay", admin(), map[string]any{
		"from": now.Add(-time.Hour).Format(time.RFC3339),
		"to":   now.Add(time.Hour).Format(time.RFC3339),
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var res map[string]int64
	decodeBody(t, resp, &res)
	if res["delivered"] != 2 {
		t.Fatalf("delivered = %d, want 2", res["delivered"])
	}
}

func TestAdmin_DLQDisabled(t *testing.T) {
	f := newFixture(t, func(c *slackrelay.Config) { c.DLQ.Enabled = false })

	resp := do(t, http.MethodGet, f.srv.URL+"/admin/dlq", admin(), nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}
