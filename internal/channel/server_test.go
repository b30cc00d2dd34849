package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"wabot/internal/agent"
	"wabot/internal/config"
	"wabot/internal/kwap"
	"wabot/internal/memory"
	"wabot/internal/metrics"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// --- Fakes ---

type fakeResponder struct {
	mu    sync.Mutex
	reqs  []agent.Request
	reply *agent.Reply
}

func (f *fakeResponder) Respond(_ context.Context, req agent.Request) agent.Reply {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.reply != nil {
		return *f.reply
	}
	return agent.Reply{Text: "echo: " + req.Message, Intent: "general", Model: "fallback", ResponseTimeMs: 3}
}

func (f *fakeResponder) requests() []agent.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]agent.Request(nil), f.reqs...)
}

type fakeForwarder struct {
	configured bool
	err        error
	sent       []Outbound
}

func (f *fakeForwarder) Configured() bool { return f.configured }

func (f *fakeForwarder) Forward(_ context.Context, msg Outbound) (any, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, msg)
	return map[string]string{"status": "queued"}, nil
}

type fakePensions struct {
	configured bool
	info       *kwap.Pensioner
	err        error
	asked      []string
}

func (f *fakePensions) Configured() bool { return f.configured }

func (f *fakePensions) Inquire(_ context.Context, nokp string) (*kwap.Pensioner, error) {
	f.asked = append(f.asked, nokp)
	return f.info, f.err
}

type fakePurger struct{ purged int }

func (f *fakePurger) Purge() { f.purged++ }

// --- Helpers ---

func testStore(t *testing.T) *memory.Store {
	t.Helper()
	s, err := memory.NewSQLiteStore(filepath.Join(t.TempDir(), "wabot.db"), testLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

type testEnv struct {
	server    *Server
	handler   http.Handler
	responder *fakeResponder
	forwarder *fakeForwarder
	pensions  *fakePensions
	cache     *fakePurger
	store     *memory.Store
	collector *metrics.MetricsCollector
}

func newTestEnv(t *testing.T, mutate func(*ServerConfig)) *testEnv {
	t.Helper()
	env := &testEnv{
		responder: &fakeResponder{},
		forwarder: &fakeForwarder{configured: true},
		pensions:  &fakePensions{configured: true},
		cache:     &fakePurger{},
		store:     testStore(t),
		collector: metrics.NewMetricsCollector("wabot"),
	}
	cfg := ServerConfig{
		Config: config.ServerConfig{
			Environment:    "production",
			AllowedOrigins: []string{"http://localhost:3000"},
			MaxBodyBytes:   1 << 20,
		},
		Pipeline:  env.responder,
		Forwarder: env.forwarder,
		Pensions:  env.pensions,
		Store:     env.store,
		Cache:     env.cache,
		Collector: env.collector,
		Logger:    testLogger(),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	env.server = NewServer(cfg)
	env.handler = env.server.Handler()
	return env
}

func (e *testEnv) do(method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		data, _ := json.Marshal(b)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return out
}

// --- Router ---

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)
	rr := env.do("GET", "/health", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["status"] != "healthy" || body["timestamp"] == "" {
		t.Errorf("unexpected body %v", body)
	}
}

func TestMetricsEndpoint_CountsRequests(t *testing.T) {
	env := newTestEnv(t, nil)
	env.do("GET", "/health", nil)

	rr := env.do("GET", "/metrics", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	out := rr.Body.String()
	if !strings.Contains(out, "wabot_uptime_seconds") {
		t.Errorf("missing uptime in %q", out)
	}
	if !strings.Contains(out, `wabot_http_requests_total{method="GET",route="/health",status="200"} 1`) {
		t.Errorf("missing request counter in %q", out)
	}
}

func TestUnknownRoute(t *testing.T) {
	env := newTestEnv(t, nil)
	if rr := env.do("GET", "/nope", nil); rr.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rr.Code)
	}
}

// --- CORS ---

func TestCORS_AllowsListedOrigin(t *testing.T) {
	env := newTestEnv(t, nil)
	rr := env.do("GET", "/health", nil, "Origin", "http://localhost:3000")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("allow-origin = %q", got)
	}
}

func TestCORS_RejectsUnlistedOrigin(t *testing.T) {
	env := newTestEnv(t, nil)
	rr := env.do("GET", "/health", nil, "Origin", "http://evil.example")
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
	if body := decodeBody(t, rr); body["error"] != "Not allowed by CORS" {
		t.Errorf("unexpected body %v", body)
	}
}

func TestCORS_NoOriginPasses(t *testing.T) {
	env := newTestEnv(t, nil)
	rr := env.do("GET", "/health", nil)
	if rr.Code != http.StatusOK || rr.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Errorf("code=%d allow-origin=%q", rr.Code, rr.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestCORS_DevelopmentAllowsAll(t *testing.T) {
	env := newTestEnv(t, func(c *ServerConfig) { c.Config.Environment = "development" })
	rr := env.do("GET", "/health", nil, "Origin", "http://anything.example")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestCORS_Preflight(t *testing.T) {
	env := newTestEnv(t, nil)
	rr := env.do("OPTIONS", "/api/admin/knowledge/1", nil,
		"Origin", "http://localhost:3000",
		"Access-Control-Request-Method", "DELETE",
		"Access-Control-Request-Headers", "Content-Type, Authorization")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	h := rr.Header()
	if got := h.Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("allow-origin = %q", got)
	}
	if got := h.Get("Access-Control-Allow-Methods"); got != "DELETE" {
		t.Errorf("allow-methods = %q", got)
	}
	if got := h.Get("Access-Control-Allow-Headers"); !strings.Contains(got, "Authorization") {
		t.Errorf("allow-headers = %q", got)
	}
	if h.Get("Access-Control-Allow-Credentials") != "true" || h.Get("Access-Control-Max-Age") != "600" {
		t.Errorf("credentials=%q max-age=%q", h.Get("Access-Control-Allow-Credentials"), h.Get("Access-Control-Max-Age"))
	}
}

func TestCORS_PreflightRejectsUnknownHeader(t *testing.T) {
	env := newTestEnv(t, nil)
	rr := env.do("OPTIONS", "/api/send", nil,
		"Origin", "http://localhost:3000",
		"Access-Control-Request-Method", "POST",
		"Access-Control-Request-Headers", "X-Custom-Thing")
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

// --- Rate limiting ---

func TestRateLimit_RejectsAfterMax(t *testing.T) {
	env := newTestEnv(t, func(c *ServerConfig) {
		c.Config.RateLimit = config.RateLimitConfig{Enabled: true, WindowMs: 60_000, MaxRequests: 2}
	})
	msg := map[string]string{"message": "hi", "from": "60123"}
	for i := 0; i < 2; i++ {
		if rr := env.do("POST", "/webhook/message", msg); rr.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rr.Code)
		}
	}
	rr := env.do("POST", "/webhook/message", msg)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["error"] != "Too many requests from this IP, please try again later." {
		t.Errorf("unexpected body %v", body)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}

	// Health is outside the limited routes.
	if rr := env.do("GET", "/health", nil); rr.Code != http.StatusOK {
		t.Errorf("health limited: %d", rr.Code)
	}
}

// --- Body limit ---

func TestBodyLimit(t *testing.T) {
	env := newTestEnv(t, func(c *ServerConfig) { c.Config.MaxBodyBytes = 64 })
	big := `{"message":"` + strings.Repeat("a", 200) + `","from":"1"}`
	rr := env.do("POST", "/webhook/message", big)
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rr.Code)
	}
}

// --- Admin auth ---

func TestAdminToken(t *testing.T) {
	env := newTestEnv(t, func(c *ServerConfig) { c.Config.AdminToken = "s3cret" })

	if rr := env.do("GET", "/api/admin/database-status", nil); rr.Code != http.StatusUnauthorized {
		t.Errorf("no token: expected 401, got %d", rr.Code)
	}
	if rr := env.do("GET", "/api/admin/database-status", nil, "Authorization", "Bearer wrong"); rr.Code != http.StatusUnauthorized {
		t.Errorf("wrong token: expected 401, got %d", rr.Code)
	}
	if rr := env.do("GET", "/api/admin/database-status", nil, "Authorization", "Bearer s3cret"); rr.Code != http.StatusOK {
		t.Errorf("valid token: expected 200, got %d", rr.Code)
	}
}

func TestAdmin_NoStore(t *testing.T) {
	env := newTestEnv(t, func(c *ServerConfig) { c.Store = nil })
	if rr := env.do("GET", "/api/admin/knowledge", nil); rr.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rr.Code)
	}
}

// --- Run ---

func TestRun_ShutsDownOnCancel(t *testing.T) {
	env := newTestEnv(t, func(c *ServerConfig) {
		c.Config.RateLimit = config.RateLimitConfig{Enabled: true, WindowMs: 1000, MaxRequests: 5}
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- env.server.Run(ctx, "127.0.0.1:0") }()
	cancel()
	if err := <-done; err != nil && !errors.Is(err, http.ErrServerClosed) {
		t.Fatalf("run: %v", err)
	}
}
