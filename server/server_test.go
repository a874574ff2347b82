package server

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type fakeTokens struct {
	token      string
	exp        int64
	configured bool
	policy     string
}

func (f *fakeTokens) Snapshot() (string, int64) { return f.token, f.exp }
func (f *fakeTokens) Configured() bool          { return f.configured }
func (f *fakeTokens) PolicyName() string {
	if f.policy == "" {
		return "literal"
	}
	return f.policy
}

func TestHealthzOK(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()

	h := NewMux(&fakeTokens{})
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d, body=%s", rr.Code, rr.Body.String())
	}
	if got := rr.Body.String(); got != "ok" {
		t.Fatalf("expected ok body, got %q", got)
	}
}

func TestCorrelationHeader(t *testing.T) {
	h := NewMux(&fakeTokens{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Correlation-ID", "abc-123")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if got := rr.Header().Get("X-Correlation-ID"); got != "abc-123" {
		t.Errorf("expected reused correlation id, got %q", got)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if got := rr.Header().Get("X-Correlation-ID"); got == "" {
		t.Error("expected generated correlation id")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	rr := httptest.NewRecorder()
	NewMux(&fakeTokens{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "go_goroutines") {
		t.Error("expected default go collector metrics in /metrics output")
	}
}

func TestUnknownRoute(t *testing.T) {
	rr := httptest.NewRecorder()
	NewMux(&fakeTokens{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/unknown", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestStartAndShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- Start(ctx, &fakeTokens{}, "127.0.0.1:0") }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("server returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestStartInvalidAddr(t *testing.T) {
	if err := Start(context.Background(), &fakeTokens{}, "not-an-addr"); err == nil {
		t.Fatal("expected listen error")
	}
}

func TestServeHandlesRequests(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, ln, NewMux(&fakeTokens{})) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != "ok" {
		t.Errorf("unexpected response %d %q", resp.StatusCode, body)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("serve returned error: %v", err)
	}
}
