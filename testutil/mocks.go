package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// TokenResponder produces the status and JSON body for the n-th (1-based) token request.
type TokenResponder func(n int) (int, map[string]interface{})

// MockAuth0Server mocks the tenant's /oauth/token endpoint.
type MockAuth0Server struct {
	*httptest.Server
	// Delay is applied before every response. Set it before issuing requests.
	Delay time.Duration

	calls   atomic.Int32
	mu      sync.Mutex
	respond TokenResponder
	grants  []map[string]string
	tb      testing.TB
}

// NewMockAuth0Server creates a token endpoint that issues a distinct signed
// token per request, each expiring an hour from now.
func NewMockAuth0Server(tb testing.TB) *MockAuth0Server {
	tb.Helper()
	m := &MockAuth0Server{tb: tb}
	m.respond = func(n int) (int, map[string]interface{}) {
		return http.StatusOK, TokenBody(SignedToken(tb, time.Now().Add(time.Hour).Unix(), n))
	}
	m.Server = httptest.NewServer(http.HandlerFunc(m.serveToken))
	tb.Cleanup(m.Close)
	return m
}

func (m *MockAuth0Server) serveToken(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/oauth/token" || r.Method != http.MethodPost {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	grant := decodeGrant(r)
	n := int(m.calls.Add(1))
	m.mu.Lock()
	m.grants = append(m.grants, grant)
	respond := m.respond
	m.mu.Unlock()
	if m.Delay > 0 {
		time.Sleep(m.Delay)
	}
	status, body := respond(n)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body) //nolint:errcheck // test mock response
}

func decodeGrant(r *http.Request) map[string]string {
	grant := map[string]string{}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		_ = json.NewDecoder(r.Body).Decode(&grant) //nolint:errcheck // recorded as-is
		return grant
	}
	if err := r.ParseForm(); err == nil {
		for k := range r.PostForm {
			grant[k] = r.PostForm.Get(k)
		}
	}
	return grant
}

// TokenURL is the mocked token endpoint.
func (m *MockAuth0Server) TokenURL() string { return m.URL + "/oauth/token" }

// Calls returns how many token requests were served.
func (m *MockAuth0Server) Calls() int { return int(m.calls.Load()) }

// Grants returns the decoded grant bodies in arrival order.
func (m *MockAuth0Server) Grants() []map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]map[string]string, len(m.grants))
	copy(out, m.grants)
	return out
}

// RespondWith replaces the response generator.
func (m *MockAuth0Server) RespondWith(fn TokenResponder) {
	m.mu.Lock()
	m.respond = fn
	m.mu.Unlock()
}

// IssueExpiring makes every response a distinct token with the given exp claim.
func (m *MockAuth0Server) IssueExpiring(exp int64) {
	m.RespondWith(func(n int) (int, map[string]interface{}) {
		return http.StatusOK, TokenBody(SignedToken(m.tb, exp, n))
	})
}

// TokenBody is a successful token endpoint response.
func TokenBody(accessToken string) map[string]interface{} {
	return map[string]interface{}{
		"access_token": accessToken,
		"token_type":   "Bearer",
		"expires_in":   3600,
	}
}

// RecordedRequest is one request seen by MockAPIServer.
type RecordedRequest struct {
	Method        string
	Path          string
	Authorization string
	CorrelationID string
	ContentType   string
	Body          string
}

// MockAPIServer mocks the builder REST API. Handlers are keyed by URL path.
type MockAPIServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc

	mu       sync.Mutex
	requests []RecordedRequest
}

// NewMockAPIServer creates a new mock builder API server.
func NewMockAPIServer(tb testing.TB) *MockAPIServer {
	tb.Helper()
	m := &MockAPIServer{
		Handlers: make(map[string]http.HandlerFunc),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		m.mu.Lock()
		m.requests = append(m.requests, RecordedRequest{
			Method:        r.Method,
			Path:          r.URL.RequestURI(),
			Authorization: r.Header.Get("Authorization"),
			CorrelationID: r.Header.Get("X-Correlation-ID"),
			ContentType:   r.Header.Get("Content-Type"),
			Body:          string(body),
		})
		handler, ok := m.Handlers[r.URL.Path]
		m.mu.Unlock()
		if ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	tb.Cleanup(m.Close)
	return m
}

// Requests returns the recorded requests in arrival order.
func (m *MockAPIServer) Requests() []RecordedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RecordedRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// JSON returns a handler writing v with the given status.
func JSON(status int, v interface{}) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // test mock response
	}
}

// RoundTripFunc allows inlining http.RoundTripper implementations.
type RoundTripFunc func(*http.Request) (*http.Response, error)

// RoundTrip calls the underlying function.
func (f RoundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// StaticJSONResponse returns a RoundTripFunc answering every request with body.
func StaticJSONResponse(status int, body string) RoundTripFunc {
	return func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: status,
			Status:     http.StatusText(status),
			Header:     http.Header{"Content-Type": []string{"application/json"}},
			Body:       io.NopCloser(strings.NewReader(body)),
			Request:    req,
		}, nil
	}
}
