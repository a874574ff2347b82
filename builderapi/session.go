package builderapi

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// session is a single-use HTTP client scoped to one API call. It carries the
// default headers of the call and owns its idle connections.
type session struct {
	base   http.RoundTripper
	client *http.Client
	header http.Header
}

func (c *Client) openSession(token string) *session {
	base := c.Transport
	if base == nil {
		base = defaultBase()
	}
	h := make(http.Header)
	h.Set("Authorization", "Bearer "+token)
	return &session{
		base: base,
		client: &http.Client{
			Transport: otelhttp.NewTransport(base),
			Timeout:   c.Timeout,
		},
		header: h,
	}
}

// defaultBase clones http.DefaultTransport so the session owns its pool. A
// replaced DefaultTransport that is not an *http.Transport is used as is.
func defaultBase() http.RoundTripper {
	if t, ok := http.DefaultTransport.(*http.Transport); ok {
		return t.Clone()
	}
	return http.DefaultTransport
}

func (s *session) do(req *http.Request) (*http.Response, error) {
	for k, v := range s.header {
		if req.Header.Get(k) == "" {
			req.Header[k] = v
		}
	}
	return s.client.Do(req)
}

// close releases the session's connections. It is safe on every exit path.
func (s *session) close() {
	if ci, ok := s.base.(interface{ CloseIdleConnections() }); ok {
		ci.CloseIdleConnections()
	}
}
