// Package builderapi is a thin JSON client for the builder REST API.
// Every call is authorized with a bearer token taken from a TokenGetter.
package builderapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/discordbuilder/builder/bot/telemetry"
)

// DefaultBaseURL is used when Client.BaseURL is empty.
const DefaultBaseURL = "http://localhost:3001"

// TokenGetter supplies the bearer token for a request.
type TokenGetter interface {
	Get(ctx context.Context) (string, error)
}

// Client issues authenticated requests against BaseURL.
type Client struct {
	BaseURL string
	Tokens  TokenGetter
	// Transport is the base round tripper of every per-call session.
	// nil: a fresh clone of http.DefaultTransport per call.
	Transport http.RoundTripper
	Timeout   time.Duration
	// StatusErrors fails responses with status >= 400 with *StatusError even
	// when their body is valid JSON. Off by default: the decoded body is the result.
	StatusErrors bool
}

// StatusError reports a response with status >= 400 that either was not JSON
// or was rejected because Client.StatusErrors is set. A JSON error body is
// still decoded into the caller's out value; Body keeps the raw bytes.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       []byte
	// Err is the decode failure, if any.
	Err error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("builder api %s %s: status %d: %s", e.Method, e.URL, e.StatusCode, string(e.Body))
}

func (e *StatusError) Unwrap() error { return e.Err }

// Get issues a GET to path and decodes the JSON response into out.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

// Put issues a PUT with body encoded as JSON.
func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPut, path, body, out)
}

// Post issues a POST with body encoded as JSON.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPost, path, body, out)
}

// Delete issues a DELETE to path.
func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodDelete, path, nil, out)
}

// Do performs one authenticated request. path is appended to the base URL
// as-is. A nil body sends no body. out may be nil to discard the response;
// an empty response body leaves out untouched. A JSON reply is decoded and
// returned without error whatever its status unless StatusErrors is set.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) (err error) {
	if telemetry.GetCorrelation(ctx) == "" {
		ctx = telemetry.WithCorrelation(ctx, uuid.New().String())
	}
	url := c.baseURL() + path
	ctx, span := telemetry.StartSpan(ctx, "builderapi", method,
		attribute.String("http.method", method),
		attribute.String("http.url", url),
	)
	defer span.End()

	start := time.Now()
	code := 0
	defer func() {
		d := time.Since(start)
		telemetry.ObserveAPIRequest(method, code, d)
		logger := telemetry.LoggerWithCorr(ctx)
		if err != nil {
			telemetry.RecordError(span, err)
			logger.Warn("builder api request failed", slog.String("method", method), slog.String("path", path), slog.Int("status", code), slog.Any("err", err))
			return
		}
		if code >= http.StatusBadRequest {
			logger.Warn("builder api error status", slog.String("method", method), slog.String("path", path), slog.Int("status", code))
			return
		}
		logger.Debug("builder api request", slog.String("method", method), slog.String("path", path), slog.Int("status", code), slog.Duration("duration", d))
	}()

	token, err := c.Tokens.Get(ctx)
	if err != nil {
		return fmt.Errorf("builder api token: %w", err)
	}

	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Correlation-ID", telemetry.GetCorrelation(ctx))

	sess := c.openSession(token)
	defer sess.close()

	resp, err := sess.do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	code = resp.StatusCode
	telemetry.SetSpanHTTPStatus(span, code)
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s %s response: %w", method, path, err)
	}
	decodeErr := decodeJSON(resp.Header.Get("Content-Type"), raw, out)
	if code >= http.StatusBadRequest && (c.StatusErrors || decodeErr != nil) {
		return &StatusError{Method: method, URL: url, StatusCode: code, Body: raw, Err: decodeErr}
	}
	if decodeErr != nil {
		return fmt.Errorf("builder api %s %s (%s): %w", method, path, resp.Status, decodeErr)
	}
	return nil
}

func (c *Client) baseURL() string {
	if c.BaseURL == "" {
		return DefaultBaseURL
	}
	return c.BaseURL
}

// ErrNotJSON is returned when a non-empty response is not declared as JSON.
var ErrNotJSON = errors.New("response is not JSON")

// decodeJSON treats an empty body as nothing to decode. Anything else must be
// declared and well-formed JSON.
func decodeJSON(contentType string, raw []byte, out any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if !isJSONContentType(contentType) {
		return fmt.Errorf("%w: content type %q", ErrNotJSON, contentType)
	}
	if out == nil {
		if !json.Valid(raw) {
			return fmt.Errorf("%w: malformed body", ErrNotJSON)
		}
		return nil
	}
	return json.Unmarshal(raw, out)
}

func isJSONContentType(ct string) bool {
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return false
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}
