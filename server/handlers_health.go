package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
)

// HandleHealthz responds to liveness probe requests.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz responds to readiness probe requests with credential checks.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := []struct {
		name string
		fn   func() error
	}{
		{"credentials", func() error {
			if !h.tokens.Configured() {
				return errors.New("missing AUTH0_CLIENT_ID or AUTH0_CLIENT_SECRET")
			}
			return nil
		}},
		{"token", func() error {
			if token, _ := h.tokens.Snapshot(); token == "" {
				return errors.New("no access token cached")
			}
			return nil
		}},
	}

	for _, check := range checks {
		if err := check.fn(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":       "not_ready",
				"failed_check": check.name,
				"error":        err.Error(),
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// tokenStatusResponse never carries the token itself.
type tokenStatusResponse struct {
	Configured bool   `json:"configured"`
	Cached     bool   `json:"cached"`
	ExpiresAt  int64  `json:"expires_at"`
	ExpiresIn  int64  `json:"expires_in"`
	Policy     string `json:"policy"`
}

// HandleTokenStatus reports the state of the credential cache.
func (h *Handlers) HandleTokenStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	token, exp := h.tokens.Snapshot()
	resp := tokenStatusResponse{
		Configured: h.tokens.Configured(),
		Cached:     token != "",
		ExpiresAt:  exp,
		Policy:     h.tokens.PolicyName(),
	}
	if exp > 0 {
		resp.ExpiresIn = exp - h.now().Unix()
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", slog.Any("err", err))
	}
}
