package auth0

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	// DefaultTokenURL is the tenant endpoint the bot exchanges its client credentials at.
	DefaultTokenURL = "https://discordbuilder.us.auth0.com/oauth/token"
	// DefaultAudience identifies the builder API.
	DefaultAudience = "builder"
)

var defaultHTTPClient = &http.Client{Timeout: 30 * time.Second}

// Fetcher exchanges client credentials for a raw access token.
type Fetcher interface {
	Fetch(ctx context.Context, clientID, clientSecret string) (string, error)
}

// JSONFetcher performs the client-credentials grant with a JSON request body.
type JSONFetcher struct {
	TokenURL   string
	Audience   string
	HTTPClient *http.Client
}

type tokenRequest struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	Audience     string `json:"audience"`
	GrantType    string `json:"grant_type"`
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// Fetch posts the grant and returns the access_token of the response.
// The HTTP status is not inspected: an error body simply has no access_token.
func (f *JSONFetcher) Fetch(ctx context.Context, clientID, clientSecret string) (string, error) {
	payload, err := json.Marshal(tokenRequest{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Audience:     orDefault(f.Audience, DefaultAudience),
		GrantType:    "client_credentials",
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, orDefault(f.TokenURL, DefaultTokenURL), bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	hc := f.HTTPClient
	if hc == nil {
		hc = defaultHTTPClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("decode token response (%s): %w", resp.Status, err)
	}
	if tr.AccessToken == "" {
		if tr.Error != "" {
			return "", fmt.Errorf("%w: %s: %s", ErrNoAccessToken, tr.Error, tr.ErrorDescription)
		}
		return "", fmt.Errorf("%w (%s)", ErrNoAccessToken, resp.Status)
	}
	return tr.AccessToken, nil
}

// FormFetcher performs the same grant through golang.org/x/oauth2 with a
// form-encoded body, for tenants that reject JSON grants.
type FormFetcher struct {
	TokenURL   string
	Audience   string
	HTTPClient *http.Client
}

// Fetch requests a token with client_id/client_secret sent in the form body.
func (f *FormFetcher) Fetch(ctx context.Context, clientID, clientSecret string) (string, error) {
	cfg := &clientcredentials.Config{
		ClientID:       clientID,
		ClientSecret:   clientSecret,
		TokenURL:       orDefault(f.TokenURL, DefaultTokenURL),
		EndpointParams: url.Values{"audience": {orDefault(f.Audience, DefaultAudience)}},
		AuthStyle:      oauth2.AuthStyleInParams,
	}
	hc := f.HTTPClient
	if hc == nil {
		hc = defaultHTTPClient
	}
	tok, err := cfg.Token(context.WithValue(ctx, oauth2.HTTPClient, hc))
	if err != nil {
		var re *oauth2.RetrieveError
		if !errors.As(err, &re) && strings.Contains(err.Error(), oauth2MissingTokenText) {
			return "", fmt.Errorf("%w: %v", ErrNoAccessToken, err)
		}
		return "", fmt.Errorf("token request: %w", err)
	}
	return tok.AccessToken, nil
}

// oauth2MissingTokenText matches the plain error golang.org/x/oauth2 returns
// from internal/token.go for a 2xx reply without access_token:
// "oauth2: server response missing access_token". Recheck on x/oauth2 upgrades.
const oauth2MissingTokenText = "missing access_token"

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
