// Package auth0 fetches and caches the bot's machine-to-machine access token.
//
// A TokenSource is built once per process and shared by every outbound API
// call. It keeps the last issued token and its exp claim in memory and asks
// its RefreshPolicy on each lookup whether the token can be reused.
package auth0

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/discordbuilder/builder/bot/telemetry"
)

var (
	// ErrNoAccessToken is returned when the token endpoint answers without an access_token.
	ErrNoAccessToken = errors.New("auth0: token response has no access_token")
	// ErrMalformedToken is returned when the issued token has no decodable claims payload.
	ErrMalformedToken = errors.New("auth0: malformed access token")
)

// State tells where a Credential came from.
type State int

const (
	// StateUnconfigured means client id or secret is missing; the token is empty on purpose.
	StateUnconfigured State = iota
	// StateCached means the cached token was reused without a network call.
	StateCached
	// StateIssued means the token was fetched during this lookup.
	StateIssued
)

func (s State) String() string {
	switch s {
	case StateCached:
		return "cached"
	case StateIssued:
		return "issued"
	default:
		return "unconfigured"
	}
}

// Credential is the outcome of a token lookup.
type Credential struct {
	Token     string
	ExpiresAt int64 // unix seconds, 0 when unknown
	State     State
}

// Configured reports whether the credential came from configured client credentials.
func (c Credential) Configured() bool { return c.State != StateUnconfigured }

// TokenSource fetches and caches a client-credentials access token.
// The zero value of every exported field selects a default.
type TokenSource struct {
	ClientID     string
	ClientSecret string
	Fetcher      Fetcher          // nil: JSONFetcher against DefaultTokenURL
	Policy       RefreshPolicy    // nil: LiteralPolicy
	Now          func() time.Time // nil: time.Now

	// DisableSingleFlight lets every caller that needs a refresh fetch on
	// its own; the last write to the cache wins.
	DisableSingleFlight bool

	group     singleflight.Group
	mu        sync.RWMutex
	token     string
	expiresAt int64
}

// Get returns the cached token or a fresh one. It returns an empty token and
// a nil error when client credentials are not configured.
func (ts *TokenSource) Get(ctx context.Context) (string, error) {
	c, err := ts.Credential(ctx)
	if err != nil {
		return "", err
	}
	return c.Token, nil
}

// Credential is Get with the origin of the token attached.
func (ts *TokenSource) Credential(ctx context.Context) (Credential, error) {
	ts.mu.RLock()
	token, exp := ts.token, ts.expiresAt
	ts.mu.RUnlock()
	if !ts.policy().NeedsRefresh(token, exp, ts.now().Unix()) {
		telemetry.RecordTokenLookup(telemetry.LookupCached)
		slog.Debug("auth0 token cache hit", slog.Int64("expires_at", exp))
		return Credential{Token: token, ExpiresAt: exp, State: StateCached}, nil
	}
	return ts.Refresh(ctx)
}

// Refresh fetches a new token regardless of the policy and stores it.
// Concurrent refreshes share one request unless DisableSingleFlight is set.
func (ts *TokenSource) Refresh(ctx context.Context) (Credential, error) {
	if ts.DisableSingleFlight {
		return ts.refresh(ctx)
	}
	// The shared fetch must outlive any single caller's cancellation.
	shared := context.WithoutCancel(ctx)
	ch := ts.group.DoChan("token", func() (any, error) {
		return ts.refresh(shared)
	})
	select {
	case <-ctx.Done():
		return Credential{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Credential{}, res.Err
		}
		return res.Val.(Credential), nil
	}
}

func (ts *TokenSource) refresh(ctx context.Context) (Credential, error) {
	ctx, span := telemetry.StartSpan(ctx, "auth0", "auth0.fetch_token")
	defer span.End()

	var (
		exp   int64
		token string
		err   error
	)
	telemetry.TimeFunc(telemetry.TokenFetchDuration, func() {
		exp, token, err = ts.fetch(ctx)
	})
	if err != nil {
		telemetry.RecordTokenLookup(telemetry.LookupError)
		telemetry.RecordError(span, err)
		slog.Warn("auth0 token fetch failed", slog.Any("err", err))
		return Credential{}, err
	}

	ts.mu.Lock()
	first := ts.token == "" && token != ""
	ts.token, ts.expiresAt = token, exp
	ts.mu.Unlock()
	telemetry.SetTokenExpiry(exp)
	telemetry.SetSpanSuccess(span)

	if token == "" {
		telemetry.RecordTokenLookup(telemetry.LookupUnconfigured)
		slog.Debug("auth0 client credentials not configured; continuing without a token")
		return Credential{State: StateUnconfigured}, nil
	}
	telemetry.RecordTokenLookup(telemetry.LookupIssued)
	// Info only for the first token after startup or Reset.
	level := slog.LevelDebug
	if first {
		level = slog.LevelInfo
	}
	slog.Log(ctx, level, "auth0 token issued", slog.String("tail", mask(token)), slog.Time("expires", time.Unix(exp, 0).UTC()))
	return Credential{Token: token, ExpiresAt: exp, State: StateIssued}, nil
}

// fetch returns (0, "", nil) without touching the network when credentials are missing.
func (ts *TokenSource) fetch(ctx context.Context) (int64, string, error) {
	if ts.ClientID == "" || ts.ClientSecret == "" {
		return 0, "", nil
	}
	f := ts.Fetcher
	if f == nil {
		f = &JSONFetcher{}
	}
	token, err := f.Fetch(ctx, ts.ClientID, ts.ClientSecret)
	if err != nil {
		return 0, "", err
	}
	if token == "" {
		return 0, "", ErrNoAccessToken
	}
	exp, err := ParseExpiry(token)
	if err != nil {
		return 0, "", err
	}
	return exp, token, nil
}

// Snapshot returns the cached token and expiry without refreshing.
func (ts *TokenSource) Snapshot() (string, int64) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.token, ts.expiresAt
}

// Reset drops the cached token.
func (ts *TokenSource) Reset() {
	ts.mu.Lock()
	ts.token, ts.expiresAt = "", 0
	ts.mu.Unlock()
}

// Configured reports whether both client id and secret are set.
func (ts *TokenSource) Configured() bool {
	return ts.ClientID != "" && ts.ClientSecret != ""
}

// PolicyName names the refresh policy in effect.
func (ts *TokenSource) PolicyName() string { return ts.policy().Name() }

func (ts *TokenSource) policy() RefreshPolicy {
	if ts.Policy == nil {
		return LiteralPolicy
	}
	return ts.Policy
}

func (ts *TokenSource) now() time.Time {
	if ts.Now == nil {
		return time.Now()
	}
	return ts.Now()
}

func mask(token string) string {
	if len(token) <= 6 {
		return "***"
	}
	return "***" + token[len(token)-6:]
}
