package auth0

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/discordbuilder/builder/bot/testutil"
)

var fixedNow = time.Unix(1_700_000_000, 0)

func clockAt(t time.Time) func() time.Time { return func() time.Time { return t } }

// stubFetcher issues "tok-<n>" style tokens; if release is non-nil every
// call blocks until it is closed.
type stubFetcher struct {
	calls   atomic.Int32
	exp     int64
	release chan struct{}
	err     error
}

func (f *stubFetcher) Fetch(ctx context.Context, clientID, clientSecret string) (string, error) {
	n := f.calls.Add(1)
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return "", f.err
	}
	return testutil.RawToken(fmt.Sprintf(`{"exp":%d,"n":%d}`, f.exp, n)), nil
}

func newMockedSource(t *testing.T, server *testutil.MockAuth0Server) *TokenSource {
	t.Helper()
	return &TokenSource{
		ClientID:     "test-client",
		ClientSecret: "test-secret",
		Fetcher:      &JSONFetcher{TokenURL: server.TokenURL()},
		Now:          clockAt(fixedNow),
	}
}

func TestTokenSource_LiteralPolicyRefetchesFutureExpiry(t *testing.T) {
	server := testutil.NewMockAuth0Server(t)
	server.IssueExpiring(fixedNow.Add(time.Hour).Unix())
	ts := newMockedSource(t, server)
	ctx := context.Background()

	tok1, err := ts.Get(ctx)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	tok2, err := ts.Get(ctx)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	// expiresAt > now-60 holds for a future expiry, so every call fetches.
	if server.Calls() != 2 {
		t.Errorf("expected 2 token requests, got %d", server.Calls())
	}
	if tok1 == tok2 {
		t.Errorf("expected a fresh token on the second call, got the same %q", tok2)
	}
	if cached, _ := ts.Snapshot(); cached != tok2 {
		t.Errorf("cache holds %q, want latest token %q", cached, tok2)
	}
}

func TestTokenSource_LiteralPolicyReusesLongExpiredToken(t *testing.T) {
	tests := []struct {
		name      string
		expiresAt int64
		wantCalls int
	}{
		{"expired two minutes ago", fixedNow.Unix() - 120, 1},
		{"expired exactly a minute ago", fixedNow.Unix() - 60, 1},
		{"expired 59 seconds ago", fixedNow.Unix() - 59, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := testutil.NewMockAuth0Server(t)
			server.IssueExpiring(tt.expiresAt)
			ts := newMockedSource(t, server)
			ctx := context.Background()

			first, err := ts.Credential(ctx)
			if err != nil {
				t.Fatalf("Credential() error = %v", err)
			}
			if first.State != StateIssued {
				t.Errorf("first state = %s, want issued", first.State)
			}
			second, err := ts.Credential(ctx)
			if err != nil {
				t.Fatalf("Credential() error = %v", err)
			}
			if server.Calls() != tt.wantCalls {
				t.Errorf("token requests = %d, want %d", server.Calls(), tt.wantCalls)
			}
			if tt.wantCalls == 1 {
				if second.State != StateCached || second.Token != first.Token {
					t.Errorf("second lookup = %+v, want cached %q", second, first.Token)
				}
				if second.ExpiresAt != tt.expiresAt {
					t.Errorf("cached expiry = %d, want %d", second.ExpiresAt, tt.expiresAt)
				}
			}
		})
	}
}

func TestTokenSource_LeewayPolicyCaches(t *testing.T) {
	server := testutil.NewMockAuth0Server(t)
	server.IssueExpiring(fixedNow.Add(time.Hour).Unix())
	ts := newMockedSource(t, server)
	ts.Policy = LeewayPolicy
	ctx := context.Background()

	tok1, err := ts.Get(ctx)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	tok2, err := ts.Get(ctx)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if tok1 != tok2 {
		t.Errorf("cached token = %s, want %s", tok2, tok1)
	}
	if server.Calls() != 1 {
		t.Errorf("expected 1 token request, got %d", server.Calls())
	}

	// Move the clock into the last minute before expiry.
	ts.Now = clockAt(fixedNow.Add(59*time.Minute + 30*time.Second))
	tok3, err := ts.Get(ctx)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if tok3 == tok1 || server.Calls() != 2 {
		t.Errorf("expected a refresh near expiry, calls=%d", server.Calls())
	}
	if ts.PolicyName() != "leeway" {
		t.Errorf("PolicyName() = %s, want leeway", ts.PolicyName())
	}
}

func TestTokenSource_Unconfigured(t *testing.T) {
	tests := []struct {
		name   string
		id     string
		secret string
	}{
		{"both missing", "", ""},
		{"secret missing", "client", ""},
		{"id missing", "", "secret"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := testutil.NewMockAuth0Server(t)
			ts := &TokenSource{
				ClientID:     tt.id,
				ClientSecret: tt.secret,
				Fetcher:      &JSONFetcher{TokenURL: server.TokenURL()},
			}

			cred, err := ts.Credential(context.Background())
			if err != nil {
				t.Fatalf("Credential() error = %v, want nil", err)
			}
			if cred.Token != "" || cred.ExpiresAt != 0 {
				t.Errorf("Credential() = %+v, want empty", cred)
			}
			if cred.Configured() || cred.State != StateUnconfigured {
				t.Errorf("state = %s, want unconfigured", cred.State)
			}
			tok, err := ts.Get(context.Background())
			if err != nil || tok != "" {
				t.Errorf("Get() = %q, %v; want empty, nil", tok, err)
			}
			if server.Calls() != 0 {
				t.Errorf("expected no token requests, got %d", server.Calls())
			}
			if ts.Configured() {
				t.Error("Configured() = true, want false")
			}
		})
	}
}

func TestTokenSource_MissingAccessTokenLeavesCache(t *testing.T) {
	server := testutil.NewMockAuth0Server(t)
	server.IssueExpiring(fixedNow.Add(time.Hour).Unix())
	ts := newMockedSource(t, server)
	ctx := context.Background()

	tok, err := ts.Get(ctx)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	_, expBefore := ts.Snapshot()

	server.RespondWith(func(int) (int, map[string]interface{}) {
		return http.StatusOK, map[string]interface{}{"token_type": "Bearer"}
	})

	_, err = ts.Get(ctx)
	if !errors.Is(err, ErrNoAccessToken) {
		t.Fatalf("Get() error = %v, want ErrNoAccessToken", err)
	}
	cached, exp := ts.Snapshot()
	if cached != tok || exp != expBefore {
		t.Errorf("cache = (%q, %d), want unchanged (%q, %d)", cached, exp, tok, expBefore)
	}
}

func TestTokenSource_MalformedTokenLeavesCache(t *testing.T) {
	server := testutil.NewMockAuth0Server(t)
	server.RespondWith(func(int) (int, map[string]interface{}) {
		return http.StatusOK, testutil.TokenBody("not-a-jwt")
	})
	ts := newMockedSource(t, server)

	_, err := ts.Get(context.Background())
	if !errors.Is(err, ErrMalformedToken) {
		t.Fatalf("Get() error = %v, want ErrMalformedToken", err)
	}
	if tok, exp := ts.Snapshot(); tok != "" || exp != 0 {
		t.Errorf("cache = (%q, %d), want empty", tok, exp)
	}
}

func TestTokenSource_ExpiryFromClaims(t *testing.T) {
	f := &stubFetcher{exp: 1700000000}
	ts := &TokenSource{ClientID: "id", ClientSecret: "secret", Fetcher: f, Now: clockAt(fixedNow)}

	cred, err := ts.Credential(context.Background())
	if err != nil {
		t.Fatalf("Credential() error = %v", err)
	}
	if cred.ExpiresAt != 1700000000 {
		t.Errorf("ExpiresAt = %d, want 1700000000", cred.ExpiresAt)
	}
}

func TestTokenSource_ResetAndRefresh(t *testing.T) {
	f := &stubFetcher{exp: fixedNow.Unix() - 3600}
	ts := &TokenSource{ClientID: "id", ClientSecret: "secret", Fetcher: f, Now: clockAt(fixedNow)}
	ctx := context.Background()

	if _, err := ts.Get(ctx); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if _, err := ts.Get(ctx); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if f.calls.Load() != 1 {
		t.Fatalf("expected cached second lookup, calls=%d", f.calls.Load())
	}

	cred, err := ts.Refresh(ctx)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if cred.State != StateIssued || f.calls.Load() != 2 {
		t.Errorf("Refresh() = %+v with %d calls, want issued with 2 calls", cred, f.calls.Load())
	}

	ts.Reset()
	if tok, exp := ts.Snapshot(); tok != "" || exp != 0 {
		t.Errorf("after Reset cache = (%q, %d), want empty", tok, exp)
	}
	if _, err := ts.Get(ctx); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if f.calls.Load() != 3 {
		t.Errorf("expected a fetch after Reset, calls=%d", f.calls.Load())
	}
}

func TestTokenSource_FetchErrorPropagates(t *testing.T) {
	boom := errors.New("connection refused")
	ts := &TokenSource{ClientID: "id", ClientSecret: "secret", Fetcher: &stubFetcher{err: boom}}

	if _, err := ts.Get(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("Get() error = %v, want %v", err, boom)
	}
}

func TestTokenSource_SingleFlight(t *testing.T) {
	f := &stubFetcher{exp: fixedNow.Add(time.Hour).Unix(), release: make(chan struct{})}
	ts := &TokenSource{ClientID: "id", ClientSecret: "secret", Fetcher: f, Now: clockAt(fixedNow)}
	ctx := context.Background()

	const callers = 8
	var wg sync.WaitGroup
	tokens := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = ts.Get(ctx)
		}(i)
	}

	// Give every caller time to join the in-flight fetch.
	time.Sleep(100 * time.Millisecond)
	close(f.release)
	wg.Wait()

	for i := range tokens {
		if errs[i] != nil {
			t.Fatalf("caller %d error = %v", i, errs[i])
		}
		if tokens[i] != tokens[0] {
			t.Errorf("caller %d token = %s, want shared %s", i, tokens[i], tokens[0])
		}
	}
	if f.calls.Load() != 1 {
		t.Errorf("expected 1 fetch for concurrent callers, got %d", f.calls.Load())
	}
}

func TestTokenSource_SingleFlightCallerCancellation(t *testing.T) {
	f := &stubFetcher{exp: fixedNow.Add(time.Hour).Unix(), release: make(chan struct{})}
	ts := &TokenSource{ClientID: "id", ClientSecret: "secret", Fetcher: f, Now: clockAt(fixedNow)}

	cancelled, cancel := context.WithCancel(context.Background())
	cancelledErr := make(chan error, 1)
	go func() {
		_, err := ts.Get(cancelled)
		cancelledErr <- err
	}()
	time.Sleep(50 * time.Millisecond)

	other := make(chan string, 1)
	go func() {
		tok, err := ts.Get(context.Background())
		if err != nil {
			t.Errorf("waiting caller error = %v", err)
		}
		other <- tok
	}()
	time.Sleep(50 * time.Millisecond)

	cancel()
	select {
	case err := <-cancelledErr:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("cancelled caller error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled caller did not return")
	}

	close(f.release)
	select {
	case tok := <-other:
		if tok == "" {
			t.Error("waiting caller got empty token")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waiting caller did not return")
	}
	if cached, _ := ts.Snapshot(); cached == "" {
		t.Error("shared fetch did not populate the cache")
	}
}

func TestTokenSource_WithoutSingleFlightLastWriteWins(t *testing.T) {
	server := testutil.NewMockAuth0Server(t)
	server.IssueExpiring(fixedNow.Add(time.Hour).Unix())
	server.Delay = 50 * time.Millisecond
	ts := newMockedSource(t, server)
	ts.DisableSingleFlight = true
	ctx := context.Background()

	const callers = 5
	var wg sync.WaitGroup
	results := make(chan string, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := ts.Get(ctx)
			if err != nil {
				t.Errorf("Get() error = %v", err)
				return
			}
			results <- tok
		}()
	}
	wg.Wait()
	close(results)

	seen := map[string]bool{}
	for tok := range results {
		seen[tok] = true
	}
	if server.Calls() != callers {
		t.Errorf("expected %d independent fetches, got %d", callers, server.Calls())
	}
	// Which fetch wrote last is not deterministic; it must be one of them.
	cached, _ := ts.Snapshot()
	if !seen[cached] {
		t.Errorf("cached token %q is not one of the fetched tokens", cached)
	}
}

func TestStateString(t *testing.T) {
	for state, want := range map[State]string{
		StateUnconfigured: "unconfigured",
		StateCached:       "cached",
		StateIssued:       "issued",
	} {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %s, want %s", state, got, want)
		}
	}
}

func TestTokenSource_InfoLogOnlyForFirstToken(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))
	t.Cleanup(func() { slog.SetDefault(prev) })

	server := testutil.NewMockAuth0Server(t)
	server.IssueExpiring(fixedNow.Add(time.Hour).Unix())
	ts := newMockedSource(t, server)

	for i := 0; i < 3; i++ {
		if _, err := ts.Get(context.Background()); err != nil {
			t.Fatalf("Get() error = %v", err)
		}
	}
	if server.Calls() != 3 {
		t.Fatalf("expected 3 token requests under the literal policy, got %d", server.Calls())
	}
	if n := strings.Count(buf.String(), "auth0 token issued"); n != 1 {
		t.Errorf("info lines for issued tokens = %d, want 1\n%s", n, buf.String())
	}

	ts.Reset()
	if _, err := ts.Get(context.Background()); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if n := strings.Count(buf.String(), "auth0 token issued"); n != 2 {
		t.Errorf("expected an info line again after Reset, got %d", n)
	}
}
