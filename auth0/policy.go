package auth0

import (
	"fmt"
	"strings"
)

// RefreshLeeway is the slack, in seconds, both built-in policies compare the expiry against.
const RefreshLeeway int64 = 60

// RefreshPolicy decides whether a cached token has to be fetched again.
// expiresAt and now are unix seconds.
type RefreshPolicy interface {
	Name() string
	NeedsRefresh(token string, expiresAt, now int64) bool
}

var (
	// LiteralPolicy refreshes when the token is empty or expiresAt > now-60.
	// For any token whose expiry is still ahead this is true, so in practice
	// it fetches on every call until the token expired over a minute ago.
	// It is the default.
	LiteralPolicy RefreshPolicy = literalPolicy{}

	// LeewayPolicy refreshes when the token is empty or expires within the
	// next 60 seconds (or already has).
	LeewayPolicy RefreshPolicy = leewayPolicy{}
)

type literalPolicy struct{}

func (literalPolicy) Name() string { return "literal" }

func (literalPolicy) NeedsRefresh(token string, expiresAt, now int64) bool {
	return token == "" || expiresAt > now-RefreshLeeway
}

type leewayPolicy struct{}

func (leewayPolicy) Name() string { return "leeway" }

func (leewayPolicy) NeedsRefresh(token string, expiresAt, now int64) bool {
	return token == "" || expiresAt <= now+RefreshLeeway
}

// PolicyByName returns the policy registered under name. An empty name selects LiteralPolicy.
func PolicyByName(name string) (RefreshPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "literal":
		return LiteralPolicy, nil
	case "leeway":
		return LeewayPolicy, nil
	default:
		return nil, fmt.Errorf("unknown token refresh policy %q (want literal or leeway)", name)
	}
}
