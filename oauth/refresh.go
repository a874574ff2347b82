// Package oauth schedules proactive renewal of an in-memory access token. It
// performs jittered checks and refreshes when expiry falls within a configured window.
package oauth

import (
	"context"
	"log/slog"
	"math/rand"
	"time"
)

// TokenHolder exposes the cached token and its expiry in unix seconds.
type TokenHolder interface {
	Snapshot() (token string, expiresAt int64)
}

// RefreshFunc performs the provider-specific refresh and stores the result in the holder.
type RefreshFunc func(ctx context.Context) error

// StartRefresher launches a goroutine that periodically checks the holder's token and refreshes it.
// provider: name used in logs.
// interval: how often to wake up and check.
// window: refresh when remaining lifetime <= window.
func StartRefresher(ctx context.Context, holder TokenHolder, provider string, interval, window time.Duration, fn RefreshFunc) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	// Randomize initial delay to spread load across instances.
	//nolint:gosec // G404: math/rand is sufficient for scheduling jitter, not used for security
	initialJitter := time.Duration(rand.Int63n(int64(interval/2) + 1))
	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(initialJitter):
		}
		for {
			if due(holder, window) {
				refresh(ctx, provider, interval, fn)
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(nextSleep(interval)):
			}
		}
	}()
}

// nextSleep adds per-iteration jitter (±20% of interval) for scheduling diversity.
func nextSleep(interval time.Duration) time.Duration {
	jitterRange := int64(interval / 5)
	if jitterRange <= 0 {
		return interval
	}
	//nolint:gosec // G404: math/rand is sufficient for scheduling jitter, not used for security
	jitter := time.Duration(rand.Int63n(jitterRange*2) - jitterRange)
	d := interval + jitter
	if d < interval/2 {
		d = interval / 2
	}
	return d
}

// due reports whether the token is missing or expires within window.
func due(holder TokenHolder, window time.Duration) bool {
	token, exp := holder.Snapshot()
	if token == "" {
		return true
	}
	return time.Until(time.Unix(exp, 0)) <= window
}

func refresh(ctx context.Context, provider string, interval time.Duration, fn RefreshFunc) {
	// Small pre-refresh jitter to avoid stampedes when many pods see same expiry
	maxPre := int64(5 * time.Second)
	if p := int64(interval / 10); p < maxPre {
		maxPre = p
	}
	if maxPre > 0 {
		//nolint:gosec // G404: math/rand is sufficient for jitter, not used for security
		pre := time.Duration(rand.Int63n(maxPre))
		select {
		case <-ctx.Done():
			return
		case <-time.After(pre):
		}
	}
	ctx2, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := fn(ctx2); err != nil {
		slog.Warn("token refresh failed", slog.String("provider", provider), slog.Any("err", err))
		return
	}
	slog.Info("token refreshed", slog.String("provider", provider))
}
