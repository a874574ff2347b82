// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Token lookup results used as the "result" label of TokenLookups.
const (
	LookupCached       = "cached"
	LookupIssued       = "issued"
	LookupUnconfigured = "unconfigured"
	LookupError        = "error"
)

var (
	once sync.Once

	// Counters
	TokenLookups *prometheus.CounterVec
	APIRequests  *prometheus.CounterVec

	// Histograms (seconds)
	TokenFetchDuration prometheus.Observer
	APIRequestDuration *prometheus.HistogramVec

	// Gauges
	TokenExpiryGauge prometheus.Gauge // unix seconds, 0 when nothing cached
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		TokenLookups = promauto.NewCounterVec(prometheus.CounterOpts{Name: "builder_token_lookups_total", Help: "Access token lookups by result"}, []string{"result"})
		APIRequests = promauto.NewCounterVec(prometheus.CounterOpts{Name: "builder_api_requests_total", Help: "Builder API requests by method and status code"}, []string{"method", "code"})
		TokenFetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "builder_token_fetch_duration_seconds", Help: "Token endpoint round trip seconds", Buckets: prometheus.DefBuckets})
		APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{Name: "builder_api_request_duration_seconds", Help: "Builder API request duration seconds", Buckets: prometheus.DefBuckets}, []string{"method"})
		TokenExpiryGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "builder_token_expiry_timestamp_seconds", Help: "Expiry of the cached access token as a unix timestamp"})
	})
}

// RecordTokenLookup counts one token lookup with the given result label.
func RecordTokenLookup(result string) {
	if TokenLookups != nil {
		TokenLookups.WithLabelValues(result).Inc()
	}
}

// SetTokenExpiry records the expiry of the cached token.
func SetTokenExpiry(unix int64) {
	if TokenExpiryGauge != nil {
		TokenExpiryGauge.Set(float64(unix))
	}
}

// ObserveAPIRequest records one API request. code 0 means no response was received.
func ObserveAPIRequest(method string, code int, d time.Duration) {
	if APIRequests != nil {
		label := "error"
		if code > 0 {
			label = strconv.Itoa(code)
		}
		APIRequests.WithLabelValues(method, label).Inc()
	}
	if APIRequestDuration != nil {
		APIRequestDuration.WithLabelValues(method).Observe(d.Seconds())
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
