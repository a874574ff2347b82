// Command bot is the main entrypoint for the builder chat bot process.
// It:
//   - Loads configuration and initializes structured logging.
//   - Builds the process-wide Auth0 token cache and the builder API client.
//   - Pre-warms the access token and probes the API once.
//   - Optionally starts a proactive token refresher.
//   - Exposes a minimal HTTP server with /healthz, /readyz, /token, and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/discordbuilder/builder/bot/auth0"
	"github.com/discordbuilder/builder/bot/builderapi"
	"github.com/discordbuilder/builder/bot/config"
	"github.com/discordbuilder/builder/bot/oauth"
	"github.com/discordbuilder/builder/bot/server"
	"github.com/discordbuilder/builder/bot/telemetry"
)

// version is stamped at build time: -ldflags "-X main.version=v1.2.3".
var version = "dev"

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		// unknown level -> keep info but note once using temporary logger
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("version", version), slog.String("level", lvl.String()), slog.String("format", map[bool]string{true: "json", false: "text"}[format == "json"]))

	// Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.ValidateBotReady(); err != nil {
		slog.Error("bot not configured", slog.Any("err", err))
		os.Exit(1)
	}
	slog.Info("redis configured", slog.String("redis_url", cfg.RedisURL))

	// Metrics / telemetry init
	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing(context.Background(), telemetry.TracingConfig{
		ServiceName:    "builder-bot",
		ServiceVersion: version,
		Endpoint:       cfg.OTLPEndpoint,
	})
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	tokens, err := auth0.NewFromConfig(cfg)
	if err != nil {
		slog.Error("token source setup failed", slog.Any("err", err))
		os.Exit(1)
	}
	api := &builderapi.Client{BaseURL: cfg.APIBaseURL, Tokens: tokens, Timeout: cfg.APITimeout}

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Best-effort: fetch the access token up front so the first command does not wait on Auth0.
	if !cfg.HasClientCredentials() {
		slog.Warn("AUTH0_CLIENT_ID/AUTH0_CLIENT_SECRET not set; builder API calls are unauthenticated")
	} else {
		ctx2, cancel := context.WithTimeout(ctx, 8*time.Second)
		if _, err := tokens.Get(ctx2); err != nil {
			slog.Warn("auth0 token pre-warm failed", slog.Any("err", err))
		}
		cancel()
	}

	if cfg.APIProbePath != "" {
		ctx2, cancel := context.WithTimeout(ctx, cfg.APITimeout)
		var reply any
		if err := api.Get(ctx2, cfg.APIProbePath, &reply); err != nil {
			slog.Warn("builder api probe failed", slog.String("path", cfg.APIProbePath), slog.Any("err", err))
		} else {
			slog.Info("builder api reachable", slog.String("path", cfg.APIProbePath), slog.Any("reply", reply))
		}
		cancel()
	}

	// Proactive token refresher (TOKEN_REFRESH_INTERVAL > 0)
	if cfg.TokenRefreshInterval > 0 && cfg.HasClientCredentials() {
		oauth.StartRefresher(ctx, tokens, "auth0", cfg.TokenRefreshInterval, cfg.TokenRefreshWindow, func(rctx context.Context) error {
			_, err := tokens.Refresh(rctx)
			return err
		})
	}

	// HTTP server (health/readiness/token/metrics)
	go func() {
		if err := server.Start(ctx, tokens, cfg.HTTPAddr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	// Block until shutdown signal
	<-ctx.Done()
	slog.Info("shutting down")
}
