// Package config loads environment variables and provides a typed Config used across the bot.
// It applies defaults so the binary can run locally with minimal setup.
// For the required bot token, use ValidateBotReady.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Token request encodings.
const (
	EncodingJSON = "json"
	EncodingForm = "form"
)

// Token refresh policies.
const (
	PolicyLiteral = "literal"
	PolicyLeeway  = "leeway"
)

const (
	DefaultAPIBaseURL   = "http://localhost:3001"
	DefaultAPITimeout   = 30 * time.Second
	DefaultAPIProbePath = "/hello"
	DefaultTokenURL     = "https://discordbuilder.us.auth0.com/oauth/token"
	DefaultAudience     = "builder"
	DefaultRefreshWin   = 5 * time.Minute
	DefaultHTTPAddr     = ":8080"
)

type Config struct {
	// Chat platform
	BotToken string
	RedisURL string

	// Builder API
	APIBaseURL   string
	APITimeout   time.Duration
	APIProbePath string

	// Auth0 client credentials
	Auth0ClientID      string
	Auth0ClientSecret  string
	Auth0TokenURL      string
	Auth0Audience      string
	Auth0TokenEncoding string

	// Token cache
	TokenRefreshPolicy   string
	TokenSingleFlight    bool
	TokenRefreshInterval time.Duration
	TokenRefreshWindow   time.Duration

	// Ops
	HTTPAddr     string
	OTLPEndpoint string
}

// Load reads environment variables and applies defaults. It doesn't fail if the bot token or
// client credentials are missing; use ValidateBotReady() before connecting to the chat platform.
// Missing client credentials leave API calls unauthenticated.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.BotToken = os.Getenv("BOT_TOKEN")
	cfg.RedisURL = os.Getenv("REDIS_URL")

	// API
	cfg.APIBaseURL = getenv("API_BASE_URL", DefaultAPIBaseURL)
	cfg.APIProbePath = DefaultAPIProbePath
	if v, ok := os.LookupEnv("API_PROBE_PATH"); ok {
		// explicitly empty disables the startup probe
		cfg.APIProbePath = v
	}
	var err error
	if cfg.APITimeout, err = durationEnv("API_TIMEOUT", DefaultAPITimeout); err != nil {
		return nil, err
	}

	// Auth0
	cfg.Auth0ClientID = os.Getenv("AUTH0_CLIENT_ID")
	cfg.Auth0ClientSecret = os.Getenv("AUTH0_CLIENT_SECRET")
	cfg.Auth0TokenURL = getenv("AUTH0_TOKEN_URL", DefaultTokenURL)
	cfg.Auth0Audience = getenv("AUTH0_AUDIENCE", DefaultAudience)
	cfg.Auth0TokenEncoding = getenv("AUTH0_TOKEN_ENCODING", EncodingJSON)
	switch cfg.Auth0TokenEncoding {
	case EncodingJSON, EncodingForm:
	default:
		return nil, fmt.Errorf("invalid AUTH0_TOKEN_ENCODING %q (want %s or %s)", cfg.Auth0TokenEncoding, EncodingJSON, EncodingForm)
	}

	// Token cache
	cfg.TokenRefreshPolicy = getenv("TOKEN_REFRESH_POLICY", PolicyLiteral)
	switch cfg.TokenRefreshPolicy {
	case PolicyLiteral, PolicyLeeway:
	default:
		return nil, fmt.Errorf("invalid TOKEN_REFRESH_POLICY %q (want %s or %s)", cfg.TokenRefreshPolicy, PolicyLiteral, PolicyLeeway)
	}
	cfg.TokenSingleFlight = true
	if v := os.Getenv("TOKEN_SINGLE_FLIGHT"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid TOKEN_SINGLE_FLIGHT: %w", err)
		}
		cfg.TokenSingleFlight = b
	}
	if cfg.TokenRefreshInterval, err = durationEnv("TOKEN_REFRESH_INTERVAL", 0); err != nil {
		return nil, err
	}
	if cfg.TokenRefreshWindow, err = durationEnv("TOKEN_REFRESH_WINDOW", DefaultRefreshWin); err != nil {
		return nil, err
	}

	cfg.HTTPAddr = getenv("HTTP_ADDR", DefaultHTTPAddr)
	cfg.OTLPEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")

	return cfg, nil
}

// ValidateBotReady checks the fields required to connect the bot to the chat platform.
func (c *Config) ValidateBotReady() error {
	if c.BotToken == "" {
		return fmt.Errorf("missing bot env: require BOT_TOKEN")
	}
	return nil
}

// HasClientCredentials reports whether both Auth0 client id and secret are set.
func (c *Config) HasClientCredentials() bool {
	return c.Auth0ClientID != "" && c.Auth0ClientSecret != ""
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s: negative duration %s", key, v)
	}
	return d, nil
}
