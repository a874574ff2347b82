package auth0

import (
	"fmt"

	"github.com/discordbuilder/builder/bot/config"
)

// NewFromConfig builds the process-wide TokenSource from loaded configuration.
func NewFromConfig(cfg *config.Config) (*TokenSource, error) {
	policy, err := PolicyByName(cfg.TokenRefreshPolicy)
	if err != nil {
		return nil, err
	}
	var fetcher Fetcher
	switch cfg.Auth0TokenEncoding {
	case config.EncodingJSON, "":
		fetcher = &JSONFetcher{TokenURL: cfg.Auth0TokenURL, Audience: cfg.Auth0Audience}
	case config.EncodingForm:
		fetcher = &FormFetcher{TokenURL: cfg.Auth0TokenURL, Audience: cfg.Auth0Audience}
	default:
		return nil, fmt.Errorf("unknown token encoding %q", cfg.Auth0TokenEncoding)
	}
	return &TokenSource{
		ClientID:            cfg.Auth0ClientID,
		ClientSecret:        cfg.Auth0ClientSecret,
		Fetcher:             fetcher,
		Policy:              policy,
		DisableSingleFlight: !cfg.TokenSingleFlight,
	}, nil
}
