// Command builder-api issues one authenticated request against the builder API
// using the same Auth0 client credentials as the bot, and prints the JSON reply.
// Replies with status >= 400 exit non-zero.
//
// Usage:
//
//	builder-api [-X METHOD] [-d JSON] PATH
//
// Example:
//
//	builder-api /hello
//	builder-api -X POST -d '{"name":"general"}' /guilds/1/channels
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/discordbuilder/builder/bot/auth0"
	"github.com/discordbuilder/builder/bot/builderapi"
	"github.com/discordbuilder/builder/bot/config"
)

func main() {
	_ = godotenv.Load()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	var method, data string
	flagSet := pflag.NewFlagSet("builder-api", pflag.ContinueOnError)
	flagSet.StringVarP(&method, "request", "X", http.MethodGet, "HTTP method")
	flagSet.StringVarP(&data, "data", "d", "", "JSON request body")
	flagSet.Usage = func() {
		fmt.Fprintln(flagSet.Output(), "usage: builder-api [-X METHOD] [-d JSON] PATH")
		flagSet.PrintDefaults()
	}
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if flagSet.NArg() != 1 {
		return fmt.Errorf("expected exactly one PATH argument, got %d", flagSet.NArg())
	}
	path := flagSet.Arg(0)

	var body any
	if data != "" {
		if !json.Valid([]byte(data)) {
			return fmt.Errorf("-d is not valid JSON")
		}
		body = json.RawMessage(data)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	tokens, err := auth0.NewFromConfig(cfg)
	if err != nil {
		return err
	}
	client := &builderapi.Client{BaseURL: cfg.APIBaseURL, Tokens: tokens, Timeout: cfg.APITimeout, StatusErrors: true}

	var out json.RawMessage
	callErr := client.Do(ctx, strings.ToUpper(method), path, body, &out)
	if len(out) > 0 {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return err
		}
	}
	return callErr
}
