// Package main implements the shopper CLI: search products, chat about them
// and manage the shortlist against the review backend.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/creastat/shopper/api"
	"github.com/creastat/shopper/config"
	"github.com/creastat/shopper/keystore"
	"github.com/creastat/shopper/logging"
	"github.com/creastat/shopper/workspace"
)

var (
	// configPath is an optional YAML config file
	configPath string
	// outputJSON prints raw JSON instead of text
	outputJSON bool
	version    = "dev"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "shopper",
	Short: "Product reviews, comparisons and chat from the terminal",
	Long: `shopper talks to the product review backend.

Searches accept one product ("Kindle Paperwhite") or a comparison
("Pixel 8 vs iPhone 15", "compare A, B, C"). Without an account the client
uses a stable anonymous identity; sign in to keep a shortlist and history.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "Output results as JSON")
}

// session is an opened workspace plus the resources it depends on.
type session struct {
	ws     *workspace.Workspace
	keys   keystore.Store
	logger *zap.Logger
}

func openSession(ctx context.Context) (*session, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: failed to load .env file: %v\n", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}

	keys, err := config.OpenKeyStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open key store: %w", err)
	}

	ws, err := workspace.Open(ctx, workspace.Config{
		API: api.Config{
			BaseURL: cfg.API.BaseURL,
			Timeout: cfg.API.Timeout,
		},
		Keys:       keys,
		DataMode:   cfg.Chat.DataMode,
		DisableWeb: cfg.Chat.DisableWeb,
		Logger:     logger,
	})
	if err != nil {
		_ = keys.Close()
		return nil, err
	}

	if err := ws.Bootstrap(ctx); err != nil {
		logger.Warn("failed to load lists", zap.Error(err))
	}
	return &session{ws: ws, keys: keys, logger: logger}, nil
}

func (s *session) Close() {
	_ = s.ws.Close()
	_ = s.keys.Close()
	_ = s.logger.Sync()
}

// withSession opens a session for the duration of fn.
func withSession(cmd *cobra.Command, fn func(context.Context, *workspace.Workspace) error) error {
	ctx := cmd.Context()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(ctx, s.ws)
}

func printJSON(raw json.RawMessage) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return printValue(v)
}

func printValue(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
