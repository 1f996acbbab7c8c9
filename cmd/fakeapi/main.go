// Command fakeapi serves the in-memory review backend for local development.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/creastat/shopper/config"
	"github.com/creastat/shopper/internal/fakeapi"
	"github.com/creastat/shopper/logging"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.Server.JWTSecret == "" {
		logger.Warn("SHOPPER_SERVER_JWT_SECRET not set, using an insecure development secret")
	}

	backend := fakeapi.New(fakeapi.Config{
		JWTSecret:      cfg.Server.JWTSecret,
		TokenTTL:       cfg.Server.TokenTTL,
		FirstSessionID: cfg.Server.FirstSessionID,
		Logger:         logger.Named("fakeapi"),
		RequestLog:     cfg.Server.RequestLog,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           backend.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("fake review backend listening", zap.String("addr", cfg.Server.Addr))
	if err := runServer(ctx, srv, cfg.Server.ShutdownTimeout); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func runServer(ctx context.Context, srv *http.Server, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
