package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nazarhussain/contact-courier/internal/logging"
	"github.com/nazarhussain/contact-courier/internal/relay"
)

func main() {
	if err := run(); err != nil {
		slog.Error("relay failed", "err", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := relay.LoadConfig()
	if err != nil {
		return err
	}

	logger, closer, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer closer.Close()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []relay.Option{relay.WithLogger(logger)}
	if cfg.RedisURL != "" {
		tokens, err := relay.NewRedisTokens(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer tokens.Close()
		opts = append(opts, relay.WithTokenStore(tokens))
	}

	server, err := relay.NewServer(cfg, opts...)
	if err != nil {
		return err
	}

	s := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.ListenAndServe()
	}()
	logger.Info("contact relay listening", "addr", cfg.ListenAddr, "sites", len(cfg.Sites), "default_site", cfg.DefaultSite, "redis", cfg.RedisURL != "")

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "err", err)
	}
	return nil
}
