package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/edgeee/portfolio/api"
	"github.com/edgeee/portfolio/api/validator"
	"github.com/edgeee/portfolio/auth"
	"github.com/edgeee/portfolio/config"
	"github.com/edgeee/portfolio/events"
	"github.com/edgeee/portfolio/metrics"
	"github.com/edgeee/portfolio/postgres"
	"github.com/edgeee/portfolio/redis"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg)
	},
}

func serve(ctx context.Context, cfg config.Config) error {
	logger := newLogger(cfg)

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pg, err := postgres.Connect(connectCtx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pg.Close()
	logger.Info("Connected to Postgres")

	rd, err := redis.Connect(connectCtx, cfg.RedisAddr, cfg.PostsCacheTTL)
	if err != nil {
		return err
	}
	defer rd.Close()
	logger.Info("Connected to Redis", "addr", cfg.RedisAddr)

	var notifier api.Notifier = events.Discard{}
	if cfg.NATSURL != "" {
		nc, err := events.Connect(cfg.NATSURL)
		if err != nil {
			return err
		}
		defer nc.Drain()
		notifier = events.NewPublisher(nc)
		logger.Info("Connected to NATS", "url", nc.ConnectedUrlRedacted())
	}

	if cfg.AdminPasswordHash == "" {
		logger.Warn("ADMIN_PASSWORD_HASH is not set, admin login is disabled")
	}

	a := &api.API{
		Logger:            logger,
		DB:                pg,
		Cache:             rd,
		Limiter:           rd.Limiter("contact", cfg.ContactLimit, cfg.ContactWindow),
		Notifier:          notifier,
		Val:               validator.New(),
		Metrics:           metrics.New(),
		Tokens:            auth.NewTokens(cfg.JWTSecret, cfg.AdminSessionTTL),
		AdminPasswordHash: cfg.AdminPasswordHash,
		SecureCookies:     cfg.Production(),
		TrustedProxies:    cfg.TrustedProxies,
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           a,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("Listening", "addr", cfg.HTTPAddr, "env", cfg.Env)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
