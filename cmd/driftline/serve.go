// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftline Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/driftline/driftline/internal/auth"
	authpg "github.com/driftline/driftline/internal/auth/postgres"
	"github.com/driftline/driftline/internal/config"
	"github.com/driftline/driftline/internal/httpapi"
	"github.com/driftline/driftline/internal/logging"
	"github.com/driftline/driftline/internal/observability"
	"github.com/driftline/driftline/internal/store"
)

const shutdownTimeout = 5 * time.Second

// newServeCmd creates the serve subcommand. Flag names mirror config file
// keys so posflag can layer them directly.
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the auth service",
		Long: `Start the HTTP auth service along with the observability server
and the background session sweeper.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile, cmd.Flags())
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().String("server.addr", "", "HTTP listen address")
	cmd.Flags().String("server.metrics_addr", "", "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().String("database.url", "", "PostgreSQL connection URL")
	cmd.Flags().String("auth.signing_secret", "", "access token signing secret")
	cmd.Flags().String("log.format", "", "log format (json or text)")

	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logging.SetDefault("driftline", version, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("starting auth service",
		"addr", cfg.Server.Addr,
		"metrics_addr", cfg.Server.MetricsAddr,
		"log_format", cfg.Log.Format,
	)

	pool, err := store.Connect(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	// Observability server owns the registry; the auth metrics hang off it.
	var obsServer *observability.Server
	var registry prometheus.Registerer
	if cfg.Server.MetricsAddr != "" {
		obsServer = observability.NewServer(cfg.Server.MetricsAddr, store.Readiness(pool))
		registry = obsServer.Registry()
	} else {
		registry = prometheus.NewRegistry()
	}
	metrics := auth.NewMetrics(registry)

	accounts := authpg.NewAccountRepository(pool)
	sessions := authpg.NewSessionStore(pool)

	hasher, err := auth.NewBcryptHasher(cfg.Auth.BcryptCost)
	if err != nil {
		return err
	}
	tokens, err := auth.NewTokenManager(auth.TokenConfig{
		SigningSecret: []byte(cfg.Auth.SigningSecret),
		AccessTTL:     cfg.Auth.AccessTokenTTL,
		Issuer:        cfg.Auth.Issuer,
		Audience:      cfg.Auth.Audience,
	})
	if err != nil {
		return err
	}
	rotator, err := auth.NewRotator(sessions, accounts, tokens,
		cfg.Auth.RefreshTokenTTL, cfg.Database.Timeout, metrics)
	if err != nil {
		return err
	}
	gateway, err := auth.NewGateway(accounts, sessions, hasher, tokens, rotator,
		auth.GatewayConfig{
			RefreshTTL:   cfg.Auth.RefreshTokenTTL,
			StoreTimeout: cfg.Database.Timeout,
		}, metrics)
	if err != nil {
		return err
	}

	sweeper, err := auth.NewSweeper(sessions,
		cfg.Auth.PurgeInterval, cfg.Auth.PurgeRetention, cfg.Database.Timeout, metrics)
	if err != nil {
		return err
	}
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		sweeper.Run(ctx)
	}()

	if obsServer != nil {
		if _, err := obsServer.Start(); err != nil {
			return err
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if stopErr := obsServer.Stop(stopCtx); stopErr != nil {
				slog.Warn("error stopping observability server", "error", stopErr)
			}
		}()
	}

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           httpapi.NewHandler(gateway).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	slog.Info("auth service ready", "addr", cfg.Server.Addr)

	select {
	case err := <-serveErr:
		if err != nil {
			return oops.Code("SERVER_FAILED").With("addr", cfg.Server.Addr).Wrap(err)
		}
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("error shutting down HTTP server", "error", err)
	}
	<-sweepDone

	slog.Info("shutdown complete")
	return nil
}
