// Package main is the entry point for the plansync API server.
//
// It loads configuration, opens the database pool, wires the status service
// and the count reconciler, and serves the HTTP API with graceful shutdown on
// SIGINT/SIGTERM. CloudWatch drift metrics are enabled only when a namespace
// is configured.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"

	"plansync/internal/api"
	"plansync/internal/billing"
	"plansync/internal/config"
	"plansync/internal/db"
	"plansync/internal/metrics"
	"plansync/internal/reconcile"
	"plansync/internal/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("plansync API starting",
		"environment", cfg.Environment,
		"port", cfg.Server.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	users := db.NewUserRepository(pool)
	properties := db.NewPropertyRepository(pool)
	plans := db.NewPlanRepository(pool)

	registry := billing.NewStaticPlanRegistry()
	status := billing.NewStatusService(plans, properties, registry, types.RealClock{})

	driftMetrics, err := newDriftMetrics(ctx, cfg, logger)
	if err != nil {
		return err
	}

	reconciler := reconcile.New(reconcile.Config{
		Stores: reconcile.Stores{Users: users, Properties: properties, Plans: plans},
		Tx:     db.NewTxManager(pool),
		Scoped: func(tx db.DBTX) reconcile.Stores {
			return reconcile.Stores{
				Users:      db.NewUserRepository(tx),
				Properties: db.NewPropertyRepository(tx),
				Plans:      db.NewPlanRepository(tx),
			}
		},
		Metrics: driftMetrics,
		Logger:  logger,
	})

	srv, err := api.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	srv.Status = status
	srv.Reconciler = reconciler
	srv.Properties = properties
	srv.Plans = plans
	srv.Authenticator = api.NewBearerAuthenticator(cfg.Auth.AdminTokenHash, nil)
	srv.MountRoutes()

	return serve(ctx, srv, cfg, logger)
}

// newDriftMetrics builds the CloudWatch drift publisher, or the noop one when
// no namespace is configured.
func newDriftMetrics(ctx context.Context, cfg *config.Config, logger *slog.Logger) (reconcile.DriftMetrics, error) {
	if cfg.Metrics.Namespace == "" {
		logger.Info("cloudwatch drift metrics disabled")
		return reconcile.NoopMetrics{}, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Metrics.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("loading AWS configuration: %w", err)
	}
	client := cloudwatch.NewFromConfig(awsCfg)
	return metrics.NewCloudWatchDriftMetrics(client, cfg.Metrics.Namespace, slogAdapter{logger}), nil
}

// serve runs the HTTP server until the context is cancelled or the listener
// fails, then shuts down gracefully within the configured deadline.
func serve(ctx context.Context, srv *api.Server, cfg *config.Config, logger *slog.Logger) error {
	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	logger.Info("server shutdown complete")
	return nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// slogAdapter bridges *slog.Logger to the types.Logger interface.
type slogAdapter struct {
	logger *slog.Logger
}

func (a slogAdapter) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a slogAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }
func (a slogAdapter) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a slogAdapter) With(args ...any) types.Logger { return slogAdapter{a.logger.With(args...)} }
