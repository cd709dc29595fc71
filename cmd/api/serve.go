package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-hunt-dashboard/internal/config"
	httpapi "go-hunt-dashboard/internal/http"
	"go-hunt-dashboard/internal/logging"
	"go-hunt-dashboard/internal/tracing"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API until SIGINT or SIGTERM",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx)
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}

	logCloser := logging.Setup(cfg.LogFile, cfg.LogLevel, cfg.LogFormat)
	defer logCloser.Close()

	shutdownTracing := tracing.Setup(cfg.TracingEnabled, "hunt-dashboard")

	srv, err := httpapi.NewServer(cfg)
	if err != nil {
		return fmt.Errorf("initialize server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(log.Fields{
			"version":   version,
			"addr":      cfg.ListenAddr,
			"analytics": cfg.AnalyticsURL,
			"strict":    cfg.TimelineStrict,
		}).Info("starting API server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.WithError(err).Warn("tracing shutdown failed")
	}
	return <-errCh
}
