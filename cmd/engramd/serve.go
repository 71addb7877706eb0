package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/engramlabs/engramd/internal/httpapi"
	"github.com/engramlabs/engramd/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the engramd HTTP daemon",
	Long: `Start the engramd daemon: opens the metadata and vector stores,
wires the memory, channel, and admin services, and serves the REST API.

Examples:
  # Start with defaults (localhost:8765)
  engramd serve

  # Start with an explicit config file
  engramd serve --config /etc/engramd/config.yaml

  # Override a single setting via environment
  ENGRAMD_SERVER_PORT=9090 engramd serve`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	telCfg := telemetry.NewDefaultConfig()
	telCfg.Enabled = a.cfg.Telemetry.Enabled
	telCfg.Endpoint = a.cfg.Telemetry.Endpoint
	telCfg.Protocol = a.cfg.Telemetry.Protocol
	telCfg.Insecure = a.cfg.Telemetry.Insecure
	telCfg.Sampling.Rate = a.cfg.Telemetry.Sampling
	telCfg.ServiceVersion = version

	tel, err := telemetry.New(ctx, telCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			a.logger.Warn(context.Background(), "telemetry shutdown failed", zap.Error(err))
		}
	}()

	a.logger.Info(ctx, "starting engramd",
		zap.String("version", version),
		zap.String("host", a.cfg.Server.Host),
		zap.Int("port", a.cfg.Server.Port),
		zap.String("vector_provider", a.cfg.VectorStore.Provider),
		zap.Bool("rate_limit", a.cfg.RateLimit.Enabled))

	srv, err := httpapi.NewServer(a.registry, a.logger, &httpapi.Config{
		Host:        a.cfg.Server.Host,
		Port:        a.cfg.Server.Port,
		Version:     version,
		AdminToken:  a.cfg.Server.AdminToken.Value(),
		CORSOrigins: a.cfg.Server.CORSOrigins,
	})
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout.Duration())
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	a.logger.Info(context.Background(), "shutdown complete")
	return nil
}
