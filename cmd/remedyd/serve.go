package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	remedyhttp "github.com/halcyonlabs/remedyd/internal/http"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the remedyd HTTP server",
	Long: `Start the remedyd daemon serving the diagnosis pipeline over HTTP.

Endpoints:
  GET  /health                     health check
  GET  /metrics                    Prometheus metrics
  POST /api/v1/diagnose            diagnose an error payload
  POST /api/v1/fixes/{id}/preview  render a fix preview
  POST /api/v1/fixes/{id}/approve  approve a previewed fix
  POST /api/v1/fixes/{id}/execute  execute an approved fix

Examples:
  # Start with defaults
  remedyd serve

  # Use an explicit config file
  remedyd serve --config /etc/remedyd/config.yaml`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	a.logger.Info(ctx, "starting remedyd",
		zap.Int("port", a.cfg.Server.Port),
		zap.String("patterns_version", a.library.Version()),
		zap.Duration("shutdown_timeout", a.cfg.Server.ShutdownTimeout),
	)

	server, err := remedyhttp.NewServer(a.pipeline, a.fixer, a.logger.Underlying(), &remedyhttp.Config{
		Host: "0.0.0.0",
		Port: a.cfg.Server.Port,
	})
	if err != nil {
		return fmt.Errorf("creating http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case sig := <-sigCh:
		a.logger.Info(ctx, "shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}

	shutdownCtx, shutCancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer shutCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}

	return nil
}
