package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/monitorfeed"
	"github.com/jpalmerr/monitorfeed/config"
)

const (
	shutdownTimeout = 10 * time.Second
)

// newLogger creates a JSON logger for CLI use.
func newLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// serveCmd starts the broadcast server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the broadcast server",
	Long: `Start the monitorfeed broadcast server.

The server will:
  - Load configuration from the specified YAML file
  - Connect to the store and subscribe to the update topic
  - Serve WebSocket, SSE, status, health and metrics endpoints
  - Run the built-in producer if producer.enabled is set

The server runs until interrupted (Ctrl+C), receives SIGTERM, or loses its
update subscription.

Example:
  monitorfeed serve -c config.yaml
  monitorfeed serve --config /etc/monitorfeed/config.yaml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = serveCmd.MarkFlagRequired("config")
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger.Info("config loaded",
		"backend", cfg.Store.Backend,
		"namespace", cfg.Namespace,
		"topic", cfg.Topic,
		"producer_monitors", len(cfg.Producer.Monitors),
	)

	opts, err := config.BuildOptions(cfg)
	if err != nil {
		return fmt.Errorf("failed to build options: %w", err)
	}
	opts = append(opts, monitorfeed.WithLogger(logger))

	feed, err := monitorfeed.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to create feed: %w", err)
	}

	// set up context with signal handling - cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// start feed - blocks until context cancelled
	errChan := make(chan error, 1)
	go func() {
		errChan <- feed.Start(ctx)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		logger.Info("shutdown complete")
		return nil

	case <-ctx.Done():
		// signal received, wait for graceful shutdown with timeout
		select {
		case err := <-errChan:
			if err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			logger.Info("shutdown complete")
			return nil
		case <-time.After(shutdownTimeout):
			logger.Warn("shutdown timed out",
				"timeout", shutdownTimeout.String(),
				"action", "forcing exit",
			)
			return nil
		}
	}
}
