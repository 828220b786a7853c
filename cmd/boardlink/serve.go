package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/boardlink"
	"github.com/jpalmerr/boardlink/config"
	"github.com/spf13/cobra"
)

const (
	shutdownTimeout = 10 * time.Second
)

// newLogger creates a JSON logger for CLI use.
func newLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Poll the board and serve the dashboard",
	Long: `Start polling and serve the boardlink dashboard.

The server will:
  - Load configuration from the specified YAML file
  - Open the serial port or TCP bridge
  - Start polling all configured components
  - Serve the dashboard UI and control API on the configured port

The server runs until interrupted (Ctrl+C) or receives SIGTERM.

Example:
  boardlink serve -c config.yaml
  boardlink serve --config /etc/boardlink/config.yaml --debug`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	serveCmd.Flags().Bool("debug", false, "log every exchange")
	_ = serveCmd.MarkFlagRequired("config")
}

func runServe(cmd *cobra.Command, args []string) error {
	debug, _ := cmd.Flags().GetBool("debug")
	logger := newLogger(debug)

	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger.Info("config loaded",
		"components", len(cfg.Components),
		"grids", len(cfg.Grids),
		"link", cfg.Link.Type,
	)

	components, err := config.BuildComponents(cfg)
	if err != nil {
		return fmt.Errorf("failed to build components: %w", err)
	}

	opts, err := config.Options(cfg)
	if err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}

	// cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	l, err := config.OpenLink(ctx, cfg.Link, logger)
	if err != nil {
		return fmt.Errorf("failed to open link: %w", err)
	}

	opts = append(opts,
		boardlink.WithLink(l),
		boardlink.WithComponents(components...),
		boardlink.WithLogger(logger),
	)

	ctl, err := boardlink.New(opts...)
	if err != nil {
		_ = l.Close()
		return fmt.Errorf("failed to create controller: %w", err)
	}

	logger.Info("starting",
		"port", ctl.Port(),
		"poll_interval", ctl.PollingInterval().String(),
		"policy", ctl.Policy().String(),
	)

	// blocks until ctx is cancelled
	errChan := make(chan error, 1)
	go func() {
		errChan <- ctl.Start(ctx)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("controller error: %w", err)
		}
		logger.Info("shutdown complete")
		return nil

	case <-ctx.Done():
		select {
		case err := <-errChan:
			if err != nil {
				return fmt.Errorf("controller error: %w", err)
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
