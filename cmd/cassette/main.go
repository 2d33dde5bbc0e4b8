package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"cassette/pkg/cli"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	// Bootstrap logger; serve replaces it with one built from the config.
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, cancel := setupGracefulShutdown(logger)
	defer cancel()

	rootCmd := newRootCommand(ctx, logger)
	if err := cli.ExecuteWithLogger(rootCmd, logger); err != nil {
		os.Exit(1)
	}
}

func newRootCommand(ctx context.Context, logger *zap.Logger) *cobra.Command {
	rootCmd := cli.NewRootCommand(ctx, logger, version, commit, buildTime)

	rootCmd.AddCommand(newServeCommand(ctx, logger))
	rootCmd.AddCommand(newRecordingsCommand(logger))
	rootCmd.AddCommand(newKeyCommand(logger))
	rootCmd.AddCommand(newConfigCommand(logger))
	rootCmd.AddCommand(newTokenCommand(logger))
	rootCmd.AddCommand(newVersionCommand(version, commit, buildTime))

	return rootCmd
}

// setupGracefulShutdown cancels the returned context on SIGINT or SIGTERM. A
// second signal exits immediately.
func setupGracefulShutdown(logger *zap.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	c := make(chan os.Signal, 2)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-c
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
		logger.Info("Initiating graceful shutdown...")
		cancel()

		sig = <-c
		logger.Warn("Second signal received, forcing exit", zap.String("signal", sig.String()))
		os.Exit(1)
	}()

	return ctx, cancel
}
