package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"cassette/pkg/config"
)

// NewRootCommand creates the root command for the cassette CLI
func NewRootCommand(ctx context.Context, logger *zap.Logger, version, commit, buildTime string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "cassette",
		Short: "Record and replay HTTP traffic",
		Long: `Cassette sits in front of an HTTP API and records every exchange to
JSON files, or answers requests from those files without touching the
upstream. Recordings are plain files that can be reviewed and committed.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildTime),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetContext(ctx)

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to configuration file (discovered from the working directory when empty)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "", "Override the logging level (debug, info, warn, error)")

	return rootCmd
}

// ExecuteWithLogger executes the root command with proper error handling
func ExecuteWithLogger(rootCmd *cobra.Command, logger *zap.Logger) error {
	if err := rootCmd.Execute(); err != nil {
		logger.Error("Command execution failed", zap.Error(err))
		return err
	}
	return nil
}

// NewLogger builds a zap logger from the logging section of the configuration
func NewLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	zapCfg := zap.NewProductionConfig()
	if strings.EqualFold(cfg.Format, "console") {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.DisableCaller = !cfg.AddCaller
	zapCfg.EncoderConfig.TimeKey = "timestamp"
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	output := cfg.Output
	if output == "" {
		output = "stdout"
	}
	zapCfg.OutputPaths = []string{output}
	zapCfg.ErrorOutputPaths = []string{"stderr"}

	return zapCfg.Build()
}
