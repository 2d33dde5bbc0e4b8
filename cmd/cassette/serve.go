package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"cassette/internal/hotreload"
	"cassette/pkg/api"
	"cassette/pkg/cli"
)

func newServeCommand(ctx context.Context, logger *zap.Logger) *cobra.Command {
	var (
		mode     string
		dir      string
		upstream string
		host     string
		port     int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the record/replay server in front of an upstream",
		Long: `Serve listens for HTTP requests and forwards them to the upstream URL.
In record mode every eligible exchange is saved to the recordings directory;
in replay mode matching requests are answered from recordings and the rest
are forwarded.`,
		Example: `  # Record traffic to a local API
  cassette serve --mode record --upstream http://localhost:3000

  # Replay it without the API running
  cassette serve --mode replay --dir ./recordings`,
		RunE: func(cmd *cobra.Command, args []string) error {
			overrides := make(map[string]interface{})
			flags := cmd.Flags()
			if flags.Changed("mode") {
				overrides["mode"] = mode
			}
			if flags.Changed("dir") {
				overrides["recordings_dir"] = dir
			}
			if flags.Changed("upstream") {
				overrides["upstream.url"] = upstream
			}
			if flags.Changed("host") {
				overrides["server.host"] = host
			}
			if flags.Changed("port") {
				overrides["server.port"] = port
			}

			cfg, opts, err := loadConfig(cmd, logger, overrides)
			if err != nil {
				return err
			}

			serverLogger, err := cli.NewLogger(cfg.Logging)
			if err != nil {
				return fmt.Errorf("failed to build logger: %w", err)
			}
			defer serverLogger.Sync()

			serverLogger.Info("Starting cassette server",
				zap.String("config", opts.File),
				zap.String("mode", string(cfg.Mode)),
				zap.String("recordings_dir", cfg.RecordingsDir),
				zap.String("upstream", cfg.Upstream.URL))

			server, err := api.NewServer(cfg, serverLogger)
			if err != nil {
				return fmt.Errorf("failed to create server: %w", err)
			}
			if err := server.Start(); err != nil {
				return fmt.Errorf("failed to start server: %w", err)
			}

			reloader, err := hotreload.NewHotReloader(server, opts, cfg, serverLogger)
			if err != nil {
				_ = server.Stop()
				return fmt.Errorf("failed to create hot reloader: %w", err)
			}
			if err := reloader.Start(); err != nil {
				_ = server.Stop()
				return fmt.Errorf("failed to start hot reloader: %w", err)
			}

			<-ctx.Done()
			serverLogger.Info("Shutdown signal received, stopping server...")

			if err := reloader.Stop(); err != nil {
				serverLogger.Error("Error stopping hot reloader", zap.Error(err))
			}
			if err := server.Stop(); err != nil {
				serverLogger.Error("Error stopping server", zap.Error(err))
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&mode, "mode", "m", "", "Operating mode (off, record, replay)")
	cmd.Flags().StringVarP(&dir, "dir", "d", "", "Recordings directory")
	cmd.Flags().StringVarP(&upstream, "upstream", "u", "", "Upstream base URL requests are forwarded to")
	cmd.Flags().StringVarP(&host, "host", "H", "", "Server host")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Server port")

	return cmd
}
