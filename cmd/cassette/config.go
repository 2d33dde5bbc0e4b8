package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"cassette/pkg/config"
	"cassette/pkg/recorder"
)

func newConfigCommand(logger *zap.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management commands",
		Long:  `Commands for managing cassette configuration files.`,
	}

	cmd.AddCommand(newConfigInitCommand(logger))
	cmd.AddCommand(newConfigValidateCommand(logger))
	cmd.AddCommand(newConfigShowCommand(logger))

	return cmd
}

func newConfigInitCommand(logger *zap.Logger) *cobra.Command {
	var (
		outputFile string
		force      bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a new configuration file",
		Long:  `Create a new configuration file with default values.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(outputFile); err == nil && !force {
				return fmt.Errorf("configuration file already exists: %s", outputFile)
			}

			logger.Info("Creating configuration file", zap.String("file", outputFile))

			if err := config.WriteToFile(config.DefaultConfig(), outputFile); err != nil {
				return fmt.Errorf("failed to write configuration file: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Configuration file created: %s\n", outputFile)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputFile, "output", "o", config.ConfigFileNames[0], "Output configuration file")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")

	return cmd
}

func newConfigValidateCommand(logger *zap.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [config-file]",
		Short: "Validate a configuration file",
		Long: `Validate the syntax and content of a configuration file, including that
every url pattern compiles.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configFile, _ := cmd.Flags().GetString("config")
			if len(args) > 0 {
				configFile = args[0]
			}
			if configFile == "" {
				wd, err := os.Getwd()
				if err != nil {
					return err
				}
				if configFile = config.Discover(wd); configFile == "" {
					return fmt.Errorf("no configuration file found")
				}
			}

			logger.Info("Validating configuration file", zap.String("file", configFile))

			// Unlike Load, a file that cannot be read is an error here.
			cfg, err := config.LoadFromFile(configFile)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}

			if err := config.Validate(cfg); err != nil {
				return fmt.Errorf("configuration validation failed: %w", err)
			}

			if _, err := recorder.NewFilterEngine(cfg.Filters); err != nil {
				return fmt.Errorf("configuration validation failed: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Configuration file is valid: %s\n", configFile)
			return nil
		},
	}

	return cmd
}

func newConfigShowCommand(logger *zap.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Long: `Print the configuration after defaults, the configuration file and
CASSETTE_* environment variables are merged.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, opts, err := loadConfig(cmd, logger, nil)
			if err != nil {
				return err
			}

			if opts.File != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "# loaded from %s\n", opts.File)
			}

			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	return cmd
}
