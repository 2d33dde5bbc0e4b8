package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"cassette/pkg/config"
)

// loadConfig assembles the configuration for a command from the --config
// file (or discovery), the environment and overrides, and validates it. The
// returned options name the file actually used and can rebuild the same
// configuration later.
func loadConfig(cmd *cobra.Command, logger *zap.Logger, overrides map[string]interface{}) (*config.Config, config.LoadOptions, error) {
	if overrides == nil {
		overrides = make(map[string]interface{})
	}

	file, _ := cmd.Flags().GetString("config")
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		overrides["logging.level"] = level
	}

	opts := config.LoadOptions{File: file, Overrides: overrides}
	cfg, path, err := config.Load(opts, logger)
	if err != nil {
		return nil, opts, fmt.Errorf("failed to load configuration: %w", err)
	}
	opts.File = path

	if err := config.Validate(cfg); err != nil {
		return nil, opts, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, opts, nil
}

// writeFormatted prints v as json or yaml
func writeFormatted(w io.Writer, format string, v interface{}) error {
	switch format {
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		encoder.SetEscapeHTML(false)
		return encoder.Encode(v)
	case "yaml":
		// Go through JSON so keys match the recording files, in order.
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		var node yaml.Node
		if err := yaml.Unmarshal(data, &node); err != nil {
			return err
		}
		blockStyle(&node)

		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(&node); err != nil {
			return err
		}
		return encoder.Close()
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

// blockStyle drops the flow styles a JSON document parses with
func blockStyle(node *yaml.Node) {
	node.Style = 0
	for _, child := range node.Content {
		blockStyle(child)
	}
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
