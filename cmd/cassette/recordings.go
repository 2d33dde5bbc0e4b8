package main

import (
	"bufio"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"cassette/pkg/recorder"
)

func newRecordingsCommand(logger *zap.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "recordings",
		Aliases: []string{"rec"},
		Short:   "Inspect and manage recordings",
		Long: `Commands for the JSON recordings in the configured recordings directory.

Available subcommands:
  - list:    List recordings
  - show:    Show one recording
  - delete:  Delete recordings`,
		Example: `  # List recordings in the configured directory
  cassette recordings list

  # Show a recording as YAML
  cassette recordings show GET_api_users_0001.json --format yaml`,
	}

	cmd.AddCommand(newRecordingsListCommand(logger))
	cmd.AddCommand(newRecordingsShowCommand(logger))
	cmd.AddCommand(newRecordingsDeleteCommand(logger))

	return cmd
}

func openStore(cmd *cobra.Command, logger *zap.Logger) (*recorder.FileStore, error) {
	cfg, _, err := loadConfig(cmd, logger, nil)
	if err != nil {
		return nil, err
	}

	store, err := recorder.NewFileStore(cfg.RecordingsDir, logger.With(zap.String("component", "store")))
	if err != nil {
		return nil, fmt.Errorf("failed to open recordings directory: %w", err)
	}
	return store, nil
}

func newRecordingsListCommand(logger *zap.Logger) *cobra.Command {
	var (
		format string
		method string
		status int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recordings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd, logger)
			if err != nil {
				return err
			}

			infos, err := store.List()
			if err != nil {
				return fmt.Errorf("failed to list recordings: %w", err)
			}

			filtered := infos[:0]
			for _, info := range infos {
				if method != "" && !strings.EqualFold(info.Method, method) {
					continue
				}
				if status != 0 && info.Status != status {
					continue
				}
				filtered = append(filtered, info)
			}

			if format != "table" {
				return writeFormatted(cmd.OutOrStdout(), format, filtered)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Found %d recordings in %s:\n\n", len(filtered), store.Dir())
			fmt.Fprintf(out, "%-40s %-8s %-40s %-6s %-20s\n", "FILENAME", "METHOD", "URL", "STATUS", "MODIFIED")
			fmt.Fprintf(out, "%s\n", strings.Repeat("-", 118))
			for _, info := range filtered {
				fmt.Fprintf(out, "%-40s %-8s %-40s %-6d %-20s\n",
					truncateString(info.Filename, 40),
					info.Method,
					truncateString(info.URL, 40),
					info.Status,
					info.ModTime.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "table", "Output format (table, json, yaml)")
	cmd.Flags().StringVar(&method, "method", "", "Only list recordings with this HTTP method")
	cmd.Flags().IntVar(&status, "status", 0, "Only list recordings with this response status")

	return cmd
}

func newRecordingsShowCommand(logger *zap.Logger) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "show <name>",
		Short: "Show one recording",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd, logger)
			if err != nil {
				return err
			}

			it, err := store.Load(args[0])
			if err != nil {
				return fmt.Errorf("failed to load recording: %w", err)
			}

			if format != "table" {
				return writeFormatted(cmd.OutOrStdout(), format, it)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Recording:    %s\n", args[0])
			fmt.Fprintf(out, "Recorded at:  %s\n", it.Timestamp)
			fmt.Fprintf(out, "Request key:  %s\n", it.RequestKey)
			fmt.Fprintf(out, "\nRequest:\n")
			fmt.Fprintf(out, "  %s %s\n", it.Request.Method, it.Request.URL)
			writeHeaders(cmd, it.Request.Headers)
			fmt.Fprintf(out, "\nResponse:\n")
			fmt.Fprintf(out, "  Status: %d\n", it.Response.Status)
			writeHeaders(cmd, it.Response.Headers)
			if it.Response.Body != "" {
				fmt.Fprintf(out, "\n%s\n", it.Response.Body)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "table", "Output format (table, json, yaml)")

	return cmd
}

func writeHeaders(cmd *cobra.Command, headers map[string]string) {
	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(cmd.OutOrStdout(), "  %s: %s\n", name, headers[name])
	}
}

func newRecordingsDeleteCommand(logger *zap.Logger) *cobra.Command {
	var (
		all   bool
		force bool
	)

	cmd := &cobra.Command{
		Use:   "delete [name...]",
		Short: "Delete recordings",
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) > 0) {
				return fmt.Errorf("specify recording names or --all")
			}

			store, err := openStore(cmd, logger)
			if err != nil {
				return err
			}

			names := args
			if all {
				if !force && !confirm(cmd, fmt.Sprintf("Delete ALL recordings in %s? (y/N): ", store.Dir())) {
					fmt.Fprintln(cmd.OutOrStdout(), "Deletion cancelled")
					return nil
				}

				infos, err := store.List()
				if err != nil {
					return fmt.Errorf("failed to list recordings: %w", err)
				}
				names = make([]string, 0, len(infos))
				for _, info := range infos {
					names = append(names, info.Filename)
				}
			}

			var failed int
			for _, name := range names {
				if err := store.Delete(name); err != nil {
					logger.Error("Failed to delete recording", zap.String("name", name), zap.Error(err))
					failed++
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", name)
			}

			if failed > 0 {
				return fmt.Errorf("failed to delete %d of %d recordings", failed, len(names))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Delete every recording")
	cmd.Flags().BoolVar(&force, "force", false, "Do not ask for confirmation")

	return cmd
}

func confirm(cmd *cobra.Command, prompt string) bool {
	fmt.Fprint(cmd.OutOrStdout(), prompt)
	answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
