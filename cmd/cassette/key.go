package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"cassette/pkg/api"
	"cassette/pkg/recorder"
)

func newKeyCommand(logger *zap.Logger) *cobra.Command {
	var (
		method  string
		url     string
		headers []string
		body    string
	)

	cmd := &cobra.Command{
		Use:   "key",
		Short: "Print the request key a request would be recorded under",
		Long: `Key derives the request key for a request using the matching settings of
the loaded configuration, and reports whether the filters admit it.`,
		Example: `  cassette key --method GET --url "/api/users?page=1"
  cassette key --method POST --url /api/users --body '{"name":"Ada"}' -H "x-tenant:acme"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(cmd, logger, nil)
			if err != nil {
				return err
			}

			filters, err := recorder.NewFilterEngine(cfg.Filters)
			if err != nil {
				return err
			}

			var req fasthttp.Request
			req.Header.SetMethod(strings.ToUpper(method))
			req.SetRequestURI(url)
			for _, h := range headers {
				name, value, ok := strings.Cut(h, ":")
				if !ok {
					return fmt.Errorf("invalid header %q, expected name:value", h)
				}
				req.Header.Set(strings.TrimSpace(name), strings.TrimSpace(value))
			}
			if body != "" {
				req.SetBodyString(body)
			}

			var ctx fasthttp.RequestCtx
			ctx.Init(&req, nil, nil)
			adapted := api.NewRequest(&ctx)

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, recorder.DeriveKey(adapted, cfg.Matching))
			if !filters.IsEligible(adapted) {
				fmt.Fprintln(out, "(not eligible: excluded by filters)")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&method, "method", "X", "GET", "HTTP method")
	cmd.Flags().StringVar(&url, "url", "/", "Request path and query")
	cmd.Flags().StringArrayVarP(&headers, "header", "H", nil, "Request header as name:value (repeatable)")
	cmd.Flags().StringVar(&body, "body", "", "Request body")

	return cmd
}
