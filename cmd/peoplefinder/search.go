package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"peoplefinder/internal/platform/config"
	"peoplefinder/internal/platform/logger"
	"peoplefinder/internal/search/handler"
	"peoplefinder/internal/search/service"
	"peoplefinder/pkg/requestcontext"
)

func newSearchCommand(configPath *string) *cobra.Command {
	var knownIDs map[string]string

	cmd := &cobra.Command{
		Use:   "search <term>",
		Short: "Run one search and print the merged result as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			log := logger.NewWithWriter(cmd.ErrOrStderr(), cfg.Log)

			a, err := build(ctx, cfg, log, prometheus.NewRegistry())
			if err != nil {
				return err
			}
			defer a.Close()

			ctx = requestcontext.WithCaller(ctx, os.Getenv("USER"))
			resp, err := a.service.Search(ctx, service.Request{
				Term:     strings.Join(args, " "),
				KnownIDs: knownIDs,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), handler.FromResponse(resp))
		},
	}
	cmd.Flags().StringToStringVar(&knownIDs, "id", nil, "known identifier as backend=id, e.g. --id graph=6f1c")
	return cmd
}

func newCheckCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Test connectivity to every enabled backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			log := logger.NewWithWriter(cmd.ErrOrStderr(), cfg.Log)

			a, err := build(ctx, cfg, log, prometheus.NewRegistry())
			if err != nil {
				return err
			}
			defer a.Close()

			health := handler.FromHealth(a.service.Check(ctx))
			if err := printJSON(cmd.OutOrStdout(), health); err != nil {
				return err
			}
			if !health.Healthy {
				return fmt.Errorf("one or more backends are unhealthy")
			}
			return nil
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
