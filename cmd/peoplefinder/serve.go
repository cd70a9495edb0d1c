package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"peoplefinder/internal/platform/config"
	"peoplefinder/internal/platform/httpserver"
	"peoplefinder/internal/platform/logger"
	"peoplefinder/internal/search/handler"
	"peoplefinder/pkg/platform/middleware/metadata"
	"peoplefinder/pkg/platform/middleware/requesttime"
)

func newServeCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the search HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			log := logger.New(cfg.Log)

			a, err := build(ctx, cfg, log, prometheus.DefaultRegisterer)
			if err != nil {
				return err
			}
			defer a.Close()

			log.Info("starting peoplefinder",
				"addr", cfg.Server.Addr,
				"backends", a.registry.Names(),
				"audit_sink", cfg.Audit.Sink,
				"token_store", cfg.Tokens.Store,
			)
			srv := httpserver.New(cfg.Server, newRouter(a, promhttp.Handler()))
			return httpserver.Run(ctx, srv, cfg.Server.ShutdownTimeout, log)
		},
	}
}

func newRouter(a *app, metricsHandler http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(requesttime.Middleware)
	r.Use(metadata.RequestMetadata)

	handler.New(a.service, a.registry.Names(), a.logger).Register(r)
	r.Handle("/metrics", metricsHandler)
	return r
}
