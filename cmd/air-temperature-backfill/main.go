package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/alecthomas/kong"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/i474232898/air-temperature-backfill/internal/airtemp"
	"github.com/i474232898/air-temperature-backfill/internal/backfill"
	"github.com/i474232898/air-temperature-backfill/internal/config"
	"github.com/i474232898/air-temperature-backfill/internal/logging"
	"github.com/i474232898/air-temperature-backfill/internal/pipeline"
	"github.com/i474232898/air-temperature-backfill/internal/state"
	"github.com/i474232898/air-temperature-backfill/internal/store"
)

var CLI struct {
	Serve    ServeCmd    `cmd:"" default:"1" help:"Serve the HTTP API and run scheduled backfills"`
	Run      RunCmd      `cmd:"" help:"Run a single backfill and print its report"`
	Stations StationsCmd `cmd:"" help:"List the stations reported for a day"`
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("air-temperature-backfill"),
		kong.Description("Resumable concurrent backfill of daily air-temperature readings."),
	)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(logging.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})

	if err := ctx.Run(cfg, logger); err != nil {
		logger.Error().Err(err).Str("command", ctx.Command()).Msg("command failed")
		os.Exit(1)
	}
}

// components holds what the backfill commands share.
type components struct {
	logger   zerolog.Logger
	registry *prometheus.Registry
	states   state.Store
	service  *pipeline.Service
}

func newComponents(ctx context.Context, cfg *config.AppConfig, logger zerolog.Logger) (*components, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := backfill.NewMetrics(reg)

	// Shared HTTP client for outbound data source calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}
	client := airtemp.NewClient(httpClient, cfg.DataSourceURL)

	states, err := state.Open(ctx, cfg.State)
	if err != nil {
		return nil, fmt.Errorf("open %s state store: %w", cfg.State.Backend, err)
	}

	readings := store.NewMemoryStore(cfg.StoreMaxDays)

	service := pipeline.NewService(client.Fetch, airtemp.ChooseStation, states, readings,
		pipeline.WithConcurrency(cfg.Concurrency),
		pipeline.WithLogger(logging.Component(logger, "pipeline").With().Str("source", client.Name()).Logger()),
		pipeline.WithMetrics(metrics),
	)

	logger.Info().
		Str("source", cfg.DataSourceURL).
		Str("state_backend", cfg.State.Backend).
		Int("concurrency", cfg.Concurrency).
		Msg("components initialized")

	return &components{
		logger:   logger,
		registry: reg,
		states:   states,
		service:  service,
	}, nil
}

func (c *components) Close() {
	if err := c.states.Close(); err != nil {
		c.logger.Warn().Err(err).Msg("failed to close state store")
	}
}
