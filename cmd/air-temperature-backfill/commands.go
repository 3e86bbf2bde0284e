package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/i474232898/air-temperature-backfill/internal/airtemp"
	httpapi "github.com/i474232898/air-temperature-backfill/internal/api/http"
	"github.com/i474232898/air-temperature-backfill/internal/config"
	"github.com/i474232898/air-temperature-backfill/internal/dates"
	"github.com/i474232898/air-temperature-backfill/internal/logging"
	"github.com/i474232898/air-temperature-backfill/internal/pipeline"
	"github.com/i474232898/air-temperature-backfill/internal/scheduler"
)

// ServeCmd runs the HTTP API together with the periodic backfill.
type ServeCmd struct{}

func (s *ServeCmd) Run(cfg *config.AppConfig, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newComponents(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	// Scheduler that periodically backfills up to the last complete day.
	sched := scheduler.New(scheduler.Config{
		StationID:  cfg.StationID,
		StartDate:  cfg.StartDate,
		LagDays:    cfg.LagDays,
		Interval:   cfg.FetchInterval,
		Location:   cfg.Location,
		RunTimeout: cfg.ScheduleRunTimeout,
	}, a.service, logging.Component(log, "scheduler"))
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer sched.Stop()

	app := fiber.New(fiber.Config{
		AppName:               "air-temperature-backfill",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		// Backfill requests block until the run finishes.
		WriteTimeout: 10 * time.Minute,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	app.Use(httpapi.AccessLog(logging.Component(log, "http")))
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "air-temperature-backfill",
		})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})))

	httpapi.RegisterRoutes(app, a.service, cfg.StationID)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Msg("http server listening")
		errCh <- app.Listen(":" + cfg.Port)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("fiber server stopped: %w", err)
		}
		return nil
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error during shutdown")
	}
	return nil
}

// RunCmd performs one backfill and prints the report as JSON.
type RunCmd struct {
	Start   string `required:"" help:"First day to backfill (YYYY-MM-DD)"`
	End     string `required:"" help:"Last day to backfill, inclusive (YYYY-MM-DD)"`
	Station string `help:"Station to project; defaults to STATION_ID"`
	Force   bool   `help:"Refetch days already recorded as fetched"`
}

func (r *RunCmd) Run(cfg *config.AppConfig, log zerolog.Logger) error {
	// Interrupting a run cancels in-flight fetches; fetched state is not saved.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newComponents(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	station := r.Station
	if station == "" {
		station = cfg.StationID
	}

	report, err := a.service.Run(ctx, pipeline.Request{
		Start:     dates.Key(r.Start),
		End:       dates.Key(r.End),
		StationID: station,
		Force:     r.Force,
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

// StationsCmd fetches one day and prints the stations listed in it.
type StationsCmd struct {
	Date string `required:"" help:"Day to inspect (YYYY-MM-DD)"`
}

func (s *StationsCmd) Run(cfg *config.AppConfig, log zerolog.Logger) error {
	date := dates.Key(s.Date)
	if _, err := date.Time(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := airtemp.NewClient(&http.Client{Timeout: cfg.HTTPTimeout}, cfg.DataSourceURL)
	payload, err := client.Fetch(ctx, date)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", date, err)
	}

	stations, err := airtemp.Stations(payload)
	if err != nil {
		return err
	}
	log.Debug().Str("date", date.String()).Int("stations", len(stations)).Msg("stations decoded")

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(stations)
}
