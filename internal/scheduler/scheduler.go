package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"

	"github.com/i474232898/air-temperature-backfill/internal/dates"
	"github.com/i474232898/air-temperature-backfill/internal/pipeline"
)

// Runner is the part of pipeline.Service the scheduler drives.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (pipeline.Report, error)
}

// Config describes the periodic backfill.
type Config struct {
	StationID string
	StartDate dates.Key
	LagDays   int
	Interval  time.Duration
	Location  *time.Location

	// RunTimeout bounds a single scheduled run. Zero means no limit.
	RunTimeout time.Duration
}

// Scheduler periodically backfills from StartDate up to the most recent complete day.
type Scheduler struct {
	scheduler *gocron.Scheduler
	runner    Runner
	cfg       Config
	logger    zerolog.Logger
	now       func() time.Time

	// ctx is the parent of every scheduled run; set by Start.
	ctx context.Context
}

// New creates a new Scheduler.
func New(cfg Config, runner Runner, logger zerolog.Logger) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	s := gocron.NewScheduler(cfg.Location)
	s.SingletonModeAll()
	return &Scheduler{
		scheduler: s,
		runner:    runner,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
		ctx:       context.Background(),
	}
}

// Start schedules the periodic job and starts the underlying scheduler.
// Cancelling ctx interrupts the run in progress and every later one.
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx = ctx
	if s.cfg.StartDate == "" {
		s.logger.Info().Msg("scheduler: no start date configured; nothing to schedule")
		return nil
	}

	interval := s.cfg.Interval
	if interval <= 0 {
		interval = time.Hour
	}

	_, err := s.scheduler.Every(interval).Do(s.RunOnce)
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

// RunOnce performs a single scheduled backfill.
func (s *Scheduler) RunOnce() {
	req, ok := s.request()
	if !ok {
		s.logger.Info().
			Str("start", s.cfg.StartDate.String()).
			Msg("scheduler: start date is after the last complete day; skipping")
		return
	}

	ctx := s.ctx
	if ctx.Err() != nil {
		s.logger.Info().Msg("scheduler: stopping; skipping backfill job")
		return
	}
	if s.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RunTimeout)
		defer cancel()
	}

	s.logger.Info().Str("start", req.Start.String()).Str("end", req.End.String()).Msg("scheduler: running backfill job")
	report, err := s.runner.Run(ctx, req)
	if err != nil {
		s.logger.Error().Err(err).Msg("scheduler: backfill failed")
		return
	}
	s.logger.Info().
		Int("fetched", len(report.Fetched)).
		Int("failed", len(report.Failed)).
		Msg("scheduler: completed backfill job")
}

// request builds the run covering [StartDate, today - LagDays] in the configured zone.
func (s *Scheduler) request() (pipeline.Request, bool) {
	end := dates.FromTime(s.now().In(s.cfg.Location).AddDate(0, 0, -s.cfg.LagDays))
	if end < s.cfg.StartDate {
		return pipeline.Request{}, false
	}
	return pipeline.Request{
		Start:     s.cfg.StartDate,
		End:       end,
		StationID: s.cfg.StationID,
	}, true
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
