// Package pipeline wires date generation, fetching and projection into a
// single resumable backfill run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/i474232898/air-temperature-backfill/internal/backfill"
	"github.com/i474232898/air-temperature-backfill/internal/dates"
	"github.com/i474232898/air-temperature-backfill/internal/state"
	"github.com/i474232898/air-temperature-backfill/internal/store"
)

// ReadingStore is the contract the readings store must satisfy.
type ReadingStore interface {
	SaveDay(station string, date dates.Key, records []backfill.Record)
	GetRange(station string, from, to dates.Key) ([]store.DayReadings, error)
	Stations() []string
}

// Request describes one backfill run.
type Request struct {
	Start     dates.Key `json:"start"`
	End       dates.Key `json:"end"`
	StationID string    `json:"station"`

	// Force refetches every day in the range, ignoring the saved state.
	Force bool `json:"force"`
}

func (r Request) key() string {
	return fmt.Sprintf("%s|%s|%s|%t", r.Start, r.End, r.StationID, r.Force)
}

// Report summarizes a finished run.
type Report struct {
	RunID      string        `json:"runId"`
	StationID  string        `json:"station"`
	Start      dates.Key     `json:"start"`
	End        dates.Key     `json:"end"`
	Candidates int           `json:"candidates"`
	Skipped    int           `json:"skipped"`
	Fetched    []dates.Key   `json:"fetched"`
	Failed     []dates.Key   `json:"failed"`
	Duration   time.Duration `json:"durationNs"`
}

// Service runs backfills against a fetcher, an extractor and the two stores.
type Service struct {
	fetch    backfill.FetchFunc
	extract  backfill.ExtractFunc
	states   state.Store
	readings ReadingStore

	concurrency int
	logger      zerolog.Logger
	metrics     *backfill.Metrics

	runs singleflight.Group

	mu      sync.Mutex
	flights map[string]*flight
}

// flight is the context shared by every caller of one in-flight run. It is
// cancelled once the last of them has gone.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// Option customizes a Service.
type Option func(*Service)

// WithConcurrency sets the worker count for both stages.
func WithConcurrency(n int) Option {
	return func(s *Service) { s.concurrency = n }
}

// WithLogger sets the logger handed to both stages.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithMetrics sets the collectors updated by both stages.
func WithMetrics(m *backfill.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService creates a new Service.
func NewService(fetch backfill.FetchFunc, extract backfill.ExtractFunc, states state.Store, readings ReadingStore, opts ...Option) *Service {
	s := &Service{
		fetch:       fetch,
		extract:     extract,
		states:      states,
		readings:    readings,
		concurrency: backfill.DefaultConcurrency,
		logger:      zerolog.Nop(),
		flights:     map[string]*flight{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run backfills the request's range for its station. Identical concurrent
// requests share a single run; it is interrupted only when every caller
// sharing it has cancelled.
func (s *Service) Run(ctx context.Context, req Request) (Report, error) {
	if err := ctx.Err(); err != nil {
		return Report{}, fmt.Errorf("%w: %w", backfill.ErrCancelled, err)
	}

	key := req.key()
	f := s.join(ctx, key)
	defer s.leave(key, f)

	ch := s.runs.DoChan(key, func() (interface{}, error) {
		return s.run(f.ctx, req)
	})

	select {
	case res := <-ch:
		if res.Shared {
			s.logger.Debug().Str("request", key).Msg("joined in-flight backfill")
		}
		if res.Err != nil {
			return Report{}, res.Err
		}
		return res.Val.(Report), nil
	case <-ctx.Done():
		return Report{}, fmt.Errorf("%w: %w", backfill.ErrCancelled, ctx.Err())
	}
}

func (s *Service) join(ctx context.Context, key string) *flight {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.flights[key]
	if !ok {
		runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{ctx: runCtx, cancel: cancel}
		s.flights[key] = f
	}
	f.waiters++
	return f
}

func (s *Service) leave(key string, f *flight) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f.waiters--
	if f.waiters > 0 {
		return
	}
	f.cancel()
	delete(s.flights, key)
	// A run abandoned by all its callers must not be joined by later ones.
	s.runs.Forget(key)
}

func (s *Service) run(ctx context.Context, req Request) (Report, error) {
	started := time.Now()
	runID := uuid.NewString()
	log := s.logger.With().
		Str("run_id", runID).
		Str("station", req.StationID).
		Str("start", req.Start.String()).
		Str("end", req.End.String()).
		Logger()

	if req.StationID == "" {
		return Report{}, errors.New("station id is required")
	}

	candidates, err := dates.Generate(req.Start, req.End)
	if err != nil {
		return Report{}, err
	}

	already := dates.Set{}
	if !req.Force {
		already, err = s.states.Load(ctx)
		if err != nil {
			return Report{}, fmt.Errorf("load fetched state: %w", err)
		}
	}

	opts := backfill.Options{
		Concurrency: s.concurrency,
		Logger:      &log,
		Metrics:     s.metrics,
	}

	log.Info().Int("candidates", candidates.Len()).Bool("force", req.Force).Msg("backfill started")

	fetched, newState, err := backfill.Fetch(ctx, candidates, already, s.fetch, opts)
	if err != nil {
		return Report{}, err
	}

	projected, err := backfill.Project(ctx, fetched, req.StationID, s.extract, opts)
	if err != nil {
		return Report{}, err
	}

	for date, records := range projected {
		s.readings.SaveDay(req.StationID, date, records)
	}

	// Persist progress only once the run's payloads have been projected, so a
	// failed projection leaves its days to be fetched again.
	if err := s.states.Add(ctx, newState); err != nil {
		return Report{}, fmt.Errorf("save fetched state: %w", err)
	}

	report := Report{
		RunID:      runID,
		StationID:  req.StationID,
		Start:      req.Start,
		End:        req.End,
		Candidates: candidates.Len(),
		Fetched:    []dates.Key{},
		Failed:     []dates.Key{},
	}
	for _, d := range candidates.Sorted() {
		switch {
		case already.Has(d):
			report.Skipped++
		case newState.Has(d):
			report.Fetched = append(report.Fetched, d)
		default:
			report.Failed = append(report.Failed, d)
		}
	}
	report.Duration = time.Since(started)

	log.Info().
		Int("skipped", report.Skipped).
		Int("fetched", len(report.Fetched)).
		Int("failed", len(report.Failed)).
		Dur("duration", report.Duration).
		Msg("backfill complete")

	return report, nil
}

// Readings delegates to the readings store.
func (s *Service) Readings(station string, from, to dates.Key) ([]store.DayReadings, error) {
	return s.readings.GetRange(station, from, to)
}

// Stations lists the stations with stored readings.
func (s *Service) Stations() []string {
	return s.readings.Stations()
}

// FetchedDates returns the saved fetched-days set in ascending order.
func (s *Service) FetchedDates(ctx context.Context) ([]dates.Key, error) {
	set, err := s.states.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load fetched state: %w", err)
	}
	return set.Sorted(), nil
}
