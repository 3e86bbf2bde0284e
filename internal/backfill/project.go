package backfill

import (
	"context"
	"errors"
	"fmt"

	"github.com/i474232898/air-temperature-backfill/internal/dates"
)

// Project applies extractOne to every payload concurrently and returns one
// entry per input day.
//
// Unlike Fetch, an extraction failure is not absorbed: a payload that was
// fetched but cannot be read is a data-integrity fault, so the first failure
// stops the remaining work and Project returns an error wrapping
// ErrDataIntegrity.
func Project(ctx context.Context, payloads Fetched, entityID string, extractOne ExtractFunc, opts Options) (Projection, error) {
	if extractOne == nil {
		return nil, errors.New("extract func is nil")
	}
	opts, err := opts.normalize()
	if err != nil {
		return nil, err
	}
	log := opts.Logger.With().Str("stage", "project").Str("entity", entityID).Logger()

	days := make([]dates.Key, 0, len(payloads))
	for date := range payloads {
		days = append(days, date)
	}
	records := make([][]Record, len(days))

	err = runPool(ctx, opts.Concurrency, len(days), func(ctx context.Context, i int) error {
		date := days[i]
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %s not started: %w", ErrCancelled, date, ctx.Err())
		}

		log.Debug().Str("date", date.String()).Msg("start choose station")
		recs, err := extractOne(payloads[date], entityID)
		if err != nil {
			opts.Metrics.projectOutcome(outcomeFailed)
			return fmt.Errorf("%w: %s for %q: %w", ErrDataIntegrity, date, entityID, err)
		}
		if recs == nil {
			recs = []Record{}
		}
		records[i] = recs
		opts.Metrics.projectOutcome(outcomeProjected)
		log.Debug().Str("date", date.String()).Int("records", len(recs)).Msg("finish choose station")
		return nil
	})
	if err != nil {
		log.Error().Err(err).Msg("projection aborted")
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
	}

	out := make(Projection, len(days))
	for i, date := range days {
		out[date] = records[i]
	}
	return out, nil
}
