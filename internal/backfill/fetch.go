package backfill

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/i474232898/air-temperature-backfill/internal/dates"
)

// Fetch retrieves every candidate day not already present in already.
//
// Days in already are skipped without calling fetchOne. A day whose fetch
// fails is logged and left out of both return values, so the next run tries
// it again; the rest of the batch is unaffected. Cancellation is the one
// failure that is not absorbed: it stops the batch and Fetch returns an error
// wrapping ErrCancelled with no partial results.
//
// The returned state is a new set equal to already plus every day fetched in
// this call. already is never modified.
func Fetch(ctx context.Context, candidates, already dates.Set, fetchOne FetchFunc, opts Options) (Fetched, dates.Set, error) {
	if fetchOne == nil {
		return nil, nil, errors.New("fetch func is nil")
	}
	opts, err := opts.normalize()
	if err != nil {
		return nil, nil, err
	}
	log := opts.Logger.With().Str("stage", "fetch").Logger()

	pending := make([]dates.Key, 0, candidates.Len())
	for _, date := range candidates.Sorted() {
		if already.Has(date) {
			log.Debug().Str("date", date.String()).Msg("skip download")
			opts.Metrics.fetchOutcome(outcomeSkipped)
			continue
		}
		pending = append(pending, date)
	}

	// One slot per pending day; each worker writes only the slots it was handed.
	payloads := make([]Payload, len(pending))

	err = runPool(ctx, opts.Concurrency, len(pending), func(ctx context.Context, i int) error {
		date := pending[i]
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %s not started: %w", ErrCancelled, date, ctx.Err())
		}

		log.Info().Str("date", date.String()).Msg("start download")
		started := time.Now()
		payload, err := fetchOne(ctx, date)
		opts.Metrics.observeFetch(time.Since(started))

		if err == nil && payload == nil {
			err = ErrEmptyPayload
		}
		if err != nil {
			if isCancellation(ctx, err) {
				return fmt.Errorf("%w: fetch %s: %w", ErrCancelled, date, err)
			}
			log.Error().
				Err(fmt.Errorf("%w: %w", ErrTransientFetch, err)).
				Str("date", date.String()).
				Msg("failed download")
			opts.Metrics.fetchOutcome(outcomeFailed)
			return nil
		}

		payloads[i] = payload
		opts.Metrics.fetchOutcome(outcomeFetched)
		log.Info().
			Str("date", date.String()).
			Dur("duration", time.Since(started)).
			Msg("finish download")
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	if ctx.Err() != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
	}

	fetched := make(Fetched, len(pending))
	state := already.Clone()
	for i, date := range pending {
		if payloads[i] == nil {
			continue
		}
		fetched[date] = payloads[i]
		state[date] = dates.Present{}
	}

	log.Info().
		Int("candidates", candidates.Len()).
		Int("skipped", candidates.Len()-len(pending)).
		Int("fetched", len(fetched)).
		Int("failed", len(pending)-len(fetched)).
		Msg("fetch complete")

	return fetched, state, nil
}
