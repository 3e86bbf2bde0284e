package backfill

import (
	"context"
	"errors"
)

var (
	// ErrTransientFetch marks a single day whose retrieval failed. It is logged
	// and the day is left out of the new state so a later run retries it.
	ErrTransientFetch = errors.New("transient fetch failure")

	// ErrEmptyPayload is reported when a fetcher returns neither payload nor error.
	ErrEmptyPayload = errors.New("fetcher returned no payload")

	// ErrDataIntegrity is returned when a fetched payload cannot be projected.
	ErrDataIntegrity = errors.New("payload cannot be projected")

	// ErrCancelled is returned when the caller interrupts a Fetch or Project call.
	ErrCancelled = errors.New("backfill cancelled")

	errInvalidConcurrency = errors.New("concurrency must be >= 1")
)

// isCancellation reports whether err is an interrupt rather than a per-day failure.
func isCancellation(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, ErrCancelled)
}
