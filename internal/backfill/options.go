package backfill

import (
	"fmt"

	"github.com/rs/zerolog"
)

// DefaultConcurrency is the worker count used when Options.Concurrency is zero.
const DefaultConcurrency = 10

// Options configures a single Fetch or Project call.
type Options struct {
	// Concurrency caps how many fetch or extract calls run at once.
	// Zero selects DefaultConcurrency.
	Concurrency int

	// Logger receives per-day events. Nil disables logging.
	Logger *zerolog.Logger

	// Metrics records per-day outcomes. Nil disables metrics.
	Metrics *Metrics
}

func (o Options) normalize() (Options, error) {
	if o.Concurrency < 0 {
		return o, fmt.Errorf("%w, got %d", errInvalidConcurrency, o.Concurrency)
	}
	if o.Concurrency == 0 {
		o.Concurrency = DefaultConcurrency
	}
	if o.Logger == nil {
		nop := zerolog.Nop()
		o.Logger = &nop
	}
	return o, nil
}
