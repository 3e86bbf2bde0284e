// Package backfill schedules bounded-concurrency retrieval of daily payloads
// and projects each payload down to a single station's readings.
package backfill

import (
	"context"

	"github.com/i474232898/air-temperature-backfill/internal/dates"
)

// Payload is the raw body returned for one day. The scheduler never looks inside it.
type Payload []byte

// Record is one reading for one timestamp. Value is nil when the station
// reported nothing at that timestamp.
type Record struct {
	Timestamp string   `json:"timestamp"`
	Value     *float64 `json:"value"`
}

// Fetched maps each day retrieved during a single Fetch call to its payload.
type Fetched map[dates.Key]Payload

// Projection maps each day to its records, in the order they appear in the payload.
type Projection map[dates.Key][]Record

// FetchFunc retrieves the payload for one day.
type FetchFunc func(ctx context.Context, date dates.Key) (Payload, error)

// ExtractFunc returns the records belonging to entityID in payload.
type ExtractFunc func(payload Payload, entityID string) ([]Record, error)
