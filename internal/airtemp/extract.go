package airtemp

import (
	"fmt"

	"github.com/i474232898/air-temperature-backfill/internal/backfill"
)

// ChooseStation returns one record per item in payload, in payload order.
// The value is the first reading reported by stationID for that timestamp,
// or nil when the station has none.
func ChooseStation(payload backfill.Payload, stationID string) ([]backfill.Record, error) {
	p, err := decode(payload)
	if err != nil {
		return nil, err
	}
	if p.Items == nil {
		return nil, fmt.Errorf("%w: no items", ErrMalformedPayload)
	}

	out := make([]backfill.Record, 0, len(*p.Items))
	for i, it := range *p.Items {
		if it.Timestamp == nil {
			return nil, fmt.Errorf("%w: item %d has no timestamp", ErrMalformedPayload, i)
		}
		if it.Readings == nil {
			return nil, fmt.Errorf("%w: item %d has no readings", ErrMalformedPayload, i)
		}

		rec := backfill.Record{Timestamp: *it.Timestamp}
		for _, r := range *it.Readings {
			if r.StationID == stationID {
				rec.Value = r.Value
				break
			}
		}
		out = append(out, rec)
	}
	return out, nil
}
