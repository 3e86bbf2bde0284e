package airtemp

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/i474232898/air-temperature-backfill/internal/backfill"
)

var (
	// ErrMalformedPayload is returned when a payload lacks the fields a day's
	// readings are built from.
	ErrMalformedPayload = errors.New("malformed air-temperature payload")
)

// dayPayload mirrors the JSON body returned for a single day.
type dayPayload struct {
	Metadata struct {
		Stations    []Station `json:"stations"`
		ReadingType string    `json:"reading_type"`
		ReadingUnit string    `json:"reading_unit"`
	} `json:"metadata"`
	Items *[]item `json:"items"`
}

type item struct {
	Timestamp *string    `json:"timestamp"`
	Readings  *[]reading `json:"readings"`
}

type reading struct {
	StationID string   `json:"station_id"`
	Value     *float64 `json:"value"`
}

// Station describes one weather station listed in a payload's metadata.
type Station struct {
	ID       string `json:"id"`
	DeviceID string `json:"device_id"`
	Name     string `json:"name"`
	Location struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"location"`
}

func decode(payload backfill.Payload) (*dayPayload, error) {
	var p dayPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return &p, nil
}

// Stations lists the stations described in payload's metadata.
func Stations(payload backfill.Payload) ([]Station, error) {
	p, err := decode(payload)
	if err != nil {
		return nil, err
	}
	return p.Metadata.Stations, nil
}
