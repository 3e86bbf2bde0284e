package store

import (
	"errors"
	"sort"
	"sync"

	"github.com/i474232898/air-temperature-backfill/internal/backfill"
	"github.com/i474232898/air-temperature-backfill/internal/dates"
)

var (
	// ErrNotFound is returned when no readings are available for a station.
	ErrNotFound = errors.New("no readings for station")
)

// DayReadings is one station's records for one day.
type DayReadings struct {
	Date    dates.Key         `json:"date"`
	Records []backfill.Record `json:"records"`
}

// stationHistory holds a station's days keyed by date.
type stationHistory struct {
	days map[dates.Key][]backfill.Record
}

// MemoryStore is a concurrency-safe in-memory store of station readings.
type MemoryStore struct {
	mu sync.RWMutex

	// key: station id
	data map[string]*stationHistory

	// max number of days kept per station
	maxDays int
}

// NewMemoryStore creates a new MemoryStore.
// If maxDays is <= 0, it is treated as unlimited.
func NewMemoryStore(maxDays int) *MemoryStore {
	return &MemoryStore{
		data:    make(map[string]*stationHistory),
		maxDays: maxDays,
	}
}

// SaveDay stores records for a station and day, replacing any earlier copy,
// then drops the oldest days beyond the retention limit.
func (s *MemoryStore) SaveDay(station string, date dates.Key, records []backfill.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	history, ok := s.data[station]
	if !ok {
		history = &stationHistory{days: make(map[dates.Key][]backfill.Record)}
		s.data[station] = history
	}

	copied := make([]backfill.Record, len(records))
	copy(copied, records)
	history.days[date] = copied

	// Enforce retention by count.
	if s.maxDays > 0 && len(history.days) > s.maxDays {
		keys := sortedDays(history.days)
		for _, k := range keys[:len(keys)-s.maxDays] {
			delete(history.days, k)
		}
	}
}

// GetRange returns the station's days between from and to (inclusive), oldest first.
func (s *MemoryStore) GetRange(station string, from, to dates.Key) ([]DayReadings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.data[station]
	if !ok || len(history.days) == 0 {
		return nil, ErrNotFound
	}

	var result []DayReadings
	for _, d := range sortedDays(history.days) {
		if d < from || d > to {
			continue
		}
		result = append(result, DayReadings{Date: d, Records: history.days[d]})
	}

	if len(result) == 0 {
		return nil, ErrNotFound
	}

	return result, nil
}

// Stations returns the ids of every station with stored readings.
func (s *MemoryStore) Stations() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func sortedDays(days map[dates.Key][]backfill.Record) []dates.Key {
	keys := make([]dates.Key, 0, len(days))
	for k := range days {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
