// Package state persists the set of days whose payload has already been
// fetched, so a backfill can resume where the previous run stopped.
//
// Every backend only ever grows: Add merges days into what is stored and no
// operation removes a day.
package state

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/i474232898/air-temperature-backfill/internal/dates"
)

var (
	// ErrUnknownBackend is returned by Open for an unsupported backend name.
	ErrUnknownBackend = errors.New("unknown state backend")
)

// Store loads and extends the fetched-days set.
type Store interface {
	Load(ctx context.Context) (dates.Set, error)
	Add(ctx context.Context, days dates.Set) error
	Close() error
}

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config selects and configures a backend.
type Config struct {
	Backend    string
	FilePath   string
	SQLitePath string
	RedisAddr  string
	RedisDB    int
	RedisKey   string
}

// Open returns the Store named by cfg.Backend.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case BackendFile:
		return NewFileStore(cfg.FilePath), nil
	case BackendSQLite:
		s, err := NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendRedis:
		s, err := NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisDB, cfg.RedisKey)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendMemory, "":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

// MemoryStore keeps the set in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	days dates.Set
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{days: dates.Set{}}
}

func (s *MemoryStore) Load(context.Context) (dates.Set, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.days.Clone(), nil
}

func (s *MemoryStore) Add(_ context.Context, days dates.Set) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for d := range days {
		s.days[d] = dates.Present{}
	}
	return nil
}

func (s *MemoryStore) Close() error { return nil }
