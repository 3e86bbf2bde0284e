package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
	_ "time/tzdata"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/i474232898/air-temperature-backfill/internal/airtemp"
	"github.com/i474232898/air-temperature-backfill/internal/backfill"
	"github.com/i474232898/air-temperature-backfill/internal/dates"
	"github.com/i474232898/air-temperature-backfill/internal/state"
)

var validate = validator.New()

type AppConfig struct {
	DataSourceURL string        `validate:"required,url"`
	HTTPTimeout   time.Duration `validate:"gt=0"`

	// Concurrency bounds in-flight fetch and extract calls.
	Concurrency int `validate:"min=1"`

	// StationID is the station projected by scheduled runs and the default for API runs.
	StationID string `validate:"required"`

	// Scheduled backfill covers [StartDate, today - LagDays]. Empty StartDate disables it.
	StartDate     dates.Key
	LagDays       int            `validate:"min=0"`
	FetchInterval time.Duration  `validate:"gt=0"`
	Location      *time.Location `validate:"-"`

	// ScheduleRunTimeout bounds one scheduled run (0 = no limit).
	ScheduleRunTimeout time.Duration

	State state.Config

	// StoreMaxDays caps days kept per station in memory (0 = unlimited).
	StoreMaxDays int `validate:"min=0"`

	LogLevel  string `validate:"omitempty,oneof=debug info warn warning error"`
	LogPretty bool

	Port string `validate:"required,numeric"`
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	// A missing .env file is normal outside local development.
	_ = godotenv.Load()

	cfg := &AppConfig{}

	cfg.DataSourceURL = getenvDefault("DATA_SOURCE_URL", airtemp.DefaultBaseURL)

	timeout, err := time.ParseDuration(getenvDefault("HTTP_TIMEOUT", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid HTTP_TIMEOUT: %w", err)
	}
	cfg.HTTPTimeout = timeout

	cfg.Concurrency = getenvInt("FETCH_CONCURRENCY", backfill.DefaultConcurrency)
	cfg.StationID = getenvDefault("STATION_ID", "S109")

	if start := os.Getenv("BACKFILL_START_DATE"); start != "" {
		if _, err := dates.Key(start).Time(); err != nil {
			return nil, fmt.Errorf("invalid BACKFILL_START_DATE: %w", err)
		}
		cfg.StartDate = dates.Key(start)
	}
	cfg.LagDays = getenvInt("BACKFILL_LAG_DAYS", 1)

	// Scheduler interval: default 1 hour.
	interval, err := time.ParseDuration(getenvDefault("FETCH_INTERVAL", "1h"))
	if err != nil {
		return nil, fmt.Errorf("invalid FETCH_INTERVAL: %w", err)
	}
	cfg.FetchInterval = interval

	runTimeout, err := time.ParseDuration(getenvDefault("SCHEDULE_RUN_TIMEOUT", "0s"))
	if err != nil || runTimeout < 0 {
		return nil, fmt.Errorf("invalid SCHEDULE_RUN_TIMEOUT %q", os.Getenv("SCHEDULE_RUN_TIMEOUT"))
	}
	cfg.ScheduleRunTimeout = runTimeout

	loc, err := time.LoadLocation(getenvDefault("TIMEZONE", "Asia/Singapore"))
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE: %w", err)
	}
	cfg.Location = loc

	cfg.State = state.Config{
		Backend:    getenvDefault("STATE_BACKEND", state.BackendFile),
		FilePath:   getenvDefault("STATE_PATH", "data/fetched_dates.json"),
		SQLitePath: getenvDefault("SQLITE_PATH", "data/state.db"),
		RedisAddr:  getenvDefault("REDIS_ADDR", "localhost:6379"),
		RedisDB:    getenvInt("REDIS_DB", 0),
		RedisKey:   getenvDefault("REDIS_KEY", state.DefaultRedisKey),
	}
	switch cfg.State.Backend {
	case state.BackendFile, state.BackendSQLite, state.BackendRedis, state.BackendMemory:
	default:
		return nil, fmt.Errorf("invalid STATE_BACKEND %q", cfg.State.Backend)
	}

	cfg.StoreMaxDays = getenvInt("STORE_MAX_DAYS", 0)

	cfg.LogLevel = getenvDefault("LOG_LEVEL", "info")
	cfg.LogPretty = getenvBool("LOG_PRETTY", false)
	cfg.Port = getenvDefault("PORT", "8080")

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}
