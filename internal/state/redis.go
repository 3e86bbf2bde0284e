package state

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/i474232898/air-temperature-backfill/internal/dates"
)

// DefaultRedisKey names the Redis set used when none is configured.
const DefaultRedisKey = "airtemp:fetched_dates"

// RedisStore keeps the days as members of a Redis set.
type RedisStore struct {
	redis *redis.Client
	key   string
}

// NewRedisStore connects to addr and verifies the connection.
func NewRedisStore(ctx context.Context, addr string, db int, key string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return NewRedisStoreFromClient(client, key), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client, key string) *RedisStore {
	if client == nil {
		panic("redis client cannot be nil")
	}
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{redis: client, key: key}
}

func (s *RedisStore) Load(ctx context.Context) (dates.Set, error) {
	members, err := s.redis.SMembers(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers: %w", err)
	}
	set := make(dates.Set, len(members))
	for _, m := range members {
		set[dates.Key(m)] = dates.Present{}
	}
	return set, nil
}

func (s *RedisStore) Add(ctx context.Context, days dates.Set) error {
	if days.Len() == 0 {
		return nil
	}
	members := make([]interface{}, 0, days.Len())
	for _, d := range days.Sorted() {
		members = append(members, d.String())
	}
	if err := s.redis.SAdd(ctx, s.key, members...).Err(); err != nil {
		return fmt.Errorf("redis sadd: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.redis.Close()
}
