package state

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/air-temperature-backfill/internal/dates"
)

// exerciseStore checks the contract shared by every backend.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Len())

	require.NoError(t, s.Add(ctx, dates.NewSet("2019-10-10", "2019-10-11")))
	require.NoError(t, s.Add(ctx, dates.NewSet("2019-10-11", "2019-10-12")))
	require.NoError(t, s.Add(ctx, dates.Set{}))

	got, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, dates.NewSet("2019-10-10", "2019-10-11", "2019-10-12"), got)

	// Mutating a loaded set must not leak back into the store.
	delete(got, "2019-10-10")
	again, err := s.Load(ctx)
	require.NoError(t, err)
	assert.True(t, again.Has("2019-10-10"))
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "fetched_dates.json")
	exerciseStore(t, NewFileStore(path))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"dates": ["2019-10-10", "2019-10-11", "2019-10-12"]}`, string(b))

	// A second store on the same file sees the persisted days.
	got, err := NewFileStore(path).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, got.Len())
}

func TestFileStore_ConcurrentAddsKeepEveryDay(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "state.json"))
	days, err := dates.Generate("2019-10-01", "2019-10-31")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for _, d := range days.Sorted() {
		wg.Add(1)
		go func(d dates.Key) {
			defer wg.Done()
			assert.NoError(t, s.Add(context.Background(), dates.NewSet(d)))
		}(d)
	}
	wg.Wait()

	got, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, days, got)
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := NewFileStore(path).Load(context.Background())
	require.Error(t, err)
}

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	s, err := NewSQLiteStore(ctx, path)
	require.NoError(t, err)
	exerciseStore(t, s)
	require.NoError(t, s.Close())

	reopened, err := NewSQLiteStore(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	got, err := reopened.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Len())
}

func TestSQLiteStore_InMemory(t *testing.T) {
	s, err := NewSQLiteStore(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	exerciseStore(t, s)
}

func TestRedisStore(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // Use a separate DB for tests
	})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skipf("Redis not available for testing: %v", err)
	}

	key := "airtemp:test:" + t.Name()
	require.NoError(t, client.Del(ctx, key).Err())
	t.Cleanup(func() {
		client.Del(context.Background(), key)
		client.Close()
	})

	exerciseStore(t, NewRedisStoreFromClient(client, key))
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, Config{Backend: BackendMemory})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = Open(ctx, Config{Backend: BackendFile, FilePath: filepath.Join(t.TempDir(), "s.json")})
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)

	s, err = Open(ctx, Config{Backend: BackendSQLite, SQLitePath: filepath.Join(t.TempDir(), "s.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	require.NoError(t, s.Close())

	_, err = Open(ctx, Config{Backend: "etcd"})
	require.ErrorIs(t, err, ErrUnknownBackend)
}
