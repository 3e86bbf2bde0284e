package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/air-temperature-backfill/internal/airtemp"
	"github.com/i474232898/air-temperature-backfill/internal/backfill"
	"github.com/i474232898/air-temperature-backfill/internal/dates"
	"github.com/i474232898/air-temperature-backfill/internal/state"
	"github.com/i474232898/air-temperature-backfill/internal/store"
)

// fakeSource serves a two-item air-temperature payload for every day, except
// days listed in fail (fetch error) and corrupt (unreadable payload).
type fakeSource struct {
	mu      sync.Mutex
	calls   []dates.Key
	fail    dates.Set
	corrupt dates.Set
}

func (f *fakeSource) fetch(_ context.Context, d dates.Key) (backfill.Payload, error) {
	f.mu.Lock()
	f.calls = append(f.calls, d)
	f.mu.Unlock()

	if f.fail.Has(d) {
		return nil, errors.New("503 from upstream")
	}
	if f.corrupt.Has(d) {
		return backfill.Payload(`{"metadata": {}}`), nil
	}
	return backfill.Payload(fmt.Sprintf(`{
		"items": [
			{"timestamp": "%[1]sT00:00:00+08:00", "readings": [{"station_id": "S109", "value": 27.1}]},
			{"timestamp": "%[1]sT00:01:00+08:00", "readings": [{"station_id": "S50", "value": 26.0}]}
		]
	}`, d)), nil
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestService(src *fakeSource) (*Service, *state.MemoryStore, *store.MemoryStore) {
	states := state.NewMemoryStore()
	readings := store.NewMemoryStore(0)
	svc := NewService(src.fetch, airtemp.ChooseStation, states, readings, WithConcurrency(3))
	return svc, states, readings
}

func TestService_Run(t *testing.T) {
	src := &fakeSource{fail: dates.NewSet("2019-10-11")}
	svc, states, _ := newTestService(src)
	ctx := context.Background()

	report, err := svc.Run(ctx, Request{Start: "2019-10-10", End: "2019-10-12", StationID: "S109"})
	require.NoError(t, err)

	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, 3, report.Candidates)
	assert.Equal(t, 0, report.Skipped)
	assert.Equal(t, []dates.Key{"2019-10-10", "2019-10-12"}, report.Fetched)
	assert.Equal(t, []dates.Key{"2019-10-11"}, report.Failed)

	saved, err := states.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, dates.NewSet("2019-10-10", "2019-10-12"), saved)

	days, err := svc.Readings("S109", "2019-10-10", "2019-10-12")
	require.NoError(t, err)
	require.Len(t, days, 2)
	require.Len(t, days[0].Records, 2)
	require.NotNil(t, days[0].Records[0].Value)
	assert.InDelta(t, 27.1, *days[0].Records[0].Value, 1e-9)
	assert.Nil(t, days[0].Records[1].Value)
}

func TestService_RunResumes(t *testing.T) {
	src := &fakeSource{fail: dates.NewSet("2019-10-11")}
	svc, _, _ := newTestService(src)
	ctx := context.Background()
	req := Request{Start: "2019-10-10", End: "2019-10-12", StationID: "S109"}

	_, err := svc.Run(ctx, req)
	require.NoError(t, err)
	require.Equal(t, 3, src.callCount())

	// The upstream recovers; only the failed day is fetched again.
	src.fail = nil
	report, err := svc.Run(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 4, src.callCount())
	assert.Equal(t, 2, report.Skipped)
	assert.Equal(t, []dates.Key{"2019-10-11"}, report.Fetched)
	assert.Empty(t, report.Failed)

	got, err := svc.FetchedDates(ctx)
	require.NoError(t, err)
	assert.Equal(t, []dates.Key{"2019-10-10", "2019-10-11", "2019-10-12"}, got)
}

func TestService_RunForceRefetches(t *testing.T) {
	src := &fakeSource{}
	svc, states, _ := newTestService(src)
	ctx := context.Background()
	require.NoError(t, states.Add(ctx, dates.NewSet("2019-10-10", "2019-01-01")))

	report, err := svc.Run(ctx, Request{Start: "2019-10-10", End: "2019-10-11", StationID: "S109", Force: true})
	require.NoError(t, err)
	assert.Equal(t, 2, src.callCount())
	assert.Equal(t, 0, report.Skipped)

	saved, err := states.Load(ctx)
	require.NoError(t, err)
	assert.True(t, saved.Has("2019-01-01"), "forced runs never shrink the saved state")
	assert.Equal(t, 3, saved.Len())
}

func TestService_RunDataIntegrityLeavesStateUntouched(t *testing.T) {
	src := &fakeSource{corrupt: dates.NewSet("2019-10-11")}
	svc, states, readings := newTestService(src)
	ctx := context.Background()

	_, err := svc.Run(ctx, Request{Start: "2019-10-10", End: "2019-10-12", StationID: "S109"})
	require.ErrorIs(t, err, backfill.ErrDataIntegrity)
	require.ErrorIs(t, err, airtemp.ErrMalformedPayload)

	saved, err := states.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, saved.Len())

	_, err = readings.GetRange("S109", "2019-10-10", "2019-10-12")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestService_RunInvalidRange(t *testing.T) {
	src := &fakeSource{}
	svc, _, _ := newTestService(src)

	_, err := svc.Run(context.Background(), Request{Start: "2019-10-12", End: "2019-10-10", StationID: "S109"})
	require.ErrorIs(t, err, dates.ErrInvalidRange)
	assert.Equal(t, 0, src.callCount())
}

func TestService_RunRequiresStation(t *testing.T) {
	svc, _, _ := newTestService(&fakeSource{})
	_, err := svc.Run(context.Background(), Request{Start: "2019-10-10", End: "2019-10-10"})
	require.Error(t, err)
}

func TestService_RunCancelled(t *testing.T) {
	svc, states, _ := newTestService(&fakeSource{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Run(ctx, Request{Start: "2019-10-10", End: "2019-10-12", StationID: "S109"})
	require.ErrorIs(t, err, backfill.ErrCancelled)

	saved, err := states.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, saved.Len())
}

// gatedSource blocks every fetch until release is closed, or until the fetch
// context ends.
type gatedSource struct {
	fakeSource
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedSource() *gatedSource {
	return &gatedSource{started: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedSource) fetch(ctx context.Context, d dates.Key) (backfill.Payload, error) {
	g.once.Do(func() { close(g.started) })
	select {
	case <-g.release:
		return g.fakeSource.fetch(ctx, d)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Service) waiters(req Request) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.flights[req.key()]; ok {
		return f.waiters
	}
	return 0
}

type runResult struct {
	report Report
	err    error
}

func TestService_RunSharedSurvivesOneCallerCancelling(t *testing.T) {
	src := newGatedSource()
	states := state.NewMemoryStore()
	svc := NewService(src.fetch, airtemp.ChooseStation, states, store.NewMemoryStore(0), WithConcurrency(3))
	req := Request{Start: "2019-10-10", End: "2019-10-11", StationID: "S109"}

	ctxA, cancelA := context.WithCancel(context.Background())
	defer cancelA()

	resA := make(chan runResult, 1)
	go func() {
		r, err := svc.Run(ctxA, req)
		resA <- runResult{r, err}
	}()
	<-src.started

	resB := make(chan runResult, 1)
	go func() {
		r, err := svc.Run(context.Background(), req)
		resB <- runResult{r, err}
	}()
	require.Eventually(t, func() bool { return svc.waiters(req) == 2 }, time.Second, time.Millisecond)

	cancelA()
	a := <-resA
	require.ErrorIs(t, a.err, backfill.ErrCancelled)

	close(src.release)
	b := <-resB
	require.NoError(t, b.err)
	assert.Equal(t, []dates.Key{"2019-10-10", "2019-10-11"}, b.report.Fetched)

	saved, err := states.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, saved.Len())
}

func TestService_RunCancelledByLastCallerInterruptsFetch(t *testing.T) {
	src := newGatedSource()
	states := state.NewMemoryStore()
	svc := NewService(src.fetch, airtemp.ChooseStation, states, store.NewMemoryStore(0))
	req := Request{Start: "2019-10-10", End: "2019-10-11", StationID: "S109"}

	ctx, cancel := context.WithCancel(context.Background())
	res := make(chan runResult, 1)
	go func() {
		r, err := svc.Run(ctx, req)
		res <- runResult{r, err}
	}()
	<-src.started

	cancel()
	got := <-res
	require.ErrorIs(t, got.err, backfill.ErrCancelled)

	// The abandoned run sees its context cancelled and is not joined again.
	require.Eventually(t, func() bool { return svc.waiters(req) == 0 }, time.Second, time.Millisecond)
	saved, err := states.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, saved.Len())
}
