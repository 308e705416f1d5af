package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/typhoon-info-service/internal/domain"
	"github.com/couchcryptid/typhoon-info-service/internal/observability"
)

type fetchErr struct{ transient bool }

func (e *fetchErr) Error() string   { return "upstream boom" }
func (e *fetchErr) Transient() bool { return e.transient }

// stubUpstream counts calls and delegates to overridable funcs.
type stubUpstream struct {
	listCalls  atomic.Int64
	trackCalls atomic.Int64

	mu      sync.Mutex
	listFn  func(ctx context.Context, from, to time.Time) ([]domain.CatalogEntry, error)
	trackFn func(ctx context.Context, seq int, from, to time.Time) ([]domain.TrackPoint, error)
}

func (s *stubUpstream) ListStorms(ctx context.Context, from, to time.Time) ([]domain.CatalogEntry, error) {
	s.listCalls.Add(1)
	s.mu.Lock()
	fn := s.listFn
	s.mu.Unlock()
	if fn == nil {
		return []domain.CatalogEntry{{Seq: 2401, Name: "개미", NameEN: "GAEMI", Year: 2024}}, nil
	}
	return fn(ctx, from, to)
}

func (s *stubUpstream) TrackPoints(ctx context.Context, seq int, from, to time.Time) ([]domain.TrackPoint, error) {
	s.trackCalls.Add(1)
	s.mu.Lock()
	fn := s.trackFn
	s.mu.Unlock()
	if fn == nil {
		return []domain.TrackPoint{{ValidTime: from, Position: domain.Position{Lat: 20, Lon: 130}, InfluenceRadiusKm: 300}}, nil
	}
	return fn(ctx, seq, from, to)
}

func (s *stubUpstream) setListFn(fn func(ctx context.Context, from, to time.Time) ([]domain.CatalogEntry, error)) {
	s.mu.Lock()
	s.listFn = fn
	s.mu.Unlock()
}

func testCoordinator(t *testing.T, upstream Upstream, cfg Config, clock clockwork.Clock) *Coordinator {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	return NewCoordinator(upstream, cfg, clock, logger, observability.NewMetricsForTesting())
}

func TestCoordinatorCachesWithinTTL(t *testing.T) {
	clock := clockwork.NewFakeClock()
	upstream := &stubUpstream{}
	coord := testCoordinator(t, upstream, Config{LiveTTL: 2 * time.Minute}, clock)

	from := time.Date(2024, 7, 20, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 7, 24, 0, 0, 0, 0, time.UTC)

	first, stale, err := coord.LiveStorms(context.Background(), from, to)
	require.NoError(t, err)
	assert.False(t, stale)
	require.Len(t, first, 1)
	assert.Equal(t, 2401, first[0].Seq)

	second, stale, err := coord.LiveStorms(context.Background(), from, to)
	require.NoError(t, err)
	assert.False(t, stale)
	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), upstream.listCalls.Load())

	clock.Advance(3 * time.Minute)

	_, _, err = coord.LiveStorms(context.Background(), from, to)
	require.NoError(t, err)
	assert.Equal(t, int64(2), upstream.listCalls.Load())
}

func TestCoordinatorSingleFlightDeduplicates(t *testing.T) {
	release := make(chan struct{})
	upstream := &stubUpstream{}
	upstream.setListFn(func(ctx context.Context, from, to time.Time) ([]domain.CatalogEntry, error) {
		<-release
		return []domain.CatalogEntry{{Seq: 2401, Name: "개미", Year: 2024}}, nil
	})
	coord := testCoordinator(t, upstream, Config{}, clockwork.NewFakeClock())

	from := time.Date(2024, 7, 20, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 7, 24, 0, 0, 0, 0, time.UTC)

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = coord.LiveStorms(context.Background(), from, to)
		}(i)
	}

	// Let every caller reach the flight before releasing the upstream.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "caller %d", i)
	}
	assert.Equal(t, int64(1), upstream.listCalls.Load())
}

func TestCoordinatorRetriesTransientFailures(t *testing.T) {
	tests := []struct {
		name       string
		failures   int64
		maxRetries uint64
		wantCalls  int64
		wantErr    bool
	}{
		{name: "budget covers failures", failures: 3, maxRetries: 3, wantCalls: 4, wantErr: false},
		{name: "budget exhausted", failures: 3, maxRetries: 2, wantCalls: 3, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			upstream := &stubUpstream{}
			upstream.setListFn(func(ctx context.Context, from, to time.Time) ([]domain.CatalogEntry, error) {
				if upstream.listCalls.Load() <= tt.failures {
					return nil, &fetchErr{transient: true}
				}
				return []domain.CatalogEntry{{Seq: 2401, Name: "개미", Year: 2024}}, nil
			})
			cfg := Config{MaxRetries: tt.maxRetries, InitialBackoff: time.Millisecond}
			coord := testCoordinator(t, upstream, cfg, clockwork.NewFakeClock())

			from := time.Date(2024, 7, 20, 0, 0, 0, 0, time.UTC)
			to := time.Date(2024, 7, 24, 0, 0, 0, 0, time.UTC)

			entries, _, err := coord.LiveStorms(context.Background(), from, to)
			if tt.wantErr {
				var unavailable *domain.UpstreamUnavailableError
				require.ErrorAs(t, err, &unavailable)
			} else {
				require.NoError(t, err)
				require.Len(t, entries, 1)
			}
			assert.Equal(t, tt.wantCalls, upstream.listCalls.Load())
		})
	}
}

func TestCoordinatorDoesNotRetryPermanentFailures(t *testing.T) {
	upstream := &stubUpstream{}
	upstream.setListFn(func(ctx context.Context, from, to time.Time) ([]domain.CatalogEntry, error) {
		return nil, &fetchErr{transient: false}
	})
	coord := testCoordinator(t, upstream, Config{MaxRetries: 5, InitialBackoff: time.Millisecond}, clockwork.NewFakeClock())

	from := time.Date(2024, 7, 20, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 7, 24, 0, 0, 0, 0, time.UTC)

	_, _, err := coord.LiveStorms(context.Background(), from, to)
	var unavailable *domain.UpstreamUnavailableError
	require.ErrorAs(t, err, &unavailable)

	var permanent *fetchErr
	require.ErrorAs(t, err, &permanent)
	assert.Equal(t, int64(1), upstream.listCalls.Load())
}

func TestCoordinatorServesStaleOnFailure(t *testing.T) {
	clock := clockwork.NewFakeClock()
	upstream := &stubUpstream{}
	coord := testCoordinator(t, upstream, Config{LiveTTL: 2 * time.Minute}, clock)

	from := time.Date(2024, 7, 20, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 7, 24, 0, 0, 0, 0, time.UTC)

	fresh, stale, err := coord.LiveStorms(context.Background(), from, to)
	require.NoError(t, err)
	assert.False(t, stale)

	clock.Advance(10 * time.Minute)
	upstream.setListFn(func(ctx context.Context, from, to time.Time) ([]domain.CatalogEntry, error) {
		return nil, &fetchErr{transient: false}
	})

	got, stale, err := coord.LiveStorms(context.Background(), from, to)
	require.NoError(t, err)
	assert.True(t, stale)
	assert.Equal(t, fresh, got)
}

func TestCoordinatorFailsWithoutCacheFallback(t *testing.T) {
	upstream := &stubUpstream{}
	upstream.setListFn(func(ctx context.Context, from, to time.Time) ([]domain.CatalogEntry, error) {
		return nil, &fetchErr{transient: false}
	})
	coord := testCoordinator(t, upstream, Config{}, clockwork.NewFakeClock())

	from := time.Date(2024, 7, 20, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 7, 24, 0, 0, 0, 0, time.UTC)

	_, _, err := coord.LiveStorms(context.Background(), from, to)
	var unavailable *domain.UpstreamUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Contains(t, unavailable.Key, "live:")
}

func TestCoordinatorCancelledCallerDoesNotAbortFlight(t *testing.T) {
	release := make(chan struct{})
	upstream := &stubUpstream{}
	upstream.setListFn(func(ctx context.Context, from, to time.Time) ([]domain.CatalogEntry, error) {
		select {
		case <-release:
			return []domain.CatalogEntry{{Seq: 2401, Name: "개미", Year: 2024}}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	coord := testCoordinator(t, upstream, Config{LiveTTL: 2 * time.Minute}, clockwork.NewFakeClock())

	from := time.Date(2024, 7, 20, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 7, 24, 0, 0, 0, 0, time.UTC)
	key := fmt.Sprintf("live:%s:%s", from.Format(dateFmt), to.Format(dateFmt))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, _, err := coord.LiveStorms(ctx, from, to)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	// The flight keeps running on a detached context and still populates
	// the cache.
	close(release)
	require.Eventually(t, func() bool {
		coord.mu.Lock()
		defer coord.mu.Unlock()
		_, ok := coord.cache[key]
		return ok
	}, time.Second, 5*time.Millisecond)

	entries, stale, err := coord.LiveStorms(context.Background(), from, to)
	require.NoError(t, err)
	assert.False(t, stale)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(1), upstream.listCalls.Load())
}

func TestCoordinatorTrackTTLDependsOnRange(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	upstream := &stubUpstream{}
	cfg := Config{LiveTTL: 2 * time.Minute, HistoricalTTL: 24 * time.Hour}
	coord := testCoordinator(t, upstream, cfg, clock)

	// A range entirely in the past stays cached long after the live TTL.
	histFrom := time.Date(2019, 9, 1, 0, 0, 0, 0, time.UTC)
	histTo := time.Date(2019, 9, 10, 0, 0, 0, 0, time.UTC)
	_, _, err := coord.TrackPoints(context.Background(), 1913, histFrom, histTo)
	require.NoError(t, err)

	clock.Advance(time.Hour)
	_, _, err = coord.TrackPoints(context.Background(), 1913, histFrom, histTo)
	require.NoError(t, err)
	assert.Equal(t, int64(1), upstream.trackCalls.Load())

	// A range reaching into the future expires on the live TTL.
	liveFrom := time.Date(2026, 7, 28, 0, 0, 0, 0, time.UTC)
	liveTo := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)
	_, _, err = coord.TrackPoints(context.Background(), 2605, liveFrom, liveTo)
	require.NoError(t, err)

	clock.Advance(time.Hour)
	_, _, err = coord.TrackPoints(context.Background(), 2605, liveFrom, liveTo)
	require.NoError(t, err)
	assert.Equal(t, int64(3), upstream.trackCalls.Load())
}

func TestCoordinatorEvictsOldestEntry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	upstream := &stubUpstream{}
	coord := testCoordinator(t, upstream, Config{LiveTTL: time.Hour, MaxEntries: 2}, clock)

	base := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		from := base.AddDate(0, 0, i)
		_, _, err := coord.LiveStorms(context.Background(), from, from.AddDate(0, 0, 1))
		require.NoError(t, err)
		clock.Advance(time.Second)
	}
	assert.Equal(t, int64(3), upstream.listCalls.Load())

	// The first key was evicted, so fetching it again hits the upstream.
	_, _, err := coord.LiveStorms(context.Background(), base, base.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, int64(4), upstream.listCalls.Load())

	// The newest key is still cached.
	from := base.AddDate(0, 0, 2)
	_, _, err = coord.LiveStorms(context.Background(), from, from.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, int64(4), upstream.listCalls.Load())
}

func TestCoordinatorReadiness(t *testing.T) {
	upstream := &stubUpstream{}
	coord := testCoordinator(t, upstream, Config{}, clockwork.NewFakeClock())

	require.Error(t, coord.CheckReadiness(context.Background()))

	from := time.Date(2024, 7, 20, 0, 0, 0, 0, time.UTC)
	_, _, err := coord.LiveStorms(context.Background(), from, from.AddDate(0, 0, 4))
	require.NoError(t, err)

	assert.NoError(t, coord.CheckReadiness(context.Background()))
}
