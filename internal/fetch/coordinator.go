// Package fetch is the single gateway to the upstream API: it deduplicates
// concurrent requests per key, caches results with per-key TTLs, retries
// transient failures with exponential backoff, and falls back to stale cache
// entries when the upstream stays down.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/couchcryptid/typhoon-info-service/internal/domain"
	"github.com/couchcryptid/typhoon-info-service/internal/observability"
)

const dateFmt = "20060102"

// Upstream is the bulletin source behind the coordinator. Implemented by
// the kma client.
type Upstream interface {
	ListStorms(ctx context.Context, from, to time.Time) ([]domain.CatalogEntry, error)
	TrackPoints(ctx context.Context, seq int, from, to time.Time) ([]domain.TrackPoint, error)
}

// Config tunes caching and retry behavior. Zero fields take defaults.
type Config struct {
	LiveTTL        time.Duration // volatile keys: active-storm listings, open-ended tracks
	HistoricalTTL  time.Duration // closed-season keys: historical records do not change
	MaxRetries     uint64        // retries after the first attempt
	InitialBackoff time.Duration
	PerTryTimeout  time.Duration
	MaxEntries     int
}

func (c *Config) applyDefaults() {
	if c.LiveTTL <= 0 {
		c.LiveTTL = 2 * time.Minute
	}
	if c.HistoricalTTL <= 0 {
		c.HistoricalTTL = 24 * time.Hour
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 200 * time.Millisecond
	}
	if c.PerTryTimeout <= 0 {
		c.PerTryTimeout = 15 * time.Second
	}
	if c.MaxEntries <= 0 {
		c.MaxEntries = 256
	}
}

type cacheEntry struct {
	value     any
	storedAt  time.Time
	expiresAt time.Time
}

// Coordinator implements single-flight, TTL-cached, retrying access to the
// upstream. Safe for concurrent use.
type Coordinator struct {
	upstream Upstream
	cfg      Config
	clock    clockwork.Clock
	logger   *slog.Logger
	metrics  *observability.Metrics

	flights singleflight.Group
	ready   atomic.Bool

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// NewCoordinator creates a Coordinator. Pass clockwork.NewRealClock outside
// of tests.
func NewCoordinator(upstream Upstream, cfg Config, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Coordinator {
	cfg.applyDefaults()
	return &Coordinator{
		upstream: upstream,
		cfg:      cfg,
		clock:    clock,
		logger:   logger,
		metrics:  metrics,
		cache:    make(map[string]cacheEntry),
	}
}

// CheckReadiness reports ready once one upstream fetch has succeeded.
func (c *Coordinator) CheckReadiness(_ context.Context) error {
	if !c.ready.Load() {
		return errors.New("no successful upstream fetch yet")
	}
	return nil
}

// LiveStorms lists storms with bulletins in [from, to], cached under the
// short live TTL. The bool result marks a stale fallback value.
func (c *Coordinator) LiveStorms(ctx context.Context, from, to time.Time) ([]domain.CatalogEntry, bool, error) {
	key := fmt.Sprintf("live:%s:%s", from.Format(dateFmt), to.Format(dateFmt))
	v, stale, err := c.fetch(ctx, key, c.cfg.LiveTTL, func(fctx context.Context) (any, error) {
		return c.upstream.ListStorms(fctx, from, to)
	})
	if err != nil {
		return nil, false, err
	}
	return v.([]domain.CatalogEntry), stale, nil
}

// SeasonCatalog lists the storms of one calendar year, cached under the
// long historical TTL.
func (c *Coordinator) SeasonCatalog(ctx context.Context, year int) ([]domain.CatalogEntry, bool, error) {
	from := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(year, 12, 31, 0, 0, 0, 0, time.UTC)
	key := fmt.Sprintf("catalog:%d", year)
	v, stale, err := c.fetch(ctx, key, c.cfg.HistoricalTTL, func(fctx context.Context) (any, error) {
		return c.upstream.ListStorms(fctx, from, to)
	})
	if err != nil {
		return nil, false, err
	}
	return v.([]domain.CatalogEntry), stale, nil
}

// TrackPoints fetches one storm's bulletin points in [from, to]. Ranges that
// end in the past are immutable history and cached under the historical TTL;
// ranges reaching the present use the live TTL.
func (c *Coordinator) TrackPoints(ctx context.Context, seq int, from, to time.Time) ([]domain.TrackPoint, bool, error) {
	ttl := c.cfg.LiveTTL
	if to.Before(c.clock.Now()) {
		ttl = c.cfg.HistoricalTTL
	}
	key := fmt.Sprintf("track:%d:%s:%s", seq, from.Format(dateFmt), to.Format(dateFmt))
	v, stale, err := c.fetch(ctx, key, ttl, func(fctx context.Context) (any, error) {
		return c.upstream.TrackPoints(fctx, seq, from, to)
	})
	if err != nil {
		return nil, false, err
	}
	return v.([]domain.TrackPoint), stale, nil
}

// fetch drives the per-key state machine: cache hit, else join or start the
// key's single flight, else stale fallback. The bool result marks a stale
// value.
func (c *Coordinator) fetch(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) (any, error)) (any, bool, error) {
	c.mu.Lock()
	e, ok := c.cache[key]
	c.mu.Unlock()
	if ok && c.clock.Now().Before(e.expiresAt) {
		c.metrics.CacheLookups.WithLabelValues("hit").Inc()
		return e.value, false, nil
	}
	c.metrics.CacheLookups.WithLabelValues("miss").Inc()

	// The flight runs on a detached context: a cancelled caller must not
	// abort the fetch for concurrent waiters, and a completed fetch still
	// populates the cache.
	flightCtx := context.WithoutCancel(ctx)
	ch := c.flights.DoChan(key, func() (any, error) {
		return c.fetchWithRetry(flightCtx, key, ttl, fn)
	})

	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case res := <-ch:
		if res.Shared {
			c.metrics.FlightsShared.Inc()
		}
		if res.Err != nil {
			return c.staleFallback(key, res.Err)
		}
		return res.Val, false, nil
	}
}

func (c *Coordinator) fetchWithRetry(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) (any, error)) (any, error) {
	start := c.clock.Now()

	var value any
	op := func() error {
		tryCtx, cancel := context.WithTimeout(ctx, c.cfg.PerTryTimeout)
		defer cancel()

		v, err := fn(tryCtx)
		if err != nil {
			if !isTransient(err) {
				return backoff.Permanent(err)
			}
			c.logger.Warn("upstream fetch attempt failed", "key", key, "error", err)
			return err
		}
		value = v
		return nil
	}

	err := backoff.Retry(op, c.newBackOff())
	c.metrics.UpstreamDuration.Observe(c.clock.Since(start).Seconds())
	if err != nil {
		c.metrics.UpstreamRequests.WithLabelValues("error").Inc()
		return nil, err
	}
	c.metrics.UpstreamRequests.WithLabelValues("success").Inc()

	c.storeEntry(key, value, ttl)
	c.ready.Store(true)
	return value, nil
}

func (c *Coordinator) newBackOff() backoff.BackOff {
	if c.cfg.MaxRetries == 0 {
		return &backoff.StopBackOff{}
	}
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.cfg.InitialBackoff
	eb.MaxElapsedTime = 0 // the retry budget alone bounds the attempts
	return backoff.WithMaxRetries(eb, c.cfg.MaxRetries)
}

// staleFallback serves an expired entry, flagged stale, rather than failing
// a caller that could still get an answer.
func (c *Coordinator) staleFallback(key string, fetchErr error) (any, bool, error) {
	c.mu.Lock()
	e, ok := c.cache[key]
	c.mu.Unlock()
	if !ok {
		return nil, false, &domain.UpstreamUnavailableError{Key: key, Err: fetchErr}
	}
	c.metrics.CacheLookups.WithLabelValues("stale").Inc()
	c.logger.Warn("serving stale cache after fetch failure",
		"key", key,
		"age", c.clock.Since(e.storedAt).String(),
		"error", fetchErr,
	)
	return e.value, true, nil
}

func (c *Coordinator) storeEntry(key string, value any, ttl time.Duration) {
	now := c.clock.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache[key] = cacheEntry{value: value, storedAt: now, expiresAt: now.Add(ttl)}

	// Bound the cache by dropping the oldest entry, never the one just
	// stored.
	if len(c.cache) > c.cfg.MaxEntries {
		var oldestKey string
		var oldest time.Time
		for k, e := range c.cache {
			if k == key {
				continue
			}
			if oldestKey == "" || e.storedAt.Before(oldest) {
				oldestKey, oldest = k, e.storedAt
			}
		}
		delete(c.cache, oldestKey)
	}
	c.metrics.CacheEntries.Set(float64(len(c.cache)))
}

// transienter is implemented by upstream errors that know their own
// retryability; anything else (transport failures, timeouts) is assumed
// transient.
type transienter interface {
	Transient() bool
}

func isTransient(err error) bool {
	var t transienter
	if errors.As(err, &t) {
		return t.Transient()
	}
	return true
}
