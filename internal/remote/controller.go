// Package remote wraps platform calls with bounded retry and, for reads,
// fallback to the last cached snapshot. Writes never fall back: a balance
// or status write that only landed in a local cache would desynchronize
// money figures from the backend of record.
package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fx-backoffice/config"
	"fx-backoffice/internal/events"
	"fx-backoffice/internal/platform"

	"github.com/rs/zerolog"
)

var (
	// ErrRemoteUnavailable means a read exhausted its retries and no
	// cached snapshot existed to fall back to.
	ErrRemoteUnavailable = errors.New("remote: platform unavailable and no cached snapshot")

	// ErrPersistenceFailed means a write exhausted its retries. The caller
	// must leave its in-memory state unchanged and ask the operator to
	// retry manually.
	ErrPersistenceFailed = errors.New("remote: write failed after retries")
)

// SnapshotCache is the slice of the snapshot store the controller needs
type SnapshotCache interface {
	Put(ctx context.Context, key string, value interface{})
	Get(ctx context.Context, key string, out interface{}) (time.Time, bool)
}

// Controller applies the retry policy around platform calls
type Controller struct {
	maxRetries  int
	backoffBase time.Duration
	cache       SnapshotCache
	bus         *events.EventBus
	logger      zerolog.Logger
}

// NewController creates a retry controller. cache may be nil, in which case
// reads have no fallback. bus may be nil, in which case retry exhaustion is
// only logged.
func NewController(cfg config.RetryConfig, cache SnapshotCache, bus *events.EventBus, logger zerolog.Logger) *Controller {
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	base := cfg.BackoffBase
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	return &Controller{
		maxRetries:  maxRetries,
		backoffBase: base,
		cache:       cache,
		bus:         bus,
		logger:      logger.With().Str("component", "remote").Logger(),
	}
}

// ReadResult carries a read's value plus staleness information
type ReadResult[T any] struct {
	Value    T
	Stale    bool
	CachedAt time.Time
}

// Read performs a platform read with retry and cache fallback. Transient
// failures are retried with exponential backoff; on exhaustion the last
// snapshot stored under cacheKey is returned tagged stale. Non-transient
// errors (auth, business rules) are surfaced immediately without retry.
// An empty cacheKey disables both snapshot capture and fallback, for reads
// that must never be served stale.
func Read[T any](ctx context.Context, c *Controller, cacheKey string, fetch func(context.Context) (T, error)) (ReadResult[T], error) {
	var result ReadResult[T]
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := c.backoff(ctx, attempt); err != nil {
				return result, err
			}
		}

		value, err := fetch(ctx)
		if err == nil {
			result.Value = value
			if cacheKey != "" && c.cache != nil {
				c.cache.Put(ctx, cacheKey, value)
			}
			return result, nil
		}

		if !platform.IsTransient(err) {
			return result, err
		}

		lastErr = err
		c.logger.Warn().Err(err).Int("attempt", attempt+1).Str("cache_key", cacheKey).
			Msg("platform read failed")
	}

	if c.bus != nil {
		c.bus.PublishPlatformDegraded("read "+cacheKey, c.maxRetries+1, lastErr)
	}

	if cacheKey != "" && c.cache != nil {
		var cached T
		if cachedAt, ok := c.cache.Get(ctx, cacheKey, &cached); ok {
			c.logger.Warn().Str("cache_key", cacheKey).Time("cached_at", cachedAt).
				Msg("serving stale snapshot after platform outage")
			result.Value = cached
			result.Stale = true
			result.CachedAt = cachedAt
			return result, nil
		}
	}

	return result, fmt.Errorf("%w: %v", ErrRemoteUnavailable, lastErr)
}

// Write performs a platform write with retry but no fallback. On exhaustion
// it reports ErrPersistenceFailed wrapping the last error.
func (c *Controller) Write(ctx context.Context, op string, fn func(context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := c.backoff(ctx, attempt); err != nil {
				return err
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}

		if !platform.IsTransient(err) {
			return err
		}

		lastErr = err
		c.logger.Warn().Err(err).Int("attempt", attempt+1).Str("operation", op).
			Msg("platform write failed")
	}

	if c.bus != nil {
		c.bus.PublishPlatformDegraded(op, c.maxRetries+1, lastErr)
	}

	return fmt.Errorf("%w: %s: %v", ErrPersistenceFailed, op, lastErr)
}

// backoff sleeps for the attempt's delay, doubling each time
func (c *Controller) backoff(ctx context.Context, attempt int) error {
	delay := c.backoffBase << (attempt - 1)
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
