// Package cache stores last-known-good snapshots of platform reads in Redis
// so the workflow can serve stale data during a platform outage. The cache
// is never authoritative; it degrades to a no-op when Redis is unavailable.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"fx-backoffice/config"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Key builders, one per cached query scope
const (
	keyPendingAll  = "snapshot:pending:all"
	keyPendingUser = "snapshot:pending:user:%s"
	keyBalance     = "snapshot:balance:%s:%s"
)

// KeyPendingRequests returns the snapshot key for a pending-requests scope.
// An empty userID means the all-users scope.
func KeyPendingRequests(userID string) string {
	if userID == "" {
		return keyPendingAll
	}
	return fmt.Sprintf(keyPendingUser, userID)
}

// KeyBalance returns the snapshot key for one balance bucket
func KeyBalance(userID, accountType string) string {
	return fmt.Sprintf(keyBalance, userID, accountType)
}

// Envelope wraps a cached value with the time it was captured
type Envelope struct {
	CachedAt time.Time       `json:"cached_at"`
	Payload  json.RawMessage `json:"payload"`
}

// Snapshots is the Redis-backed snapshot store
type Snapshots struct {
	client  *redis.Client
	ttl     time.Duration
	logger  zerolog.Logger
	mu      sync.RWMutex
	healthy bool
}

// New creates a snapshot store. When Redis is disabled or unreachable the
// store runs in degraded mode: writes are dropped and reads miss.
func New(cfg config.RedisConfig, ttl time.Duration, logger zerolog.Logger) *Snapshots {
	s := &Snapshots{
		ttl:    ttl,
		logger: logger.With().Str("component", "snapshot-cache").Logger(),
	}

	if !cfg.Enabled {
		return s
	}

	s.client = redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.client.Ping(ctx).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("redis unavailable, snapshot cache degraded")
		return s
	}

	s.healthy = true
	s.logger.Info().Str("address", cfg.Address).Msg("snapshot cache connected")
	return s
}

// Healthy reports whether the cache is currently usable
func (s *Snapshots) Healthy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client != nil && s.healthy
}

// Put stores a snapshot. Failures are logged, not returned: losing a cache
// write must never fail the operation that produced the data.
func (s *Snapshots) Put(ctx context.Context, key string, value interface{}) {
	if !s.Healthy() {
		return
	}

	payload, err := json.Marshal(value)
	if err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("snapshot marshal failed")
		return
	}

	env, err := json.Marshal(Envelope{CachedAt: time.Now(), Payload: payload})
	if err != nil {
		return
	}

	if err := s.client.Set(ctx, key, env, s.ttl).Err(); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("snapshot write failed")
		s.markUnhealthy()
	}
}

// Get loads a snapshot into out. Returns the capture time and true on a
// hit; (zero, false) on miss or any cache failure.
func (s *Snapshots) Get(ctx context.Context, key string, out interface{}) (time.Time, bool) {
	if !s.Healthy() {
		return time.Time{}, false
	}

	data, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return time.Time{}, false
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("snapshot read failed")
		s.markUnhealthy()
		return time.Time{}, false
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return time.Time{}, false
	}
	if err := json.Unmarshal(env.Payload, out); err != nil {
		return time.Time{}, false
	}

	return env.CachedAt, true
}

// Invalidate drops a snapshot, e.g. after the authoritative value changed
func (s *Snapshots) Invalidate(ctx context.Context, key string) {
	if !s.Healthy() {
		return
	}
	if err := s.client.Del(ctx, key).Err(); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("snapshot invalidate failed")
	}
}

// Close releases the Redis connection
func (s *Snapshots) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *Snapshots) markUnhealthy() {
	s.mu.Lock()
	s.healthy = false
	s.mu.Unlock()

	// Probe for recovery in the background so one blip does not disable
	// the cache for the rest of the process lifetime.
	go func() {
		time.Sleep(30 * time.Second)
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := s.client.Ping(ctx).Err(); err == nil {
			s.mu.Lock()
			s.healthy = true
			s.mu.Unlock()
			s.logger.Info().Msg("snapshot cache recovered")
		}
	}()
}
