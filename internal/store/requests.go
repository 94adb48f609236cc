// Package store holds the admin's current view of payment requests: pending
// deposits and withdrawals for one scope, loaded from the platform and
// replaced wholesale on each load. Single-operator, last-write-wins.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"fx-backoffice/internal/cache"
	"fx-backoffice/internal/events"
	"fx-backoffice/internal/platform"
	"fx-backoffice/internal/remote"

	"github.com/rs/zerolog"
)

// Scope selects whose requests to load. The zero value means all users.
type Scope struct {
	UserID string
}

func (s Scope) String() string {
	if s.UserID == "" {
		return "all"
	}
	return "user:" + s.UserID
}

// PendingLister is the slice of the platform client the store uses
type PendingLister interface {
	ListPendingDeposits(ctx context.Context, auth platform.AuthContext, userID string) ([]platform.PaymentRequest, error)
	ListPendingWithdrawals(ctx context.Context, auth platform.AuthContext, userID string) ([]platform.PaymentRequest, error)
}

// LoadResult is a loaded snapshot plus staleness information
type LoadResult struct {
	Requests []platform.PaymentRequest
	Stale    bool
	CachedAt time.Time
}

// RequestStore caches the current request set in memory
type RequestStore struct {
	lister PendingLister
	ctrl   *remote.Controller
	bus    *events.EventBus
	logger zerolog.Logger

	mu       sync.RWMutex
	byID     map[string]platform.PaymentRequest
	scope    Scope
	stale    bool
	loadedAt time.Time
}

// NewRequestStore creates an empty request store
func NewRequestStore(lister PendingLister, ctrl *remote.Controller, bus *events.EventBus, logger zerolog.Logger) *RequestStore {
	return &RequestStore{
		lister: lister,
		ctrl:   ctrl,
		bus:    bus,
		logger: logger.With().Str("component", "request-store").Logger(),
		byID:   make(map[string]platform.PaymentRequest),
	}
}

// LoadPending fetches all pending requests for the scope, retrying transient
// platform failures and falling back to the last cached snapshot. The
// in-memory set is replaced on success; a stale load publishes a
// SnapshotStale event so views can flag the data.
func (s *RequestStore) LoadPending(ctx context.Context, auth platform.AuthContext, scope Scope) (LoadResult, error) {
	key := cache.KeyPendingRequests(scope.UserID)

	result, err := remote.Read(ctx, s.ctrl, key, func(ctx context.Context) ([]platform.PaymentRequest, error) {
		deposits, err := s.lister.ListPendingDeposits(ctx, auth, scope.UserID)
		if err != nil {
			return nil, err
		}
		withdrawals, err := s.lister.ListPendingWithdrawals(ctx, auth, scope.UserID)
		if err != nil {
			return nil, err
		}

		combined := append(deposits, withdrawals...)
		sort.SliceStable(combined, func(i, j int) bool {
			return combined[i].SubmittedAt.After(combined[j].SubmittedAt)
		})
		return combined, nil
	})
	if err != nil {
		return LoadResult{}, err
	}

	s.mu.Lock()
	s.byID = make(map[string]platform.PaymentRequest, len(result.Value))
	for _, req := range result.Value {
		s.byID[req.ID] = req
	}
	s.scope = scope
	s.stale = result.Stale
	s.loadedAt = time.Now()
	s.mu.Unlock()

	if result.Stale {
		s.logger.Warn().Str("scope", scope.String()).Time("cached_at", result.CachedAt).
			Msg("pending requests served from cache")
		if s.bus != nil {
			s.bus.PublishSnapshotStale(scope.String(), result.CachedAt)
		}
	}

	return LoadResult{Requests: result.Value, Stale: result.Stale, CachedAt: result.CachedAt}, nil
}

// Get returns the request with the given id, if known
func (s *RequestStore) Get(id string) (platform.PaymentRequest, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.byID[id]
	return req, ok
}

// Replace updates one request in memory after a successful verification.
// Unknown ids are a no-op.
func (s *RequestStore) Replace(id string, updated platform.PaymentRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return
	}
	s.byID[id] = updated
}

// Pending returns the requests still awaiting a decision, newest first
func (s *RequestStore) Pending() []platform.PaymentRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pending := make([]platform.PaymentRequest, 0, len(s.byID))
	for _, req := range s.byID {
		if req.Status == platform.StatusPending {
			pending = append(pending, req)
		}
	}
	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].SubmittedAt.After(pending[j].SubmittedAt)
	})
	return pending
}

// Stale reports whether the current view came from cache
func (s *RequestStore) Stale() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stale
}

// LoadedAt returns when the current view was loaded
func (s *RequestStore) LoadedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadedAt
}
