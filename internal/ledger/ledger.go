// Package ledger tracks and mutates per-(user, account type) balance
// figures. The platform owns the numbers; every mutation is written through
// to it, and the local snapshot is invalidated and re-fetched afterwards
// rather than patched in place.
package ledger

import (
	"context"
	"errors"
	"time"

	"fx-backoffice/internal/cache"
	"fx-backoffice/internal/platform"
	"fx-backoffice/internal/remote"

	"github.com/rs/zerolog"
)

// AccountAPI is the slice of the platform client the ledger uses
type AccountAPI interface {
	GetAccount(ctx context.Context, auth platform.AuthContext, owner platform.Owner) (*platform.AccountBalance, error)
	UpdateAccount(ctx context.Context, auth platform.AuthContext, acct platform.AccountBalance) error
}

// SnapshotCache is the snapshot store slice the ledger uses
type SnapshotCache interface {
	Put(ctx context.Context, key string, value interface{})
	Get(ctx context.Context, key string, out interface{}) (time.Time, bool)
	Invalidate(ctx context.Context, key string)
}

// Ledger reads and mutates account balances
type Ledger struct {
	api    AccountAPI
	ctrl   *remote.Controller
	cache  SnapshotCache
	logger zerolog.Logger
}

// New creates a ledger. cache may be nil to disable display-read fallback.
func New(api AccountAPI, ctrl *remote.Controller, snapshots SnapshotCache, logger zerolog.Logger) *Ledger {
	return &Ledger{
		api:    api,
		ctrl:   ctrl,
		cache:  snapshots,
		logger: logger.With().Str("component", "ledger").Logger(),
	}
}

// Apply computes the balance after a verified amount is applied. Withdrawals
// clamp at zero; the second return reports whether clamping occurred.
func Apply(balance float64, kind platform.RequestKind, amount float64) (float64, bool) {
	switch kind {
	case platform.KindDeposit:
		return balance + amount, false
	case platform.KindWithdrawal:
		next := balance - amount
		if next < 0 {
			return 0, true
		}
		return next, false
	default:
		return balance, false
	}
}

// Delta returns the signed balance change an approval would produce,
// respecting the clamp on withdrawals.
func Delta(balance float64, kind platform.RequestKind, amount float64) float64 {
	next, _ := Apply(balance, kind, amount)
	return next - balance
}

// Get returns the current balance snapshot for a bucket. Transient platform
// failures fall back to the last cached snapshot (stale=true). A bucket the
// platform does not know yet comes back as a zeroed default.
func (l *Ledger) Get(ctx context.Context, auth platform.AuthContext, owner platform.Owner) (*platform.AccountBalance, bool, error) {
	key := cache.KeyBalance(owner.UserID, owner.AccountType)

	result, err := remote.Read(ctx, l.ctrl, key, func(ctx context.Context) (*platform.AccountBalance, error) {
		return l.api.GetAccount(ctx, auth, owner)
	})
	if err != nil {
		var be *platform.BusinessError
		if errors.As(err, &be) && be.StatusCode == 404 {
			return &platform.AccountBalance{
				UserID:      owner.UserID,
				AccountType: owner.AccountType,
			}, false, nil
		}
		return nil, false, err
	}

	return result.Value, result.Stale, nil
}

// GetFresh reads the current balance directly, with retry but no cache
// fallback. Mutation paths use this so money math never runs on stale data.
func (l *Ledger) GetFresh(ctx context.Context, auth platform.AuthContext, owner platform.Owner) (*platform.AccountBalance, error) {
	result, err := remote.Read(ctx, l.ctrl, "", func(ctx context.Context) (*platform.AccountBalance, error) {
		return l.api.GetAccount(ctx, auth, owner)
	})
	if err != nil {
		return nil, err
	}
	return result.Value, nil
}

// ApplyDelta applies a verified amount to a bucket: deposits add, withdrawals
// subtract clamped at zero. The new figure is written through to the
// platform; on write failure nothing local changes and the error surfaces as
// remote.ErrPersistenceFailed (or the platform's own business error). After
// a successful write the cached snapshot is invalidated and re-fetched.
func (l *Ledger) ApplyDelta(ctx context.Context, auth platform.AuthContext, owner platform.Owner, kind platform.RequestKind, verifiedAmount float64) (*platform.AccountBalance, error) {
	current, err := l.GetFresh(ctx, auth, owner)
	if err != nil {
		return nil, err
	}

	newBalance, clamped := Apply(current.Balance, kind, verifiedAmount)
	if clamped {
		l.logger.Warn().
			Str("user_id", owner.UserID).
			Str("account_type", owner.AccountType).
			Float64("balance", current.Balance).
			Float64("verified_amount", verifiedAmount).
			Msg("withdrawal exceeds balance, clamping at zero")
	}

	updated := *current
	updated.Balance = newBalance

	err = l.ctrl.Write(ctx, "update account "+updated.AccountID, func(ctx context.Context) error {
		return l.api.UpdateAccount(ctx, auth, updated)
	})
	if err != nil {
		return nil, err
	}

	key := cache.KeyBalance(owner.UserID, owner.AccountType)
	if l.cache != nil {
		l.cache.Invalidate(ctx, key)
	}

	// Re-fetch the authoritative figure instead of trusting our arithmetic;
	// the platform may apply fees or rounding of its own.
	fresh, err := l.GetFresh(ctx, auth, owner)
	if err != nil {
		l.logger.Warn().Err(err).Str("account_id", updated.AccountID).
			Msg("post-write balance refresh failed, returning computed figure")
		return &updated, nil
	}
	if l.cache != nil {
		l.cache.Put(ctx, key, fresh)
	}

	return fresh, nil
}
