// Package verify implements the payment-request verification state machine:
// Pending -> Approved or Pending -> Rejected, both terminal. A request's
// status flips in memory only after the platform has accepted the decision,
// so the view never claims a decision the backend of record disagrees with.
package verify

import (
	"context"
	"sync"
	"time"

	"fx-backoffice/internal/audit"
	"fx-backoffice/internal/events"
	"fx-backoffice/internal/ledger"
	"fx-backoffice/internal/platform"
	"fx-backoffice/internal/remote"
	"fx-backoffice/internal/store"

	"github.com/rs/zerolog"
)

// BalanceLedger is the ledger slice the engine uses
type BalanceLedger interface {
	GetFresh(ctx context.Context, auth platform.AuthContext, owner platform.Owner) (*platform.AccountBalance, error)
	ApplyDelta(ctx context.Context, auth platform.AuthContext, owner platform.Owner, kind platform.RequestKind, verifiedAmount float64) (*platform.AccountBalance, error)
}

// Verifier is the platform client slice that records decisions
type Verifier interface {
	VerifyRequest(ctx context.Context, auth platform.AuthContext, kind platform.RequestKind, requestID string, decision platform.VerifyDecision) error
}

// AuditRecorder persists the decision trail
type AuditRecorder interface {
	CreateEntry(ctx context.Context, entry *audit.Entry) error
}

// Policy holds workflow policy knobs
type Policy struct {
	// AllowOverdraw permits approving withdrawals that exceed the current
	// balance; the balance clamps at zero. When false such approvals fail
	// instead.
	AllowOverdraw bool
}

// Engine drives verification decisions
type Engine struct {
	requests *store.RequestStore
	ledger   BalanceLedger
	verifier Verifier
	ctrl     *remote.Controller
	auditor  AuditRecorder
	bus      *events.EventBus
	policy   Policy
	logger   zerolog.Logger
	now      func() time.Time

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewEngine creates a verification engine. auditor may be nil (decisions
// still apply, they just are not recorded locally).
func NewEngine(requests *store.RequestStore, bl BalanceLedger, verifier Verifier, ctrl *remote.Controller, auditor AuditRecorder, bus *events.EventBus, policy Policy, logger zerolog.Logger) *Engine {
	return &Engine{
		requests: requests,
		ledger:   bl,
		verifier: verifier,
		ctrl:     ctrl,
		auditor:  auditor,
		bus:      bus,
		policy:   policy,
		logger:   logger.With().Str("component", "verify-engine").Logger(),
		now:      time.Now,
		inFlight: make(map[string]struct{}),
	}
}

// ApprovalPreview is shown to the operator before the confirmation gate
type ApprovalPreview struct {
	Request          platform.PaymentRequest `json:"request"`
	VerifiedAmount   float64                 `json:"verified_amount"`
	CurrentBalance   float64                 `json:"current_balance"`
	ProjectedBalance float64                 `json:"projected_balance"`
	Delta            float64                 `json:"delta"`
	OverdrawWarning  bool                    `json:"overdraw_warning"`
}

// ApproveOptions carries the operator's explicit confirmations
type ApproveOptions struct {
	// Confirmed must be true: no approval is applied without an explicit
	// confirm step.
	Confirmed bool
	// OverdrawAcknowledged must be true when the withdrawal exceeds the
	// current balance; it proves the warning was shown before confirming.
	OverdrawAcknowledged bool
}

// Outcome describes an applied decision
type Outcome struct {
	Request        platform.PaymentRequest  `json:"request"`
	NewBalance     *platform.AccountBalance `json:"new_balance,omitempty"`
	Delta          float64                  `json:"delta"`
	DeltaSign      string                   `json:"delta_sign"`
	OverdrawWarned bool                     `json:"overdraw_warned"`
}

// PreviewApprove validates an approval and computes what it would do to the
// balance, including the overdraw warning, without applying anything.
func (e *Engine) PreviewApprove(ctx context.Context, auth platform.AuthContext, requestID string, verifiedAmount float64) (*ApprovalPreview, error) {
	req, err := e.pendingRequest(requestID)
	if err != nil {
		return nil, err
	}
	if verifiedAmount <= 0 {
		return nil, ErrInvalidAmount
	}

	current, err := e.ledger.GetFresh(ctx, auth, platform.Owner{UserID: req.UserID, AccountType: req.AccountType})
	if err != nil {
		return nil, err
	}

	projected, _ := ledger.Apply(current.Balance, req.Kind, verifiedAmount)
	return &ApprovalPreview{
		Request:          req,
		VerifiedAmount:   verifiedAmount,
		CurrentBalance:   current.Balance,
		ProjectedBalance: projected,
		Delta:            projected - current.Balance,
		OverdrawWarning:  req.Kind == platform.KindWithdrawal && verifiedAmount > current.Balance,
	}, nil
}

// Approve applies an approval: the decision is recorded at the platform,
// the balance delta is applied, and only then does the in-memory request
// flip to Approved. Any persistence failure leaves the request Pending.
func (e *Engine) Approve(ctx context.Context, auth platform.AuthContext, requestID string, verifiedAmount float64, opts ApproveOptions) (*Outcome, error) {
	if err := e.acquire(requestID); err != nil {
		return nil, err
	}
	defer e.release(requestID)

	req, err := e.pendingRequest(requestID)
	if err != nil {
		return nil, err
	}
	if verifiedAmount <= 0 {
		return nil, ErrInvalidAmount
	}

	owner := platform.Owner{UserID: req.UserID, AccountType: req.AccountType}
	current, err := e.ledger.GetFresh(ctx, auth, owner)
	if err != nil {
		return nil, err
	}

	overdraw := req.Kind == platform.KindWithdrawal && verifiedAmount > current.Balance
	if overdraw && !e.policy.AllowOverdraw {
		return nil, ErrOverdrawBlocked
	}
	if !opts.Confirmed {
		return nil, ErrConfirmationRequired
	}
	if overdraw && !opts.OverdrawAcknowledged {
		return nil, ErrOverdrawNotAcked
	}

	amount := verifiedAmount
	decision := platform.VerifyDecision{Action: platform.ActionApprove, VerifiedAmount: &amount}
	err = e.ctrl.Write(ctx, "verify "+requestID, func(ctx context.Context) error {
		return e.verifier.VerifyRequest(ctx, auth, req.Kind, requestID, decision)
	})
	if err != nil {
		e.record(ctx, entryFor(req, auth, "approve", audit.OutcomeFailed, &amount, "", current.Balance, nil, overdraw, err.Error()))
		return nil, err
	}

	newBalance, err := e.ledger.ApplyDelta(ctx, auth, owner, req.Kind, verifiedAmount)
	if err != nil {
		// The verify write landed but the balance write did not. The
		// request stays Pending locally; the audit entry flags the
		// mismatch for manual reconciliation against the platform.
		e.record(ctx, entryFor(req, auth, "approve", audit.OutcomePartial, &amount, "", current.Balance, nil, overdraw,
			"decision recorded at platform but balance write failed: "+err.Error()))
		return nil, err
	}

	now := e.now()
	updated := req
	updated.Status = platform.StatusApproved
	updated.VerifiedAmount = &amount
	updated.VerifiedAt = &now
	e.requests.Replace(requestID, updated)

	delta := ledger.Delta(current.Balance, req.Kind, verifiedAmount)
	deltaSign := "+"
	if delta < 0 {
		deltaSign = "-"
	}

	e.record(ctx, entryFor(req, auth, "approve", audit.OutcomeApplied, &amount, "", current.Balance, &newBalance.Balance, overdraw, ""))

	if e.bus != nil {
		e.bus.PublishBalanceUpdated(requestID, string(req.Kind), req.UserID, req.AccountType, newBalance.Balance, delta, deltaSign)
		e.bus.PublishRequestFinalized(requestID, string(req.Kind), string(platform.StatusApproved), auth.OperatorID)
	}

	e.logger.Info().
		Str("request_id", requestID).
		Str("kind", string(req.Kind)).
		Float64("verified_amount", verifiedAmount).
		Float64("new_balance", newBalance.Balance).
		Bool("overdraw", overdraw).
		Msg("request approved")

	return &Outcome{
		Request:        updated,
		NewBalance:     newBalance,
		Delta:          delta,
		DeltaSign:      deltaSign,
		OverdrawWarned: overdraw,
	}, nil
}

// Reject applies a rejection. No balance is touched; the status flips only
// after the platform accepts the decision.
func (e *Engine) Reject(ctx context.Context, auth platform.AuthContext, requestID, reason string, confirmed bool) (*Outcome, error) {
	if err := e.acquire(requestID); err != nil {
		return nil, err
	}
	defer e.release(requestID)

	req, err := e.pendingRequest(requestID)
	if err != nil {
		return nil, err
	}
	if reason == "" {
		return nil, ErrMissingReason
	}
	if !confirmed {
		return nil, ErrConfirmationRequired
	}

	decision := platform.VerifyDecision{Action: platform.ActionReject, RejectionReason: reason}
	err = e.ctrl.Write(ctx, "verify "+requestID, func(ctx context.Context) error {
		return e.verifier.VerifyRequest(ctx, auth, req.Kind, requestID, decision)
	})
	if err != nil {
		e.record(ctx, entryFor(req, auth, "reject", audit.OutcomeFailed, nil, reason, 0, nil, false, err.Error()))
		return nil, err
	}

	now := e.now()
	updated := req
	updated.Status = platform.StatusRejected
	updated.RejectionReason = reason
	updated.VerifiedAt = &now
	e.requests.Replace(requestID, updated)

	e.record(ctx, entryFor(req, auth, "reject", audit.OutcomeApplied, nil, reason, 0, nil, false, ""))

	if e.bus != nil {
		e.bus.PublishRequestFinalized(requestID, string(req.Kind), string(platform.StatusRejected), auth.OperatorID)
	}

	e.logger.Info().
		Str("request_id", requestID).
		Str("kind", string(req.Kind)).
		Str("reason", reason).
		Msg("request rejected")

	return &Outcome{Request: updated}, nil
}

// pendingRequest looks up a request and enforces the lifecycle guard
func (e *Engine) pendingRequest(requestID string) (platform.PaymentRequest, error) {
	req, ok := e.requests.Get(requestID)
	if !ok {
		return platform.PaymentRequest{}, ErrUnknownRequest
	}
	if req.Status.Terminal() {
		return platform.PaymentRequest{}, ErrAlreadyFinalized
	}
	return req, nil
}

// acquire takes the per-request in-flight guard so one decision at a time
// touches a given request.
func (e *Engine) acquire(requestID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.inFlight[requestID]; busy {
		return ErrDecisionInFlight
	}
	e.inFlight[requestID] = struct{}{}
	return nil
}

func (e *Engine) release(requestID string) {
	e.mu.Lock()
	delete(e.inFlight, requestID)
	e.mu.Unlock()
}

func (e *Engine) record(ctx context.Context, entry *audit.Entry) {
	if e.auditor == nil {
		return
	}
	if err := e.auditor.CreateEntry(ctx, entry); err != nil {
		// The decision itself already persisted; losing the local trail
		// must not undo it.
		e.logger.Error().Err(err).Str("request_id", entry.RequestID).Msg("failed to record audit entry")
	}
}

func entryFor(req platform.PaymentRequest, auth platform.AuthContext, action, outcome string, verifiedAmount *float64, reason string, balanceBefore float64, balanceAfter *float64, overdraw bool, note string) *audit.Entry {
	entry := &audit.Entry{
		RequestID:       req.ID,
		RequestKind:     string(req.Kind),
		Action:          action,
		Outcome:         outcome,
		OperatorID:      auth.OperatorID,
		UserID:          req.UserID,
		AccountType:     req.AccountType,
		RequestedAmount: req.RequestedAmount,
		VerifiedAmount:  verifiedAmount,
		RejectionReason: reason,
		BalanceAfter:    balanceAfter,
		OverdrawWarned:  overdraw,
		Note:            note,
	}
	if action == "approve" {
		before := balanceBefore
		entry.BalanceBefore = &before
	}
	return entry
}
