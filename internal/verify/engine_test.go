package verify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"fx-backoffice/config"
	"fx-backoffice/internal/audit"
	"fx-backoffice/internal/events"
	"fx-backoffice/internal/ledger"
	"fx-backoffice/internal/platform"
	"fx-backoffice/internal/remote"
	"fx-backoffice/internal/store"

	"github.com/rs/zerolog"
)

type fakeLister struct {
	deposits    []platform.PaymentRequest
	withdrawals []platform.PaymentRequest
}

func (f *fakeLister) ListPendingDeposits(context.Context, platform.AuthContext, string) ([]platform.PaymentRequest, error) {
	return f.deposits, nil
}

func (f *fakeLister) ListPendingWithdrawals(context.Context, platform.AuthContext, string) ([]platform.PaymentRequest, error) {
	return f.withdrawals, nil
}

type fakeLedger struct {
	balance   float64
	freshErr  error
	applyErr  error
	applied   []float64
	lastKind  platform.RequestKind
	lastOwner platform.Owner
}

func (f *fakeLedger) GetFresh(_ context.Context, _ platform.AuthContext, owner platform.Owner) (*platform.AccountBalance, error) {
	if f.freshErr != nil {
		return nil, f.freshErr
	}
	return &platform.AccountBalance{
		AccountID:   "acct-1",
		UserID:      owner.UserID,
		AccountType: owner.AccountType,
		Balance:     f.balance,
	}, nil
}

func (f *fakeLedger) ApplyDelta(_ context.Context, _ platform.AuthContext, owner platform.Owner, kind platform.RequestKind, amount float64) (*platform.AccountBalance, error) {
	if f.applyErr != nil {
		return nil, f.applyErr
	}
	f.applied = append(f.applied, amount)
	f.lastKind = kind
	f.lastOwner = owner
	next, _ := ledger.Apply(f.balance, kind, amount)
	f.balance = next
	return &platform.AccountBalance{
		AccountID:   "acct-1",
		UserID:      owner.UserID,
		AccountType: owner.AccountType,
		Balance:     f.balance,
	}, nil
}

type fakeVerifier struct {
	err       error
	calls     int
	decisions []platform.VerifyDecision
}

func (f *fakeVerifier) VerifyRequest(_ context.Context, _ platform.AuthContext, _ platform.RequestKind, _ string, decision platform.VerifyDecision) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	f.decisions = append(f.decisions, decision)
	return nil
}

type fakeAuditor struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (f *fakeAuditor) CreateEntry(_ context.Context, entry *audit.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, *entry)
	return nil
}

func (f *fakeAuditor) last(t *testing.T) audit.Entry {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.entries) == 0 {
		t.Fatal("expected at least one audit entry")
	}
	return f.entries[len(f.entries)-1]
}

type fixture struct {
	engine   *Engine
	requests *store.RequestStore
	ledger   *fakeLedger
	verifier *fakeVerifier
	auditor  *fakeAuditor
	bus      *events.EventBus
	auth     platform.AuthContext
}

func pendingDeposit(id string, amount float64) platform.PaymentRequest {
	return platform.PaymentRequest{
		ID:              id,
		UserID:          "u1",
		AccountType:     "live",
		Kind:            platform.KindDeposit,
		RequestedAmount: amount,
		Status:          platform.StatusPending,
		SubmittedAt:     time.Now(),
	}
}

func pendingWithdrawal(id string, amount float64) platform.PaymentRequest {
	req := pendingDeposit(id, amount)
	req.Kind = platform.KindWithdrawal
	return req
}

func newFixture(t *testing.T, policy Policy, balance float64, reqs ...platform.PaymentRequest) *fixture {
	t.Helper()

	lister := &fakeLister{}
	for _, r := range reqs {
		if r.Kind == platform.KindDeposit {
			lister.deposits = append(lister.deposits, r)
		} else {
			lister.withdrawals = append(lister.withdrawals, r)
		}
	}

	ctrl := remote.NewController(config.RetryConfig{MaxRetries: 1, BackoffBase: time.Millisecond}, nil, nil, zerolog.Nop())
	bus := events.NewEventBus()
	requests := store.NewRequestStore(lister, ctrl, bus, zerolog.Nop())
	if _, err := requests.LoadPending(context.Background(), platform.AuthContext{}, store.Scope{}); err != nil {
		t.Fatalf("loading pending requests: %v", err)
	}

	fl := &fakeLedger{balance: balance}
	fv := &fakeVerifier{}
	fa := &fakeAuditor{}

	engine := NewEngine(requests, fl, fv, ctrl, fa, bus, policy, zerolog.Nop())

	return &fixture{
		engine:   engine,
		requests: requests,
		ledger:   fl,
		verifier: fv,
		auditor:  fa,
		bus:      bus,
		auth:     platform.AuthContext{Token: "tok", OperatorID: "op-1"},
	}
}

func TestApproveDeposit(t *testing.T) {
	fx := newFixture(t, Policy{AllowOverdraw: true}, 100, pendingDeposit("r1", 50))

	finalized := make(chan events.Event, 1)
	fx.bus.Subscribe(events.EventRequestFinalized, func(e events.Event) { finalized <- e })

	outcome, err := fx.engine.Approve(context.Background(), fx.auth, "r1", 50, ApproveOptions{Confirmed: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if outcome.Request.Status != platform.StatusApproved {
		t.Errorf("expected Approved, got %s", outcome.Request.Status)
	}
	if outcome.NewBalance.Balance != 150 {
		t.Errorf("expected new balance 150, got %v", outcome.NewBalance.Balance)
	}
	if outcome.Delta != 50 || outcome.DeltaSign != "+" {
		t.Errorf("expected +50 delta, got %s%v", outcome.DeltaSign, outcome.Delta)
	}
	if fx.verifier.calls != 1 {
		t.Errorf("expected 1 verify call, got %d", fx.verifier.calls)
	}

	stored, ok := fx.requests.Get("r1")
	if !ok || stored.Status != platform.StatusApproved {
		t.Errorf("store must hold the approved request, got %+v", stored)
	}
	if stored.VerifiedAmount == nil || *stored.VerifiedAmount != 50 {
		t.Errorf("expected verified amount 50 recorded, got %+v", stored.VerifiedAmount)
	}

	entry := fx.auditor.last(t)
	if entry.Outcome != audit.OutcomeApplied || entry.Action != "approve" {
		t.Errorf("expected applied approve entry, got %+v", entry)
	}
	if entry.OperatorID != "op-1" {
		t.Errorf("expected operator op-1 on entry, got %s", entry.OperatorID)
	}

	select {
	case e := <-finalized:
		if e.Data["status"] != string(platform.StatusApproved) {
			t.Errorf("expected approved finalization event, got %+v", e.Data)
		}
	case <-time.After(time.Second):
		t.Error("expected REQUEST_FINALIZED event")
	}
}

func TestApproveWithOperatorCorrectedAmount(t *testing.T) {
	fx := newFixture(t, Policy{AllowOverdraw: true}, 100, pendingDeposit("r1", 500))

	outcome, err := fx.engine.Approve(context.Background(), fx.auth, "r1", 450, ApproveOptions{Confirmed: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.NewBalance.Balance != 550 {
		t.Errorf("verified amount must drive the balance, got %v", outcome.NewBalance.Balance)
	}
	if len(fx.ledger.applied) != 1 || fx.ledger.applied[0] != 450 {
		t.Errorf("expected ledger applied 450, got %v", fx.ledger.applied)
	}
}

func TestApproveGuards(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		amount  float64
		opts    ApproveOptions
		wantErr error
	}{
		{"unknown request", "nope", 10, ApproveOptions{Confirmed: true}, ErrUnknownRequest},
		{"non-positive amount", "r1", 0, ApproveOptions{Confirmed: true}, ErrInvalidAmount},
		{"negative amount", "r1", -5, ApproveOptions{Confirmed: true}, ErrInvalidAmount},
		{"missing confirmation", "r1", 10, ApproveOptions{}, ErrConfirmationRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture(t, Policy{AllowOverdraw: true}, 100, pendingDeposit("r1", 10))

			_, err := fx.engine.Approve(context.Background(), fx.auth, tt.id, tt.amount, tt.opts)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if fx.verifier.calls != 0 {
				t.Errorf("guard failures must not reach the platform, got %d calls", fx.verifier.calls)
			}
		})
	}
}

func TestApproveIsNotRepeatable(t *testing.T) {
	fx := newFixture(t, Policy{AllowOverdraw: true}, 100, pendingDeposit("r1", 50))

	if _, err := fx.engine.Approve(context.Background(), fx.auth, "r1", 50, ApproveOptions{Confirmed: true}); err != nil {
		t.Fatalf("first approve failed: %v", err)
	}

	_, err := fx.engine.Approve(context.Background(), fx.auth, "r1", 50, ApproveOptions{Confirmed: true})
	if !errors.Is(err, ErrAlreadyFinalized) {
		t.Fatalf("expected ErrAlreadyFinalized, got %v", err)
	}
	if len(fx.ledger.applied) != 1 {
		t.Errorf("balance must move exactly once, got %d applications", len(fx.ledger.applied))
	}
}

func TestApproveOverdrawRequiresAcknowledgment(t *testing.T) {
	fx := newFixture(t, Policy{AllowOverdraw: true}, 30, pendingWithdrawal("w1", 100))

	_, err := fx.engine.Approve(context.Background(), fx.auth, "w1", 100, ApproveOptions{Confirmed: true})
	if !errors.Is(err, ErrOverdrawNotAcked) {
		t.Fatalf("expected ErrOverdrawNotAcked, got %v", err)
	}

	outcome, err := fx.engine.Approve(context.Background(), fx.auth, "w1", 100, ApproveOptions{Confirmed: true, OverdrawAcknowledged: true})
	if err != nil {
		t.Fatalf("acknowledged approve failed: %v", err)
	}
	if outcome.NewBalance.Balance != 0 {
		t.Errorf("expected balance clamped to 0, got %v", outcome.NewBalance.Balance)
	}
	if !outcome.OverdrawWarned {
		t.Error("expected OverdrawWarned on outcome")
	}

	entry := fx.auditor.last(t)
	if !entry.OverdrawWarned {
		t.Error("expected OverdrawWarned recorded in audit trail")
	}
}

func TestApproveOverdrawBlockedByPolicy(t *testing.T) {
	fx := newFixture(t, Policy{AllowOverdraw: false}, 30, pendingWithdrawal("w1", 100))

	_, err := fx.engine.Approve(context.Background(), fx.auth, "w1", 100, ApproveOptions{Confirmed: true, OverdrawAcknowledged: true})
	if !errors.Is(err, ErrOverdrawBlocked) {
		t.Fatalf("expected ErrOverdrawBlocked, got %v", err)
	}
	if fx.verifier.calls != 0 {
		t.Error("blocked overdraw must not reach the platform")
	}
}

func TestApproveVerifyWriteFailureLeavesRequestPending(t *testing.T) {
	fx := newFixture(t, Policy{AllowOverdraw: true}, 100, pendingDeposit("r1", 50))
	fx.verifier.err = &platform.RemoteError{StatusCode: 503, Message: "down"}

	_, err := fx.engine.Approve(context.Background(), fx.auth, "r1", 50, ApproveOptions{Confirmed: true})
	if !errors.Is(err, remote.ErrPersistenceFailed) {
		t.Fatalf("expected ErrPersistenceFailed, got %v", err)
	}

	stored, _ := fx.requests.Get("r1")
	if stored.Status != platform.StatusPending {
		t.Errorf("request must stay Pending after failed write, got %s", stored.Status)
	}
	if len(fx.ledger.applied) != 0 {
		t.Error("balance must not move when the verify write fails")
	}

	entry := fx.auditor.last(t)
	if entry.Outcome != audit.OutcomeFailed {
		t.Errorf("expected failed audit outcome, got %s", entry.Outcome)
	}
}

func TestApproveBalanceWriteFailureIsFlaggedPartial(t *testing.T) {
	fx := newFixture(t, Policy{AllowOverdraw: true}, 100, pendingDeposit("r1", 50))
	fx.ledger.applyErr = &platform.BusinessError{StatusCode: 422, Message: "account frozen"}

	_, err := fx.engine.Approve(context.Background(), fx.auth, "r1", 50, ApproveOptions{Confirmed: true})
	if err == nil {
		t.Fatal("expected error when balance write fails")
	}

	stored, _ := fx.requests.Get("r1")
	if stored.Status != platform.StatusPending {
		t.Errorf("request must stay Pending, got %s", stored.Status)
	}

	entry := fx.auditor.last(t)
	if entry.Outcome != audit.OutcomePartial {
		t.Errorf("expected partial audit outcome for reconciliation, got %s", entry.Outcome)
	}
}

func TestApproveAuthExpiredSurfacesWithoutStateChange(t *testing.T) {
	fx := newFixture(t, Policy{AllowOverdraw: true}, 100, pendingDeposit("r1", 50))
	fx.ledger.freshErr = platform.ErrAuthExpired

	_, err := fx.engine.Approve(context.Background(), fx.auth, "r1", 50, ApproveOptions{Confirmed: true})
	if !errors.Is(err, platform.ErrAuthExpired) {
		t.Fatalf("expected ErrAuthExpired, got %v", err)
	}
	if fx.verifier.calls != 0 {
		t.Error("expired auth must not reach the verify endpoint")
	}
}

func TestReject(t *testing.T) {
	fx := newFixture(t, Policy{AllowOverdraw: true}, 100, pendingWithdrawal("w1", 40))

	outcome, err := fx.engine.Reject(context.Background(), fx.auth, "w1", "proof does not match", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Request.Status != platform.StatusRejected {
		t.Errorf("expected Rejected, got %s", outcome.Request.Status)
	}
	if outcome.Request.RejectionReason != "proof does not match" {
		t.Errorf("expected reason stored, got %q", outcome.Request.RejectionReason)
	}
	if len(fx.ledger.applied) != 0 {
		t.Error("rejection must never touch the balance")
	}
	if len(fx.verifier.decisions) != 1 || fx.verifier.decisions[0].Action != platform.ActionReject {
		t.Errorf("expected one reject decision, got %+v", fx.verifier.decisions)
	}

	entry := fx.auditor.last(t)
	if entry.Action != "reject" || entry.Outcome != audit.OutcomeApplied {
		t.Errorf("expected applied reject entry, got %+v", entry)
	}
}

func TestRejectRequiresReasonAndConfirmation(t *testing.T) {
	fx := newFixture(t, Policy{AllowOverdraw: true}, 100, pendingWithdrawal("w1", 40))

	if _, err := fx.engine.Reject(context.Background(), fx.auth, "w1", "", true); !errors.Is(err, ErrMissingReason) {
		t.Fatalf("expected ErrMissingReason, got %v", err)
	}
	if _, err := fx.engine.Reject(context.Background(), fx.auth, "w1", "bad proof", false); !errors.Is(err, ErrConfirmationRequired) {
		t.Fatalf("expected ErrConfirmationRequired, got %v", err)
	}
	if fx.verifier.calls != 0 {
		t.Error("guard failures must not reach the platform")
	}
}

func TestRejectThenApproveFails(t *testing.T) {
	fx := newFixture(t, Policy{AllowOverdraw: true}, 100, pendingDeposit("r1", 50))

	if _, err := fx.engine.Reject(context.Background(), fx.auth, "r1", "duplicate", true); err != nil {
		t.Fatalf("reject failed: %v", err)
	}

	_, err := fx.engine.Approve(context.Background(), fx.auth, "r1", 50, ApproveOptions{Confirmed: true})
	if !errors.Is(err, ErrAlreadyFinalized) {
		t.Fatalf("expected ErrAlreadyFinalized, got %v", err)
	}
}

func TestPreviewApprove(t *testing.T) {
	fx := newFixture(t, Policy{AllowOverdraw: true}, 30, pendingWithdrawal("w1", 100))

	preview, err := fx.engine.PreviewApprove(context.Background(), fx.auth, "w1", 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if preview.CurrentBalance != 30 {
		t.Errorf("expected current balance 30, got %v", preview.CurrentBalance)
	}
	if preview.ProjectedBalance != 0 {
		t.Errorf("expected projected balance clamped to 0, got %v", preview.ProjectedBalance)
	}
	if !preview.OverdrawWarning {
		t.Error("expected overdraw warning")
	}
	if fx.verifier.calls != 0 || len(fx.ledger.applied) != 0 {
		t.Error("preview must not apply anything")
	}
}

func TestConcurrentDecisionGuard(t *testing.T) {
	fx := newFixture(t, Policy{AllowOverdraw: true}, 100, pendingDeposit("r1", 50))

	if err := fx.engine.acquire("r1"); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	_, err := fx.engine.Approve(context.Background(), fx.auth, "r1", 50, ApproveOptions{Confirmed: true})
	if !errors.Is(err, ErrDecisionInFlight) {
		t.Fatalf("expected ErrDecisionInFlight, got %v", err)
	}

	fx.engine.release("r1")
	if _, err := fx.engine.Approve(context.Background(), fx.auth, "r1", 50, ApproveOptions{Confirmed: true}); err != nil {
		t.Fatalf("approve after release failed: %v", err)
	}
}
