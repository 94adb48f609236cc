package audit

import "time"

// Outcomes recorded for a decision attempt
const (
	OutcomeApplied = "applied" // decision fully recorded and balance applied
	OutcomeFailed  = "failed"  // persistence failed, request left pending
	// OutcomePartial marks an approve whose verify write landed at the
	// platform but whose balance write did not; these need manual
	// reconciliation against the platform.
	OutcomePartial = "partial"
)

// Operator is a back-office user account
type Operator struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Name         string     `json:"name"`
	IsAdmin      bool       `json:"is_admin"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
}

// Entry is one recorded verification decision
type Entry struct {
	ID              string     `json:"id"`
	RequestID       string     `json:"request_id"`
	RequestKind     string     `json:"request_kind"`
	Action          string     `json:"action"` // approve or reject
	Outcome         string     `json:"outcome"`
	OperatorID      string     `json:"operator_id"`
	UserID          string     `json:"user_id"`
	AccountType     string     `json:"account_type"`
	RequestedAmount float64    `json:"requested_amount"`
	VerifiedAmount  *float64   `json:"verified_amount,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`
	BalanceBefore   *float64   `json:"balance_before,omitempty"`
	BalanceAfter    *float64   `json:"balance_after,omitempty"`
	OverdrawWarned  bool       `json:"overdraw_warned"`
	Note            string     `json:"note,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}
