// Package platform is the typed client for the brokerage platform REST API,
// the backend of record for payment requests and account balances.
package platform

import "time"

// RequestKind distinguishes deposits from withdrawals
type RequestKind string

const (
	KindDeposit    RequestKind = "deposit"
	KindWithdrawal RequestKind = "withdrawal"
)

// RequestStatus is the lifecycle state of a payment request.
// Pending is the only non-terminal state.
type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusApproved RequestStatus = "approved"
	StatusRejected RequestStatus = "rejected"
)

// Terminal reports whether the status can no longer change
func (s RequestStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// PayoutMethod carries withdrawal destination details. The workflow
// displays these but never interprets them.
type PayoutMethod struct {
	Type          string `json:"type"` // "bank_transfer" or "upi_transfer"
	AccountNumber string `json:"account_number,omitempty"`
	IFSC          string `json:"ifsc,omitempty"`
	UPIID         string `json:"upi_id,omitempty"`
}

// PaymentRequest is the canonical form of a user-submitted deposit or
// withdrawal awaiting an admin decision. Invariants: VerifiedAmount is set
// iff Status is approved; RejectionReason is non-empty iff Status is rejected.
type PaymentRequest struct {
	ID              string        `json:"id"`
	UserID          string        `json:"user_id"`
	AccountType     string        `json:"account_type"` // balance bucket, e.g. Standard/Platinum/Premium
	Kind            RequestKind   `json:"kind"`
	RequestedAmount float64       `json:"requested_amount"`
	VerifiedAmount  *float64      `json:"verified_amount,omitempty"`
	Status          RequestStatus `json:"status"`
	RejectionReason string        `json:"rejection_reason,omitempty"`
	SubmittedAt     time.Time     `json:"submitted_at"`
	VerifiedAt      *time.Time    `json:"verified_at,omitempty"`
	ProofRef        string        `json:"proof_ref,omitempty"` // reference into platform file storage, never bytes
	Method          *PayoutMethod `json:"method,omitempty"`
}

// Owner identifies a balance bucket: one user, one account type
type Owner struct {
	UserID      string `json:"user_id"`
	AccountType string `json:"account_type"`
}

// AccountBalance is a snapshot of one balance bucket. The platform owns
// these figures; local copies are caches.
type AccountBalance struct {
	AccountID   string  `json:"account_id"`
	UserID      string  `json:"user_id"`
	AccountType string  `json:"account_type"`
	Balance     float64 `json:"balance"`
	Equity      float64 `json:"equity"`
	Margin      float64 `json:"margin"`
	Currency    string  `json:"currency"` // display only, no arithmetic
}

// VerifyAction is the admin decision sent to the platform
type VerifyAction string

const (
	ActionApprove VerifyAction = "approve"
	ActionReject  VerifyAction = "reject"
)

// VerifyDecision is the body of a verify call
type VerifyDecision struct {
	Action          VerifyAction `json:"action"`
	VerifiedAmount  *float64     `json:"verifiedAmount,omitempty"`
	RejectionReason string       `json:"rejectionReason,omitempty"`
}

// AuthContext carries the credentials for a platform call. It is threaded
// explicitly into every call rather than read from ambient state.
type AuthContext struct {
	Token      string // bearer token
	OperatorID string // acting operator, for audit headers
}
