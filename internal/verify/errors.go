package verify

import "errors"

// Validation and state-machine errors. All of these are resolved locally,
// before any platform round-trip is attempted.
var (
	ErrUnknownRequest       = errors.New("verify: request not found in current view")
	ErrAlreadyFinalized     = errors.New("verify: request already finalized")
	ErrInvalidAmount        = errors.New("verify: verified amount must be positive")
	ErrMissingReason        = errors.New("verify: rejection reason is required")
	ErrConfirmationRequired = errors.New("verify: decision requires explicit confirmation")
	ErrOverdrawNotAcked     = errors.New("verify: withdrawal exceeds balance, warning must be acknowledged")
	ErrOverdrawBlocked      = errors.New("verify: withdrawal exceeds balance and overdraw is disabled")
	ErrDecisionInFlight     = errors.New("verify: a decision for this request is already in flight")
)
