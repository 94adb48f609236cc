package platform

import (
	"fmt"
	"strings"
	"time"
)

// rawRequest mirrors the loose shapes the platform sends: Mongo-style "_id"
// or plain "id", status strings in assorted casings, amounts that may appear
// under either the requested or amount key. Normalization happens here, at
// the boundary, so the rest of the workflow sees exactly one shape.
type rawRequest struct {
	MongoID         string        `json:"_id"`
	ID              string        `json:"id"`
	UserID          string        `json:"userId"`
	User            string        `json:"user"`
	AccountType     string        `json:"accountType"`
	Amount          float64       `json:"amount"`
	RequestedAmount float64       `json:"requestedAmount"`
	VerifiedAmount  *float64      `json:"verifiedAmount"`
	Status          string        `json:"status"`
	RejectionReason string        `json:"rejectionReason"`
	SubmittedAt     time.Time     `json:"createdAt"`
	VerifiedAt      *time.Time    `json:"verifiedAt"`
	ProofRef        string        `json:"proofUrl"`
	Method          *rawMethod    `json:"method"`
}

type rawMethod struct {
	Type          string `json:"type"`
	AccountNumber string `json:"accountNumber"`
	IFSC          string `json:"ifsc"`
	UPIID         string `json:"upiId"`
}

func normalizeRequest(raw rawRequest, kind RequestKind) (PaymentRequest, error) {
	id := raw.MongoID
	if id == "" {
		id = raw.ID
	}
	if id == "" {
		return PaymentRequest{}, fmt.Errorf("payment request missing identifier")
	}

	userID := raw.UserID
	if userID == "" {
		userID = raw.User
	}

	amount := raw.RequestedAmount
	if amount == 0 {
		amount = raw.Amount
	}
	if amount <= 0 {
		return PaymentRequest{}, fmt.Errorf("payment request %s has non-positive amount %v", id, amount)
	}

	status, err := normalizeStatus(raw.Status)
	if err != nil {
		return PaymentRequest{}, fmt.Errorf("payment request %s: %w", id, err)
	}

	req := PaymentRequest{
		ID:              id,
		UserID:          userID,
		AccountType:     raw.AccountType,
		Kind:            kind,
		RequestedAmount: amount,
		VerifiedAmount:  raw.VerifiedAmount,
		Status:          status,
		RejectionReason: raw.RejectionReason,
		SubmittedAt:     raw.SubmittedAt,
		VerifiedAt:      raw.VerifiedAt,
		ProofRef:        raw.ProofRef,
	}

	if raw.Method != nil {
		req.Method = &PayoutMethod{
			Type:          normalizeMethodType(raw.Method.Type),
			AccountNumber: raw.Method.AccountNumber,
			IFSC:          raw.Method.IFSC,
			UPIID:         raw.Method.UPIID,
		}
	}

	return req, nil
}

func normalizeStatus(s string) (RequestStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending", "":
		return StatusPending, nil
	case "approved", "verified", "completed":
		return StatusApproved, nil
	case "rejected", "declined":
		return StatusRejected, nil
	default:
		return "", fmt.Errorf("unknown request status %q", s)
	}
}

func normalizeMethodType(s string) string {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), " ", "_")) {
	case "bank", "bank_transfer", "banktransfer":
		return "bank_transfer"
	case "upi", "upi_transfer", "upitransfer":
		return "upi_transfer"
	default:
		return strings.ToLower(s)
	}
}

// rawAccount mirrors the platform account payload
type rawAccount struct {
	MongoID     string  `json:"_id"`
	ID          string  `json:"id"`
	UserID      string  `json:"userId"`
	AccountType string  `json:"accountType"`
	Balance     float64 `json:"balance"`
	Equity      float64 `json:"equity"`
	Margin      float64 `json:"margin"`
	Currency    string  `json:"currency"`
}

func normalizeAccount(raw rawAccount) (AccountBalance, error) {
	id := raw.MongoID
	if id == "" {
		id = raw.ID
	}
	if id == "" {
		return AccountBalance{}, fmt.Errorf("account missing identifier")
	}

	return AccountBalance{
		AccountID:   id,
		UserID:      raw.UserID,
		AccountType: raw.AccountType,
		Balance:     raw.Balance,
		Equity:      raw.Equity,
		Margin:      raw.Margin,
		Currency:    raw.Currency,
	}, nil
}
