package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client talks to the brokerage platform REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a platform API client. timeout applies per attempt;
// retries are the caller's concern.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type listDepositsResponse struct {
	Success         bool         `json:"success"`
	Message         string       `json:"message"`
	DepositRequests []rawRequest `json:"depositRequests"`
}

type listWithdrawalsResponse struct {
	Success            bool         `json:"success"`
	Message            string       `json:"message"`
	WithdrawalRequests []rawRequest `json:"withdrawalRequests"`
}

type verifyResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type accountResponse struct {
	Success  bool         `json:"success"`
	Message  string       `json:"message"`
	Account  *rawAccount  `json:"account"`
	Accounts []rawAccount `json:"accounts"`
}

// ListPendingDeposits fetches pending deposit requests, optionally scoped
// to one user.
func (c *Client) ListPendingDeposits(ctx context.Context, auth AuthContext, userID string) ([]PaymentRequest, error) {
	endpoint := c.listEndpoint("deposit-requests", userID)

	var resp listDepositsResponse
	if err := c.doJSON(ctx, auth, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}

	return normalizeAll(resp.DepositRequests, KindDeposit)
}

// ListPendingWithdrawals fetches pending withdrawal requests, optionally
// scoped to one user.
func (c *Client) ListPendingWithdrawals(ctx context.Context, auth AuthContext, userID string) ([]PaymentRequest, error) {
	endpoint := c.listEndpoint("withdrawal-requests", userID)

	var resp listWithdrawalsResponse
	if err := c.doJSON(ctx, auth, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}

	return normalizeAll(resp.WithdrawalRequests, KindWithdrawal)
}

// VerifyRequest records a terminal decision for a payment request at the
// platform.
func (c *Client) VerifyRequest(ctx context.Context, auth AuthContext, kind RequestKind, requestID string, decision VerifyDecision) error {
	resource := "deposit-requests"
	if kind == KindWithdrawal {
		resource = "withdrawal-requests"
	}
	endpoint := fmt.Sprintf("%s/%s/%s/verify", c.baseURL, resource, url.PathEscape(requestID))

	var resp verifyResponse
	return c.doJSON(ctx, auth, http.MethodPost, endpoint, decision, &resp)
}

// GetAccount looks up the balance bucket for (userID, accountType)
func (c *Client) GetAccount(ctx context.Context, auth AuthContext, owner Owner) (*AccountBalance, error) {
	params := url.Values{}
	params.Set("userId", owner.UserID)
	params.Set("accountType", owner.AccountType)
	endpoint := fmt.Sprintf("%s/accounts?%s", c.baseURL, params.Encode())

	var resp accountResponse
	if err := c.doJSON(ctx, auth, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}

	raw := resp.Account
	if raw == nil && len(resp.Accounts) > 0 {
		raw = &resp.Accounts[0]
	}
	if raw == nil {
		return nil, &BusinessError{StatusCode: http.StatusNotFound, Message: "account not found"}
	}

	acct, err := normalizeAccount(*raw)
	if err != nil {
		return nil, err
	}
	return &acct, nil
}

// UpdateAccount persists new balance figures for an account
func (c *Client) UpdateAccount(ctx context.Context, auth AuthContext, acct AccountBalance) error {
	endpoint := fmt.Sprintf("%s/accounts/%s", c.baseURL, url.PathEscape(acct.AccountID))

	body := map[string]interface{}{
		"balance":  acct.Balance,
		"equity":   acct.Equity,
		"margin":   acct.Margin,
		"currency": acct.Currency,
	}

	var resp verifyResponse
	return c.doJSON(ctx, auth, http.MethodPut, endpoint, body, &resp)
}

func (c *Client) listEndpoint(resource, userID string) string {
	params := url.Values{}
	params.Set("status", "pending")
	if userID != "" {
		params.Set("userId", userID)
	}
	return fmt.Sprintf("%s/%s?%s", c.baseURL, resource, params.Encode())
}

// doJSON performs one HTTP attempt and maps the response onto the error
// taxonomy: 401/403 -> ErrAuthExpired, other 4xx -> BusinessError,
// 5xx/network -> RemoteError.
func (c *Client) doJSON(ctx context.Context, auth AuthContext, method, endpoint string, reqBody, respBody interface{}) error {
	var bodyReader io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("error encoding request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
	if err != nil {
		return fmt.Errorf("error building request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth.Token != "" {
		req.Header.Set("Authorization", "Bearer "+auth.Token)
	}
	if auth.OperatorID != "" {
		req.Header.Set("X-Operator-ID", auth.OperatorID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &RemoteError{Message: err.Error()}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &RemoteError{StatusCode: resp.StatusCode, Message: "error reading response: " + err.Error()}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrAuthExpired
	case resp.StatusCode >= 500:
		return &RemoteError{StatusCode: resp.StatusCode, Message: apiMessage(data)}
	case resp.StatusCode >= 400:
		return &BusinessError{StatusCode: resp.StatusCode, Message: apiMessage(data)}
	}

	if respBody != nil {
		if err := json.Unmarshal(data, respBody); err != nil {
			return fmt.Errorf("error parsing response: %w", err)
		}
	}

	return nil
}

// apiMessage pulls the {message} field out of an error payload, falling
// back to the raw body.
func apiMessage(data []byte) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &payload); err == nil && payload.Message != "" {
		return payload.Message
	}
	return string(data)
}

func normalizeAll(raws []rawRequest, kind RequestKind) ([]PaymentRequest, error) {
	requests := make([]PaymentRequest, 0, len(raws))
	for _, raw := range raws {
		req, err := normalizeRequest(raw, kind)
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	return requests, nil
}
