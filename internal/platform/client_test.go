package platform

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testAuth() AuthContext {
	return AuthContext{Token: "service-token", OperatorID: "op-1"}
}

func TestListPendingDeposits(t *testing.T) {
	var gotAuth, gotOperator, gotStatus, gotUser string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotOperator = r.Header.Get("X-Operator-ID")
		gotStatus = r.URL.Query().Get("status")
		gotUser = r.URL.Query().Get("userId")

		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"depositRequests": []map[string]interface{}{
				{"_id": "d1", "userId": "u1", "accountType": "live", "amount": 100, "status": "pending"},
			},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second)
	requests, err := client.ListPendingDeposits(context.Background(), testAuth(), "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotAuth != "Bearer service-token" {
		t.Errorf("expected bearer header, got %q", gotAuth)
	}
	if gotOperator != "op-1" {
		t.Errorf("expected operator header, got %q", gotOperator)
	}
	if gotStatus != "pending" {
		t.Errorf("expected status=pending filter, got %q", gotStatus)
	}
	if gotUser != "u1" {
		t.Errorf("expected userId filter, got %q", gotUser)
	}
	if len(requests) != 1 || requests[0].ID != "d1" || requests[0].Kind != KindDeposit {
		t.Errorf("unexpected requests: %+v", requests)
	}
}

func TestVerifyRequestPaths(t *testing.T) {
	tests := []struct {
		name     string
		kind     RequestKind
		wantPath string
	}{
		{"deposit", KindDeposit, "/deposit-requests/r1/verify"},
		{"withdrawal", KindWithdrawal, "/withdrawal-requests/r1/verify"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotPath string
			var gotDecision VerifyDecision
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotPath = r.URL.Path
				json.NewDecoder(r.Body).Decode(&gotDecision)
				json.NewEncoder(w).Encode(map[string]interface{}{"success": true})
			}))
			defer server.Close()

			amount := 75.0
			client := NewClient(server.URL, time.Second)
			err := client.VerifyRequest(context.Background(), testAuth(), tt.kind, "r1",
				VerifyDecision{Action: ActionApprove, VerifiedAmount: &amount})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if gotPath != tt.wantPath {
				t.Errorf("expected path %s, got %s", tt.wantPath, gotPath)
			}
			if gotDecision.Action != ActionApprove || gotDecision.VerifiedAmount == nil || *gotDecision.VerifiedAmount != 75 {
				t.Errorf("unexpected decision payload: %+v", gotDecision)
			}
		})
	}
}

func TestErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "401 maps to auth expired",
			status: http.StatusUnauthorized,
			body:   `{"message":"token expired"}`,
			check: func(t *testing.T, err error) {
				if !errors.Is(err, ErrAuthExpired) {
					t.Fatalf("expected ErrAuthExpired, got %v", err)
				}
			},
		},
		{
			name:   "403 maps to auth expired",
			status: http.StatusForbidden,
			body:   `{"message":"forbidden"}`,
			check: func(t *testing.T, err error) {
				if !errors.Is(err, ErrAuthExpired) {
					t.Fatalf("expected ErrAuthExpired, got %v", err)
				}
			},
		},
		{
			name:   "5xx maps to transient remote error",
			status: http.StatusBadGateway,
			body:   `{"message":"upstream down"}`,
			check: func(t *testing.T, err error) {
				var re *RemoteError
				if !errors.As(err, &re) {
					t.Fatalf("expected RemoteError, got %v", err)
				}
				if !IsTransient(err) {
					t.Error("remote error must be transient")
				}
				if re.Message != "upstream down" {
					t.Errorf("expected message extracted, got %q", re.Message)
				}
			},
		},
		{
			name:   "4xx maps to business error",
			status: http.StatusConflict,
			body:   `{"message":"already verified"}`,
			check: func(t *testing.T, err error) {
				var be *BusinessError
				if !errors.As(err, &be) {
					t.Fatalf("expected BusinessError, got %v", err)
				}
				if IsTransient(err) {
					t.Error("business error must not be transient")
				}
				if be.StatusCode != http.StatusConflict {
					t.Errorf("expected status 409, got %d", be.StatusCode)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewClient(server.URL, time.Second)
			err := client.VerifyRequest(context.Background(), testAuth(), KindDeposit, "r1",
				VerifyDecision{Action: ActionReject, RejectionReason: "x"})
			if err == nil {
				t.Fatal("expected error")
			}
			tt.check(t, err)
		})
	}
}

func TestNetworkFailureIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // refuse all connections

	client := NewClient(server.URL, time.Second)
	_, err := client.ListPendingWithdrawals(context.Background(), testAuth(), "")
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsTransient(err) {
		t.Errorf("network failure must be transient, got %v", err)
	}
}

func TestGetAccount(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("userId") != "u1" || r.URL.Query().Get("accountType") != "live" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"account": map[string]interface{}{
				"_id": "acct-1", "userId": "u1", "accountType": "live",
				"balance": 1200.5, "currency": "USD",
			},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second)
	acct, err := client.GetAccount(context.Background(), testAuth(), Owner{UserID: "u1", AccountType: "live"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if acct.AccountID != "acct-1" || acct.Balance != 1200.5 {
		t.Errorf("unexpected account: %+v", acct)
	}
}

func TestGetAccountMissingIsBusinessNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "accounts": []interface{}{}})
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second)
	_, err := client.GetAccount(context.Background(), testAuth(), Owner{UserID: "ghost", AccountType: "live"})

	var be *BusinessError
	if !errors.As(err, &be) || be.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 BusinessError, got %v", err)
	}
}

func TestUpdateAccount(t *testing.T) {
	var gotMethod, gotPath string
	var gotBody map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]interface{}{"success": true})
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second)
	err := client.UpdateAccount(context.Background(), testAuth(), AccountBalance{
		AccountID: "acct-1", Balance: 900, Currency: "USD",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotMethod != http.MethodPut || gotPath != "/accounts/acct-1" {
		t.Errorf("expected PUT /accounts/acct-1, got %s %s", gotMethod, gotPath)
	}
	if gotBody["balance"] != 900.0 {
		t.Errorf("expected balance 900 in body, got %v", gotBody["balance"])
	}
}
