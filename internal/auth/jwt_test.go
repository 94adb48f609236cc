package auth

import (
	"errors"
	"testing"
	"time"
)

func TestGenerateAndValidateAccessToken(t *testing.T) {
	manager := NewJWTManager("test-secret", time.Hour)

	claims := OperatorClaims{
		OperatorID: "op-1",
		Email:      "ops@example.com",
		IsAdmin:    true,
	}

	token, err := manager.GenerateAccessToken(claims)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	got, err := manager.ValidateAccessToken(token)
	if err != nil {
		t.Fatalf("failed to validate token: %v", err)
	}
	if got.OperatorID != "op-1" {
		t.Errorf("expected operator op-1, got %s", got.OperatorID)
	}
	if got.Email != "ops@example.com" {
		t.Errorf("expected email preserved, got %s", got.Email)
	}
	if !got.IsAdmin {
		t.Error("expected admin flag preserved")
	}
}

func TestValidateExpiredToken(t *testing.T) {
	manager := NewJWTManager("test-secret", -time.Minute)

	token, err := manager.GenerateAccessToken(OperatorClaims{OperatorID: "op-1"})
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	_, err = manager.ValidateAccessToken(token)
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestValidateTokenWrongSecret(t *testing.T) {
	manager := NewJWTManager("secret-a", time.Hour)
	other := NewJWTManager("secret-b", time.Hour)

	token, err := manager.GenerateAccessToken(OperatorClaims{OperatorID: "op-1"})
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	_, err = other.ValidateAccessToken(token)
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestValidateGarbageToken(t *testing.T) {
	manager := NewJWTManager("test-secret", time.Hour)

	for _, token := range []string{"", "garbage", "a.b.c"} {
		if _, err := manager.ValidateAccessToken(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("token %q: expected ErrInvalidToken, got %v", token, err)
		}
	}
}
