package auth

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestHashAndVerifyPassword(t *testing.T) {
	// MinCost keeps the test fast
	manager := NewPasswordManager(bcrypt.MinCost, 8)

	hash, err := manager.HashPassword("Sup3rSecret")
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	if hash == "Sup3rSecret" {
		t.Fatal("hash must not equal the plaintext")
	}

	if !manager.VerifyPassword("Sup3rSecret", hash) {
		t.Error("correct password must verify")
	}
	if manager.VerifyPassword("WrongSecret1", hash) {
		t.Error("wrong password must not verify")
	}
}

func TestHashPasswordTooLong(t *testing.T) {
	manager := NewPasswordManager(bcrypt.MinCost, 8)

	if _, err := manager.HashPassword(strings.Repeat("a", MaxPasswordLength+1)); err == nil {
		t.Fatal("expected error for oversized password")
	}
}

func TestValidatePasswordStrength(t *testing.T) {
	manager := NewPasswordManager(bcrypt.MinCost, 8)

	tests := []struct {
		name     string
		password string
		wantWeak bool
	}{
		{"strong", "Sup3rSecret", false},
		{"too short", "Ab1", true},
		{"no uppercase", "sup3rsecret", true},
		{"no lowercase", "SUP3RSECRET", true},
		{"no digit", "SuperSecret", true},
		{"too long", "Ab1" + strings.Repeat("x", MaxPasswordLength), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := manager.ValidatePasswordStrength(tt.password)
			if tt.wantWeak && !errors.Is(err, ErrWeakPassword) {
				t.Errorf("expected ErrWeakPassword, got %v", err)
			}
			if !tt.wantWeak && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
