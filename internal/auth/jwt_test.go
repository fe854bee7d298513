package auth_test

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/kunhuatsai-cpu/tilepark-order/internal/auth"
)

func TestGenerateAndValidateToken(t *testing.T) {
	secret := "test-secret"
	staffID := uuid.New()

	token, err := auth.GenerateToken(secret, staffID, "Amy", "STAFF")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	claims, err := auth.ValidateToken(secret, token)
	if err != nil {
		t.Fatalf("validate token: %v", err)
	}

	if claims.StaffID != staffID {
		t.Errorf("staff ID: got %v, want %v", claims.StaffID, staffID)
	}
	if claims.Name != "Amy" {
		t.Errorf("name: got %v, want Amy", claims.Name)
	}
	if claims.Role != "STAFF" {
		t.Errorf("role: got %v, want STAFF", claims.Role)
	}
}

func TestValidateTokenWithWrongSecret(t *testing.T) {
	token, err := auth.GenerateToken("secret-a", uuid.New(), "Amy", "STAFF")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	_, err = auth.ValidateToken("secret-b", token)
	if err == nil {
		t.Fatal("expected error validating with wrong secret")
	}
}

func TestValidateTokenWithInvalidString(t *testing.T) {
	_, err := auth.ValidateToken("secret", "not-a-jwt")
	if err == nil {
		t.Fatal("expected error validating invalid token string")
	}
}

func TestCheckPassword(t *testing.T) {
	hash, err := auth.HashPassword("tile-park")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}

	if err := auth.CheckPassword(hash, "tile-park"); err != nil {
		t.Errorf("correct password rejected: %v", err)
	}
	if err := auth.CheckPassword(hash, "wrong"); !errors.Is(err, auth.ErrBadCredentials) {
		t.Errorf("wrong password: got %v, want ErrBadCredentials", err)
	}
	if err := auth.CheckPassword("", "tile-park"); !errors.Is(err, auth.ErrBadCredentials) {
		t.Errorf("empty hash: got %v, want ErrBadCredentials", err)
	}
}
