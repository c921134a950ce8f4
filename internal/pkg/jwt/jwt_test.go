package jwt

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestValidateTokenRoundTrip(t *testing.T) {
	svc := NewService("secret", "identity.example.com")
	token, err := svc.GenerateToken("user_1", "owner@example.com", time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.Email != "owner@example.com" {
		t.Fatalf("email = %q", claims.Email)
	}
	if claims.Subject != "user_1" {
		t.Fatalf("subject = %q", claims.Subject)
	}
}

func TestValidateTokenExpired(t *testing.T) {
	svc := NewService("secret", "")
	token, err := svc.GenerateToken("user_1", "owner@example.com", -time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	if _, err := svc.ValidateToken(token); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestValidateTokenWrongSecret(t *testing.T) {
	token, err := NewService("other", "").GenerateToken("user_1", "owner@example.com", time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	if _, err := NewService("secret", "").ValidateToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestValidateTokenWrongIssuer(t *testing.T) {
	token, err := NewService("secret", "someone-else").GenerateToken("user_1", "owner@example.com", time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	if _, err := NewService("secret", "identity.example.com").ValidateToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestValidateTokenMissingEmail(t *testing.T) {
	svc := NewService("secret", "")
	token, err := svc.GenerateToken("user_1", "", time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	if _, err := svc.ValidateToken(token); !errors.Is(err, ErrMissingEmail) {
		t.Fatalf("expected ErrMissingEmail, got %v", err)
	}
}

func TestEmptySecretRejectsEveryToken(t *testing.T) {
	svc := NewService("", "")

	if _, err := svc.GenerateToken("user_1", "owner@example.com", time.Minute); !errors.Is(err, ErrMissingSecret) {
		t.Fatalf("expected ErrMissingSecret, got %v", err)
	}

	claims := Claims{
		Email: "owner@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte{})
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}

	if _, err := svc.ValidateToken(forged); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}
