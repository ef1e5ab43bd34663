package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signToken(t *testing.T, secret string, claims Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("signing test token: %v", err)
	}
	return signed
}

func TestValidateAccessTokenRoundTrip(t *testing.T) {
	v := NewVerifier("top-secret")
	signed := signToken(t, "top-secret", Claims{
		UserID: "usr_1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	claims, err := v.ValidateAccessToken(signed)
	if err != nil {
		t.Fatalf("expected valid token, got error: %v", err)
	}
	if claims.UserID != "usr_1" {
		t.Fatalf("expected usr_1, got %q", claims.UserID)
	}
}

func TestValidateAccessTokenRejectsWrongSecret(t *testing.T) {
	signed := signToken(t, "secret-a", Claims{UserID: "usr_1"})

	v := NewVerifier("secret-b")
	if _, err := v.ValidateAccessToken(signed); err == nil {
		t.Fatal("expected validation to fail against the wrong secret")
	}
}

func TestValidateAccessTokenRejectsExpired(t *testing.T) {
	v := NewVerifier("top-secret")
	signed := signToken(t, "top-secret", Claims{
		UserID: "usr_1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})

	if _, err := v.ValidateAccessToken(signed); err == nil {
		t.Fatal("expected validation to fail for an expired token")
	}
}

func TestValidateAccessTokenRejectsUnexpectedSigningMethod(t *testing.T) {
	v := NewVerifier("top-secret")
	claims := Claims{UserID: "usr_1"}
	token := jwt.NewWithClaims(jwt.SigningMethodNone, claims)
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("signing none-alg token: %v", err)
	}

	if _, err := v.ValidateAccessToken(signed); err == nil {
		t.Fatal("expected validation to reject the none signing method")
	}
}

func TestAuthenticateAdaptsToUserID(t *testing.T) {
	v := NewVerifier("top-secret")
	signed := signToken(t, "top-secret", Claims{
		UserID: "usr_42",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	userID, err := v.Authenticate(signed)
	if err != nil {
		t.Fatalf("expected Authenticate to succeed, got: %v", err)
	}
	if userID != "usr_42" {
		t.Fatalf("expected usr_42, got %q", userID)
	}
}

func TestExpiredReportsPastExpiry(t *testing.T) {
	past := &Claims{RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))}}
	if !Expired(past) {
		t.Fatal("expected Expired to report true for a past exp")
	}

	future := &Claims{RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute))}}
	if Expired(future) {
		t.Fatal("expected Expired to report false for a future exp")
	}

	noExpiry := &Claims{}
	if Expired(noExpiry) {
		t.Fatal("expected Expired to report false when exp is unset")
	}
}
