// Package auth verifies the bearer tokens presented in the gateway's `auth`
// frame. Token issuance lives upstream of the gateway; this package
// only validates what it's handed.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type Claims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

// Verifier validates access tokens against a shared HMAC secret.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

func (v *Verifier) ValidateAccessToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	return claims, nil
}

// Authenticate adapts ValidateAccessToken to the gateway's narrow
// TokenVerifier contract: a bearer token in, a user id out.
func (v *Verifier) Authenticate(token string) (string, error) {
	claims, err := v.ValidateAccessToken(token)
	if err != nil {
		return "", err
	}
	return claims.UserID, nil
}

// Expired reports whether claims carry an exp in the past, independent of
// ValidateAccessToken's own expiry check — used by callers that re-check a
// cached claims set against the clock rather than re-parsing the token.
func Expired(c *Claims) bool {
	if c.ExpiresAt == nil {
		return false
	}
	return c.ExpiresAt.Before(time.Now())
}
