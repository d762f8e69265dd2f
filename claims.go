package authclient

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
)

// AuthClaims is the client-side view of a token's claims: enough to know
// who the session belongs to and when it lapses.
type AuthClaims interface {
	Subject() string
	UserID() string
	Expires() time.Time
	IssuedAt() time.Time
}

// JWTClaims is the concrete implementation of AuthClaims
type JWTClaims struct {
	jwt.RegisteredClaims
	UID      string `json:"uid,omitempty"`
	UserRole string `json:"role,omitempty"`
}

var _ AuthClaims = (*JWTClaims)(nil)

// Subject returns the subject claim
func (c *JWTClaims) Subject() string {
	return c.RegisteredClaims.Subject
}

// UserID returns the user ID
func (c *JWTClaims) UserID() string {
	if c.UID != "" {
		return c.UID
	}
	return c.Subject()
}

// Expires returns the expiration time, zero when absent.
func (c *JWTClaims) Expires() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// IssuedAt returns the issued-at time, zero when absent.
func (c *JWTClaims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt == nil {
		return time.Time{}
	}
	return c.RegisteredClaims.IssuedAt.Time
}

// IntrospectToken parses a token without verifying its signature. Signature
// checks belong to the backend (cookie mode) or a JWKSValidator (header
// mode); local callers only need expiry and identity fields.
func IntrospectToken(tokenString string) (AuthClaims, error) {
	claims := &JWTClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
		return nil, goerrors.Wrap(err, ErrTokenMalformed.Category, ErrTokenMalformed.Message).
			WithTextCode(ErrTokenMalformed.TextCode)
	}
	return claims, nil
}

// TokenLapsed reports whether the token's exp claim is in the past relative
// to now. Tokens without an exp claim never lapse locally.
func TokenLapsed(claims AuthClaims, now time.Time) bool {
	exp := claims.Expires()
	if exp.IsZero() {
		return false
	}
	return now.After(exp)
}
