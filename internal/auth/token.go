package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Scope is the permission level carried by a token.
type Scope string

// Scopes, in increasing order of privilege.
const (
	ScopeRead    Scope = "read"
	ScopeControl Scope = "control"
)

// DefaultTTL is the token lifetime used when none is given.
const DefaultTTL = 24 * time.Hour

// Claims extends the registered JWT claims with a scope.
type Claims struct {
	jwt.RegisteredClaims
	Scope Scope `json:"scope"`
}

// Allows reports whether the claims grant required.
func (c *Claims) Allows(required Scope) bool {
	switch required {
	case ScopeRead:
		return c.Scope == ScopeRead || c.Scope == ScopeControl
	case ScopeControl:
		return c.Scope == ScopeControl
	}
	return false
}

// GenerateToken signs a token for subject with the given scope and
// lifetime. A non-positive ttl uses DefaultTTL.
func GenerateToken(subject string, scope Scope, secret string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", ErrMissingSecret
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		Scope: scope,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// ParseToken validates a token's signature, expiry and required fields.
func ParseToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	if claims.Scope != ScopeRead && claims.Scope != ScopeControl {
		return nil, fmt.Errorf("%w: unknown scope %q", ErrTokenInvalid, claims.Scope)
	}
	return claims, nil
}
