package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/polybacker/polybacker/internal/domain"
)

// Claims is the JWT payload. The wallet address doubles as the subject.
type Claims struct {
	Address string `json:"addr"`
	Role    string `json:"role"`
	jwt.RegisteredClaims
}

// TokenIssuer mints and verifies HS256 session tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenIssuer creates an issuer. ttl defaults to 72 hours when zero.
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl}
}

// Issue mints a token for address with the given role and returns it with
// its expiry time.
func (i *TokenIssuer) Issue(address string, role domain.Role) (string, time.Time, error) {
	now := time.Now().UTC()
	expires := now.Add(i.ttl)

	claims := Claims{
		Address: address,
		Role:    string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   address,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return token, expires, nil
}

// Verify parses and validates a token, rejecting non-HS256 algorithms.
func (i *TokenIssuer) Verify(token string) (Claims, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil || !parsed.Valid {
		return Claims{}, fmt.Errorf("auth: verify token: %w", domain.ErrUnauthorized)
	}
	if claims.Address == "" {
		return Claims{}, fmt.Errorf("auth: token has no address: %w", domain.ErrUnauthorized)
	}
	return claims, nil
}
