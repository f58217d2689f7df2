// Package service holds the application logic between the HTTP handlers and
// the engines and stores: the SIWE login flow, engine lifecycle management,
// and portfolio actions.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/polybacker/polybacker/internal/auth"
	"github.com/polybacker/polybacker/internal/domain"
)

// LoginResult is the outcome of a successful SIWE verification.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	Address   string
	Role      domain.Role
}

// AuthService runs the sign-in-with-Ethereum flow: one-shot nonces, signature
// verification, whitelist gating, and JWT issuance.
type AuthService struct {
	users  domain.UserStore
	issuer *auth.TokenIssuer
	owner  string
	logger *slog.Logger
}

// NewAuthService creates an AuthService. owner is the server wallet address;
// it bypasses the whitelist check.
func NewAuthService(users domain.UserStore, issuer *auth.TokenIssuer, owner string, logger *slog.Logger) *AuthService {
	return &AuthService{
		users:  users,
		issuer: issuer,
		owner:  strings.ToLower(owner),
		logger: logger.With("component", "auth"),
	}
}

// Nonce issues a stored one-shot login nonce.
func (s *AuthService) Nonce(ctx context.Context) (string, error) {
	return s.users.CreateNonce(ctx)
}

// Login verifies a signed SIWE message and returns a session token.
//
// The nonce embedded in the message must have been issued by Nonce and not
// consumed yet; consumption happens here so a replayed message fails. Any
// address other than the owner must be whitelisted.
func (s *AuthService) Login(ctx context.Context, message, signature string) (LoginResult, error) {
	siwe, err := auth.VerifySIWE(message, signature)
	if err != nil {
		return LoginResult{}, err
	}
	address := strings.ToLower(siwe.Address)

	ok, err := s.users.ConsumeNonce(ctx, siwe.Nonce)
	if err != nil {
		return LoginResult{}, fmt.Errorf("service: consume nonce: %w", err)
	}
	if !ok {
		return LoginResult{}, fmt.Errorf("service: unknown or reused nonce: %w", domain.ErrUnauthorized)
	}

	role := domain.RoleUser
	if address == s.owner {
		role = domain.RoleOwner
	} else {
		listed, err := s.users.IsWhitelisted(ctx, address)
		if err != nil {
			return LoginResult{}, fmt.Errorf("service: whitelist lookup: %w", err)
		}
		if !listed {
			return LoginResult{}, fmt.Errorf("service: address %s is not whitelisted: %w", address, domain.ErrForbidden)
		}
	}

	user, err := s.users.UpsertUser(ctx, address, role)
	if err != nil {
		return LoginResult{}, fmt.Errorf("service: upsert user: %w", err)
	}

	token, expires, err := s.issuer.Issue(user.Address, user.Role)
	if err != nil {
		return LoginResult{}, err
	}

	s.logger.Info("login", "address", user.Address, "role", user.Role)
	return LoginResult{
		Token:     token,
		ExpiresAt: expires,
		Address:   user.Address,
		Role:      user.Role,
	}, nil
}
