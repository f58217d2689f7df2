package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrRateLimited   = errors.New("rate limited")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrForbidden     = errors.New("forbidden")
	ErrInvalid       = errors.New("invalid input")
	ErrConflict      = errors.New("conflict")
	ErrUnavailable   = errors.New("upstream unavailable")
	ErrNetwork       = errors.New("network error")
	ErrNoCredentials = errors.New("wallet credentials not configured")
)
