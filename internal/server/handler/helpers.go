// Package handler implements the JSON HTTP API.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/polybacker/polybacker/internal/auth"
	"github.com/polybacker/polybacker/internal/domain"
	"github.com/polybacker/polybacker/internal/server/middleware"
)

// maxBodyBytes bounds request bodies; every payload here is small JSON.
const maxBodyBytes = 1 << 20

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a canned 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// fail maps a domain error to its HTTP status and writes the error body.
func fail(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err.Error())
}

// statusFor translates the domain error taxonomy to HTTP status codes.
// Unknown errors are internal.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalid), errors.Is(err, domain.ErrNoCredentials):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrAlreadyExists), errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrUnavailable), errors.Is(err, domain.ErrNetwork):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON reads a bounded JSON body into v, rejecting unknown trailing
// content.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return err
	}
	return nil
}

// caller returns the authenticated claims, failing the request with 401 when
// the middleware did not attach any.
func caller(w http.ResponseWriter, r *http.Request) (auth.Claims, bool) {
	claims, ok := middleware.ClaimsFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing session")
		return auth.Claims{}, false
	}
	return claims, true
}

// requireOwner is caller plus an owner-role check.
func requireOwner(w http.ResponseWriter, r *http.Request) (auth.Claims, bool) {
	claims, ok := caller(w, r)
	if !ok {
		return auth.Claims{}, false
	}
	if claims.Role != string(domain.RoleOwner) {
		writeError(w, http.StatusForbidden, "owner role required")
		return auth.Claims{}, false
	}
	return claims, true
}

// parsePage extracts limit/offset query parameters.
// Defaults: limit=50 (max 500), offset=0.
func parsePage(r *http.Request) (limit, offset int) {
	q := r.URL.Query()

	limit = 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}

// pathParam extracts a named path parameter from the request using Go 1.22+
// built-in routing (http.Request.PathValue).
func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}
