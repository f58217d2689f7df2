package handler

import (
	"net/http"
	"time"

	"github.com/polybacker/polybacker/internal/service"
)

// AuthHandler serves the SIWE login flow and session introspection.
type AuthHandler struct {
	svc *service.AuthService
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(svc *service.AuthService) *AuthHandler {
	return &AuthHandler{svc: svc}
}

// Nonce issues a one-shot login nonce.
// POST /api/auth/nonce
func (h *AuthHandler) Nonce(w http.ResponseWriter, r *http.Request) {
	nonce, err := h.svc.Nonce(r.Context())
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"nonce": nonce})
}

// Verify checks a signed SIWE message and returns a session token.
// POST /api/auth/verify
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message   string `json:"message"`
		Signature string `json:"signature"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" || req.Signature == "" {
		writeError(w, http.StatusBadRequest, "message and signature are required")
		return
	}

	res, err := h.svc.Login(r.Context(), req.Message, req.Signature)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":      res.Token,
		"address":    res.Address,
		"role":       res.Role,
		"expires_at": res.ExpiresAt.Format(time.RFC3339),
	})
}

// Session echoes the decoded token of the caller.
// GET /api/auth/session
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	claims, ok := caller(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"address":    claims.Address,
		"role":       claims.Role,
		"expires_at": claims.ExpiresAt.Time.Format(time.RFC3339),
	})
}
