package handler

import (
	"errors"
	"net/http"

	"github.com/polybacker/polybacker/internal/crypto"
	"github.com/polybacker/polybacker/internal/domain"
)

// PrefsHandler serves per-user preferences and venue credentials. Credential
// secrets are encrypted before they reach the store and never leave it again
// through this API.
type PrefsHandler struct {
	prefs  domain.PrefStore
	cipher *crypto.CredsCipher
}

// NewPrefsHandler creates a PrefsHandler. cipher may be nil when no creds
// key is configured; saving credentials is then refused.
func NewPrefsHandler(prefs domain.PrefStore, cipher *crypto.CredsCipher) *PrefsHandler {
	return &PrefsHandler{prefs: prefs, cipher: cipher}
}

// Get returns the caller's preference map.
// GET /api/preferences
func (h *PrefsHandler) Get(w http.ResponseWriter, r *http.Request) {
	claims, ok := caller(w, r)
	if !ok {
		return
	}

	prefs, err := h.prefs.GetPreferences(r.Context(), claims.Address)
	if err != nil {
		fail(w, err)
		return
	}
	if prefs == nil {
		prefs = domain.Preferences{}
	}
	writeJSON(w, http.StatusOK, prefs)
}

// Merge folds the request body into the caller's preferences and returns the
// result. Null values delete keys.
// PUT /api/preferences
func (h *PrefsHandler) Merge(w http.ResponseWriter, r *http.Request) {
	claims, ok := caller(w, r)
	if !ok {
		return
	}

	var patch domain.Preferences
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	merged, err := h.prefs.MergePreferences(r.Context(), claims.Address, patch)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, merged)
}

// CredsStatus reports whether the caller has complete venue credentials
// stored, without revealing them.
// GET /api/credentials
func (h *PrefsHandler) CredsStatus(w http.ResponseWriter, r *http.Request) {
	claims, ok := caller(w, r)
	if !ok {
		return
	}

	// No stored credentials is a valid state, not an error.
	creds, err := h.prefs.GetCreds(r.Context(), claims.Address)
	if err != nil && !errors.Is(err, domain.ErrNoCredentials) && !errors.Is(err, domain.ErrNotFound) {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"configured": creds.HasKey(),
		"updated_at": creds.UpdatedAt,
	})
}

// SaveCreds stores the caller's venue credentials, encrypting the secret and
// passphrase at rest. Empty fields keep their stored values.
// POST /api/credentials
func (h *PrefsHandler) SaveCreds(w http.ResponseWriter, r *http.Request) {
	claims, ok := caller(w, r)
	if !ok {
		return
	}
	if h.cipher == nil {
		writeError(w, http.StatusServiceUnavailable, "credential storage is not configured")
		return
	}

	var req struct {
		APIKey     string `json:"api_key"`
		Secret     string `json:"secret"`
		Passphrase string `json:"passphrase"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.APIKey == "" && req.Secret == "" && req.Passphrase == "" {
		writeError(w, http.StatusBadRequest, "nothing to save")
		return
	}

	creds := domain.APICredentials{Address: claims.Address, APIKey: req.APIKey}
	var err error
	if req.Secret != "" {
		if creds.Secret, err = h.cipher.Encrypt(req.Secret); err != nil {
			fail(w, err)
			return
		}
	}
	if req.Passphrase != "" {
		if creds.Passphrase, err = h.cipher.Encrypt(req.Passphrase); err != nil {
			fail(w, err)
			return
		}
	}

	if err := h.prefs.SaveCreds(r.Context(), creds); err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"saved": true})
}

// DeleteCreds removes the caller's stored credentials.
// DELETE /api/credentials
func (h *PrefsHandler) DeleteCreds(w http.ResponseWriter, r *http.Request) {
	claims, ok := caller(w, r)
	if !ok {
		return
	}

	if err := h.prefs.DeleteCreds(r.Context(), claims.Address); err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}
