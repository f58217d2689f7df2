package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/polybacker/polybacker/internal/domain"
)

// PrefStore implements domain.PrefStore. Preferences are stored as one JSON
// blob per user. Credential secret fields arrive already encrypted; this
// store never sees plaintext.
type PrefStore struct {
	db *sql.DB
}

// NewPrefStore creates a PrefStore backed by the given client.
func NewPrefStore(c *Client) *PrefStore {
	return &PrefStore{db: c.DB()}
}

// GetPreferences returns the user's preferences, empty when none stored.
func (s *PrefStore) GetPreferences(ctx context.Context, user string) (domain.Preferences, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		"SELECT data FROM preferences WHERE user_address = ?",
		normalizeAddress(user),
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Preferences{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get preferences: %w", err)
	}

	var p domain.Preferences
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, fmt.Errorf("sqlite: decode preferences: %w", err)
	}
	return p, nil
}

// MergePreferences overlays the given keys on the stored map and returns the
// result. A nil value deletes the key.
func (s *PrefStore) MergePreferences(ctx context.Context, user string, p domain.Preferences) (domain.Preferences, error) {
	user = normalizeAddress(user)

	current, err := s.GetPreferences(ctx, user)
	if err != nil {
		return nil, err
	}
	for k, v := range p {
		if v == nil {
			delete(current, k)
			continue
		}
		current[k] = v
	}

	data, err := json.Marshal(current)
	if err != nil {
		return nil, fmt.Errorf("sqlite: encode preferences: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO preferences (user_address, data) VALUES (?, ?)
		ON CONFLICT(user_address) DO UPDATE SET data = excluded.data`,
		user, string(data),
	); err != nil {
		return nil, fmt.Errorf("sqlite: save preferences: %w", err)
	}
	return current, nil
}

// GetCreds returns the user's stored credentials or domain.ErrNoCredentials.
func (s *PrefStore) GetCreds(ctx context.Context, user string) (domain.APICredentials, error) {
	var c domain.APICredentials
	var updatedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_address, api_key, secret_enc, passphrase_enc, updated_at
		FROM api_credentials WHERE user_address = ?`,
		normalizeAddress(user),
	).Scan(&c.Address, &c.APIKey, &c.Secret, &c.Passphrase, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.APICredentials{}, domain.ErrNoCredentials
	}
	if err != nil {
		return domain.APICredentials{}, fmt.Errorf("sqlite: get creds: %w", err)
	}
	c.UpdatedAt = parseTime(updatedAt)
	return c, nil
}

// SaveCreds upserts credentials. Empty fields keep the stored values, so a
// user can rotate the key without re-entering the passphrase.
func (s *PrefStore) SaveCreds(ctx context.Context, c domain.APICredentials) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO api_credentials (user_address, api_key, secret_enc, passphrase_enc, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_address) DO UPDATE SET
			api_key        = CASE WHEN excluded.api_key        != '' THEN excluded.api_key        ELSE api_credentials.api_key        END,
			secret_enc     = CASE WHEN excluded.secret_enc     != '' THEN excluded.secret_enc     ELSE api_credentials.secret_enc     END,
			passphrase_enc = CASE WHEN excluded.passphrase_enc != '' THEN excluded.passphrase_enc ELSE api_credentials.passphrase_enc END,
			updated_at     = excluded.updated_at`,
		normalizeAddress(c.Address), c.APIKey, c.Secret, c.Passphrase,
		formatTime(nowUTC()),
	)
	if err != nil {
		return fmt.Errorf("sqlite: save creds: %w", err)
	}
	return nil
}

// DeleteCreds removes the user's stored credentials.
func (s *PrefStore) DeleteCreds(ctx context.Context, user string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM api_credentials WHERE user_address = ?",
		normalizeAddress(user))
	if err != nil {
		return fmt.Errorf("sqlite: delete creds: %w", err)
	}
	return nil
}

var _ domain.PrefStore = (*PrefStore)(nil)
