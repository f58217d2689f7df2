package sqlite

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/polybacker/polybacker/internal/domain"
)

// UserStore implements domain.UserStore.
type UserStore struct {
	db *sql.DB
}

// NewUserStore creates a UserStore backed by the given client.
func NewUserStore(c *Client) *UserStore {
	return &UserStore{db: c.DB()}
}

// UpsertUser inserts the user on first sight and bumps last_login on every
// call. An existing user's role is never downgraded by a later login.
func (s *UserStore) UpsertUser(ctx context.Context, address string, role domain.Role) (domain.User, error) {
	address = normalizeAddress(address)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (address, role, last_login)
		VALUES (?, ?, strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
		ON CONFLICT(address) DO UPDATE SET
			last_login = strftime('%Y-%m-%dT%H:%M:%fZ', 'now'),
			role = CASE WHEN users.role = 'owner' THEN 'owner' ELSE excluded.role END`,
		address, string(role),
	)
	if err != nil {
		return domain.User{}, fmt.Errorf("sqlite: upsert user: %w", err)
	}

	return s.GetUser(ctx, address)
}

// GetUser returns the user or domain.ErrNotFound.
func (s *UserStore) GetUser(ctx context.Context, address string) (domain.User, error) {
	address = normalizeAddress(address)

	var u domain.User
	var role, createdAt string
	var lastLogin sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT address, role, created_at, last_login FROM users WHERE address = ?",
		address,
	).Scan(&u.Address, &role, &createdAt, &lastLogin)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("sqlite: get user: %w", err)
	}

	u.Role = domain.Role(role)
	u.CreatedAt = parseTime(createdAt)
	if lastLogin.Valid {
		t := parseTime(lastLogin.String)
		u.LastLogin = &t
	}
	return u, nil
}

// CreateNonce issues and stores a fresh one-shot auth nonce.
func (s *UserStore) CreateNonce(ctx context.Context) (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("sqlite: generate nonce: %w", err)
	}
	nonce := hex.EncodeToString(buf)

	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO session_nonces (nonce) VALUES (?)", nonce,
	); err != nil {
		return "", fmt.Errorf("sqlite: store nonce: %w", err)
	}
	return nonce, nil
}

// ConsumeNonce atomically marks an issued, unconsumed nonce as consumed.
// It returns false when the nonce was never issued or was already used.
// Stale unconsumed nonces are swept opportunistically.
func (s *UserStore) ConsumeNonce(ctx context.Context, nonce string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE session_nonces SET consumed = 1 WHERE nonce = ? AND consumed = 0",
		nonce,
	)
	if err != nil {
		return false, fmt.Errorf("sqlite: consume nonce: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: consume nonce: %w", err)
	}

	_, _ = s.db.ExecContext(ctx,
		"DELETE FROM session_nonces WHERE created_at < datetime('now', '-1 hour')")

	return n > 0, nil
}

// IsWhitelisted reports whether the address may authenticate.
func (s *UserStore) IsWhitelisted(ctx context.Context, address string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM whitelist WHERE address = ?)",
		normalizeAddress(address),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("sqlite: check whitelist: %w", err)
	}
	return exists, nil
}

// AddWhitelist inserts an address; re-adding is a no-op.
func (s *UserStore) AddWhitelist(ctx context.Context, address, addedBy string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO whitelist (address, added_by) VALUES (?, ?)",
		normalizeAddress(address), normalizeAddress(addedBy),
	)
	if err != nil {
		return fmt.Errorf("sqlite: add whitelist: %w", err)
	}
	return nil
}

// RemoveWhitelist deletes an address. Removing the owner is refused.
func (s *UserStore) RemoveWhitelist(ctx context.Context, address string) error {
	address = normalizeAddress(address)

	var role string
	err := s.db.QueryRowContext(ctx,
		"SELECT role FROM users WHERE address = ?", address,
	).Scan(&role)
	if err == nil && role == string(domain.RoleOwner) {
		return fmt.Errorf("sqlite: remove whitelist: owner cannot be removed: %w", domain.ErrForbidden)
	}
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("sqlite: remove whitelist: %w", err)
	}

	res, err := s.db.ExecContext(ctx, "DELETE FROM whitelist WHERE address = ?", address)
	if err != nil {
		return fmt.Errorf("sqlite: remove whitelist: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListWhitelist returns all whitelisted addresses, oldest first.
func (s *UserStore) ListWhitelist(ctx context.Context) ([]domain.WhitelistEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT address, added_at, added_by FROM whitelist ORDER BY added_at ASC")
	if err != nil {
		return nil, fmt.Errorf("sqlite: list whitelist: %w", err)
	}
	defer rows.Close()

	var out []domain.WhitelistEntry
	for rows.Next() {
		var e domain.WhitelistEntry
		var addedAt string
		if err := rows.Scan(&e.Address, &addedAt, &e.AddedBy); err != nil {
			return nil, fmt.Errorf("sqlite: scan whitelist: %w", err)
		}
		e.AddedAt = parseTime(addedAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

// ClaimLegacyData reassigns rows recorded before multi-user support to the
// owner. Relevant only for databases carried over from single-user deploys.
func (s *UserStore) ClaimLegacyData(ctx context.Context, owner string) error {
	owner = normalizeAddress(owner)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: claim legacy data: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"followed_traders", "trades"} {
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf("UPDATE %s SET user_address = ? WHERE user_address = 'legacy'", table),
			owner,
		); err != nil {
			return fmt.Errorf("sqlite: claim legacy %s: %w", table, err)
		}
	}

	return tx.Commit()
}

var _ domain.UserStore = (*UserStore)(nil)
