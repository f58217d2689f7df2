package domain

import "time"

// Role distinguishes the server operator from regular authenticated users.
type Role string

const (
	RoleOwner Role = "owner"
	RoleUser  Role = "user"
)

// User is an authenticated wallet. Addresses are stored lower-case; the API
// boundary lower-cases before lookup so equality is case-insensitive.
type User struct {
	Address   string
	Role      Role
	CreatedAt time.Time
	LastLogin *time.Time
}

// WhitelistEntry gates which addresses may authenticate. The owner is
// inserted automatically at startup and cannot be removed.
type WhitelistEntry struct {
	Address string    `json:"address"`
	AddedAt time.Time `json:"added_at"`
	AddedBy string    `json:"added_by,omitempty"`
}

// Preferences is an opaque per-user settings map merged at the API boundary.
type Preferences map[string]any

// APICredentials are per-user venue credentials. Secret and Passphrase are
// encrypted at rest; empty fields on save preserve the stored values.
type APICredentials struct {
	Address    string
	APIKey     string
	Secret     string
	Passphrase string
	UpdatedAt  time.Time
}

// HasKey reports whether the credentials are complete enough to trade with.
func (c APICredentials) HasKey() bool {
	return c.APIKey != "" && c.Secret != ""
}
