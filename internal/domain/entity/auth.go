// Package entity contains the core business objects of the project,
// each representing a unique, identifiable concept within the domain.
package entity

import (
	"time"

	"github.com/google/uuid"
)

// ProviderType names an authentication provider an Account is linked to.
type ProviderType string

const (
	// ProviderTypeEmail is the local handle/password provider.
	ProviderTypeEmail ProviderType = "email"
)

// AccountTypeCredentials is the account type of local password accounts.
const AccountTypeCredentials = "credentials"

// Account links a User to one authentication provider identity.
// Registration creates the local one; other providers may add rows later.
type Account struct {
	ID                uuid.UUID    // The unique ID for this account link.
	UserID            uuid.UUID    // Links this account to the User it belongs to.
	Type              string       // Account type, e.g. "credentials".
	Provider          ProviderType // The authentication provider.
	ProviderAccountID string       // The user's identifier at the provider.
	CreatedAt         time.Time
}

// RefreshToken is one outstanding refresh-token grant in the ledger.
// Only a hash of the token's jti is stored, never the raw token.
type RefreshToken struct {
	ID        uuid.UUID  // The unique ID for this ledger record.
	UserID    uuid.UUID  // Owner of the grant.
	TokenHash string     // SHA-256 hex of the jti; unique across the ledger.
	ExpiresAt time.Time  // Expiry shared with the signed token.
	Revoked   bool       // Once true, never reset.
	RevokedAt *time.Time // When the grant was revoked.
	CreatedAt time.Time
}

// IsActive reports whether the grant can still be exchanged at now.
func (t *RefreshToken) IsActive(now time.Time) bool {
	return !t.Revoked && now.Before(t.ExpiresAt)
}

// SessionInfo describes one login session as shown to its owner.
type SessionInfo struct {
	ID        uuid.UUID `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	IsActive  bool      `json:"isActive"`
}

// TokenStatistics summarises the ledger for cleanup reporting.
type TokenStatistics struct {
	Total   int64 `json:"total"`
	Active  int64 `json:"active"`
	Revoked int64 `json:"revoked"`
	Expired int64 `json:"expired"`
}
