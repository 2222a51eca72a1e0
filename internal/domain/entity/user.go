// Package entity contains the core business objects of the project,
// each representing a unique, identifiable concept within the domain.
package entity

import (
	"time"

	"github.com/google/uuid"
)

// User is the identity record of a reader. It embeds one slot per purpose for
// the email-verification and password-reset tokens; issuing a new token
// overwrites the slot, which makes every previously issued token unusable.
type User struct {
	ID                  uuid.UUID  // The Global Unique Identifier (GUID) for the user.
	Handle              string     // Unique login handle.
	Email               string     // Optional contact email; empty when the user registered without one.
	Nickname            string     // Unique display name.
	PasswordHash        string     // bcrypt hash of the local password.
	IsVerified          bool       // Whether the email address was confirmed.
	VerificationToken   string     // Current email-verification token, empty once consumed.
	ResetToken          string     // Current password-reset token, empty once consumed.
	ResetTokenExpiresAt *time.Time // Expiry of ResetToken.
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// HasEmail reports whether the user registered an email address.
func (u *User) HasEmail() bool {
	return u.Email != ""
}

// ResetTokenExpired reports whether the stored reset token is past its expiry at now.
// A missing expiry is treated as expired.
func (u *User) ResetTokenExpired(now time.Time) bool {
	if u.ResetTokenExpiresAt == nil {
		return true
	}

	return !now.Before(*u.ResetTokenExpiresAt)
}

// PublicUser is the projection of a User that is safe to return to callers.
type PublicUser struct {
	ID         uuid.UUID `json:"id"`
	Handle     string    `json:"handle"`
	Email      string    `json:"email,omitempty"`
	Nickname   string    `json:"nickname"`
	IsVerified bool      `json:"isVerified"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Public returns the caller-facing projection of the user.
func (u *User) Public() *PublicUser {
	return &PublicUser{
		ID:         u.ID,
		Handle:     u.Handle,
		Email:      u.Email,
		Nickname:   u.Nickname,
		IsVerified: u.IsVerified,
		CreatedAt:  u.CreatedAt,
	}
}
