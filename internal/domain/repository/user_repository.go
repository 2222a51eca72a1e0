// Package repository defines the interfaces for the persistence layer.
// These interfaces act as a contract between the domain/application layers and the infrastructure layer.
package repository

import (
	"context"
	"errors"
	"time"

	"readzone/internal/domain/entity"

	"github.com/google/uuid"
)

// Domain-specific errors for user persistence.
var (
	// ErrUserNotFound is returned when a user is not found.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserAlreadyExists is returned when a unique user field is already taken.
	ErrUserAlreadyExists = errors.New("user already exists")
)

// UniqueField names a user column with a uniqueness constraint.
type UniqueField string

const (
	UniqueFieldHandle   UniqueField = "handle"
	UniqueFieldEmail    UniqueField = "email"
	UniqueFieldNickname UniqueField = "nickname"
)

// IsValid reports whether f is one of the known unique fields.
func (f UniqueField) IsValid() bool {
	switch f {
	case UniqueFieldHandle, UniqueFieldEmail, UniqueFieldNickname:
		return true
	default:
		return false
	}
}

// UserRepository defines the standard operations for user persistence.
// The application layer will depend on this interface, not the concrete implementation.
type UserRepository interface {
	// FindByID retrieves a single user by their unique ID.
	FindByID(ctx context.Context, id uuid.UUID) (*entity.User, error)

	// FindByHandle retrieves a single user by login handle.
	FindByHandle(ctx context.Context, handle string) (*entity.User, error)

	// FindByEmail retrieves a single user by their email address.
	FindByEmail(ctx context.Context, email string) (*entity.User, error)

	// FindByVerificationToken retrieves the user whose stored verification token equals token.
	FindByVerificationToken(ctx context.Context, token string) (*entity.User, error)

	// FindByIDAndResetToken retrieves the user only if its stored reset token equals token.
	FindByIDAndResetToken(ctx context.Context, id uuid.UUID, token string) (*entity.User, error)

	// FindConflict returns the first user that already holds handle, email or nickname
	// in one combined lookup, along with the field that collided.
	// Empty values are not matched. Returns ErrUserNotFound when nothing collides.
	FindConflict(ctx context.Context, handle, email, nickname string) (*entity.User, UniqueField, error)

	// ExistsByField reports whether any user holds value in the given unique field.
	ExistsByField(ctx context.Context, field UniqueField, value string) (bool, error)

	// Create persists a new user entity and assigns its ID.
	// Returns ErrUserAlreadyExists on a unique constraint violation.
	Create(ctx context.Context, user *entity.User) error

	// Update modifies an existing user entity in the storage.
	Update(ctx context.Context, user *entity.User) error

	// SetResetToken overwrites only the password reset slot of the user.
	SetResetToken(ctx context.Context, id uuid.UUID, token string, expiresAt time.Time) error

	// SetVerificationToken overwrites only the verification slot, and only while the
	// user is unverified. Returns ErrUserNotFound when no unverified user has id.
	SetVerificationToken(ctx context.Context, id uuid.UUID, token string) error

	// MarkVerified sets the verified flag and clears the verification slot, provided the
	// slot still holds token. Returns ErrUserNotFound when it does not.
	MarkVerified(ctx context.Context, id uuid.UUID, token string) error

	// AcquireSessionMutex locks the user's row until the surrounding transaction ends,
	// serialising session-limit checks for that user.
	AcquireSessionMutex(ctx context.Context, id uuid.UUID) error
}
