// Package repository defines the interfaces for the persistence layer.
// These interfaces act as a contract between the domain/application layers and the infrastructure layer.
package repository

import (
	"context"
	"time"

	"readzone/internal/domain/entity"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Domain-specific errors for refresh token persistence.
var (
	// ErrRefreshTokenNotFound is returned when a refresh token is not found.
	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	// ErrRefreshTokenRevoked is returned when a conditional revoke finds the grant already revoked.
	ErrRefreshTokenRevoked = errors.New("refresh token already revoked")
	// ErrDuplicateIdentifier is returned when a token hash is already recorded.
	ErrDuplicateIdentifier = errors.New("refresh token identifier already recorded")
)

// RefreshTokenRepository is the storage behind the refresh token ledger.
type RefreshTokenRepository interface {
	// CreateRefreshToken persists a new non-revoked grant.
	// Returns ErrDuplicateIdentifier when the hash already exists.
	CreateRefreshToken(ctx context.Context, token *entity.RefreshToken) error

	// FindRefreshTokenByHash retrieves a grant by its identifier hash.
	FindRefreshTokenByHash(ctx context.Context, tokenHash string) (*entity.RefreshToken, error)

	// FindRefreshTokenByID retrieves a grant by its record ID.
	FindRefreshTokenByID(ctx context.Context, id uuid.UUID) (*entity.RefreshToken, error)

	// FindActiveRefreshTokensByUserID lists non-revoked, unexpired grants of a user.
	FindActiveRefreshTokensByUserID(ctx context.Context, userID uuid.UUID, now time.Time) ([]*entity.RefreshToken, error)

	// RevokeRefreshToken marks a grant revoked. Revoking a revoked grant is a no-op.
	RevokeRefreshToken(ctx context.Context, tokenHash string, at time.Time) error

	// RevokeActiveRefreshToken revokes the grant only if it is currently not revoked.
	// Returns ErrRefreshTokenRevoked when no row changed and ErrRefreshTokenNotFound when absent.
	RevokeActiveRefreshToken(ctx context.Context, tokenHash string, at time.Time) error

	// RevokeRefreshTokensByUserID revokes every non-revoked grant of a user, expired
	// ones included, and returns how many of them were still active at at.
	RevokeRefreshTokensByUserID(ctx context.Context, userID uuid.UUID, at time.Time) (int, error)

	// CountActiveSessionsByUserID returns the number of active grants of a user.
	CountActiveSessionsByUserID(ctx context.Context, userID uuid.UUID, now time.Time) (int, error)

	// DeleteExpiredRefreshTokens removes grants that expired before the cutoff.
	DeleteExpiredRefreshTokens(ctx context.Context, before time.Time) (int, error)

	// DeleteRevokedRefreshTokens removes grants revoked before the cutoff.
	DeleteRevokedRefreshTokens(ctx context.Context, before time.Time) (int, error)

	// GetStatistics counts grants by state at now.
	GetStatistics(ctx context.Context, now time.Time) (*entity.TokenStatistics, error)
}
