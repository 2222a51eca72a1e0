package usecase

import (
	"context"
	"time"

	"readzone/internal/domain/entity"

	"github.com/google/uuid"
)

// SessionUsecase defines the interface for session management operations.
// A session is one refresh grant in the ledger.
type SessionUsecase interface {
	GetActiveSessions(ctx context.Context, userID uuid.UUID) ([]*entity.SessionInfo, error)
	GetSessionInfo(ctx context.Context, userID, sessionID uuid.UUID) (*entity.SessionInfo, error)
	RevokeSession(ctx context.Context, userID, sessionID uuid.UUID) error
	RevokeAllSessions(ctx context.Context, userID uuid.UUID) (int, error)

	// Maintenance, driven by the cleanup scheduler.
	CleanupExpiredTokens(ctx context.Context, retention time.Duration) (int, error)
	CleanupRevokedTokens(ctx context.Context, retention time.Duration) (int, error)
	GetStatistics(ctx context.Context) (*entity.TokenStatistics, error)
}
