package impl

import (
	"context"
	"log/slog"
	"time"

	deliverycontext "readzone/internal/delivery/context"
	"readzone/internal/domain/entity"
	domainerrors "readzone/internal/domain/errors"
	"readzone/internal/domain/repository"
	"readzone/internal/domain/service"
	"readzone/internal/usecase"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/fx"
)

// sessionService implements the SessionUsecase interface on top of the refresh token ledger.
type sessionService struct {
	txManager   repository.TransactionManager
	refreshRepo repository.RefreshTokenRepository
	ledger      *refreshTokenLedger
	clock       service.Clock
	logger      *slog.Logger
}

// SessionServiceParams holds dependencies for SessionService, injected by Fx.
type SessionServiceParams struct {
	fx.In

	TxManager        repository.TransactionManager
	RefreshTokenRepo repository.RefreshTokenRepository
	Clock            service.Clock
	Logger           *slog.Logger
}

// NewSessionService is the constructor for sessionService.
func NewSessionService(params SessionServiceParams) usecase.SessionUsecase {
	return &sessionService{
		txManager:   params.TxManager,
		refreshRepo: params.RefreshTokenRepo,
		ledger:      newRefreshTokenLedger(params.TxManager, params.RefreshTokenRepo, params.Clock),
		clock:       params.Clock,
		logger:      params.Logger,
	}
}

// log returns a request-scoped logger if available, otherwise falls back to the service's logger.
func (srv *sessionService) log(ctx context.Context) *slog.Logger {
	return deliverycontext.GetLoggerOrDefault(ctx, srv.logger)
}

// GetActiveSessions lists the user's non-revoked, unexpired grants, newest first.
func (srv *sessionService) GetActiveSessions(ctx context.Context, userID uuid.UUID) ([]*entity.SessionInfo, error) {
	srv.log(ctx).Debug("Getting active sessions", slog.Any("user_id", userID))

	now := srv.clock.Now()
	tokens, err := srv.refreshRepo.FindActiveRefreshTokensByUserID(ctx, userID, now)
	if err != nil {
		srv.log(ctx).Error("Failed to get active sessions", slog.Any("error", err), slog.Any("user_id", userID))

		return nil, errors.Wrap(err, "failed to get active sessions")
	}

	sessions := make([]*entity.SessionInfo, 0, len(tokens))
	for _, token := range tokens {
		sessions = append(sessions, toSessionInfo(token, now))
	}

	return sessions, nil
}

// GetSessionInfo retrieves one session after checking it belongs to userID.
func (srv *sessionService) GetSessionInfo(ctx context.Context, userID, sessionID uuid.UUID) (*entity.SessionInfo, error) {
	token, err := srv.ownedSession(ctx, srv.refreshRepo, userID, sessionID)
	if err != nil {
		return nil, err
	}

	return toSessionInfo(token, srv.clock.Now()), nil
}

// RevokeSession revokes one of the user's sessions.
func (srv *sessionService) RevokeSession(ctx context.Context, userID, sessionID uuid.UUID) error {
	srv.log(ctx).Info("Revoking session", slog.Any("user_id", userID), slog.Any("session_id", sessionID))

	err := srv.txManager.Execute(ctx, func(repoFactory repository.RepositoryFactory) error {
		refreshRepo := repoFactory.RefreshTokenRepo()

		token, err := srv.ownedSession(ctx, refreshRepo, userID, sessionID)
		if err != nil {
			return err
		}

		if err := refreshRepo.RevokeRefreshToken(ctx, token.TokenHash, srv.clock.Now()); err != nil {
			return errors.Wrap(err, "failed to revoke session")
		}

		return nil
	})
	if err != nil {
		if isClientError(err) {
			return err
		}
		srv.log(ctx).Error("Failed to revoke session", slog.Any("error", err), slog.Any("user_id", userID), slog.Any("session_id", sessionID))

		return errors.Wrap(err, "failed to revoke session")
	}

	return nil
}

// RevokeAllSessions logs the user out everywhere and returns how many sessions ended.
func (srv *sessionService) RevokeAllSessions(ctx context.Context, userID uuid.UUID) (int, error) {
	srv.log(ctx).Info("Revoking all sessions", slog.Any("user_id", userID))

	revoked, err := srv.ledger.RevokeAllForUser(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return 0, errors.Wrap(domainerrors.ErrNotFound, "user not found")
		}
		srv.log(ctx).Error("Failed to revoke all sessions", slog.Any("error", err), slog.Any("user_id", userID))

		return 0, errors.Wrap(err, "failed to revoke all sessions")
	}
	srv.log(ctx).Info("Successfully revoked all sessions", slog.Any("user_id", userID), slog.Int("revoked", revoked))

	return revoked, nil
}

// CleanupExpiredTokens deletes grants that expired more than retention ago.
func (srv *sessionService) CleanupExpiredTokens(ctx context.Context, retention time.Duration) (int, error) {
	cutoff := srv.clock.Now().Add(-retention)

	deleted, err := srv.refreshRepo.DeleteExpiredRefreshTokens(ctx, cutoff)
	if err != nil {
		return 0, errors.Wrap(err, "failed to cleanup expired tokens")
	}
	srv.log(ctx).Info("Cleaned up expired refresh tokens", slog.Int("deleted_count", deleted), slog.Time("cutoff", cutoff))

	return deleted, nil
}

// CleanupRevokedTokens deletes grants revoked more than retention ago.
func (srv *sessionService) CleanupRevokedTokens(ctx context.Context, retention time.Duration) (int, error) {
	cutoff := srv.clock.Now().Add(-retention)

	deleted, err := srv.refreshRepo.DeleteRevokedRefreshTokens(ctx, cutoff)
	if err != nil {
		return 0, errors.Wrap(err, "failed to cleanup revoked tokens")
	}
	srv.log(ctx).Info("Cleaned up revoked refresh tokens", slog.Int("deleted_count", deleted), slog.Time("cutoff", cutoff))

	return deleted, nil
}

func (srv *sessionService) GetStatistics(ctx context.Context) (*entity.TokenStatistics, error) {
	stats, err := srv.refreshRepo.GetStatistics(ctx, srv.clock.Now())
	if err != nil {
		return nil, errors.Wrap(err, "failed to get token statistics")
	}

	return stats, nil
}

// ownedSession loads a grant by record ID and checks it belongs to userID.
func (srv *sessionService) ownedSession(ctx context.Context, refreshRepo repository.RefreshTokenRepository, userID, sessionID uuid.UUID) (*entity.RefreshToken, error) {
	token, err := refreshRepo.FindRefreshTokenByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrRefreshTokenNotFound) {
			return nil, errors.Wrap(domainerrors.ErrNotFound, "session not found")
		}

		return nil, errors.Wrap(err, "failed to find session")
	}

	if token.UserID != userID {
		return nil, errors.Wrap(domainerrors.ErrForbidden, "session does not belong to user")
	}

	return token, nil
}

func toSessionInfo(token *entity.RefreshToken, now time.Time) *entity.SessionInfo {
	return &entity.SessionInfo{
		ID:        token.ID,
		CreatedAt: token.CreatedAt,
		ExpiresAt: token.ExpiresAt,
		IsActive:  token.IsActive(now),
	}
}
