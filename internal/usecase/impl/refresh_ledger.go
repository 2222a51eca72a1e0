package impl

import (
	"context"
	"time"

	"readzone/internal/domain/entity"
	"readzone/internal/domain/repository"
	"readzone/internal/domain/service"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// refreshTokenLedger keeps one record per issued refresh token, keyed by the
// hash of its jti. Rotation and the per-user revocation sweep both lock the
// owner's row first, so a refresh racing a password reset is ordered against it.
type refreshTokenLedger struct {
	txManager repository.TransactionManager
	tokens    repository.RefreshTokenRepository
	clock     service.Clock
}

func newRefreshTokenLedger(txManager repository.TransactionManager, tokens repository.RefreshTokenRepository, clock service.Clock) *refreshTokenLedger {
	return &refreshTokenLedger{
		txManager: txManager,
		tokens:    tokens,
		clock:     clock,
	}
}

// Record inserts a new non-revoked grant.
func (l *refreshTokenLedger) Record(ctx context.Context, userID uuid.UUID, identifierHash string, expiresAt time.Time) error {
	return l.record(ctx, l.tokens, userID, identifierHash, expiresAt)
}

// Lookup returns the grant recorded under identifierHash.
func (l *refreshTokenLedger) Lookup(ctx context.Context, identifierHash string) (*entity.RefreshToken, error) {
	record, err := l.tokens.FindRefreshTokenByHash(ctx, identifierHash)
	if err != nil {
		return nil, errors.Wrap(err, "failed to look up refresh grant")
	}

	return record, nil
}

// Revoke marks the grant revoked; revoking twice is not an error.
func (l *refreshTokenLedger) Revoke(ctx context.Context, identifierHash string) error {
	if err := l.tokens.RevokeRefreshToken(ctx, identifierHash, l.clock.Now()); err != nil {
		return errors.Wrap(err, "failed to revoke refresh grant")
	}

	return nil
}

// Rotate revokes oldHash and records newHash in one transaction. When another
// caller already revoked oldHash it fails with repository.ErrRefreshTokenRevoked
// and nothing is written.
func (l *refreshTokenLedger) Rotate(ctx context.Context, oldHash string, userID uuid.UUID, newHash string, expiresAt time.Time) error {
	return l.txManager.Execute(ctx, func(repoFactory repository.RepositoryFactory) error {
		if err := repoFactory.UserRepo().AcquireSessionMutex(ctx, userID); err != nil {
			return errors.Wrap(err, "failed to lock grant owner")
		}

		refreshRepo := repoFactory.RefreshTokenRepo()
		if err := refreshRepo.RevokeActiveRefreshToken(ctx, oldHash, l.clock.Now()); err != nil {
			return errors.Wrap(err, "failed to revoke rotated grant")
		}

		return l.record(ctx, refreshRepo, userID, newHash, expiresAt)
	})
}

// RevokeAllForUser revokes every non-revoked grant of userID, expired ones included,
// and returns how many of them were still active.
func (l *refreshTokenLedger) RevokeAllForUser(ctx context.Context, userID uuid.UUID) (int, error) {
	var revoked int

	err := l.txManager.Execute(ctx, func(repoFactory repository.RepositoryFactory) error {
		if err := repoFactory.UserRepo().AcquireSessionMutex(ctx, userID); err != nil {
			return errors.Wrap(err, "failed to lock grant owner")
		}

		var err error
		revoked, err = l.revokeAll(ctx, repoFactory.RefreshTokenRepo(), userID)

		return err
	})
	if err != nil {
		return 0, err
	}

	return revoked, nil
}

func (l *refreshTokenLedger) record(ctx context.Context, repo repository.RefreshTokenRepository, userID uuid.UUID, identifierHash string, expiresAt time.Time) error {
	grant := &entity.RefreshToken{
		UserID:    userID,
		TokenHash: identifierHash,
		ExpiresAt: expiresAt,
	}
	if err := repo.CreateRefreshToken(ctx, grant); err != nil {
		return errors.Wrap(err, "failed to record refresh grant")
	}

	return nil
}

func (l *refreshTokenLedger) revokeAll(ctx context.Context, repo repository.RefreshTokenRepository, userID uuid.UUID) (int, error) {
	revoked, err := repo.RevokeRefreshTokensByUserID(ctx, userID, l.clock.Now())
	if err != nil {
		return 0, errors.Wrap(err, "failed to revoke user refresh grants")
	}

	return revoked, nil
}
