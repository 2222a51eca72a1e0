package memory

import (
	"context"
	"slices"
	"time"

	"readzone/internal/domain/entity"
	"readzone/internal/domain/repository"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type refreshTokenRepository struct {
	store *Store
	tx    *dataset
}

func (repo *refreshTokenRepository) CreateRefreshToken(_ context.Context, token *entity.RefreshToken) error {
	return repo.store.run(repo.tx, func(d *dataset) error {
		if !userExists(d, token.UserID) {
			return errors.Wrap(repository.ErrUserNotFound, "invalid user reference")
		}
		if indexByHash(d, token.TokenHash) >= 0 {
			return repository.ErrDuplicateIdentifier
		}

		if token.ID == uuid.Nil {
			token.ID = uuid.New()
		}
		token.CreatedAt = repo.store.clock.Now()
		d.tokens = append(d.tokens, copyRefreshToken(token))

		return nil
	})
}

func (repo *refreshTokenRepository) FindRefreshTokenByHash(_ context.Context, tokenHash string) (*entity.RefreshToken, error) {
	return repo.findOne(func(t *entity.RefreshToken) bool { return t.TokenHash == tokenHash })
}

func (repo *refreshTokenRepository) FindRefreshTokenByID(_ context.Context, id uuid.UUID) (*entity.RefreshToken, error) {
	return repo.findOne(func(t *entity.RefreshToken) bool { return t.ID == id })
}

func (repo *refreshTokenRepository) FindActiveRefreshTokensByUserID(_ context.Context, userID uuid.UUID, now time.Time) ([]*entity.RefreshToken, error) {
	var tokens []*entity.RefreshToken

	err := repo.store.run(repo.tx, func(d *dataset) error {
		// Newest first.
		for _, t := range slices.Backward(d.tokens) {
			if t.UserID == userID && t.IsActive(now) {
				tokens = append(tokens, copyRefreshToken(t))
			}
		}

		return nil
	})

	return tokens, err
}

func (repo *refreshTokenRepository) RevokeRefreshToken(_ context.Context, tokenHash string, at time.Time) error {
	return repo.store.run(repo.tx, func(d *dataset) error {
		idx := indexByHash(d, tokenHash)
		if idx < 0 {
			return repository.ErrRefreshTokenNotFound
		}
		revoke(d.tokens[idx], at)

		return nil
	})
}

func (repo *refreshTokenRepository) RevokeActiveRefreshToken(_ context.Context, tokenHash string, at time.Time) error {
	return repo.store.run(repo.tx, func(d *dataset) error {
		idx := indexByHash(d, tokenHash)
		if idx < 0 {
			return repository.ErrRefreshTokenNotFound
		}
		if !revoke(d.tokens[idx], at) {
			return repository.ErrRefreshTokenRevoked
		}

		return nil
	})
}

func (repo *refreshTokenRepository) RevokeRefreshTokensByUserID(_ context.Context, userID uuid.UUID, at time.Time) (int, error) {
	var count int

	err := repo.store.run(repo.tx, func(d *dataset) error {
		for _, t := range d.tokens {
			if t.UserID != userID {
				continue
			}
			active := t.IsActive(at)
			if revoke(t, at) && active {
				count++
			}
		}

		return nil
	})

	return count, err
}

func (repo *refreshTokenRepository) CountActiveSessionsByUserID(_ context.Context, userID uuid.UUID, now time.Time) (int, error) {
	var count int

	err := repo.store.run(repo.tx, func(d *dataset) error {
		for _, t := range d.tokens {
			if t.UserID == userID && t.IsActive(now) {
				count++
			}
		}

		return nil
	})

	return count, err
}

func (repo *refreshTokenRepository) DeleteExpiredRefreshTokens(_ context.Context, before time.Time) (int, error) {
	return repo.deleteWhere(func(t *entity.RefreshToken) bool {
		return t.ExpiresAt.Before(before)
	})
}

func (repo *refreshTokenRepository) DeleteRevokedRefreshTokens(_ context.Context, before time.Time) (int, error) {
	return repo.deleteWhere(func(t *entity.RefreshToken) bool {
		return t.Revoked && t.RevokedAt != nil && t.RevokedAt.Before(before)
	})
}

func (repo *refreshTokenRepository) GetStatistics(_ context.Context, now time.Time) (*entity.TokenStatistics, error) {
	stats := &entity.TokenStatistics{}

	err := repo.store.run(repo.tx, func(d *dataset) error {
		for _, t := range d.tokens {
			stats.Total++
			switch {
			case t.Revoked:
				stats.Revoked++
			case t.IsActive(now):
				stats.Active++
			default:
				stats.Expired++
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return stats, nil
}

func (repo *refreshTokenRepository) deleteWhere(match func(*entity.RefreshToken) bool) (int, error) {
	var deleted int

	err := repo.store.run(repo.tx, func(d *dataset) error {
		before := len(d.tokens)
		d.tokens = slices.DeleteFunc(d.tokens, match)
		deleted = before - len(d.tokens)

		return nil
	})

	return deleted, err
}

func (repo *refreshTokenRepository) findOne(match func(*entity.RefreshToken) bool) (*entity.RefreshToken, error) {
	var found *entity.RefreshToken

	err := repo.store.run(repo.tx, func(d *dataset) error {
		for _, t := range d.tokens {
			if match(t) {
				found = copyRefreshToken(t)

				return nil
			}
		}

		return repository.ErrRefreshTokenNotFound
	})
	if err != nil {
		return nil, err
	}

	return found, nil
}

// revoke flips a grant to revoked and reports whether it changed.
func revoke(t *entity.RefreshToken, at time.Time) bool {
	if t.Revoked {
		return false
	}

	revokedAt := at
	t.Revoked = true
	t.RevokedAt = &revokedAt

	return true
}

func indexByHash(d *dataset, tokenHash string) int {
	return slices.IndexFunc(d.tokens, func(t *entity.RefreshToken) bool {
		return t.TokenHash == tokenHash
	})
}
