package postgres

import (
	"context"
	"time"

	"readzone/internal/domain/entity"
	domainerrors "readzone/internal/domain/errors"
	"readzone/internal/domain/repository"
	"readzone/internal/infra/persistence/model"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// refreshTokenRepository implements repository.RefreshTokenRepository using GORM.
type refreshTokenRepository struct {
	db *gorm.DB
}

// NewRefreshTokenRepository is the constructor for refreshTokenRepository.
func NewRefreshTokenRepository(db *gorm.DB) repository.RefreshTokenRepository {
	return &refreshTokenRepository{db: db}
}

func (repo *refreshTokenRepository) CreateRefreshToken(ctx context.Context, token *entity.RefreshToken) error {
	tokenM := fromRefreshTokenDomain(token)

	if err := repo.db.WithContext(ctx).Create(tokenM).Error; err != nil {
		if isUniqueConstraintViolation(err) {
			return repository.ErrDuplicateIdentifier
		}
		if isForeignKeyConstraintViolation(err) {
			return errors.Wrap(repository.ErrUserNotFound, "invalid user reference")
		}

		return domainerrors.NewDatabaseExecuteError(err, "failed to create refresh token")
	}

	token.ID = tokenM.ID
	token.CreatedAt = tokenM.CreatedAt

	return nil
}

func (repo *refreshTokenRepository) FindRefreshTokenByHash(ctx context.Context, tokenHash string) (*entity.RefreshToken, error) {
	return repo.findOne(ctx, "token_hash = ?", tokenHash)
}

func (repo *refreshTokenRepository) FindRefreshTokenByID(ctx context.Context, id uuid.UUID) (*entity.RefreshToken, error) {
	return repo.findOne(ctx, "id = ?", id)
}

func (repo *refreshTokenRepository) FindActiveRefreshTokensByUserID(ctx context.Context, userID uuid.UUID, now time.Time) ([]*entity.RefreshToken, error) {
	var tokenMs []model.RefreshTokenModel

	err := repo.db.WithContext(ctx).
		Where("user_id = ? AND revoked = ? AND expires_at > ?", userID, false, now).
		Order("created_at DESC").
		Find(&tokenMs).Error
	if err != nil {
		return nil, domainerrors.NewDatabaseExecuteError(err, "failed to list refresh tokens")
	}

	tokens := make([]*entity.RefreshToken, 0, len(tokenMs))
	for i := range tokenMs {
		tokens = append(tokens, toRefreshTokenDomain(&tokenMs[i]))
	}

	return tokens, nil
}

func (repo *refreshTokenRepository) RevokeRefreshToken(ctx context.Context, tokenHash string, at time.Time) error {
	result := repo.revokeWhere(ctx, at, "token_hash = ? AND revoked = ?", tokenHash, false)
	if result.Error != nil {
		return domainerrors.NewDatabaseExecuteError(result.Error, "failed to revoke refresh token")
	}
	if result.RowsAffected > 0 {
		return nil
	}

	// Nothing changed: either already revoked (fine) or unknown.
	_, err := repo.FindRefreshTokenByHash(ctx, tokenHash)

	return err
}

// RevokeActiveRefreshToken is the compare-and-set used by rotation. Under
// READ COMMITTED a concurrent UPDATE on the same row waits for the first one
// and then re-evaluates "revoked = false", so at most one caller sees a row change.
func (repo *refreshTokenRepository) RevokeActiveRefreshToken(ctx context.Context, tokenHash string, at time.Time) error {
	result := repo.revokeWhere(ctx, at, "token_hash = ? AND revoked = ?", tokenHash, false)
	if result.Error != nil {
		return domainerrors.NewDatabaseExecuteError(result.Error, "failed to revoke refresh token")
	}
	if result.RowsAffected == 1 {
		return nil
	}

	if _, err := repo.FindRefreshTokenByHash(ctx, tokenHash); err != nil {
		return err
	}

	return repository.ErrRefreshTokenRevoked
}

func (repo *refreshTokenRepository) RevokeRefreshTokensByUserID(ctx context.Context, userID uuid.UUID, at time.Time) (int, error) {
	var revoked []model.RefreshTokenModel

	err := repo.db.WithContext(ctx).
		Model(&revoked).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "expires_at"}}}).
		Where("user_id = ? AND revoked = ?", userID, false).
		Updates(map[string]any{"revoked": true, "revoked_at": at}).Error
	if err != nil {
		return 0, domainerrors.NewDatabaseExecuteError(err, "failed to revoke user refresh tokens")
	}

	active := 0
	for i := range revoked {
		if revoked[i].ExpiresAt.After(at) {
			active++
		}
	}

	return active, nil
}

func (repo *refreshTokenRepository) CountActiveSessionsByUserID(ctx context.Context, userID uuid.UUID, now time.Time) (int, error) {
	var count int64

	err := repo.db.WithContext(ctx).
		Model(&model.RefreshTokenModel{}).
		Where("user_id = ? AND revoked = ? AND expires_at > ?", userID, false, now).
		Count(&count).Error
	if err != nil {
		return 0, domainerrors.NewDatabaseExecuteError(err, "failed to count active sessions")
	}

	return int(count), nil
}

func (repo *refreshTokenRepository) DeleteExpiredRefreshTokens(ctx context.Context, before time.Time) (int, error) {
	result := repo.db.WithContext(ctx).Where("expires_at < ?", before).Delete(&model.RefreshTokenModel{})
	if result.Error != nil {
		return 0, domainerrors.NewDatabaseExecuteError(result.Error, "failed to delete expired refresh tokens")
	}

	return int(result.RowsAffected), nil
}

func (repo *refreshTokenRepository) DeleteRevokedRefreshTokens(ctx context.Context, before time.Time) (int, error) {
	result := repo.db.WithContext(ctx).
		Where("revoked = ? AND revoked_at < ?", true, before).
		Delete(&model.RefreshTokenModel{})
	if result.Error != nil {
		return 0, domainerrors.NewDatabaseExecuteError(result.Error, "failed to delete revoked refresh tokens")
	}

	return int(result.RowsAffected), nil
}

func (repo *refreshTokenRepository) GetStatistics(ctx context.Context, now time.Time) (*entity.TokenStatistics, error) {
	var row struct {
		Total   int64
		Active  int64
		Revoked int64
		Expired int64
	}

	err := repo.db.WithContext(ctx).
		Model(&model.RefreshTokenModel{}).
		Select(
			"COUNT(*) AS total, "+
				"COUNT(*) FILTER (WHERE revoked = false AND expires_at > ?) AS active, "+
				"COUNT(*) FILTER (WHERE revoked = true) AS revoked, "+
				"COUNT(*) FILTER (WHERE revoked = false AND expires_at <= ?) AS expired",
			now, now,
		).
		Scan(&row).Error
	if err != nil {
		return nil, domainerrors.NewDatabaseExecuteError(err, "failed to collect token statistics")
	}

	return &entity.TokenStatistics{
		Total:   row.Total,
		Active:  row.Active,
		Revoked: row.Revoked,
		Expired: row.Expired,
	}, nil
}

func (repo *refreshTokenRepository) revokeWhere(ctx context.Context, at time.Time, query string, args ...any) *gorm.DB {
	return repo.db.WithContext(ctx).
		Model(&model.RefreshTokenModel{}).
		Where(query, args...).
		Updates(map[string]any{"revoked": true, "revoked_at": at})
}

func (repo *refreshTokenRepository) findOne(ctx context.Context, query string, args ...any) (*entity.RefreshToken, error) {
	var tokenM model.RefreshTokenModel

	if err := repo.db.WithContext(ctx).Where(query, args...).First(&tokenM).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrRefreshTokenNotFound
		}

		return nil, domainerrors.NewDatabaseExecuteError(err, "failed to find refresh token")
	}

	return toRefreshTokenDomain(&tokenM), nil
}

func toRefreshTokenDomain(data *model.RefreshTokenModel) *entity.RefreshToken {
	return &entity.RefreshToken{
		ID:        data.ID,
		UserID:    data.UserID,
		TokenHash: data.TokenHash,
		ExpiresAt: data.ExpiresAt,
		Revoked:   data.Revoked,
		RevokedAt: data.RevokedAt,
		CreatedAt: data.CreatedAt,
	}
}

func fromRefreshTokenDomain(data *entity.RefreshToken) *model.RefreshTokenModel {
	return &model.RefreshTokenModel{
		ID:        data.ID,
		UserID:    data.UserID,
		TokenHash: data.TokenHash,
		ExpiresAt: data.ExpiresAt,
		Revoked:   data.Revoked,
		RevokedAt: data.RevokedAt,
		CreatedAt: data.CreatedAt,
	}
}
