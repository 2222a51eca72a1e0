// Package postgres contains the concrete implementation of the persistence layer using GORM and PostgreSQL.
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

// userRepository implements the domain.UserRepository interface using GORM.
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository is the constructor for userRepository.
func NewUserRepository(db *gorm.DB) repository.UserRepository {
	return &userRepository{db: db}
}

var uniqueFieldColumns = map[repository.UniqueField]string{
	repository.UniqueFieldHandle:   "handle",
	repository.UniqueFieldEmail:    "email",
	repository.UniqueFieldNickname: "nickname",
}

func (repo *userRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.User, error) {
	return repo.findOne(ctx, "id = ?", id)
}

func (repo *userRepository) FindByHandle(ctx context.Context, handle string) (*entity.User, error) {
	return repo.findOne(ctx, "handle = ?", handle)
}

func (repo *userRepository) FindByEmail(ctx context.Context, email string) (*entity.User, error) {
	if email == "" {
		return nil, repository.ErrUserNotFound
	}

	return repo.findOne(ctx, "email = ?", email)
}

func (repo *userRepository) FindByVerificationToken(ctx context.Context, token string) (*entity.User, error) {
	if token == "" {
		return nil, repository.ErrUserNotFound
	}

	return repo.findOne(ctx, "verification_token = ?", token)
}

func (repo *userRepository) FindByIDAndResetToken(ctx context.Context, id uuid.UUID, token string) (*entity.User, error) {
	if token == "" {
		return nil, repository.ErrUserNotFound
	}

	return repo.findOne(ctx, "id = ? AND reset_token = ?", id, token)
}

// FindConflict looks up handle, email and nickname in one query and reports
// the first colliding field in that order.
func (repo *userRepository) FindConflict(ctx context.Context, handle, email, nickname string) (*entity.User, repository.UniqueField, error) {
	query := repo.db.WithContext(ctx).Where("handle = ?", handle)
	if email != "" {
		query = query.Or("email = ?", email)
	}
	if nickname != "" {
		query = query.Or("nickname = ?", nickname)
	}

	var users []model.UserModel
	if err := query.Limit(3).Find(&users).Error; err != nil {
		return nil, "", domainerrors.NewDatabaseExecuteError(err, "failed to check user conflicts")
	}

	candidates := make([]*entity.User, 0, len(users))
	for i := range users {
		candidates = append(candidates, toUserDomain(&users[i]))
	}

	user, field, ok := firstConflict(candidates, handle, email, nickname)
	if !ok {
		return nil, "", repository.ErrUserNotFound
	}

	return user, field, nil
}

func (repo *userRepository) ExistsByField(ctx context.Context, field repository.UniqueField, value string) (bool, error) {
	column, ok := uniqueFieldColumns[field]
	if !ok {
		return false, errors.Errorf("unknown unique field %q", field)
	}

	var count int64
	if err := repo.db.WithContext(ctx).Model(&model.UserModel{}).Where(column+" = ?", value).Count(&count).Error; err != nil {
		return false, domainerrors.NewDatabaseExecuteError(err, "failed to check field availability")
	}

	return count > 0, nil
}

func (repo *userRepository) Create(ctx context.Context, user *entity.User) error {
	userM := fromUserDomain(user)

	if err := repo.db.WithContext(ctx).Create(userM).Error; err != nil {
		if isUniqueConstraintViolation(err) {
			return errors.Wrap(repository.ErrUserAlreadyExists, err.Error())
		}

		return domainerrors.NewDatabaseExecuteError(err, "failed to create user")
	}

	user.ID = userM.ID
	user.CreatedAt = userM.CreatedAt
	user.UpdatedAt = userM.UpdatedAt

	return nil
}

// Update writes every column, so clearing a token slot persists as NULL.
func (repo *userRepository) Update(ctx context.Context, user *entity.User) error {
	userM := fromUserDomain(user)

	result := repo.db.WithContext(ctx).
		Model(&model.UserModel{ID: user.ID}).
		Select("*").
		Omit("id", "created_at", "Accounts", "RefreshTokens").
		Updates(userM)
	if result.Error != nil {
		if isUniqueConstraintViolation(result.Error) {
			return errors.Wrap(repository.ErrUserAlreadyExists, result.Error.Error())
		}

		return domainerrors.NewDatabaseExecuteError(result.Error, "failed to update user")
	}
	if result.RowsAffected == 0 {
		return repository.ErrUserNotFound
	}

	user.UpdatedAt = userM.UpdatedAt

	return nil
}

func (repo *userRepository) SetResetToken(ctx context.Context, id uuid.UUID, token string, expiresAt time.Time) error {
	return updateColumns(repo.db.WithContext(ctx).Model(&model.UserModel{}).Where("id = ?", id),
		map[string]any{"reset_token": token, "reset_token_expires_at": expiresAt}, "failed to store reset token")
}

func (repo *userRepository) SetVerificationToken(ctx context.Context, id uuid.UUID, token string) error {
	return updateColumns(repo.db.WithContext(ctx).Model(&model.UserModel{}).Where("id = ? AND is_verified = ?", id, false),
		map[string]any{"verification_token": token}, "failed to store verification token")
}

func (repo *userRepository) MarkVerified(ctx context.Context, id uuid.UUID, token string) error {
	return updateColumns(
		repo.db.WithContext(ctx).Model(&model.UserModel{}).
			Where("id = ? AND verification_token = ? AND is_verified = ?", id, token, false),
		map[string]any{"is_verified": true, "verification_token": nil}, "failed to mark user verified")
}

// updateColumns applies columns to the rows matched by query and bumps updated_at.
func updateColumns(query *gorm.DB, columns map[string]any, msg string) error {
	columns["updated_at"] = time.Now()

	result := query.Updates(columns)
	if result.Error != nil {
		return domainerrors.NewDatabaseExecuteError(result.Error, msg)
	}
	if result.RowsAffected == 0 {
		return repository.ErrUserNotFound
	}

	return nil
}

// AcquireSessionMutex takes a row lock on the user (SELECT ... FOR UPDATE)
// that is held until the surrounding transaction ends.
func (repo *userRepository) AcquireSessionMutex(ctx context.Context, id uuid.UUID) error {
	var userM model.UserModel

	err := repo.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").
		Where("id = ?", id).
		First(&userM).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return repository.ErrUserNotFound
		}

		return domainerrors.NewDatabaseExecuteError(err, "failed to lock user row")
	}

	return nil
}

func (repo *userRepository) findOne(ctx context.Context, query string, args ...any) (*entity.User, error) {
	var userM model.UserModel

	if err := repo.db.WithContext(ctx).Where(query, args...).First(&userM).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrUserNotFound
		}

		return nil, domainerrors.NewDatabaseExecuteError(err, "failed to find user")
	}

	return toUserDomain(&userM), nil
}

// firstConflict picks the colliding user, preferring handle, then email, then nickname.
func firstConflict(users []*entity.User, handle, email, nickname string) (*entity.User, repository.UniqueField, bool) {
	checks := []struct {
		field repository.UniqueField
		match func(*entity.User) bool
	}{
		{repository.UniqueFieldHandle, func(u *entity.User) bool { return handle != "" && u.Handle == handle }},
		{repository.UniqueFieldEmail, func(u *entity.User) bool { return email != "" && u.Email == email }},
		{repository.UniqueFieldNickname, func(u *entity.User) bool { return nickname != "" && u.Nickname == nickname }},
	}

	for _, check := range checks {
		for _, u := range users {
			if check.match(u) {
				return u, check.field, true
			}
		}
	}

	return nil, "", false
}

func toUserDomain(data *model.UserModel) *entity.User {
	if data == nil {
		return nil
	}

	return &entity.User{
		ID:                  data.ID,
		Handle:              data.Handle,
		Email:               derefString(data.Email),
		Nickname:            data.Nickname,
		PasswordHash:        data.PasswordHash,
		IsVerified:          data.IsVerified,
		VerificationToken:   derefString(data.VerificationToken),
		ResetToken:          derefString(data.ResetToken),
		ResetTokenExpiresAt: data.ResetTokenExpiresAt,
		CreatedAt:           data.CreatedAt,
		UpdatedAt:           data.UpdatedAt,
	}
}

func fromUserDomain(data *entity.User) *model.UserModel {
	if data == nil {
		return nil
	}

	return &model.UserModel{
		ID:                  data.ID,
		Handle:              data.Handle,
		Email:               nullableString(data.Email),
		Nickname:            data.Nickname,
		PasswordHash:        data.PasswordHash,
		IsVerified:          data.IsVerified,
		VerificationToken:   nullableString(data.VerificationToken),
		ResetToken:          nullableString(data.ResetToken),
		ResetTokenExpiresAt: data.ResetTokenExpiresAt,
		CreatedAt:           data.CreatedAt,
		UpdatedAt:           data.UpdatedAt,
	}
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}

	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}

	return *s
}
