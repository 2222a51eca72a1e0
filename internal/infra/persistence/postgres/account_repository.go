package postgres

import (
	"context"

	"readzone/internal/domain/entity"
	domainerrors "readzone/internal/domain/errors"
	"readzone/internal/domain/repository"
	"readzone/internal/infra/persistence/model"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// accountRepository implements repository.AccountRepository using GORM.
type accountRepository struct {
	db *gorm.DB
}

// NewAccountRepository is the constructor for accountRepository.
func NewAccountRepository(db *gorm.DB) repository.AccountRepository {
	return &accountRepository{db: db}
}

func (repo *accountRepository) Create(ctx context.Context, account *entity.Account) error {
	accountM := fromAccountDomain(account)

	if err := repo.db.WithContext(ctx).Create(accountM).Error; err != nil {
		if isUniqueConstraintViolation(err) {
			return errors.Wrap(repository.ErrUserAlreadyExists, "provider account already linked")
		}
		if isForeignKeyConstraintViolation(err) {
			return errors.Wrap(repository.ErrUserNotFound, "invalid user reference")
		}

		return domainerrors.NewDatabaseExecuteError(err, "failed to create account")
	}

	account.ID = accountM.ID
	account.CreatedAt = accountM.CreatedAt

	return nil
}

func (repo *accountRepository) FindByProvider(ctx context.Context, provider entity.ProviderType, providerAccountID string) (*entity.Account, error) {
	var accountM model.AccountModel

	err := repo.db.WithContext(ctx).
		Where("provider = ? AND provider_account_id = ?", string(provider), providerAccountID).
		First(&accountM).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrAccountNotFound
		}

		return nil, domainerrors.NewDatabaseExecuteError(err, "failed to find account")
	}

	return toAccountDomain(&accountM), nil
}

func (repo *accountRepository) FindByUserID(ctx context.Context, userID uuid.UUID) ([]*entity.Account, error) {
	var accountMs []model.AccountModel

	if err := repo.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at").Find(&accountMs).Error; err != nil {
		return nil, domainerrors.NewDatabaseExecuteError(err, "failed to list accounts")
	}

	accounts := make([]*entity.Account, 0, len(accountMs))
	for i := range accountMs {
		accounts = append(accounts, toAccountDomain(&accountMs[i]))
	}

	return accounts, nil
}

func toAccountDomain(data *model.AccountModel) *entity.Account {
	return &entity.Account{
		ID:                data.ID,
		UserID:            data.UserID,
		Type:              data.Type,
		Provider:          entity.ProviderType(data.Provider),
		ProviderAccountID: data.ProviderAccountID,
		CreatedAt:         data.CreatedAt,
	}
}

func fromAccountDomain(data *entity.Account) *model.AccountModel {
	return &model.AccountModel{
		ID:                data.ID,
		UserID:            data.UserID,
		Type:              data.Type,
		Provider:          string(data.Provider),
		ProviderAccountID: data.ProviderAccountID,
		CreatedAt:         data.CreatedAt,
	}
}
