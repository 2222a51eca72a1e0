package memory

import (
	"context"

	"readzone/internal/domain/entity"
	"readzone/internal/domain/repository"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type accountRepository struct {
	store *Store
	tx    *dataset
}

func (repo *accountRepository) Create(_ context.Context, account *entity.Account) error {
	return repo.store.run(repo.tx, func(d *dataset) error {
		if !userExists(d, account.UserID) {
			return errors.Wrap(repository.ErrUserNotFound, "invalid user reference")
		}
		for _, a := range d.accounts {
			if a.Provider == account.Provider && a.ProviderAccountID == account.ProviderAccountID {
				return errors.Wrap(repository.ErrUserAlreadyExists, "provider account already linked")
			}
		}

		if account.ID == uuid.Nil {
			account.ID = uuid.New()
		}
		account.CreatedAt = repo.store.clock.Now()
		d.accounts = append(d.accounts, copyAccount(account))

		return nil
	})
}

func (repo *accountRepository) FindByProvider(_ context.Context, provider entity.ProviderType, providerAccountID string) (*entity.Account, error) {
	var found *entity.Account

	err := repo.store.run(repo.tx, func(d *dataset) error {
		for _, a := range d.accounts {
			if a.Provider == provider && a.ProviderAccountID == providerAccountID {
				found = copyAccount(a)

				return nil
			}
		}

		return repository.ErrAccountNotFound
	})
	if err != nil {
		return nil, err
	}

	return found, nil
}

func (repo *accountRepository) FindByUserID(_ context.Context, userID uuid.UUID) ([]*entity.Account, error) {
	var accounts []*entity.Account

	err := repo.store.run(repo.tx, func(d *dataset) error {
		for _, a := range d.accounts {
			if a.UserID == userID {
				accounts = append(accounts, copyAccount(a))
			}
		}

		return nil
	})

	return accounts, err
}

func userExists(d *dataset, id uuid.UUID) bool {
	for _, u := range d.users {
		if u.ID == id {
			return true
		}
	}

	return false
}
