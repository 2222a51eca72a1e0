// Package memory is an in-process implementation of the persistence layer.
// It backs local development and tests; every transaction runs under one
// store-wide lock against a private copy of the data, which is published on commit.
package memory

import (
	"context"
	"sync"

	"readzone/internal/domain/entity"
	"readzone/internal/domain/repository"
	"readzone/internal/domain/service"
)

// dataset is the full state of the store. Rows are kept in insertion order.
type dataset struct {
	users    []*entity.User
	accounts []*entity.Account
	tokens   []*entity.RefreshToken
}

func (d *dataset) clone() *dataset {
	cloned := &dataset{
		users:    make([]*entity.User, 0, len(d.users)),
		accounts: make([]*entity.Account, 0, len(d.accounts)),
		tokens:   make([]*entity.RefreshToken, 0, len(d.tokens)),
	}
	for _, u := range d.users {
		cloned.users = append(cloned.users, copyUser(u))
	}
	for _, a := range d.accounts {
		cloned.accounts = append(cloned.accounts, copyAccount(a))
	}
	for _, t := range d.tokens {
		cloned.tokens = append(cloned.tokens, copyRefreshToken(t))
	}

	return cloned
}

// Store owns the data and the lock that serialises access to it.
type Store struct {
	mu    sync.Mutex
	data  *dataset
	clock service.Clock
}

// NewStore creates an empty store. clock stamps CreatedAt/UpdatedAt.
func NewStore(clock service.Clock) *Store {
	return &Store{
		data:  &dataset{},
		clock: clock,
	}
}

// TransactionManager returns a manager whose transactions run against this store.
func (s *Store) TransactionManager() repository.TransactionManager {
	return &transactionManager{store: s}
}

// UserRepo returns a repository that locks the store per call.
func (s *Store) UserRepo() repository.UserRepository {
	return &userRepository{store: s}
}

// AccountRepo returns a repository that locks the store per call.
func (s *Store) AccountRepo() repository.AccountRepository {
	return &accountRepository{store: s}
}

// RefreshTokenRepo returns a repository that locks the store per call.
func (s *Store) RefreshTokenRepo() repository.RefreshTokenRepository {
	return &refreshTokenRepository{store: s}
}

// run executes fn against tx when inside a transaction, otherwise against
// the live data under the store lock.
func (s *Store) run(tx *dataset, fn func(d *dataset) error) error {
	if tx != nil {
		return fn(tx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return fn(s.data)
}

type transactionManager struct {
	store *Store
}

// Execute holds the store lock for the whole of fn. Writes go to a copy that
// replaces the live data only when fn returns nil; a panic discards it.
// Repositories obtained outside fn must not be used inside it.
func (tm *transactionManager) Execute(ctx context.Context, fn func(repoFactory repository.RepositoryFactory) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tm.store.mu.Lock()
	defer tm.store.mu.Unlock()

	working := tm.store.data.clone()
	if err := fn(&repositoryFactory{store: tm.store, tx: working}); err != nil {
		return err
	}

	tm.store.data = working

	return nil
}

type repositoryFactory struct {
	store *Store
	tx    *dataset
}

func (f *repositoryFactory) UserRepo() repository.UserRepository {
	return &userRepository{store: f.store, tx: f.tx}
}

func (f *repositoryFactory) AccountRepo() repository.AccountRepository {
	return &accountRepository{store: f.store, tx: f.tx}
}

func (f *repositoryFactory) RefreshTokenRepo() repository.RefreshTokenRepository {
	return &refreshTokenRepository{store: f.store, tx: f.tx}
}

func copyUser(u *entity.User) *entity.User {
	cp := *u
	if u.ResetTokenExpiresAt != nil {
		at := *u.ResetTokenExpiresAt
		cp.ResetTokenExpiresAt = &at
	}

	return &cp
}

func copyAccount(a *entity.Account) *entity.Account {
	cp := *a

	return &cp
}

func copyRefreshToken(t *entity.RefreshToken) *entity.RefreshToken {
	cp := *t
	if t.RevokedAt != nil {
		at := *t.RevokedAt
		cp.RevokedAt = &at
	}

	return &cp
}
