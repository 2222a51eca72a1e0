// Package persistence selects the storage backend and exposes its repositories to the fx graph.
package persistence

import (
	"log/slog"

	"readzone/config"
	"readzone/internal/domain/constants"
	"readzone/internal/domain/repository"
	"readzone/internal/domain/service"
	"readzone/internal/errors"
	"readzone/internal/infra/persistence/memory"
	"readzone/internal/infra/persistence/postgres"

	"go.uber.org/fx"
)

// Params defines the required parameters
type Params struct {
	fx.In

	Lc     fx.Lifecycle
	Config *config.Config
	Logger *slog.Logger
	Clock  service.Clock
}

// Repositories is the set of storage ports provided to the use cases.
type Repositories struct {
	fx.Out

	TxManager     repository.TransactionManager
	Users         repository.UserRepository
	Accounts      repository.AccountRepository
	RefreshTokens repository.RefreshTokenRepository
}

// New builds the repositories of the configured driver.
func New(params Params) (Repositories, error) {
	driver := constants.StorageDriverPostgres
	if params.Config.Storage != nil && params.Config.Storage.Driver != "" {
		driver = params.Config.Storage.Driver
	}

	switch driver {
	case constants.StorageDriverMemory:
		params.Logger.Warn("Using in-memory storage, data is lost on restart")
		store := memory.NewStore(params.Clock)

		return Repositories{
			TxManager:     store.TransactionManager(),
			Users:         store.UserRepo(),
			Accounts:      store.AccountRepo(),
			RefreshTokens: store.RefreshTokenRepo(),
		}, nil
	case constants.StorageDriverPostgres:
		if params.Config.Postgres == nil {
			return Repositories{}, errors.New("postgres storage selected but no postgres config provided")
		}

		db, err := postgres.New(postgres.Params{
			Lifecycle: params.Lc,
			Config:    params.Config,
			Logger:    params.Logger,
		})
		if err != nil {
			return Repositories{}, err
		}

		return Repositories{
			TxManager:     postgres.NewTransactionManager(db),
			Users:         postgres.NewUserRepository(db),
			Accounts:      postgres.NewAccountRepository(db),
			RefreshTokens: postgres.NewRefreshTokenRepository(db),
		}, nil
	default:
		return Repositories{}, errors.Errorf("unsupported storage driver %q", driver)
	}
}
