// Package repository defines the interfaces for the persistence layer.
// These interfaces act as a contract between the domain/application layers and the infrastructure layer.
package repository

import (
	"context"
	"errors"

	"readzone/internal/domain/entity"

	"github.com/google/uuid"
)

// ErrAccountNotFound is returned when no account links the given provider identity.
var ErrAccountNotFound = errors.New("account not found")

// AccountRepository persists provider linkage records.
type AccountRepository interface {
	// Create persists a new account link.
	Create(ctx context.Context, account *entity.Account) error

	// FindByProvider retrieves an account by provider and provider-specific identifier.
	FindByProvider(ctx context.Context, provider entity.ProviderType, providerAccountID string) (*entity.Account, error)

	// FindByUserID lists every account linked to a user.
	FindByUserID(ctx context.Context, userID uuid.UUID) ([]*entity.Account, error)
}
