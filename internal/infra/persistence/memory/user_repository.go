package memory

import (
	"context"
	"time"

	"readzone/internal/domain/entity"
	"readzone/internal/domain/repository"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type userRepository struct {
	store *Store
	tx    *dataset
}

func (repo *userRepository) FindByID(_ context.Context, id uuid.UUID) (*entity.User, error) {
	return repo.findOne(func(u *entity.User) bool { return u.ID == id })
}

func (repo *userRepository) FindByHandle(_ context.Context, handle string) (*entity.User, error) {
	return repo.findOne(func(u *entity.User) bool { return u.Handle == handle })
}

func (repo *userRepository) FindByEmail(_ context.Context, email string) (*entity.User, error) {
	if email == "" {
		return nil, repository.ErrUserNotFound
	}

	return repo.findOne(func(u *entity.User) bool { return u.Email == email })
}

func (repo *userRepository) FindByVerificationToken(_ context.Context, token string) (*entity.User, error) {
	if token == "" {
		return nil, repository.ErrUserNotFound
	}

	return repo.findOne(func(u *entity.User) bool { return u.VerificationToken == token })
}

func (repo *userRepository) FindByIDAndResetToken(_ context.Context, id uuid.UUID, token string) (*entity.User, error) {
	if token == "" {
		return nil, repository.ErrUserNotFound
	}

	return repo.findOne(func(u *entity.User) bool { return u.ID == id && u.ResetToken == token })
}

func (repo *userRepository) FindConflict(_ context.Context, handle, email, nickname string) (*entity.User, repository.UniqueField, error) {
	var (
		found *entity.User
		field repository.UniqueField
	)

	err := repo.store.run(repo.tx, func(d *dataset) error {
		u, f, ok := conflictIn(d.users, handle, email, nickname)
		if !ok {
			return repository.ErrUserNotFound
		}
		found, field = copyUser(u), f

		return nil
	})
	if err != nil {
		return nil, "", err
	}

	return found, field, nil
}

func (repo *userRepository) ExistsByField(_ context.Context, field repository.UniqueField, value string) (bool, error) {
	if !field.IsValid() {
		return false, errors.Errorf("unknown unique field %q", field)
	}

	var exists bool
	err := repo.store.run(repo.tx, func(d *dataset) error {
		for _, u := range d.users {
			if fieldValue(u, field) == value {
				exists = true

				return nil
			}
		}

		return nil
	})

	return exists, err
}

func (repo *userRepository) Create(_ context.Context, user *entity.User) error {
	return repo.store.run(repo.tx, func(d *dataset) error {
		if _, field, ok := conflictIn(d.users, user.Handle, user.Email, user.Nickname); ok {
			return errors.Wrapf(repository.ErrUserAlreadyExists, "duplicate %s", field)
		}

		now := repo.store.clock.Now()
		if user.ID == uuid.Nil {
			user.ID = uuid.New()
		}
		user.CreatedAt = now
		user.UpdatedAt = now
		d.users = append(d.users, copyUser(user))

		return nil
	})
}

func (repo *userRepository) Update(_ context.Context, user *entity.User) error {
	return repo.store.run(repo.tx, func(d *dataset) error {
		idx := -1
		for i, u := range d.users {
			if u.ID == user.ID {
				idx = i

				continue
			}
			if _, field, ok := conflictIn([]*entity.User{u}, user.Handle, user.Email, user.Nickname); ok {
				return errors.Wrapf(repository.ErrUserAlreadyExists, "duplicate %s", field)
			}
		}
		if idx < 0 {
			return repository.ErrUserNotFound
		}

		user.CreatedAt = d.users[idx].CreatedAt
		user.UpdatedAt = repo.store.clock.Now()
		d.users[idx] = copyUser(user)

		return nil
	})
}

func (repo *userRepository) SetResetToken(_ context.Context, id uuid.UUID, token string, expiresAt time.Time) error {
	return repo.mutate(func(u *entity.User) bool { return u.ID == id }, func(u *entity.User) {
		u.ResetToken = token
		u.ResetTokenExpiresAt = &expiresAt
	})
}

func (repo *userRepository) SetVerificationToken(_ context.Context, id uuid.UUID, token string) error {
	return repo.mutate(func(u *entity.User) bool { return u.ID == id && !u.IsVerified }, func(u *entity.User) {
		u.VerificationToken = token
	})
}

func (repo *userRepository) MarkVerified(_ context.Context, id uuid.UUID, token string) error {
	return repo.mutate(func(u *entity.User) bool {
		return u.ID == id && !u.IsVerified && token != "" && u.VerificationToken == token
	}, func(u *entity.User) {
		u.IsVerified = true
		u.VerificationToken = ""
	})
}

// mutate applies change in place to the first user matching match.
func (repo *userRepository) mutate(match func(*entity.User) bool, change func(*entity.User)) error {
	return repo.store.run(repo.tx, func(d *dataset) error {
		for i, u := range d.users {
			if !match(u) {
				continue
			}
			updated := copyUser(u)
			change(updated)
			updated.UpdatedAt = repo.store.clock.Now()
			d.users[i] = updated

			return nil
		}

		return repository.ErrUserNotFound
	})
}

// AcquireSessionMutex only checks existence: transactions already hold the store lock.
func (repo *userRepository) AcquireSessionMutex(ctx context.Context, id uuid.UUID) error {
	_, err := repo.FindByID(ctx, id)

	return err
}

func (repo *userRepository) findOne(match func(*entity.User) bool) (*entity.User, error) {
	var found *entity.User

	err := repo.store.run(repo.tx, func(d *dataset) error {
		for _, u := range d.users {
			if match(u) {
				found = copyUser(u)

				return nil
			}
		}

		return repository.ErrUserNotFound
	})
	if err != nil {
		return nil, err
	}

	return found, nil
}

// conflictIn reports the first user holding handle, email or nickname, checked in that order.
func conflictIn(users []*entity.User, handle, email, nickname string) (*entity.User, repository.UniqueField, bool) {
	wanted := []struct {
		field repository.UniqueField
		value string
	}{
		{repository.UniqueFieldHandle, handle},
		{repository.UniqueFieldEmail, email},
		{repository.UniqueFieldNickname, nickname},
	}

	for _, w := range wanted {
		if w.value == "" {
			continue
		}
		for _, u := range users {
			if fieldValue(u, w.field) == w.value {
				return u, w.field, true
			}
		}
	}

	return nil, "", false
}

func fieldValue(u *entity.User, field repository.UniqueField) string {
	switch field {
	case repository.UniqueFieldHandle:
		return u.Handle
	case repository.UniqueFieldEmail:
		return u.Email
	case repository.UniqueFieldNickname:
		return u.Nickname
	default:
		return ""
	}
}
