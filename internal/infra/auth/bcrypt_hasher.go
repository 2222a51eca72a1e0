// Package auth provides concrete implementations for authentication-related domain services.
package auth

import (
	"strconv"
	"strings"
	"unicode"

	"readzone/config"
	domainerrors "readzone/internal/domain/errors"
	"readzone/internal/domain/service"
	"readzone/internal/errors"

	"golang.org/x/crypto/bcrypt"
)

// bcryptHasher is a concrete implementation of the PasswordHasher interface using bcrypt.
type bcryptHasher struct {
	cost   int
	policy config.PasswordStrengthConfig
}

// NewBcryptHasher builds the hasher from the auth and password strength configuration.
func NewBcryptHasher(cfg *config.Config) service.PasswordHasher {
	cost := bcrypt.DefaultCost
	if cfg.Auth != nil && cfg.Auth.BcryptCost > 0 {
		cost = cfg.Auth.BcryptCost
	}

	policy := defaultPasswordPolicy()
	if cfg.PasswordStrength != nil {
		policy = *cfg.PasswordStrength
	}

	return NewBcryptHasherWithPolicy(cost, policy)
}

// NewBcryptHasherWithPolicy creates a hasher with an explicit cost and policy.
// Costs outside bcrypt's range fall back to bcrypt.DefaultCost.
func NewBcryptHasherWithPolicy(cost int, policy config.PasswordStrengthConfig) service.PasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}

	return &bcryptHasher{cost: cost, policy: policy}
}

func defaultPasswordPolicy() config.PasswordStrengthConfig {
	return config.PasswordStrengthConfig{
		MinLength:      8,
		MaxLength:      72,
		RequireLetter:  true,
		RequireNumbers: true,
	}
}

// Hash generates a salted hash from a plaintext password using bcrypt.
func (h *bcryptHasher) Hash(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", errors.Wrap(err, "bcrypt hash failed")
	}

	return string(bytes), nil
}

// Check compares a plaintext password with a bcrypt hash.
// The comparison inside bcrypt is constant time.
func (h *bcryptHasher) Check(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// ValidatePasswordStrength reports every unmet rule of the configured policy
// in the details of ErrWeakPassword.
func (h *bcryptHasher) ValidatePasswordStrength(password string) error {
	var problems []string

	length := len([]rune(password))
	if h.policy.MinLength > 0 && length < h.policy.MinLength {
		problems = append(problems, "must be at least "+strconv.Itoa(h.policy.MinLength)+" characters long")
	}
	if h.policy.MaxLength > 0 && len(password) > h.policy.MaxLength {
		problems = append(problems, "must be at most "+strconv.Itoa(h.policy.MaxLength)+" bytes long")
	}
	if h.policy.RequireLetter && !h.hasLetter(password) {
		problems = append(problems, "must contain at least one letter")
	}
	if h.policy.RequireLowercase && !h.hasLowercase(password) {
		problems = append(problems, "must contain at least one lowercase letter")
	}
	if h.policy.RequireUppercase && !h.hasUppercase(password) {
		problems = append(problems, "must contain at least one uppercase letter")
	}
	if h.policy.RequireNumbers && !h.hasNumbers(password) {
		problems = append(problems, "must contain at least one number")
	}
	if h.policy.RequireSpecial && !h.hasSpecialChars(password) {
		problems = append(problems, "must contain at least one special character")
	}

	if len(problems) == 0 {
		return nil
	}

	return domainerrors.ErrWeakPassword.WithDetails("password " + strings.Join(problems, "; "))
}

func (h *bcryptHasher) hasLetter(s string) bool {
	return strings.IndexFunc(s, unicode.IsLetter) >= 0
}

func (h *bcryptHasher) hasUppercase(s string) bool {
	return strings.IndexFunc(s, unicode.IsUpper) >= 0
}

func (h *bcryptHasher) hasLowercase(s string) bool {
	return strings.IndexFunc(s, unicode.IsLower) >= 0
}

func (h *bcryptHasher) hasNumbers(s string) bool {
	return strings.IndexFunc(s, unicode.IsDigit) >= 0
}

func (h *bcryptHasher) hasSpecialChars(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSymbol(r)
	}) >= 0
}
