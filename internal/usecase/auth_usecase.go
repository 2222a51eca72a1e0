// Package usecase contains the application-specific business rules.
// It orchestrates the domain layer to perform tasks.
package usecase

import (
	"context"
	"time"

	"readzone/internal/domain/entity"
	"readzone/internal/domain/service"

	"github.com/google/uuid"
)

// --- Input DTOs ---

// RegisterInput defines the data required to create an account.
type RegisterInput struct {
	Handle   string
	Email    string // optional
	Nickname string
	Password string
}

// LoginInput defines the data required for a user to log in.
type LoginInput struct {
	Handle    string
	Password  string
	IPAddress string
	UserAgent string
}

// RefreshInput carries the refresh token presented for rotation.
type RefreshInput struct {
	RefreshToken string
}

// LogoutInput carries the refresh token whose grant should end.
type LogoutInput struct {
	RefreshToken string
}

// PasswordResetRequestInput defines a "forgot password" submission.
type PasswordResetRequestInput struct {
	Email        string
	CaptchaToken string
	IPAddress    string
	UserAgent    string
}

// ResetPasswordInput defines the data required to consume a reset token.
type ResetPasswordInput struct {
	Token           string
	NewPassword     string
	ConfirmPassword string
}

// EmailVerificationRequestInput asks for a (new) verification email.
type EmailVerificationRequestInput struct {
	Email     string
	IPAddress string
}

// CheckDuplicateInput probes whether a unique field value is free.
type CheckDuplicateInput struct {
	Field string // handle, email or nickname
	Value string
}

// --- Output DTOs ---

// RegisterOutput returns the public projection of the created user.
type RegisterOutput struct {
	User                  *entity.PublicUser
	VerificationEmailSent bool
}

// AuthOutput is returned whenever a fresh access/refresh pair is issued at login.
type AuthOutput struct {
	AccessToken          string
	RefreshToken         string
	AccessTokenExpiresAt time.Time
	RefreshTokenMaxAgeMs int64
	User                 *entity.PublicUser
}

// RefreshOutput is the rotated pair.
type RefreshOutput struct {
	AccessToken          string
	RefreshToken         string
	AccessTokenExpiresAt time.Time
	RefreshTokenMaxAgeMs int64
}

// RateLimitDescriptor is the generic limit shown on the reset request page.
type RateLimitDescriptor struct {
	WindowSeconds int64 `json:"windowSeconds"`
	MaxRequests   int   `json:"maxRequests"`
}

// PasswordResetRequestOutput is identical for every caller with the same submitted address.
type PasswordResetRequestOutput struct {
	Message     string
	MaskedEmail string
	RateLimit   RateLimitDescriptor
}

// ResetTokenStatus is the state of a password reset link.
type ResetTokenStatus string

const (
	ResetTokenStatusValid   ResetTokenStatus = "valid"
	ResetTokenStatusInvalid ResetTokenStatus = "invalid"
	ResetTokenStatusUsed    ResetTokenStatus = "used"
	ResetTokenStatusExpired ResetTokenStatus = "expired"
)

// ResetTokenStatusOutput answers "is this reset link still good".
type ResetTokenStatusOutput struct {
	Status        ResetTokenStatus
	CanRequestNew bool
	MaskedEmail   string
	IssuedAt      *time.Time
	ExpiresAt     *time.Time
}

// ResetPasswordOutput carries the pair issued after a password reset.
type ResetPasswordOutput struct {
	AccessToken          string
	RefreshToken         string
	AccessTokenExpiresAt time.Time
	RefreshTokenMaxAgeMs int64
	RevokedSessions      int
	User                 *entity.PublicUser
}

// VerifyEmailOutput returns the now verified user.
type VerifyEmailOutput struct {
	User *entity.PublicUser
}

// VerificationRequestStatus is the outcome of a verification email request.
type VerificationRequestStatus string

const (
	VerificationRequestSent            VerificationRequestStatus = "sent"
	VerificationRequestAlreadyVerified VerificationRequestStatus = "already_verified"
	VerificationRequestRateLimited     VerificationRequestStatus = "rate_limited"
)

// EmailVerificationRequestOutput describes what happened to a verification email request.
type EmailVerificationRequestOutput struct {
	Status            VerificationRequestStatus
	MaskedEmail       string
	ExpiresIn         string
	RetryAfterSeconds int64
}

// CheckDuplicateOutput reports whether a unique field value can still be used.
type CheckDuplicateOutput struct {
	Field     string
	Available bool
}

// AuthUsecase defines the authentication operations exposed to the delivery layer.
type AuthUsecase interface {
	Register(ctx context.Context, input *RegisterInput) (*RegisterOutput, error)
	Login(ctx context.Context, input *LoginInput) (*AuthOutput, error)
	Refresh(ctx context.Context, input *RefreshInput) (*RefreshOutput, error)
	Logout(ctx context.Context, input *LogoutInput) error
	RequestPasswordReset(ctx context.Context, input *PasswordResetRequestInput) (*PasswordResetRequestOutput, error)
	CheckResetToken(ctx context.Context, token string) (*ResetTokenStatusOutput, error)
	ResetPassword(ctx context.Context, input *ResetPasswordInput) (*ResetPasswordOutput, error)
	VerifyEmail(ctx context.Context, token string) (*VerifyEmailOutput, error)
	RequestEmailVerification(ctx context.Context, input *EmailVerificationRequestInput) (*EmailVerificationRequestOutput, error)
	CheckDuplicate(ctx context.Context, input *CheckDuplicateInput) (*CheckDuplicateOutput, error)
	GetCurrentUser(ctx context.Context, userID uuid.UUID) (*entity.PublicUser, error)

	// Read-only helpers for request guards.
	ExtractUserIDFromToken(token string) (uuid.UUID, bool)
	ValidateTokenType(token string, kind service.TokenKind) bool
}
