package service

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Token verification errors.
var (
	// ErrTokenInvalid covers malformed tokens, bad signatures and kind mismatches.
	ErrTokenInvalid = errors.New("token is invalid")
	// ErrTokenExpired is returned for a correctly signed token whose expiry has passed.
	ErrTokenExpired = errors.New("token has expired")
)

// TokenKind discriminates what a signed token may be used for.
type TokenKind string

const (
	TokenKindAccess            TokenKind = "access"
	TokenKindRefresh           TokenKind = "refresh"
	TokenKindEmailVerification TokenKind = "email-verification"
	TokenKindPasswordReset     TokenKind = "password-reset"
)

// IsValid reports whether k is a known token kind.
func (k TokenKind) IsValid() bool {
	switch k {
	case TokenKindAccess, TokenKindRefresh, TokenKindEmailVerification, TokenKindPasswordReset:
		return true
	default:
		return false
	}
}

// TokenPayload is the typed content bound into a signed token.
type TokenPayload struct {
	UserID    uuid.UUID
	Email     string // optional
	Nickname  string
	Kind      TokenKind
	IssuedAt  time.Time
	ExpiresAt time.Time
	JTI       string // refresh tokens only
}

// TokenService signs and verifies tamper-evident tokens.
type TokenService interface {
	// Issue signs payload with an expiry ttl after the current time.
	// IssuedAt, ExpiresAt and (for refresh tokens without one) JTI are filled in on payload.
	Issue(payload *TokenPayload, ttl time.Duration) (string, error)

	// Verify returns the payload of a token, or ErrTokenInvalid / ErrTokenExpired.
	Verify(token string) (*TokenPayload, error)

	// VerifyKind verifies a token and requires its kind to equal kind.
	VerifyKind(token string, kind TokenKind) (*TokenPayload, error)

	// ExtractUserID returns the subject of a valid token.
	ExtractUserID(token string) (uuid.UUID, bool)

	// ValidateKind reports whether token is valid and of the given kind.
	ValidateKind(token string, kind TokenKind) bool

	// TimeUntilExpiration returns the whole seconds left before payload expires, never negative.
	TimeUntilExpiration(payload *TokenPayload) time.Duration

	// HashIdentifier returns the one-way hash under which a jti is recorded.
	HashIdentifier(jti string) string
}
