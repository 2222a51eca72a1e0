// Package auth provides concrete implementations for authentication-related domain services.
package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"readzone/config"
	"readzone/internal/domain/service"
	"readzone/internal/errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// tokenClaims is the JWT body. The subject carries the user id and the
// registered ID claim carries the refresh-token jti.
type tokenClaims struct {
	Email    string `json:"email,omitempty"`
	Nickname string `json:"nickname,omitempty"`
	Type     string `json:"type"`
	jwt.RegisteredClaims
}

// jwtService is a concrete implementation of the TokenService interface using the JWT standard.
// Every token kind is signed with its own secret, looked up from the kind claim on verification.
type jwtService struct {
	secrets  map[service.TokenKind][]byte
	issuer   string
	audience string
	clock    service.Clock
	random   service.RandomSource
	parser   *jwt.Parser
}

// NewJWTService is the constructor for jwtService.
func NewJWTService(cfg *config.Config, clock service.Clock, random service.RandomSource) (service.TokenService, error) {
	if cfg.SecretKey.Access == "" || cfg.SecretKey.Refresh == "" {
		return nil, errors.New("jwt secrets must be provided")
	}

	issuer, audience := "", ""
	if cfg.Token != nil {
		issuer, audience = cfg.Token.Issuer, cfg.Token.Audience
	}

	secrets := map[service.TokenKind][]byte{
		service.TokenKindAccess:            []byte(cfg.SecretKey.Access),
		service.TokenKindRefresh:           []byte(cfg.SecretKey.Refresh),
		service.TokenKindEmailVerification: []byte(firstNonEmpty(cfg.SecretKey.EmailVerification, cfg.SecretKey.Access)),
		service.TokenKindPasswordReset:     []byte(firstNonEmpty(cfg.SecretKey.PasswordReset, cfg.SecretKey.Access)),
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithStrictDecoding(),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(clock.Now),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}

	return &jwtService{
		secrets:  secrets,
		issuer:   issuer,
		audience: audience,
		clock:    clock,
		random:   random,
		parser:   jwt.NewParser(opts...),
	}, nil
}

// Issue signs payload with an expiry ttl after the current whole second.
func (s *jwtService) Issue(payload *service.TokenPayload, ttl time.Duration) (string, error) {
	if payload == nil {
		return "", errors.New("token payload is required")
	}
	if ttl <= 0 {
		return "", errors.Errorf("token ttl must be positive, got %s", ttl)
	}

	secret, ok := s.secrets[payload.Kind]
	if !ok {
		return "", errors.Errorf("unsupported token kind %q", payload.Kind)
	}

	if payload.Kind == service.TokenKindRefresh && payload.JTI == "" {
		jti, err := s.random.Identifier()
		if err != nil {
			return "", errors.Wrap(err, "failed to generate jti")
		}
		payload.JTI = jti
	}

	issuedAt := s.clock.Now().UTC().Truncate(time.Second)
	payload.IssuedAt = issuedAt
	payload.ExpiresAt = issuedAt.Add(ttl).Truncate(time.Second)

	claims := &tokenClaims{
		Email:    payload.Email,
		Nickname: payload.Nickname,
		Type:     string(payload.Kind),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   payload.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(payload.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(payload.ExpiresAt),
			ID:        payload.JTI,
		},
	}
	if s.issuer != "" {
		claims.Issuer = s.issuer
	}
	if s.audience != "" {
		claims.Audience = jwt.ClaimStrings{s.audience}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", errors.Wrap(err, "failed to sign token")
	}

	return signed, nil
}

// Verify checks signature, issuer, audience and expiry and returns the payload.
func (s *jwtService) Verify(tokenString string) (*service.TokenPayload, error) {
	claims := &tokenClaims{}
	if _, err := s.parser.ParseWithClaims(tokenString, claims, s.keyFor); err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, service.ErrTokenExpired
		}

		return nil, service.ErrTokenInvalid
	}

	return claims.toPayload()
}

// VerifyKind verifies a token and rejects it unless it is of the expected kind.
func (s *jwtService) VerifyKind(tokenString string, kind service.TokenKind) (*service.TokenPayload, error) {
	payload, err := s.Verify(tokenString)
	if err != nil {
		return nil, err
	}
	if payload.Kind != kind {
		return nil, service.ErrTokenInvalid
	}

	return payload, nil
}

// ExtractUserID returns the subject of any valid token.
func (s *jwtService) ExtractUserID(tokenString string) (uuid.UUID, bool) {
	payload, err := s.Verify(tokenString)
	if err != nil {
		return uuid.Nil, false
	}

	return payload.UserID, true
}

// ValidateKind reports whether the token is valid and of the expected kind.
func (s *jwtService) ValidateKind(tokenString string, kind service.TokenKind) bool {
	_, err := s.VerifyKind(tokenString, kind)

	return err == nil
}

// TimeUntilExpiration returns the remaining whole seconds of payload, clamped at zero.
func (s *jwtService) TimeUntilExpiration(payload *service.TokenPayload) time.Duration {
	remaining := payload.ExpiresAt.Sub(s.clock.Now())
	if remaining <= 0 {
		return 0
	}

	return remaining.Truncate(time.Second)
}

// HashIdentifier returns the hex SHA-256 digest of a jti.
func (s *jwtService) HashIdentifier(jti string) string {
	sum := sha256.Sum256([]byte(jti))

	return hex.EncodeToString(sum[:])
}

func (s *jwtService) keyFor(token *jwt.Token) (any, error) {
	claims, ok := token.Claims.(*tokenClaims)
	if !ok {
		return nil, errors.New("unexpected claims type")
	}

	secret, ok := s.secrets[service.TokenKind(claims.Type)]
	if !ok {
		return nil, errors.Errorf("unknown token kind %q", claims.Type)
	}

	return secret, nil
}

func (c *tokenClaims) toPayload() (*service.TokenPayload, error) {
	userID, err := uuid.Parse(c.Subject)
	if err != nil {
		return nil, service.ErrTokenInvalid
	}

	kind := service.TokenKind(c.Type)
	if !kind.IsValid() {
		return nil, service.ErrTokenInvalid
	}
	if kind == service.TokenKindRefresh && c.ID == "" {
		return nil, service.ErrTokenInvalid
	}

	payload := &service.TokenPayload{
		UserID:   userID,
		Email:    c.Email,
		Nickname: c.Nickname,
		Kind:     kind,
		JTI:      c.ID,
	}
	if c.IssuedAt != nil {
		payload.IssuedAt = c.IssuedAt.UTC()
	}
	if c.ExpiresAt != nil {
		payload.ExpiresAt = c.ExpiresAt.UTC()
	}

	return payload, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}

	return ""
}
