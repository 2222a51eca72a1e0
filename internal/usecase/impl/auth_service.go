// Package impl contains the implementation of the application's business logic.
package impl

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"readzone/config"
	deliverycontext "readzone/internal/delivery/context"
	"readzone/internal/domain/entity"
	domainerrors "readzone/internal/domain/errors"
	"readzone/internal/domain/repository"
	"readzone/internal/domain/service"
	"readzone/internal/usecase"
	"readzone/internal/util"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/fx"
)

// dummyPassword is hashed once and compared against on unknown handles, so a
// missing account costs the same bcrypt work as a wrong password.
const dummyPassword = "readzone-timing-equalizer"

// authService implements the AuthUsecase interface.
type authService struct {
	txManager    repository.TransactionManager
	userRepo     repository.UserRepository
	ledger       *refreshTokenLedger
	hasher       service.PasswordHasher
	tokenService service.TokenService
	limiter      service.RateLimiter
	notifier     service.Notifier
	abuseChecker service.AbuseChecker
	clock        service.Clock
	logger       *slog.Logger

	tokenCfg          config.TokenConfig
	rateCfg           config.RateLimitConfig
	maxActiveSessions int
	minResponseTime   time.Duration

	dummyHash func() string
}

// AuthServiceParams holds dependencies for AuthService, injected by Fx.
type AuthServiceParams struct {
	fx.In

	TxManager        repository.TransactionManager
	UserRepo         repository.UserRepository
	RefreshTokenRepo repository.RefreshTokenRepository
	Hasher           service.PasswordHasher
	TokenService     service.TokenService
	RateLimiter      service.RateLimiter
	Notifier         service.Notifier
	AbuseChecker     service.AbuseChecker
	Clock            service.Clock
	Config           *config.Config
	Logger           *slog.Logger
}

// NewAuthService is the constructor for authService. It receives all dependencies as interfaces.
// Config is expected to have passed through config.ApplyDefaults.
func NewAuthService(params AuthServiceParams) usecase.AuthUsecase {
	srv := &authService{
		txManager:    params.TxManager,
		userRepo:     params.UserRepo,
		ledger:       newRefreshTokenLedger(params.TxManager, params.RefreshTokenRepo, params.Clock),
		hasher:       params.Hasher,
		tokenService: params.TokenService,
		limiter:      params.RateLimiter,
		notifier:     params.Notifier,
		abuseChecker: params.AbuseChecker,
		clock:        params.Clock,
		logger:       params.Logger,
		tokenCfg:     *params.Config.Token,
		rateCfg:      *params.Config.RateLimit,
	}
	if params.Config.Auth != nil {
		srv.maxActiveSessions = params.Config.Auth.MaxActiveSessions
	}
	if params.Config.PasswordReset != nil {
		srv.minResponseTime = params.Config.PasswordReset.MinResponseTime
	}

	srv.dummyHash = sync.OnceValue(func() string {
		hash, err := params.Hasher.Hash(dummyPassword)
		if err != nil {
			params.Logger.Error("Failed to prepare dummy password hash", slog.Any("error", err))

			return ""
		}

		return hash
	})

	return srv
}

// log returns a request-scoped logger if available, otherwise falls back to the service's logger.
func (srv *authService) log(ctx context.Context) *slog.Logger {
	return deliverycontext.GetLoggerOrDefault(ctx, srv.logger)
}

// Register creates an unverified account and sends the verification email when an address was given.
func (srv *authService) Register(ctx context.Context, input *usecase.RegisterInput) (*usecase.RegisterOutput, error) {
	handle := strings.TrimSpace(input.Handle)
	email := normalizeEmail(input.Email)
	nickname := strings.TrimSpace(input.Nickname)
	if handle == "" || nickname == "" {
		return nil, domainerrors.ErrValidationFailed.WithDetails("handle and nickname are required")
	}

	srv.log(ctx).Debug("Starting registration", slog.String("handle", handle), slog.String("email", util.MaskEmail(email)))

	if err := srv.ensureNoConflict(ctx, srv.userRepo, handle, email, nickname); err != nil {
		return nil, err
	}

	if err := srv.hasher.ValidatePasswordStrength(input.Password); err != nil {
		return nil, err
	}

	passwordHash, err := srv.hasher.Hash(input.Password)
	if err != nil {
		srv.log(ctx).Error("Failed to hash password during registration", slog.Any("error", err))

		return nil, errors.Wrap(domainerrors.ErrPasswordHashFailed, err.Error())
	}

	// The id is assigned by the store, so the first token carries a placeholder
	// subject and is replaced once the row exists.
	placeholder, _, err := srv.issueVerificationToken(uuid.Nil, email, nickname)
	if err != nil {
		return nil, err
	}

	var user *entity.User
	var verificationToken string
	err = srv.txManager.Execute(ctx, func(repoFactory repository.RepositoryFactory) error {
		userRepo := repoFactory.UserRepo()

		if err := srv.ensureNoConflict(ctx, userRepo, handle, email, nickname); err != nil {
			return err
		}

		user = &entity.User{
			Handle:            handle,
			Email:             email,
			Nickname:          nickname,
			PasswordHash:      passwordHash,
			VerificationToken: placeholder,
		}
		if err := userRepo.Create(ctx, user); err != nil {
			if errors.Is(err, repository.ErrUserAlreadyExists) {
				return errors.Wrap(domainerrors.ErrConflict, err.Error())
			}

			return errors.Wrap(err, "failed to create user")
		}

		account := &entity.Account{
			UserID:            user.ID,
			Type:              entity.AccountTypeCredentials,
			Provider:          entity.ProviderTypeEmail,
			ProviderAccountID: user.ID.String(),
		}
		if err := repoFactory.AccountRepo().Create(ctx, account); err != nil {
			return errors.Wrap(err, "failed to create local account")
		}

		token, _, err := srv.issueVerificationToken(user.ID, email, nickname)
		if err != nil {
			return err
		}
		user.VerificationToken = token
		if err := userRepo.Update(ctx, user); err != nil {
			return errors.Wrap(err, "failed to store verification token")
		}
		verificationToken = token

		return nil
	})
	if err != nil {
		if isClientError(err) {
			return nil, err
		}
		srv.log(ctx).Error("Failed to execute registration transaction", slog.String("handle", handle), slog.Any("error", err))

		return nil, errors.Wrap(err, "failed to execute registration transaction")
	}

	if user.HasEmail() {
		srv.notifier.SendVerificationEmail(ctx, user.Email, user.Nickname, verificationToken)
	}

	srv.log(ctx).Info("User registered", slog.Any("userID", user.ID))

	return &usecase.RegisterOutput{
		User:                  user.Public(),
		VerificationEmailSent: user.HasEmail(),
	}, nil
}

// ensureNoConflict runs the combined handle/email/nickname lookup.
func (srv *authService) ensureNoConflict(ctx context.Context, userRepo repository.UserRepository, handle, email, nickname string) error {
	_, field, err := userRepo.FindConflict(ctx, handle, email, nickname)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "failed to check for existing users")
	}

	srv.log(ctx).Info("Registration conflict", slog.String("field", string(field)))

	return domainerrors.ErrConflict.WithDetails(string(field))
}

// Login authenticates handle/password and starts a new session.
func (srv *authService) Login(ctx context.Context, input *usecase.LoginInput) (*usecase.AuthOutput, error) {
	handle := strings.TrimSpace(input.Handle)

	if decision := srv.checkRate(ctx, "login:ip:"+input.IPAddress, srv.rateCfg.Login); decision != nil && !decision.Allowed {
		srv.log(ctx).Warn("Login rate limited", slog.String("ip", input.IPAddress))

		return nil, domainerrors.ErrRateLimited.WithDetails(retryAfterDetails(decision, srv.clock.Now()))
	}

	user, err := srv.userRepo.FindByHandle(ctx, handle)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			srv.hasher.Check(input.Password, srv.dummyHash())
			srv.log(ctx).Info("Login failed", slog.String("handle", handle), slog.String("reason", "unknown_handle"))

			return nil, errors.Wrap(domainerrors.ErrInvalidCredentials, "login failed")
		}

		return nil, errors.Wrap(err, "failed to load user for login")
	}

	// Password check stays outside any transaction (bcrypt is CPU-bound).
	if !srv.hasher.Check(input.Password, user.PasswordHash) {
		srv.log(ctx).Info("Login failed", slog.String("handle", handle), slog.String("reason", "password_mismatch"))

		return nil, errors.Wrap(domainerrors.ErrInvalidCredentials, "login failed")
	}

	pair, err := srv.issuePair(user, srv.tokenCfg.RefreshTTL)
	if err != nil {
		return nil, err
	}

	if err := srv.recordLoginGrant(ctx, user.ID, pair.refreshHash, pair.refresh.ExpiresAt); err != nil {
		if errors.Is(err, domainerrors.ErrSessionLimitExceeded) {
			srv.log(ctx).Warn("Login rejected by session limit", slog.Any("userID", user.ID))

			return nil, err
		}
		// The access token is still good; the unknown refresh token will just fail later.
		srv.log(ctx).Error("Failed to record refresh grant at login", slog.Any("userID", user.ID), slog.Any("error", err))
	}

	srv.log(ctx).Debug("User logged in", slog.Any("userID", user.ID))

	return &usecase.AuthOutput{
		AccessToken:          pair.accessToken,
		RefreshToken:         pair.refreshToken,
		AccessTokenExpiresAt: pair.access.ExpiresAt,
		RefreshTokenMaxAgeMs: srv.tokenService.TimeUntilExpiration(pair.refresh).Milliseconds(),
		User:                 user.Public(),
	}, nil
}

// recordLoginGrant records the grant, enforcing the session cap under the user's row lock when one is set.
func (srv *authService) recordLoginGrant(ctx context.Context, userID uuid.UUID, identifierHash string, expiresAt time.Time) error {
	if srv.maxActiveSessions <= 0 {
		return srv.ledger.Record(ctx, userID, identifierHash, expiresAt)
	}

	return srv.txManager.Execute(ctx, func(repoFactory repository.RepositoryFactory) error {
		if err := repoFactory.UserRepo().AcquireSessionMutex(ctx, userID); err != nil {
			return errors.Wrap(err, "failed to acquire session lock")
		}

		refreshRepo := repoFactory.RefreshTokenRepo()
		active, err := refreshRepo.CountActiveSessionsByUserID(ctx, userID, srv.clock.Now())
		if err != nil {
			return errors.Wrap(err, "failed to count active sessions")
		}
		if active >= srv.maxActiveSessions {
			return domainerrors.ErrSessionLimitExceeded
		}

		return srv.ledger.record(ctx, refreshRepo, userID, identifierHash, expiresAt)
	})
}

// CheckDuplicate reports whether a handle, email or nickname is still free.
func (srv *authService) CheckDuplicate(ctx context.Context, input *usecase.CheckDuplicateInput) (*usecase.CheckDuplicateOutput, error) {
	field := repository.UniqueField(strings.ToLower(strings.TrimSpace(input.Field)))
	if !field.IsValid() {
		return nil, domainerrors.ErrValidationFailed.WithDetails("field must be one of handle, email, nickname")
	}

	value := strings.TrimSpace(input.Value)
	if field == repository.UniqueFieldEmail {
		value = normalizeEmail(value)
	}
	if value == "" {
		return nil, domainerrors.ErrValidationFailed.WithDetails("value is required")
	}

	exists, err := srv.userRepo.ExistsByField(ctx, field, value)
	if err != nil {
		return nil, errors.Wrap(err, "failed to check duplicate")
	}

	return &usecase.CheckDuplicateOutput{Field: string(field), Available: !exists}, nil
}

// GetCurrentUser returns the public projection of userID.
func (srv *authService) GetCurrentUser(ctx context.Context, userID uuid.UUID) (*entity.PublicUser, error) {
	user, err := srv.userRepo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, errors.Wrap(domainerrors.ErrNotFound, "user not found")
		}

		return nil, errors.Wrap(err, "failed to load user")
	}

	return user.Public(), nil
}

func (srv *authService) ExtractUserIDFromToken(token string) (uuid.UUID, bool) {
	return srv.tokenService.ExtractUserID(token)
}

func (srv *authService) ValidateTokenType(token string, kind service.TokenKind) bool {
	return srv.tokenService.ValidateKind(token, kind)
}

// tokenPair is a freshly issued access/refresh pair.
type tokenPair struct {
	accessToken  string
	refreshToken string
	access       *service.TokenPayload
	refresh      *service.TokenPayload
	refreshHash  string
}

// issuePair mints an access token and a refresh token living refreshTTL.
func (srv *authService) issuePair(user *entity.User, refreshTTL time.Duration) (*tokenPair, error) {
	access := &service.TokenPayload{
		UserID:   user.ID,
		Email:    user.Email,
		Nickname: user.Nickname,
		Kind:     service.TokenKindAccess,
	}
	accessToken, err := srv.tokenService.Issue(access, srv.tokenCfg.AccessTTL)
	if err != nil {
		return nil, errors.Wrap(domainerrors.ErrTokenIssueFailed, err.Error())
	}

	refresh := &service.TokenPayload{
		UserID:   user.ID,
		Email:    user.Email,
		Nickname: user.Nickname,
		Kind:     service.TokenKindRefresh,
	}
	refreshToken, err := srv.tokenService.Issue(refresh, refreshTTL)
	if err != nil {
		return nil, errors.Wrap(domainerrors.ErrTokenIssueFailed, err.Error())
	}

	return &tokenPair{
		accessToken:  accessToken,
		refreshToken: refreshToken,
		access:       access,
		refresh:      refresh,
		refreshHash:  srv.tokenService.HashIdentifier(refresh.JTI),
	}, nil
}

// checkRate consults the limiter. Limiter failures allow the request.
func (srv *authService) checkRate(ctx context.Context, key string, rule config.RateLimitRule) *service.RateDecision {
	if srv.limiter == nil || rule.Max <= 0 {
		return nil
	}

	decision, err := srv.limiter.Check(ctx, key, rule.Window, rule.Max)
	if err != nil {
		srv.log(ctx).Warn("Rate limiter unavailable, allowing request", slog.String("key", rateKeyPrefix(key)), slog.Any("error", err))

		return nil
	}

	return decision
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// rateKeyPrefix drops the identifying suffix of a limiter key before it is logged.
func rateKeyPrefix(key string) string {
	if idx := strings.LastIndex(key, ":"); idx >= 0 {
		return key[:idx]
	}

	return key
}

func retryAfterDetails(decision *service.RateDecision, now time.Time) string {
	return "retry after " + util.FormatDuration(decision.RetryAfter(now))
}

// isClientError reports whether err carries a 4xx application error that should reach the caller as is.
func isClientError(err error) bool {
	var appErr domainerrors.AppError
	if !errors.As(err, &appErr) {
		return false
	}

	return appErr.HTTPCode() >= 400 && appErr.HTTPCode() < 500
}
