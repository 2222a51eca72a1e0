package impl

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"readzone/internal/domain/entity"
	domainerrors "readzone/internal/domain/errors"
	"readzone/internal/domain/repository"
	"readzone/internal/domain/service"
	"readzone/internal/usecase"
	"readzone/internal/util"

	"github.com/pkg/errors"
)

const passwordResetRequestMessage = "If an account exists for this address, a password reset link has been sent."

// RequestPasswordReset answers identically whether or not the address belongs
// to an account, and whether or not a reset email was actually sent.
func (srv *authService) RequestPasswordReset(ctx context.Context, input *usecase.PasswordResetRequestInput) (*usecase.PasswordResetRequestOutput, error) {
	started := time.Now()

	submitted := strings.TrimSpace(input.Email)
	srv.processPasswordResetRequest(ctx, normalizeEmail(submitted), input)
	srv.padResponse(ctx, started)

	rule := srv.rateCfg.PasswordResetEmail

	return &usecase.PasswordResetRequestOutput{
		Message:     passwordResetRequestMessage,
		MaskedEmail: util.MaskEmail(submitted),
		RateLimit: usecase.RateLimitDescriptor{
			WindowSeconds: int64(rule.Window / time.Second),
			MaxRequests:   rule.Max,
		},
	}, nil
}

// processPasswordResetRequest issues and mails a reset token when every gate passes.
// Nothing it does is reported to the caller.
func (srv *authService) processPasswordResetRequest(ctx context.Context, email string, input *usecase.PasswordResetRequestInput) {
	if email == "" {
		return
	}

	if srv.abuseChecker != nil && srv.abuseChecker.Enabled() {
		result, err := srv.abuseChecker.Verify(ctx, input.CaptchaToken, input.IPAddress)
		if err != nil {
			srv.log(ctx).Warn("Abuse check unavailable, skipping reset", slog.Any("error", err))

			return
		}
		if !result.Valid {
			srv.log(ctx).Info("Abuse check rejected reset request",
				slog.Float64("score", result.Score),
				slog.String("action", result.Action),
			)

			return
		}
	}

	if decision := srv.checkRate(ctx, "password-reset:email:"+email, srv.rateCfg.PasswordResetEmail); decision != nil && !decision.Allowed {
		srv.log(ctx).Info("Password reset rate limited", slog.String("scope", "email"))

		return
	}
	if input.IPAddress != "" {
		if decision := srv.checkRate(ctx, "password-reset:ip:"+input.IPAddress, srv.rateCfg.PasswordResetIP); decision != nil && !decision.Allowed {
			srv.log(ctx).Info("Password reset rate limited", slog.String("scope", "ip"))

			return
		}
	}

	user, err := srv.userRepo.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, repository.ErrUserNotFound) {
			srv.log(ctx).Error("Failed to look up user for password reset", slog.Any("error", err))
		}

		return
	}

	payload := &service.TokenPayload{
		UserID:   user.ID,
		Email:    user.Email,
		Nickname: user.Nickname,
		Kind:     service.TokenKindPasswordReset,
	}
	token, err := srv.tokenService.Issue(payload, srv.tokenCfg.PasswordResetTTL)
	if err != nil {
		srv.log(ctx).Error("Failed to issue password reset token", slog.Any("userID", user.ID), slog.Any("error", err))

		return
	}

	if err := srv.userRepo.SetResetToken(ctx, user.ID, token, payload.ExpiresAt); err != nil {
		srv.log(ctx).Error("Failed to store password reset token", slog.Any("userID", user.ID), slog.Any("error", err))

		return
	}

	srv.notifier.SendPasswordResetEmail(ctx, user.Email, user.Nickname, token)
	srv.log(ctx).Info("Password reset token issued", slog.Any("userID", user.ID))
}

// padResponse sleeps until minResponseTime has elapsed since started.
func (srv *authService) padResponse(ctx context.Context, started time.Time) {
	wait := srv.minResponseTime - time.Since(started)
	if wait <= 0 {
		return
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// CheckResetToken reports whether a reset link can still be used.
func (srv *authService) CheckResetToken(ctx context.Context, token string) (*usecase.ResetTokenStatusOutput, error) {
	token = strings.TrimSpace(token)

	payload, err := srv.tokenService.VerifyKind(token, service.TokenKindPasswordReset)
	if err != nil {
		if errors.Is(err, service.ErrTokenExpired) {
			return resetTokenFailure(usecase.ResetTokenStatusExpired), nil
		}

		return resetTokenFailure(usecase.ResetTokenStatusInvalid), nil
	}

	user, err := srv.userRepo.FindByIDAndResetToken(ctx, payload.UserID, token)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return resetTokenFailure(usecase.ResetTokenStatusUsed), nil
		}

		return nil, errors.Wrap(err, "failed to look up reset token")
	}

	if user.ResetTokenExpired(srv.clock.Now()) {
		return resetTokenFailure(usecase.ResetTokenStatusExpired), nil
	}

	issuedAt := payload.IssuedAt
	expiresAt := *user.ResetTokenExpiresAt

	return &usecase.ResetTokenStatusOutput{
		Status:        usecase.ResetTokenStatusValid,
		CanRequestNew: false,
		MaskedEmail:   util.MaskEmail(user.Email),
		IssuedAt:      &issuedAt,
		ExpiresAt:     &expiresAt,
	}, nil
}

func resetTokenFailure(status usecase.ResetTokenStatus) *usecase.ResetTokenStatusOutput {
	return &usecase.ResetTokenStatusOutput{Status: status, CanRequestNew: true}
}

// ResetPassword consumes a reset token, replaces the password, logs the user
// out everywhere and starts one new session.
func (srv *authService) ResetPassword(ctx context.Context, input *usecase.ResetPasswordInput) (*usecase.ResetPasswordOutput, error) {
	if input.NewPassword != input.ConfirmPassword {
		return nil, domainerrors.ErrPasswordConfirmationMismatch
	}

	if err := srv.hasher.ValidatePasswordStrength(input.NewPassword); err != nil {
		return nil, err
	}

	token := strings.TrimSpace(input.Token)
	payload, err := srv.tokenService.VerifyKind(token, service.TokenKindPasswordReset)
	if err != nil {
		srv.log(ctx).Info("Password reset rejected", slog.String("reason", "invalid_token"), slog.Any("error", err))

		return nil, domainerrors.ErrUnauthorized
	}

	passwordHash, err := srv.hasher.Hash(input.NewPassword)
	if err != nil {
		srv.log(ctx).Error("Failed to hash password during reset", slog.Any("error", err))

		return nil, errors.Wrap(domainerrors.ErrPasswordHashFailed, err.Error())
	}

	var (
		user    *entity.User
		pair    *tokenPair
		revoked int
	)
	err = srv.txManager.Execute(ctx, func(repoFactory repository.RepositoryFactory) error {
		userRepo := repoFactory.UserRepo()

		if err := userRepo.AcquireSessionMutex(ctx, payload.UserID); err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				return domainerrors.ErrUnauthorized
			}

			return errors.Wrap(err, "failed to lock user")
		}

		var err error
		user, err = userRepo.FindByIDAndResetToken(ctx, payload.UserID, token)
		if err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				return domainerrors.ErrUnauthorized
			}

			return errors.Wrap(err, "failed to look up reset token")
		}
		if user.ResetTokenExpired(srv.clock.Now()) {
			return domainerrors.ErrUnauthorized
		}

		user.PasswordHash = passwordHash
		user.ResetToken = ""
		user.ResetTokenExpiresAt = nil
		if err := userRepo.Update(ctx, user); err != nil {
			return errors.Wrap(err, "failed to update password")
		}

		refreshRepo := repoFactory.RefreshTokenRepo()
		revoked, err = srv.ledger.revokeAll(ctx, refreshRepo, user.ID)
		if err != nil {
			return err
		}

		pair, err = srv.issuePair(user, srv.tokenCfg.RefreshTTL)
		if err != nil {
			return err
		}

		return srv.ledger.record(ctx, refreshRepo, user.ID, pair.refreshHash, pair.refresh.ExpiresAt)
	})
	if err != nil {
		if errors.Is(err, domainerrors.ErrUnauthorized) {
			srv.log(ctx).Info("Password reset rejected", slog.String("reason", "token_not_current"), slog.Any("userID", payload.UserID))

			return nil, domainerrors.ErrUnauthorized
		}
		srv.log(ctx).Error("Failed to execute password reset transaction", slog.Any("userID", payload.UserID), slog.Any("error", err))

		return nil, errors.Wrap(err, "failed to execute password reset transaction")
	}

	srv.log(ctx).Info("Password reset completed", slog.Any("userID", user.ID), slog.Int("revokedSessions", revoked))

	return &usecase.ResetPasswordOutput{
		AccessToken:          pair.accessToken,
		RefreshToken:         pair.refreshToken,
		AccessTokenExpiresAt: pair.access.ExpiresAt,
		RefreshTokenMaxAgeMs: srv.tokenService.TimeUntilExpiration(pair.refresh).Milliseconds(),
		RevokedSessions:      revoked,
		User:                 user.Public(),
	}, nil
}
