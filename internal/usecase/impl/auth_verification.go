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

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// issueVerificationToken mints an email-verification token for userID.
func (srv *authService) issueVerificationToken(userID uuid.UUID, email, nickname string) (string, *service.TokenPayload, error) {
	payload := &service.TokenPayload{
		UserID:   userID,
		Email:    email,
		Nickname: nickname,
		Kind:     service.TokenKindEmailVerification,
	}
	token, err := srv.tokenService.Issue(payload, srv.tokenCfg.EmailVerificationTTL)
	if err != nil {
		return "", nil, errors.Wrap(domainerrors.ErrTokenIssueFailed, err.Error())
	}

	return token, payload, nil
}

// VerifyEmail consumes the verification token currently stored on a user.
func (srv *authService) VerifyEmail(ctx context.Context, token string) (*usecase.VerifyEmailOutput, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, domainerrors.ErrInvalidVerificationToken
	}

	payload, err := srv.tokenService.VerifyKind(token, service.TokenKindEmailVerification)
	if err != nil {
		srv.log(ctx).Info("Email verification rejected", slog.Any("error", err))

		return nil, domainerrors.ErrInvalidVerificationToken
	}

	var user *entity.User
	err = srv.txManager.Execute(ctx, func(repoFactory repository.RepositoryFactory) error {
		userRepo := repoFactory.UserRepo()

		var err error
		user, err = userRepo.FindByVerificationToken(ctx, token)
		if err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				return domainerrors.ErrInvalidVerificationToken
			}

			return errors.Wrap(err, "failed to look up verification token")
		}
		if user.ID != payload.UserID {
			return domainerrors.ErrInvalidVerificationToken
		}
		if user.IsVerified {
			return domainerrors.ErrAlreadyVerified
		}

		if err := userRepo.MarkVerified(ctx, user.ID, token); err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				return domainerrors.ErrInvalidVerificationToken
			}

			return errors.Wrap(err, "failed to mark user verified")
		}
		user.IsVerified = true
		user.VerificationToken = ""

		return nil
	})
	if err != nil {
		if isClientError(err) {
			return nil, err
		}

		return nil, errors.Wrap(err, "failed to execute email verification transaction")
	}

	srv.log(ctx).Info("Email verified", slog.Any("userID", user.ID))

	return &usecase.VerifyEmailOutput{User: user.Public()}, nil
}

// RequestEmailVerification mails a fresh verification link. Unknown addresses
// get the same "sent" answer as known ones.
func (srv *authService) RequestEmailVerification(ctx context.Context, input *usecase.EmailVerificationRequestInput) (*usecase.EmailVerificationRequestOutput, error) {
	email := normalizeEmail(input.Email)
	if email == "" {
		return nil, domainerrors.ErrValidationFailed.WithDetails("email is required")
	}

	masked := util.MaskEmail(email)
	sent := &usecase.EmailVerificationRequestOutput{
		Status:      usecase.VerificationRequestSent,
		MaskedEmail: masked,
		ExpiresIn:   util.FormatExpiresIn(srv.tokenCfg.EmailVerificationTTL),
	}

	if decision := srv.checkRate(ctx, "verification:email:"+email, srv.rateCfg.VerificationEmail); decision != nil && !decision.Allowed {
		return srv.verificationRateLimited(masked, decision), nil
	}
	if input.IPAddress != "" {
		if decision := srv.checkRate(ctx, "verification:ip:"+input.IPAddress, srv.rateCfg.VerificationIP); decision != nil && !decision.Allowed {
			return srv.verificationRateLimited(masked, decision), nil
		}
	}

	user, err := srv.userRepo.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, repository.ErrUserNotFound) {
			srv.log(ctx).Error("Failed to look up user for verification email", slog.Any("error", err))
		}

		return sent, nil
	}

	if user.IsVerified {
		return &usecase.EmailVerificationRequestOutput{
			Status:      usecase.VerificationRequestAlreadyVerified,
			MaskedEmail: masked,
		}, nil
	}

	token, _, err := srv.issueVerificationToken(user.ID, user.Email, user.Nickname)
	if err != nil {
		srv.log(ctx).Error("Failed to issue verification token", slog.Any("userID", user.ID), slog.Any("error", err))

		return sent, nil
	}

	if err := srv.userRepo.SetVerificationToken(ctx, user.ID, token); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return &usecase.EmailVerificationRequestOutput{
				Status:      usecase.VerificationRequestAlreadyVerified,
				MaskedEmail: masked,
			}, nil
		}
		srv.log(ctx).Error("Failed to store verification token", slog.Any("userID", user.ID), slog.Any("error", err))

		return sent, nil
	}

	srv.notifier.SendVerificationEmail(ctx, user.Email, user.Nickname, token)

	return sent, nil
}

func (srv *authService) verificationRateLimited(masked string, decision *service.RateDecision) *usecase.EmailVerificationRequestOutput {
	retryAfter := decision.RetryAfter(srv.clock.Now())

	return &usecase.EmailVerificationRequestOutput{
		Status:            usecase.VerificationRequestRateLimited,
		MaskedEmail:       masked,
		RetryAfterSeconds: int64((retryAfter + time.Second - 1) / time.Second),
	}
}
