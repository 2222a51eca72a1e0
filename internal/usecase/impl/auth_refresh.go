package impl

import (
	"context"
	"log/slog"
	"strings"

	domainerrors "readzone/internal/domain/errors"
	"readzone/internal/domain/repository"
	"readzone/internal/domain/service"
	"readzone/internal/usecase"

	"github.com/pkg/errors"
)

// refreshFailure is why a refresh was rejected. The reason is only logged;
// callers always see ErrUnauthorized.
type refreshFailure struct {
	reason string
	err    error
}

func rejectRefresh(reason string, err error) *refreshFailure {
	return &refreshFailure{reason: reason, err: err}
}

// Refresh exchanges a refresh token for a new pair and rotates its ledger grant.
func (srv *authService) Refresh(ctx context.Context, input *usecase.RefreshInput) (*usecase.RefreshOutput, error) {
	output, failure := srv.refresh(ctx, strings.TrimSpace(input.RefreshToken))
	if failure != nil {
		attrs := []any{slog.String("reason", failure.reason)}
		if failure.err != nil {
			attrs = append(attrs, slog.Any("error", failure.err))
		}
		srv.log(ctx).Warn("Refresh rejected", attrs...)

		return nil, domainerrors.ErrUnauthorized
	}

	return output, nil
}

func (srv *authService) refresh(ctx context.Context, token string) (*usecase.RefreshOutput, *refreshFailure) {
	payload, err := srv.tokenService.VerifyKind(token, service.TokenKindRefresh)
	if err != nil {
		if errors.Is(err, service.ErrTokenExpired) {
			return nil, rejectRefresh("expired_token", nil)
		}

		return nil, rejectRefresh("invalid_token", err)
	}

	remaining := srv.tokenService.TimeUntilExpiration(payload)
	if remaining <= 0 {
		return nil, rejectRefresh("expired_token", nil)
	}

	user, err := srv.userRepo.FindByID(ctx, payload.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, rejectRefresh("user_not_found", nil)
		}

		return nil, rejectRefresh("user_lookup_failed", err)
	}

	oldHash := srv.tokenService.HashIdentifier(payload.JTI)
	grant, err := srv.ledger.Lookup(ctx, oldHash)
	if err != nil {
		if errors.Is(err, repository.ErrRefreshTokenNotFound) {
			return nil, rejectRefresh("grant_not_found", nil)
		}

		return nil, rejectRefresh("grant_lookup_failed", err)
	}

	switch {
	case grant.UserID != user.ID:
		return nil, rejectRefresh("grant_owner_mismatch", nil)
	case grant.Revoked:
		return nil, rejectRefresh("grant_revoked", nil)
	case !srv.clock.Now().Before(grant.ExpiresAt):
		return nil, rejectRefresh("grant_expired", nil)
	}

	// The new grant inherits the remaining lifetime, so a chain of refreshes
	// never outlives the login that started it.
	pair, err := srv.issuePair(user, remaining)
	if err != nil {
		return nil, rejectRefresh("issue_failed", err)
	}

	if err := srv.ledger.Rotate(ctx, oldHash, user.ID, pair.refreshHash, pair.refresh.ExpiresAt); err != nil {
		if errors.Is(err, repository.ErrRefreshTokenRevoked) {
			return nil, rejectRefresh("rotation_conflict", nil)
		}

		return nil, rejectRefresh("rotate_failed", err)
	}

	srv.log(ctx).Debug("Refresh token rotated", slog.Any("userID", user.ID))

	return &usecase.RefreshOutput{
		AccessToken:          pair.accessToken,
		RefreshToken:         pair.refreshToken,
		AccessTokenExpiresAt: pair.access.ExpiresAt,
		RefreshTokenMaxAgeMs: remaining.Milliseconds(),
	}, nil
}

// Logout revokes the grant behind a refresh token. It never fails: an
// unusable token has nothing left to revoke.
func (srv *authService) Logout(ctx context.Context, input *usecase.LogoutInput) error {
	payload, err := srv.tokenService.VerifyKind(strings.TrimSpace(input.RefreshToken), service.TokenKindRefresh)
	if err != nil {
		srv.log(ctx).Debug("Logout with unusable refresh token", slog.Any("error", err))

		return nil
	}

	if err := srv.ledger.Revoke(ctx, srv.tokenService.HashIdentifier(payload.JTI)); err != nil {
		if errors.Is(err, repository.ErrRefreshTokenNotFound) {
			srv.log(ctx).Debug("Logout for unknown refresh grant", slog.Any("userID", payload.UserID))

			return nil
		}
		srv.log(ctx).Warn("Failed to revoke refresh grant on logout", slog.Any("userID", payload.UserID), slog.Any("error", err))

		return nil
	}

	srv.log(ctx).Debug("User logged out", slog.Any("userID", payload.UserID))

	return nil
}
