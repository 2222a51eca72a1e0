// Package scheduler runs periodic maintenance of the refresh-token ledger.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"readzone/config"
	"readzone/internal/delivery"
	"readzone/internal/usecase"

	"go.uber.org/fx"
)

// TokenCleanupParams holds dependencies for the cleanup scheduler, injected by Fx.
type TokenCleanupParams struct {
	fx.In

	Lc        fx.Lifecycle
	Cfg       *config.Config
	Logger    *slog.Logger
	SessionUC usecase.SessionUsecase
}

type tokenCleanup struct {
	sessionUC usecase.SessionUsecase
	cfg       config.TokenCleanupConfig
	logger    *slog.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// NewTokenCleanup builds the scheduler that purges expired and revoked refresh grants.
func NewTokenCleanup(params TokenCleanupParams) delivery.Delivery {
	s := newTokenCleanup(params.SessionUC, *params.Cfg.TokenCleanup, params.Logger)

	params.Lc.Append(fx.Hook{
		OnStop: s.stop,
	})

	return s
}

func newTokenCleanup(sessionUC usecase.SessionUsecase, cfg config.TokenCleanupConfig, logger *slog.Logger) *tokenCleanup {
	return &tokenCleanup{
		sessionUC: sessionUC,
		cfg:       cfg,
		logger:    logger,
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Serve blocks until ctx is done or the scheduler is stopped.
func (s *tokenCleanup) Serve(ctx context.Context) error {
	defer close(s.done)

	if !s.cfg.Enabled {
		s.logger.Info("Token cleanup scheduler disabled")

		return nil
	}

	s.logger.Info("Starting token cleanup scheduler",
		slog.Duration("expiredInterval", s.cfg.ExpiredInterval),
		slog.Duration("revokedInterval", s.cfg.RevokedInterval),
	)

	expiredTicker := time.NewTicker(s.cfg.ExpiredInterval)
	defer expiredTicker.Stop()
	revokedTicker := time.NewTicker(s.cfg.RevokedInterval)
	defer revokedTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.stopCh:
			return nil
		case <-expiredTicker.C:
			s.cleanupExpired(ctx)
		case <-revokedTicker.C:
			s.cleanupRevoked(ctx)
		}
	}
}

func (s *tokenCleanup) cleanupExpired(ctx context.Context) {
	deleted, err := s.sessionUC.CleanupExpiredTokens(ctx, s.cfg.ExpiredRetention)
	if err != nil {
		s.logger.Error("Expired token cleanup failed", slog.Any("error", err))

		return
	}

	s.logger.Info("Expired token cleanup finished", slog.Int("deleted", deleted))
	s.logStatistics(ctx)
}

func (s *tokenCleanup) cleanupRevoked(ctx context.Context) {
	deleted, err := s.sessionUC.CleanupRevokedTokens(ctx, s.cfg.RevokedRetention)
	if err != nil {
		s.logger.Error("Revoked token cleanup failed", slog.Any("error", err))

		return
	}

	s.logger.Info("Revoked token cleanup finished", slog.Int("deleted", deleted))
	s.logStatistics(ctx)
}

func (s *tokenCleanup) logStatistics(ctx context.Context) {
	stats, err := s.sessionUC.GetStatistics(ctx)
	if err != nil {
		s.logger.Warn("Failed to load token statistics", slog.Any("error", err))

		return
	}

	s.logger.Info("Refresh token statistics",
		slog.Int64("total", stats.Total),
		slog.Int64("active", stats.Active),
		slog.Int64("revoked", stats.Revoked),
		slog.Int64("expired", stats.Expired),
	)
}

func (s *tokenCleanup) stop(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stopCh) })

	select {
	case <-s.done:
	case <-ctx.Done():
	}

	return nil
}
