package ratelimit

import (
	"context"
	"log/slog"

	"readzone/config"
	"readzone/internal/domain/constants"
	"readzone/internal/domain/lifecycle"
	"readzone/internal/domain/service"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

// Params holds dependencies for the RateLimiter, injected by Fx
type Params struct {
	fx.In

	Lc     fx.Lifecycle
	Config *config.Config
	Clock  service.Clock
	Logger *slog.Logger
}

// New creates the RateLimiter selected by rateLimit.backend.
func New(params Params) (service.RateLimiter, error) {
	cfg := params.Config.RateLimit
	if cfg == nil || cfg.Backend == "" || cfg.Backend == constants.RateLimitBackendMemory {
		params.Logger.Info("Using in-memory rate limiter")

		return NewMemoryLimiter(params.Clock), nil
	}

	if cfg.Backend != constants.RateLimitBackendRedis {
		return nil, errors.Errorf("unknown rate limit backend: %s", cfg.Backend)
	}
	if cfg.Redis.Addr == "" {
		return nil, errors.New("redis address is required for redis rate limit backend")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	params.Lc.Append(fx.Hook{
		OnStart: func(startCtx context.Context) error {
			ctx, cancel := context.WithTimeout(startCtx, lifecycle.DefaultTimeout)
			defer cancel()

			if err := client.Ping(ctx).Err(); err != nil {
				return errors.Wrap(err, "failed to ping redis")
			}
			params.Logger.Info("Using redis rate limiter", slog.String("addr", cfg.Redis.Addr))

			return nil
		},
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})

	return NewRedisLimiter(client, params.Clock), nil
}
