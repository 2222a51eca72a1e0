package config

import (
	"testing"
	"time"

	"readzone/internal/domain/constants"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyDefaults_FillsMissingSections(t *testing.T) {
	cfg := &Config{}
	cfg.SecretKey.Access = "access-secret"
	cfg.SecretKey.Refresh = "refresh-secret"

	ApplyDefaults(cfg)

	assert.Equal(t, defaultMaxRequestBodySize, cfg.HTTP.MaxRequestBodySize)
	assert.Equal(t, constants.StorageDriverPostgres, cfg.Storage.Driver)
	assert.Equal(t, "access-secret", cfg.SecretKey.EmailVerification)
	assert.Equal(t, "access-secret", cfg.SecretKey.PasswordReset)

	require.NotNil(t, cfg.Token)
	assert.Equal(t, "readzone-api", cfg.Token.Issuer)
	assert.Equal(t, "readzone-client", cfg.Token.Audience)
	assert.Equal(t, 15*time.Minute, cfg.Token.AccessTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.Token.RefreshTTL)
	assert.Equal(t, 24*time.Hour, cfg.Token.EmailVerificationTTL)
	assert.Equal(t, time.Hour, cfg.Token.PasswordResetTTL)

	assert.Equal(t, defaultBcryptCost, cfg.Auth.BcryptCost)
	assert.Zero(t, cfg.Auth.MaxActiveSessions)

	require.NotNil(t, cfg.PasswordStrength)
	assert.Equal(t, 8, cfg.PasswordStrength.MinLength)
	assert.True(t, cfg.PasswordStrength.RequireLetter)
	assert.True(t, cfg.PasswordStrength.RequireNumbers)

	assert.Equal(t, constants.RateLimitBackendMemory, cfg.RateLimit.Backend)
	assert.Equal(t, RateLimitRule{Window: time.Minute, Max: 1}, cfg.RateLimit.VerificationEmail)
	assert.Equal(t, RateLimitRule{Window: time.Minute, Max: 5}, cfg.RateLimit.VerificationIP)

	assert.Equal(t, "forgot_password", cfg.Captcha.ExpectedAction)
	assert.InDelta(t, 0.5, cfg.Captcha.MinScore, 1e-9)
	assert.Equal(t, 5*time.Second, cfg.Captcha.Timeout)

	assert.Equal(t, 48*time.Hour, cfg.TokenCleanup.RevokedRetention)
	assert.Equal(t, 7*24*time.Hour, cfg.TokenCleanup.ExpiredRetention)

	assert.Equal(t, constants.PubSubProviderNoop, cfg.PubSub.Provider)
	assert.Equal(t, defaultWorkerPort, cfg.PubSub.WorkerPort)
}

func TestApplyDefaults_KeepsExplicitValues(t *testing.T) {
	cfg := &Config{
		Token: &TokenConfig{AccessTTL: time.Minute},
		RateLimit: &RateLimitConfig{
			Backend:           constants.RateLimitBackendRedis,
			VerificationEmail: RateLimitRule{Window: 5 * time.Minute, Max: 2},
		},
		Auth: &AuthConfig{BcryptCost: 4, MaxActiveSessions: 3},
	}
	cfg.SecretKey.Access = "a"
	cfg.SecretKey.PasswordReset = "reset-only"

	ApplyDefaults(cfg)

	assert.Equal(t, time.Minute, cfg.Token.AccessTTL)
	assert.Equal(t, constants.RateLimitBackendRedis, cfg.RateLimit.Backend)
	assert.Equal(t, RateLimitRule{Window: 5 * time.Minute, Max: 2}, cfg.RateLimit.VerificationEmail)
	assert.Equal(t, 4, cfg.Auth.BcryptCost)
	assert.Equal(t, 3, cfg.Auth.MaxActiveSessions)
	assert.Equal(t, "reset-only", cfg.SecretKey.PasswordReset)
	assert.Equal(t, "a", cfg.SecretKey.EmailVerification)
}
