package config

import (
	"strings"
	"time"

	"readzone/internal/domain/constants"
)

const (
	defaultIssuer          = "readzone-api"
	defaultAudience        = "readzone-client"
	defaultCaptchaURL      = "https://www.google.com/recaptcha/api/siteverify"
	defaultCaptchaAction   = "forgot_password"
	defaultCaptchaMinScore = 0.5
	defaultBcryptCost      = 12
	defaultWorkerPort      = 4002
)

// ApplyDefaults fills every unset optional section so downstream code can
// dereference them without nil checks.
func ApplyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.HTTP.MaxRequestBodySize) == "" {
		cfg.HTTP.MaxRequestBodySize = defaultMaxRequestBodySize
	}

	if cfg.Storage == nil {
		cfg.Storage = &StorageConfig{}
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = constants.StorageDriverPostgres
	}

	if cfg.SecretKey.EmailVerification == "" {
		cfg.SecretKey.EmailVerification = cfg.SecretKey.Access
	}
	if cfg.SecretKey.PasswordReset == "" {
		cfg.SecretKey.PasswordReset = cfg.SecretKey.Access
	}

	if cfg.Token == nil {
		cfg.Token = &TokenConfig{}
	}
	defaultString(&cfg.Token.Issuer, defaultIssuer)
	defaultString(&cfg.Token.Audience, defaultAudience)
	defaultDuration(&cfg.Token.AccessTTL, 15*time.Minute)
	defaultDuration(&cfg.Token.RefreshTTL, 7*24*time.Hour)
	defaultDuration(&cfg.Token.EmailVerificationTTL, 24*time.Hour)
	defaultDuration(&cfg.Token.PasswordResetTTL, time.Hour)

	if cfg.Auth == nil {
		cfg.Auth = &AuthConfig{}
	}
	if cfg.Auth.BcryptCost == 0 {
		cfg.Auth.BcryptCost = defaultBcryptCost
	}

	if cfg.PasswordStrength == nil {
		cfg.PasswordStrength = &PasswordStrengthConfig{
			MinLength:      8,
			MaxLength:      72,
			RequireLetter:  true,
			RequireNumbers: true,
		}
	}

	if cfg.RateLimit == nil {
		cfg.RateLimit = &RateLimitConfig{}
	}
	defaultString(&cfg.RateLimit.Backend, constants.RateLimitBackendMemory)
	defaultRule(&cfg.RateLimit.VerificationEmail, time.Minute, 1)
	defaultRule(&cfg.RateLimit.VerificationIP, time.Minute, 5)
	defaultRule(&cfg.RateLimit.PasswordResetEmail, 15*time.Minute, 3)
	defaultRule(&cfg.RateLimit.PasswordResetIP, 15*time.Minute, 10)
	defaultRule(&cfg.RateLimit.Login, time.Minute, 20)

	if cfg.Captcha == nil {
		cfg.Captcha = &CaptchaConfig{}
	}
	defaultString(&cfg.Captcha.VerifyURL, defaultCaptchaURL)
	defaultString(&cfg.Captcha.ExpectedAction, defaultCaptchaAction)
	defaultDuration(&cfg.Captcha.Timeout, 5*time.Second)
	if cfg.Captcha.MinScore == 0 {
		cfg.Captcha.MinScore = defaultCaptchaMinScore
	}

	if cfg.PasswordReset == nil {
		cfg.PasswordReset = &PasswordResetConfig{}
	}

	if cfg.Mail == nil {
		cfg.Mail = &MailConfig{}
	}
	defaultString(&cfg.Mail.VerifyPath, "/verify-email")
	defaultString(&cfg.Mail.ResetPath, "/reset-password")
	defaultDuration(&cfg.Mail.SendTimeout, 10*time.Second)

	if cfg.PubSub == nil {
		cfg.PubSub = &PubSubConfig{}
	}
	defaultString(&cfg.PubSub.Provider, constants.PubSubProviderNoop)
	if cfg.PubSub.WorkerPort == 0 {
		cfg.PubSub.WorkerPort = defaultWorkerPort
	}

	if cfg.TokenCleanup == nil {
		cfg.TokenCleanup = &TokenCleanupConfig{}
	}
	defaultDuration(&cfg.TokenCleanup.ExpiredInterval, 24*time.Hour)
	defaultDuration(&cfg.TokenCleanup.ExpiredRetention, 7*24*time.Hour)
	defaultDuration(&cfg.TokenCleanup.RevokedInterval, 6*time.Hour)
	defaultDuration(&cfg.TokenCleanup.RevokedRetention, 48*time.Hour)
}

func defaultString(v *string, def string) {
	if strings.TrimSpace(*v) == "" {
		*v = def
	}
}

func defaultDuration(v *time.Duration, def time.Duration) {
	if *v <= 0 {
		*v = def
	}
}

func defaultRule(rule *RateLimitRule, window time.Duration, maxCount int) {
	defaultDuration(&rule.Window, window)
	if rule.Max <= 0 {
		rule.Max = maxCount
	}
}
