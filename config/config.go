package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
	"github.com/slighter12/go-lib/database/postgres"
)

const (
	defaultPath               = "."
	defaultMaxRequestBodySize = "100KB"
)

type Config struct {
	Env struct {
		Env         string `json:"env" yaml:"env"`
		ServiceName string `json:"serviceName" yaml:"serviceName"`
		Debug       bool   `json:"debug" yaml:"debug"`
		Log         Log    `json:"log" yaml:"log"`
	} `json:"env" yaml:"env"`

	HTTP struct {
		Port               int    `json:"port" yaml:"port"`
		MaxRequestBodySize string `json:"maxRequestBodySize" yaml:"maxRequestBodySize"`
		Timeouts           struct {
			ReadTimeout       time.Duration `json:"readTimeout" yaml:"readTimeout"`
			ReadHeaderTimeout time.Duration `json:"readHeaderTimeout" yaml:"readHeaderTimeout"`
			WriteTimeout      time.Duration `json:"writeTimeout" yaml:"writeTimeout"`
			IdleTimeout       time.Duration `json:"idleTimeout" yaml:"idleTimeout"`
		} `json:"timeouts" yaml:"timeouts"`
		AllowOrigins []string `json:"allowOrigins" yaml:"allowOrigins"`
		SecureCookie bool     `json:"secureCookie" yaml:"secureCookie"`
		// TrustedProxies lists CIDRs or addresses whose X-Forwarded-For is honoured.
		TrustedProxies []string `json:"trustedProxies" yaml:"trustedProxies"`
	} `json:"http" yaml:"http"`

	Storage *StorageConfig `json:"storage" yaml:"storage"`

	Postgres *postgres.DBConn `json:"postgres" yaml:"postgres" mapstructure:"postgres"`

	SecretKey struct {
		Access            string `json:"access" yaml:"access"`
		Refresh           string `json:"refresh" yaml:"refresh"`
		EmailVerification string `json:"emailVerification" yaml:"emailVerification"`
		PasswordReset     string `json:"passwordReset" yaml:"passwordReset"`
	} `json:"secretKey" yaml:"secretKey"`

	Token *TokenConfig `json:"token" yaml:"token"`

	Auth *AuthConfig `json:"auth" yaml:"auth"`

	PasswordStrength *PasswordStrengthConfig `json:"passwordStrength" yaml:"passwordStrength"`

	// RateLimit configures request throttling for abuse-prone endpoints
	RateLimit *RateLimitConfig `json:"rateLimit" yaml:"rateLimit"`

	// Captcha configures the human-verification check on password reset requests
	Captcha *CaptchaConfig `json:"captcha" yaml:"captcha"`

	PasswordReset *PasswordResetConfig `json:"passwordReset" yaml:"passwordReset"`

	// Mail configures the links embedded in account emails
	Mail *MailConfig `json:"mail" yaml:"mail"`

	// PubSub configuration for event publishing
	PubSub *PubSubConfig `json:"pubsub" yaml:"pubsub"`

	// TokenCleanup configures the periodic ledger cleanup
	TokenCleanup *TokenCleanupConfig `json:"tokenCleanup" yaml:"tokenCleanup"`
}

// StorageConfig selects the persistence driver
type StorageConfig struct {
	// Driver is "postgres" or "memory"
	Driver string `json:"driver" yaml:"driver"`
	// AutoMigrate applies the embedded goose migrations on startup
	AutoMigrate bool `json:"autoMigrate" yaml:"autoMigrate"`
}

// TokenConfig defines token signing metadata and lifetimes
type TokenConfig struct {
	Issuer               string        `json:"issuer" yaml:"issuer"`
	Audience             string        `json:"audience" yaml:"audience"`
	AccessTTL            time.Duration `json:"accessTTL" yaml:"accessTTL"`
	RefreshTTL           time.Duration `json:"refreshTTL" yaml:"refreshTTL"`
	EmailVerificationTTL time.Duration `json:"emailVerificationTTL" yaml:"emailVerificationTTL"`
	PasswordResetTTL     time.Duration `json:"passwordResetTTL" yaml:"passwordResetTTL"`
}

// AuthConfig defines authentication-related configuration
type AuthConfig struct {
	BcryptCost int `json:"bcryptCost" yaml:"bcryptCost"`
	// MaxActiveSessions caps concurrent refresh grants per user, 0 disables the cap
	MaxActiveSessions int `json:"maxActiveSessions" yaml:"maxActiveSessions"`
}

// PasswordStrengthConfig defines password strength requirements
type PasswordStrengthConfig struct {
	MinLength        int  `json:"minLength" yaml:"minLength"`
	RequireLetter    bool `json:"requireLetter" yaml:"requireLetter"`
	RequireUppercase bool `json:"requireUppercase" yaml:"requireUppercase"`
	RequireLowercase bool `json:"requireLowercase" yaml:"requireLowercase"`
	RequireNumbers   bool `json:"requireNumbers" yaml:"requireNumbers"`
	RequireSpecial   bool `json:"requireSpecial" yaml:"requireSpecial"`
	MaxLength        int  `json:"maxLength" yaml:"maxLength"`
}

// RateLimitRule is a maximum request count per window
type RateLimitRule struct {
	Window time.Duration `json:"window" yaml:"window"`
	Max    int           `json:"max" yaml:"max"`
}

// RateLimitConfig defines the limiter backend and per-flow rules
type RateLimitConfig struct {
	// Backend is "memory" (single process) or "redis" (shared counters)
	Backend string `json:"backend" yaml:"backend"`

	Redis RedisConfig `json:"redis" yaml:"redis"`

	VerificationEmail  RateLimitRule `json:"verificationEmail" yaml:"verificationEmail"`
	VerificationIP     RateLimitRule `json:"verificationIP" yaml:"verificationIP"`
	PasswordResetEmail RateLimitRule `json:"passwordResetEmail" yaml:"passwordResetEmail"`
	PasswordResetIP    RateLimitRule `json:"passwordResetIP" yaml:"passwordResetIP"`
	Login              RateLimitRule `json:"login" yaml:"login"`
}

// RedisConfig holds connection settings for the shared rate limit backend
type RedisConfig struct {
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
}

// CaptchaConfig defines the remote human-verification check
type CaptchaConfig struct {
	SecretKey      string        `json:"secretKey" yaml:"secretKey"`
	VerifyURL      string        `json:"verifyURL" yaml:"verifyURL"`
	ExpectedAction string        `json:"expectedAction" yaml:"expectedAction"`
	MinScore       float64       `json:"minScore" yaml:"minScore"`
	Timeout        time.Duration `json:"timeout" yaml:"timeout"`
	// Bypass skips the check even when a secret is configured
	Bypass bool `json:"bypass" yaml:"bypass"`
}

// PasswordResetConfig tunes the password reset request flow
type PasswordResetConfig struct {
	// MinResponseTime pads every reset request to the same minimum latency
	MinResponseTime time.Duration `json:"minResponseTime" yaml:"minResponseTime"`
}

// MailConfig defines how account email links are built and sent
type MailConfig struct {
	FrontendURL string        `json:"frontendURL" yaml:"frontendURL"`
	VerifyPath  string        `json:"verifyPath" yaml:"verifyPath"`
	ResetPath   string        `json:"resetPath" yaml:"resetPath"`
	SendTimeout time.Duration `json:"sendTimeout" yaml:"sendTimeout"`
}

// TokenCleanupConfig defines the ledger cleanup schedule
type TokenCleanupConfig struct {
	Enabled          bool          `json:"enabled" yaml:"enabled"`
	ExpiredInterval  time.Duration `json:"expiredInterval" yaml:"expiredInterval"`
	ExpiredRetention time.Duration `json:"expiredRetention" yaml:"expiredRetention"`
	RevokedInterval  time.Duration `json:"revokedInterval" yaml:"revokedInterval"`
	RevokedRetention time.Duration `json:"revokedRetention" yaml:"revokedRetention"`
}

type Log struct {
	Pretty bool   `json:"pretty" yaml:"pretty"`
	Level  string `json:"level" yaml:"level"`
}

// PubSubConfig defines Pub/Sub configuration for event publishing
type PubSubConfig struct {
	// Provider type: "noop", "local" for local HTTP or "google" for Google Pub/Sub
	Provider string `json:"provider" yaml:"provider"`

	// Google Cloud project ID (for google provider)
	ProjectID string `json:"projectId" yaml:"projectId"`

	// Pub/Sub topic ID (for google provider)
	TopicID string `json:"topicId" yaml:"topicId"`

	// Local HTTP endpoint for development (for local provider)
	LocalEndpoint string `json:"localEndpoint" yaml:"localEndpoint"`

	// WorkerPort is the port the mail worker listens on for push deliveries
	WorkerPort int `json:"workerPort" yaml:"workerPort"`

	// PushAudience is the expected audience of push OIDC tokens; empty means the request URL
	PushAudience string `json:"pushAudience" yaml:"pushAudience"`
}

// LoadWithEnv loads .yaml files through koanf.
func LoadWithEnv[T any](currEnv string, configPath ...string) (*T, error) {
	cfg := new(T)
	koanfInstance := koanf.New(".")

	// Build list of paths to search for config file
	searchPaths := []string{defaultPath}
	if len(configPath) != 0 {
		pwd, err := os.Getwd()
		if err != nil {
			return nil, errors.Wrap(err, "os.Getwd")
		}
		for _, path := range configPath {
			abs := filepath.Join(pwd, path)
			searchPaths = append(searchPaths, abs)
		}
	}

	// Try to find and load the config file
	var configFile string
	var found bool
	for _, path := range searchPaths {
		candidate := filepath.Join(path, currEnv+".yaml")
		if _, err := os.Stat(candidate); err == nil {
			configFile = candidate
			found = true

			break
		}
	}

	if !found {
		return nil, errors.Errorf("config file %s.yaml not found in any search path", currEnv)
	}

	// Load YAML config file
	if err := koanfInstance.Load(file.Provider(configFile), yaml.Parser()); err != nil {
		return nil, errors.Wrapf(err, "read %s config failed", currEnv)
	}

	existingConfigMap := koanfInstance.Raw()

	// Load environment variables
	if err := koanfInstance.Load(env.Provider(".", env.Opt{
		TransformFunc: func(k, v string) (string, any) {
			// Convert ENV_VAR_NAME to path and align each segment with existing YAML keys.
			// Example: POSTGRES_SSLMODE -> postgres.sslMode (not postgres.sslmode)
			key := canonicalizeEnvKey(k, existingConfigMap)

			return key, v
		},
	}), nil); err != nil {
		return nil, errors.Wrap(err, "load env variables failed")
	}

	// Unmarshal into the config struct (case-insensitive to match env vars)
	if err := koanfInstance.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           cfg,
			WeaklyTypedInput: true,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
			),
			MatchName: func(mapKey, fieldName string) bool {
				// Case-insensitive matching for env var overrides
				return strings.EqualFold(mapKey, fieldName)
			},
		},
	}); err != nil {
		return nil, errors.Wrapf(err, "unmarshal %s config failed", currEnv)
	}

	return cfg, nil
}

func New() (*Config, error) {
	// A missing .env file is fine; it only exists in local development.
	_ = godotenv.Load()

	cfg, err := LoadWithEnv[Config]("config", "config", "../config", "../../config")
	if err != nil {
		return nil, err
	}

	ApplyDefaults(cfg)

	// Build replicas from environment variables (POSTGRES_REPLICAS_0_HOST, POSTGRES_REPLICAS_0_PORT, etc.)
	if cfg.Postgres != nil {
		cfg.Postgres.Replicas = buildReplicasFromEnv()
	}

	return cfg, nil
}

func canonicalizeEnvKey(rawKey string, existing map[string]any) string {
	segments := strings.Split(strings.ToLower(rawKey), "_")
	canonical := make([]string, 0, len(segments))
	current := existing

	for _, segment := range segments {
		if segment == "" {
			continue
		}

		if matched, next, ok := findExistingSegment(current, segment); ok {
			canonical = append(canonical, matched)
			current = next
		} else {
			canonical = append(canonical, segment)
			current = nil
		}
	}

	return strings.Join(canonical, ".")
}

func findExistingSegment(current map[string]any, segment string) (matched string, next map[string]any, ok bool) {
	if len(current) == 0 {
		return "", nil, false
	}

	needle := normalizeToken(segment)
	for key, value := range current {
		if normalizeToken(key) != needle {
			continue
		}

		child, _ := value.(map[string]any)

		return key, child, true
	}

	return "", nil, false
}

func normalizeToken(s string) string {
	var normalized strings.Builder
	normalized.Grow(len(s))

	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			continue
		}
		normalized.WriteRune(unicode.ToLower(r))
	}

	return normalized.String()
}

// buildReplicasFromEnv builds the replicas slice from environment variables.
// Environment variable format: POSTGRES_REPLICAS_{index}_{field}
// Example: POSTGRES_REPLICAS_0_HOST, POSTGRES_REPLICAS_0_PORT, POSTGRES_REPLICAS_0_USERNAME, POSTGRES_REPLICAS_0_PASSWORD
func buildReplicasFromEnv() []postgres.ConnectionConfig {
	var replicas []postgres.ConnectionConfig

	for i := 0; ; i++ {
		prefix := "POSTGRES_REPLICAS_" + strconv.Itoa(i) + "_"

		host := os.Getenv(prefix + "HOST")
		port := os.Getenv(prefix + "PORT")
		if host == "" || port == "" {
			// No more replicas or incomplete configuration.
			break
		}

		replica := postgres.ConnectionConfig{
			Host:     host,
			Port:     port,
			UserName: os.Getenv(prefix + "USERNAME"),
			Password: os.Getenv(prefix + "PASSWORD"),
		}

		replicas = append(replicas, replica)
	}

	return replicas
}
