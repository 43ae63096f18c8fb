// Package config handles wschat configuration loading and validation.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	passwordvalidator "github.com/wagslane/go-password-validator"
)

// EnvPrefix prefixes every environment override, e.g. WSCHAT_SERVER_ADDR.
const EnvPrefix = "WSCHAT"

// knownWeakSecrets is a blocklist of secrets that must never be used in production.
var knownWeakSecrets = map[string]bool{
	"wschat-local-dev-secret-32-chars!!": true,
	"changeme": true,
	"secret":   true,
}

var validate = validator.New()

// minSecretEntropyBits rejects long but repetitive JWT secrets.
const minSecretEntropyBits = 80

// GenerateRandomSecret returns a cryptographically random 64-character hex string
// suitable for use as a JWT secret.
func GenerateRandomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Config is the top-level wschat configuration.
type Config struct {
	Server    ServerConfig    `json:"server" split_words:"true"`
	Auth      AuthConfig      `json:"auth" split_words:"true"`
	Session   SessionConfig   `json:"session" split_words:"true"`
	Storage   StorageConfig   `json:"storage" split_words:"true"`
	Relay     RelayConfig     `json:"relay" split_words:"true"`
	Logging   LoggingConfig   `json:"logging" split_words:"true"`
	RateLimit RateLimitConfig `json:"rate_limit,omitempty" split_words:"true"`
}

// ServerConfig defines the listener and WebSocket settings.
type ServerConfig struct {
	Addr              string   `json:"addr" split_words:"true" validate:"required"` // e.g. ":8080"
	TLSCert           string   `json:"tls_cert,omitempty" split_words:"true"`
	TLSKey            string   `json:"tls_key,omitempty" split_words:"true" validate:"required_with=TLSCert"`
	AllowedOrigins    []string `json:"allowed_origins,omitempty" split_words:"true"`                    // default ["*"]
	MaxMessageBytes   int64    `json:"max_message_bytes,omitempty" split_words:"true" validate:"gte=0"` // default 64KB
	WriteTimeout      Duration `json:"write_timeout,omitempty" split_words:"true"`                      // default 10s
	MessagesPerSecond float64  `json:"messages_per_second,omitempty" split_words:"true" validate:"gte=0"`
	MessageBurst      int      `json:"message_burst,omitempty" split_words:"true" validate:"gte=0"`
}

// AuthConfig defines how admin API callers are authenticated.
type AuthConfig struct {
	Provider  string   `json:"provider,omitempty" split_words:"true" validate:"omitempty,oneof=builtin jwks"` // "builtin" (default) or "jwks"
	JWTSecret string   `json:"jwt_secret,omitempty" split_words:"true"`
	JWTExpiry Duration `json:"jwt_expiry,omitempty" split_words:"true"`
	JWKSURL   string   `json:"jwks_url,omitempty" envconfig:"JWKS_URL" validate:"omitempty,url"`
	Issuer    string   `json:"issuer,omitempty" split_words:"true"`
	AdminRole string   `json:"admin_role,omitempty" split_words:"true"` // role claim required for admin routes; default "admin"
}

// SessionConfig defines where handshake sessions are resolved.
type SessionConfig struct {
	Backend       string   `json:"backend,omitempty" split_words:"true" validate:"omitempty,oneof=redis memory"` // "redis" (default) or "memory"
	RedisURL      string   `json:"redis_url,omitempty" split_words:"true"`
	KeyNamespace  string   `json:"key_namespace,omitempty" split_words:"true"`
	QueryParam    string   `json:"query_param,omitempty" split_words:"true"`
	UserField     string   `json:"user_field,omitempty" split_words:"true"`
	LookupTimeout Duration `json:"lookup_timeout,omitempty" split_words:"true"`
	PublicFields  []string `json:"public_fields,omitempty" split_words:"true"` // session values exposed as "from"; empty exposes all
}

// StorageConfig defines database settings.
type StorageConfig struct {
	Driver    string   `json:"driver" split_words:"true" validate:"omitempty,oneof=sqlite postgres"` // "sqlite" (default)
	DSN       string   `json:"dsn" split_words:"true"`                                               // e.g. "wschat.db" or ":memory:"
	Retention Duration `json:"retention,omitempty" split_words:"true"`                               // stored message retention
}

// RelayConfig tunes message routing.
type RelayConfig struct {
	AllowedTags    []string `json:"allowed_tags" split_words:"true"`               // null uses the defaults, [] allows no tags
	HookTimeout    Duration `json:"hook_timeout,omitempty" split_words:"true"`     // default 5s
	DialogCacheTTL Duration `json:"dialog_cache_ttl,omitempty" split_words:"true"` // 0 caches for the process lifetime
	RecentEvents   int      `json:"recent_events,omitempty" split_words:"true" validate:"gte=0"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level    string `json:"level,omitempty" split_words:"true" validate:"omitempty,oneof=debug info warn error"`
	Format   string `json:"format,omitempty" split_words:"true" validate:"omitempty,oneof=json text"`
	ErrorLog string `json:"error_log,omitempty" split_words:"true"` // file for unscoped relay errors; empty uses the process log
}

// RateLimitConfig limits HTTP requests and WebSocket upgrades per client IP.
type RateLimitConfig struct {
	RequestsPerSecond float64 `json:"requests_per_second,omitempty" split_words:"true" validate:"gte=0"` // default 10
	Burst             int     `json:"burst,omitempty" split_words:"true" validate:"gte=0"`               // default 20
}

// Duration is a JSON-friendly time.Duration.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch val := v.(type) {
	case string:
		dur, err := time.ParseDuration(val)
		if err != nil {
			return err
		}
		d.Duration = dur
	case float64:
		d.Duration = time.Duration(val * float64(time.Second))
	default:
		return fmt.Errorf("invalid duration: %v", v)
	}
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// Decode lets envconfig parse durations from environment variables.
func (d *Duration) Decode(value string) error {
	dur, err := time.ParseDuration(value)
	if err != nil {
		return err
	}
	d.Duration = dur
	return nil
}

// Load reads a config file, applies WSCHAT_* environment overrides and
// validates the result. An empty path builds the config from the environment
// alone.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("env overrides: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%s failed %q check", fe.Namespace(), fe.Tag())
		}
		return err
	}

	// JWTSecret is only required for the builtin provider.
	if (c.Auth.Provider == "" || c.Auth.Provider == "builtin") && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 characters")
	}
	if knownWeakSecrets[c.Auth.JWTSecret] {
		return fmt.Errorf("auth.jwt_secret is a well-known weak secret, generate a new one")
	}
	if c.Auth.JWTSecret != "" {
		if err := passwordvalidator.Validate(c.Auth.JWTSecret, minSecretEntropyBits); err != nil {
			return fmt.Errorf("auth.jwt_secret is too predictable: %w", err)
		}
	}
	if c.Auth.Provider == "jwks" && c.Auth.JWKSURL == "" {
		return fmt.Errorf("auth.jwks_url is required when provider is jwks")
	}
	if (c.Session.Backend == "" || c.Session.Backend == "redis") && c.Session.RedisURL == "" {
		return fmt.Errorf("session.redis_url is required")
	}
	if c.Storage.Driver == "postgres" && c.Storage.DSN == "" {
		return fmt.Errorf("storage.dsn is required for postgres")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"*"}
	}
	if c.Server.MaxMessageBytes == 0 {
		c.Server.MaxMessageBytes = 64 * 1024 // 64KB
	}
	if c.Server.WriteTimeout.Duration == 0 {
		c.Server.WriteTimeout.Duration = 10 * time.Second
	}
	if c.Server.MessagesPerSecond == 0 {
		c.Server.MessagesPerSecond = 30
	}
	if c.Server.MessageBurst == 0 {
		c.Server.MessageBurst = 50
	}
	if c.Auth.Provider == "" {
		c.Auth.Provider = "builtin"
	}
	if c.Auth.JWTExpiry.Duration == 0 {
		c.Auth.JWTExpiry.Duration = 24 * time.Hour
	}
	if c.Auth.AdminRole == "" {
		c.Auth.AdminRole = "admin"
	}
	if c.Session.Backend == "" {
		c.Session.Backend = "redis"
	}
	if c.Session.KeyNamespace == "" {
		c.Session.KeyNamespace = "PHPREDIS_SESSION"
	}
	if c.Session.QueryParam == "" {
		c.Session.QueryParam = "PHPSESSID"
	}
	if c.Session.UserField == "" {
		c.Session.UserField = "user_id"
	}
	if c.Session.LookupTimeout.Duration == 0 {
		c.Session.LookupTimeout.Duration = 2 * time.Second
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "sqlite"
	}
	if c.Storage.DSN == "" {
		c.Storage.DSN = "wschat.db"
	}
	if c.Storage.Retention.Duration == 0 {
		c.Storage.Retention.Duration = 90 * 24 * time.Hour // 90 days
	}
	if c.Relay.HookTimeout.Duration == 0 {
		c.Relay.HookTimeout.Duration = 5 * time.Second
	}
	if c.Relay.RecentEvents == 0 {
		c.Relay.RecentEvents = 50
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.RateLimit.RequestsPerSecond == 0 {
		c.RateLimit.RequestsPerSecond = 10
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 20
	}
}
