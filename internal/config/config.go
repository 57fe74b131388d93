package config

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string `mapstructure:"PORT"`
	MetricsPort string `mapstructure:"METRICS_PORT"`
	Env         string `mapstructure:"ENV"`

	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`
	RedisURL    string `mapstructure:"REDIS_URL"`

	JWTSecret string `mapstructure:"JWT_SECRET"`
	JWTIssuer string `mapstructure:"JWT_ISSUER"`

	// EncryptionKey protects contact fields at rest. Hex-encoded, 32 bytes
	// once decoded.
	EncryptionKey string `mapstructure:"ENCRYPTION_KEY"`

	// FallbackTenantCode resolves requests that carry no tenant identifier to
	// a fixed tenant. A development convenience only; Validate refuses it
	// outside development mode.
	FallbackTenantCode string `mapstructure:"FALLBACK_TENANT_CODE"`

	// PublicPathPrefixes are exempt from tenant resolution.
	PublicPathPrefixes []string `mapstructure:"PUBLIC_PATH_PREFIXES"`

	PublicMigrationsDir string `mapstructure:"PUBLIC_MIGRATIONS_DIR"`
	TenantMigrationsDir string `mapstructure:"TENANT_MIGRATIONS_DIR"`

	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`
}

var defaultPublicPrefixes = []string{
	"/api/v1/auth/",
	"/api/v1/tenants/directory",
	"/api/docs/",
	"/health",
	"/metrics",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("METRICS_PORT", "8081")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("REDIS_URL", "redis://localhost:6379/0")
	v.SetDefault("PUBLIC_MIGRATIONS_DIR", "migrations/public")
	v.SetDefault("TENANT_MIGRATIONS_DIR", "migrations/tenant")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"PORT", "METRICS_PORT", "ENV",
		"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "REDIS_URL",
		"JWT_SECRET", "JWT_ISSUER", "ENCRYPTION_KEY",
		"FALLBACK_TENANT_CODE", "PUBLIC_PATH_PREFIXES",
		"PUBLIC_MIGRATIONS_DIR", "TENANT_MIGRATIONS_DIR", "CORS_ORIGINS",
	} {
		v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.PublicPathPrefixes == nil {
		if raw := v.GetString("PUBLIC_PATH_PREFIXES"); raw != "" {
			cfg.PublicPathPrefixes = strings.Split(raw, ",")
		} else {
			cfg.PublicPathPrefixes = defaultPublicPrefixes
		}
	}
	if cfg.CORSOrigins == nil {
		if raw := v.GetString("CORS_ORIGINS"); raw != "" {
			cfg.CORSOrigins = strings.Split(raw, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. The fallback tenant
// code short-circuits resolution for requests without any tenant identifier,
// so it must never be live outside development.
func (c *Config) Validate() error {
	if c.FallbackTenantCode != "" && !c.IsDev() {
		return fmt.Errorf(
			"FALLBACK_TENANT_CODE is set but ENV=%q; the fallback tenant is a development convenience and must be unset outside development", c.Env)
	}
	if !c.IsDev() && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required when ENV=%q", c.Env)
	}
	if !c.IsDev() && c.EncryptionKey == "" {
		return fmt.Errorf("ENCRYPTION_KEY is required when ENV=%q", c.Env)
	}
	return nil
}

// devEncryptionKey is the fixed local field-encryption key used when no
// ENCRYPTION_KEY is configured in development.
const devEncryptionKey = "32-byte-key-for-aes-encryption!!"

// EncryptionKeyBytes returns the decoded field-encryption key. Every process
// that touches encrypted columns (server and CLI alike) must derive its key
// from here, or records written by one become unreadable by the other.
func (c *Config) EncryptionKeyBytes() ([]byte, error) {
	if c.EncryptionKey == "" {
		if c.IsDev() {
			return []byte(devEncryptionKey), nil
		}
		return nil, fmt.Errorf("ENCRYPTION_KEY is required when ENV=%q", c.Env)
	}
	key, err := hex.DecodeString(c.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("decode ENCRYPTION_KEY: %w", err)
	}
	return key, nil
}
