package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/registry")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8000", cfg.Port)
	assert.Equal(t, "8081", cfg.MetricsPort)
	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, int32(20), cfg.DBMaxConns)
	assert.Contains(t, cfg.PublicPathPrefixes, "/api/v1/auth/")
	assert.Contains(t, cfg.PublicPathPrefixes, "/api/v1/tenants/directory")
	assert.Contains(t, cfg.PublicPathPrefixes, "/health")
}

func TestLoad_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_PublicPrefixOverride(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/registry")
	t.Setenv("PUBLIC_PATH_PREFIXES", "/status,/login")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"/status", "/login"}, cfg.PublicPathPrefixes)
}

func TestValidate_FallbackRefusedOutsideDevelopment(t *testing.T) {
	cfg := &Config{
		Env:                "production",
		FallbackTenantCode: "DEV",
		JWTSecret:          "secret",
		EncryptionKey:      "aa",
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FALLBACK_TENANT_CODE")

	cfg.Env = "staging"
	assert.Error(t, cfg.Validate())

	cfg.Env = "development"
	assert.NoError(t, cfg.Validate())

	cfg.Env = "production"
	cfg.FallbackTenantCode = ""
	assert.NoError(t, cfg.Validate())
}

func TestValidate_ProductionRequiresSecrets(t *testing.T) {
	cfg := &Config{Env: "production"}
	assert.Error(t, cfg.Validate())

	cfg.JWTSecret = "secret"
	assert.Error(t, cfg.Validate())

	cfg.EncryptionKey = "aa"
	assert.NoError(t, cfg.Validate())
}

func TestEncryptionKeyBytes(t *testing.T) {
	// Development falls back to the fixed local key so every process
	// (server and CLI) encrypts and decrypts under the same one.
	cfg := &Config{Env: "development"}
	key, err := cfg.EncryptionKeyBytes()
	require.NoError(t, err)
	assert.Len(t, key, 32)

	cli := &Config{Env: "development"}
	cliKey, err := cli.EncryptionKeyBytes()
	require.NoError(t, err)
	assert.Equal(t, key, cliKey)

	cfg = &Config{Env: "production"}
	_, err = cfg.EncryptionKeyBytes()
	assert.Error(t, err)

	cfg.EncryptionKey = "not-hex"
	_, err = cfg.EncryptionKeyBytes()
	assert.Error(t, err)

	cfg.EncryptionKey = "000102030405060708090a0b0c0d0e0f"
	key, err = cfg.EncryptionKeyBytes()
	require.NoError(t, err)
	assert.Len(t, key, 16)
}
