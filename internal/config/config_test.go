package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"ENVIRONMENT", "HTTP_ADDR", "ENABLE_METRICS", "ENABLE_SWAGGER",
	"STORE_DRIVER", "DB_DSN", "MIGRATE_ON_START",
	"JWT_SECRET", "JWT_ISS", "JWT_AUD", "JWT_EXPIRY",
	"LOG_LEVEL", "LOG_FORMAT", "IMPORT_MAPPING",
	"ADMIN_USERNAME", "ADMIN_EMAIL", "ADMIN_PASSWORD", "SHUTDOWN_TIMEOUT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func validConfig() *Config {
	return &Config{
		Environment: "development",
		HTTPAddr:    ":8080",
		StoreDriver: StoreMemory,
		JWTSecret:   "valid-secret-that-is-long-enough-for-testing",
		JWTIssuer:   "test-issuer",
		JWTAudience: "test-audience",
		JWTExpiry:   time.Hour,
		LogFormat:   "json",
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg := Load()
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, StorePostgres, cfg.StoreDriver)
	assert.True(t, cfg.MigrateOnStart)
	assert.False(t, cfg.EnableMetrics)
	assert.Equal(t, "your-secret-key-change-in-production", cfg.JWTSecret)
	assert.Equal(t, "device-inventory-api", cfg.JWTIssuer)
	assert.Equal(t, "device-inventory-api", cfg.JWTAudience)
	assert.Equal(t, 24*time.Hour, cfg.JWTExpiry)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "configs/mapping/devices.yaml", cfg.ImportMapping)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Empty(t, cfg.AdminUsername)
}

func TestLoadWithEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET", "test-secret-key")
	t.Setenv("JWT_ISS", "test-issuer")
	t.Setenv("JWT_AUD", "test-audience")
	t.Setenv("JWT_EXPIRY", "2h")
	t.Setenv("STORE_DRIVER", "MEMORY")
	t.Setenv("ENABLE_METRICS", "true")
	t.Setenv("MIGRATE_ON_START", "false")

	cfg := Load()
	assert.Equal(t, "test-secret-key", cfg.JWTSecret)
	assert.Equal(t, "test-issuer", cfg.JWTIssuer)
	assert.Equal(t, "test-audience", cfg.JWTAudience)
	assert.Equal(t, 2*time.Hour, cfg.JWTExpiry)
	assert.Equal(t, StoreMemory, cfg.StoreDriver)
	assert.True(t, cfg.EnableMetrics)
	assert.False(t, cfg.MigrateOnStart)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_EXPIRY", "soon")
	t.Setenv("ENABLE_SWAGGER", "maybe")

	cfg := Load()
	assert.Equal(t, 24*time.Hour, cfg.JWTExpiry)
	assert.False(t, cfg.EnableSwagger)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "empty secret", mutate: func(c *Config) { c.JWTSecret = "" }, expectError: true},
		{name: "secret too short", mutate: func(c *Config) { c.JWTSecret = "short" }, expectError: true},
		{name: "empty issuer", mutate: func(c *Config) { c.JWTIssuer = "" }, expectError: true},
		{name: "empty audience", mutate: func(c *Config) { c.JWTAudience = "" }, expectError: true},
		{name: "negative expiry", mutate: func(c *Config) { c.JWTExpiry = -time.Hour }, expectError: true},
		{name: "expiry too short", mutate: func(c *Config) { c.JWTExpiry = 30 * time.Second }, expectError: true},
		{name: "expiry too long", mutate: func(c *Config) { c.JWTExpiry = 31 * 24 * time.Hour }, expectError: true},
		{name: "unknown store", mutate: func(c *Config) { c.StoreDriver = "mongo" }, expectError: true},
		{name: "postgres without dsn", mutate: func(c *Config) { c.StoreDriver = StorePostgres; c.DBDSN = "" }, expectError: true},
		{name: "postgres with dsn", mutate: func(c *Config) { c.StoreDriver = StorePostgres; c.DBDSN = "postgres://x" }},
		{name: "bad log format", mutate: func(c *Config) { c.LogFormat = "xml" }, expectError: true},
		{name: "empty addr", mutate: func(c *Config) { c.HTTPAddr = "" }, expectError: true},
		{name: "admin without password", mutate: func(c *Config) { c.AdminUsername = "root" }, expectError: true},
		{name: "admin with password", mutate: func(c *Config) { c.AdminUsername = "root"; c.AdminPassword = "long-enough" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadAndValidate(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET", "test-secret-key-that-is-long-enough-for-testing")
	t.Setenv("STORE_DRIVER", "memory")

	cfg, err := LoadAndValidate()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	t.Setenv("JWT_SECRET", "short")
	_, err = LoadAndValidate()
	assert.Error(t, err)
}

func TestProductionSecretValidation(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("STORE_DRIVER", "memory")

	assert.Error(t, Load().Validate(), "default secret must be rejected in production")

	t.Setenv("JWT_SECRET", "proper-production-secret-that-is-long-enough")
	assert.NoError(t, Load().Validate())
}

func TestLoadEnvFiles(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte("HTTP_ADDR=:9999\nLOG_LEVEL=debug\n"), 0o600))
	t.Setenv("LOG_LEVEL", "warn")
	// godotenv only fills variables that are absent, not ones set to "".
	require.NoError(t, os.Unsetenv("HTTP_ADDR"))

	require.NoError(t, LoadEnvFiles(path, filepath.Join(dir, "missing.env")))

	cfg := Load()
	assert.Equal(t, ":9999", cfg.HTTPAddr)
	assert.Equal(t, "warn", cfg.LogLevel, "existing variables win over the file")
}
