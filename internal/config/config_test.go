package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patric-chuzhbe/jjbank/internal/apperr"
)

func writeTempEnv(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestConfigDefaults(t *testing.T) {
	cfg, err := New(WithDisableFlagsParsing(true), WithEnvFiles(filepath.Join(t.TempDir(), "missing.env")))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.RunAddr)
	assert.Equal(t, "appwrite-session", cfg.SessionCookieName)
	assert.Equal(t, "sandbox", cfg.DwollaEnv)
	assert.Equal(t, 10*time.Second, cfg.DBConnectionTimeout)
	assert.Equal(t, "banks", cfg.BankCollectionID)
}

func TestConfigEnvOnly(t *testing.T) {
	t.Setenv("SERVER_ADDRESS", ":7000")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DWOLLA_ENV", "production")
	t.Setenv("SHAREABLE_ID_SECRET", "a-real-secret")
	t.Setenv("PAGE_CACHE_TTL", "30s")

	cfg, err := New(WithDisableFlagsParsing(true), WithEnvFiles(filepath.Join(t.TempDir(), "missing.env")))
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.RunAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "production", cfg.DwollaEnv)
	assert.Equal(t, 30*time.Second, cfg.PageCacheTTL)
}

func TestConfigPriorityDotEnvPlusEnv(t *testing.T) {
	envPath := writeTempEnv(t, "APPWRITE_PROJECT=from-dotenv\nPLAID_CLIENT_ID=dotenv-client\n")
	t.Setenv("PLAID_CLIENT_ID", "env-client")

	cfg, err := New(WithDisableFlagsParsing(true), WithEnvFiles(envPath))
	require.NoError(t, err)

	assert.Equal(t, "from-dotenv", cfg.AppwriteProject)
	assert.Equal(t, "env-client", cfg.PlaidClientID) // godotenv never overrides the environment
}

func TestConfigFlagsOverrideEnv(t *testing.T) {
	t.Setenv("SERVER_ADDRESS", ":4000")

	cfg := Config{}
	applyDefaults(&cfg, defaultConfig)
	cfg.RunAddr = ":4000"
	cfg.ShareableIDSecret = "a-real-secret"

	require.NoError(t, cfg.parseFlags([]string{"-a", ":6000", "-dwolla-env", "production"}))

	assert.Equal(t, ":6000", cfg.RunAddr)
	assert.Equal(t, "production", cfg.DwollaEnv)
	assert.NoError(t, cfg.validate())
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "bad log level", mutate: func(c *Config) { c.LogLevel = "verbose" }},
		{name: "bad address", mutate: func(c *Config) { c.RunAddr = "no-port" }},
		{name: "bad driver", mutate: func(c *Config) { c.DatabaseDriver = "mysql" }},
		{name: "bad appwrite endpoint", mutate: func(c *Config) { c.AppwriteEndpoint = "::not a url" }},
		{name: "empty cookie name", mutate: func(c *Config) { c.SessionCookieName = "" }},
		{name: "bad plaid env", mutate: func(c *Config) { c.PlaidEnv = "staging" }},
		{name: "bad webhook subnet", mutate: func(c *Config) { c.PlaidWebhookTrustedSubnet = "10.0.0.1" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{}
			applyDefaults(&cfg, defaultConfig)
			tt.mutate(&cfg)
			assert.Error(t, cfg.validate())
		})
	}
}

func TestConfigRefusesPlaceholderSecretInProduction(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "sandbox keeps the placeholder", mutate: func(c *Config) {}},
		{name: "dwolla production", mutate: func(c *Config) { c.DwollaEnv = "production" }, wantErr: true},
		{name: "plaid production", mutate: func(c *Config) { c.PlaidEnv = "production" }, wantErr: true},
		{name: "production with a secret", mutate: func(c *Config) {
			c.DwollaEnv = "production"
			c.ShareableIDSecret = "a-real-secret"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{}
			applyDefaults(&cfg, defaultConfig)
			tt.mutate(&cfg)
			err := cfg.validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, apperr.ErrConfiguration)
				return
			}
			assert.NoError(t, err)
		})
	}
}
