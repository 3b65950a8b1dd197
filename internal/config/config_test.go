package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piwi3910/stratweave/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8350", cfg.Server.ListenAddr)
	assert.Equal(t, "release", cfg.Server.GinMode)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)

	assert.Equal(t, 25, cfg.Store.MaxOpenConns)
	assert.Equal(t, 5, cfg.Store.MaxIdleConns)
	assert.Equal(t, 30*time.Minute, cfg.Store.ConnMaxLifetime)

	assert.Equal(t, "bus://localhost:6379", cfg.Bus.URL)
	assert.Equal(t, 5, cfg.Bus.RetryMaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.Bus.RetryBackoffCap)
	assert.Equal(t, 60*time.Second, cfg.Bus.PublishBudget)

	assert.Equal(t, "/api/v1", cfg.API.V1Prefix)
	assert.Equal(t, 100, cfg.API.PageSizeMax)

	assert.Equal(t, "production", cfg.Observability.Environment)
	assert.True(t, cfg.Observability.MetricsEnabled)
	assert.Equal(t, "/metrics", cfg.Observability.MetricsPath)

	assert.NoError(t, cfg.Validate())
}

func TestLoad_EnvAliases(t *testing.T) {
	t.Setenv("STORE_URL", "postgres://db.example.com:5432/library")
	t.Setenv("BUS_URL", "bus://bus.example.com:6379")
	t.Setenv("LISTEN_ADDR", ":9350")
	t.Setenv("RETRY_MAX_ATTEMPTS", "3")
	t.Setenv("RETRY_BACKOFF_CAP_SEC", "10")
	t.Setenv("PAGE_SIZE_MAX", "250")
	t.Setenv("API_V1_PREFIX", "/v2")

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "postgres://db.example.com:5432/library", cfg.Store.URL)
	assert.Equal(t, "bus://bus.example.com:6379", cfg.Bus.URL)
	assert.Equal(t, ":9350", cfg.Server.ListenAddr)
	assert.Equal(t, 3, cfg.Bus.RetryMaxAttempts)
	assert.Equal(t, 10*time.Second, cfg.Bus.RetryBackoffCap)
	assert.Equal(t, 250, cfg.API.PageSizeMax)
	assert.Equal(t, "/v2", cfg.API.V1Prefix)
}

func TestLoad_PrefixedEnvOverrides(t *testing.T) {
	t.Setenv("STRATWEAVE_SERVER_GIN_MODE", "debug")
	t.Setenv("STRATWEAVE_OBSERVABILITY_ENVIRONMENT", "development")

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Server.GinMode)
	assert.Equal(t, "development", cfg.Observability.Environment)
}

func TestLoad_BadBackoffCap(t *testing.T) {
	t.Setenv("RETRY_BACKOFF_CAP_SEC", "zero")
	_, err := config.Load("")
	assert.Error(t, err)

	t.Setenv("RETRY_BACKOFF_CAP_SEC", "-5")
	_, err = config.Load("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func(t *testing.T) *config.Config {
		cfg, err := config.Load("")
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{
			name:    "empty listen addr",
			mutate:  func(c *config.Config) { c.Server.ListenAddr = "" },
			wantErr: "listen_addr",
		},
		{
			name:    "bad gin mode",
			mutate:  func(c *config.Config) { c.Server.GinMode = "verbose" },
			wantErr: "gin_mode",
		},
		{
			name:    "empty store url",
			mutate:  func(c *config.Config) { c.Store.URL = "" },
			wantErr: "store.url",
		},
		{
			name:    "idle conns above open conns",
			mutate:  func(c *config.Config) { c.Store.MaxIdleConns = 100 },
			wantErr: "max_idle_conns",
		},
		{
			name:    "zero retry attempts",
			mutate:  func(c *config.Config) { c.Bus.RetryMaxAttempts = 0 },
			wantErr: "retry_max_attempts",
		},
		{
			name:    "relative api prefix",
			mutate:  func(c *config.Config) { c.API.V1Prefix = "api/v1" },
			wantErr: "v1_prefix",
		},
		{
			name:    "page size max zero",
			mutate:  func(c *config.Config) { c.API.PageSizeMax = 0 },
			wantErr: "page_size_max",
		},
		{
			name:    "unknown environment",
			mutate:  func(c *config.Config) { c.Observability.Environment = "qa" },
			wantErr: "environment",
		},
		{
			name:    "relative metrics path",
			mutate:  func(c *config.Config) { c.Observability.MetricsPath = "metrics" },
			wantErr: "metrics_path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
