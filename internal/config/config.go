// Package config provides configuration management for the library
// service. It loads configuration from YAML files and environment
// variables using Viper, with validation.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete configuration for the library service.
//
// Configuration can be loaded from:
//   - YAML file (config/config.yaml)
//   - Environment variables (prefixed with STRATWEAVE_)
//
// A handful of short environment aliases are also bound for operational
// convenience: STORE_URL, BUS_URL, LISTEN_ADDR, RETRY_MAX_ATTEMPTS,
// RETRY_BACKOFF_CAP_SEC, PAGE_SIZE_MAX and API_V1_PREFIX.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Store         StoreConfig         `mapstructure:"store"`
	Bus           BusConfig           `mapstructure:"bus"`
	API           APIConfig           `mapstructure:"api"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	// ListenAddr is the address the HTTP server binds to.
	ListenAddr string `mapstructure:"listen_addr"`

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of
	// the response.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	// IdleTimeout is the maximum duration to wait for the next request
	// when keep-alives are enabled.
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful
	// shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// GinMode sets the Gin framework mode ("debug", "release", "test").
	GinMode string `mapstructure:"gin_mode"`
}

// StoreConfig contains the relational store configuration.
type StoreConfig struct {
	// URL is the Postgres connection string.
	URL string `mapstructure:"url"`

	// MaxOpenConns bounds concurrent transactions against the store.
	MaxOpenConns int `mapstructure:"max_open_conns"`

	// MaxIdleConns is the idle connection pool size.
	MaxIdleConns int `mapstructure:"max_idle_conns"`

	// ConnMaxLifetime recycles connections older than this.
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`

	// ReadTimeout is the per-operation deadline for reads.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`

	// WriteTimeout is the per-operation deadline for writes.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// BusConfig contains the event bus configuration.
type BusConfig struct {
	// URL is the bus connection string (bus://host:port or redis://...).
	// Empty disables event publication.
	URL string `mapstructure:"url"`

	// RetryMaxAttempts bounds delivery attempts per event.
	RetryMaxAttempts int `mapstructure:"retry_max_attempts"`

	// RetryBackoffCap caps a single backoff interval.
	RetryBackoffCap time.Duration `mapstructure:"retry_backoff_cap"`

	// PublishBudget is the overall wall-clock budget per event.
	PublishBudget time.Duration `mapstructure:"publish_budget"`
}

// APIConfig contains REST surface configuration.
type APIConfig struct {
	// V1Prefix is the path prefix of the versioned API.
	V1Prefix string `mapstructure:"v1_prefix"`

	// PageSizeMax caps the page_size query parameter.
	PageSizeMax int `mapstructure:"page_size_max"`
}

// ObservabilityConfig contains logging and metrics configuration.
type ObservabilityConfig struct {
	// Environment selects the logger profile: development, test,
	// staging, production.
	Environment string `mapstructure:"environment"`

	// MetricsEnabled exposes /metrics when true.
	MetricsEnabled bool `mapstructure:"metrics_enabled"`

	// MetricsPath is the metrics endpoint path.
	MetricsPath string `mapstructure:"metrics_path"`
}

// Load loads configuration from the specified file path and environment
// variables. Environment variables override file values and are prefixed
// with STRATWEAVE_ (e.g. STRATWEAVE_SERVER_LISTEN_ADDR=":8350").
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/stratweave")
	}

	v.SetEnvPrefix("STRATWEAVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindAliases(v)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// Config file is optional if all values come from env vars.
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// RETRY_BACKOFF_CAP_SEC is an integer number of seconds, not a
	// duration string, so it bypasses the viper binding.
	if raw := os.Getenv("RETRY_BACKOFF_CAP_SEC"); raw != "" {
		secs, err := strconv.Atoi(raw)
		if err != nil || secs <= 0 {
			return nil, fmt.Errorf("invalid RETRY_BACKOFF_CAP_SEC %q", raw)
		}
		cfg.Bus.RetryBackoffCap = time.Duration(secs) * time.Second
	}

	return &cfg, nil
}

// bindAliases binds the short operational environment variable names to
// their config keys.
func bindAliases(v *viper.Viper) {
	_ = v.BindEnv("store.url", "STRATWEAVE_STORE_URL", "STORE_URL")
	_ = v.BindEnv("bus.url", "STRATWEAVE_BUS_URL", "BUS_URL")
	_ = v.BindEnv("server.listen_addr", "STRATWEAVE_SERVER_LISTEN_ADDR", "LISTEN_ADDR")
	_ = v.BindEnv("bus.retry_max_attempts", "STRATWEAVE_BUS_RETRY_MAX_ATTEMPTS", "RETRY_MAX_ATTEMPTS")
	_ = v.BindEnv("api.page_size_max", "STRATWEAVE_API_PAGE_SIZE_MAX", "PAGE_SIZE_MAX")
	_ = v.BindEnv("api.v1_prefix", "STRATWEAVE_API_V1_PREFIX", "API_V1_PREFIX")
}

// setDefaults sets default values for all configuration options.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.listen_addr", ":8350")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.gin_mode", "release")

	// Store defaults
	v.SetDefault("store.url", "postgres://localhost:5432/stratweave?sslmode=disable")
	v.SetDefault("store.max_open_conns", 25)
	v.SetDefault("store.max_idle_conns", 5)
	v.SetDefault("store.conn_max_lifetime", "30m")
	v.SetDefault("store.read_timeout", "5s")
	v.SetDefault("store.write_timeout", "30s")

	// Bus defaults
	v.SetDefault("bus.url", "bus://localhost:6379")
	v.SetDefault("bus.retry_max_attempts", 5)
	v.SetDefault("bus.retry_backoff_cap", "30s")
	v.SetDefault("bus.publish_budget", "60s")

	// API defaults
	v.SetDefault("api.v1_prefix", "/api/v1")
	v.SetDefault("api.page_size_max", 100)

	// Observability defaults
	v.SetDefault("observability.environment", "production")
	v.SetDefault("observability.metrics_enabled", true)
	v.SetDefault("observability.metrics_path", "/metrics")
}

// Validate validates the configuration and returns an error if any
// values are invalid. This should be called after Load().
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateBus(); err != nil {
		return err
	}
	if err := c.validateAPI(); err != nil {
		return err
	}
	return c.validateObservability()
}

func (c *Config) validateServer() error {
	if c.Server.ListenAddr == "" {
		return errors.New("server.listen_addr must not be empty")
	}
	switch c.Server.GinMode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("server.gin_mode must be debug, release or test, got %q", c.Server.GinMode)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("server.shutdown_timeout must be positive")
	}
	return nil
}

func (c *Config) validateStore() error {
	if c.Store.URL == "" {
		return errors.New("store.url must not be empty")
	}
	if c.Store.MaxOpenConns <= 0 {
		return errors.New("store.max_open_conns must be positive")
	}
	if c.Store.MaxIdleConns < 0 || c.Store.MaxIdleConns > c.Store.MaxOpenConns {
		return errors.New("store.max_idle_conns must be in [0, max_open_conns]")
	}
	return nil
}

func (c *Config) validateBus() error {
	if c.Bus.RetryMaxAttempts < 1 {
		return errors.New("bus.retry_max_attempts must be at least 1")
	}
	if c.Bus.RetryBackoffCap <= 0 {
		return errors.New("bus.retry_backoff_cap must be positive")
	}
	if c.Bus.PublishBudget <= 0 {
		return errors.New("bus.publish_budget must be positive")
	}
	return nil
}

func (c *Config) validateAPI() error {
	if !strings.HasPrefix(c.API.V1Prefix, "/") {
		return fmt.Errorf("api.v1_prefix must start with /, got %q", c.API.V1Prefix)
	}
	if c.API.PageSizeMax < 1 {
		return errors.New("api.page_size_max must be at least 1")
	}
	return nil
}

func (c *Config) validateObservability() error {
	switch c.Observability.Environment {
	case "development", "test", "staging", "production":
	default:
		return fmt.Errorf("observability.environment must be development, test, staging or production, got %q",
			c.Observability.Environment)
	}
	if c.Observability.MetricsEnabled && !strings.HasPrefix(c.Observability.MetricsPath, "/") {
		return fmt.Errorf("observability.metrics_path must start with /, got %q", c.Observability.MetricsPath)
	}
	return nil
}
