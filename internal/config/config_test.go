// Package config provides configuration management for the grade market service.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	validConfigPath       = "testdata/valid_config.yaml"
	nonexistentConfigPath = "testdata/nonexistent_config.yaml"
	testAppName           = "test-app"
)

func loadValid(t *testing.T) *Config {
	t.Helper()
	cfg, err := Load(validConfigPath)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	return cfg
}

// TestLoadConfigSuccess tests loading a valid configuration file
func TestLoadConfigSuccess(t *testing.T) {
	cfg := loadValid(t)

	assert.Equal(t, "grade-market", cfg.App.Name)
	assert.Equal(t, "development", cfg.App.Environment)
	assert.Equal(t, "postgres", cfg.Storage.Driver)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "/predict_regression", cfg.Forecast.Endpoint)
	assert.Equal(t, 0.001, cfg.Market.NativePerUnit)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Events.Brokers)
}

// TestLoadConfigFileNotFound tests handling of missing configuration file
func TestLoadConfigFileNotFound(t *testing.T) {
	_, err := Load(nonexistentConfigPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file not found")
}

func TestLoadConfigExpandsPlaceholders(t *testing.T) {
	t.Setenv("GRADE_MARKET_TEST_DB_PASSWORD", "expanded_secret_value")

	cfg := loadValid(t)
	assert.Equal(t, "expanded_secret_value", cfg.Database.Password)
}

// TestLoadConfigEnvironmentVariables tests environment variable override
func TestLoadConfigEnvironmentVariables(t *testing.T) {
	t.Setenv("GRADE_MARKET_APP_NAME", testAppName)

	cfg := loadValid(t)
	assert.Equal(t, testAppName, cfg.App.Name)
}

func TestLoadWithDefaultsMissingFile(t *testing.T) {
	cfg, err := LoadWithDefaults(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, 5, cfg.Forecast.TimeoutSeconds)
	assert.Equal(t, "@every 5m", cfg.Reconciler.Schedule)
	require.NoError(t, Validate(cfg))
}

func TestLoadWithDefaultsEnvOverride(t *testing.T) {
	t.Setenv("GRADE_MARKET_SETTLEMENT_TIMEOUT_SECONDS", "7")

	cfg, err := LoadWithDefaults(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Settlement.TimeoutSeconds)
}

// TestValidateSuccess tests validation of a valid configuration
func TestValidateSuccess(t *testing.T) {
	require.NoError(t, Validate(loadValid(t)))
}

func TestValidateRejectsInvalidFields(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{
			name:    "invalid environment",
			mutate:  func(c *Config) { c.App.Environment = "invalid" },
			wantMsg: "development, staging, production",
		},
		{
			name:    "invalid log level",
			mutate:  func(c *Config) { c.App.LogLevel = "verbose" },
			wantMsg: "debug, info, warn, error",
		},
		{
			name:    "unknown storage driver",
			mutate:  func(c *Config) { c.Storage.Driver = "mongo" },
			wantMsg: "postgres, memory",
		},
		{
			name:    "bad cron schedule",
			mutate:  func(c *Config) { c.Reconciler.Schedule = "every now and then" },
			wantMsg: "cron",
		},
		{
			name:    "forecast timeout too long",
			mutate:  func(c *Config) { c.Forecast.TimeoutSeconds = 120 },
			wantMsg: "TimeoutSeconds",
		},
		{
			name:    "cache enabled without address",
			mutate:  func(c *Config) { c.Cache.Addr = "" },
			wantMsg: "Addr",
		},
		{
			name:    "idle connections above max",
			mutate:  func(c *Config) { c.Database.MaxIdleConnections = 50 },
			wantMsg: "max_idle_connections",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := loadValid(t)
			tt.mutate(cfg)

			err := Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestValidateProductionRequirements(t *testing.T) {
	cfg := loadValid(t)
	cfg.App.Environment = "production"
	cfg.Database.SSLMode = "disable"

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SSL")

	cfg.Database.SSLMode = "require"
	cfg.Settlement.AdminKey = " "
	err = Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "admin key")

	cfg.Settlement.AdminKey = "secret"
	assert.NoError(t, Validate(cfg))
}

// TestGetDatabaseDSN tests DSN generation
func TestGetDatabaseDSN(t *testing.T) {
	dsn := loadValid(t).GetDatabaseDSN()
	assert.True(t, strings.HasPrefix(dsn, "postgres://"))
	assert.Contains(t, dsn, "sslmode=disable")
}

func TestEnvironmentChecks(t *testing.T) {
	cfg := &Config{App: AppConfig{Environment: "development"}}
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())

	cfg.App.Environment = "production"
	assert.True(t, cfg.IsProduction())
}

func TestMarketConversions(t *testing.T) {
	m := MarketConfig{NativePerUnit: 0.001, MaxStake: 2.5}
	assert.Equal(t, "0.001", m.NativeRate().String())
	assert.Equal(t, "2.5", m.MaxStakeAmount().String())
}

func TestOverlaySecretsOnConfig(t *testing.T) {
	cfg := loadValid(t)
	overlaySecretsOnConfig(cfg, &SecretsOverlay{SettlementAdminKey: "from-aws"})

	assert.Equal(t, "from-aws", cfg.Settlement.AdminKey)
	assert.Equal(t, os.Getenv("GRADE_MARKET_TEST_DB_PASSWORD"), cfg.Database.Password)
}
