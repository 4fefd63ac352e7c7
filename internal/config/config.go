// Package config provides configuration management for the grade market service.
package config

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Config represents the complete application configuration
type Config struct {
	App        AppConfig        `mapstructure:"app" validate:"required"`
	Server     ServerConfig     `mapstructure:"server" validate:"required"`
	Storage    StorageConfig    `mapstructure:"storage" validate:"required"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Forecast   ForecastConfig   `mapstructure:"forecast" validate:"required"`
	Settlement SettlementConfig `mapstructure:"settlement" validate:"required"`
	Market     MarketConfig     `mapstructure:"market" validate:"required"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Events     EventsConfig     `mapstructure:"events"`
	Metrics    MetricsConfig    `mapstructure:"metrics" validate:"required"`
	Reconciler ReconcilerConfig `mapstructure:"reconciler"`
}

// AppConfig represents application-level configuration
type AppConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	Environment string `mapstructure:"environment" validate:"required,environment"`
	LogLevel    string `mapstructure:"log_level" validate:"required,loglevel"`
}

// ServerConfig holds the public HTTP API settings
type ServerConfig struct {
	Port                int `mapstructure:"port" validate:"required,min=1,max=65535"`
	ReadTimeoutSeconds  int `mapstructure:"read_timeout_seconds" validate:"required,gt=0"`
	WriteTimeoutSeconds int `mapstructure:"write_timeout_seconds" validate:"required,gt=0"`
}

// StorageConfig selects the ledger backend
type StorageConfig struct {
	Driver string `mapstructure:"driver" validate:"required,storagedriver"`
}

// DatabaseConfig represents database connection configuration
type DatabaseConfig struct {
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port" validate:"omitempty,min=1,max=65535"`
	Name               string `mapstructure:"name"`
	User               string `mapstructure:"user"`
	Password           string `mapstructure:"password"`
	SSLMode            string `mapstructure:"ssl_mode" validate:"omitempty,oneof=disable require verify-full"`
	MaxConnections     int    `mapstructure:"max_connections" validate:"omitempty,gt=0"`
	MaxIdleConnections int    `mapstructure:"max_idle_connections" validate:"omitempty,gt=0"`
}

// ForecastConfig configures the grade regression service client
type ForecastConfig struct {
	URL             string  `mapstructure:"url" validate:"required,url"`
	Endpoint        string  `mapstructure:"endpoint" validate:"required"`
	TimeoutSeconds  int     `mapstructure:"timeout_seconds" validate:"required,gt=0,lte=30"`
	RetryAttempts   int     `mapstructure:"retry_attempts" validate:"gte=0,lte=5"`
	RateLimit       float64 `mapstructure:"rate_limit" validate:"required,gt=0"`
	CacheTTLSeconds int     `mapstructure:"cache_ttl_seconds" validate:"required,gt=0"`
	CacheMaxSize    int     `mapstructure:"cache_max_size" validate:"required,gt=0"`
}

// SettlementConfig configures the escrow gateway
type SettlementConfig struct {
	URL            string `mapstructure:"url" validate:"required,url"`
	AdminKey       string `mapstructure:"admin_key"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" validate:"required,gt=0,lte=60"`
}

// MarketConfig holds the fixed market policy values
type MarketConfig struct {
	NativePerUnit float64 `mapstructure:"native_per_unit" validate:"required,gt=0"`
	MaxStake      float64 `mapstructure:"max_stake" validate:"gte=0"`
}

// CacheConfig configures the redis odds cache
type CacheConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Addr       string `mapstructure:"addr" validate:"required_if=Enabled true"`
	Password   string `mapstructure:"password"`
	DB         int    `mapstructure:"db" validate:"gte=0"`
	TTLSeconds int    `mapstructure:"ttl_seconds" validate:"gte=0"`
}

// EventsConfig configures kafka event publishing
type EventsConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers" validate:"required_if=Enabled true"`
	Topic   string   `mapstructure:"topic" validate:"required_if=Enabled true"`
}

// MetricsConfig represents metrics and monitoring configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port" validate:"required,min=1,max=65535"`
	Path    string `mapstructure:"path" validate:"required"`
}

// ReconcilerConfig configures the pending settlement sweep
type ReconcilerConfig struct {
	Schedule string `mapstructure:"schedule" validate:"omitempty,cronspec"`
}

// IsDevelopment checks if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsProduction checks if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// UsesPostgres reports whether the ledger is backed by PostgreSQL
func (c *Config) UsesPostgres() bool {
	return c.Storage.Driver == "postgres"
}

// GetDatabaseDSN returns a PostgreSQL DSN string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// Timeout returns the bound applied to every forecast call
func (c *ForecastConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Timeout returns the bound applied to every settlement call
func (c *SettlementConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// NativeRate returns the stake-to-native conversion factor
func (m *MarketConfig) NativeRate() decimal.Decimal {
	return decimal.NewFromFloat(m.NativePerUnit)
}

// MaxStakeAmount returns the stake ceiling, zero when disabled
func (m *MarketConfig) MaxStakeAmount() decimal.Decimal {
	return decimal.NewFromFloat(m.MaxStake)
}
