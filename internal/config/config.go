// Package config provides configuration management for the prop-edge delta
// pipeline.
package config

import (
	"fmt"
	"time"
)

// Config represents the complete application configuration
type Config struct {
	App       AppConfig       `mapstructure:"app" validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Provider  ProviderConfig  `mapstructure:"provider"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline" validate:"required"`
	Ingestion IngestionConfig `mapstructure:"ingestion"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Health    HealthConfig    `mapstructure:"health"`
}

// AppConfig represents application-level configuration
type AppConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	Environment string `mapstructure:"environment" validate:"required,environment"`
	LogLevel    string `mapstructure:"log_level" validate:"required,loglevel"`
}

// DatabaseConfig represents the optional PostgreSQL backing store. When
// disabled the pipeline runs against in-memory stores.
type DatabaseConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Host           string `mapstructure:"host" validate:"required_if=Enabled true"`
	Port           int    `mapstructure:"port" validate:"omitempty,min=1,max=65535"`
	Name           string `mapstructure:"name" validate:"required_if=Enabled true"`
	User           string `mapstructure:"user" validate:"required_if=Enabled true"`
	Password       string `mapstructure:"password"`
	SSLMode        string `mapstructure:"ssl_mode" validate:"omitempty,oneof=disable require verify-full"`
	MaxConnections int    `mapstructure:"max_connections" validate:"omitempty,gt=0"`
}

// RedisConfig represents the optional Redis event bus. When disabled the
// pipeline runs on the in-process bus.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr" validate:"required_if=Enabled true"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"gte=0"`
}

// ProviderConfig represents the upstream market data provider
type ProviderConfig struct {
	Name           string  `mapstructure:"name"`
	BaseURL        string  `mapstructure:"base_url" validate:"omitempty,url"`
	StreamURL      string  `mapstructure:"stream_url"`
	APIKey         string  `mapstructure:"api_key"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds" validate:"omitempty,gt=0"`
	MaxRetries     int     `mapstructure:"max_retries" validate:"gte=0"`
	RateLimit      float64 `mapstructure:"rate_limit" validate:"omitempty,gt=0"`
}

// PipelineConfig represents the delta pipeline tuning knobs
type PipelineConfig struct {
	SupportedSports             []string `mapstructure:"supported_sports" validate:"required,min=1"`
	ValuationChangeThreshold    float64  `mapstructure:"valuation_change_threshold" validate:"required,gt=0"`
	EdgeSignificanceThreshold   float64  `mapstructure:"edge_significance_threshold" validate:"required,gt=0"`
	OptimizationIntervalSeconds int      `mapstructure:"optimization_interval_seconds" validate:"required,gt=0"`
	BatchDelaySeconds           int      `mapstructure:"batch_delay_seconds" validate:"required,gt=0"`
	MaxProps                    int      `mapstructure:"max_props" validate:"required,gt=0"`
	MinEdge                     float64  `mapstructure:"min_edge" validate:"required,gt=0"`
	MaxExposure                 float64  `mapstructure:"max_exposure" validate:"required,gt=0"`
	SelfTriggerDependents       bool     `mapstructure:"self_trigger_dependents"`
	ValuationTTLMinutes         int      `mapstructure:"valuation_ttl_minutes" validate:"gte=0"`
}

// IngestionConfig represents market data ingestion scheduling
type IngestionConfig struct {
	Enabled             bool   `mapstructure:"enabled"`
	PollIntervalSeconds int    `mapstructure:"poll_interval_seconds" validate:"omitempty,gt=0"`
	StreamEnabled       bool   `mapstructure:"stream_enabled"`
	SweepSchedule       string `mapstructure:"sweep_schedule"`
}

// MetricsConfig represents metrics and monitoring configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port" validate:"omitempty,min=1,max=65535"`
	Path    string `mapstructure:"path"`
}

// HealthConfig represents the health check server configuration
type HealthConfig struct {
	Port string `mapstructure:"port"`
}

// IsDevelopment checks if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsProduction checks if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
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

// OptimizationInterval returns the minimum interval between portfolio
// optimizations
func (c *PipelineConfig) OptimizationInterval() time.Duration {
	return time.Duration(c.OptimizationIntervalSeconds) * time.Second
}

// BatchDelay returns the batch timer delay for deferred optimizations
func (c *PipelineConfig) BatchDelay() time.Duration {
	return time.Duration(c.BatchDelaySeconds) * time.Second
}

// ValuationTTL returns how long in-memory valuations are retained; zero
// means no expiry
func (c *PipelineConfig) ValuationTTL() time.Duration {
	return time.Duration(c.ValuationTTLMinutes) * time.Minute
}
