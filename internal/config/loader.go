// Package config provides configuration management for the prop-edge delta
// pipeline.
package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

const envPrefix = "PROP_EDGE"

// Load reads and parses the configuration from file and environment
// variables. Environment variable placeholders in the YAML file (${VAR})
// are expanded before parsing.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found at %s: %w", configPath, err)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	v := newViper()
	if err := v.ReadConfig(bytes.NewBufferString(expanded)); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	return cfg, nil
}

// LoadWithDefaults loads configuration with default values for optional
// fields; the config file may be absent entirely.
func LoadWithDefaults(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	v := newViper()
	setDefaults(v)

	if data, err := os.ReadFile(configPath); err == nil {
		expanded := os.ExpandEnv(string(data))
		if err := v.ReadConfig(bytes.NewBufferString(expanded)); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	return cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "prop-edge")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")

	v.SetDefault("pipeline.supported_sports", []string{"NBA"})
	v.SetDefault("pipeline.valuation_change_threshold", 0.01)
	v.SetDefault("pipeline.edge_significance_threshold", 0.01)
	v.SetDefault("pipeline.optimization_interval_seconds", 30)
	v.SetDefault("pipeline.batch_delay_seconds", 5)
	v.SetDefault("pipeline.max_props", 10)
	v.SetDefault("pipeline.min_edge", 0.02)
	v.SetDefault("pipeline.max_exposure", 1000.0)
	v.SetDefault("pipeline.self_trigger_dependents", false)
	v.SetDefault("pipeline.valuation_ttl_minutes", 0)

	v.SetDefault("ingestion.poll_interval_seconds", 15)
	v.SetDefault("ingestion.sweep_schedule", "0 6 * * *")

	v.SetDefault("provider.timeout_seconds", 30)
	v.SetDefault("provider.max_retries", 5)
	v.SetDefault("provider.rate_limit", 10.0)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("health.port", "8080")
}
