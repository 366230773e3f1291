package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:        "prop-edge",
			Environment: "development",
			LogLevel:    "info",
		},
		Pipeline: PipelineConfig{
			SupportedSports:             []string{"NBA"},
			ValuationChangeThreshold:    0.01,
			EdgeSignificanceThreshold:   0.01,
			OptimizationIntervalSeconds: 30,
			BatchDelaySeconds:           5,
			MaxProps:                    10,
			MinEdge:                     0.02,
			MaxExposure:                 1000.0,
		},
	}
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadWithDefaultsMissingFile(t *testing.T) {
	cfg, err := LoadWithDefaults(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "prop-edge", cfg.App.Name)
	assert.Equal(t, "development", cfg.App.Environment)
	assert.Equal(t, []string{"NBA"}, cfg.Pipeline.SupportedSports)
	assert.Equal(t, 30, cfg.Pipeline.OptimizationIntervalSeconds)
	assert.Equal(t, 5, cfg.Pipeline.BatchDelaySeconds)
	assert.Equal(t, 10, cfg.Pipeline.MaxProps)
	assert.Equal(t, 0.02, cfg.Pipeline.MinEdge)
	assert.Equal(t, 1000.0, cfg.Pipeline.MaxExposure)
	assert.False(t, cfg.Pipeline.SelfTriggerDependents)
	assert.Equal(t, 15, cfg.Ingestion.PollIntervalSeconds)
	assert.Equal(t, "0 6 * * *", cfg.Ingestion.SweepSchedule)
	assert.Equal(t, 9090, cfg.Metrics.Port)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, "8080", cfg.Health.Port)

	require.NoError(t, Validate(cfg))
}

func TestLoadWithDefaultsFileOverrides(t *testing.T) {
	path := writeConfigFile(t, `
app:
  environment: production
pipeline:
  optimization_interval_seconds: 60
  max_props: 5
`)

	cfg, err := LoadWithDefaults(path)
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.App.Environment)
	assert.Equal(t, 60, cfg.Pipeline.OptimizationIntervalSeconds)
	assert.Equal(t, 5, cfg.Pipeline.MaxProps)
	// Untouched fields keep default values
	assert.Equal(t, 5, cfg.Pipeline.BatchDelaySeconds)
}

func TestLoadExpandsEnvPlaceholders(t *testing.T) {
	t.Setenv("TEST_PROVIDER_KEY", "secret-key")

	path := writeConfigFile(t, `
app:
  name: prop-edge
  environment: development
  log_level: info
provider:
  api_key: ${TEST_PROVIDER_KEY}
pipeline:
  supported_sports: [NBA]
  valuation_change_threshold: 0.01
  edge_significance_threshold: 0.01
  optimization_interval_seconds: 30
  batch_delay_seconds: 5
  max_props: 10
  min_edge: 0.02
  max_exposure: 1000.0
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "secret-key", cfg.Provider.APIKey)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidateRejectsBadEnvironment(t *testing.T) {
	cfg := validConfig()
	cfg.App.Environment = "qa"
	assert.Error(t, Validate(cfg))
}

func TestValidateRejectsBadLogLevel(t *testing.T) {
	cfg := validConfig()
	cfg.App.LogLevel = "verbose"
	assert.Error(t, Validate(cfg))
}

func TestValidateRequiresDatabaseFieldsWhenEnabled(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Enabled = true
	assert.Error(t, Validate(cfg))

	cfg.Database.Host = "localhost"
	cfg.Database.Port = 5432
	cfg.Database.Name = "prop_edge"
	cfg.Database.User = "app"
	assert.NoError(t, Validate(cfg))
}

func TestValidateBatchDelayMustBeShorterThanInterval(t *testing.T) {
	cfg := validConfig()
	cfg.Pipeline.BatchDelaySeconds = 30

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch_delay_seconds")
}

func TestValidateMinEdgeMustExceedSignificance(t *testing.T) {
	cfg := validConfig()
	cfg.Pipeline.MinEdge = 0.01

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "min_edge")
}

func TestValidateIngestionNeedsProviderURL(t *testing.T) {
	cfg := validConfig()
	cfg.Ingestion.Enabled = true

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base_url")

	cfg.Provider.BaseURL = "https://api.example.com"
	assert.NoError(t, Validate(cfg))
}

func TestPipelineDurationHelpers(t *testing.T) {
	p := &PipelineConfig{
		OptimizationIntervalSeconds: 30,
		BatchDelaySeconds:           5,
		ValuationTTLMinutes:         90,
	}

	assert.Equal(t, 30*time.Second, p.OptimizationInterval())
	assert.Equal(t, 5*time.Second, p.BatchDelay())
	assert.Equal(t, 90*time.Minute, p.ValuationTTL())
}

func TestDatabaseDSN(t *testing.T) {
	cfg := validConfig()
	cfg.Database = DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		Name:     "prop_edge",
		User:     "app",
		Password: "pw",
		SSLMode:  "disable",
	}

	assert.Equal(t, "postgres://app:pw@localhost:5432/prop_edge?sslmode=disable", cfg.GetDatabaseDSN())
}
