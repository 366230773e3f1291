// Package config provides configuration management for the prop-edge delta
// pipeline.
package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// CustomValidator wraps the validator with custom validation rules
type CustomValidator struct {
	validator *validator.Validate
}

// NewValidator creates a new validator with custom validation functions
func NewValidator() *CustomValidator {
	v := validator.New()

	// Registration only fails for empty tags, so errors are ignored here
	_ = v.RegisterValidation("environment", validateEnvironment)
	_ = v.RegisterValidation("loglevel", validateLogLevel)

	return &CustomValidator{validator: v}
}

// Validate validates the entire configuration
func Validate(cfg *Config) error {
	cv := NewValidator()
	return cv.Validate(cfg)
}

// Validate validates the configuration using registered validation rules
func (cv *CustomValidator) Validate(cfg *Config) error {
	err := cv.validator.Struct(cfg)
	if err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			return formatValidationErrors(validationErrors)
		}
		return fmt.Errorf("validation failed: %w", err)
	}

	return validateCrossField(cfg)
}

// validateEnvironment validates the environment field
func validateEnvironment(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "development", "staging", "production":
		return true
	default:
		return false
	}
}

// validateLogLevel validates the log level field
func validateLogLevel(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

// validateCrossField performs cross-field validations
func validateCrossField(cfg *Config) error {
	if cfg.Pipeline.BatchDelaySeconds >= cfg.Pipeline.OptimizationIntervalSeconds {
		return fmt.Errorf(
			"pipeline.batch_delay_seconds (%d) must be shorter than pipeline.optimization_interval_seconds (%d)",
			cfg.Pipeline.BatchDelaySeconds, cfg.Pipeline.OptimizationIntervalSeconds,
		)
	}

	if cfg.Pipeline.MinEdge <= cfg.Pipeline.EdgeSignificanceThreshold {
		return fmt.Errorf(
			"pipeline.min_edge (%.4f) must exceed pipeline.edge_significance_threshold (%.4f)",
			cfg.Pipeline.MinEdge, cfg.Pipeline.EdgeSignificanceThreshold,
		)
	}

	if cfg.Ingestion.Enabled && cfg.Provider.BaseURL == "" && !cfg.Ingestion.StreamEnabled {
		return fmt.Errorf("ingestion is enabled but provider.base_url is not set")
	}

	return nil
}

// formatValidationErrors converts validator errors into a readable message
func formatValidationErrors(errs validator.ValidationErrors) error {
	msgs := make([]string, 0, len(errs))
	for _, fe := range errs {
		msgs = append(msgs, fmt.Sprintf("%s failed on '%s'", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}
