package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	errs "venue-intel-pipeline/pkg/errors"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation error for field '%s' with value '%s': %s", e.Field, e.Value, e.Message)
}

// ConfigValidator handles configuration validation
type ConfigValidator struct {
	errors []ValidationError
}

// NewConfigValidator creates a new configuration validator
func NewConfigValidator() *ConfigValidator {
	return &ConfigValidator{
		errors: make([]ValidationError, 0),
	}
}

// AddError adds a validation error
func (cv *ConfigValidator) AddError(field, value, message string) {
	cv.errors = append(cv.errors, ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	})
}

// HasErrors returns true if there are validation errors
func (cv *ConfigValidator) HasErrors() bool {
	return len(cv.errors) > 0
}

// GetErrors returns all validation errors
func (cv *ConfigValidator) GetErrors() []ValidationError {
	return cv.errors
}

// GetErrorsAsString returns all validation errors as a formatted string
func (cv *ConfigValidator) GetErrorsAsString() string {
	var errorStrings []string
	for _, err := range cv.errors {
		errorStrings = append(errorStrings, err.Error())
	}
	return strings.Join(errorStrings, "\n")
}

// Validate validates the entire configuration
func (c *Config) Validate() error {
	validator := NewConfigValidator()

	c.validateRequired(validator)
	c.validateFormats(validator)
	c.validateRanges(validator)
	c.validatePipeline(validator)

	if validator.HasErrors() {
		return errs.NewConfig("config.Validate", fmt.Sprintf("configuration validation failed:\n%s", validator.GetErrorsAsString()), nil)
	}

	return nil
}

// validateRequired checks required configuration fields
func (c *Config) validateRequired(validator *ConfigValidator) {
	if c.DatabaseURL == "" {
		validator.AddError("DATABASE_URL", c.DatabaseURL, "database URL is required")
	}
	if c.DataDir == "" {
		validator.AddError("DATA_DIR", c.DataDir, "data directory is required")
	}
	// GOOGLE_MAPS_API_KEY is only needed when seeding; checked by the seed
	// command, not here, so nightly runs work without it. OPENAI_API_KEY is
	// likewise optional: without it the extract step records a skip.
}

// validateFormats checks format validity of configuration values
func (c *Config) validateFormats(validator *ConfigValidator) {
	if c.DatabaseURL != "" {
		if !strings.Contains(c.DatabaseURL, "@") || !strings.Contains(c.DatabaseURL, "/") {
			validator.AddError("DATABASE_URL", c.DatabaseURL, "invalid database URL format")
		}
	}

	if c.Port != "" {
		if port, err := strconv.Atoi(c.Port); err != nil || port < 1 || port > 65535 {
			validator.AddError("PORT", c.Port, "invalid port number (must be 1-65535)")
		}
	}

	validLogLevels := []string{"debug", "info", "warn", "error", "fatal"}
	if c.LogLevel != "" && !contains(validLogLevels, strings.ToLower(c.LogLevel)) {
		validator.AddError("LOG_LEVEL", c.LogLevel, "invalid log level (must be one of: debug, info, warn, error, fatal)")
	}

	if c.LogFormat != "" && c.LogFormat != "json" && c.LogFormat != "text" {
		validator.AddError("LOG_FORMAT", c.LogFormat, "invalid log format (must be 'json' or 'text')")
	}

	if c.GooglePlacesEnabled != "" && c.GooglePlacesEnabled != "true" && c.GooglePlacesEnabled != "false" {
		validator.AddError("GOOGLE_PLACES_ENABLED", c.GooglePlacesEnabled, "must be exactly 'true' or 'false'")
	}

	if c.EnableFileLogging && c.LogFile != "" {
		if err := checkDirectoryWritable(c.LogFile); err != nil {
			validator.AddError("LOG_FILE", c.LogFile, fmt.Sprintf("log directory is not writable: %v", err))
		}
	}
}

// validateRanges checks value ranges
func (c *Config) validateRanges(validator *ConfigValidator) {
	if c.DBMaxOpenConns < 1 || c.DBMaxOpenConns > 1000 {
		validator.AddError("DB_MAX_OPEN_CONNS", strconv.Itoa(c.DBMaxOpenConns), "max open connections must be between 1 and 1000")
	}
	if c.DBMaxIdleConns < 0 || c.DBMaxIdleConns > c.DBMaxOpenConns {
		validator.AddError("DB_MAX_IDLE_CONNS", strconv.Itoa(c.DBMaxIdleConns), "max idle connections must be between 0 and max open connections")
	}
	if c.DBConnMaxLifetime < 1 || c.DBConnMaxLifetime > 60 {
		validator.AddError("DB_CONN_MAX_LIFETIME_MINUTES", strconv.Itoa(c.DBConnMaxLifetime), "connection max lifetime must be between 1 and 60 minutes")
	}
	if c.DBConnMaxIdleTime < 1 || c.DBConnMaxIdleTime > 30 {
		validator.AddError("DB_CONN_MAX_IDLE_TIME_MINUTES", strconv.Itoa(c.DBConnMaxIdleTime), "connection max idle time must be between 1 and 30 minutes")
	}
	if c.OpenAITemperature < 0 || c.OpenAITemperature > 0.3 {
		validator.AddError("OPENAI_TEMPERATURE", fmt.Sprintf("%v", c.OpenAITemperature), "extraction temperature must be between 0 and 0.3")
	}
}

// validatePipeline checks the budget and gate knobs.
func (c *Config) validatePipeline(validator *ConfigValidator) {
	p := c.Pipeline

	if p.MaxIncrementalFiles < 1 || p.MaxIncrementalFiles > 10000 {
		validator.AddError("maxIncrementalFiles", strconv.Itoa(p.MaxIncrementalFiles), "must be between 1 and 10000")
	}
	if p.PerURLTimeoutMs < 1000 || p.PerURLTimeoutMs > 120000 {
		validator.AddError("perUrlTimeoutMs", strconv.Itoa(p.PerURLTimeoutMs), "must be between 1000 and 120000")
	}
	if p.FetcherConcurrency < 1 || p.FetcherConcurrency > 100 {
		validator.AddError("fetcherConcurrency", strconv.Itoa(p.FetcherConcurrency), "must be between 1 and 100")
	}
	if p.ExtractorConcurrency < 1 || p.ExtractorConcurrency > 50 {
		validator.AddError("extractorConcurrency", strconv.Itoa(p.ExtractorConcurrency), "must be between 1 and 50")
	}
	if p.StaleRunThresholdMs < 60000 {
		validator.AddError("staleRunThresholdMs", strconv.Itoa(p.StaleRunThresholdMs), "must be at least 60000 (one minute)")
	}

	h := p.Heuristic
	if h.TLow < 0 || h.THigh > 1 || h.TLow >= h.THigh {
		validator.AddError("heuristic", fmt.Sprintf("tLow=%v tHigh=%v", h.TLow, h.THigh), "need 0 <= tLow < tHigh <= 1")
	}

	for _, cp := range p.CandidatePaths {
		if !strings.HasPrefix(cp, "/") {
			validator.AddError("candidatePaths", cp, "candidate paths must start with '/'")
		}
	}
}

// checkDirectoryWritable checks if a directory is writable
func checkDirectoryWritable(filePath string) error {
	dir := filePath
	if !strings.HasSuffix(filePath, "/") {
		lastSlash := strings.LastIndex(filePath, "/")
		if lastSlash > 0 {
			dir = filePath[:lastSlash]
		} else {
			dir = "."
		}
	}

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errs.NewConfig("config.checkDirectoryWritable", "cannot create directory", err)
		}
	}

	tempFile := fmt.Sprintf("%s/.write_test_%d", dir, os.Getpid())
	file, err := os.Create(tempFile)
	if err != nil {
		return errs.NewConfig("config.checkDirectoryWritable", "directory is not writable", err)
	}
	file.Close()
	os.Remove(tempFile)

	return nil
}

// contains checks if a slice contains a string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// GetConfigSummary returns a summary of the configuration (excluding sensitive data)
func (c *Config) GetConfigSummary() map[string]interface{} {
	return map[string]interface{}{
		"database_url":          maskString(c.DatabaseURL, 20),
		"google_maps_api_key":   maskString(c.GoogleMapsAPIKey, 10),
		"openai_api_key":        maskString(c.OpenAIAPIKey, 10),
		"port":                  c.Port,
		"data_dir":              c.DataDir,
		"google_places_enabled": c.GooglePlacesEnabled,
		"openai_model":          c.OpenAIModel,
		"log_level":             c.LogLevel,
		"log_format":            c.LogFormat,
		"max_incremental_files": c.Pipeline.MaxIncrementalFiles,
		"fetcher_concurrency":   c.Pipeline.FetcherConcurrency,
		"per_url_timeout_ms":    c.Pipeline.PerURLTimeoutMs,
		"heuristic_t_high":      c.Pipeline.Heuristic.THigh,
		"heuristic_t_low":       c.Pipeline.Heuristic.TLow,
	}
}

// maskString masks sensitive strings for logging/display
func maskString(s string, keepFirst int) string {
	if s == "" {
		return ""
	}
	if len(s) <= keepFirst {
		return strings.Repeat("*", len(s))
	}
	return s[:keepFirst] + strings.Repeat("*", len(s)-keepFirst)
}
