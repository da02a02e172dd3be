package config

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"venue-intel-pipeline/internal/constants"
	errs "venue-intel-pipeline/pkg/errors"
)

// Heuristic holds the confidence tiers used by the reviewer.
type Heuristic struct {
	THigh float64 `json:"tHigh"`
	TLow  float64 `json:"tLow"`
}

// Pipeline enumerates every budget and gate knob the stages read. Loaded
// once at startup (defaults, then data/config/config.json overlay, then env
// overrides); hot paths only ever touch this struct, never raw env or maps.
type Pipeline struct {
	MaxIncrementalFiles  int       `json:"maxIncrementalFiles"`
	PerURLTimeoutMs      int       `json:"perUrlTimeoutMs"`
	FetcherConcurrency   int       `json:"fetcherConcurrency"`
	ExtractorConcurrency int       `json:"extractorConcurrency"`
	StaleRunThresholdMs  int       `json:"staleRunThresholdMs"`
	NormalizerRules      []string  `json:"normalizerRules"`
	Heuristic            Heuristic `json:"heuristic"`
	CandidatePaths       []string  `json:"candidatePaths"`
}

// PerURLTimeout returns the fetch timeout as a duration.
func (p Pipeline) PerURLTimeout() time.Duration {
	return time.Duration(p.PerURLTimeoutMs) * time.Millisecond
}

// StaleRunThreshold returns the stale-run cutoff as a duration.
func (p Pipeline) StaleRunThreshold() time.Duration {
	return time.Duration(p.StaleRunThresholdMs) * time.Millisecond
}

// DefaultPipeline returns the built-in knob values.
func DefaultPipeline() Pipeline {
	return Pipeline{
		MaxIncrementalFiles:  constants.MaxIncrementalFilesDefault,
		PerURLTimeoutMs:      int(constants.FetchTimeoutDefault / time.Millisecond),
		FetcherConcurrency:   constants.FetcherConcurrencyDefault,
		ExtractorConcurrency: constants.ExtractorConcurrencyDefault,
		StaleRunThresholdMs:  int(constants.StaleRunThresholdDefault / time.Millisecond),
		NormalizerRules:      nil, // nil = all rules
		Heuristic: Heuristic{
			THigh: constants.ReviewHighConfidenceDefault,
			TLow:  constants.ReviewLowConfidenceDefault,
		},
		CandidatePaths: append([]string(nil), constants.DefaultCandidatePaths...),
	}
}

type Config struct {
	DatabaseURL      string
	GoogleMapsAPIKey string
	OpenAIAPIKey     string
	Port             string

	// On-disk hierarchy root (raw/, silver_merged/, silver_trimmed/, gold/,
	// config/, reporting/ live under it)
	DataDir string

	// Seeder enablement; must be the exact string "true" to arm the seeder
	GooglePlacesEnabled string

	// Curator roster for the curation bridge
	CuratorsPath string

	// Database performance settings
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime int // minutes
	DBConnMaxIdleTime int // minutes
	DBReadTimeout     time.Duration
	DBWriteTimeout    time.Duration

	// OpenAI client settings
	OpenAIModel       string
	OpenAITemperature float64
	OpenAIMaxTokens   int
	OpenAITimeout     time.Duration

	// Monitoring and logging settings
	LogLevel          string
	LogFormat         string // "json" or "text"
	LogFile           string
	EnableFileLogging bool

	// Environment & profiling/metrics
	Env              string // development, staging, production
	ProfilingEnabled bool
	ProfilingPort    string
	MetricsEnabled   bool
	MetricsPath      string

	// Prompts templates overrides
	PromptDir string // path to external templates dir; empty = use embedded only

	ConfigReloadIntervalSeconds int

	// Pipeline budget and gate knobs
	Pipeline Pipeline
}

func Load() *Config {
	// Database performance settings with defaults
	dbMaxOpenConns, _ := strconv.Atoi(getEnv("DB_MAX_OPEN_CONNS", "25"))
	dbMaxIdleConns, _ := strconv.Atoi(getEnv("DB_MAX_IDLE_CONNS", "10"))
	dbConnMaxLifetime, _ := strconv.Atoi(getEnv("DB_CONN_MAX_LIFETIME_MINUTES", "10"))
	dbConnMaxIdleTime, _ := strconv.Atoi(getEnv("DB_CONN_MAX_IDLE_TIME_MINUTES", "5"))

	enableFileLogging, _ := strconv.ParseBool(getEnv("ENABLE_FILE_LOGGING", "false"))

	env := strings.ToLower(getEnv("ENV", "development"))
	profPort := getEnv("PROFILING_PORT", "6060")
	metricsPath := getEnv("METRICS_PATH", "/metrics")

	// Default toggles based on env
	profilingDefault := env == "development" || env == "staging"
	profilingEnabled, _ := strconv.ParseBool(getEnv("PROFILING_ENABLED", strconv.FormatBool(profilingDefault)))
	metricsEnabled, _ := strconv.ParseBool(getEnv("METRICS_ENABLED", "true"))

	// Timeouts
	dbReadTO, _ := time.ParseDuration(getEnv("DB_READ_TIMEOUT", "8s"))
	dbWriteTO, _ := time.ParseDuration(getEnv("DB_WRITE_TIMEOUT", "6s"))

	// OpenAI config
	openAIModel := getEnv("OPENAI_MODEL", "gpt-4o-mini")
	openAITemp, _ := strconv.ParseFloat(getEnv("OPENAI_TEMPERATURE", "0.2"), 64)
	openAIMaxTokens, _ := strconv.Atoi(getEnv("OPENAI_MAX_TOKENS", "1200"))
	openAIReqTimeoutSec, _ := strconv.Atoi(getEnv("OPENAI_REQUEST_TIMEOUT_SECONDS", "90"))

	reloadIntSec, _ := strconv.Atoi(getEnv("CONFIG_RELOAD_INTERVAL_SECONDS", "2"))

	cfg := &Config{
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		GoogleMapsAPIKey: getEnv("GOOGLE_MAPS_API_KEY", ""),
		OpenAIAPIKey:     getEnv("OPENAI_API_KEY", ""),
		Port:             getEnv("PORT", "8080"),

		DataDir:             getEnv("DATA_DIR", "./data"),
		GooglePlacesEnabled: getEnv("GOOGLE_PLACES_ENABLED", ""),
		CuratorsPath:        getEnv("CURATORS_YAML_PATH", "./curators.yaml"),

		DBMaxOpenConns:    dbMaxOpenConns,
		DBMaxIdleConns:    dbMaxIdleConns,
		DBConnMaxLifetime: dbConnMaxLifetime,
		DBConnMaxIdleTime: dbConnMaxIdleTime,
		DBReadTimeout:     dbReadTO,
		DBWriteTimeout:    dbWriteTO,

		OpenAIModel:       openAIModel,
		OpenAITemperature: openAITemp,
		OpenAIMaxTokens:   openAIMaxTokens,
		OpenAITimeout:     time.Duration(openAIReqTimeoutSec) * time.Second,

		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogFormat:         getEnv("LOG_FORMAT", "json"),
		LogFile:           getEnv("LOG_FILE", "./logs/pipeline.log"),
		EnableFileLogging: enableFileLogging,

		Env:              env,
		ProfilingEnabled: profilingEnabled,
		ProfilingPort:    profPort,
		MetricsEnabled:   metricsEnabled,
		MetricsPath:      metricsPath,

		PromptDir: getEnv("PROMPT_DIR", ""),

		ConfigReloadIntervalSeconds: reloadIntSec,

		Pipeline: DefaultPipeline(),
	}

	if err := cfg.loadPipelineFile(); err != nil {
		log.Printf("[Warning] pipeline config file ignored: %v", err)
	}
	cfg.applyPipelineEnv()

	return cfg
}

// loadPipelineFile overlays data/config/config.json onto the defaults.
// A missing file is fine; a present but unreadable one is reported so a
// typo'd knob file never silently falls back to defaults.
func (c *Config) loadPipelineFile() error {
	path := filepath.Join(c.DataDir, "config", "config.json")
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errs.NewConfig("config.loadPipelineFile", "cannot read pipeline config", err)
	}
	if err := json.Unmarshal(data, &c.Pipeline); err != nil {
		return errs.NewConfig("config.loadPipelineFile", "cannot parse pipeline config", err)
	}
	return nil
}

// applyPipelineEnv lets individual knobs be forced from the environment,
// mostly for tests and one-off operator runs.
func (c *Config) applyPipelineEnv() {
	if v := os.Getenv("MAX_INCREMENTAL_FILES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Pipeline.MaxIncrementalFiles = n
		}
	}
	if v := os.Getenv("FETCHER_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Pipeline.FetcherConcurrency = n
		}
	}
	if v := os.Getenv("PER_URL_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Pipeline.PerURLTimeoutMs = n
		}
	}
}

// SeederArmed reports whether the environment side of the two-signal seeder
// gate is satisfied. The flag must be exactly "true"; "1", "TRUE" and
// friends deliberately do not count.
func (c *Config) SeederArmed() bool {
	return c.GooglePlacesEnabled == "true"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
