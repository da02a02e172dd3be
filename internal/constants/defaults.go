package constants

import "time"

// Centralized default values for timeouts, intervals, and related settings.
// These provide sane defaults; environment/config may override where supported.

const (
	// Database
	DBReadTimeoutDefault  = 8 * time.Second
	DBWriteTimeoutDefault = 6 * time.Second

	// Google Places (seeder)
	PlacesOperationTimeout  = 10 * time.Second
	PlacesOpenFor           = 30 * time.Second
	PlacesRequestTimeout    = 12 * time.Second
	PlacesSlowCallThreshold = 1500 * time.Millisecond

	// LLM extraction
	LLMRequestTimeoutDefault = 90 * time.Second
	LLMOperationTimeout      = 80 * time.Second
	LLMOpenFor               = 45 * time.Second
	LLMSlowCallThreshold     = 20 * time.Second
	LLMBackoffBase           = 2 * time.Second
	LLMBackoffCap            = 30 * time.Second

	// Fetcher
	FetchTimeoutDefault = 30 * time.Second
	FetchBackoffBase    = 500 * time.Millisecond
	FetchBackoffCap     = 8 * time.Second

	// Pipeline orchestration
	StageTimeoutDefault      = 30 * time.Minute
	StaleRunThresholdDefault = 2 * time.Hour
	DrainTimeoutDefault      = 10 * time.Second

	// Health
	HealthTimeoutDefault = 30 * time.Second

	// Curator roster watcher (serve mode)
	RosterWatchIntervalDefault = 2 * time.Second

	// Events journal SQL operations
	EventsSQLTimeoutDefault = 5 * time.Second
)
