package constants

// Centralized threshold values used across the application.
// Keep these stable; change deliberately and document why.
// These are not configuration knobs; use pkg/config for env-driven settings.

const (
	// Review confidence tiers (0.0 - 1.0). At or above the high tier an
	// extraction is accepted as-is; between the tiers it goes to LLM review;
	// below the low tier it is rejected outright.
	ReviewHighConfidenceDefault = 0.75
	ReviewLowConfidenceDefault  = 0.40

	// Heuristic confidence weights
	WeightTimes       = 0.30
	WeightDays        = 0.20
	WeightLabelMax    = 0.20
	WeightSpecialsMax = 0.20
	PenaltyNegative   = 0.40

	// Extraction budget
	MaxIncrementalFilesDefault  = 100
	VenueTextCapBytes           = 24 * 1024
	LLMRepairAttempts           = 1
	LLMMaxAttempts              = 3 // initial call plus two transient retries
	ExtractorConcurrencyDefault = 2 // provider quota headroom; keep small

	// Fetch limits
	FetchBodyCapBytes         = 512 * 1024
	FetchMinBodyBytes         = 512 // probed paths below this are soft 404s
	PageTextCapBytes          = 50 * 1024
	FetcherConcurrencyDefault = 10
	FetchMaxAttempts          = 3
	PerHostRPSDefault         = 2
	PerHostBurstDefault       = 2
	PerHostInFlight           = 2

	// Seeder limits
	SeederConcurrencyDefault     = 5
	SeederDailyRequestCapDefault = 500

	// Retention
	BackupRetainDefault  = 7
	ArchiveRetainDefault = 14

	// Content addressing
	URLHashHexLen    = 12
	SourceHashHexLen = 16

	// Circuit breaker rate thresholds
	CircuitFailureRate     = 0.6 // default for external HTTP
	CircuitSlowCallRate    = 0.7
	LLMCircuitFailureRate  = 0.5
	LLMCircuitSlowCallRate = 0.5
)
