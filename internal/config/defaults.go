package config

import "time"

// defaultModels maps each provider to the model the wizard proposes.
var defaultModels = map[ProviderType]string{
	ProviderAnthropic:  "claude-sonnet-4-5-20250929",
	ProviderOpenAI:     "gpt-4o-mini",
	ProviderGoogle:     "gemini-2.5-flash",
	ProviderOllama:     "llama3.1",
	ProviderOpenRouter: "openai/gpt-4o-mini",
	ProviderMiniMax:    "MiniMax-M2.5",
}

// DefaultModel returns the suggested model for a provider.
func DefaultModel(p ProviderType) string {
	if m, ok := defaultModels[p]; ok {
		return m
	}
	return defaultModels[ProviderAnthropic]
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Provider:     ProviderAnthropic,
		Model:        DefaultModel(ProviderAnthropic),
		Extraction:   ExtractionHybrid,
		RateLimitRPM: 60,
		Rules: RulesConfig{
			Glob: "**/*.yaml",
		},
		Database: DatabaseConfig{
			Driver: DriverSQLite,
			Path:   ".auditq/auditq.db",
		},
		Timeouts: TimeoutConfig{
			RecordStore: 5 * time.Second,
			LLM:         10 * time.Second,
		},
		Retry: RetryConfig{
			Attempts:  2,
			BaseDelay: 200 * time.Millisecond,
		},
		Pseudonym: PseudonymConfig{
			Retention:     90 * 24 * time.Hour,
			PurgeInterval: time.Hour,
		},
		Limits: LimitsConfig{
			Listing: 100,
			Context: 40,
		},
		Server: ServerConfig{
			Port: 8080,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// DaysToDuration converts a retention window in days to a duration.
func DaysToDuration(days int) time.Duration {
	return time.Duration(days) * 24 * time.Hour
}
