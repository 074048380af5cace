package config

import "time"

// ProviderType identifies an LLM provider.
type ProviderType string

const (
	ProviderAnthropic  ProviderType = "anthropic"
	ProviderOpenAI     ProviderType = "openai"
	ProviderGoogle     ProviderType = "google"
	ProviderOllama     ProviderType = "ollama"
	ProviderOpenRouter ProviderType = "openrouter"
	ProviderMiniMax    ProviderType = "minimax"
)

// DatabaseDriver selects the backing store for findings and pseudonym mappings.
type DatabaseDriver string

const (
	DriverSQLite   DatabaseDriver = "sqlite"
	DriverPostgres DatabaseDriver = "postgres"
)

// ExtractionMode controls whether filter extraction consults the LLM.
type ExtractionMode string

const (
	ExtractionRules  ExtractionMode = "rules"
	ExtractionHybrid ExtractionMode = "hybrid"
)

// Config is the top-level auditq configuration, corresponding to .auditq.yml.
type Config struct {
	Provider         ProviderType    `yaml:"provider" koanf:"provider"`
	Model            string          `yaml:"model" koanf:"model"`
	FallbackProvider ProviderType    `yaml:"fallback_provider" koanf:"fallback_provider"`
	FallbackModel    string          `yaml:"fallback_model" koanf:"fallback_model"`
	Extraction       ExtractionMode  `yaml:"extraction" koanf:"extraction"`
	RateLimitRPM     int             `yaml:"rate_limit_rpm" koanf:"rate_limit_rpm"`
	SchemaFile       string          `yaml:"schema_file" koanf:"schema_file"`
	Rules            RulesConfig     `yaml:"rules" koanf:"rules"`
	Database         DatabaseConfig  `yaml:"database" koanf:"database"`
	Timeouts         TimeoutConfig   `yaml:"timeouts" koanf:"timeouts"`
	Retry            RetryConfig     `yaml:"retry" koanf:"retry"`
	Pseudonym        PseudonymConfig `yaml:"pseudonym" koanf:"pseudonym"`
	Limits           LimitsConfig    `yaml:"limits" koanf:"limits"`
	Server           ServerConfig    `yaml:"server" koanf:"server"`
	Log              LogConfig       `yaml:"log" koanf:"log"`
}

// RulesConfig points at optional override tables for the built-in rule sets.
type RulesConfig struct {
	Dir  string `yaml:"dir" koanf:"dir"`
	Glob string `yaml:"glob" koanf:"glob"`
}

// DatabaseConfig holds record store settings.
type DatabaseConfig struct {
	Driver DatabaseDriver `yaml:"driver" koanf:"driver"`
	Path   string         `yaml:"path" koanf:"path"`
	DSN    string         `yaml:"dsn" koanf:"dsn"`
}

// TimeoutConfig bounds each attempt against an external collaborator.
type TimeoutConfig struct {
	RecordStore time.Duration `yaml:"record_store" koanf:"record_store"`
	LLM         time.Duration `yaml:"llm" koanf:"llm"`
}

// RetryConfig controls the backoff used for record store and LLM calls.
type RetryConfig struct {
	Attempts  int           `yaml:"attempts" koanf:"attempts"`
	BaseDelay time.Duration `yaml:"base_delay" koanf:"base_delay"`
}

// PseudonymConfig controls mapping retention.
type PseudonymConfig struct {
	Retention     time.Duration `yaml:"retention" koanf:"retention"`
	PurgeInterval time.Duration `yaml:"purge_interval" koanf:"purge_interval"`
}

// LimitsConfig caps how many records are listed or sent as context.
type LimitsConfig struct {
	Listing int `yaml:"listing" koanf:"listing"`
	Context int `yaml:"context" koanf:"context"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port     int  `yaml:"port" koanf:"port"`
	AllowAll bool `yaml:"allow_all" koanf:"allow_all"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `yaml:"level" koanf:"level"`
	Format string `yaml:"format" koanf:"format"`
}
