package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Model roles used as keys of NLPConfig.Models.
const (
	ModelExtraction = "extraction"
	ModelEmbedding  = "embedding"
)

// Config holds all configuration for the application
type Config struct {
	// Log configuration
	Log LogConfig `mapstructure:"log"`

	// Database configuration (graph store)
	Database DatabaseConfig `mapstructure:"database"`

	// NLP configuration
	NLP NLPConfig `mapstructure:"nlp"`

	// Resolver configuration (entity resolution store)
	Resolver ResolverConfig `mapstructure:"resolver"`

	// Extraction configuration (chunking, prompt rules, parsing)
	Extraction ExtractionConfig `mapstructure:"extraction"`

	// Pipeline configuration (concurrency, ledger)
	Pipeline PipelineConfig `mapstructure:"pipeline"`

	// Telemetry configuration
	Telemetry TelemetryConfig `mapstructure:"telemetry"`

	// Retry configuration for model calls
	Retry RetryConfig `mapstructure:"retry"`

	// CircuitBreaker configuration
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
}

// CircuitBreakerConfig holds configuration for circuit breaking
type CircuitBreakerConfig struct {
	Enabled          bool    `mapstructure:"enabled"`
	MaxRequests      uint32  `mapstructure:"max_requests"`
	Interval         int     `mapstructure:"interval"` // in seconds
	Timeout          int     `mapstructure:"timeout"`  // in seconds
	ReadyToTripRatio float64 `mapstructure:"ready_to_trip_ratio"`
}

// RetryConfig holds configuration for retrying transient model failures
type RetryConfig struct {
	MaxRetries        int           `mapstructure:"max_retries"`
	InitialDelay      time.Duration `mapstructure:"initial_delay"`
	MaxDelay          time.Duration `mapstructure:"max_delay"`
	BackoffMultiplier float64       `mapstructure:"backoff_multiplier"`
}

// TelemetryConfig holds telemetry configuration
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ParquetPath string `mapstructure:"parquet_path"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"`
	// File, when set, tees log output to a rotating file.
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// DatabaseConfig holds graph database configuration
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"` // neo4j, memory
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

// NLPConfig holds NLP configuration
type NLPConfig struct {
	// Models is a map of model configurations keyed by role ("extraction", "embedding")
	Models map[string]NLPModelConfig `mapstructure:"models"`
}

// NLPModelConfig holds configuration for a specific model
type NLPModelConfig struct {
	Provider    string  `mapstructure:"provider"` // openai, ollama, gemini, anthropic
	Model       string  `mapstructure:"model"`
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	Temperature float32 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	// MaxConcurrent caps in-flight requests for providers that run locally.
	MaxConcurrent int `mapstructure:"max_concurrent"`
	// Dimensions is the embedding width; only used by embedding models.
	Dimensions int `mapstructure:"dimensions"`
}

// ResolverConfig holds entity resolution configuration
type ResolverConfig struct {
	Backend   string  `mapstructure:"backend"` // badger, sqlitevec, memory
	Path      string  `mapstructure:"path"`
	Threshold float64 `mapstructure:"threshold"`
	CacheSize int     `mapstructure:"cache_size"`
}

// ExtractionConfig holds chunking and extraction configuration
type ExtractionConfig struct {
	MaxChars   int           `mapstructure:"max_chars"`
	MinContent int           `mapstructure:"min_content"`
	Boundaries bool          `mapstructure:"boundaries"`
	Timeout    time.Duration `mapstructure:"timeout"`
	RepairJSON bool          `mapstructure:"repair_json"`
	Rules      RulesConfig   `mapstructure:"rules"`
}

// RulesConfig holds relationship validation rules
type RulesConfig struct {
	// PassivePolicy is "rewrite" or "reject".
	PassivePolicy string `mapstructure:"passive_policy"`
	// Vocabulary, when non-empty, is the closed set of accepted relationship types.
	Vocabulary []string `mapstructure:"vocabulary"`
	// Inversions maps extra non-canonical types to their canonical form.
	Inversions map[string]InversionConfig `mapstructure:"inversions"`
	// Labels lists entity categories suggested to the model.
	Labels []string `mapstructure:"labels"`
}

// InversionConfig rewrites one relationship type into another.
type InversionConfig struct {
	Type string `mapstructure:"type"`
	Swap bool   `mapstructure:"swap"`
}

// PipelineConfig holds orchestrator configuration
type PipelineConfig struct {
	Concurrency int    `mapstructure:"concurrency"`
	LedgerPath  string `mapstructure:"ledger_path"`
	CorpusGlob  string `mapstructure:"corpus_glob"`
	// Resume skips chunks the ledger records as done.
	Resume bool `mapstructure:"resume"`
	// OnlyFailed processes only chunks the ledger records as failed.
	OnlyFailed bool `mapstructure:"only_failed"`
	// MaxAttempts caps how often OnlyFailed retries a chunk. Zero means no limit.
	MaxAttempts int `mapstructure:"max_attempts"`
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	// .env is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	// Set defaults
	setDefaults()

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Override with environment variables if present
	overrideWithEnv(config)

	return config, nil
}

// Default returns the configuration produced by defaults alone.
func Default() *Config {
	v := viper.New()
	setDefaultsOn(v)
	config := &Config{}
	_ = v.Unmarshal(config)
	return config
}

// setDefaults sets default configuration values
func setDefaults() {
	setDefaultsOn(viper.GetViper())
}

func setDefaultsOn(v *viper.Viper) {
	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_backups", 3)

	// Database defaults
	v.SetDefault("database.driver", "neo4j")
	v.SetDefault("database.uri", "bolt://localhost:7687")
	v.SetDefault("database.username", "neo4j")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "neo4j")

	v.SetDefault("nlp.models.extraction.provider", "gemini")
	v.SetDefault("nlp.models.extraction.model", "gemini-2.5-flash")
	v.SetDefault("nlp.models.extraction.temperature", 0.0)
	v.SetDefault("nlp.models.extraction.max_tokens", 8192)
	v.SetDefault("nlp.models.extraction.max_concurrent", 1)

	v.SetDefault("nlp.models.embedding.provider", "ollama")
	v.SetDefault("nlp.models.embedding.model", "nomic-embed-text")
	v.SetDefault("nlp.models.embedding.dimensions", 768)

	// Resolver defaults
	v.SetDefault("resolver.backend", "badger")
	v.SetDefault("resolver.threshold", 0.85)
	v.SetDefault("resolver.cache_size", 4096)

	// Extraction defaults
	v.SetDefault("extraction.max_chars", 4000)
	v.SetDefault("extraction.min_content", 500)
	v.SetDefault("extraction.boundaries", true)
	v.SetDefault("extraction.timeout", 120*time.Second)
	v.SetDefault("extraction.repair_json", false)
	v.SetDefault("extraction.rules.passive_policy", "rewrite")
	v.SetDefault("extraction.rules.labels", []string{"Person", "God", "Location", "Faction", "Object", "Event"})

	// Pipeline defaults
	v.SetDefault("pipeline.concurrency", 1)
	v.SetDefault("pipeline.corpus_glob", "*.txt")

	// Retry defaults
	v.SetDefault("retry.max_retries", 2)
	v.SetDefault("retry.initial_delay", time.Second)
	v.SetDefault("retry.max_delay", 30*time.Second)
	v.SetDefault("retry.backoff_multiplier", 2.0)

	// Circuit breaker defaults
	v.SetDefault("circuit_breaker.enabled", false)
	v.SetDefault("circuit_breaker.max_requests", 1)
	v.SetDefault("circuit_breaker.interval", 60)
	v.SetDefault("circuit_breaker.timeout", 30)
	v.SetDefault("circuit_breaker.ready_to_trip_ratio", 0.6)

	// Paths under the user's home directory
	home, err := os.UserHomeDir()
	if err == nil {
		base := filepath.Join(home, ".lorekeeper")
		v.SetDefault("resolver.path", filepath.Join(base, "resolution"))
		v.SetDefault("pipeline.ledger_path", filepath.Join(base, "ledger.json"))
		v.SetDefault("telemetry.parquet_path", filepath.Join(base, "telemetry"))
	}
}

// overrideWithEnv overrides config with environment variables
func overrideWithEnv(config *Config) {
	// Initialize Models map if nil
	if config.NLP.Models == nil {
		config.NLP.Models = make(map[string]NLPModelConfig)
	}

	for name, model := range config.NLP.Models {
		if model.APIKey == "" {
			model.APIKey = apiKeyFromEnv(model.Provider)
		}
		if model.Provider == "ollama" && model.BaseURL == "" {
			model.BaseURL = os.Getenv("OLLAMA_HOST")
		}
		config.NLP.Models[name] = model
	}

	// Database credentials
	if uri := os.Getenv("NEO4J_URI"); uri != "" {
		config.Database.URI = uri
	}
	if user := os.Getenv("NEO4J_USERNAME"); user != "" {
		config.Database.Username = user
	}
	if pass := os.Getenv("NEO4J_PASSWORD"); pass != "" {
		config.Database.Password = pass
	}
	if db := os.Getenv("NEO4J_DATABASE"); db != "" {
		config.Database.Database = db
	}

	// Telemetry settings
	if path := os.Getenv("TELEMETRY_PARQUET_PATH"); path != "" {
		config.Telemetry.ParquetPath = path
	}
}

func apiKeyFromEnv(provider string) string {
	switch provider {
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "gemini":
		return os.Getenv("GEMINI_API_KEY")
	case "anthropic":
		return os.Getenv("ANTHROPIC_API_KEY")
	}
	return ""
}

var (
	knownChatProviders      = []string{"openai", "ollama", "gemini", "anthropic"}
	knownEmbeddingProviders = []string{"openai", "ollama"}
	knownResolverBackends   = []string{"badger", "sqlitevec", "memory"}
	knownDrivers            = []string{"neo4j", "memory"}
)

// Validate checks the configuration for values the pipeline cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Resolver.Threshold <= 0 || c.Resolver.Threshold > 1 {
		errs = append(errs, fmt.Errorf("resolver.threshold must be in (0, 1], got %v", c.Resolver.Threshold))
	}
	if !slices.Contains(knownResolverBackends, c.Resolver.Backend) {
		errs = append(errs, fmt.Errorf("unknown resolver.backend %q", c.Resolver.Backend))
	}
	if c.Resolver.Backend != "memory" && c.Resolver.Path == "" {
		errs = append(errs, errors.New("resolver.path is required for persistent backends"))
	}
	if !slices.Contains(knownDrivers, c.Database.Driver) {
		errs = append(errs, fmt.Errorf("unknown database.driver %q", c.Database.Driver))
	}
	if c.Extraction.MaxChars <= 0 {
		errs = append(errs, fmt.Errorf("extraction.max_chars must be positive, got %d", c.Extraction.MaxChars))
	}
	if c.Extraction.MinContent < 0 {
		errs = append(errs, fmt.Errorf("extraction.min_content cannot be negative, got %d", c.Extraction.MinContent))
	}
	if c.Extraction.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("extraction.timeout must be positive, got %s", c.Extraction.Timeout))
	}
	switch strings.ToLower(c.Extraction.Rules.PassivePolicy) {
	case "", "rewrite", "reject":
	default:
		errs = append(errs, fmt.Errorf("extraction.rules.passive_policy must be rewrite or reject, got %q", c.Extraction.Rules.PassivePolicy))
	}
	if c.Pipeline.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("pipeline.concurrency must be at least 1, got %d", c.Pipeline.Concurrency))
	}
	if c.Pipeline.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("pipeline.max_attempts must not be negative, got %d", c.Pipeline.MaxAttempts))
	}
	if (c.Pipeline.Resume || c.Pipeline.OnlyFailed) && c.Pipeline.LedgerPath == "" {
		errs = append(errs, errors.New("pipeline.ledger_path is required to resume or re-run failed chunks"))
	}

	if m, ok := c.NLP.Models[ModelExtraction]; !ok {
		errs = append(errs, errors.New("nlp.models.extraction is not configured"))
	} else if !slices.Contains(knownChatProviders, m.Provider) {
		errs = append(errs, fmt.Errorf("unknown extraction provider %q", m.Provider))
	}
	if m, ok := c.NLP.Models[ModelEmbedding]; !ok {
		errs = append(errs, errors.New("nlp.models.embedding is not configured"))
	} else {
		if !slices.Contains(knownEmbeddingProviders, m.Provider) {
			errs = append(errs, fmt.Errorf("unknown embedding provider %q", m.Provider))
		}
		if m.Dimensions <= 0 {
			errs = append(errs, fmt.Errorf("nlp.models.embedding.dimensions must be positive, got %d", m.Dimensions))
		}
	}

	return errors.Join(errs...)
}
