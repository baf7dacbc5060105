// Package config loads runtime configuration from the environment, with
// production-ready defaults and fail-fast validation, following the pattern
// the database layer previously used for its own connection settings.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the fully resolved configuration for the memory service: store
// connection, LLM gateway, pipeline thresholds, RPC ports and context store
// limits all live here so main.go has a single object to wire everything
// from.
type Config struct {
	// Database
	DatabaseURL     string
	PGPoolMin       int
	PGPoolMax       int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// LLM gateway
	OpenAIAPIKey       string
	OpenAIBaseURL      string
	EmbeddingModel     string
	ExtractModel       string
	ConflictModel      string
	EmbedDim           int
	OpenAITimeout      time.Duration
	OpenAIMaxRetries   int
	MaxConcurrentCalls int
	ExtractReasoning   string
	ConflictReasoning  string

	// Retrieval & pipeline thresholds
	DefaultSearchLimit   int
	DefaultListLimit     int
	DupThreshold         float64
	ConflictThreshold    float64
	RelatesToThreshold   float64
	MinSectionLength     int
	MaxTaxonomyPaths     int
	StagingRetentionDays int

	// RPC surface
	ProductionPort int
	AdminPort      int
	APIKey         string

	// Ingestion limits
	MaxMemorizeTextLength int

	// Context store
	ContextDefaultTTLHours int
	ContextMaxValueLength  int
	ContextMaxKeyLength    int

	// Ambient
	LogLevel string
}

// Load reads configuration from the environment, applying the same defaults
// as the original service, and fails fast if anything required is missing
// or out of range.
func Load() (Config, error) {
	cfg := Config{
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		OpenAIAPIKey: os.Getenv("OPENAI_API_KEY"),

		OpenAIBaseURL:     getEnvOrDefault("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		EmbeddingModel:    getEnvOrDefault("EMBEDDING_MODEL", "text-embedding-3-small"),
		ExtractModel:      getEnvOrDefault("EXTRACT_MODEL", "gpt-5-mini"),
		ConflictModel:     getEnvOrDefault("CONFLICT_MODEL", "gpt-5-nano"),
		ExtractReasoning:  getEnvOrDefault("EXTRACT_REASONING", "low"),
		ConflictReasoning: getEnvOrDefault("CONFLICT_REASONING", "minimal"),

		LogLevel: getEnvOrDefault("LOG_LEVEL", "INFO"),
	}

	var err error
	if cfg.EmbedDim, err = getEnvInt("EMBED_DIM", 1536); err != nil {
		return Config{}, err
	}
	if cfg.DefaultSearchLimit, err = getEnvInt("DEFAULT_SEARCH_LIMIT", 10); err != nil {
		return Config{}, err
	}
	if cfg.DefaultListLimit, err = getEnvInt("DEFAULT_LIST_LIMIT", 50); err != nil {
		return Config{}, err
	}
	if cfg.OpenAIMaxRetries, err = getEnvInt("OPENAI_MAX_RETRIES", 5); err != nil {
		return Config{}, err
	}
	if cfg.MaxConcurrentCalls, err = getEnvInt("MAX_CONCURRENT_API_CALLS", 5); err != nil {
		return Config{}, err
	}
	if cfg.PGPoolMin, err = getEnvInt("PG_POOL_MIN", 1); err != nil {
		return Config{}, err
	}
	if cfg.PGPoolMax, err = getEnvInt("PG_POOL_MAX", 10); err != nil {
		return Config{}, err
	}
	if cfg.MinSectionLength, err = getEnvInt("MIN_SECTION_LENGTH", 100); err != nil {
		return Config{}, err
	}
	if cfg.MaxTaxonomyPaths, err = getEnvInt("MAX_TAXONOMY_PATHS", 40); err != nil {
		return Config{}, err
	}
	if cfg.ProductionPort, err = getEnvInt("PRODUCTION_PORT", 8766); err != nil {
		return Config{}, err
	}
	if cfg.AdminPort, err = getEnvInt("ADMIN_PORT", 8767); err != nil {
		return Config{}, err
	}
	if cfg.StagingRetentionDays, err = getEnvInt("STAGING_RETENTION_DAYS", 7); err != nil {
		return Config{}, err
	}
	if cfg.MaxMemorizeTextLength, err = getEnvInt("MAX_MEMORIZE_TEXT_LENGTH", 500000); err != nil {
		return Config{}, err
	}
	if cfg.ContextDefaultTTLHours, err = getEnvInt("CONTEXT_DEFAULT_TTL_HOURS", 24); err != nil {
		return Config{}, err
	}
	if cfg.ContextMaxValueLength, err = getEnvInt("CONTEXT_MAX_VALUE_LENGTH", 50000); err != nil {
		return Config{}, err
	}
	if cfg.ContextMaxKeyLength, err = getEnvInt("CONTEXT_MAX_KEY_LENGTH", 200); err != nil {
		return Config{}, err
	}

	if cfg.DupThreshold, err = getEnvFloat("DUP_THRESHOLD", 0.95); err != nil {
		return Config{}, err
	}
	if cfg.ConflictThreshold, err = getEnvFloat("CONFLICT_THRESHOLD", 0.55); err != nil {
		return Config{}, err
	}
	if cfg.RelatesToThreshold, err = getEnvFloat("RELATES_TO_THRESHOLD", 0.65); err != nil {
		return Config{}, err
	}

	if cfg.OpenAITimeout, err = parseSecondsDuration("OPENAI_TIMEOUT_S", 60); err != nil {
		return Config{}, err
	}
	if cfg.ConnMaxLifetime, err = time.ParseDuration(getEnvOrDefault("DB_CONN_MAX_LIFETIME", "1h")); err != nil {
		return Config{}, fmt.Errorf("invalid DB_CONN_MAX_LIFETIME: %w", err)
	}
	if cfg.ConnMaxIdleTime, err = time.ParseDuration(getEnvOrDefault("DB_CONN_MAX_IDLE_TIME", "15m")); err != nil {
		return Config{}, fmt.Errorf("invalid DB_CONN_MAX_IDLE_TIME: %w", err)
	}

	cfg.APIKey = os.Getenv("API_KEY")

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that configuration required for the service to start
// correctly is present and internally consistent.
func (c Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.OpenAIAPIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}
	if c.EmbedDim < 1 {
		return fmt.Errorf("EMBED_DIM must be positive")
	}
	if c.PGPoolMin < 0 || c.PGPoolMax < 1 || c.PGPoolMin > c.PGPoolMax {
		return fmt.Errorf("invalid PG_POOL_MIN/PG_POOL_MAX: %d/%d", c.PGPoolMin, c.PGPoolMax)
	}
	if c.MaxConcurrentCalls < 1 {
		return fmt.Errorf("MAX_CONCURRENT_API_CALLS must be at least 1")
	}
	if c.ProductionPort == c.AdminPort {
		return fmt.Errorf("PRODUCTION_PORT and ADMIN_PORT must differ")
	}
	return nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvFloat(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func parseSecondsDuration(key string, defaultSeconds float64) (time.Duration, error) {
	f, err := getEnvFloat(key, defaultSeconds)
	if err != nil {
		return 0, err
	}
	return time.Duration(f * float64(time.Second)), nil
}
