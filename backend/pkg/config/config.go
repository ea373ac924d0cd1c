package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	apperrors "discord-agent/backend/pkg/errors"
)

// Config holds all application configuration
type Config struct {
	// App
	Env      string
	LogLevel string
	Port     string // Execution service listen port

	// Discord
	DiscordBotToken string
	CommandPrefixes string // Each character is a command prefix

	// Remote model (OpenAI-compatible endpoint)
	LLMBaseURL string
	LLMAPIKey  string
	ModelID    string

	// Local analysis / embedding service
	LocalLLMURL      string
	VectorDimensions int

	// Execution service
	ExecutionURL    string
	ExecutionSecret string

	// Neo4j (vector index)
	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string
	Neo4jDatabase string

	// Relational metadata store
	MetadataDriver string // sqlite or mysql
	MetadataDSN    string

	// Pipeline
	MemoryTopK        int
	ResponseCacheSize int
	HistoryWindow     int

	// Timeouts
	AnalysisTimeout time.Duration
	EmbedTimeout    time.Duration
	ModelTimeout    time.Duration
	ExecuteTimeout  time.Duration
	StoreTimeout    time.Duration
	ProcessTimeout  time.Duration

	// Maintenance and observability
	ReconcileSchedule string
	MetricsAddr       string

	// Execution service rate limit
	RateLimitPerWindow int
	RateLimitWindow    time.Duration
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{
		Env:                getEnv("ENV", "development"),
		LogLevel:           getEnv("LOG_LEVEL", ""),
		Port:               getEnv("PORT", "3001"),
		DiscordBotToken:    getEnv("DISCORD_BOT_TOKEN", ""),
		CommandPrefixes:    getEnv("COMMAND_PREFIXES", "!/"),
		LLMBaseURL:         getEnv("LLM_BASE_URL", "http://localhost:4000/v1"),
		LLMAPIKey:          getEnv("LLM_API_KEY", ""),
		ModelID:            getEnv("MODEL_ID", "gemini-2.0-flash"),
		LocalLLMURL:        getEnv("LOCAL_LLM_API_URL", "http://localhost:5001"),
		VectorDimensions:   getEnvInt("VECTOR_DIMENSIONS", 384),
		ExecutionURL:       getEnv("EXECUTION_API_URL", "http://localhost:3001"),
		ExecutionSecret:    getEnv("EXECUTION_SECRET", ""),
		Neo4jURI:           getEnv("NEO4J_URI", "bolt://localhost:7687"),
		Neo4jUser:          getEnv("NEO4J_USER", "neo4j"),
		Neo4jPassword:      getEnv("NEO4J_PASSWORD", "password"),
		Neo4jDatabase:      getEnv("NEO4J_DATABASE", ""),
		MetadataDriver:     getEnv("METADATA_DRIVER", "sqlite"),
		MetadataDSN:        getEnv("METADATA_DSN", "data/agent.db"),
		MemoryTopK:         getEnvInt("MEMORY_TOP_K", 5),
		ResponseCacheSize:  getEnvInt("RESPONSE_CACHE_SIZE", 100),
		HistoryWindow:      getEnvInt("HISTORY_WINDOW", 5),
		AnalysisTimeout:    getEnvDuration("ANALYSIS_TIMEOUT", 3*time.Second),
		EmbedTimeout:       getEnvDuration("EMBED_TIMEOUT", 5*time.Second),
		ModelTimeout:       getEnvDuration("MODEL_TIMEOUT", 30*time.Second),
		ExecuteTimeout:     getEnvDuration("EXECUTE_TIMEOUT", 10*time.Second),
		StoreTimeout:       getEnvDuration("STORE_TIMEOUT", 5*time.Second),
		ProcessTimeout:     getEnvDuration("PROCESS_TIMEOUT", 60*time.Second),
		ReconcileSchedule:  getEnv("RECONCILE_SCHEDULE", "@every 1h"),
		MetricsAddr:        getEnv("METRICS_ADDR", ""),
		RateLimitPerWindow: getEnvInt("RATE_LIMIT_PER_WINDOW", 100),
		RateLimitWindow:    getEnvDuration("RATE_LIMIT_WINDOW", 15*time.Minute),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set
func (c *Config) Validate() error {
	if c.Neo4jURI == "" {
		return apperrors.NewConfigMissingRequired("NEO4J_URI")
	}
	if c.ModelID == "" {
		return apperrors.NewConfigMissingRequired("MODEL_ID")
	}
	if c.LocalLLMURL == "" {
		return apperrors.NewConfigMissingRequired("LOCAL_LLM_API_URL")
	}
	if c.MetadataDSN == "" {
		return apperrors.NewConfigMissingRequired("METADATA_DSN")
	}
	switch strings.ToLower(c.MetadataDriver) {
	case "sqlite", "mysql":
	default:
		return apperrors.NewConfigValidationFailed("METADATA_DRIVER", "must be sqlite or mysql")
	}
	if c.VectorDimensions <= 0 {
		return apperrors.NewConfigValidationFailed("VECTOR_DIMENSIONS", "must be positive")
	}
	if c.MemoryTopK <= 0 {
		return apperrors.NewConfigValidationFailed("MEMORY_TOP_K", "must be positive")
	}
	if c.ResponseCacheSize <= 0 {
		return apperrors.NewConfigValidationFailed("RESPONSE_CACHE_SIZE", "must be positive")
	}
	// Discord token and execution secret are checked by the binaries that need them
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
