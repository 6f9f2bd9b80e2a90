// Package config loads pipeline configuration from defaults, an optional
// config file, a .env file, and environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the extraction pipeline.
type Config struct {
	Log Log `mapstructure:"log"`

	// Chunking configuration
	Chunking Chunking `mapstructure:"chunking"`

	// LLM configuration
	LLM LLM `mapstructure:"llm"`

	// Database configuration
	Database Database `mapstructure:"database"`

	// Pipeline configuration
	Pipeline Pipeline `mapstructure:"pipeline"`

	// Dedupe configuration
	Dedupe Dedupe `mapstructure:"dedupe"`
}

// Log holds logging configuration.
type Log struct {
	Level string `mapstructure:"level"`
}

// Chunking holds document windowing configuration.
type Chunking struct {
	Size    int `mapstructure:"size"`
	Overlap int `mapstructure:"overlap"`
}

// LLM holds extraction model configuration.
type LLM struct {
	Model       string        `mapstructure:"model"`
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Temperature float32       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxRetries  int           `mapstructure:"max_retries"`
}

// Database holds graph database configuration. An empty URI disables the
// database sink.
type Database struct {
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

// Pipeline holds orchestration configuration.
type Pipeline struct {
	OutDir              string  `mapstructure:"out_dir"`
	CheckpointEvery     int     `mapstructure:"checkpoint_every"`
	PauseEvery          int     `mapstructure:"pause_every"`
	PauseSeconds        int     `mapstructure:"pause_seconds"`
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
}

// Dedupe holds deduplication pass configuration.
type Dedupe struct {
	OutDir              string  `mapstructure:"out_dir"`
	CheckpointEvery     int     `mapstructure:"checkpoint_every"`
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`
}

// Load reads configuration: defaults, then an optional config file, then a
// .env file if present, then environment variable overrides.
func Load(configFile string) (*Config, error) {
	// Missing .env is normal outside local development.
	_ = godotenv.Load()

	setDefaults()

	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("unable to read config file %s: %w", configFile, err)
		}
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	overrideWithEnv(config)
	return config, nil
}

func setDefaults() {
	viper.SetDefault("log.level", "info")

	viper.SetDefault("chunking.size", 800)
	viper.SetDefault("chunking.overlap", 100)

	viper.SetDefault("llm.model", "gpt-4o")
	viper.SetDefault("llm.temperature", 0.0)
	viper.SetDefault("llm.max_tokens", 8192)
	viper.SetDefault("llm.timeout", "90s")
	viper.SetDefault("llm.max_retries", 3)

	viper.SetDefault("database.uri", "")
	viper.SetDefault("database.username", "neo4j")
	viper.SetDefault("database.database", "neo4j")

	viper.SetDefault("pipeline.out_dir", "data")
	viper.SetDefault("pipeline.checkpoint_every", 5)
	viper.SetDefault("pipeline.pause_every", 20)
	viper.SetDefault("pipeline.pause_seconds", 3)
	viper.SetDefault("pipeline.similarity_threshold", 0.90)

	viper.SetDefault("dedupe.out_dir", "data/dedupe")
	viper.SetDefault("dedupe.checkpoint_every", 1)
	viper.SetDefault("dedupe.confidence_threshold", 0.85)
}

func overrideWithEnv(config *Config) {
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		config.LLM.APIKey = apiKey
	}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		config.LLM.BaseURL = baseURL
	}
	if model := os.Getenv("LLM_MODEL"); model != "" {
		config.LLM.Model = model
	}

	if uri := os.Getenv("NEO4J_URI"); uri != "" {
		config.Database.URI = uri
	}
	if user := os.Getenv("NEO4J_USER"); user != "" {
		config.Database.Username = user
	}
	if pass := os.Getenv("NEO4J_PASSWORD"); pass != "" {
		config.Database.Password = pass
	}
	if db := os.Getenv("NEO4J_DATABASE"); db != "" {
		config.Database.Database = db
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.Log.Level = level
	}
	if every := os.Getenv("CHECKPOINT_EVERY"); every != "" {
		if n, err := strconv.Atoi(every); err == nil && n > 0 {
			config.Pipeline.CheckpointEvery = n
		}
	}
}
