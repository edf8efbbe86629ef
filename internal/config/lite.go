// Package config provides configuration management for the CDSS server.
// This file contains the lightweight configuration for standalone operation.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// LiteConfig is a simplified configuration for standalone operation.
// It requires no external databases: the curated repertory and the phrase
// dataset live in SQLite files under DataDir.
type LiteConfig struct {
	DataDir string

	CacheMaxItems int
	CacheTTL      time.Duration

	// Optional: enables narrative insights
	OpenAIAPIKey string
	OpenAIModel  string

	SearchLimit int
	TopRubrics  int
	TopRemedies int

	Transport string // stdio

	LogLevel  string
	LogFormat string
}

// DefaultLiteConfig returns a configuration with sensible defaults.
func DefaultLiteConfig() *LiteConfig {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".reperto")

	return &LiteConfig{
		DataDir:       dataDir,
		CacheMaxItems: 1000,
		CacheTTL:      time.Hour,
		OpenAIModel:   "gpt-4o-mini",
		SearchLimit:   30,
		TopRubrics:    5,
		TopRemedies:   10,
		Transport:     "stdio",
		LogLevel:      "info",
		LogFormat:     "json",
	}
}

// LoadLiteConfig loads configuration from environment variables.
// Falls back to defaults if not set.
func LoadLiteConfig() *LiteConfig {
	cfg := DefaultLiteConfig()

	if v := os.Getenv("REPERTO_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	if v := os.Getenv("REPERTO_CACHE_MAX_ITEMS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.CacheMaxItems = n
		}
	}
	if v := os.Getenv("REPERTO_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.CacheTTL = d
		}
	}

	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	if v := os.Getenv("REPERTO_OPENAI_MODEL"); v != "" {
		cfg.OpenAIModel = v
	}

	cfg.SearchLimit = positiveInt("REPERTO_SEARCH_LIMIT", cfg.SearchLimit)
	cfg.TopRubrics = positiveInt("REPERTO_TOP_RUBRICS", cfg.TopRubrics)
	cfg.TopRemedies = positiveInt("REPERTO_TOP_REMEDIES", cfg.TopRemedies)

	if v := os.Getenv("REPERTO_TRANSPORT"); v != "" {
		cfg.Transport = v
	}

	if v := os.Getenv("REPERTO_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("REPERTO_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}

	return cfg
}

func positiveInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

// GoldenDBPath returns the path to the curated repertory SQLite database.
func (c *LiteConfig) GoldenDBPath() string {
	return filepath.Join(c.DataDir, "golden.db")
}

// PhrasesDBPath returns the path to the phrase dataset SQLite database.
func (c *LiteConfig) PhrasesDBPath() string {
	return filepath.Join(c.DataDir, "phrases.db")
}

// ExportDir returns the directory for JSON exports.
func (c *LiteConfig) ExportDir() string {
	return filepath.Join(c.DataDir, "exports")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *LiteConfig) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, 0755); err != nil {
		return err
	}
	return os.MkdirAll(c.ExportDir(), 0755)
}
