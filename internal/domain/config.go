package domain

import (
	"time"
)

// Config represents the main application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Source   DatabaseConfig `mapstructure:"source"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Insights InsightsConfig `mapstructure:"insights"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Dataset  DatasetConfig  `mapstructure:"dataset"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	MCP      MCPConfig      `mapstructure:"mcp"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	TLSEnabled     bool          `mapstructure:"tls_enabled"`
	CertFile       string        `mapstructure:"cert_file"`
	KeyFile        string        `mapstructure:"key_file"`
}

// DatabaseConfig represents database connection configuration
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// StorageConfig selects the curated store backend
type StorageConfig struct {
	Driver     string `mapstructure:"driver"` // "postgres", "sqlite"
	SQLitePath string `mapstructure:"sqlite_path"`
}

// CacheConfig represents cache configuration
type CacheConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	RedisURL    string        `mapstructure:"redis_url"`
	LRUSize     int           `mapstructure:"lru_size"`
	DefaultTTL  time.Duration `mapstructure:"default_ttl"`
	MaxRetries  int           `mapstructure:"max_retries"`
	PoolSize    int           `mapstructure:"pool_size"`
	PoolTimeout time.Duration `mapstructure:"pool_timeout"`
}

// InsightsConfig configures the narrative text generator
type InsightsConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	APIKey           string        `mapstructure:"api_key"`
	BaseURL          string        `mapstructure:"base_url"`
	Model            string        `mapstructure:"model"`
	Temperature      float32       `mapstructure:"temperature"`
	Timeout          time.Duration `mapstructure:"timeout"`
	RateLimit        float64       `mapstructure:"rate_limit"` // requests per second
	RateBurst        int           `mapstructure:"rate_burst"`
	BreakerFailRatio float64       `mapstructure:"breaker_fail_ratio"`
	BreakerTimeout   time.Duration `mapstructure:"breaker_timeout"`
}

// PipelineConfig holds the reasoning pipeline knobs
type PipelineConfig struct {
	SearchLimit  int           `mapstructure:"search_limit"`
	TopRubrics   int           `mapstructure:"top_rubrics"`
	TopRemedies  int           `mapstructure:"top_remedies"`
	StoreTimeout time.Duration `mapstructure:"store_timeout"`
}

// DatasetConfig configures phrase mapping capture
type DatasetConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Driver     string        `mapstructure:"driver"` // "postgres", "sqlite"
	SQLitePath string        `mapstructure:"sqlite_path"`
	BufferSize int           `mapstructure:"buffer_size"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// MCPConfig represents MCP server configuration
type MCPConfig struct {
	ServerName    string `mapstructure:"server_name"`
	ServerVersion string `mapstructure:"server_version"`
	TransportType string `mapstructure:"transport_type"` // "stdio"
}
