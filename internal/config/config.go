package config

import (
	"fmt"
	"strings"

	"github.com/reperto-cdss-server/internal/domain"
	"github.com/spf13/viper"
)

// Manager implements the ConfigManager interface using Viper
type Manager struct {
	v      *viper.Viper
	config *domain.Config
}

// NewManager creates a new configuration manager
func NewManager() (*Manager, error) {
	m := &Manager{v: viper.New()}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// NewManagerFromFile loads configuration from an explicit file path
func NewManagerFromFile(path string) (*Manager, error) {
	m := &Manager{v: viper.New()}
	m.v.SetConfigFile(path)
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration from %s: %w", path, err)
	}
	return m, nil
}

func (m *Manager) loadConfig() error {
	v := m.v
	if v.ConfigFileUsed() == "" {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/reperto/")
	}

	v.SetEnvPrefix("REPERTO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	m.setDefaults()

	// Config file is optional; defaults and environment variables are enough.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &domain.Config{}
	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.config = config
	return nil
}

func (m *Manager) setDefaults() {
	v := m.v

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.request_timeout", "20s")
	v.SetDefault("server.tls_enabled", false)

	// Curated database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "reperto_golden")
	v.SetDefault("database.username", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "5m")

	// Source (OOREP) database defaults
	v.SetDefault("source.host", "localhost")
	v.SetDefault("source.port", 5432)
	v.SetDefault("source.database", "oorep")
	v.SetDefault("source.username", "postgres")
	v.SetDefault("source.password", "")
	v.SetDefault("source.ssl_mode", "disable")
	v.SetDefault("source.max_open_conns", 4)
	v.SetDefault("source.max_idle_conns", 1)
	v.SetDefault("source.conn_max_lifetime", "5m")

	v.SetDefault("storage.driver", "postgres")
	v.SetDefault("storage.sqlite_path", "golden.db")

	// Cache defaults
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.lru_size", 2048)
	v.SetDefault("cache.default_ttl", "1h")
	v.SetDefault("cache.max_retries", 3)
	v.SetDefault("cache.pool_size", 10)
	v.SetDefault("cache.pool_timeout", "4s")

	// Insights defaults
	v.SetDefault("insights.enabled", false)
	v.SetDefault("insights.api_key", "")
	v.SetDefault("insights.base_url", "")
	v.SetDefault("insights.model", "gpt-4o-mini")
	v.SetDefault("insights.temperature", 0.2)
	v.SetDefault("insights.timeout", "15s")
	v.SetDefault("insights.rate_limit", 2.0)
	v.SetDefault("insights.rate_burst", 4)
	v.SetDefault("insights.breaker_fail_ratio", 0.6)
	v.SetDefault("insights.breaker_timeout", "30s")

	// Pipeline defaults
	v.SetDefault("pipeline.search_limit", 30)
	v.SetDefault("pipeline.top_rubrics", 5)
	v.SetDefault("pipeline.top_remedies", 10)
	v.SetDefault("pipeline.store_timeout", "5s")

	// Dataset defaults
	v.SetDefault("dataset.enabled", true)
	v.SetDefault("dataset.driver", "postgres")
	v.SetDefault("dataset.sqlite_path", "phrases.db")
	v.SetDefault("dataset.buffer_size", 256)
	v.SetDefault("dataset.timeout", "5s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("mcp.server_name", "reperto-cdss")
	v.SetDefault("mcp.server_version", "1.0.0")
	v.SetDefault("mcp.transport_type", "stdio")
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetDatabaseConfig returns the curated database configuration
func (m *Manager) GetDatabaseConfig() *domain.DatabaseConfig {
	return &m.config.Database
}

// GetSourceConfig returns the source repertory database configuration
func (m *Manager) GetSourceConfig() *domain.DatabaseConfig {
	return &m.config.Source
}

// GetServerConfig returns server configuration
func (m *Manager) GetServerConfig() *domain.ServerConfig {
	return &m.config.Server
}

// GetPipelineConfig returns the reasoning pipeline configuration
func (m *Manager) GetPipelineConfig() *domain.PipelineConfig {
	return &m.config.Pipeline
}

// Reload reloads the configuration
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate validates the configuration
func (m *Manager) Validate() error {
	config := m.config

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	switch config.Storage.Driver {
	case "postgres":
		if config.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if config.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
		if config.Database.Username == "" {
			return fmt.Errorf("database username is required")
		}
	case "sqlite":
		if config.Storage.SQLitePath == "" {
			return fmt.Errorf("sqlite path is required")
		}
	default:
		return fmt.Errorf("invalid storage driver: %s", config.Storage.Driver)
	}

	if config.Dataset.Enabled && config.Dataset.Driver != "postgres" && config.Dataset.Driver != "sqlite" {
		return fmt.Errorf("invalid dataset driver: %s", config.Dataset.Driver)
	}

	if config.Pipeline.SearchLimit <= 0 {
		return fmt.Errorf("pipeline search_limit must be positive")
	}
	if config.Pipeline.TopRubrics <= 0 || config.Pipeline.TopRemedies <= 0 {
		return fmt.Errorf("pipeline top_rubrics and top_remedies must be positive")
	}

	if config.Insights.Enabled && config.Insights.APIKey == "" {
		return fmt.Errorf("insights api key is required when insights are enabled")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}

	return nil
}

// GetDatabaseConnectionString returns a formatted database connection string
func (m *Manager) GetDatabaseConnectionString() string {
	return ConnectionString(m.config.Database)
}

// GetRedisConnectionString returns the Redis connection string
func (m *Manager) GetRedisConnectionString() string {
	return m.config.Cache.RedisURL
}

// IsProduction returns true if running in production mode
func (m *Manager) IsProduction() bool {
	return strings.ToLower(m.v.GetString("environment")) == "production"
}

// IsDevelopment returns true if running in development mode
func (m *Manager) IsDevelopment() bool {
	env := strings.ToLower(m.v.GetString("environment"))
	return env == "development" || env == "dev" || env == ""
}

// ConnectionString formats a libpq keyword/value connection string.
func ConnectionString(db domain.DatabaseConfig) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		db.Host, db.Port, db.Username, db.Password, db.Database, db.SSLMode)
}
