package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerDefaults(t *testing.T) {
	m, err := NewManager()
	require.NoError(t, err)

	cfg := m.GetConfig()
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Storage.Driver)
	assert.Equal(t, 30, m.GetPipelineConfig().SearchLimit)
	assert.Equal(t, 5, cfg.Pipeline.TopRubrics)
	assert.Equal(t, 10, cfg.Pipeline.TopRemedies)
	assert.Equal(t, "oorep", m.GetSourceConfig().Database)
	assert.NoError(t, m.Validate())
}

func TestManagerEnvironmentOverride(t *testing.T) {
	t.Setenv("REPERTO_PIPELINE_TOP_REMEDIES", "7")
	t.Setenv("REPERTO_STORAGE_DRIVER", "sqlite")

	m, err := NewManager()
	require.NoError(t, err)

	assert.Equal(t, 7, m.GetConfig().Pipeline.TopRemedies)
	assert.Equal(t, "sqlite", m.GetConfig().Storage.Driver)
	assert.NoError(t, m.Validate())
}

func TestManagerFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reperto.yaml")
	content := []byte("server:\n  port: 9191\npipeline:\n  search_limit: 12\nlogging:\n  level: debug\n")
	require.NoError(t, os.WriteFile(path, content, 0o600))

	m, err := NewManagerFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, 9191, m.GetServerConfig().Port)
	assert.Equal(t, 12, m.GetPipelineConfig().SearchLimit)
	assert.Equal(t, "debug", m.GetConfig().Logging.Level)
}

func TestManagerValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(m *Manager)
		wantErr string
	}{
		{"bad port", func(m *Manager) { m.config.Server.Port = 0 }, "invalid server port"},
		{"bad driver", func(m *Manager) { m.config.Storage.Driver = "mysql" }, "invalid storage driver"},
		{"no search limit", func(m *Manager) { m.config.Pipeline.SearchLimit = 0 }, "search_limit"},
		{"insights without key", func(m *Manager) { m.config.Insights.Enabled = true }, "insights api key"},
		{"bad log level", func(m *Manager) { m.config.Logging.Level = "loud" }, "invalid log level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewManager()
			require.NoError(t, err)
			tt.mutate(m)

			err = m.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConnectionString(t *testing.T) {
	m, err := NewManager()
	require.NoError(t, err)

	assert.Equal(t,
		"host=localhost port=5432 user=postgres password= dbname=reperto_golden sslmode=disable",
		m.GetDatabaseConnectionString())
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("warn", "json", &buf)

	assert.Equal(t, logrus.WarnLevel, logger.GetLevel())
	logger.Info("hidden")
	logger.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	assert.Equal(t, logrus.InfoLevel, NewLogger("nonsense", "text", nil).GetLevel())
}
