package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- DefaultConfig aggregate ---

func TestDefaultConfig_ContainsAllSubConfigs(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)

	assert.NotEqual(t, LogConfig{}, cfg.Log)
	assert.NotEqual(t, TelemetryConfig{}, cfg.Telemetry)
	assert.NotEqual(t, MetricsConfig{}, cfg.Metrics)
	assert.NotEqual(t, ModelConfig{}, cfg.Model)
	assert.NotEqual(t, SearchConfig{}, cfg.Search)
	assert.NotEqual(t, ScrapeConfig{}, cfg.Scrape)
	assert.NotEqual(t, RetryConfig{}, cfg.Retry)
	assert.NotEqual(t, ArtifactsConfig{}, cfg.Artifacts)
	assert.Equal(t, CatalogConfig{}, cfg.Catalog)
}

// --- Individual Default*Config functions ---

func TestDefaultModelConfig(t *testing.T) {
	cfg := DefaultModelConfig()
	assert.Equal(t, "gemini", cfg.Provider)
	assert.Equal(t, "gemini-2.0-flash", cfg.Model)
	assert.Empty(t, cfg.APIKey)
	assert.Equal(t, 2*time.Minute, cfg.Timeout)
}

func TestDefaultRetryConfig(t *testing.T) {
	cfg := DefaultRetryConfig()
	assert.Equal(t, 3, cfg.KickoffAttempts)
	assert.Equal(t, 5*time.Second, cfg.KickoffDelay)
	assert.Equal(t, 2, cfg.AgentRetryBudget)
}

func TestDefaultHistoryConfig(t *testing.T) {
	cfg := DefaultHistoryConfig()
	assert.Empty(t, cfg.Driver, "history is off by default")
	assert.Equal(t, "finflow_history.db", cfg.Database.Name)
	assert.Equal(t, 20, cfg.Limit)
}

func TestDefaultLogConfig(t *testing.T) {
	cfg := DefaultLogConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "console", cfg.Format)
	assert.Equal(t, []string{"stderr"}, cfg.OutputPaths)
}
