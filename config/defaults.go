// =============================================================================
// 📦 FinFlow 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
		Metrics:   DefaultMetricsConfig(),
		Model:     DefaultModelConfig(),
		Search:    DefaultSearchConfig(),
		Scrape:    DefaultScrapeConfig(),
		Retry:     DefaultRetryConfig(),
		Flow:      DefaultFlowConfig(),
		Artifacts: DefaultArtifactsConfig(),
		History:   DefaultHistoryConfig(),
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "console",
		OutputPaths:      []string{"stderr"},
		EnableCaller:     false,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "finflow",
		SampleRate:   1.0,
	}
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   true,
		Namespace: "finflow",
	}
}

// DefaultModelConfig 返回默认推理后端配置
func DefaultModelConfig() ModelConfig {
	return ModelConfig{
		Provider:        "gemini",
		Model:           "gemini-2.0-flash",
		BaseURL:         "https://generativelanguage.googleapis.com",
		Timeout:         2 * time.Minute,
		Temperature:     0.2,
		MaxOutputTokens: 8192,
	}
}

// DefaultSearchConfig 返回默认搜索配置
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		BaseURL:       "https://google.serper.dev",
		Timeout:       15 * time.Second,
		MaxResults:    10,
		RatePerSecond: 5,
		Burst:         5,
	}
}

// DefaultScrapeConfig 返回默认抓取配置
func DefaultScrapeConfig() ScrapeConfig {
	return ScrapeConfig{
		Timeout:       30 * time.Second,
		MaxLength:     50000,
		RatePerSecond: 2,
		Burst:         2,
	}
}

// DefaultRetryConfig 返回默认重试配置
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		KickoffAttempts:  3,
		KickoffDelay:     5 * time.Second,
		AgentRetryBudget: 2,
		AgentRetryDelay:  2 * time.Second,
	}
}

// DefaultFlowConfig 返回默认调度配置
func DefaultFlowConfig() FlowConfig {
	return FlowConfig{
		MaxConcurrency: 0,
		Timeout:        30 * time.Minute,
	}
}

// DefaultArtifactsConfig 返回默认产物配置
func DefaultArtifactsConfig() ArtifactsConfig {
	return ArtifactsConfig{Dir: "assets"}
}

// DefaultHistoryConfig 返回默认历史配置
func DefaultHistoryConfig() HistoryConfig {
	return HistoryConfig{
		Driver: "",
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			User:            "finflow",
			Name:            "finflow_history.db",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			KeyPrefix: "finflow:history:",
		},
		Limit: 20,
	}
}
