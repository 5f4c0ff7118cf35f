// =============================================================================
// 📦 FinFlow 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("finflow.yaml").
//	    WithEnvPrefix("FINFLOW").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量 → 验证器
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/BaSui01/finflow/internal/tlsutil"
	"github.com/BaSui01/finflow/types"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 FinFlow 的完整配置结构
type Config struct {
	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`

	// Metrics Prometheus 指标配置
	Metrics MetricsConfig `yaml:"metrics" env:"METRICS"`

	// Model 推理后端配置
	Model ModelConfig `yaml:"model" env:"MODEL"`

	// Search 搜索工具配置
	Search SearchConfig `yaml:"search" env:"SEARCH"`

	// Scrape 网页抓取配置
	Scrape ScrapeConfig `yaml:"scrape" env:"SCRAPE"`

	// Retry 默认重试配置
	Retry RetryConfig `yaml:"retry" env:"RETRY"`

	// Flow 调度配置
	Flow FlowConfig `yaml:"flow" env:"FLOW"`

	// Artifacts 产物存储配置
	Artifacts ArtifactsConfig `yaml:"artifacts" env:"ARTIFACTS"`

	// History 运行历史配置
	History HistoryConfig `yaml:"history" env:"HISTORY"`

	// Catalog 智能体/任务目录覆盖
	Catalog CatalogConfig `yaml:"catalog" env:"CATALOG"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 命名空间
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
	// promhttp 监听地址，为空则不暴露
	Addr string `yaml:"addr" env:"ADDR"`
}

// ModelConfig 推理后端配置
type ModelConfig struct {
	// 提供商，目前支持 gemini
	Provider string `yaml:"provider" env:"PROVIDER"`
	// 模型名称
	Model string `yaml:"model" env:"NAME"`
	// API Key，通常由命令行层从环境变量探测
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 基础 URL（可选）
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// 请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 温度参数
	Temperature float64 `yaml:"temperature" env:"TEMPERATURE"`
	// 最大输出 Token 数
	MaxOutputTokens int `yaml:"max_output_tokens" env:"MAX_OUTPUT_TOKENS"`
	// 代理地址；为空使用 HTTP(S)_PROXY，"direct" 表示直连
	Proxy string `yaml:"proxy" env:"PROXY"`
}

// SearchConfig 搜索配置
type SearchConfig struct {
	// Serper API Key
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 基础 URL
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// 请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 代理地址
	Proxy string `yaml:"proxy" env:"PROXY"`
	// 默认结果数
	MaxResults int `yaml:"max_results" env:"MAX_RESULTS"`
	// 每秒请求数，0 表示不限速
	RatePerSecond float64 `yaml:"rate_per_second" env:"RATE_PER_SECOND"`
	// 令牌桶容量
	Burst int `yaml:"burst" env:"BURST"`
}

// ScrapeConfig 网页抓取配置
type ScrapeConfig struct {
	// 请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 正文最大长度
	MaxLength int `yaml:"max_length" env:"MAX_LENGTH"`
	// 代理地址
	Proxy string `yaml:"proxy" env:"PROXY"`
	// 每秒请求数
	RatePerSecond float64 `yaml:"rate_per_second" env:"RATE_PER_SECOND"`
	// 令牌桶容量
	Burst int `yaml:"burst" env:"BURST"`
}

// RetryConfig 重试配置
type RetryConfig struct {
	// crew 启动的最大尝试次数
	KickoffAttempts int `yaml:"kickoff_attempts" env:"KICKOFF_ATTEMPTS"`
	// crew 启动的重试间隔
	KickoffDelay time.Duration `yaml:"kickoff_delay" env:"KICKOFF_DELAY"`
	// 工作者默认重试次数（尝试次数 = 重试次数 + 1）
	AgentRetryBudget int `yaml:"agent_retry_budget" env:"AGENT_RETRY_BUDGET"`
	// 工作者重试间隔
	AgentRetryDelay time.Duration `yaml:"agent_retry_delay" env:"AGENT_RETRY_DELAY"`
}

// FlowConfig 调度配置
type FlowConfig struct {
	// 并发上限，0 表示不限
	MaxConcurrency int `yaml:"max_concurrency" env:"MAX_CONCURRENCY"`
	// 必需步骤失败后是否继续运行独立分支
	ContinueOnFailure bool `yaml:"continue_on_failure" env:"CONTINUE_ON_FAILURE"`
	// 单次运行超时，0 表示不限
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// ArtifactsConfig 产物存储配置
type ArtifactsConfig struct {
	// gocloud blob URL（mem://、file:///abs/path、s3:// 等），优先于 Dir
	URL string `yaml:"url" env:"URL"`
	// 本地目录
	Dir string `yaml:"dir" env:"DIR"`
}

// HistoryConfig 运行历史配置
type HistoryConfig struct {
	// 驱动: 空（禁用）, sqlite, postgres, mysql, redis
	Driver string `yaml:"driver" env:"DRIVER"`
	// 数据库配置（sqlite/postgres/mysql）
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`
	// Redis 配置
	Redis RedisConfig `yaml:"redis" env:"REDIS"`
	// history 命令默认列出的条数
	Limit int `yaml:"limit" env:"LIMIT"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 主机
	Host string `yaml:"host" env:"HOST"`
	// 端口
	Port int `yaml:"port" env:"PORT"`
	// 用户名
	User string `yaml:"user" env:"USER"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库名；sqlite 时为文件路径
	Name string `yaml:"name" env:"NAME"`
	// SSL 模式
	SSLMode string `yaml:"ssl_mode" env:"SSL_MODE"`
	// 最大连接数
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// 最大空闲连接
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// 连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 键前缀
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
}

// CatalogConfig 目录配置
type CatalogConfig struct {
	// 包含 <crew>/agents.yaml 与 <crew>/tasks.yaml 的目录，为空则使用内置目录
	Dir string `yaml:"dir" env:"DIR"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "FINFLOW",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置，文件不存在时保留默认值
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return types.NewConfiguration("failed to parse config file %s", l.configPath).WithCause(err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return types.NewConfiguration("invalid value for %s", envKey).WithCause(err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 支持逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).WithValidator((*Config).Validate).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Sprintf("log.format must be json or console, got %q", c.Log.Format))
	}
	if c.Model.Provider != "gemini" {
		errs = append(errs, fmt.Sprintf("model.provider %q is not supported", c.Model.Provider))
	}
	if c.Model.Temperature < 0 || c.Model.Temperature > 2 {
		errs = append(errs, "model.temperature must be between 0 and 2")
	}
	if c.Retry.KickoffAttempts < 1 {
		errs = append(errs, "retry.kickoff_attempts must be >= 1")
	}
	if c.Retry.AgentRetryBudget < 0 {
		errs = append(errs, "retry.agent_retry_budget must not be negative")
	}
	if c.Retry.KickoffDelay < 0 || c.Retry.AgentRetryDelay < 0 {
		errs = append(errs, "retry delays must not be negative")
	}
	if c.Flow.MaxConcurrency < 0 {
		errs = append(errs, "flow.max_concurrency must not be negative")
	}
	if c.Artifacts.URL == "" && c.Artifacts.Dir == "" {
		errs = append(errs, "artifacts.url or artifacts.dir is required")
	}
	for _, p := range []struct{ name, value string }{
		{"model.proxy", c.Model.Proxy},
		{"search.proxy", c.Search.Proxy},
		{"scrape.proxy", c.Scrape.Proxy},
	} {
		if _, err := tlsutil.ProxyFunc(p.value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", p.name, err))
		}
	}
	switch c.History.Driver {
	case "", "sqlite", "postgres", "mysql", "redis":
	default:
		errs = append(errs, fmt.Sprintf("history.driver %q is not supported", c.History.Driver))
	}

	if len(errs) > 0 {
		return types.NewConfiguration("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// DSN 返回数据库连接字符串
func (d *DatabaseConfig) DSN(driver string) string {
	switch driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}
