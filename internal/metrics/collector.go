// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/finflow/retry"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// Flow 指标
	flowRunsTotal   *prometheus.CounterVec
	flowRunDuration *prometheus.HistogramVec
	stepsTotal      *prometheus.CounterVec
	stepDuration    *prometheus.HistogramVec
	stepAttempts    *prometheus.HistogramVec

	// Crew 指标
	crewTasksTotal   *prometheus.CounterVec
	crewTaskDuration *prometheus.HistogramVec

	// 工具与后端指标
	toolCallsTotal   *prometheus.CounterVec
	toolCallDuration *prometheus.HistogramVec
	backendRequests  *prometheus.CounterVec
	backendTokens    *prometheus.CounterVec

	// 重试指标
	retryOutcomes *prometheus.CounterVec
	retryAttempts *prometheus.CounterVec

	gatherer prometheus.Gatherer
	logger   *zap.Logger
}

// NewCollector 在 reg 上注册指标；reg 为 nil 时使用独立的新 Registry
func NewCollector(namespace string, reg *prometheus.Registry, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	c := &Collector{
		gatherer: reg,
		logger:   logger.With(zap.String("component", "metrics")),
	}

	// Flow 指标
	c.flowRunsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flow_runs_total",
			Help:      "Total number of flow runs",
		},
		[]string{"flow", "status"},
	)

	c.flowRunDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "flow_run_duration_seconds",
			Help:      "Flow run duration in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"flow"},
	)

	c.stepsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_executions_total",
			Help:      "Total number of finished or skipped flow steps",
		},
		[]string{"flow", "step", "status"},
	)

	c.stepDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Flow step duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"flow", "step"},
	)

	c.stepAttempts = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_attempts",
			Help:      "Handler attempts per flow step",
			Buckets:   []float64{1, 2, 3, 5, 8},
		},
		[]string{"flow", "step"},
	)

	// Crew 指标
	c.crewTasksTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "crew_tasks_total",
			Help:      "Total number of crew tasks by final status",
		},
		[]string{"crew", "task", "status"},
	)

	c.crewTaskDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "crew_task_duration_seconds",
			Help:      "Crew task duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"crew", "task"},
	)

	// 工具与后端指标
	c.toolCallsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Total number of tool calls",
		},
		[]string{"agent", "tool", "status"},
	)

	c.toolCallDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_call_duration_seconds",
			Help:      "Tool call duration in seconds, retries included",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"tool"},
	)

	c.backendRequests = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_requests_total",
			Help:      "Total number of reasoning backend requests",
		},
		[]string{"backend", "model", "status"},
	)

	c.backendTokens = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_tokens_used_total",
			Help:      "Total number of tokens reported by the backend",
		},
		[]string{"backend", "model", "type"}, // type: prompt, completion
	)

	// 重试指标
	c.retryOutcomes = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retry_outcomes_total",
			Help:      "Total number of guarded calls by final retry status",
		},
		[]string{"scope", "status"},
	)

	c.retryAttempts = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retry_attempts_total",
			Help:      "Total number of attempts made by guarded calls",
		},
		[]string{"scope"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// Handler 返回暴露本收集器指标的 HTTP handler
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

// =============================================================================
// 🔀 Flow 指标记录
// =============================================================================

// RecordFlowRun 记录一次 flow 运行
func (c *Collector) RecordFlowRun(flow, status string, duration time.Duration) {
	c.flowRunsTotal.WithLabelValues(flow, status).Inc()
	c.flowRunDuration.WithLabelValues(flow).Observe(duration.Seconds())
}

// RecordStep 记录步骤的最终状态
func (c *Collector) RecordStep(flow, step, status string, attempts int, duration time.Duration) {
	c.stepsTotal.WithLabelValues(flow, step, status).Inc()
	if attempts > 0 {
		c.stepDuration.WithLabelValues(flow, step).Observe(duration.Seconds())
		c.stepAttempts.WithLabelValues(flow, step).Observe(float64(attempts))
	}
}

// =============================================================================
// 👥 Crew 指标记录
// =============================================================================

// RecordTask 记录团队任务的最终状态
func (c *Collector) RecordTask(crew, task, status string, duration time.Duration) {
	c.crewTasksTotal.WithLabelValues(crew, task, status).Inc()
	if status != "skipped" {
		c.crewTaskDuration.WithLabelValues(crew, task).Observe(duration.Seconds())
	}
}

// =============================================================================
// 🔧 工具与后端指标记录
// =============================================================================

// RecordToolCall 记录一次工具调用（含重试）
func (c *Collector) RecordToolCall(agent, tool string, ok bool, attempts int, duration time.Duration) {
	c.toolCallsTotal.WithLabelValues(agent, tool, okStatus(ok)).Inc()
	c.toolCallDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// RecordBackendRequest 记录推理后端请求
func (c *Collector) RecordBackendRequest(backend, model string, ok bool, promptTokens, completionTokens int) {
	c.backendRequests.WithLabelValues(backend, model, okStatus(ok)).Inc()
	c.backendTokens.WithLabelValues(backend, model, "prompt").Add(float64(promptTokens))
	c.backendTokens.WithLabelValues(backend, model, "completion").Add(float64(completionTokens))
}

// =============================================================================
// 🔁 重试指标记录
// =============================================================================

// RecordRetry 记录一次受保护调用的结果，无论成功与否
func (c *Collector) RecordRetry(scope string, out *retry.Outcome) {
	if out == nil {
		return
	}
	scope = scopeKind(scope)
	c.retryOutcomes.WithLabelValues(scope, string(out.Status)).Inc()
	c.retryAttempts.WithLabelValues(scope).Add(float64(out.Attempts))
}

// RetryObserver 返回可注入 retry.WithObserver 的观察者
func (c *Collector) RetryObserver() retry.Observer {
	return c.RecordRetry
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

func okStatus(ok bool) string {
	if ok {
		return "success"
	}
	return "error"
}

// scopeKind 将 "tool:web_search" 归并为 "tool"，控制 label 基数
func scopeKind(scope string) string {
	if i := strings.IndexByte(scope, ':'); i > 0 {
		return scope[:i]
	}
	if scope == "" {
		return "unscoped"
	}
	return scope
}
