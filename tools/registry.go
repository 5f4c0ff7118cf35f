package tools

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/finflow/types"
)

// RateLimitConfig 工具级速率限制
type RateLimitConfig struct {
	PerSecond float64 `yaml:"per_second" json:"per_second"`
	Burst     int     `yaml:"burst" json:"burst"`
}

// Registry 按名称保存一次运行内构造的工具实例
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	logger *zap.Logger
}

// NewRegistry 创建工具注册中心
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		tools:  make(map[string]Tool),
		logger: logger.With(zap.String("component", "tool_registry")),
	}
}

// Register 注册工具；可选的速率限制会包装原工具
func (r *Registry) Register(t Tool, limit *RateLimitConfig) error {
	name := t.Schema().Name
	if name == "" {
		return types.NewConfiguration("tool name is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return types.NewConfiguration("tool %s already registered", name)
	}
	if limit != nil && limit.PerSecond > 0 {
		burst := limit.Burst
		if burst < 1 {
			burst = 1
		}
		t = RateLimited(t, rate.Limit(limit.PerSecond), burst)
	}
	r.tools[name] = t

	r.logger.Debug("tool registered", zap.String("name", name))
	return nil
}

// MustRegister 注册失败时 panic，仅用于装配阶段
func (r *Registry) MustRegister(t Tool, limit *RateLimitConfig) {
	if err := r.Register(t, limit); err != nil {
		panic(err)
	}
}

// Get 按名称获取工具
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Resolve 按给定顺序解析能力集合，任何缺失名称都是配置错误
func (r *Registry) Resolve(names ...string) ([]Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Tool, 0, len(names))
	for _, n := range names {
		t, ok := r.tools[n]
		if !ok {
			return nil, types.NewConfiguration("tool %q is not registered", n)
		}
		out = append(out, t)
	}
	return out, nil
}

// List 返回所有已注册工具的 Schema，按名称排序
func (r *Registry) List() []Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Schema, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t.Schema())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// String 便于日志输出
func (r *Registry) String() string {
	return fmt.Sprintf("Registry(%d tools)", len(r.List()))
}
