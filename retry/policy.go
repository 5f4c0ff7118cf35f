package retry

import (
	"time"

	"github.com/BaSui01/finflow/types"
)

// Exhaustion 决定所有尝试失败后的处理方式
type Exhaustion string

const (
	// ExhaustPropagate 将最后一次错误包装为 EXHAUSTED_RETRY 返回给调用方
	ExhaustPropagate Exhaustion = "propagate"
	// ExhaustContinue 记录日志后吞掉错误，调用方继续执行
	ExhaustContinue Exhaustion = "continue_with_log"
)

// RetryPolicy 定义固定间隔的有界重试策略
type RetryPolicy struct {
	MaxAttempts     int                                               `yaml:"max_attempts" json:"max_attempts"`
	Delay           time.Duration                                     `yaml:"delay" json:"delay"`
	Exhaustion      Exhaustion                                        `yaml:"exhaustion" json:"exhaustion"`
	RetryableErrors []error                                           `yaml:"-" json:"-"` // 为空则重试所有非致命错误
	OnRetry         func(attempt int, err error, delay time.Duration) `yaml:"-" json:"-"`
}

// DefaultRetryPolicy 返回默认策略：3 次尝试，间隔 1 秒，耗尽后传播
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts: 3,
		Delay:       time.Second,
		Exhaustion:  ExhaustPropagate,
	}
}

// Attempts 构造一个仅指定次数与间隔的传播型策略
func Attempts(n int, delay time.Duration) *RetryPolicy {
	return &RetryPolicy{MaxAttempts: n, Delay: delay, Exhaustion: ExhaustPropagate}
}

// BestEffort 返回同一策略的 continue-with-log 副本
func (p RetryPolicy) BestEffort() *RetryPolicy {
	p.Exhaustion = ExhaustContinue
	return &p
}

// Validate 校验策略参数
func (p *RetryPolicy) Validate() error {
	if p == nil {
		return types.NewConfiguration("retry policy is nil")
	}
	if p.MaxAttempts < 1 {
		return types.NewConfiguration("retry max_attempts must be >= 1, got %d", p.MaxAttempts)
	}
	if p.Delay < 0 {
		return types.NewConfiguration("retry delay must not be negative, got %s", p.Delay)
	}
	switch p.Exhaustion {
	case ExhaustPropagate, ExhaustContinue, "":
	default:
		return types.NewConfiguration("unknown exhaustion policy %q", p.Exhaustion)
	}
	return nil
}

// Status 单次受保护调用的最终状态
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"   // 耗尽并传播
	StatusAbsorbed  Status = "absorbed" // 耗尽并吞掉
	StatusAborted   Status = "aborted"  // 致命错误或上下文取消，提前终止
)

// Outcome 记录一次受保护调用的尝试次数与结果，无论成功与否都会生成
type Outcome struct {
	Attempts  int             `json:"attempts"`
	Status    Status          `json:"status"`
	LastError error           `json:"-"`
	Delays    []time.Duration `json:"delays,omitempty"`
}

// Absorbed 表示失败已按 continue-with-log 吞掉
func (o *Outcome) Absorbed() bool {
	return o != nil && o.Status == StatusAbsorbed
}

// Succeeded 表示最终有一次尝试成功
func (o *Outcome) Succeeded() bool {
	return o != nil && o.Status == StatusSucceeded
}
