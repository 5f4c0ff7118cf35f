package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/finflow/types"
)

// Retryer 重试器接口
// 每次调用都会返回 Outcome，调用方据此记录尝试次数与状态
type Retryer interface {
	// Do 执行函数，失败时根据策略重试
	Do(ctx context.Context, fn func() error) (*Outcome, error)

	// DoWithResult 执行函数并返回结果，失败时根据策略重试
	DoWithResult(ctx context.Context, fn func() (any, error)) (any, *Outcome, error)

	// Policy 返回生效中的策略
	Policy() RetryPolicy
}

// Sleeper 在两次尝试之间等待，需响应 context 取消
type Sleeper func(ctx context.Context, d time.Duration) error

// Observer 在每次受保护调用结束后被通知，用于指标采集
type Observer func(scope string, outcome *Outcome)

// Option 配置重试器
type Option func(*fixedRetryer)

// WithScope 设置日志与指标中的调用范围名称，例如 "tool:serper_search"
func WithScope(scope string) Option {
	return func(r *fixedRetryer) { r.scope = scope }
}

// WithSleeper 替换等待实现（测试中使用虚拟时钟）
func WithSleeper(s Sleeper) Option {
	return func(r *fixedRetryer) {
		if s != nil {
			r.sleep = s
		}
	}
}

// WithObserver 注册结果观察者
func WithObserver(o Observer) Option {
	return func(r *fixedRetryer) { r.observe = o }
}

// fixedRetryer 基于固定间隔的重试器实现
type fixedRetryer struct {
	policy  RetryPolicy
	logger  *zap.Logger
	scope   string
	sleep   Sleeper
	observe Observer
}

// NewRetryer 创建固定间隔重试器
func NewRetryer(policy *RetryPolicy, logger *zap.Logger, opts ...Option) Retryer {
	if policy == nil {
		policy = DefaultRetryPolicy()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	// 参数校验
	p := *policy
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.Delay < 0 {
		p.Delay = 0
	}
	if p.Exhaustion == "" {
		p.Exhaustion = ExhaustPropagate
	}

	r := &fixedRetryer{
		policy: p,
		logger: logger.With(zap.String("component", "retry")),
		sleep:  timerSleep,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.scope != "" {
		r.logger = r.logger.With(zap.String("scope", r.scope))
	}
	return r
}

func (r *fixedRetryer) Policy() RetryPolicy { return r.policy }

// Do 实现 Retryer.Do
func (r *fixedRetryer) Do(ctx context.Context, fn func() error) (*Outcome, error) {
	_, out, err := r.DoWithResult(ctx, func() (any, error) {
		return nil, fn()
	})
	return out, err
}

// DoWithResult 实现 Retryer.DoWithResult
// 第 N 次失败后等待 Delay 再进行第 N+1 次尝试，最后一次失败后不再等待
func (r *fixedRetryer) DoWithResult(ctx context.Context, fn func() (any, error)) (any, *Outcome, error) {
	out := &Outcome{}
	defer r.notify(out)

	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := r.policy.Delay

			r.logger.Debug("retrying",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", r.policy.MaxAttempts),
				zap.Duration("delay", delay),
				zap.Error(out.LastError),
			)

			if r.policy.OnRetry != nil {
				r.policy.OnRetry(attempt, out.LastError, delay)
			}

			// 等待延迟，同时监听 context 取消
			if err := r.sleep(ctx, delay); err != nil {
				out.Status = StatusAborted
				out.LastError = err
				return nil, out, fmt.Errorf("retry cancelled after %d attempts: %w", out.Attempts, err)
			}
			out.Delays = append(out.Delays, delay)
		}

		out.Attempts = attempt
		result, err := fn()
		if err == nil {
			out.Status = StatusSucceeded
			out.LastError = nil
			if attempt > 1 {
				r.logger.Info("retry succeeded", zap.Int("attempt", attempt))
			}
			return result, out, nil
		}
		out.LastError = err

		// 致命错误不重试，也不允许被吞掉
		if types.IsFatal(err) || IsPermanent(err) || ctx.Err() != nil {
			out.Status = StatusAborted
			r.logger.Warn("non-retryable failure",
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			return nil, out, err
		}

		if !r.isRetryable(err) {
			r.logger.Debug("error not in retryable set", zap.Error(err))
			break
		}
	}

	return r.exhausted(out)
}

func (r *fixedRetryer) exhausted(out *Outcome) (any, *Outcome, error) {
	if r.policy.Exhaustion == ExhaustContinue {
		out.Status = StatusAbsorbed
		r.logger.Warn("retries exhausted, continuing",
			zap.Int("attempts", out.Attempts),
			zap.Error(out.LastError),
		)
		return nil, out, nil
	}

	out.Status = StatusFailed
	r.logger.Warn("retries exhausted",
		zap.Int("attempts", out.Attempts),
		zap.Error(out.LastError),
	)
	return nil, out, types.NewExhaustedRetry(out.Attempts, out.LastError)
}

func (r *fixedRetryer) notify(out *Outcome) {
	if r.observe != nil {
		r.observe(r.scope, out)
	}
}

// isRetryable 检查错误是否可重试
func (r *fixedRetryer) isRetryable(err error) bool {
	if len(r.policy.RetryableErrors) == 0 {
		return true
	}
	for _, retryableErr := range r.policy.RetryableErrors {
		if errors.Is(err, retryableErr) {
			return true
		}
	}
	return types.IsRetryable(err)
}

func timerSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// PermanentError 标记不应重试的错误
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent 将错误包装为不可重试错误
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent 检查错误是否被 Permanent 包装
func IsPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p)
}

// StripPermanent 去掉 Permanent 标记，返回原始错误。
// 标记只在产生它的重试器内有效，跨层返回前应当去除
func StripPermanent(err error) error {
	var p *PermanentError
	if errors.As(err, &p) {
		return p.Err
	}
	return err
}
