// Package resilience 为每一次远端调用提供有限次重试与限流等待。
//   - 限流（服务端给出等待时间）不计入重试次数，等待后无限重试
//   - 权限类错误（实现 Permanent() bool）直接返回，不重试
//   - 其他错误累计次数后立即重试（Backoff 可选），超过 MaxAttempts 后返回 ErrCallExhausted
package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/wzxcff/APIScraperTG/internal/logger"
)

const (
	DefaultMaxAttempts = 3
	DefaultBackoff     = time.Duration(0)
)

// ErrCallExhausted 重试次数已用尽
var ErrCallExhausted = errors.New("call attempts exhausted")

// ExhaustedError 记录用尽重试的调用
type ExhaustedError struct {
	Label    string
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: %d attempts exhausted: %v", e.Label, e.Attempts, e.Err)
}

func (e *ExhaustedError) Is(target error) bool {
	return target == ErrCallExhausted
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// rateLimited 由会话层的限流错误实现
type rateLimited interface {
	RetryAfter() time.Duration
}

// permanent 由不可重试的错误实现
type permanent interface {
	Permanent() bool
}

// Caller 保存重试策略，可被所有远端调用共享
type Caller struct {
	MaxAttempts int
	// Backoff 普通失败后重试前的等待时间，默认为 0
	Backoff time.Duration
	timer   retry.Timer
}

func NewCaller(maxAttempts int) *Caller {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Caller{
		MaxAttempts: maxAttempts,
		Backoff:     DefaultBackoff,
	}
}

// delay 限流时等待服务端要求的时间，其他失败使用固定退避
func (c *Caller) delay(_ uint, err error, _ *retry.Config) time.Duration {
	var limited rateLimited
	if errors.As(err, &limited) {
		return limited.RetryAfter()
	}
	return c.Backoff
}

// Do 执行无返回值的远端调用
func (c *Caller) Do(ctx context.Context, label string, op func(ctx context.Context) error) error {
	_, err := Call(ctx, c, label, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Call 执行 op 并返回其结果
// 等待重试期间 ctx 被取消时返回 ctx.Err()
func Call[T any](ctx context.Context, c *Caller, label string, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	maxAttempts := c.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	attempts := 0
	var final error
	options := []retry.Option{
		retry.Context(ctx),
		retry.UntilSucceeded(),
		retry.DelayType(c.delay),
		retry.LastErrorOnly(true),
	}
	if c.timer != nil {
		options = append(options, retry.WithTimer(c.timer))
	}

	result, err := retry.DoWithData(func() (T, error) {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}

		var limited rateLimited
		if errors.As(err, &limited) {
			logger.Warnf("[Resilience] %s 触发限流，%s 后重试", label, limited.RetryAfter())
			return zero, err
		}

		var fatal permanent
		if errors.As(err, &fatal) && fatal.Permanent() {
			final = fmt.Errorf("%s: %w", label, err)
			return zero, retry.Unrecoverable(final)
		}

		if ctx.Err() != nil {
			final = fmt.Errorf("%s: %w", label, ctx.Err())
			return zero, retry.Unrecoverable(final)
		}

		attempts++
		if attempts > maxAttempts {
			logger.Errorf("[Resilience] %s 已重试 %d 次仍失败: %v", label, maxAttempts, err)
			final = &ExhaustedError{Label: label, Attempts: attempts, Err: err}
			return zero, retry.Unrecoverable(final)
		}
		logger.Warnf("[Resilience] %s 调用失败 (第 %d/%d 次重试): %v", label, attempts, maxAttempts, err)
		return zero, err
	}, options...)
	if err == nil {
		return result, nil
	}
	if final != nil {
		return zero, final
	}
	return zero, fmt.Errorf("%s: 等待重试被取消: %w", label, err)
}
