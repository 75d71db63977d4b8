package retry

import (
	"context"
	"time"

	"go.uber.org/zap"

	"flashswap-core/pkg/logger"
)

// Policy 有界的指数退避重试策略。
// 按外部调用类别 (wallet / venue) 各配一份，避免"口口相传的手动重试"。
type Policy struct {
	Name     string        // 日志里标识调用类别
	Attempts int           // 总尝试次数 (含第一次)
	Base     time.Duration // 首次退避时长
	Max      time.Duration // 退避时长上限
}

// PermanentError 包装不应重试的错误，Do 会立即返回。
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent marks err as non-retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// Do 执行 fn 直到成功、耗尽次数或 ctx 取消。
// fn 返回 Permanent 包装的错误时立即放弃。
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if p.Attempts < 1 {
		p.Attempts = 1
	}

	delay := p.Base
	var lastErr error

	for attempt := 1; attempt <= p.Attempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if pe, ok := lastErr.(*PermanentError); ok {
			return pe.Err
		}
		if attempt == p.Attempts {
			break
		}

		logger.Warn("call failed, backing off",
			zap.String("policy", p.Name),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(lastErr))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if p.Max > 0 && delay > p.Max {
			delay = p.Max
		}
	}

	if pe, ok := lastErr.(*PermanentError); ok {
		return pe.Err
	}
	return lastErr
}
