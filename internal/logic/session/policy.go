package session

import (
	"context"
	"time"

	"github.com/zeromicro/go-zero/core/fx"

	"ilowa-market-sol/pkg/logger"
)

// RetryPolicy 重试策略：MaxAttempts 为总尝试次数；BackoffFactor <= 1 时为固定间隔
type RetryPolicy struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// Delay 第 attempt 次失败后（从 1 开始）的等待时间
func (p RetryPolicy) Delay(attempt int) time.Duration {
	delay := p.InitialDelay
	if p.BackoffFactor > 1 {
		for i := 1; i < attempt; i++ {
			delay = time.Duration(float64(delay) * p.BackoffFactor)
			if p.MaxDelay > 0 && delay >= p.MaxDelay {
				return p.MaxDelay
			}
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// Policy 会话策略，作为数据传入 Orchestrator
type Policy struct {
	Blockhash       RetryPolicy
	ConfirmInterval time.Duration   // 确认轮询间隔
	ConfirmDeadline time.Duration   // 确认轮询总时长，超时报告为未确认
	Commitment      string          // 视为确认的级别
	ResyncDelays    []time.Duration // 确认后读侧缓存重同步的延迟
}

func DefaultPolicy() Policy {
	return Policy{
		Blockhash: RetryPolicy{
			MaxAttempts:   3,
			InitialDelay:  300 * time.Millisecond,
			MaxDelay:      2 * time.Second,
			BackoffFactor: 2,
		},
		ConfirmInterval: time.Second,
		ConfirmDeadline: 30 * time.Second,
		Commitment:      "confirmed",
		ResyncDelays:    []time.Duration{2 * time.Second, 6 * time.Second},
	}
}

// retry 按策略执行 fn，ctx 取消时立即返回。
// 固定间隔交给 fx.DoWithRetryCtx（失败时返回全部尝试的错误）；指数退避自行计算间隔。
func retry(ctx context.Context, p RetryPolicy, operation string, fn func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	if p.BackoffFactor <= 1 {
		return fx.DoWithRetryCtx(ctx, func(ctx context.Context, retryCount int) error {
			if retryCount > 0 {
				logger.Warnf("[Orchestrator] %s retrying: attempt=%d/%d, interval=%v",
					operation, retryCount+1, attempts, p.Delay(retryCount))
			}
			return fn(ctx)
		}, fx.WithRetry(attempts), fx.WithInterval(p.Delay(1)))
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			if attempt > 1 {
				logger.Infof("[Orchestrator] %s succeeded after %d attempts", operation, attempt)
			}
			return nil
		}
		if attempt == attempts {
			break
		}

		delay := p.Delay(attempt)
		logger.Warnf("[Orchestrator] %s failed, retrying: attempt=%d/%d, retry_in=%v, err=%v",
			operation, attempt, attempts, delay, lastErr)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}
