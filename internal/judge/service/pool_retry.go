package service

import (
	"context"
	"strconv"
	"time"

	"hsoj/internal/common/mq"
	appErr "hsoj/pkg/errors"
	"hsoj/pkg/utils/logger"

	"go.uber.org/zap"
)

const poolRetryHeader = "x-pool-retry"

// PoolRetry republishes judge messages that found every slot busy.
type PoolRetry struct {
	Topic      string
	DeadLetter string
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

func (p PoolRetry) enabled() bool {
	return p.Topic != ""
}

// acquireSlot takes a judge slot. wait <= 0 blocks until one frees up.
func (s *Service) acquireSlot(ctx context.Context, wait time.Duration) error {
	if wait <= 0 {
		select {
		case s.sem <- struct{}{}:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return appErr.New(appErr.JudgeQueueFull).WithMessage("judge pool is full")
	}
}

func (s *Service) releaseSlot() {
	select {
	case <-s.sem:
	default:
	}
}

// ParsePoolRetryCount reads the pool retry counter header.
func ParsePoolRetryCount(headers map[string]string) int {
	raw, ok := headers[poolRetryHeader]
	if !ok {
		return 0
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val < 0 {
		return 0
	}
	return val
}

func cloneForRetry(msg *mq.Message, retryCount int) *mq.Message {
	out := mq.NewMessage(msg.Body)
	out.ID = msg.ID
	out.MaxRetries = msg.MaxRetries
	out.Expiration = msg.Expiration
	for k, v := range msg.Headers {
		out.Headers[k] = v
	}
	out.Headers[poolRetryHeader] = strconv.Itoa(retryCount)
	return out
}

// Backoff doubles BaseDelay per retry, capped at MaxDelay.
func (p PoolRetry) Backoff(retryCount int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	delay := p.BaseDelay
	for i := 0; i < retryCount; i++ {
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			break
		}
		delay *= 2
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// Requeue publishes msg again on the retry topic after a backoff, or to the
// dead letter topic once MaxRetries is reached.
func (p PoolRetry) Requeue(ctx context.Context, queue mq.Producer, msg *mq.Message) error {
	if queue == nil || !p.enabled() {
		return appErr.New(appErr.ServiceUnavailable).WithMessage("retry queue is not configured")
	}
	retryCount := ParsePoolRetryCount(msg.Headers)
	if p.MaxRetries > 0 && retryCount >= p.MaxRetries {
		if p.DeadLetter == "" {
			logger.Warn(ctx, "pool retry exhausted without dead letter", zap.Int("retry_count", retryCount), zap.String("message_id", msg.ID))
			return appErr.New(appErr.JudgeQueueFull).WithMessage("judge pool is full")
		}
		logger.Warn(ctx, "pool retry exhausted, sending to dead letter", zap.Int("retry_count", retryCount), zap.String("topic", p.DeadLetter))
		return queue.Publish(ctx, p.DeadLetter, cloneForRetry(msg, retryCount))
	}

	delay := p.Backoff(retryCount)
	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	logger.Info(ctx, "judge pool full, requeue", zap.Int("retry_count", retryCount+1), zap.Duration("delay", delay), zap.String("topic", p.Topic))
	return queue.Publish(ctx, p.Topic, cloneForRetry(msg, retryCount+1))
}
