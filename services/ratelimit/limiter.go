// Package ratelimit paces outbound VAN calls and retries transient failures
// with exponential backoff.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Config holds limiter configuration
type Config struct {
	RequestsPerSecond float64
	BaseDelay         time.Duration
	BackoffMultiplier float64
	MaxDelay          time.Duration
	MaxAttempts       int
}

// DefaultConfig returns the default limiter configuration
func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: 5,
		BaseDelay:         time.Second,
		BackoffMultiplier: 2.0,
		MaxDelay:          30 * time.Second,
		MaxAttempts:       4,
	}
}

// Retryable is implemented by errors that know whether a retry may succeed
type Retryable interface {
	IsRetryable() bool
}

// IsRetryable reports whether err, or anything it wraps, is marked retryable
func IsRetryable(err error) bool {
	var r Retryable
	if errors.As(err, &r) {
		return r.IsRetryable()
	}
	return false
}

// Limiter shares one token bucket across all calls made through it
type Limiter struct {
	limiter *rate.Limiter
	config  Config
	logger  *zap.Logger

	mu                sync.Mutex
	consecutiveErrors int
}

// NewLimiter creates a new limiter; zero fields fall back to DefaultConfig
func NewLimiter(cfg Config, logger *zap.Logger) *Limiter {
	def := DefaultConfig()
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = def.RequestsPerSecond
	}
	if cfg.BackoffMultiplier <= 0 {
		cfg.BackoffMultiplier = def.BackoffMultiplier
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		config:  cfg,
		logger:  logger,
	}
}

// Wait blocks until the bucket allows the next call
func (l *Limiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// Backoff returns the delay before the given retry (1-based), capped at MaxDelay
func (l *Limiter) Backoff(retry int) time.Duration {
	if retry < 1 {
		retry = 1
	}
	delay := float64(l.config.BaseDelay) * math.Pow(l.config.BackoffMultiplier, float64(retry-1))
	return time.Duration(math.Min(delay, float64(l.config.MaxDelay)))
}

// ExecuteWithRetry runs fn under the limiter, retrying while fn returns a
// retryable error and attempts remain. The last error is returned as is.
func (l *Limiter) ExecuteWithRetry(ctx context.Context, op string, fn func() error) error {
	var lastErr error

	for attempt := 1; attempt <= l.config.MaxAttempts; attempt++ {
		if err := l.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter wait: %w", err)
		}

		lastErr = fn()
		if lastErr == nil {
			l.success()
			return nil
		}

		if !IsRetryable(lastErr) || attempt == l.config.MaxAttempts {
			return lastErr
		}

		wait := l.Backoff(l.failure())
		l.logger.Warn("retrying VAN call",
			zap.String("operation", op),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(lastErr))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}

	return lastErr
}

func (l *Limiter) failure() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.consecutiveErrors++
	return l.consecutiveErrors
}

func (l *Limiter) success() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.consecutiveErrors = 0
}
