package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// RetryConfig bounds the extraction call.
type RetryConfig struct {
	MaxAttempts       int           // total attempts, default 3
	BaseDelay         time.Duration // delay after the first failure, doubled after each further one
	Timeout           time.Duration // per attempt; 0 disables
	RequestsPerMinute int           // shared limiter; 0 disables
}

// RetryingExtractor wraps a VisionExtractor with per-attempt timeouts,
// exponential backoff and a rate limiter shared by every page of a run.
// An answer that cannot be decoded even after repair counts as a failed attempt.
type RetryingExtractor struct {
	next    VisionExtractor
	cfg     RetryConfig
	limiter *rate.Limiter
	logger  *slog.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

func NewRetryingExtractor(next VisionExtractor, cfg RetryConfig, logger *slog.Logger) *RetryingExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseDelay < 0 {
		cfg.BaseDelay = 0
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}
	return &RetryingExtractor{
		next:    next,
		cfg:     cfg,
		limiter: limiter,
		logger:  logger,
		sleep:   sleepCtx,
	}
}

func (r *RetryingExtractor) ExtractPage(ctx context.Context, req PageRequest) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := r.cfg.BaseDelay << (attempt - 2)
			r.logger.Info("llm.retry.wait", "page", req.Page, "attempt", attempt, "delay_ms", delay.Milliseconds())
			if err := r.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("rate limiter wait failed: %w", err)
			}
		}

		raw, err := r.attempt(ctx, req)
		if err == nil {
			if attempt > 1 {
				r.logger.Info("llm.retry.ok", "page", req.Page, "attempt", attempt)
			}
			return raw, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		r.logger.Warn("llm.retry.attempt_failed", "page", req.Page, "attempt", attempt, "max_attempts", r.cfg.MaxAttempts, "error", err)
		if !IsRetryable(err) {
			break
		}
	}
	return nil, fmt.Errorf("page %d: giving up after %d attempt(s): %w", req.Page, r.cfg.MaxAttempts, lastErr)
}

func (r *RetryingExtractor) attempt(ctx context.Context, req PageRequest) ([]byte, error) {
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}
	raw, err := r.next.ExtractPage(ctx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("attempt timed out after %s: %w", r.cfg.Timeout, err)
		}
		return nil, err
	}
	if _, _, err := ParsePage(raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
