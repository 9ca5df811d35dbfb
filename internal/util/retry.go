package util

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
	"time"
)

// RetryConfig holds retry configuration
type RetryConfig struct {
	MaxAttempts int           // Maximum number of attempts, including the first
	InitialWait time.Duration // Initial wait, doubled after each failure
	MaxWait     time.Duration // Upper bound for a single wait
}

// DefaultRetryConfig returns the retry configuration used when connecting to the warehouse
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts: 4,
		InitialWait: 250 * time.Millisecond,
		MaxWait:     5 * time.Second,
	}
}

// IsRetryableError checks if an error is worth retrying.
// Only transient network conditions qualify: a database that is still starting,
// a reset connection or a timeout.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.EAGAIN,
			syscall.ETIMEDOUT,
			syscall.ECONNRESET,
			syscall.ECONNABORTED,
			syscall.ECONNREFUSED,
			syscall.ENETUNREACH,
			syscall.EHOSTUNREACH:
			return true
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"timeout",
		"timed out",
		"connection reset",
		"connection refused",
		"broken pipe",
		"the database system is starting up",
		"database is locked",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}

	return false
}

// RetryWithBackoff executes operation with exponential backoff.
// It stops early on non-retryable errors and when ctx is done.
func RetryWithBackoff[T any](ctx context.Context, cfg *RetryConfig, operation func(context.Context) (T, error), operationName string) (T, error) {
	var result T
	var err error

	if cfg == nil {
		cfg = DefaultRetryConfig()
	}
	wait := cfg.InitialWait

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		result, err = operation(ctx)
		if err == nil {
			if attempt > 1 {
				DebugLog("Retry: %s succeeded on attempt %d/%d", operationName, attempt, cfg.MaxAttempts)
			}
			return result, nil
		}

		if !IsRetryableError(err) {
			DebugLog("Retry: %s failed with non-retryable error: %v", operationName, err)
			return result, err
		}

		if attempt == cfg.MaxAttempts {
			WarnLog("Retry: %s failed after %d attempts: %v", operationName, cfg.MaxAttempts, err)
			return result, fmt.Errorf("max retries exceeded (%d attempts): %w", cfg.MaxAttempts, err)
		}

		DebugLog("Retry: %s failed (attempt %d/%d), retrying in %v: %v",
			operationName, attempt, cfg.MaxAttempts, wait, err)

		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(wait):
		}

		wait *= 2
		if wait > cfg.MaxWait {
			wait = cfg.MaxWait
		}
	}

	return result, fmt.Errorf("unexpected retry loop exit: %w", err)
}

// Retry executes operation with retry logic (no return value)
func Retry(ctx context.Context, cfg *RetryConfig, operation func(context.Context) error, operationName string) error {
	_, err := RetryWithBackoff(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, operation(ctx)
	}, operationName)
	return err
}
