package util

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"
	"time"
)

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"ECONNREFUSED", syscall.ECONNREFUSED, true},
		{"ETIMEDOUT", syscall.ETIMEDOUT, true},
		{"wrapped ECONNRESET", fmt.Errorf("dial: %w", syscall.ECONNRESET), true},
		{"ENOENT (not retryable)", syscall.ENOENT, false},
		{"postgres starting up", errors.New("FATAL: the database system is starting up"), true},
		{"sqlite busy", errors.New("database is locked (5) (SQLITE_BUSY)"), true},
		{"syntax error (not retryable)", errors.New("syntax error at or near \"SELEC\""), false},
		{"context canceled", context.Canceled, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryableError(tt.err); got != tt.expected {
				t.Errorf("IsRetryableError(%v) = %v, expected %v", tt.err, got, tt.expected)
			}
		})
	}
}

func fastRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts: 3,
		InitialWait: time.Millisecond,
		MaxWait:     2 * time.Millisecond,
	}
}

func TestRetryWithBackoff_ImmediateSuccess(t *testing.T) {
	calls := 0
	result, err := RetryWithBackoff(context.Background(), fastRetryConfig(), func(context.Context) (string, error) {
		calls++
		return "ok", nil
	}, "op")

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "ok" {
		t.Errorf("expected result 'ok', got %q", result)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestRetryWithBackoff_SuccessAfterRetries(t *testing.T) {
	calls := 0
	result, err := RetryWithBackoff(context.Background(), fastRetryConfig(), func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, syscall.ECONNREFUSED
		}
		return 42, nil
	}, "op")

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != 42 {
		t.Errorf("expected 42, got %d", result)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRetryWithBackoff_FailureAfterMaxRetries(t *testing.T) {
	calls := 0
	_, err := RetryWithBackoff(context.Background(), fastRetryConfig(), func(context.Context) (int, error) {
		calls++
		return 0, syscall.ETIMEDOUT
	}, "op")

	if err == nil {
		t.Fatal("expected error after max retries")
	}
	if !errors.Is(err, syscall.ETIMEDOUT) {
		t.Errorf("expected wrapped ETIMEDOUT, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRetryWithBackoff_NonRetryableError(t *testing.T) {
	calls := 0
	permanent := errors.New("password authentication failed")
	_, err := RetryWithBackoff(context.Background(), fastRetryConfig(), func(context.Context) (int, error) {
		calls++
		return 0, permanent
	}, "op")

	if !errors.Is(err, permanent) {
		t.Errorf("expected permanent error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call for non-retryable error, got %d", calls)
	}
}

func TestRetryWithBackoff_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := &RetryConfig{MaxAttempts: 5, InitialWait: time.Hour, MaxWait: time.Hour}

	calls := 0
	_, err := RetryWithBackoff(ctx, cfg, func(context.Context) (int, error) {
		calls++
		cancel()
		return 0, syscall.ECONNREFUSED
	}, "op")

	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestRetry_NoReturnValue(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetryConfig(), func(context.Context) error {
		calls++
		if calls == 1 {
			return syscall.EAGAIN
		}
		return nil
	}, "op")

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestIsContained(t *testing.T) {
	if !IsContained(fmt.Errorf("file a.json: %w", ErrParse)) {
		t.Error("parse errors should be contained")
	}
	if !IsContained(fmt.Errorf("file b.json: %w", ErrEmptyFile)) {
		t.Error("empty-file errors should be contained")
	}
	if !IsContained(fmt.Errorf("%w: nil map write", ErrRecovered)) {
		t.Error("recovered panics should be contained")
	}
	if IsContained(fmt.Errorf("insert: %w", ErrStorage)) {
		t.Error("storage errors should not be contained")
	}
}

func TestFormatBytes(t *testing.T) {
	if got := FormatBytes(2048); got != "2.0 KiB" {
		t.Errorf("FormatBytes(2048) = %q, expected %q", got, "2.0 KiB")
	}
	if got := FormatBytes(-1); got != "0 B" {
		t.Errorf("FormatBytes(-1) = %q, expected %q", got, "0 B")
	}
}
