package fn

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetrySucceedsAfterFailure(t *testing.T) {
	calls := 0
	r := Retry(context.Background(), RetryOpts{MaxAttempts: 3, InitialWait: time.Millisecond}, func(context.Context) Result[int] {
		calls++
		if calls < 2 {
			return Errf[int]("transient")
		}
		return Ok(42)
	})
	if r.IsErr() {
		t.Fatalf("expected success, got %v", r.Error())
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func TestRetryNonRetryableStopsEarly(t *testing.T) {
	fatal := errors.New("fatal")
	calls := 0
	r := Retry(context.Background(), RetryOpts{
		MaxAttempts: 5,
		InitialWait: time.Millisecond,
		Retryable:   func(err error) bool { return !errors.Is(err, fatal) },
	}, func(context.Context) Result[int] {
		calls++
		return Err[int](fatal)
	})
	if r.IsOk() {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	onRetry := 0
	r := Retry(context.Background(), RetryOpts{
		MaxAttempts: 3,
		InitialWait: time.Millisecond,
		OnRetry:     func(int, error) { onRetry++ },
	}, func(context.Context) Result[int] {
		calls++
		return Errf[int]("always fails")
	})
	if r.IsOk() {
		t.Fatal("expected error")
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
	if onRetry != 2 {
		t.Fatalf("expected 2 retry notifications, got %d", onRetry)
	}
}

func TestRetryCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := Retry(ctx, RetryOpts{MaxAttempts: 3, InitialWait: time.Hour}, func(context.Context) Result[int] {
		return Errf[int]("nope")
	})
	_, err := r.Unwrap()
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
