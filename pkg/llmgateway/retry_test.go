package llmgateway

import (
	"context"
	"errors"
	"testing"
)

func TestWithRetriesSucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	result, err := withRetries(context.Background(), "test", 5, func(ctx context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("transient")
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != 42 {
		t.Fatalf("got %d want 42", result)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestWithRetriesAbortsOnNonRetryable(t *testing.T) {
	calls := 0
	_, err := withRetries(context.Background(), "test", 5, func(ctx context.Context) (int, error) {
		calls++
		return 0, &httpError{StatusCode: 401, Body: "unauthorized"}
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("expected exactly 1 call for a non-retryable error, got %d", calls)
	}
}

func TestBackoffCapsAtTenSeconds(t *testing.T) {
	if got := backoff(10); got.Seconds() < 10 || got.Seconds() > 10.6 {
		t.Fatalf("expected capped backoff near 10s, got %s", got)
	}
}
