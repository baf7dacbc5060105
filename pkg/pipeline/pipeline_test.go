package pipeline

import (
	"testing"
	"time"
)

func TestComputeVerifyAfterHigh(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	got := ComputeVerifyAfter("high", from)
	if got == nil || !got.Equal(from.Add(7*24*time.Hour)) {
		t.Fatalf("got %v", got)
	}
}

func TestComputeVerifyAfterStaticIsNil(t *testing.T) {
	from := time.Now().UTC()
	if got := ComputeVerifyAfter("static", from); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}

func TestComputeVerifyAfterUnknownDefaultsToLow(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	got := ComputeVerifyAfter("bogus", from)
	if got == nil || !got.Equal(from.Add(365*24*time.Hour)) {
		t.Fatalf("got %v", got)
	}
}

func TestJoinLines(t *testing.T) {
	got := joinLines([]string{"a", "b", "c"})
	if got != "a\nb\nc" {
		t.Fatalf("got %q", got)
	}
}
