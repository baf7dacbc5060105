package errs

import (
	"errors"
	"fmt"
	"testing"
)

func TestNewFormatsMessage(t *testing.T) {
	err := New(InvalidInput, "bad value %d", 42)
	if err.Kind != InvalidInput {
		t.Fatalf("got kind %v", err.Kind)
	}
	if err.Error() != "bad value 42" {
		t.Fatalf("got message %q", err.Error())
	}
}

func TestWrapIncludesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(StoreUnavailable, cause, "query failed")
	if err.Error() != "query failed: connection refused" {
		t.Fatalf("got %q", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected Unwrap to expose the original cause")
	}
}

func TestKindOfExtractsKindThroughWrapping(t *testing.T) {
	err := New(NotFound, "memory not found")
	wrapped := fmt.Errorf("handler failed: %w", err)
	if got := KindOf(wrapped); got != NotFound {
		t.Fatalf("got kind %v want %v", got, NotFound)
	}
}

func TestKindOfDefaultsToInternalForPlainErrors(t *testing.T) {
	if got := KindOf(errors.New("plain")); got != Internal {
		t.Fatalf("got kind %v want internal", got)
	}
}

func TestKindOfDefaultsToInternalForNil(t *testing.T) {
	if got := KindOf(nil); got != Internal {
		t.Fatalf("got kind %v want internal", got)
	}
}
