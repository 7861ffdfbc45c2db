package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"
)

func TestWrapPreservesCause(t *testing.T) {
	cause := stdErrors.New("connection reset")
	err := Wrap(CodeDependency, cause, "create transfer")

	if !stdErrors.Is(err, cause) {
		t.Fatal("expected wrapped cause to survive errors.Is")
	}
	if err.Code() != CodeDependency {
		t.Fatalf("unexpected code: %s", err.Code())
	}
}

func TestAsFindsTypedErrorInChain(t *testing.T) {
	inner := New(CodeStateConflict, "funds already transferred")
	wrapped := fmt.Errorf("refund order: %w", inner)

	typed := As(wrapped)
	if typed == nil {
		t.Fatal("expected typed error")
	}
	if typed.Code() != CodeStateConflict {
		t.Fatalf("unexpected code: %s", typed.Code())
	}
}

func TestIsRetryable(t *testing.T) {
	if IsRetryable(New(CodeStateConflict, "wrong state")) {
		t.Fatal("state conflicts must not be retried")
	}
	if !IsRetryable(Wrap(CodeDependency, stdErrors.New("timeout"), "processor call")) {
		t.Fatal("dependency failures are retryable")
	}
	if !IsRetryable(stdErrors.New("untyped")) {
		t.Fatal("untyped errors default to retryable")
	}
}

func TestMetadataForUnknownCode(t *testing.T) {
	meta := MetadataFor(Code("BOGUS"))
	if meta.HTTPStatus != 500 {
		t.Fatalf("expected internal metadata, got %d", meta.HTTPStatus)
	}
}
