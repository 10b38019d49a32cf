package types

import (
	"errors"
	"testing"
)

func TestError_Format(t *testing.T) {
	err := NewError(ErrDuplicateName, "component already registered")
	want := "[DUPLICATE_NAME] component already registered"
	if err.Error() != want {
		t.Errorf("expected %q, got %q", want, err.Error())
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewError(ErrInitFailed, "init failed").WithCause(cause)

	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the cause")
	}
	if got := err.Error(); got != "[INIT_FAILED] init failed: connection refused" {
		t.Errorf("unexpected message: %q", got)
	}
}

func TestIsRetryable(t *testing.T) {
	if IsRetryable(errors.New("plain")) {
		t.Error("plain errors must not be retryable")
	}
	if IsRetryable(NewError(ErrStepFailed, "boom")) {
		t.Error("retryable defaults to false")
	}
	if !IsRetryable(NewError(ErrStepTimeout, "slow").WithRetryable(true)) {
		t.Error("expected retryable error")
	}
}

func TestGetErrorCode(t *testing.T) {
	err := Errorf(ErrUnknownWorkflow, "workflow not registered: %s", "etl")
	if GetErrorCode(err) != ErrUnknownWorkflow {
		t.Errorf("unexpected code: %s", GetErrorCode(err))
	}
	if GetErrorCode(errors.New("plain")) != "" {
		t.Error("plain errors carry no code")
	}
}
