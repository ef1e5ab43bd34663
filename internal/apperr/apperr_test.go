package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorIncludesCodeAndMessage(t *testing.T) {
	err := New(CodeInvalidChannel, "channel does not exist")
	if got := err.Error(); got != "INVALID_CHANNEL: channel does not exist" {
		t.Fatalf("unexpected Error() string: %q", got)
	}
}

func TestErrorFallsBackToCodeWhenMessageEmpty(t *testing.T) {
	err := New(CodeSFUDisabled, "")
	if got := err.Error(); got != "SFU_DISABLED" {
		t.Fatalf("expected bare code, got %q", got)
	}
}

func TestAsRecoversWrappedAppError(t *testing.T) {
	original := New(CodeVoiceNotJoined, "not joined")
	wrapped := fmt.Errorf("dispatch failed: %w", original)

	got, ok := As(wrapped)
	if !ok {
		t.Fatal("expected As to recover the wrapped AppError")
	}
	if got.Code != CodeVoiceNotJoined {
		t.Fatalf("expected code %q, got %q", CodeVoiceNotJoined, got.Code)
	}
}

func TestAsRejectsUnrelatedError(t *testing.T) {
	_, ok := As(errors.New("plain error"))
	if ok {
		t.Fatal("expected As to report false for a non-AppError")
	}
}
