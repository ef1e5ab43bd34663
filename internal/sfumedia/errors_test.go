package sfumedia

import (
	"errors"
	"testing"
)

func TestPeerErrorWrapsUnderlyingError(t *testing.T) {
	err := fatal("usr_1", "create-transport", "SFU_REQUEST_FAILED", ErrTransportNotFound)

	if err.Kind != ErrKindFatal {
		t.Fatalf("expected ErrKindFatal, got %v", err.Kind)
	}
	if !errors.Is(err, ErrTransportNotFound) {
		t.Fatal("expected errors.Is to see through to the wrapped sentinel")
	}
	if got := err.Error(); got == "" {
		t.Fatal("expected a non-empty error message")
	}
}

func TestPeerErrorMessageFallsBackWhenUnwrapIsNil(t *testing.T) {
	err := &PeerError{Kind: ErrKindTransient, UserID: "usr_1", Op: "produce", Message: "no available slot"}
	got := err.Error()
	if got != "produce failed for peer usr_1: no available slot" {
		t.Fatalf("unexpected message: %q", got)
	}
}

func TestClosedErrorCarriesNotReadyCode(t *testing.T) {
	err := closed("usr_1", "consume")
	if err.Code != "SFU_NOT_READY" {
		t.Fatalf("expected SFU_NOT_READY, got %q", err.Code)
	}
	if err.Kind != ErrKindPeerClosed {
		t.Fatalf("expected ErrKindPeerClosed, got %v", err.Kind)
	}
	if !errors.Is(err, ErrPeerNotActive) {
		t.Fatal("expected closed() to wrap ErrPeerNotActive")
	}
}

func TestTransientErrorKind(t *testing.T) {
	err := transient("usr_1", "restart-ice", "SFU_REQUEST_FAILED", ErrPeerNotFound)
	if err.Kind != ErrKindTransient {
		t.Fatalf("expected ErrKindTransient, got %v", err.Kind)
	}
}
