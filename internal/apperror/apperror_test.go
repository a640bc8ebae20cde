package apperror

import (
	"errors"
	"fmt"
	"testing"
)

func TestAs_UnwrapsWrappedError(t *testing.T) {
	base := ValidationError("bad wager", Detail{Field: "wager_amount", Message: "out of range"})
	wrapped := fmt.Errorf("commit failed: %w", base)

	got, ok := As(wrapped)
	if !ok {
		t.Fatal("As() = false, want true")
	}
	if got.Code != "VALIDATION_ERROR" || got.StatusCode != 400 {
		t.Errorf("got %+v", got)
	}
}

func TestAs_NonAppError(t *testing.T) {
	if _, ok := As(errors.New("plain")); ok {
		t.Fatal("As() = true for a plain error, want false")
	}
}

func TestWrap_PreservesCodeAddsCause(t *testing.T) {
	base := Internal("db unreachable")
	wrapped := base.Wrap(errors.New("connection refused"))

	if wrapped.Code != base.Code || wrapped.StatusCode != base.StatusCode {
		t.Errorf("Wrap() changed code/status: %+v", wrapped)
	}
	if errors.Unwrap(wrapped) == nil {
		t.Error("Unwrap() = nil, want the wrapped cause")
	}
}
