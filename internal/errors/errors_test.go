// Package errors tests for coded application errors.
package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

// TestAppError_Error verifies message formatting with and without a cause.
func TestAppError_Error(t *testing.T) {
	plain := New(ErrNoteNotFound, "note missing")
	if plain.Error() != "[NOTE_NOT_FOUND] note missing" {
		t.Errorf("Error() = %q", plain.Error())
	}

	wrapped := Wrap(ErrDatabase, "upsert failed", stderrors.New("disk full"))
	if wrapped.Error() != "[DATABASE_ERROR] upsert failed: disk full" {
		t.Errorf("Error() = %q", wrapped.Error())
	}
}

// TestIs verifies code matching through wrapped chains.
func TestIs(t *testing.T) {
	base := New(ErrNotFound, "gone")
	if !Is(base, ErrNotFound) {
		t.Error("Is should match the direct code")
	}
	if Is(base, ErrNetwork) {
		t.Error("Is should not match a different code")
	}

	chained := fmt.Errorf("replay: %w", base)
	if !Is(chained, ErrNotFound) {
		t.Error("Is should match through fmt.Errorf wrapping")
	}

	if Is(stderrors.New("plain"), ErrNotFound) {
		t.Error("Is should be false for non-AppError")
	}
}

// TestCodeOf verifies code extraction with the internal fallback.
func TestCodeOf(t *testing.T) {
	if CodeOf(Newf(ErrJobTimeout, "gave up after %d polls", 45)) != ErrJobTimeout {
		t.Error("CodeOf lost the code")
	}
	if CodeOf(stderrors.New("plain")) != ErrInternal {
		t.Error("CodeOf should default to ErrInternal")
	}
}

// TestUnwrap verifies stdlib errors.Is reaches the cause.
func TestUnwrap(t *testing.T) {
	cause := stderrors.New("timeout")
	err := Wrap(ErrNetwork, "poll failed", cause)
	if !stderrors.Is(err, cause) {
		t.Error("errors.Is should reach the wrapped cause")
	}
}
