package errors

import (
	"errors"
	"testing"
)

func TestDomainError(t *testing.T) {
	t.Run("New", func(t *testing.T) {
		err := New(CodeNotFound, "binding not found")
		if err.Error() != "[NOT_FOUND] binding not found" {
			t.Errorf("expected [NOT_FOUND] binding not found, got %s", err.Error())
		}
	})

	t.Run("Wrap", func(t *testing.T) {
		original := errors.New("broken pipe")
		err := Wrap(original, CodeTransport, "worker request failed")
		expected := "[TRANSPORT_ERROR] worker request failed: broken pipe"
		if err.Error() != expected {
			t.Errorf("expected %s, got %s", expected, err.Error())
		}
	})

	t.Run("IsCode", func(t *testing.T) {
		err := New(CodeResolution, "unbound nonlocal target")
		if !IsCode(err, CodeResolution) {
			t.Error("expected IsCode to return true for CodeResolution")
		}
		if IsCode(err, CodeConflict) {
			t.Error("expected IsCode to return false for CodeConflict")
		}
	})

	t.Run("IsCodeWithWrapped", func(t *testing.T) {
		original := errors.New("timeout")
		err := Wrap(original, CodeTransport, "parse request")
		if !IsCode(err, CodeTransport) {
			t.Error("expected IsCode to return true for wrapped CodeTransport")
		}
	})

	t.Run("Context", func(t *testing.T) {
		err := New(CodeResolution, "relative import escapes project root")
		err = AddContext(err, CtxPath, "pkg/sub/mod.py")
		var de *DomainError
		if !errors.As(err, &de) {
			t.Fatal("expected DomainError")
		}
		if de.Context[CtxPath] != "pkg/sub/mod.py" {
			t.Errorf("unexpected context: %v", de.Context)
		}
	})
}
