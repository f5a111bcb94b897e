package util

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestPreconditionError(t *testing.T) {
	err := NewPreconditionError("modify_port", "gi1/0/3", "channel must be vlan/native or vlan/<id>", "got vlan/abc")

	msg := err.Error()
	for _, want := range []string{"modify_port", "gi1/0/3", "channel must be", "got vlan/abc"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error message should contain %q: %s", want, msg)
		}
	}

	if !errors.Is(err, ErrPreconditionFailed) {
		t.Errorf("PreconditionError should unwrap to ErrPreconditionFailed")
	}
}

func TestPreconditionErrorNoDetails(t *testing.T) {
	err := NewPreconditionError("modify_port", "gi1/0/3", "network must match channel", "")
	if strings.HasSuffix(err.Error(), ")") {
		t.Errorf("Error message should not have a details section: %s", err.Error())
	}
}

func TestIsPrecondition(t *testing.T) {
	wrapped := fmt.Errorf("action 7: %w", NewPreconditionError("op", "res", "pre", ""))
	if !IsPrecondition(wrapped) {
		t.Error("IsPrecondition should see through wrapping")
	}
	if IsPrecondition(errors.New("plain")) {
		t.Error("IsPrecondition should be false for unrelated errors")
	}
}

func TestValidationError(t *testing.T) {
	t.Run("single error", func(t *testing.T) {
		err := NewValidationError("hostname is required")
		if !strings.Contains(err.Error(), "hostname is required") {
			t.Errorf("Error message should contain the error: %s", err.Error())
		}
		if !errors.Is(err, ErrValidationFailed) {
			t.Errorf("ValidationError should unwrap to ErrValidationFailed")
		}
	})

	t.Run("multiple errors", func(t *testing.T) {
		err := NewValidationError("hostname is required", "username is required", "password is required")
		msg := err.Error()
		if !strings.Contains(msg, "hostname") || !strings.Contains(msg, "username") || !strings.Contains(msg, "password") {
			t.Errorf("Error message should contain all errors: %s", msg)
		}
	})
}

func TestValidationBuilder(t *testing.T) {
	t.Run("no errors", func(t *testing.T) {
		v := &ValidationBuilder{}
		v.Add(true, "this should not appear")

		if v.HasErrors() {
			t.Error("Should not have errors when all conditions are true")
		}
		if err := v.Build(); err != nil {
			t.Errorf("Build() should return nil when no errors: %v", err)
		}
	})

	t.Run("with errors", func(t *testing.T) {
		v := &ValidationBuilder{}
		v.Add(false, "first error")
		v.Add(true, "this passes")
		v.AddErrorf("formatted error: %d", 42)

		err := v.Build()
		if err == nil {
			t.Fatal("Build() should return error")
		}

		var validationErr *ValidationError
		if !errors.As(err, &validationErr) {
			t.Fatalf("Expected *ValidationError, got %T", err)
		}
		if len(validationErr.Errors) != 2 {
			t.Errorf("Expected 2 errors, got %d", len(validationErr.Errors))
		}
	})
}

func TestSentinelErrors(t *testing.T) {
	sentinels := []error{
		ErrNotFound,
		ErrInvalidConfig,
		ErrPreconditionFailed,
		ErrValidationFailed,
		ErrLocked,
	}

	for i, err1 := range sentinels {
		for j, err2 := range sentinels {
			if i != j && errors.Is(err1, err2) {
				t.Errorf("Sentinel errors should be distinct: %v == %v", err1, err2)
			}
		}
	}
}
