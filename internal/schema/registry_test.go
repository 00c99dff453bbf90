package schema

import (
	"errors"
	"testing"
)

func TestValidateAcceptsWellFormedPayload(t *testing.T) {
	reg, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = reg.Validate("follow", map[string]any{"uid": float64(1), "enable": true})
	if err != nil {
		t.Fatalf("Validate(follow): %v", err)
	}
}

func TestValidateRejectsSchemaViolation(t *testing.T) {
	reg, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = reg.Validate("follow", map[string]any{"enable": true}) // missing required uid
	if !errors.Is(err, ErrSchemaViolation) {
		t.Fatalf("Validate(missing uid): err = %v, want ErrSchemaViolation", err)
	}
}

func TestValidatePanicsOnUnregisteredName(t *testing.T) {
	reg, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer func() {
		if recover() == nil {
			t.Fatalf("expected a panic for an unregistered schema name")
		}
	}()
	_ = reg.Validate("no_such_schema", map[string]any{})
}

func TestDefaultReturnsASingleton(t *testing.T) {
	if Default() != Default() {
		t.Fatalf("Default() should return the same process-wide registry instance")
	}
}
