package rxerr

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	err := New(CodeNDCNotFound, "no active packages for lisinopril")
	if !strings.Contains(err.Error(), "NDC_NOT_FOUND") {
		t.Errorf("expected code in message, got %q", err.Error())
	}

	wrapped := Wrap(CodeExternalAPI, "catalog lookup failed", errors.New("connection reset"))
	if !strings.Contains(wrapped.Error(), "connection reset") {
		t.Errorf("expected cause in message, got %q", wrapped.Error())
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(CodeAIService, "parser failed", cause)

	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to reach the cause")
	}
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"direct", New(CodeInvalidSIG, "quantity is zero"), CodeInvalidSIG},
		{"wrapped in fmt", fmt.Errorf("step 3: %w", New(CodeValidation, "bad input")), CodeValidation},
		{"plain error", errors.New("network down"), CodeExternalAPI},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeOf(tt.err); got != tt.want {
				t.Errorf("CodeOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIs(t *testing.T) {
	err := New(CodeNDCNotFound, "nothing matched")
	if !Is(err, CodeNDCNotFound) {
		t.Error("expected Is to match the code")
	}
	if Is(err, CodeInvalidSIG) {
		t.Error("expected Is to reject a different code")
	}
}
