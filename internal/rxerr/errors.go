// Package rxerr defines the domain error taxonomy for the calculation pipeline.
package rxerr

import (
	"errors"
	"fmt"
)

// Code is a machine-readable error code returned to callers.
type Code string

const (
	// CodeValidation indicates malformed caller input.
	CodeValidation Code = "VALIDATION_ERROR"
	// CodeInvalidSIG indicates the dosing text was unparseable or produced a non-positive quantity.
	CodeInvalidSIG Code = "INVALID_SIG"
	// CodeDrugNormalization indicates the name-to-RxCUI lookup failed. Recovered locally, never terminal.
	CodeDrugNormalization Code = "DRUG_NORMALIZATION_FAILED"
	// CodeNDCNotFound indicates no active candidate packages exist for the drug.
	CodeNDCNotFound Code = "NDC_NOT_FOUND"
	// CodeAIService indicates an LLM-backed adapter failed: empty response, malformed JSON, or schema violation.
	CodeAIService Code = "AI_SERVICE_ERROR"
	// CodeExternalAPI indicates a catalog or terminology API failed after retries were exhausted.
	CodeExternalAPI Code = "EXTERNAL_API_ERROR"
)

// Error is a typed domain error with a stable code and a human message.
// Upstream payloads stay in Cause and are never surfaced to callers.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Message, e.Cause.Error())
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates an error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates an error with a formatted message.
func Newf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an error that records cause for logs without exposing it to callers.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// CodeOf extracts the domain code from err, or CodeExternalAPI if err is not a domain error.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeExternalAPI
}

// Is reports whether err carries the given domain code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}
