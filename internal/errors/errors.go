package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents stable error codes for all raised failure modes.
// Lookup misses and grammar degradation are not errors and have no code.
type ErrorCode string

const (
	// ValidationError indicates malformed batch input, rejected before any write
	ValidationError ErrorCode = "VALIDATION_ERROR"
	// DeserializationError indicates a persisted record could not be decoded
	DeserializationError ErrorCode = "DESERIALIZATION_ERROR"
	// StorageError indicates the backing store failed a read or write
	StorageError ErrorCode = "STORAGE_ERROR"
	// ConfigInvalid indicates the configuration failed validation
	ConfigInvalid ErrorCode = "CONFIG_INVALID"
	// Timeout indicates a scan exceeded its deadline or was cancelled
	Timeout ErrorCode = "TIMEOUT"
	// InternalError indicates unexpected error
	InternalError ErrorCode = "INTERNAL_ERROR"
)

// FixActionType represents the type of fix action
type FixActionType string

const (
	// RunCommand suggests running a command
	RunCommand FixActionType = "run-command"
	// OpenDocs suggests opening documentation
	OpenDocs FixActionType = "open-docs"
)

// FixAction represents a suggested fix for an error
type FixAction struct {
	Type        FixActionType `json:"type"`
	Command     string        `json:"command,omitempty"`
	Safe        bool          `json:"safe,omitempty"`
	Description string        `json:"description,omitempty"`
	URL         string        `json:"url,omitempty"`
}

// BridgeError is an error with a stable code, message and suggestions
type BridgeError struct {
	Code           ErrorCode   `json:"code"`
	Message        string      `json:"message"`
	Details        interface{} `json:"details,omitempty"`
	SuggestedFixes []FixAction `json:"suggestedFixes,omitempty"`
	cause          error       // not exported to JSON
}

// NewBridgeError creates a new BridgeError with the default fixes for its code
func NewBridgeError(code ErrorCode, message string, cause error) *BridgeError {
	return &BridgeError{
		Code:           code,
		Message:        message,
		cause:          cause,
		SuggestedFixes: GetSuggestedFixes(code),
	}
}

// NewValidationError reports input rejected before any side effect
func NewValidationError(format string, args ...interface{}) *BridgeError {
	return NewBridgeError(ValidationError, fmt.Sprintf(format, args...), nil)
}

// NewDeserializationError reports a persisted record at location that could not be decoded
func NewDeserializationError(location string, cause error) *BridgeError {
	return NewBridgeError(DeserializationError, "cannot decode persisted record at "+location, cause).
		WithDetails(map[string]string{"location": location})
}

// NewStorageError wraps a backend failure
func NewStorageError(message string, cause error) *BridgeError {
	return NewBridgeError(StorageError, message, cause)
}

// Error implements the error interface
func (e *BridgeError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *BridgeError) Unwrap() error {
	return e.cause
}

// Is matches another *BridgeError with the same code, so callers can use
// errors.Is(err, &BridgeError{Code: ValidationError})
func (e *BridgeError) Is(target error) bool {
	t, ok := target.(*BridgeError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithDetails adds details to the error
func (e *BridgeError) WithDetails(details interface{}) *BridgeError {
	e.Details = details
	return e
}

// IsCode reports whether err, or anything it wraps, is a BridgeError with code
func IsCode(err error, code ErrorCode) bool {
	var be *BridgeError
	if stderrors.As(err, &be) {
		return be.Code == code
	}
	return false
}

// ErrorActions maps error codes to suggested fix actions
var ErrorActions = map[ErrorCode][]FixAction{
	DeserializationError: {
		{
			Type:        RunCommand,
			Command:     "crossbridge record --run ${run_id} --test ${test_id}",
			Safe:        true,
			Description: "Remove the record named in the error, then record the test again",
		},
	},
	ConfigInvalid: {
		{
			Type:        RunCommand,
			Command:     "crossbridge config show",
			Safe:        true,
			Description: "Inspect the effective configuration",
		},
	},
	Timeout: {
		{
			Type:        RunCommand,
			Command:     "crossbridge find --run ${run_id}",
			Safe:        true,
			Description: "Restrict the search to a single run",
		},
	},
}

// GetSuggestedFixes returns suggested fixes for an error code
func GetSuggestedFixes(code ErrorCode) []FixAction {
	if fixes, ok := ErrorActions[code]; ok {
		return fixes
	}
	return nil
}
