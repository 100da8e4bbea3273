package backup

import (
	"errors"
	"fmt"
)

// PipelineError represents errors that occur during backup, upload, retention
// and restore operations.
type PipelineError struct {
	Type    ErrorType              `json:"type"`
	Message string                 `json:"message"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *PipelineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause error
func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// ErrorType classifies pipeline errors. The uploader's retry decision is
// driven entirely by this classification.
type ErrorType string

const (
	ErrorTypeConfiguration ErrorType = "CONFIGURATION_ERROR"
	ErrorTypeValidation    ErrorType = "VALIDATION_ERROR"
	ErrorTypeStorage       ErrorType = "STORAGE_ERROR"
	ErrorTypeNetwork       ErrorType = "NETWORK_ERROR"
	ErrorTypeCloud         ErrorType = "CLOUD_ERROR"
	ErrorTypeNotFound      ErrorType = "NOT_FOUND_ERROR"
	ErrorTypeConflict      ErrorType = "CONFLICT_ERROR"
	ErrorTypeRestore       ErrorType = "RESTORE_ERROR"
)

// NewPipelineError creates a new PipelineError
func NewPipelineError(errorType ErrorType, message string, cause error) *PipelineError {
	return &PipelineError{
		Type:    errorType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// WithContext adds context information to the error
func (e *PipelineError) WithContext(key string, value interface{}) *PipelineError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// Common error constructors

func NewConfigurationError(message string, cause error) *PipelineError {
	return NewPipelineError(ErrorTypeConfiguration, message, cause)
}

func NewValidationError(message string, cause error) *PipelineError {
	return NewPipelineError(ErrorTypeValidation, message, cause)
}

func NewStorageError(message string, cause error) *PipelineError {
	return NewPipelineError(ErrorTypeStorage, message, cause)
}

func NewNetworkError(message string, cause error) *PipelineError {
	return NewPipelineError(ErrorTypeNetwork, message, cause)
}

func NewCloudError(message string, cause error) *PipelineError {
	return NewPipelineError(ErrorTypeCloud, message, cause)
}

func NewNotFoundError(message string, cause error) *PipelineError {
	return NewPipelineError(ErrorTypeNotFound, message, cause)
}

func NewConflictError(message string, cause error) *PipelineError {
	return NewPipelineError(ErrorTypeConflict, message, cause)
}

func NewRestoreError(message string, cause error) *PipelineError {
	return NewPipelineError(ErrorTypeRestore, message, cause)
}

// IsRetryable determines if an error is worth another upload attempt.
// Transient transport failures (truncated streams, handshake errors) surface
// as NETWORK_ERROR; anything else will not self-resolve.
func IsRetryable(err error) bool {
	var perr *PipelineError
	if errors.As(err, &perr) {
		return perr.Type == ErrorTypeNetwork
	}
	return false
}

// IsPermanent determines if an error is permanent and should not be retried
func IsPermanent(err error) bool {
	var perr *PipelineError
	if errors.As(err, &perr) {
		switch perr.Type {
		case ErrorTypeCloud, ErrorTypeValidation, ErrorTypeConfiguration, ErrorTypeNotFound:
			return true
		}
	}
	return false
}

// IsNotFound reports whether err is a resource-not-found rejection.
func IsNotFound(err error) bool {
	var perr *PipelineError
	if errors.As(err, &perr) {
		return perr.Type == ErrorTypeNotFound
	}
	return false
}
