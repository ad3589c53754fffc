package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

/**
 * Custom error types for the OCR batch server
 *
 * Design Pattern: Factory Pattern for error creation
 * Every request-level failure and every per-page failure is a ProcessingError
 * so handlers can map codes to HTTP statuses without string matching.
 */

// ErrorCode enum for structured error handling
type ErrorCode string

const (
	// Request errors
	ErrorValidationFailed  ErrorCode = "VALIDATION_FAILED"
	ErrorUnsupportedFormat ErrorCode = "UNSUPPORTED_FORMAT"

	// Processing errors
	ErrorConversionFailed  ErrorCode = "CONVERSION_FAILED"
	ErrorProcessingTimeout ErrorCode = "PROCESSING_TIMEOUT"

	// External capability errors
	ErrorCapabilityFailed     ErrorCode = "CAPABILITY_FAILED"
	ErrorResponseShapeInvalid ErrorCode = "RESPONSE_SHAPE_INVALID"
)

// ProcessingError represents a structured processing error
type ProcessingError struct {
	Code      ErrorCode
	Message   string
	BatchID   string
	Timestamp time.Time
	Details   map[string]interface{}
	Cause     error
}

func (e *ProcessingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ProcessingError) Unwrap() error {
	return e.Cause
}

// Factory functions for common errors

func NewValidationError(message string) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorValidationFailed,
		Message:   message,
		Timestamp: time.Now(),
	}
}

func NewUnsupportedFormatError(batchID string, fileName string, mimeType string) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorUnsupportedFormat,
		Message:   fmt.Sprintf("Unsupported file format: %s", mimeType),
		BatchID:   batchID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"file_name": fileName,
			"mime_type": mimeType,
		},
	}
}

func NewConversionError(batchID string, fileName string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorConversionFailed,
		Message:   fmt.Sprintf("PDF conversion failed for %s", fileName),
		BatchID:   batchID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"file_name": fileName,
		},
		Cause: cause,
	}
}

func NewProcessingTimeoutError(batchID string, duration time.Duration, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorProcessingTimeout,
		Message:   fmt.Sprintf("Processing timed out after %v", duration),
		BatchID:   batchID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"timeout_duration": duration.String(),
		},
		Cause: cause,
	}
}

func NewCapabilityError(provider string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorCapabilityFailed,
		Message:   fmt.Sprintf("%s request failed", provider),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"provider": provider,
		},
		Cause: cause,
	}
}

func NewResponseShapeError(provider string, reason string) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorResponseShapeInvalid,
		Message:   fmt.Sprintf("%s returned an unexpected response: %s", provider, reason),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"provider": provider,
		},
	}
}

// AsProcessingError returns the first ProcessingError in err's chain
func AsProcessingError(err error) (*ProcessingError, bool) {
	var pe *ProcessingError
	if stderrors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// CodeOf returns the code of the first ProcessingError in err's chain, or "".
func CodeOf(err error) ErrorCode {
	if pe, ok := AsProcessingError(err); ok {
		return pe.Code
	}
	return ""
}

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool {
	return CodeOf(err) == ErrorValidationFailed
}

// IsCapabilityError reports whether err came from the external capability.
// Malformed responses count as capability failures.
func IsCapabilityError(err error) bool {
	switch CodeOf(err) {
	case ErrorCapabilityFailed, ErrorResponseShapeInvalid, ErrorProcessingTimeout:
		return true
	}
	return false
}

// ToMap converts error to map for failure event payloads
func (e *ProcessingError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code": string(e.Code),
		"message":    e.Message,
		"timestamp":  e.Timestamp,
	}

	if e.BatchID != "" {
		result["batch_id"] = e.BatchID
	}

	for k, v := range e.Details {
		result[k] = v
	}

	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}

	return result
}
