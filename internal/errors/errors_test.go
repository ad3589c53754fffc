package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"
	"time"
)

func TestProcessingErrorMessage(t *testing.T) {
	cause := stderrors.New("exit status 1")
	err := NewConversionError("batch-1", "scan.pdf", cause)

	want := "CONVERSION_FAILED: PDF conversion failed for scan.pdf (caused by: exit status 1)"
	if got := err.Error(); got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
	if !stderrors.Is(err, cause) {
		t.Fatalf("expected Unwrap to expose the cause")
	}

	plain := NewValidationError("Query and text are required.")
	if got := plain.Error(); got != "VALIDATION_FAILED: Query and text are required." {
		t.Fatalf("unexpected message: %q", got)
	}
}

func TestCodeOfWrapped(t *testing.T) {
	base := NewCapabilityError("gemini", context.DeadlineExceeded)
	wrapped := fmt.Errorf("page 3: %w", base)

	if got := CodeOf(wrapped); got != ErrorCapabilityFailed {
		t.Fatalf("CodeOf() = %q, want %q", got, ErrorCapabilityFailed)
	}
	if CodeOf(stderrors.New("plain")) != "" {
		t.Fatalf("expected empty code for a plain error")
	}
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		validation bool
		capability bool
	}{
		{"validation", NewValidationError("missing"), true, false},
		{"capability", NewCapabilityError("mageagent", nil), false, true},
		{"shape", NewResponseShapeError("gemini", "no candidates"), false, true},
		{"timeout", NewProcessingTimeoutError("b", time.Second, nil), false, true},
		{"conversion", NewConversionError("b", "a.pdf", nil), false, false},
		{"unsupported", NewUnsupportedFormatError("b", "notes.txt", "text/plain"), false, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsValidation(tc.err); got != tc.validation {
				t.Errorf("IsValidation() = %v, want %v", got, tc.validation)
			}
			if got := IsCapabilityError(tc.err); got != tc.capability {
				t.Errorf("IsCapabilityError() = %v, want %v", got, tc.capability)
			}
		})
	}
}

func TestToMap(t *testing.T) {
	err := NewUnsupportedFormatError("batch-9", "notes.txt", "text/plain")
	m := err.ToMap()

	if m["error_code"] != "UNSUPPORTED_FORMAT" {
		t.Fatalf("unexpected error_code: %v", m["error_code"])
	}
	if m["batch_id"] != "batch-9" {
		t.Fatalf("unexpected batch_id: %v", m["batch_id"])
	}
	if m["file_name"] != "notes.txt" || m["mime_type"] != "text/plain" {
		t.Fatalf("details not merged: %+v", m)
	}
	if _, ok := m["cause"]; ok {
		t.Fatalf("cause should be absent when nil")
	}
}
