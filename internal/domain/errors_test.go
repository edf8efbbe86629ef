package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestReperError(t *testing.T) {
	tests := []struct {
		name      string
		code      string
		message   string
		details   string
		requestID string
	}{
		{
			name:      "Basic error",
			code:      ErrInvalidInput,
			message:   "case text is required",
			details:   "the text field was empty after trimming",
			requestID: "req-123",
		},
		{
			name:      "Database error",
			code:      ErrDatabaseError,
			message:   "rubric search failed",
			details:   "connection refused",
			requestID: "req-456",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewReperError(tt.code, tt.message, tt.details, tt.requestID)

			if err.Code != tt.code {
				t.Errorf("Expected code %s, got %s", tt.code, err.Code)
			}
			if err.Message != tt.message {
				t.Errorf("Expected message %s, got %s", tt.message, err.Message)
			}
			if err.Details != tt.details {
				t.Errorf("Expected details %s, got %s", tt.details, err.Details)
			}
			if err.RequestID != tt.requestID {
				t.Errorf("Expected requestID %s, got %s", tt.requestID, err.RequestID)
			}
			if time.Since(err.Timestamp) > time.Minute {
				t.Errorf("Timestamp should be recent, got %v", err.Timestamp)
			}

			expectedError := tt.code + ": " + tt.message
			if err.Error() != expectedError {
				t.Errorf("Expected error string %s, got %s", expectedError, err.Error())
			}
		})
	}
}

func TestValidationError(t *testing.T) {
	err := NewValidationError("rubric_paths", "at least one path is required", []string{})

	if err.Field != "rubric_paths" {
		t.Errorf("Expected field rubric_paths, got %s", err.Field)
	}
	expectedError := "invalid rubric_paths: at least one path is required"
	if err.Error() != expectedError {
		t.Errorf("Expected error string %s, got %s", expectedError, err.Error())
	}
}

func TestSentinelErrorsWrap(t *testing.T) {
	wrapped := fmt.Errorf("rubric 42: %w", ErrNotFound)
	if !errors.Is(wrapped, ErrNotFound) {
		t.Errorf("Expected wrapped error to match ErrNotFound")
	}
	if errors.Is(fmt.Errorf("rubric 42: %v", ErrNotFound), ErrNotFound) {
		t.Errorf("Did not expect an unwrapped message to match ErrNotFound")
	}
}
