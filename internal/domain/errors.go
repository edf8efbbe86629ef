package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by stores and the source graph for absent rows.
var ErrNotFound = errors.New("not found")

// Codes carried by ReperError on the HTTP surface.
const (
	ErrInvalidInput  = "INVALID_INPUT"
	ErrNotFoundCode  = "NOT_FOUND"
	ErrTimeout       = "REQUEST_TIMEOUT"
	ErrDatabaseError = "DATABASE_ERROR"
)

// ReperError is the JSON error body returned by the API. Details are only
// filled for client errors.
type ReperError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}

func (e *ReperError) Error() string {
	return e.Code + ": " + e.Message
}

// NewReperError stamps the error with the current UTC time.
func NewReperError(code, message, details, requestID string) *ReperError {
	return &ReperError{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	}
}

// ValidationError rejects one input field of a tool or request.
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// NewValidationError builds a ValidationError.
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: message, Value: value}
}
