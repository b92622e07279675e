package util

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
)

// Error codes surfaced by the lifecycle engine.
const (
	CodeInvalidTransition      = "INVALID_TRANSITION"
	CodeMissingRequiredField   = "MISSING_REQUIRED_FIELD"
	CodeNotFound               = "NOT_FOUND"
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"
	CodePartialCommit          = "PARTIAL_COMMIT"
	CodePublishFailure         = "PUBLISH_FAILURE"
	CodeValidationFailed       = "VALIDATION_FAILED"
	CodeUnauthorized           = "UNAUTHORIZED"
	CodeForbidden              = "FORBIDDEN"
	CodeInternal               = "INTERNAL_ERROR"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

// NewInvalidTransition rejects an illegal status edge. Not retryable.
func NewInvalidTransition(current, requested string) error {
	return NewDomainError(CodeInvalidTransition,
		fmt.Sprintf("transition %s -> %s is not allowed", current, requested),
		http.StatusUnprocessableEntity,
		map[string]any{"current_status": current, "requested_status": requested})
}

// NewMissingRequiredField rejects a mutation missing data its edge demands.
func NewMissingRequiredField(field, reason string) error {
	return NewDomainError(CodeMissingRequiredField, reason, http.StatusUnprocessableEntity,
		map[string]any{"field": field})
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidationFailed, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

// NewConcurrentModification signals per-ticket lock contention. Retryable by
// the caller with backoff.
func NewConcurrentModification(ticketID string) error {
	return NewDomainError(CodeConcurrentModification,
		"ticket is being modified by another command",
		http.StatusConflict,
		map[string]any{"ticket_id": ticketID})
}

// NewPartialCommit reports a dual write whose second half could not be made
// durable after retries. The pending intent stays on the ticket row and is
// re-driven on next access.
func NewPartialCommit(ticketID string, err error) error {
	return &DomainError{
		Code:       CodePartialCommit,
		Message:    "ticket mutation persisted but progress record could not be committed",
		HTTPStatus: http.StatusInternalServerError,
		Details:    map[string]any{"ticket_id": ticketID},
		Err:        err,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError(CodeForbidden, message, http.StatusForbidden, nil)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// HasCode reports whether err carries the given domain error code.
func HasCode(err error, code string) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, pgx.ErrNoRows) {
		if de, ok := NewNotFound("resource", nil).(*DomainError); ok {
			return de
		}
	}
	if de, ok := NewInternalError(err).(*DomainError); ok {
		return de
	}
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func MapError(err error) error {
	return ToDomainError(err)
}
