package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Status  int                    `json:"status"`
	Details map[string]interface{} `json:"details,omitempty"`
	Err     error                  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target carries the same code, so clones of a
// predefined error still match it through errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// StatusClientClosedRequest is the non-standard status for a caller that
// went away before the response was written.
const StatusClientClosedRequest = 499

// Predefined errors for common scenarios.
var (
	ErrNotFound     = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden    = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrValidation   = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal     = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss    = New("CACHE_MISS", http.StatusNotFound, "cache miss")

	// Selection and enrollment rules.
	ErrInvalidSelection         = New("INVALID_SELECTION", http.StatusUnprocessableEntity, "selection does not match an offered section")
	ErrDuplicateCourseSelection = New("DUPLICATE_COURSE_SELECTION", http.StatusUnprocessableEntity, "course selected more than once")
	ErrAlreadyEnrolled          = New("ALREADY_ENROLLED", http.StatusConflict, "student already enrolled in course")
	ErrInsufficientCredits      = New("INSUFFICIENT_CREDITS", http.StatusUnprocessableEntity, "selected credits below the required minimum")
	ErrSectionFull              = New("SECTION_FULL", http.StatusConflict, "section is full")

	// Allocation rules.
	ErrDuplicateAllocation  = New("DUPLICATE_ALLOCATION", http.StatusConflict, "faculty already allocated to course")
	ErrHasActiveEnrollments = New("HAS_ACTIVE_ENROLLMENTS", http.StatusConflict, "section still has active enrollments")
	ErrIneligibleFaculty    = New("INELIGIBLE_FACULTY", http.StatusUnprocessableEntity, "faculty is not eligible to teach course")

	// Lifecycle and concurrency.
	ErrInvalidTransition   = New("INVALID_TRANSITION", http.StatusConflict, "enrollment is not active")
	ErrConcurrencyConflict = New("CONCURRENCY_CONFLICT", http.StatusConflict, "concurrent update detected, retry the request")
	ErrBusy                = New("BUSY", http.StatusServiceUnavailable, "resource busy, retry later")
	ErrRequestCanceled     = New("REQUEST_CANCELED", StatusClientClosedRequest, "request canceled by client")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	clone.Details = nil
	return &clone
}

// WithDetails returns a copy of the error carrying structured details for clients.
func WithDetails(err *Error, message string, details map[string]interface{}) *Error {
	clone := Clone(err, message)
	if clone == nil {
		return nil
	}
	clone.Details = details
	return clone
}

// HasCode reports whether err is an *Error with the given code.
func HasCode(err error, code string) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}
