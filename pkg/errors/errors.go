package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
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

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrInvalidCredentials = New("INVALID_CREDENTIALS", http.StatusUnauthorized, "invalid email or password")
	ErrInactiveAccount    = New("ACCOUNT_INACTIVE", http.StatusForbidden, "account is inactive")
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrPreconditionFailed = New("PRECONDITION_FAILED", http.StatusPreconditionFailed, "precondition failed")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss          = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// Certificate lifecycle errors. Guard rejections carry the precise business
// reason and are safe to render to end users verbatim.
var (
	// ErrNotReady signals a failed readiness guard; Message lists the gaps.
	ErrNotReady = New("CERTIFICATE_NOT_READY", http.StatusUnprocessableEntity, "certificate is not ready")
	// ErrWrongStatus signals a transition attempted from an illegal state.
	ErrWrongStatus = New("CERTIFICATE_WRONG_STATUS", http.StatusConflict, "certificate is in the wrong status")
	// ErrReviewBlocked signals completion attempted without an approved review.
	ErrReviewBlocked = New("CERTIFICATE_REVIEW_BLOCKED", http.StatusConflict, "review not approved")
	// ErrReviewNotRequired signals a review request for a type that needs none.
	ErrReviewNotRequired = New("REVIEW_NOT_REQUIRED", http.StatusConflict, "review not required for this type")
	// ErrImmutable signals a mutation attempt on an issued or void certificate.
	ErrImmutable = New("CERTIFICATE_IMMUTABLE", http.StatusConflict, "certificate is issued or void and cannot be modified")
	// ErrNotIssued signals an amendment/reissue of a certificate that was never issued.
	ErrNotIssued = New("CERTIFICATE_NOT_ISSUED", http.StatusConflict, "certificate is not issued")
	// ErrStatusConflict is the retryable optimistic-concurrency failure: the
	// stored status diverged from what the guard evaluated.
	ErrStatusConflict = New("CERTIFICATE_STATUS_CONFLICT", http.StatusConflict, "certificate status changed concurrently, retry")
	// ErrUnknownCertificateType indicates a programming/integration error and
	// is never silently defaulted.
	ErrUnknownCertificateType = New("UNKNOWN_CERTIFICATE_TYPE", http.StatusInternalServerError, "unknown certificate type")
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
	return &clone
}
