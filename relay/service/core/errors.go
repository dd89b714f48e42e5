package core

import (
	"errors"
	"net/http"
)

// ErrorKind is the error taxonomy exposed at the HTTP boundary
type ErrorKind string

const (
	KindValidation       ErrorKind = "validation"
	KindLedgerSubmission ErrorKind = "ledger_submission_failure"
	KindNotFound         ErrorKind = "not_found"
	KindInternal         ErrorKind = "internal"
)

// HTTPStatus maps a kind to its response status code
func (k ErrorKind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// RelayError carries a taxonomy kind, the public label and the underlying cause
type RelayError struct {
	Kind  ErrorKind
	Label string
	Cause error
}

func (e *RelayError) Error() string {
	if e.Cause == nil {
		return e.Label
	}
	return e.Label + ": " + e.Cause.Error()
}

func (e *RelayError) Unwrap() error { return e.Cause }

// Details returns the cause message reported to callers
func (e *RelayError) Details() string {
	if e.Cause == nil {
		return ""
	}
	return e.Cause.Error()
}

// ErrEnqueueDisabled is returned by EnqueueMessage when no request producer is configured
var ErrEnqueueDisabled = errors.New("asynchronous submission is not configured")

// NewValidationError reports a caller error
func NewValidationError(label string, cause error) *RelayError {
	return &RelayError{Kind: KindValidation, Label: label, Cause: cause}
}

// NewLedgerError reports a failed transaction execution or receipt retrieval
func NewLedgerError(cause error) *RelayError {
	return &RelayError{Kind: KindLedgerSubmission, Label: "Failed to submit message to HCS", Cause: cause}
}

// NewInternalError reports an unexpected failure
func NewInternalError(cause error) *RelayError {
	return &RelayError{Kind: KindInternal, Label: "Internal server error", Cause: cause}
}

// KindOf returns the taxonomy kind of err; unknown errors are internal
func KindOf(err error) ErrorKind {
	var re *RelayError
	if errors.As(err, &re) {
		return re.Kind
	}
	return KindInternal
}
