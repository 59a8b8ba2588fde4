package registry

import (
	"errors"
	"fmt"
)

// Kind groups registry failures by how a caller should react to them.
type Kind string

const (
	KindUnauthenticated Kind = "unauthenticated"
	KindValidation      Kind = "validation"
	KindNotFound        Kind = "not_found"
	KindRemoteFailure   Kind = "remote_failure"
)

// Code identifies the specific failure inside a Kind.
type Code string

const (
	CodeUnauthenticated      Code = "UNAUTHENTICATED"
	CodeInvalidType          Code = "INVALID_TYPE"
	CodeInvalidStatus        Code = "INVALID_STATUS"
	CodeMissingRequiredField Code = "MISSING_REQUIRED_FIELD"
	CodeUnknownAssignee      Code = "UNKNOWN_ASSIGNEE"
	CodeNotFound             Code = "NOT_FOUND"
	CodeRemoteFailure        Code = "REMOTE_FAILURE"
)

// Error is the result of a failed registry operation. Message is safe to
// show to the user; Err carries the underlying cause, if any.
type Error struct {
	Kind    Kind
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same Code, so callers can compare against
// the sentinels below with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Sentinels for errors.Is checks.
var (
	ErrUnauthenticated      = &Error{Kind: KindUnauthenticated, Code: CodeUnauthenticated, Message: "user is not authenticated"}
	ErrInvalidType          = &Error{Kind: KindValidation, Code: CodeInvalidType, Message: "invalid device type"}
	ErrInvalidStatus        = &Error{Kind: KindValidation, Code: CodeInvalidStatus, Message: "invalid device status"}
	ErrMissingRequiredField = &Error{Kind: KindValidation, Code: CodeMissingRequiredField, Message: "missing required field"}
	ErrUnknownAssignee      = &Error{Kind: KindValidation, Code: CodeUnknownAssignee, Message: "assignee does not exist"}
	ErrNotFound             = &Error{Kind: KindNotFound, Code: CodeNotFound, Message: "device not found"}
	ErrRemoteFailure        = &Error{Kind: KindRemoteFailure, Code: CodeRemoteFailure, Message: "store failure"}
)

func validationError(code Code, format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: fmt.Sprintf(format, args...)}
}

func notFoundError(uid int64) *Error {
	return &Error{Kind: KindNotFound, Code: CodeNotFound, Message: fmt.Sprintf("device %d not found", uid)}
}

func remoteFailure(action string, err error) *Error {
	return &Error{Kind: KindRemoteFailure, Code: CodeRemoteFailure, Message: "failed to " + action, Err: err}
}

// KindOf reports the Kind of err, treating foreign errors as remote failures.
func KindOf(err error) Kind {
	var regErr *Error
	if errors.As(err, &regErr) {
		return regErr.Kind
	}
	return KindRemoteFailure
}

// CodeOf reports the Code of err, treating foreign errors as remote failures.
func CodeOf(err error) Code {
	var regErr *Error
	if errors.As(err, &regErr) {
		return regErr.Code
	}
	return CodeRemoteFailure
}
