// Package apperr carries the typed, caller-recoverable failures of the clinic core.
// Every error returned to a handler is either an *Error with a stable Code or a
// storage fault that should surface as an internal error.
package apperr

import (
	"errors"
	"fmt"
)

// Code describes what went wrong in business terms, independent of transport.
type Code string

const (
	CodeValidation         Code = "validation_failed"
	CodeInvalidIdentity    Code = "invalid_identity"
	CodeDecode             Code = "decode_error"
	CodeDuplicateIdentity  Code = "duplicate_identity"
	CodeUnauthorized       Code = "unauthorized"
	CodeForbidden          Code = "forbidden"
	CodeNotFound           Code = "not_found"
	CodeInvalidTransition  Code = "invalid_transition"
	CodeTransactionFailure Code = "transaction_failure"
	CodeInternal           Code = "internal_error"
)

// Error wraps a failure with a stable code and a human-readable reason.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches by code so callers can write errors.Is(err, apperr.NotFound).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Code-only targets for errors.Is.
var (
	Validation         = &Error{Code: CodeValidation}
	InvalidIdentity    = &Error{Code: CodeInvalidIdentity}
	Decode             = &Error{Code: CodeDecode}
	DuplicateIdentity  = &Error{Code: CodeDuplicateIdentity}
	Unauthorized       = &Error{Code: CodeUnauthorized}
	Forbidden          = &Error{Code: CodeForbidden}
	NotFound           = &Error{Code: CodeNotFound}
	InvalidTransition  = &Error{Code: CodeInvalidTransition}
	TransactionFailure = &Error{Code: CodeTransactionFailure}
)

func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code to err. An err that already carries a code keeps it.
func Wrap(err error, code Code, msg string) error {
	var existing *Error
	if errors.As(err, &existing) {
		return &Error{Code: existing.Code, Message: msg, Err: err}
	}
	return &Error{Code: code, Message: msg, Err: err}
}

func HasCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// CodeOf returns the code of the outermost *Error in the chain, or CodeInternal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}
