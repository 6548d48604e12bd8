// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package errs defines the portal's domain error. An Error carries a code
// that the HTTP layer maps to a status, a message safe to show the caller,
// and the operation and cause for logs.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes shared by every package. The HTTP layer maps each code to a
// status in middleware.Error.
const (
	EInternal        = "internal error"
	ENotFound        = "not found"
	EConflict        = "conflict"
	EInvalid         = "invalid"
	EForbidden       = "forbidden"
	EUnauthorized    = "unauthorized"
	ETooLarge        = "request too large"
	ETooManyRequests = "too many requests"
)

// Error is the error type returned by handlers and helpers.
//
// Code targets automated handling, Msg is safe to show to API callers,
// Op names the logical operation and Err carries the underlying cause.
type Error struct {
	Code string
	Msg  string
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Msg != "" && e.Err != nil {
		var b strings.Builder
		b.WriteString(e.Msg)
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
		return b.String()
	} else if e.Msg != "" {
		return e.Msg
	} else if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("<%s>", e.Code)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New returns an error with the given code and message.
func New(code, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

// Newf is New with a format string.
func Newf(code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches an operation name to err. Errors that are not *Error become
// internal errors.
func Wrap(err error, op string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return &Error{Code: e.Code, Msg: e.Msg, Op: op, Err: err}
	}
	return &Error{Code: EInternal, Op: op, Err: err}
}

// NotFound, Invalid, Conflict and Forbidden are shorthands for the common codes.
func NotFound(msg string) *Error  { return New(ENotFound, msg) }
func Invalid(msg string) *Error   { return New(EInvalid, msg) }
func Conflict(msg string) *Error  { return New(EConflict, msg) }
func Forbidden(msg string) *Error { return New(EForbidden, msg) }

// ErrorCode returns the code of the first *Error in the chain, or EInternal.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if !errors.As(err, &e) || e == nil {
		return EInternal
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Err != nil {
		return ErrorCode(e.Err)
	}
	return EInternal
}

// ErrorMessage returns the human-readable message of the error chain.
// Errors without a message get a generic one.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if !errors.As(err, &e) || e == nil {
		return "An internal error has occurred."
	}
	if e.Msg != "" {
		return e.Msg
	}
	if e.Err != nil {
		return ErrorMessage(e.Err)
	}
	return "An internal error has occurred."
}

// ErrorOp returns the outermost op recorded in the chain.
func ErrorOp(err error) string {
	var e *Error
	if !errors.As(err, &e) || e == nil {
		return ""
	}
	if e.Op != "" {
		return e.Op
	}
	if e.Err != nil {
		return ErrorOp(e.Err)
	}
	return ""
}
