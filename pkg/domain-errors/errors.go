// Package domainerrors defines the coded errors services return to transports.
//
// Stores return sentinel errors (pkg/platform/sentinel); services translate those
// into a coded *Error here. Handlers map codes to HTTP status via httputil.WriteError.
package domainerrors

import (
	"errors"
	"sort"
)

// Code identifies the class of a domain error.
type Code string

const (
	CodeBadRequest         Code = "bad_request"
	CodeValidation         Code = "validation_error"
	CodeInvalidInput       Code = "invalid_input"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeInvalidState       Code = "invalid_state"
	CodeUnauthorized       Code = "unauthorized"
	CodeForbidden          Code = "forbidden"
	CodeInternal           Code = "internal_error"
	CodeTimeout            Code = "timeout"
	CodeInvariantViolation Code = "invariant_violation"
)

// FieldError names a single field that failed validation and why.
type FieldError struct {
	Field  string
	Reason string
}

// Error is a coded error with an optional cause and per-field details.
type Error struct {
	Code    Code
	Message string
	Fields  []FieldError
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by code, and by message when the target carries one.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	if t.Code != e.Code {
		return false
	}
	return t.Message == "" || t.Message == e.Message
}

// New creates a coded error.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// NewValidation builds a validation error carrying one entry per failing field.
// Entries are sorted by field name so responses are stable.
func NewValidation(msg string, fields []FieldError) error {
	out := append([]FieldError(nil), fields...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return &Error{Code: CodeValidation, Message: msg, Fields: out}
}

// CodeOf returns the code of the outermost *Error in the chain, or CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// Is is shorthand for HasCode.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// FieldsOf returns per-field details from the first *Error in the chain that has any.
func FieldsOf(err error) []FieldError {
	for err != nil {
		var de *Error
		if !errors.As(err, &de) {
			return nil
		}
		if len(de.Fields) > 0 {
			return de.Fields
		}
		err = de.Err
	}
	return nil
}
