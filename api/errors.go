// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error types and error handling utilities for hioload-fiber.
// Blocking operations report outcomes through sentinel errors so that
// callers can branch with errors.Is regardless of the wrapping layer.

package api

import (
	"errors"
	"fmt"
)

// Common errors used across the library.
var (
	ErrInvalidArgument   = fmt.Errorf("invalid argument")
	ErrResourceExhausted = fmt.Errorf("resource exhausted")
	ErrUnavailable       = fmt.Errorf("state unavailable")
	ErrDeadlineExceeded  = fmt.Errorf("deadline exceeded")
	ErrCancelled         = fmt.Errorf("operation cancelled")
	ErrInterrupted       = fmt.Errorf("interrupted by signal")
	ErrStopped           = fmt.Errorf("dispatcher stopped")
	ErrNotFound          = fmt.Errorf("resource not found")
	ErrNotSupported      = fmt.Errorf("operation not supported")
	ErrAlreadyExists     = fmt.Errorf("resource already exists")
)

// ErrorCode represents specific error conditions in the library.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = iota
	ErrCodeInvalidArgument
	ErrCodeResourceExhausted
	ErrCodeUnavailable
	ErrCodeDeadlineExceeded
	ErrCodeCancelled
	ErrCodeInterrupted
	ErrCodeStopped
	ErrCodeNotFound
	ErrCodeNotSupported
	ErrCodeAlreadyExists
	ErrCodeInternal
)

// String returns the canonical short name of the code.
func (c ErrorCode) String() string {
	switch c {
	case ErrCodeOK:
		return "ok"
	case ErrCodeInvalidArgument:
		return "invalid_argument"
	case ErrCodeResourceExhausted:
		return "resource_exhausted"
	case ErrCodeUnavailable:
		return "unavailable"
	case ErrCodeDeadlineExceeded:
		return "deadline_exceeded"
	case ErrCodeCancelled:
		return "cancelled"
	case ErrCodeInterrupted:
		return "interrupted"
	case ErrCodeStopped:
		return "stopped"
	case ErrCodeNotFound:
		return "not_found"
	case ErrCodeNotSupported:
		return "not_supported"
	case ErrCodeAlreadyExists:
		return "already_exists"
	default:
		return "internal"
	}
}

// sentinel maps a code to the package sentinel it stands for, so that
// errors.Is(NewError(ErrCodeCancelled, ...), ErrCancelled) holds.
func (c ErrorCode) sentinel() error {
	switch c {
	case ErrCodeInvalidArgument:
		return ErrInvalidArgument
	case ErrCodeResourceExhausted:
		return ErrResourceExhausted
	case ErrCodeUnavailable:
		return ErrUnavailable
	case ErrCodeDeadlineExceeded:
		return ErrDeadlineExceeded
	case ErrCodeCancelled:
		return ErrCancelled
	case ErrCodeInterrupted:
		return ErrInterrupted
	case ErrCodeStopped:
		return ErrStopped
	case ErrCodeNotFound:
		return ErrNotFound
	case ErrCodeNotSupported:
		return ErrNotSupported
	case ErrCodeAlreadyExists:
		return ErrAlreadyExists
	default:
		return nil
	}
}

// Error represents a structured error with code and context.
type Error struct {
	Code    ErrorCode
	Message string
	Context map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if len(e.Context) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (context: %+v)", e.Message, e.Context)
}

// Unwrap exposes the sentinel matching the code.
func (e *Error) Unwrap() error {
	return e.Code.sentinel()
}

// NewError creates a new structured error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Context: make(map[string]any),
	}
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// CodeOf extracts the ErrorCode from err, descending the wrap chain.
// Plain sentinels map to their code; unknown errors map to ErrCodeInternal
// and nil maps to ErrCodeOK.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ErrCodeOK
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	for _, c := range []ErrorCode{
		ErrCodeInvalidArgument, ErrCodeResourceExhausted, ErrCodeUnavailable,
		ErrCodeDeadlineExceeded, ErrCodeCancelled, ErrCodeInterrupted,
		ErrCodeStopped, ErrCodeNotFound, ErrCodeNotSupported, ErrCodeAlreadyExists,
	} {
		if errors.Is(err, c.sentinel()) {
			return c
		}
	}
	return ErrCodeInternal
}
