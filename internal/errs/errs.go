package errs

import (
	"errors"
	"strings"

	"github.com/playwright-community/playwright-go"
)

// Code is a suite error code.
type Code string

const (
	UnsupportedBrowser Code = "unsupported_browser"
	UnknownDevice      Code = "unknown_device"
	TargetNotFound     Code = "target_not_found"
	AssertionFailed    Code = "assertion_failed"
	InvalidArgument    Code = "invalid_argument"
	Unavailable        Code = "unavailable"
	Internal           Code = "internal"
)

// Error is a coded suite error.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" && e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a coded error with message.
func New(code Code, message string) error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a coded error with message and cause.
func Wrap(code Code, message string, cause error) error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     cause,
	}
}

// CodeOf returns the error code, defaulting to internal.
func CodeOf(err error) Code {
	if err == nil {
		return Internal
	}
	var coded *Error
	if errors.As(err, &coded) {
		if coded.Code == "" {
			return Internal
		}
		return coded.Code
	}
	return Internal
}

// MessageOf returns the outermost coded message, or "internal error" for untyped errors.
func MessageOf(err error) string {
	if err == nil {
		return string(Internal)
	}
	var coded *Error
	if errors.As(err, &coded) && coded.Message != "" {
		return coded.Message
	}
	return "internal error"
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// FromEngine classifies a playwright error. Engine timeouts while resolving a
// locator mean the target never appeared, so they map to TargetNotFound.
func FromEngine(err error, message string) error {
	if err == nil {
		return nil
	}
	var coded *Error
	if errors.As(err, &coded) {
		return err
	}
	if errors.Is(err, playwright.ErrTimeout) || strings.Contains(err.Error(), "Timeout") {
		return Wrap(TargetNotFound, message, err)
	}
	if errors.Is(err, playwright.ErrTargetClosed) {
		return Wrap(Unavailable, message, err)
	}
	return Wrap(Internal, message, err)
}
