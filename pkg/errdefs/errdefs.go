// Package errdefs defines the error taxonomy shared by detection stages.
package errdefs

import (
	"errors"
	"fmt"
)

// Error codes reported alongside detection failures.
const (
	CodeInsufficientData = 1002
	CodeDataQuality      = 1003
	CodeNoNewData        = 1008
	CodeMissingParameter = 1009
)

var (
	// ErrInsufficientData means the batch and history cannot cover the window.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrNoNewData means every column of the batch was already processed.
	ErrNoNewData = errors.New("no new data")
	// ErrMissingParameter means a required configuration value is absent.
	ErrMissingParameter = errors.New("missing parameter")
	// ErrDataQuality means the batch has too many missing values.
	ErrDataQuality = errors.New("data quality")
)

// Error is a coded detection error wrapping one of the sentinels above.
type Error struct {
	Code int
	Msg  string
	kind error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Code, e.kind, e.Msg)
}

// Unwrap lets errors.Is match the sentinel.
func (e *Error) Unwrap() error {
	return e.kind
}

func newError(code int, kind error, format string, args ...any) error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...), kind: kind}
}

// InsufficientData returns a coded ErrInsufficientData.
func InsufficientData(format string, args ...any) error {
	return newError(CodeInsufficientData, ErrInsufficientData, format, args...)
}

// NoNewData returns a coded ErrNoNewData.
func NoNewData(format string, args ...any) error {
	return newError(CodeNoNewData, ErrNoNewData, format, args...)
}

// MissingParameter returns a coded ErrMissingParameter.
func MissingParameter(format string, args ...any) error {
	return newError(CodeMissingParameter, ErrMissingParameter, format, args...)
}

// DataQuality returns a coded ErrDataQuality.
func DataQuality(format string, args ...any) error {
	return newError(CodeDataQuality, ErrDataQuality, format, args...)
}

// Code extracts the code of a detection error, or 0.
func Code(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return 0
}

// IsRecoverable reports whether a caller may skip the batch and continue.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrInsufficientData) || errors.Is(err, ErrNoNewData)
}
