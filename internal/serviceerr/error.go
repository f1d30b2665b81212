// Package serviceerr carries the "<operation>.<reason>" error codes surfaced by the
// domain services and echoed by the HTTP layer.
package serviceerr

import (
	"errors"
	"fmt"
)

// Error wraps a cause with a stable machine-readable code.
type Error struct {
	code string
	err  error
}

func (e *Error) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *Error) Unwrap() error {
	return e.err
}

func (e *Error) Code() string {
	return e.code
}

// New builds an Error whose code is operation + "." + reason.
func New(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &Error{code: code, err: cause}
}

// Code extracts the service code from err, or "" when err carries none.
func Code(err error) string {
	var serviceErr *Error
	if errors.As(err, &serviceErr) {
		return serviceErr.Code()
	}
	return ""
}
