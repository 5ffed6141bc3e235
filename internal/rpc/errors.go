// File: internal/rpc/errors.go
package rpc

import (
	"fmt"

	"github.com/xkilldash9x/puppetd/api/schemas"
)

// Error is a JSON-RPC error carried through the handler chain. Handlers and
// the dispatcher return it for anything that should surface as a structured
// error object; every other error becomes an internal error on the wire.
type Error struct {
	Code    int
	Message string
	Data    any
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// NewError builds an Error with a formatted message.
func NewError(code int, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithData attaches a data payload and returns the error for chaining.
func (e *Error) WithData(data any) *Error {
	e.Data = data
	return e
}

// Convenience constructors for the common taxonomy entries.

func ErrInvalidParams(format string, args ...any) *Error {
	return NewError(schemas.CodeInvalidParams, format, args...)
}

func ErrBrowserOperation(format string, args ...any) *Error {
	return NewError(schemas.CodeBrowserOperationError, format, args...)
}

func ErrPageNotAvailable(format string, args ...any) *Error {
	return NewError(schemas.CodePageNotAvailableError, format, args...)
}

func ErrElementNotFound(format string, args ...any) *Error {
	return NewError(schemas.CodeElementNotFoundError, format, args...)
}
