package errors

import (
	goErrors "errors"
	"fmt"
)

// ContextError wraps an error with information on what operation was running
// when the error occurred.
type ContextError struct {
	Context string
	Err     error
}

func (ce ContextError) Error() string {
	return fmt.Sprintf("%s: %s", ce.Context, ce.Err)
}

// Unwrap makes ContextError compatible with the standard library's errors.Is
// and errors.As.
func (ce ContextError) Unwrap() error {
	return ce.Err
}

// WithContext annotates the given error with the operation that caused it.
func WithContext(err error, context string) error {
	return ContextError{Context: context, Err: err}
}

// New creates a new error with the given message.
func New(msg string) error {
	return goErrors.New(msg)
}

// RootCause returns the innermost error in a chain of ContextErrors.
func RootCause(err error) error {
	for {
		ce, ok := err.(ContextError)
		if !ok {
			return err
		}
		err = ce.Err
	}
}

// FriendlyError is an error message meant to be read by the user directly.
// It should be a complete, readable sentence, and shouldn't be wrapped with
// any more context before being printed.
type FriendlyError struct {
	Message string
}

func (err FriendlyError) Error() string {
	return err.Message
}

// FriendlyMessage implements the printableError interface.
func (err FriendlyError) FriendlyMessage() string {
	return err.Message
}

// NewFriendlyError creates a new FriendlyError with the given message.
func NewFriendlyError(format string, args ...interface{}) error {
	return FriendlyError{Message: fmt.Sprintf(format, args...)}
}

// printableError is an error that has a message meant for end users, rather
// than just for debugging.
type printableError interface {
	FriendlyMessage() string
}

// GetPrintableMessage returns the user-facing message for the given error.
// Errors that don't implement printableError anywhere in their chain are
// printed as-is.
func GetPrintableMessage(err error) string {
	for curr := err; ; {
		if friendly, ok := curr.(printableError); ok {
			return friendly.FriendlyMessage()
		}

		ce, ok := curr.(ContextError)
		if !ok {
			return err.Error()
		}
		curr = ce.Err
	}
}
