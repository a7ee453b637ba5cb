package errors

import (
	"fmt"
)

// MissingFieldError represents a missing required field.
type MissingFieldError struct {
	Field string
}

func (err MissingFieldError) Error() string {
	return fmt.Sprintf("missing required field: %s", err.Field)
}

// FileNotFound represents when we were unable to access a file
// because the path didn't exist.
type FileNotFound struct {
	Path string
}

func (err FileNotFound) Error() string {
	return fmt.Sprintf("%q does not exist", err.Path)
}

// FileLocked represents a source file that couldn't be opened for exclusive
// access. Locked files are skipped rather than retried, since the lock is
// usually held for the lifetime of another process.
type FileLocked struct {
	Path string
}

func (err FileLocked) Error() string {
	return fmt.Sprintf("%q is locked by another process", err.Path)
}

// VerificationMismatch represents a copied file whose contents digest didn't
// match the source. It's treated as a transient failure -- the source was
// probably written to mid-copy, so the copy is retried.
type VerificationMismatch struct {
	Path string
}

func (err VerificationMismatch) Error() string {
	return fmt.Sprintf("contents of %q changed during copy", err.Path)
}
