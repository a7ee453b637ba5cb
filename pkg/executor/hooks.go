package executor

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/hmaster20/winsync/pkg/errors"
)

// Hooks are the pluggable collaborators invoked around each action. The
// platform-specific concerns -- security descriptors, alternate data
// streams, recoverable deletion, lock probing -- all live behind this seam
// so the engine itself stays portable.
type Hooks struct {
	// SecurityMetadata copies ownership and permission metadata from src to
	// dst. Best-effort: failures are logged, never fatal to the copy.
	SecurityMetadata func(src, dst string) error

	// AuxiliaryStreams copies any named secondary data streams attached to
	// src. Same failure policy as SecurityMetadata.
	AuxiliaryStreams func(src, dst string) error

	// Delete removes the given path, either permanently or into a
	// recoverable sink.
	Delete func(path string) error

	// ProbeLock reports whether the source file can be opened for exclusive
	// access. This is an advisory approximation, not an OS-level lease: a
	// file that passes the probe may still be locked by the time it's read.
	ProbeLock func(path string) error
}

// DefaultHooks returns the portable hook implementations: a permission-bits
// mirror for security metadata, no auxiliary streams, direct removal, and an
// open-for-write lock probe.
func DefaultHooks() Hooks {
	return Hooks{
		SecurityMetadata: copyPermissions,
		AuxiliaryStreams: noAuxiliaryStreams,
		Delete:           deleteDirect,
		ProbeLock:        probeLock,
	}
}

// withDefaults fills in any hook the caller left nil.
func (h Hooks) withDefaults() Hooks {
	defaults := DefaultHooks()
	if h.SecurityMetadata == nil {
		h.SecurityMetadata = defaults.SecurityMetadata
	}
	if h.AuxiliaryStreams == nil {
		h.AuxiliaryStreams = defaults.AuxiliaryStreams
	}
	if h.Delete == nil {
		h.Delete = defaults.Delete
	}
	if h.ProbeLock == nil {
		h.ProbeLock = defaults.ProbeLock
	}
	return h
}

func copyPermissions(src, dst string) error {
	info, err := fs.Stat(src)
	if err != nil {
		return errors.WithContext(err, "stat source")
	}

	if err := fs.Chmod(dst, info.Mode()); err != nil {
		return errors.WithContext(err, "set file mode")
	}

	// Change the modification time as the last step so that it doesn't get
	// reset by other file operations.
	if err := fs.Chtimes(dst, time.Now(), info.ModTime()); err != nil {
		return errors.WithContext(err, "set file modtime")
	}
	return nil
}

func noAuxiliaryStreams(src, dst string) error {
	return nil
}

func deleteDirect(path string) error {
	return fs.Remove(path)
}

// NewTrashDelete returns a delete strategy that moves paths into trashDir
// instead of removing them, so that mirror-mode deletions are recoverable.
func NewTrashDelete(trashDir string) func(path string) error {
	return func(path string) error {
		if err := fs.MkdirAll(trashDir, 0755); err != nil {
			return errors.WithContext(err, "create trash directory")
		}

		target := filepath.Join(trashDir, filepath.Base(path))
		if exists, _ := afero.Exists(fs, target); exists {
			target = fmt.Sprintf("%s.%d", target, time.Now().UnixNano())
		}

		if err := fs.Rename(path, target); err != nil {
			return errors.WithContext(err, "move to trash")
		}
		return nil
	}
}

// probeLock attempts to open the file for exclusive read/write. Failure is
// interpreted as the file being held open by another process.
func probeLock(path string) error {
	f, err := fs.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return errors.FileLocked{Path: path}
	}
	return f.Close()
}
