package plan

import (
	"fmt"

	"github.com/hmaster20/winsync/pkg/errors"
)

// Op is the kind of synchronization action. It's a closed set so that the
// executor's dispatch can be exhaustive.
type Op int

const (
	CreateDir Op = iota
	CopyFile
	DeleteFile
	DeleteDir
)

func (op Op) String() string {
	switch op {
	case CreateDir:
		return "create-dir"
	case CopyFile:
		return "copy-file"
	case DeleteFile:
		return "delete-file"
	case DeleteDir:
		return "delete-dir"
	default:
		return fmt.Sprintf("unknown-op(%d)", int(op))
	}
}

// Action is one pending synchronization step. Actions are pure data -- all
// behavior lives in the executor.
type Action struct {
	Op Op

	// RelPath identifies the entry within both catalogs.
	RelPath string

	// Source is the absolute path being read from. Empty for deletes.
	Source string

	// Dest is the absolute path being written or removed. Always inside the
	// destination root.
	Dest string
}

// IsDelete returns whether the action belongs to the delete phase.
func (a Action) IsDelete() bool {
	return a.Op == DeleteFile || a.Op == DeleteDir
}

// Mode selects how the destination is reconciled against the source.
type Mode string

const (
	// Update copies new and changed entries, and never deletes.
	Update Mode = "update"

	// Mirror makes the destination an exact filtered copy of the source,
	// including deletions of destination-only entries.
	Mirror Mode = "mirror"
)

// ParseMode validates a user-supplied mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case Update, Mirror:
		return Mode(s), nil
	default:
		return "", errors.NewFriendlyError(
			"Unknown sync mode %q. Supported modes are %q and %q.", s, Update, Mirror)
	}
}
