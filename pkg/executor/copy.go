package executor

import (
	"crypto/sha512"
	"encoding/base64"
	"io"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/hmaster20/winsync/pkg/errors"
	"github.com/hmaster20/winsync/pkg/plan"
)

// Mocked out for unit testing.
var writeContents = writeContentsImpl

// copyOnce performs a single copy attempt. Data is staged in a temporary
// sibling of the destination and committed with a rename, so a failure at
// any point never leaves a truncated destination file. The staging file is
// removed before the next retry attempt or before giving up.
func (e *Executor) copyOnce(action plan.Action, hooks Hooks) error {
	dstParent := filepath.Dir(action.Dest)
	dstParentExists, err := afero.DirExists(fs, dstParent)
	if err != nil {
		return errors.WithContext(err, "check if parent exists")
	}

	// Directory creation may still be in flight on another worker.
	if !dstParentExists {
		if err := fs.MkdirAll(dstParent, 0755); err != nil {
			return errors.WithContext(err, "make parent")
		}
	}

	tmpFile, err := afero.TempFile(fs, dstParent, ".winsync-staging-*")
	if err != nil {
		return errors.WithContext(err, "create staging file")
	}
	tmpPath := tmpFile.Name()

	committed := false
	defer func() {
		if !committed {
			if err := fs.Remove(tmpPath); err != nil {
				log.WithError(err).WithField("path", tmpPath).Warn(
					"Failed to clean up staging file")
			}
		}
	}()

	if err := writeContents(action.Source, tmpFile); err != nil {
		tmpFile.Close()
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return errors.WithContext(err, "close staging file")
	}

	// The metadata hooks run against the staging path so a failed commit
	// never leaves the destination with half-applied metadata.
	if err := hooks.SecurityMetadata(action.Source, tmpPath); err != nil {
		log.WithError(err).WithField("path", action.Dest).Warn(
			"Failed to copy security metadata. Continuing without it.")
	}
	if err := hooks.AuxiliaryStreams(action.Source, tmpPath); err != nil {
		log.WithError(err).WithField("path", action.Dest).Warn(
			"Failed to copy auxiliary streams. Continuing without them.")
	}

	if e.Verify {
		if err := verifyContents(action.Source, tmpPath); err != nil {
			return err
		}
	}

	if err := fs.Rename(tmpPath, action.Dest); err != nil {
		return errors.WithContext(err, "commit")
	}
	committed = true
	return nil
}

func writeContentsImpl(src string, dst io.Writer) error {
	srcFile, err := fs.Open(src)
	if err != nil {
		return errors.WithContext(err, "open source")
	}
	defer srcFile.Close()

	if _, err := io.Copy(dst, srcFile); err != nil {
		return errors.WithContext(err, "copy")
	}
	return nil
}

// verifyContents compares the digests of the source and the staged copy. A
// mismatch is reported as a VerificationMismatch, which the caller retries
// like any transient failure.
func verifyContents(src, staged string) error {
	srcHash, err := hashFile(src)
	if err != nil {
		return errors.WithContext(err, "hash source")
	}

	stagedHash, err := hashFile(staged)
	if err != nil {
		return errors.WithContext(err, "hash staged copy")
	}

	if srcHash != stagedHash {
		return errors.VerificationMismatch{Path: src}
	}
	return nil
}

// hashFile returns the sha512 hash of the file at the given path.
func hashFile(path string) (string, error) {
	f, err := fs.Open(path)
	if err != nil {
		return "", errors.WithContext(err, "open")
	}
	defer f.Close()

	hasher := sha512.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", errors.WithContext(err, "read")
	}

	return base64.StdEncoding.EncodeToString(hasher.Sum(nil)), nil
}
