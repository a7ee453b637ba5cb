// Package catalog builds snapshot indexes of directory trees. A catalog is
// built once per side per sync run and is read-only afterwards -- the planner
// diffs two catalogs without touching the filesystem again.
package catalog

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/hmaster20/winsync/pkg/errors"
	"github.com/hmaster20/winsync/pkg/filter"
)

// Mocked out for unit testing.
var fs = afero.NewOsFs()

// Kind distinguishes files from directories within a catalog.
type Kind int

const (
	KindFile Kind = iota
	KindDir
)

func (k Kind) String() string {
	if k == KindDir {
		return "dir"
	}
	return "file"
}

// Entry is the snapshot of a single filesystem entry, identified by its
// slash-separated path relative to the catalog root.
type Entry struct {
	RelPath string
	Kind    Kind
	Size    uint64
	ModTime time.Time
}

// Catalog is the snapshot index of one directory tree.
type Catalog struct {
	Root    string
	Entries map[string]Entry
}

// Build recursively enumerates root and records every entry that isn't
// excluded. Excluded directories are pruned from traversal entirely rather
// than just omitted from the result.
// Entries whose metadata can't be read are recorded with zero attributes so
// that the planner treats them as changed instead of silently skipping them.
func Build(root string, excludes *filter.Set) (*Catalog, error) {
	root = filepath.Clean(root)
	info, err := fs.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.FileNotFound{Path: root}
		}
		return nil, errors.WithContext(err, "stat root")
	}
	if !info.IsDir() {
		return nil, errors.NewFriendlyError("%q is not a directory.", root)
	}

	entries := map[string]Entry{}
	walkErr := afero.Walk(fs, root, func(path string, fi os.FileInfo, err error) error {
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return errors.WithContext(relErr, "normalize path")
		}
		if strings.HasPrefix(rel, "..") {
			return errors.New("path escapes root: " + path)
		}
		if rel == "." {
			return err
		}
		rel = filepath.ToSlash(rel)

		if err != nil {
			// The entry exists but we couldn't stat it. Record it with zero
			// attributes so it stays eligible for copying.
			if !excludes.Excluded(rel) {
				log.WithError(err).WithField("path", path).Debug(
					"Failed to read entry metadata. Treating it as changed.")
				entries[rel] = Entry{RelPath: rel, Kind: KindFile}
			}
			return nil
		}

		if excludes.Excluded(rel) {
			if fi.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		entry := Entry{RelPath: rel, ModTime: fi.ModTime()}
		if fi.IsDir() {
			entry.Kind = KindDir
		} else {
			entry.Kind = KindFile
			entry.Size = uint64(fi.Size())
		}
		entries[rel] = entry
		return nil
	})
	if walkErr != nil {
		return nil, errors.WithContext(walkErr, "walk")
	}

	return &Catalog{Root: root, Entries: entries}, nil
}

// EnsureRoot creates the given root directory if it doesn't exist yet. It's
// used to create the destination root on demand before cataloging it.
func EnsureRoot(root string) error {
	exists, err := afero.DirExists(fs, root)
	if err != nil {
		return errors.WithContext(err, "check root")
	}
	if exists {
		return nil
	}

	if err := fs.MkdirAll(root, 0755); err != nil {
		return errors.WithContext(err, "create root")
	}
	log.WithField("path", root).Info("Created destination directory")
	return nil
}

// SortedPaths returns the catalog's relative paths in lexicographic order.
// With slash-separated paths this puts parent directories before their
// children, which is the order creates are planned in.
func (c *Catalog) SortedPaths() []string {
	paths := make([]string, 0, len(c.Entries))
	for rel := range c.Entries {
		paths = append(paths, rel)
	}
	sort.Strings(paths)
	return paths
}

// AbsPath returns the absolute path of the given relative path within the
// catalog's root.
func (c *Catalog) AbsPath(rel string) string {
	return filepath.Join(c.Root, filepath.FromSlash(rel))
}
