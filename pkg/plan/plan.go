// Package plan diffs two catalogs into an ordered list of synchronization
// actions. Planning never touches the filesystem: a plan is a pure function
// of its two input catalogs, the sync mode, and the exclusion filters the
// catalogs were built with.
package plan

import (
	"sort"
	"time"

	"github.com/hmaster20/winsync/pkg/catalog"
)

// DefaultModTimeTolerance absorbs filesystem timestamp granularity
// differences (e.g. FAT's 2s resolution vs NTFS's 100ns) when comparing
// modification times.
const DefaultModTimeTolerance = time.Second

// SyncPlan is the ordered sequence of pending actions. All creates and
// copies precede all deletes, and directory deletes are ordered deepest
// first so that children are removed before their parents.
type SyncPlan struct {
	Actions []Action
}

// Empty returns whether the plan has no actions.
func (p *SyncPlan) Empty() bool {
	return len(p.Actions) == 0
}

// Split partitions the plan into its copy phase and its delete phase.
func (p *SyncPlan) Split() (copies, deletes []Action) {
	for _, a := range p.Actions {
		if a.IsDelete() {
			deletes = append(deletes, a)
		} else {
			copies = append(copies, a)
		}
	}
	return copies, deletes
}

// Counts returns how many actions of each kind the plan contains.
func (p *SyncPlan) Counts() map[Op]int {
	counts := map[Op]int{}
	for _, a := range p.Actions {
		counts[a.Op]++
	}
	return counts
}

// Diff compares the source and destination catalogs and returns the actions
// needed to reconcile the destination. A zero tolerance falls back to
// DefaultModTimeTolerance.
func Diff(source, dest *catalog.Catalog, mode Mode, tolerance time.Duration) *SyncPlan {
	if tolerance == 0 {
		tolerance = DefaultModTimeTolerance
	}

	p := &SyncPlan{}

	// Sorted iteration keeps the plan deterministic, and with slash paths it
	// also orders parent directory creates before their children.
	for _, rel := range source.SortedPaths() {
		src := source.Entries[rel]
		dst, inDest := dest.Entries[rel]

		if src.Kind == catalog.KindDir {
			if !inDest {
				p.Actions = append(p.Actions, Action{
					Op:      CreateDir,
					RelPath: rel,
					Source:  source.AbsPath(rel),
					Dest:    dest.AbsPath(rel),
				})
			}
			// Directories present on both sides never generate an action.
			continue
		}

		if !inDest || changed(src, dst, tolerance) {
			p.Actions = append(p.Actions, Action{
				Op:      CopyFile,
				RelPath: rel,
				Source:  source.AbsPath(rel),
				Dest:    dest.AbsPath(rel),
			})
		}
	}

	if mode == Mirror {
		p.Actions = append(p.Actions, deletions(source, dest)...)
	}
	return p
}

// changed reports whether a file needs to be copied. The comparison is
// metadata-based: equal size and modtime within tolerance means no copy,
// even if the contents differ.
func changed(src, dst catalog.Entry, tolerance time.Duration) bool {
	if src.Size != dst.Size {
		return true
	}

	delta := src.ModTime.Sub(dst.ModTime)
	if delta < 0 {
		delta = -delta
	}
	return delta > tolerance
}

// deletions plans the removal of every destination entry with no source
// counterpart. Reverse-sorted slash paths put children before their parents,
// so directory deletes never hit "directory not empty".
func deletions(source, dest *catalog.Catalog) (deletes []Action) {
	destOnly := make([]string, 0)
	for rel := range dest.Entries {
		if _, inSource := source.Entries[rel]; !inSource {
			destOnly = append(destOnly, rel)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(destOnly)))

	for _, rel := range destOnly {
		op := DeleteFile
		if dest.Entries[rel].Kind == catalog.KindDir {
			op = DeleteDir
		}
		deletes = append(deletes, Action{
			Op:      op,
			RelPath: rel,
			Dest:    dest.AbsPath(rel),
		})
	}
	return deletes
}
