// Package engine orchestrates a sync run: it catalogs both sides, diffs them
// into a plan, and hands the plan to the executor. Both the CLI and any other
// front end drive the same engine through the observer callbacks in Options,
// so front ends stay pure presentation.
package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/hmaster20/winsync/pkg/catalog"
	"github.com/hmaster20/winsync/pkg/errors"
	"github.com/hmaster20/winsync/pkg/executor"
	"github.com/hmaster20/winsync/pkg/filter"
	"github.com/hmaster20/winsync/pkg/plan"
	"github.com/hmaster20/winsync/pkg/retry"
)

// Mocked out for unit testing.
var fs = afero.NewOsFs()

// Options describes one sync run.
type Options struct {
	Source string
	Dest   string

	// Mode defaults to Update when empty.
	Mode plan.Mode

	// DryRun logs the plan and applies nothing. Planning is fully
	// side-effect-free.
	DryRun bool

	// Concurrency is the copy-phase worker pool size (minimum 1).
	Concurrency int

	// ExcludePatterns are glob exclusion filters applied to both catalogs.
	ExcludePatterns []string

	// Retry wraps every fallible operation during apply.
	Retry retry.Policy

	// Verify enables the post-copy contents digest comparison.
	Verify bool

	// ModTimeTolerance defaults to plan.DefaultModTimeTolerance when zero.
	ModTimeTolerance time.Duration

	// Hooks are the pluggable platform collaborators. Nil members fall back
	// to the portable defaults.
	Hooks executor.Hooks

	// Progress and OnAction are optional observer callbacks.
	Progress executor.ProgressFunc
	OnAction executor.ActionFunc
}

// Outcome classifies a finished run for the caller's exit status.
type Outcome int

const (
	// OutcomeClean means every action succeeded.
	OutcomeClean Outcome = iota

	// OutcomeLocked means at least one source file was skipped as locked.
	OutcomeLocked

	// OutcomePartialFailure means at least one action exhausted its retries.
	OutcomePartialFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeClean:
		return "clean"
	case OutcomeLocked:
		return "locked-files"
	case OutcomePartialFailure:
		return "partial-failure"
	default:
		return fmt.Sprintf("unknown-outcome(%d)", int(o))
	}
}

// Run executes one synchronization pass. It returns an error only for fatal
// configuration problems (e.g. a missing source root); per-action failures
// are recorded in the Result and never abort the run.
func Run(ctx context.Context, opts Options) (*executor.Result, error) {
	if opts.Source == "" {
		return nil, errors.MissingFieldError{Field: "source"}
	}
	if opts.Dest == "" {
		return nil, errors.MissingFieldError{Field: "destination"}
	}

	mode := opts.Mode
	if mode == "" {
		mode = plan.Update
	}

	excludes, err := filter.Compile(opts.ExcludePatterns)
	if err != nil {
		return nil, errors.WithContext(err, "compile exclusions")
	}

	source, err := catalog.Build(opts.Source, excludes)
	if err != nil {
		if _, ok := errors.RootCause(err).(errors.FileNotFound); ok {
			return nil, errors.NewFriendlyError(
				"The source directory %q doesn't exist.", opts.Source)
		}
		return nil, errors.WithContext(err, "catalog source")
	}

	if !opts.DryRun {
		if err := catalog.EnsureRoot(opts.Dest); err != nil {
			return nil, errors.WithContext(err, "prepare destination")
		}
	}

	dest, err := catalog.Build(opts.Dest, excludes)
	if err != nil {
		// A missing destination during a dry run just means everything
		// would be copied.
		if _, ok := errors.RootCause(err).(errors.FileNotFound); ok && opts.DryRun {
			dest = &catalog.Catalog{Root: opts.Dest, Entries: map[string]catalog.Entry{}}
		} else {
			return nil, errors.WithContext(err, "catalog destination")
		}
	}

	p := plan.Diff(source, dest, mode, opts.ModTimeTolerance)
	counts := p.Counts()
	log.WithFields(log.Fields{
		"createDir":  counts[plan.CreateDir],
		"copyFile":   counts[plan.CopyFile],
		"deleteFile": counts[plan.DeleteFile],
		"deleteDir":  counts[plan.DeleteDir],
	}).Info("Computed sync plan")

	if opts.DryRun {
		logPlan(p)
		log.Info("Dry run complete. No changes were applied.")
		return executor.NewResult(), nil
	}

	exec := &executor.Executor{
		Retry:       opts.Retry,
		Hooks:       opts.Hooks,
		Concurrency: opts.Concurrency,
		Verify:      opts.Verify,
		Progress:    opts.Progress,
		OnAction:    opts.OnAction,
	}
	res := exec.Apply(ctx, p)

	if mode == plan.Mirror && ctx.Err() == nil {
		pruneEmptyDirs(source, dest.Root, excludes, opts.Hooks)
	}

	logSummary(res)
	return res, nil
}

// Classify maps a result to the run's overall outcome. Locked files take
// precedence over generic failures, matching the traditional exit-status
// convention of mirroring tools.
func Classify(res *executor.Result) Outcome {
	switch {
	case res.HasLocked():
		return OutcomeLocked
	case res.HasFailures():
		return OutcomePartialFailure
	default:
		return OutcomeClean
	}
}

// pruneEmptyDirs is the second, dependent sweep of mirror mode: directories
// left empty by the delete phase are removed bottom-up. It runs strictly
// sequentially after all deletes so it never races with in-flight actions,
// and it re-checks emptiness against the filesystem immediately before each
// removal so concurrent external writers at worst make a prune fail, never
// cascade. Failures are logged, not fatal -- the sweep is best-effort.
func pruneEmptyDirs(source *catalog.Catalog, destRoot string, excludes *filter.Set, hooks executor.Hooks) {
	remove := hooks.Delete
	if remove == nil {
		remove = executor.DefaultHooks().Delete
	}

	var candidates []string
	err := afero.Walk(fs, destRoot, func(path string, fi os.FileInfo, err error) error {
		if err != nil || !fi.IsDir() || path == destRoot {
			return err
		}

		rel, relErr := filepath.Rel(destRoot, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)

		// Excluded subtrees and directories that exist in the source are
		// not ours to prune.
		if excludes.Excluded(rel) {
			return filepath.SkipDir
		}
		if _, inSource := source.Entries[rel]; inSource {
			return nil
		}

		candidates = append(candidates, path)
		return nil
	})
	if err != nil {
		log.WithError(err).Warn("Failed to scan destination for empty directories")
		return
	}

	// Deepest first, so a chain of empty directories collapses completely.
	sort.Sort(sort.Reverse(sort.StringSlice(candidates)))

	for _, dir := range candidates {
		entries, err := afero.ReadDir(fs, dir)
		if err != nil || len(entries) > 0 {
			continue
		}
		if err := remove(dir); err != nil {
			log.WithError(err).WithField("path", dir).Warn("Failed to prune empty directory")
			continue
		}
		log.WithField("path", dir).Debug("Pruned empty directory")
	}
}

func logPlan(p *plan.SyncPlan) {
	for _, a := range p.Actions {
		entry := log.WithField("dest", a.Dest)
		if a.Source != "" {
			entry = entry.WithField("source", a.Source)
		}
		entry.Infof("[dry-run] would %s", a.Op)
	}
}

func logSummary(res *executor.Result) {
	log.WithFields(log.Fields{
		"succeeded": res.Succeeded,
		"failed":    len(res.Failed),
		"locked":    len(res.Locked),
		"skipped":   len(res.Skipped),
	}).Info("Sync finished")

	for _, path := range res.FailedPaths() {
		log.WithError(res.Failed[path]).WithField("path", path).Error("Sync failed for path")
	}
	for _, path := range res.Locked {
		log.WithField("path", path).Warn("Skipped locked file")
	}
}
