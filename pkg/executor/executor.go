// Package executor applies sync plans. Copy and create actions run
// concurrently on a bounded worker pool; deletes run strictly after the copy
// phase completes, so mirror-mode deletions never race with in-flight
// copies. No error from one action ever aborts another.
package executor

import (
	"context"
	"os"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/hmaster20/winsync/pkg/errors"
	"github.com/hmaster20/winsync/pkg/plan"
	"github.com/hmaster20/winsync/pkg/retry"
)

// Mocked out for unit testing.
var fs = afero.NewOsFs()

// ProgressFunc observes overall progress. It's invoked synchronously from
// whichever worker completed the action, so it must be cheap. Calls are
// serialized, and the completed count only ever increases.
type ProgressFunc func(completed, total int)

// ActionFunc observes individual actions as they start.
type ActionFunc func(action plan.Action)

// Executor applies a SyncPlan. The zero value is not usable; fill in at
// least Retry, or use the engine which wires everything together.
type Executor struct {
	// Retry wraps every fallible filesystem operation.
	Retry retry.Policy

	// Hooks are the pluggable collaborators. Nil members fall back to the
	// portable defaults.
	Hooks Hooks

	// Concurrency is the copy-phase worker pool size. Values below 1 are
	// treated as 1.
	Concurrency int

	// Verify enables the post-copy contents digest comparison.
	Verify bool

	// Progress and OnAction are optional observer callbacks.
	Progress ProgressFunc
	OnAction ActionFunc
}

// Apply executes the plan and returns the accumulated per-action outcomes.
// The context stops submission of new actions when cancelled; in-flight
// actions always either complete or fail outright.
func (e *Executor) Apply(ctx context.Context, p *plan.SyncPlan) *Result {
	hooks := e.Hooks.withDefaults()
	res := NewResult()
	copies, deletes := p.Split()

	tracker := &progressTracker{total: len(copies) + len(deletes), report: e.Progress}

	numWorkers := e.Concurrency
	if numWorkers < 1 {
		numWorkers = 1
	}
	if numWorkers > len(copies) {
		numWorkers = len(copies)
	}

	// Start the copy workers.
	var copyWaitGroup sync.WaitGroup
	jobs := make(chan plan.Action, numWorkers*2)
	for i := 0; i < numWorkers; i++ {
		copyWaitGroup.Add(1)
		go func() {
			defer copyWaitGroup.Done()
			for action := range jobs {
				e.runCopyAction(action, hooks, res)
				tracker.step()
			}
		}()
	}

	// Feed the copy workers. Cancellation stops submission; whatever is
	// already in flight finishes.
	for _, action := range copies {
		if ctx.Err() != nil {
			res.recordSkipped(action.Dest)
			tracker.step()
			continue
		}

		select {
		case jobs <- action:
		case <-ctx.Done():
			res.recordSkipped(action.Dest)
			tracker.step()
		}
	}
	close(jobs)

	// The delete phase must not start until every copy has settled.
	copyWaitGroup.Wait()

	for _, action := range deletes {
		if ctx.Err() != nil {
			res.recordSkipped(action.Dest)
			tracker.step()
			continue
		}
		e.runDeleteAction(action, hooks, res)
		tracker.step()
	}

	return res
}

func (e *Executor) runCopyAction(action plan.Action, hooks Hooks, res *Result) {
	e.notify(action)

	switch action.Op {
	case plan.CreateDir:
		err := e.Retry.Execute(func() error {
			return e.createDir(action, hooks)
		})
		if err != nil {
			log.WithError(err).WithField("path", action.Dest).Warn("Failed to create directory")
			res.recordFailure(action.Dest, err)
			return
		}
		res.recordSuccess()

	case plan.CopyFile:
		if err := hooks.ProbeLock(action.Source); err != nil {
			log.WithField("path", action.Source).Warn("Source file is locked. Skipping.")
			res.recordLocked(action.Source)
			return
		}

		err := e.Retry.Execute(func() error {
			return e.copyOnce(action, hooks)
		})
		if err != nil {
			log.WithError(err).WithField("path", action.Dest).Warn("Failed to copy file")
			res.recordFailure(action.Dest, err)
			return
		}
		res.recordSuccess()

	default:
		res.recordFailure(action.Dest,
			errors.New("unexpected action in copy phase: "+action.Op.String()))
	}
}

func (e *Executor) createDir(action plan.Action, hooks Hooks) error {
	if err := fs.MkdirAll(action.Dest, 0755); err != nil {
		return errors.WithContext(err, "make directory")
	}

	if action.Source != "" {
		if err := hooks.SecurityMetadata(action.Source, action.Dest); err != nil {
			log.WithError(err).WithField("path", action.Dest).Warn(
				"Failed to copy directory security metadata. Continuing without it.")
		}
	}
	return nil
}

func (e *Executor) runDeleteAction(action plan.Action, hooks Hooks, res *Result) {
	e.notify(action)

	err := e.Retry.Execute(func() error {
		// A missing path is benign: another process (or an earlier retry)
		// already removed it.
		if err := hooks.Delete(action.Dest); err != nil && !os.IsNotExist(errors.RootCause(err)) {
			return err
		}
		return nil
	})
	if err != nil {
		log.WithError(err).WithField("path", action.Dest).Warn("Failed to delete")
		res.recordFailure(action.Dest, err)
		return
	}
	res.recordSuccess()
}

func (e *Executor) notify(action plan.Action) {
	if e.OnAction != nil {
		e.OnAction(action)
	}
}

// progressTracker serializes completion counting across workers.
type progressTracker struct {
	mu        sync.Mutex
	completed int
	total     int
	report    ProgressFunc
}

// The callback runs while the lock is held so that observers always see the
// completed count increase monotonically, even with concurrent workers.
func (t *progressTracker) step() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.completed++
	if t.report != nil {
		t.report(t.completed, t.total)
	}
}
