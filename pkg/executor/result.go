package executor

import (
	"sort"
	"sync"
)

// Result accumulates per-action outcomes during Apply. Every worker reports
// through this one mutex-guarded accumulator; it's owned exclusively by the
// run that produced it and is safe to read freely once Apply returns.
type Result struct {
	mu sync.Mutex

	// Succeeded counts committed actions.
	Succeeded int

	// Locked lists source paths skipped because their lock probe failed.
	Locked []string

	// Failed maps paths to the error that exhausted their retries.
	Failed map[string]error

	// Skipped lists paths whose actions were never submitted because the
	// run was cancelled.
	Skipped []string
}

// NewResult returns an empty result, ready to accumulate outcomes.
func NewResult() *Result {
	return &Result{Failed: map[string]error{}}
}

func (r *Result) recordSuccess() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Succeeded++
}

func (r *Result) recordLocked(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Locked = append(r.Locked, path)
}

func (r *Result) recordFailure(path string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Failed[path] = err
}

func (r *Result) recordSkipped(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Skipped = append(r.Skipped, path)
}

// HasFailures returns whether any action exhausted its retries.
func (r *Result) HasFailures() bool {
	return len(r.Failed) > 0
}

// HasLocked returns whether any source file was skipped as locked.
func (r *Result) HasLocked() bool {
	return len(r.Locked) > 0
}

// FailedPaths returns the failed paths in a stable order for reporting.
func (r *Result) FailedPaths() []string {
	paths := make([]string, 0, len(r.Failed))
	for path := range r.Failed {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}
