package executor

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hmaster20/winsync/pkg/errors"
	"github.com/hmaster20/winsync/pkg/plan"
	"github.com/hmaster20/winsync/pkg/retry"
)

func newTestExecutor() *Executor {
	return &Executor{
		Retry:       retry.Policy{MaxAttempts: 1},
		Concurrency: 2,
	}
}

func TestApplyCopies(t *testing.T) {
	fs = afero.NewMemMapFs()
	resetMocks(t)

	writeFile(t, "/src/a.txt", "hello")
	writeFile(t, "/src/sub/b.txt", "world")
	require.NoError(t, fs.MkdirAll("/dst", 0755))

	p := &plan.SyncPlan{Actions: []plan.Action{
		{Op: plan.CreateDir, RelPath: "sub", Source: "/src/sub", Dest: "/dst/sub"},
		{Op: plan.CopyFile, RelPath: "a.txt", Source: "/src/a.txt", Dest: "/dst/a.txt"},
		{Op: plan.CopyFile, RelPath: "sub/b.txt", Source: "/src/sub/b.txt", Dest: "/dst/sub/b.txt"},
	}}

	res := newTestExecutor().Apply(context.Background(), p)

	assert.Equal(t, 3, res.Succeeded)
	assert.Empty(t, res.Failed)
	assert.Empty(t, res.Locked)
	assertContents(t, "/dst/a.txt", "hello")
	assertContents(t, "/dst/sub/b.txt", "world")
}

func TestApplyCreatesMissingParent(t *testing.T) {
	fs = afero.NewMemMapFs()
	resetMocks(t)

	writeFile(t, "/src/deep/nested/c.txt", "data")

	// No CreateDir action for the parent: CopyFile must create it itself so
	// that directory creation racing with file copy is tolerated.
	p := &plan.SyncPlan{Actions: []plan.Action{
		{Op: plan.CopyFile, Source: "/src/deep/nested/c.txt", Dest: "/dst/deep/nested/c.txt"},
	}}

	res := newTestExecutor().Apply(context.Background(), p)
	assert.Equal(t, 1, res.Succeeded)
	assertContents(t, "/dst/deep/nested/c.txt", "data")
}

func TestApplyLockedFile(t *testing.T) {
	fs = afero.NewMemMapFs()
	resetMocks(t)

	writeFile(t, "/src/locked.txt", "secret")
	writeFile(t, "/src/free.txt", "open")

	exec := newTestExecutor()
	exec.Hooks.ProbeLock = func(path string) error {
		if strings.Contains(path, "locked") {
			return errors.FileLocked{Path: path}
		}
		return nil
	}

	p := &plan.SyncPlan{Actions: []plan.Action{
		{Op: plan.CopyFile, Source: "/src/locked.txt", Dest: "/dst/locked.txt"},
		{Op: plan.CopyFile, Source: "/src/free.txt", Dest: "/dst/free.txt"},
	}}

	res := exec.Apply(context.Background(), p)

	assert.Equal(t, []string{"/src/locked.txt"}, res.Locked)
	assert.Empty(t, res.Failed, "locked files must not be recorded as failures")
	assert.Equal(t, 1, res.Succeeded)

	exists, err := afero.Exists(fs, "/dst/locked.txt")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRetryConvergence(t *testing.T) {
	fs = afero.NewMemMapFs()
	resetMocks(t)

	writeFile(t, "/src/flaky.txt", "eventually")

	// Fail the first two write attempts; the third must succeed and the
	// action must be recorded as succeeded, not failed.
	attempts := 0
	writeContents = func(src string, dst io.Writer) error {
		attempts++
		if attempts <= 2 {
			return errors.New("transient I/O error")
		}
		return writeContentsImpl(src, dst)
	}

	exec := newTestExecutor()
	exec.Retry = retry.Policy{MaxAttempts: 3, InitialDelay: time.Millisecond, BackoffFactor: 2}

	p := &plan.SyncPlan{Actions: []plan.Action{
		{Op: plan.CopyFile, Source: "/src/flaky.txt", Dest: "/dst/flaky.txt"},
	}}
	res := exec.Apply(context.Background(), p)

	assert.Equal(t, 3, attempts)
	assert.Equal(t, 1, res.Succeeded)
	assert.Empty(t, res.Failed)
	assertContents(t, "/dst/flaky.txt", "eventually")
}

func TestAtomicCommit(t *testing.T) {
	fs = afero.NewMemMapFs()
	resetMocks(t)

	writeFile(t, "/src/a.txt", "new contents")
	writeFile(t, "/dst/a.txt", "old contents")

	writeContents = func(src string, dst io.Writer) error {
		// Simulate a crash mid-copy: write partial data, then fail.
		_, _ = dst.Write([]byte("trunc"))
		return errors.New("disk error")
	}

	p := &plan.SyncPlan{Actions: []plan.Action{
		{Op: plan.CopyFile, Source: "/src/a.txt", Dest: "/dst/a.txt"},
	}}
	res := newTestExecutor().Apply(context.Background(), p)

	require.Len(t, res.Failed, 1)

	// The destination keeps its pre-sync contents -- never truncated.
	assertContents(t, "/dst/a.txt", "old contents")

	// No staging files are left behind.
	infos, err := afero.ReadDir(fs, "/dst")
	require.NoError(t, err)
	for _, info := range infos {
		assert.False(t, strings.HasPrefix(info.Name(), ".winsync-staging"),
			"staging file %q left behind", info.Name())
	}
}

func TestVerifyRetriesMismatch(t *testing.T) {
	fs = afero.NewMemMapFs()
	resetMocks(t)

	writeFile(t, "/src/v.txt", "correct contents")

	// The first attempt stages corrupted data; verification must catch it
	// and the retry must converge on the real contents.
	attempts := 0
	writeContents = func(src string, dst io.Writer) error {
		attempts++
		if attempts == 1 {
			_, err := dst.Write([]byte("corrupted"))
			return err
		}
		return writeContentsImpl(src, dst)
	}

	exec := newTestExecutor()
	exec.Verify = true
	exec.Retry = retry.Policy{MaxAttempts: 2, InitialDelay: time.Millisecond, BackoffFactor: 1}

	p := &plan.SyncPlan{Actions: []plan.Action{
		{Op: plan.CopyFile, Source: "/src/v.txt", Dest: "/dst/v.txt"},
	}}
	res := exec.Apply(context.Background(), p)

	assert.Equal(t, 2, attempts)
	assert.Equal(t, 1, res.Succeeded)
	assert.Empty(t, res.Failed)
	assertContents(t, "/dst/v.txt", "correct contents")
}

func TestVerifyExhaustedIsFailure(t *testing.T) {
	fs = afero.NewMemMapFs()
	resetMocks(t)

	writeFile(t, "/src/v.txt", "correct contents")

	writeContents = func(src string, dst io.Writer) error {
		_, err := dst.Write([]byte("corrupted"))
		return err
	}

	exec := newTestExecutor()
	exec.Verify = true

	p := &plan.SyncPlan{Actions: []plan.Action{
		{Op: plan.CopyFile, Source: "/src/v.txt", Dest: "/dst/v.txt"},
	}}
	res := exec.Apply(context.Background(), p)

	require.Len(t, res.Failed, 1)
	_, ok := errors.RootCause(res.Failed["/dst/v.txt"]).(errors.VerificationMismatch)
	assert.True(t, ok)
}

func TestApplyDeletePhase(t *testing.T) {
	fs = afero.NewMemMapFs()
	resetMocks(t)

	writeFile(t, "/dst/stale.txt", "stale")
	writeFile(t, "/dst/old/nested.txt", "old")

	p := &plan.SyncPlan{Actions: []plan.Action{
		{Op: plan.DeleteFile, RelPath: "stale.txt", Dest: "/dst/stale.txt"},
		{Op: plan.DeleteFile, RelPath: "old/nested.txt", Dest: "/dst/old/nested.txt"},
		{Op: plan.DeleteDir, RelPath: "old", Dest: "/dst/old"},
		// Already-removed paths are benign.
		{Op: plan.DeleteFile, RelPath: "ghost.txt", Dest: "/dst/ghost.txt"},
	}}

	res := newTestExecutor().Apply(context.Background(), p)

	assert.Equal(t, 4, res.Succeeded)
	assert.Empty(t, res.Failed)
	for _, path := range []string{"/dst/stale.txt", "/dst/old/nested.txt", "/dst/old"} {
		exists, err := afero.Exists(fs, path)
		require.NoError(t, err)
		assert.False(t, exists, "%q should have been deleted", path)
	}
}

func TestApplyCancelled(t *testing.T) {
	fs = afero.NewMemMapFs()
	resetMocks(t)

	writeFile(t, "/src/a.txt", "a")
	writeFile(t, "/dst/stale.txt", "stale")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := &plan.SyncPlan{Actions: []plan.Action{
		{Op: plan.CopyFile, Source: "/src/a.txt", Dest: "/dst/a.txt"},
		{Op: plan.DeleteFile, Dest: "/dst/stale.txt"},
	}}
	res := newTestExecutor().Apply(ctx, p)

	assert.Equal(t, 0, res.Succeeded)
	assert.Len(t, res.Skipped, 2)

	// Nothing was copied or deleted.
	exists, err := afero.Exists(fs, "/dst/a.txt")
	require.NoError(t, err)
	assert.False(t, exists)
	assertContents(t, "/dst/stale.txt", "stale")
}

func TestApplyProgress(t *testing.T) {
	fs = afero.NewMemMapFs()
	resetMocks(t)

	writeFile(t, "/src/a.txt", "a")
	writeFile(t, "/dst/stale.txt", "stale")

	var mu sync.Mutex
	var completions []int
	var lastTotal int

	exec := newTestExecutor()
	exec.Progress = func(completed, total int) {
		mu.Lock()
		defer mu.Unlock()
		completions = append(completions, completed)
		lastTotal = total
	}

	p := &plan.SyncPlan{Actions: []plan.Action{
		{Op: plan.CopyFile, Source: "/src/a.txt", Dest: "/dst/a.txt"},
		{Op: plan.DeleteFile, Dest: "/dst/stale.txt"},
	}}
	exec.Apply(context.Background(), p)

	assert.Len(t, completions, 2)
	assert.Equal(t, 2, lastTotal)
	assert.Contains(t, completions, 2)
}

func TestApplyProgressMonotonic(t *testing.T) {
	fs = afero.NewMemMapFs()
	resetMocks(t)

	var actions []plan.Action
	for _, name := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		writeFile(t, "/src/"+name, name)
		actions = append(actions, plan.Action{
			Op: plan.CopyFile, Source: "/src/" + name, Dest: "/dst/" + name,
		})
	}

	var completions []int
	exec := newTestExecutor()
	exec.Concurrency = 4
	exec.Progress = func(completed, total int) {
		completions = append(completions, completed)
	}

	exec.Apply(context.Background(), &plan.SyncPlan{Actions: actions})

	// Concurrent workers must never deliver counts out of order.
	require.Len(t, completions, len(actions))
	for i, completed := range completions {
		assert.Equal(t, i+1, completed)
	}
}

func TestTrashDelete(t *testing.T) {
	fs = afero.NewMemMapFs()
	resetMocks(t)

	writeFile(t, "/dst/doomed.txt", "recover me")

	exec := newTestExecutor()
	exec.Hooks.Delete = NewTrashDelete("/trash")

	p := &plan.SyncPlan{Actions: []plan.Action{
		{Op: plan.DeleteFile, Dest: "/dst/doomed.txt"},
	}}
	res := exec.Apply(context.Background(), p)

	assert.Equal(t, 1, res.Succeeded)
	exists, err := afero.Exists(fs, "/dst/doomed.txt")
	require.NoError(t, err)
	assert.False(t, exists)
	assertContents(t, "/trash/doomed.txt", "recover me")
}

func resetMocks(t *testing.T) {
	t.Cleanup(func() {
		writeContents = writeContentsImpl
	})
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, path, []byte(contents), 0644))
}

func assertContents(t *testing.T, path, exp string) {
	t.Helper()
	actual, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	assert.Equal(t, exp, string(actual))
}
