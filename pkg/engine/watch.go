package engine

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/hmaster20/winsync/pkg/errors"
)

// DefaultPollInterval is the fallback resync interval for watch mode. Even
// with a working filesystem watcher the engine periodically resyncs, since
// watchers can silently drop events under load.
const DefaultPollInterval = 15 * time.Second

// Watch runs an initial sync and then resyncs whenever the source tree
// changes, until the context is cancelled. If the filesystem watcher can't
// be set up (e.g. too many open files), it falls back to polling with a
// warning.
func Watch(ctx context.Context, opts Options, pollInterval time.Duration) error {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}

	trigger, closeWatcher, err := watchTree(opts.Source)
	if err != nil {
		log.WithError(err).Warnf("Failed to watch the source tree for changes. "+
			"Polling every %s instead.", pollInterval)
		trigger = nil
	} else {
		defer closeWatcher()
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		if res, err := Run(ctx, opts); err != nil {
			log.WithError(err).Error("Sync failed")
		} else if outcome := Classify(res); outcome != OutcomeClean {
			log.WithField("outcome", outcome).Warn("Sync finished with issues")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-trigger:
		case <-ticker.C:
		}
	}
}

// watchTree registers a watcher on every directory under root and coalesces
// its events into a single trigger channel.
func watchTree(root string) (chan struct{}, func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, errors.WithContext(err, "create watcher")
	}

	err = afero.Walk(fs, root, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !fi.IsDir() {
			return nil
		}
		if err := watcher.Add(path); err != nil {
			return errors.WithContext(err, fmt.Sprintf("watch %q", path))
		}
		return nil
	})
	if err != nil {
		// Close the watcher so that we release the file handles for the
		// previously added paths.
		if closeErr := watcher.Close(); closeErr != nil {
			log.WithError(closeErr).Warn("Failed to close file watcher")
		}
		return nil, nil, err
	}

	closeWatcher := func() {
		if err := watcher.Close(); err != nil {
			log.WithError(err).Warn("Failed to close file watcher")
		}
	}
	return combineUpdates(watcher.Events), closeWatcher, nil
}

// combineUpdates coalesces bursts of watcher events into single triggers so
// that one save in an editor doesn't cause a pile-up of resyncs.
func combineUpdates(updates <-chan fsnotify.Event) chan struct{} {
	combined := make(chan struct{}, 1)
	go func() {
		for range updates {
			select {
			case combined <- struct{}{}:
			default:
			}
		}
	}()
	return combined
}
