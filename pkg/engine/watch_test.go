package engine

import (
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

func TestCombineUpdates(t *testing.T) {
	updates := make(chan fsnotify.Event)
	defer close(updates)
	combined := combineUpdates(updates)

	// A burst of events coalesces into a single trigger.
	for i := 0; i < 5; i++ {
		updates <- fsnotify.Event{Name: "a.txt", Op: fsnotify.Write}
	}

	// Give the forwarding goroutine a moment to process the final event.
	time.Sleep(50 * time.Millisecond)

	select {
	case <-combined:
	default:
		t.Fatal("expected a trigger after events")
	}

	select {
	case <-combined:
		t.Fatal("trigger channel should coalesce events")
	default:
	}
}
