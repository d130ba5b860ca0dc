// Package watch re-checks tasks when the files they declare change.
package watch

import (
	"sync"
	"time"

	"github.com/albertocavalcante/uptodate/pkg/util"
)

// MaxPendingPaths is the maximum number of paths that can be pending.
// Reaching it triggers an immediate flush so that a burst of writes (a
// checkout, a code generator) cannot grow the set without bound.
const MaxPendingPaths = 1000

// Debouncer coalesces rapid file events into one batch of changed paths.
// A flush happens once the window passes with no new events.
type Debouncer struct {
	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer
	window  time.Duration
	onFlush func(paths []string)
	stopped bool
}

// NewDebouncer creates a debouncer. onFlush receives the sorted, distinct
// paths seen since the previous flush.
func NewDebouncer(window time.Duration, onFlush func(paths []string)) *Debouncer {
	return &Debouncer{
		pending: make(map[string]struct{}),
		window:  window,
		onFlush: onFlush,
	}
}

// Add records a change to path and restarts the window.
func (d *Debouncer) Add(path string) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}

	d.pending[path] = struct{}{}

	if len(d.pending) >= MaxPendingPaths {
		d.stopTimerLocked()
		paths := d.drainLocked()
		d.mu.Unlock()
		d.deliver(paths)
		return
	}

	// Stop may lose the race with a timer that already fired; the flush it
	// queued then finds the new path and delivers it early, which is harmless.
	d.stopTimerLocked()
	d.timer = time.AfterFunc(d.window, d.FlushNow)
	d.mu.Unlock()
}

// FlushNow delivers pending paths without waiting for the window.
func (d *Debouncer) FlushNow() {
	d.mu.Lock()
	d.stopTimerLocked()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	paths := d.drainLocked()
	d.mu.Unlock()
	d.deliver(paths)
}

// Stop stops the debouncer. Pending paths are flushed one last time and
// later Adds are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	d.stopped = true
	d.stopTimerLocked()
	paths := d.drainLocked()
	d.mu.Unlock()
	d.deliver(paths)
}

// PendingCount returns the number of paths waiting to be flushed.
func (d *Debouncer) PendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

func (d *Debouncer) stopTimerLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// drainLocked empties the pending set. Caller must hold d.mu.
func (d *Debouncer) drainLocked() []string {
	if len(d.pending) == 0 {
		return nil
	}
	paths := util.SortedKeys(d.pending)
	clear(d.pending)
	return paths
}

// deliver calls the handler outside the lock.
func (d *Debouncer) deliver(paths []string) {
	if len(paths) > 0 && d.onFlush != nil {
		d.onFlush(paths)
	}
}
