// Package persist provides the debounced write scheduling every persistent
// store in this module shares: requestPersistence() only has to enqueue a
// flush, never perform one synchronously, matching the concurrency model in
// which ingress threads must never block on disk I/O.
package persist

import (
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Debouncer coalesces bursts of Request calls into a single Flush call, run
// at most once per delay window. Concurrent timers firing at once collapse
// onto a single in-flight flush via singleflight.
type Debouncer struct {
	delay time.Duration
	flush func() error

	mu      sync.Mutex
	timer   *time.Timer
	group   singleflight.Group
	stopped bool
}

func NewDebouncer(delay time.Duration, flush func() error) *Debouncer {
	return &Debouncer{delay: delay, flush: flush}
}

// Request schedules a flush no sooner than delay from now. Repeated calls
// within the window are free; only the last one's timer wins.
func (d *Debouncer) Request() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.fire)
}

func (d *Debouncer) fire() {
	_, _, _ = d.group.Do("flush", func() (interface{}, error) {
		return nil, d.flush()
	})
}

// Flush runs the write immediately, bypassing the debounce window. Intended
// for shutdown paths and tests, mirroring getPersisted()'s synchronous peek.
func (d *Debouncer) Flush() error {
	return d.flush()
}

// Stop cancels any pending timer. Safe to call more than once.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
}
