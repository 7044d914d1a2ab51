// Package notify coalesces bursts of invalidations into a bounded refresh rate.
package notify

import (
	"sync"
	"time"
)

// DefaultWindow is the coalescing window used across the client
const DefaultWindow = 300 * time.Millisecond

// Bundler runs fn at most once per window after one or more Invalidate
// calls. The fire happens on the trailing edge of the window, so fn always
// sees the state as of the fire. Invalidations that arrive while fn runs
// schedule another fire.
type Bundler struct {
	window time.Duration
	fn     func()

	mu        sync.Mutex
	scheduled bool
	stopped   bool
	timer     *time.Timer

	// serializes fn
	fireMu sync.Mutex
}

// NewBundler creates a bundler. A zero window uses DefaultWindow.
func NewBundler(window time.Duration, fn func()) *Bundler {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Bundler{window: window, fn: fn}
}

// Window returns the coalescing window
func (b *Bundler) Window() time.Duration { return b.window }

// Invalidate schedules a fire unless one is already pending. It never blocks.
func (b *Bundler) Invalidate() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.scheduled || b.stopped {
		return
	}
	b.scheduled = true
	b.timer = time.AfterFunc(b.window, b.fire)
}

// Pending reports whether a fire is scheduled
func (b *Bundler) Pending() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.scheduled
}

// Flush fires immediately if a fire is pending
func (b *Bundler) Flush() {
	b.mu.Lock()
	if !b.scheduled {
		b.mu.Unlock()
		return
	}
	if b.timer != nil {
		b.timer.Stop()
	}
	b.mu.Unlock()
	b.fire()
}

// Stop cancels any pending fire. Later invalidations are ignored.
func (b *Bundler) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopped = true
	b.scheduled = false
	if b.timer != nil {
		b.timer.Stop()
	}
}

func (b *Bundler) fire() {
	b.fireMu.Lock()
	defer b.fireMu.Unlock()

	b.mu.Lock()
	if !b.scheduled || b.stopped {
		b.mu.Unlock()
		return
	}
	// cleared before fn runs so invalidations during fn re-arm
	b.scheduled = false
	b.mu.Unlock()

	b.fn()
}
