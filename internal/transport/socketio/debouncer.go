package socketio

import (
	"sync"
	"time"
)

// Topic is a broadcast that can be pending in a Debouncer.
type Topic uint8

const (
	TopicState Topic = 1 << iota
	TopicQueue
)

// Has reports whether t includes other.
func (t Topic) Has(other Topic) bool { return t&other != 0 }

// Debouncer collapses rapid engine and queue notifications into batched
// broadcasts. Triggers within the window produce one flush per burst; a
// steady stream of triggers still flushes at least every maxWait.
type Debouncer struct {
	window  time.Duration
	maxWait time.Duration
	flushFn func(Topic)

	mu      sync.Mutex
	pending Topic
	since   time.Time
	timer   *time.Timer
	stopped bool
}

// NewDebouncer creates a debouncer. flush receives the pending topics.
// maxWait defaults to four windows.
func NewDebouncer(window time.Duration, flush func(Topic)) *Debouncer {
	return &Debouncer{
		window:  window,
		maxWait: 4 * window,
		flushFn: flush,
	}
}

// Trigger marks topic as changed and restarts the window.
func (d *Debouncer) Trigger(topic Topic) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	now := time.Now()
	if d.pending == 0 {
		d.since = now
	}
	d.pending |= topic

	wait := d.window
	if deadline := d.since.Add(d.maxWait); now.Add(wait).After(deadline) {
		wait = deadline.Sub(now)
		if wait < 0 {
			wait = 0
		}
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(wait, d.flush)
}

// flush fires the callback for pending topics and resets them.
func (d *Debouncer) flush() {
	d.mu.Lock()
	pending := d.pending
	d.pending = 0
	stopped := d.stopped
	d.mu.Unlock()

	if pending != 0 && !stopped && d.flushFn != nil {
		d.flushFn(pending)
	}
}

// Stop prevents any further callbacks from firing.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.pending = 0
}
