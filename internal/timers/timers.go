// Package timers provides the cancellable, reschedulable timer used by
// every transaction state machine for retransmission and timeout
// scheduling (Timers A/B/D, E/F/K, G/H/I, J in RFC 3261 S. 17).
package timers

import (
	"sync"
	"time"
)

// Timer wraps time.Timer with a thread-safe Reset that also updates
// the duration it reports, so a retransmit callback can read back
// "what interval am I currently on" when doubling it (Timer A/E's
// T1, 2T1, 4T1, ... schedule).
type Timer struct {
	mu       sync.Mutex
	t        *time.Timer
	duration time.Duration
	stopped  bool
}

// AfterFunc starts a timer that calls f on its own goroutine after d.
func AfterFunc(d time.Duration, f func()) *Timer {
	tm := &Timer{duration: d}
	tm.t = time.AfterFunc(d, f)
	return tm
}

// Duration returns the interval the timer was last (re)started with.
func (t *Timer) Duration() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.duration
}

// Reset reschedules the timer to fire after d, as if newly started.
func (t *Timer) Reset(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.duration = d
	t.stopped = false
	t.t.Reset(d)
}

// Stop cancels the timer; it is safe to call multiple times.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.stopped = true
	t.t.Stop()
}

// Stopped reports whether Stop has been called.
func (t *Timer) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}
