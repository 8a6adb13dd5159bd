package trigger

import (
	"log/slog"
	"sync"
	"time"
)

// Dispatcher coalesces and rate-limits externally triggered actions keyed
// by an identifier, so a burst of duplicate hotkey/tray/UI triggers
// produces one effect. One lock serializes the timer and timestamp maps;
// action bodies always run outside the lock so one key never blocks
// another.
type Dispatcher struct {
	mu      sync.Mutex
	timers  map[string]*time.Timer
	lastRun map[string]time.Time
	nowFunc func() time.Time
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		timers:  make(map[string]*time.Timer),
		lastRun: make(map[string]time.Time),
		nowFunc: time.Now,
	}
}

// Debounce schedules action to run after delay of quiescence under key.
// A newer call cancels any pending one, so only the last call in a burst
// executes.
func (d *Dispatcher) Debounce(key string, delay time.Duration, action func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if timer, ok := d.timers[key]; ok {
		timer.Stop()
	}

	d.timers[key] = time.AfterFunc(delay, func() {
		d.mu.Lock()
		delete(d.timers, key)
		d.lastRun[key] = d.nowFunc()
		d.mu.Unlock()

		runProtected(key, action)
	})
}

// Throttle runs action immediately if interval has elapsed since the last
// execution under key, and reports whether it ran.
func (d *Dispatcher) Throttle(key string, interval time.Duration, action func()) bool {
	d.mu.Lock()
	last, ok := d.lastRun[key]
	now := d.nowFunc()
	if ok && now.Sub(last) < interval {
		d.mu.Unlock()
		return false
	}
	d.lastRun[key] = now
	d.mu.Unlock()

	runProtected(key, action)
	return true
}

// ExecuteNow cancels any pending debounce under key and runs action
// immediately, updating the last-execution timestamp.
func (d *Dispatcher) ExecuteNow(key string, action func()) {
	d.mu.Lock()
	if timer, ok := d.timers[key]; ok {
		timer.Stop()
		delete(d.timers, key)
	}
	d.lastRun[key] = d.nowFunc()
	d.mu.Unlock()

	runProtected(key, action)
}

// Cancel drops any pending debounce under key without running it.
func (d *Dispatcher) Cancel(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if timer, ok := d.timers[key]; ok {
		timer.Stop()
		delete(d.timers, key)
	}
}

// Shutdown cancels every pending action. The dispatcher stays usable, but
// callers are expected to discard it.
func (d *Dispatcher) Shutdown() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for key, timer := range d.timers {
		timer.Stop()
		delete(d.timers, key)
	}
}

// runProtected executes an action, converting panics into log entries.
// Trigger handlers must never take down the pipeline.
func runProtected(key string, action func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Trigger action panicked", "key", key, "panic", r)
		}
	}()
	action()
}
