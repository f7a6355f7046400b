// Package debounce runs keyed callbacks after a quiet period. Scheduling a key
// again before its timer fires replaces the pending callback.
package debounce

import (
	"sync"
	"time"
)

type entry struct {
	gen   uint64
	timer *time.Timer
	fn    func()
}

// Debouncer holds at most one pending callback per key.
type Debouncer struct {
	delay   time.Duration
	mu      sync.Mutex
	gen     uint64
	entries map[string]*entry
	stopped bool
	wg      sync.WaitGroup
}

// New creates a debouncer with the given quiet period. A zero delay still runs
// callbacks asynchronously.
func New(delay time.Duration) *Debouncer {
	return &Debouncer{
		delay:   delay,
		entries: make(map[string]*entry),
	}
}

// Delay returns the quiet period.
func (d *Debouncer) Delay() time.Duration {
	return d.delay
}

// Schedule cancels any pending callback for key and arranges for fn to run
// after the quiet period. It returns false once the debouncer is stopped.
func (d *Debouncer) Schedule(key string, fn func()) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return false
	}
	d.cancelLocked(key)

	d.gen++
	e := &entry{gen: d.gen, fn: fn}
	d.entries[key] = e
	d.wg.Add(1)
	e.timer = time.AfterFunc(d.delay, func() { d.fire(key, e.gen) })
	return true
}

func (d *Debouncer) fire(key string, gen uint64) {
	defer d.wg.Done()

	d.mu.Lock()
	e, ok := d.entries[key]
	if !ok || e.gen != gen {
		// Replaced or cancelled after the timer had already fired.
		d.mu.Unlock()
		return
	}
	delete(d.entries, key)
	d.mu.Unlock()

	e.fn()
}

// Cancel drops the pending callback for key. It reports whether one was pending.
func (d *Debouncer) Cancel(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cancelLocked(key)
}

func (d *Debouncer) cancelLocked(key string) bool {
	e, ok := d.entries[key]
	if !ok {
		return false
	}
	delete(d.entries, key)
	if e.timer.Stop() {
		d.wg.Done()
	}
	return true
}

// Flush runs the pending callback for key on the caller's goroutine right away.
// It reports whether a callback was pending.
func (d *Debouncer) Flush(key string) bool {
	d.mu.Lock()
	e, ok := d.entries[key]
	if !ok {
		d.mu.Unlock()
		return false
	}
	delete(d.entries, key)
	if e.timer.Stop() {
		d.wg.Done()
	}
	d.mu.Unlock()

	e.fn()
	return true
}

// Pending reports whether key has a callback waiting to run.
func (d *Debouncer) Pending(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.entries[key]
	return ok
}

// Stop cancels every pending callback and waits for callbacks already running.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	d.stopped = true
	for key := range d.entries {
		d.cancelLocked(key)
	}
	d.mu.Unlock()

	d.wg.Wait()
}
