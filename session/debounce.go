package session

import (
	"sync"
	"time"
)

// debouncer coalesces rapid calls per key into a single execution after a
// quiet window. Each Schedule replaces the previous pending function for the
// key, so only the latest one runs.
type debouncer struct {
	window time.Duration

	mu      sync.Mutex
	timers  map[string]*time.Timer
	pending map[string]func()
}

func newDebouncer(window time.Duration) *debouncer {
	return &debouncer{
		window:  window,
		timers:  make(map[string]*time.Timer),
		pending: make(map[string]func()),
	}
}

func (d *debouncer) Schedule(key string, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending[key] = fn
	if t, ok := d.timers[key]; ok {
		t.Reset(d.window)
		return
	}
	d.timers[key] = time.AfterFunc(d.window, func() { d.fire(key) })
}

func (d *debouncer) fire(key string) {
	d.mu.Lock()
	fn := d.pending[key]
	delete(d.pending, key)
	delete(d.timers, key)
	d.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Flush runs every pending function immediately. Used on sign-out so edits
// still inside the quiet window are not lost.
func (d *debouncer) Flush() {
	d.mu.Lock()
	fns := make([]func(), 0, len(d.pending))
	for key, fn := range d.pending {
		if t, ok := d.timers[key]; ok {
			t.Stop()
		}
		fns = append(fns, fn)
	}
	d.pending = make(map[string]func())
	d.timers = make(map[string]*time.Timer)
	d.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}
