package socketio

import (
	"sort"
	"sync"
	"time"
)

// Debouncer collapses rapid triggers into batched flushes. Every key
// triggered within the window is flushed once, after the window elapses
// without further triggers.
type Debouncer struct {
	window time.Duration
	flushF func(key string)

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer
	stopped bool
}

// NewDebouncer creates a debouncer calling flush once per pending key.
func NewDebouncer(window time.Duration, flush func(key string)) *Debouncer {
	return &Debouncer{
		window:  window,
		flushF:  flush,
		pending: make(map[string]struct{}),
	}
}

// Trigger marks key as changed and restarts the window.
func (d *Debouncer) Trigger(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.pending[key] = struct{}{}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

// Forget drops key if it is pending.
func (d *Debouncer) Forget(key string) {
	d.mu.Lock()
	delete(d.pending, key)
	d.mu.Unlock()
}

func (d *Debouncer) flush() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	keys := make([]string, 0, len(d.pending))
	for k := range d.pending {
		keys = append(keys, k)
	}
	d.pending = make(map[string]struct{})
	d.mu.Unlock()

	sort.Strings(keys)
	for _, k := range keys {
		d.flushF(k)
	}
}

// Stop prevents any further flushes.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.pending = make(map[string]struct{})
}
