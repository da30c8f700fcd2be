package livesync

import (
	"sync"
	"time"
)

// DefaultDebounce is the coalescing window for bursts on one entity.
const DefaultDebounce = 25 * time.Millisecond

// Debouncer coalesces work per key: the first Schedule for a key opens a
// window, later calls in the window replace the pending work, and only
// the last one runs when the window closes.
type Debouncer struct {
	window time.Duration

	mu      sync.Mutex
	pending map[string]*pendingRun
	stopped bool
}

type pendingRun struct {
	fn    func()
	timer *time.Timer
}

func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{
		window:  window,
		pending: make(map[string]*pendingRun),
	}
}

// Schedule runs fn after the window unless a later call for the same
// key replaces it. A zero window runs fn immediately.
func (d *Debouncer) Schedule(key string, fn func()) {
	if d.window <= 0 {
		fn()
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if p, ok := d.pending[key]; ok {
		p.fn = fn
		return
	}
	p := &pendingRun{fn: fn}
	p.timer = time.AfterFunc(d.window, func() { d.fire(key, p) })
	d.pending[key] = p
}

func (d *Debouncer) fire(key string, p *pendingRun) {
	d.mu.Lock()
	if d.pending[key] != p {
		d.mu.Unlock()
		return
	}
	delete(d.pending, key)
	fn := p.fn
	d.mu.Unlock()
	fn()
}

// Pending reports how many keys wait for their window to close.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Stop drops pending work; later Schedule calls are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	for key, p := range d.pending {
		p.timer.Stop()
		delete(d.pending, key)
	}
}
