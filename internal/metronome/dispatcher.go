package metronome

import (
	"sync"
	"time"
)

// dispatcher runs callbacks after a wall-clock delay computed from the
// audio clock. Timing is best effort; Event timestamps are authoritative.
type dispatcher struct {
	mu     sync.Mutex
	timers map[*time.Timer]struct{}
}

func newDispatcher() *dispatcher {
	return &dispatcher{timers: make(map[*time.Timer]struct{})}
}

// after runs fn once delay seconds have passed, unless cancelled first.
func (d *dispatcher) after(delay float64, fn func()) {
	if fn == nil {
		return
	}
	wait := time.Duration(max(delay, 0) * float64(time.Second))

	d.mu.Lock()
	defer d.mu.Unlock()

	var t *time.Timer
	t = time.AfterFunc(wait, func() {
		d.mu.Lock()
		_, live := d.timers[t]
		delete(d.timers, t)
		d.mu.Unlock()
		if live {
			fn()
		}
	})
	d.timers[t] = struct{}{}
}

// cancel drops every pending callback.
func (d *dispatcher) cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for t := range d.timers {
		t.Stop()
		delete(d.timers, t)
	}
}

func (d *dispatcher) pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.timers)
}
