// Package clock provides the software timers used by the protocol core.
package clock

import (
	"sync"
	"time"
)

// Timer is a restartable timer bound to a callback at construction.
// Start re-arms a running timer. Stop cancels it; a callback that was
// already due but had not run yet is suppressed.
type Timer interface {
	Start(d time.Duration)
	Stop()
}

// AfterFunc is a Timer backed by time.AfterFunc
type AfterFunc struct {
	mu     sync.Mutex
	fn     func()
	repeat bool
	period time.Duration
	t      *time.Timer
	gen    uint64
}

// NewOneShot creates a timer that fires fn once per Start
func NewOneShot(fn func()) *AfterFunc {
	return &AfterFunc{fn: fn}
}

// NewRepeating creates a timer that fires fn every period until stopped
func NewRepeating(fn func()) *AfterFunc {
	return &AfterFunc{fn: fn, repeat: true}
}

// Start arms the timer for d, replacing any pending expiry
func (a *AfterFunc) Start(d time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.t != nil {
		a.t.Stop()
	}
	a.gen++
	a.period = d
	a.arm(a.gen)
}

// Stop cancels the timer
func (a *AfterFunc) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.gen++
	if a.t != nil {
		a.t.Stop()
		a.t = nil
	}
}

// arm must be called with mu held
func (a *AfterFunc) arm(gen uint64) {
	a.t = time.AfterFunc(a.period, func() { a.fire(gen) })
}

func (a *AfterFunc) fire(gen uint64) {
	a.mu.Lock()
	if gen != a.gen {
		a.mu.Unlock()
		return
	}
	if a.repeat {
		a.arm(gen)
	} else {
		a.t = nil
	}
	a.mu.Unlock()

	a.fn()
}
