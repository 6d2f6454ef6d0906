package bridge

import (
	"sync"
	"time"
)

type debounceState int

const (
	debounceIdle debounceState = iota
	debounceExecuting
	debounceCooling
)

// debouncer rate-limits executions of fn with a leading edge: the first
// trigger in a quiet period runs fn immediately, then opens a cooling
// window. Triggers landing inside the window (or while fn runs) fold into
// one catch-up execution when the window elapses, so no trigger is ever
// silently lost and a burst costs at most two runs.
//
// Implemented as an explicit three-state machine rather than a timer reset
// loop: the states are inspectable, the transitions are enumerable, and a
// trigger-during-execution has a defined outcome.
type debouncer struct {
	mu      sync.Mutex
	state   debounceState
	rearm   bool
	window  time.Duration
	fn      func()
	stopped bool

	// afterFunc is swappable so tests can fire the window synchronously.
	afterFunc func(d time.Duration, f func()) *time.Timer
}

func newDebouncer(window time.Duration, fn func()) *debouncer {
	return &debouncer{
		window:    window,
		fn:        fn,
		afterFunc: time.AfterFunc,
	}
}

// trigger requests an execution. In the idle state fn runs on the caller's
// goroutine before trigger returns. Safe for concurrent use.
func (d *debouncer) trigger() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}

	switch d.state {
	case debounceIdle:
		d.state = debounceExecuting
		d.mu.Unlock()

		d.fn()

		d.mu.Lock()
		if !d.stopped {
			d.state = debounceCooling
			d.afterFunc(d.window, d.windowElapsed)
		}
		d.mu.Unlock()
		return

	case debounceExecuting, debounceCooling:
		// Folds into the catch-up run at the end of the window.
		d.rearm = true
	}
	d.mu.Unlock()
}

// windowElapsed closes one cooling window: quiet windows return to idle,
// windows that saw triggers run fn once more and cool again.
func (d *debouncer) windowElapsed() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	if !d.rearm {
		d.state = debounceIdle
		d.mu.Unlock()
		return
	}
	d.rearm = false
	d.state = debounceExecuting
	d.mu.Unlock()

	d.fn()

	d.mu.Lock()
	if !d.stopped {
		d.state = debounceCooling
		d.afterFunc(d.window, d.windowElapsed)
	}
	d.mu.Unlock()
}

// stop prevents any further executions. Pending windows are abandoned.
func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	d.state = debounceIdle
	d.rearm = false
}
