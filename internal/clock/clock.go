// Package clock provides wall-clock and timer abstractions so components
// that schedule work (status sweeps, cleaning windows, optimizer budgets)
// can be driven by a fake time source in tests.
package clock

import (
	"sync"
	"time"
)

type (
	// Clock is a time source. Production code uses System; tests substitute
	// a Fake to step through trigger boundaries deterministically.
	Clock interface {
		// Now returns the current wall-clock time.
		Now() time.Time

		// NewTicker returns a ticker firing every d. The caller owns Stop.
		NewTicker(d time.Duration) Ticker

		// NewTimer returns a one-shot timer firing after d.
		NewTimer(d time.Duration) Timer
	}

	// Ticker delivers periodic ticks until stopped.
	Ticker interface {
		C() <-chan time.Time
		Stop()
	}

	// Timer delivers a single tick, optionally reset or suspended.
	Timer interface {
		C() <-chan time.Time
		// Reset re-arms the timer for d, draining any pending tick.
		Reset(d time.Duration)
		// Stop disarms the timer. Safe to call repeatedly.
		Stop()
	}
)

// System returns the real wall-clock backed by the time package.
func System() Clock {
	return systemClock{}
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) NewTicker(d time.Duration) Ticker {
	return &systemTicker{t: time.NewTicker(d)}
}

func (systemClock) NewTimer(d time.Duration) Timer {
	return &systemTimer{t: time.NewTimer(d)}
}

type systemTicker struct {
	t *time.Ticker
}

func (st *systemTicker) C() <-chan time.Time { return st.t.C }
func (st *systemTicker) Stop()               { st.t.Stop() }

type systemTimer struct {
	mu sync.Mutex
	t  *time.Timer
}

func (st *systemTimer) C() <-chan time.Time { return st.t.C }

func (st *systemTimer) Reset(d time.Duration) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if !st.t.Stop() {
		select {
		case <-st.t.C:
		default:
		}
	}

	st.t.Reset(d)
}

func (st *systemTimer) Stop() {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.t.Stop()
}
