package clock

import (
	"sync"
	"time"
)

// Fake is a manually stepped Clock for tests. Advance moves the current
// time forward and fires any timers or tickers whose deadline passed.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	waiters []*fakeWaiter
}

type fakeWaiter struct {
	ch       chan time.Time
	deadline time.Time
	interval time.Duration // zero for one-shot timers
	stopped  bool
}

// NewFake returns a Fake clock pinned at start.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

// Now returns the fake current time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.now
}

// Advance moves the clock forward by d, firing due timers and tickers in
// deadline order. Tick delivery is non-blocking; a full channel drops the
// tick, matching time.Ticker semantics.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()

	target := f.now.Add(d)

	for {
		next := f.earliestLocked(target)
		if next == nil {
			break
		}

		f.now = next.deadline

		select {
		case next.ch <- f.now:
		default:
		}

		if next.interval > 0 {
			next.deadline = next.deadline.Add(next.interval)
		} else {
			next.stopped = true
		}
	}

	f.now = target
}

func (f *Fake) earliestLocked(limit time.Time) *fakeWaiter {
	var earliest *fakeWaiter

	for _, w := range f.waiters {
		if w.stopped || w.deadline.After(limit) {
			continue
		}

		if earliest == nil || w.deadline.Before(earliest.deadline) {
			earliest = w
		}
	}

	return earliest
}

// NewTicker implements Clock.
func (f *Fake) NewTicker(d time.Duration) Ticker {
	f.mu.Lock()
	defer f.mu.Unlock()

	w := &fakeWaiter{ch: make(chan time.Time, 1), deadline: f.now.Add(d), interval: d}
	f.waiters = append(f.waiters, w)

	return &fakeTicker{fake: f, w: w}
}

// NewTimer implements Clock.
func (f *Fake) NewTimer(d time.Duration) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()

	w := &fakeWaiter{ch: make(chan time.Time, 1), deadline: f.now.Add(d)}
	f.waiters = append(f.waiters, w)

	return &fakeTimer{fake: f, w: w}
}

type fakeTicker struct {
	fake *Fake
	w    *fakeWaiter
}

func (ft *fakeTicker) C() <-chan time.Time { return ft.w.ch }

func (ft *fakeTicker) Stop() {
	ft.fake.mu.Lock()
	defer ft.fake.mu.Unlock()

	ft.w.stopped = true
}

type fakeTimer struct {
	fake *Fake
	w    *fakeWaiter
}

func (ft *fakeTimer) C() <-chan time.Time { return ft.w.ch }

func (ft *fakeTimer) Reset(d time.Duration) {
	ft.fake.mu.Lock()
	defer ft.fake.mu.Unlock()

	select {
	case <-ft.w.ch:
	default:
	}

	ft.w.deadline = ft.fake.now.Add(d)
	ft.w.stopped = false
}

func (ft *fakeTimer) Stop() {
	ft.fake.mu.Lock()
	defer ft.fake.mu.Unlock()

	ft.w.stopped = true
}
