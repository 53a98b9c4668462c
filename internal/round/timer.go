package round

import (
	"context"
	"time"

	"github.com/coder/quartz"
)

// Timer owns at most one pending callback. Arming it cancels whatever was
// armed before, so a Timer can never fire twice for two armings.
//
// Timer is not safe for concurrent use. Its owner calls every method with
// its own lock held, and callbacks take that lock and then check Current
// with the token they were given before acting.
type Timer struct {
	clock  quartz.Clock
	name   string
	token  uint64
	cancel func()
}

func newTimer(clock quartz.Clock, name string) *Timer {
	return &Timer{clock: clock, name: name}
}

// After arms f to run once after d.
func (t *Timer) After(d time.Duration, f func(token uint64)) {
	t.Cancel()
	token := t.token
	timer := t.clock.AfterFunc(d, func() { f(token) }, t.name)
	t.cancel = func() { timer.Stop() }
}

// Every arms f to run every d until cancelled.
func (t *Timer) Every(d time.Duration, f func(token uint64)) {
	t.Cancel()
	token := t.token
	ctx, cancel := context.WithCancel(context.Background())
	t.clock.TickerFunc(ctx, d, func() error {
		f(token)
		return nil
	}, t.name)
	t.cancel = cancel
}

// Cancel disarms the timer. A callback already running sees a stale token.
func (t *Timer) Cancel() {
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	t.token++
}

// Armed reports whether a callback is pending.
func (t *Timer) Armed() bool {
	return t.cancel != nil
}

// Current reports whether token belongs to the active arming.
func (t *Timer) Current(token uint64) bool {
	return t.cancel != nil && token == t.token
}

// release marks a fired one-shot timer as no longer armed.
func (t *Timer) release(token uint64) {
	if t.Current(token) {
		t.cancel = nil
		t.token++
	}
}
