// Package testutil holds helpers shared by package tests.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/coder/quartz"
)

// Advance moves clk forward by d, firing every timer and ticker due on the
// way in order and waiting for their callbacks to return.
func Advance(ctx context.Context, t testing.TB, clk *quartz.Mock, d time.Duration) {
	t.Helper()
	target := clk.Now().Add(d)
	for {
		remaining := target.Sub(clk.Now())
		next, ok := clk.Peek()
		if !ok || next > remaining {
			if remaining > 0 {
				clk.Advance(remaining).MustWait(ctx)
			}
			return
		}
		_, w := clk.AdvanceNext()
		w.MustWait(ctx)
	}
}

// Context returns a context cancelled after a generous deadline and when the test ends.
func Context(t testing.TB) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}
