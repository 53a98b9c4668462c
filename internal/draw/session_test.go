package draw

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/bingohall/internal/bingo"
	"github.com/lox/bingohall/internal/randutil"
	"github.com/lox/bingohall/internal/testutil"
)

type recordingPublisher struct {
	mu     sync.Mutex
	states []State
}

func (p *recordingPublisher) Broadcast(event string, payload any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if event == EventUpdate {
		p.states = append(p.states, payload.(State))
	}
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.states)
}

func (p *recordingPublisher) last() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.states[len(p.states)-1]
}

type recordingRecorder struct {
	mu      sync.Mutex
	entries []bingo.DrawHistoryEntry
}

func (r *recordingRecorder) RecordDraw(_ context.Context, entry bingo.DrawHistoryEntry) (bingo.DrawHistoryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry.ID = int64(len(r.entries) + 1)
	r.entries = append(r.entries, entry)
	return entry, nil
}

func newTestSession(t *testing.T, opts ...Option) (*Session, *quartz.Mock, *recordingPublisher, *recordingRecorder) {
	t.Helper()
	clk := quartz.NewMock(t)
	pub := &recordingPublisher{}
	rec := &recordingRecorder{}
	s := NewSession(SessionConfig{
		Engine:    NewEngine(randutil.New(11), opts...),
		Clock:     clk,
		Publisher: pub,
		Recorder:  rec,
		Logger:    log.New(io.Discard),
	})
	t.Cleanup(s.Stop)
	return s, clk, pub, rec
}

func TestSessionDrawsOnInterval(t *testing.T) {
	t.Parallel()
	ctx := testutil.Context(t)

	s, clk, pub, _ := newTestSession(t)
	s.Start()

	require.Equal(t, 1, pub.count())
	assert.True(t, pub.last().Running)
	assert.Empty(t, pub.last().Drawn)

	testutil.Advance(ctx, t, clk, DefaultInterval)
	assert.Len(t, s.State().Drawn, 1)
	assert.Equal(t, 2, pub.count())

	testutil.Advance(ctx, t, clk, 2*DefaultInterval)
	assert.Len(t, s.State().Drawn, 3)
}

func TestSessionStartWhileRunningIsIgnored(t *testing.T) {
	t.Parallel()
	ctx := testutil.Context(t)

	s, clk, pub, _ := newTestSession(t)
	s.Start()
	testutil.Advance(ctx, t, clk, DefaultInterval)
	before := pub.count()

	s.Start()
	assert.Equal(t, before, pub.count())
	assert.Len(t, s.State().Drawn, 1)
}

func TestSessionPauseResume(t *testing.T) {
	t.Parallel()
	ctx := testutil.Context(t)

	s, clk, pub, _ := newTestSession(t)

	s.PauseResume()
	assert.Zero(t, pub.count(), "nothing to pause before a draw starts")

	s.Start()
	testutil.Advance(ctx, t, clk, DefaultInterval)
	require.Len(t, s.State().Drawn, 1)

	s.PauseResume()
	assert.False(t, pub.last().Running)

	testutil.Advance(ctx, t, clk, 5*DefaultInterval)
	assert.Len(t, s.State().Drawn, 1, "paused draw does not advance")

	s.PauseResume()
	assert.True(t, pub.last().Running)
	testutil.Advance(ctx, t, clk, DefaultInterval)
	assert.Len(t, s.State().Drawn, 2)
}

func TestSessionFinishesAndRecords(t *testing.T) {
	t.Parallel()
	ctx := testutil.Context(t)

	s, clk, pub, rec := newTestSession(t)
	s.Start()
	testutil.Advance(ctx, t, clk, DomainSize*DefaultInterval)

	state := s.State()
	require.True(t, state.Won())
	assert.False(t, state.Running)
	assert.Equal(t, state, pub.last())

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.entries, 1)
	assert.Equal(t, state.WinningPattern, rec.entries[0].Pattern)
	assert.Equal(t, state.Drawn, rec.entries[0].Numbers)
	assert.Equal(t, bingo.DrawPending, rec.entries[0].State)
	assert.Equal(t, "admin", rec.entries[0].PerformedBy)

	s.PauseResume()
	assert.False(t, s.State().Running, "finished draw cannot be resumed")
}

func TestSessionExhaustedPoolIsNotRecorded(t *testing.T) {
	t.Parallel()
	ctx := testutil.Context(t)

	s, clk, _, rec := newTestSession(t, WithPatterns(nil))
	s.Start()
	testutil.Advance(ctx, t, clk, (DomainSize+2)*DefaultInterval)

	state := s.State()
	assert.True(t, state.Finished)
	assert.False(t, state.Running)
	assert.Len(t, state.Drawn, DomainSize)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Empty(t, rec.entries)
}
