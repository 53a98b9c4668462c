package draw

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/bingohall/internal/randutil"
)

func TestVerticalPatterns(t *testing.T) {
	t.Parallel()

	patterns := VerticalPatterns()
	require.Len(t, patterns, 15)
	assert.Equal(t, Pattern{1, 16, 31, 46, 61}, patterns[0])
	assert.Equal(t, Pattern{9, 24, 39, 54, 69}, patterns[8])
	assert.Equal(t, Pattern{15, 30, 45, 60, 75}, patterns[14])
}

func TestIdleEngine(t *testing.T) {
	t.Parallel()

	e := NewEngine(randutil.New(1))
	_, ok := e.DrawNext()
	assert.False(t, ok)

	state := e.State()
	assert.True(t, state.Finished)
	assert.Empty(t, state.Drawn)
	assert.Nil(t, state.WinningPattern)
}

func TestExhaustingPoolWithoutPattern(t *testing.T) {
	t.Parallel()

	e := NewEngine(randutil.New(7), WithPatterns(nil))
	require.True(t, e.Start())

	for i := range DomainSize {
		_, ok := e.DrawNext()
		require.True(t, ok, "draw %d", i+1)
	}

	state := e.State()
	assert.True(t, state.Finished)
	assert.Nil(t, state.WinningPattern)
	assert.False(t, state.Won())
	assert.Zero(t, state.RemainingCount)
	assert.Empty(t, state.Remaining)

	drawn := slices.Clone(state.Drawn)
	slices.Sort(drawn)
	for i, v := range drawn {
		assert.Equal(t, i+1, v, "every ball drawn exactly once")
	}

	_, ok := e.DrawNext()
	assert.False(t, ok, "finished engine draws nothing")
}

func TestPatternFinishesOnFifthBall(t *testing.T) {
	t.Parallel()

	e := NewEngine(randutil.New(1))
	require.True(t, e.Start())

	for _, v := range []int{9, 24, 39, 54} {
		require.True(t, e.drawValue(v))
		state := e.State()
		assert.False(t, state.Finished, "not finished after %d", v)
		assert.Nil(t, state.WinningPattern)
	}

	require.True(t, e.drawValue(69))
	state := e.State()
	assert.True(t, state.Finished)
	assert.Equal(t, []int{9, 24, 39, 54, 69}, state.WinningPattern)
	assert.Equal(t, 69, *state.Last)
	assert.Equal(t, 54, *state.Previous)
	assert.Equal(t, DomainSize-5, state.RemainingCount)
	assert.False(t, e.Active())

	assert.False(t, e.drawValue(1), "no draws after a win")
}

func TestStartIgnoredWhileActive(t *testing.T) {
	t.Parallel()

	e := NewEngine(randutil.New(3))
	require.True(t, e.Start())
	_, ok := e.DrawNext()
	require.True(t, ok)

	assert.False(t, e.Start())
	assert.Len(t, e.State().Drawn, 1)

	e.Reset()
	assert.True(t, e.Start())
	assert.Empty(t, e.State().Drawn)
}

func TestRandomDrawEndsOnCoveredPattern(t *testing.T) {
	t.Parallel()

	for seed := int64(1); seed <= 20; seed++ {
		e := NewEngine(randutil.New(seed))
		require.True(t, e.Start())
		for {
			if _, ok := e.DrawNext(); !ok {
				break
			}
		}

		state := e.State()
		require.True(t, state.Won(), "seed %d", seed)
		assert.GreaterOrEqual(t, len(state.Drawn), PatternSize)
		assert.Contains(t, state.WinningPattern, *state.Last, "the last ball completes the pattern")
		for _, n := range state.WinningPattern {
			assert.Contains(t, state.Drawn, n)
		}
		assert.Equal(t, DomainSize, len(state.Drawn)+state.RemainingCount)
	}
}

func TestStateIsACopy(t *testing.T) {
	t.Parallel()

	e := NewEngine(randutil.New(5))
	e.Start()
	e.DrawNext()

	state := e.State()
	state.Drawn[0] = 999
	*state.Last = 999

	fresh := e.State()
	assert.NotEqual(t, 999, fresh.Drawn[0])
	assert.NotEqual(t, 999, *fresh.Last)
}
