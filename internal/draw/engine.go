// Package draw implements the manual number draw: a random draw without
// replacement over 1..75 that stops as soon as a vertical pattern is covered.
package draw

import (
	rand "math/rand/v2"
	"slices"
)

// State is an immutable snapshot of a draw. The JSON names are the ones the
// admin console renders.
type State struct {
	Drawn          []int `json:"numerosSorteados"`
	Remaining      []int `json:"numerosPosibles"`
	RemainingCount int   `json:"remaining"`
	Last           *int  `json:"ultimoSorteado"`
	Previous       *int  `json:"anteriorSorteado"`
	Finished       bool  `json:"sorteoFinalizado"`
	WinningPattern []int `json:"patronGanador"`
	Running        bool  `json:"isRunning"`
}

// Won reports whether the draw finished on a pattern.
func (s State) Won() bool {
	return s.Finished && s.WinningPattern != nil
}

// Option configures an Engine.
type Option func(*Engine)

// WithPatterns replaces the vertical patterns checked after every draw.
func WithPatterns(patterns []Pattern) Option {
	return func(e *Engine) {
		e.patterns = slices.Clone(patterns)
	}
}

// Engine draws balls without replacement. It is not safe for concurrent use;
// Session serialises access to it.
type Engine struct {
	rng      *rand.Rand
	patterns []Pattern

	drawn    []int
	pool     []int
	seen     [DomainSize + 1]bool
	last     *int
	previous *int
	finished bool
	winner   *Pattern
	active   bool
}

// NewEngine returns an idle engine. An idle engine reports itself finished
// until Start is called.
func NewEngine(rng *rand.Rand, opts ...Option) *Engine {
	e := &Engine{
		rng:      rng,
		patterns: VerticalPatterns(),
		finished: true,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start begins a new draw with the full pool. It does nothing while a draw
// is in progress; call Reset first to abandon it.
func (e *Engine) Start() bool {
	if e.active {
		return false
	}
	e.drawn = make([]int, 0, DomainSize)
	e.pool = make([]int, DomainSize)
	for i := range e.pool {
		e.pool[i] = i + 1
	}
	e.seen = [DomainSize + 1]bool{}
	e.last, e.previous = nil, nil
	e.finished = false
	e.winner = nil
	e.active = true
	return true
}

// Reset abandons the current draw and returns the engine to idle.
func (e *Engine) Reset() {
	e.active = false
	e.finished = true
	e.drawn = nil
	e.pool = nil
	e.seen = [DomainSize + 1]bool{}
	e.last, e.previous = nil, nil
	e.winner = nil
}

// Active reports whether a draw has been started and not yet finished.
func (e *Engine) Active() bool {
	return e.active
}

// DrawNext draws one ball uniformly from the pool. It returns false without
// drawing when the draw is finished or the pool is empty.
func (e *Engine) DrawNext() (int, bool) {
	if e.finished || len(e.pool) == 0 {
		return 0, false
	}
	return e.take(e.rng.IntN(len(e.pool))), true
}

// drawValue draws a specific ball. Used to replay known sequences.
func (e *Engine) drawValue(v int) bool {
	if e.finished {
		return false
	}
	i := slices.Index(e.pool, v)
	if i < 0 {
		return false
	}
	e.take(i)
	return true
}

func (e *Engine) take(i int) int {
	v := e.pool[i]
	e.pool = slices.Delete(e.pool, i, i+1)
	e.drawn = append(e.drawn, v)
	e.seen[v] = true

	e.previous = e.last
	last := v
	e.last = &last

	for _, p := range e.patterns {
		if e.covers(p) {
			won := p
			e.winner = &won
			e.finish()
			return v
		}
	}
	if len(e.pool) == 0 {
		e.finish()
	}
	return v
}

func (e *Engine) finish() {
	e.finished = true
	e.active = false
}

func (e *Engine) covers(p Pattern) bool {
	for _, n := range p {
		if n < 1 || n > DomainSize || !e.seen[n] {
			return false
		}
	}
	return true
}

// State returns a copy of the draw. Running is always false; the session
// that drives the engine fills it in.
func (e *Engine) State() State {
	s := State{
		Drawn:          slices.Clone(e.drawn),
		Remaining:      slices.Clone(e.pool),
		RemainingCount: len(e.pool),
		Finished:       e.finished,
	}
	if s.Drawn == nil {
		s.Drawn = []int{}
	}
	if s.Remaining == nil {
		s.Remaining = []int{}
	}
	if e.last != nil {
		v := *e.last
		s.Last = &v
	}
	if e.previous != nil {
		v := *e.previous
		s.Previous = &v
	}
	if e.winner != nil {
		s.WinningPattern = e.winner.Ints()
	}
	return s
}
