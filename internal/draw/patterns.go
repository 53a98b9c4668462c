package draw

import "github.com/lox/bingohall/internal/bingo"

const (
	// DomainSize is the number of balls in a manual draw, numbered 1..DomainSize.
	DomainSize = 75

	// PatternSize is the number of balls in a vertical pattern.
	PatternSize = 5
)

// Pattern is a fixed set of balls that ends a draw once all have been drawn.
type Pattern [PatternSize]int

// Ints returns the pattern as a slice.
func (p Pattern) Ints() []int {
	out := make([]int, PatternSize)
	copy(out, p[:])
	return out
}

// ColumnPattern returns the vertical pattern of a column: column, column+15,
// column+30, column+45 and column+60.
func ColumnPattern(column int) Pattern {
	var p Pattern
	for row := range PatternSize {
		p[row] = column + row*bingo.ColumnCount
	}
	return p
}

// VerticalPatterns returns the fifteen column patterns in column order.
func VerticalPatterns() []Pattern {
	patterns := make([]Pattern, 0, bingo.ColumnCount)
	for c := bingo.MinColumn; c <= bingo.MaxColumn; c++ {
		patterns = append(patterns, ColumnPattern(c))
	}
	return patterns
}
