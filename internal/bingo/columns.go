package bingo

import (
	"fmt"
	"slices"
)

const (
	// MinColumn and MaxColumn bound the purchasable columns of a round.
	MinColumn = 1
	MaxColumn = 15

	// ColumnCount is the number of columns that makes a round sold out.
	ColumnCount = MaxColumn - MinColumn + 1
)

// Columns is a set of column numbers kept sorted and free of duplicates.
// The zero value is an empty set.
type Columns []int

// NewColumns builds a set from the given values, dropping duplicates.
// Values are not range checked; use ParseColumns at the boundary.
func NewColumns(values ...int) Columns {
	out := make(Columns, 0, len(values))
	for _, v := range values {
		if !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	slices.Sort(out)
	return out
}

// ParseColumns validates raw column numbers received from a client.
// It rejects empty input and values outside [MinColumn, MaxColumn].
// Duplicates are tolerated and collapsed.
func ParseColumns(values []int) (Columns, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: no columns given", ErrInvalidColumns)
	}
	for _, v := range values {
		if v < MinColumn || v > MaxColumn {
			return nil, fmt.Errorf("%w: column %d out of range %d-%d", ErrInvalidColumns, v, MinColumn, MaxColumn)
		}
	}
	return NewColumns(values...), nil
}

// Len returns the number of columns in the set.
func (c Columns) Len() int {
	return len(c)
}

// Full reports whether the set covers every column.
func (c Columns) Full() bool {
	return len(c) >= ColumnCount
}

// Contains reports whether column is in the set.
func (c Columns) Contains(column int) bool {
	_, ok := slices.BinarySearch(c, column)
	return ok
}

// Union returns a new set holding the columns of c and other.
func (c Columns) Union(other Columns) Columns {
	merged := make([]int, 0, len(c)+len(other))
	merged = append(merged, c...)
	merged = append(merged, other...)
	return NewColumns(merged...)
}

// Without returns a new set holding the columns of c that are not in other.
func (c Columns) Without(other Columns) Columns {
	out := make(Columns, 0, len(c))
	for _, v := range c {
		if !other.Contains(v) {
			out = append(out, v)
		}
	}
	return out
}

// Ints returns a copy of the set as a plain slice, never nil.
func (c Columns) Ints() []int {
	out := make([]int, len(c))
	copy(out, c)
	return out
}
