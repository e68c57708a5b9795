// Package position defines the zero-based (row, column) coordinate system
// shared by the text buffer and syntax tree nodes.
package position

import (
	"errors"
	"fmt"
)

// ErrInvertedRange is returned when a range ends before it starts.
var ErrInvertedRange = errors.New("range end precedes start")

// Position is a zero-based (row, column) location in a text buffer.
type Position struct {
	Row    int `json:"row"`
	Column int `json:"column"`
}

// Compare orders positions by row, then column.
// It returns -1 if pos < other, 0 if equal and +1 if pos > other.
func (pos Position) Compare(other Position) int {
	switch {
	case pos.Row < other.Row:
		return -1
	case pos.Row > other.Row:
		return 1
	case pos.Column < other.Column:
		return -1
	case pos.Column > other.Column:
		return 1
	default:
		return 0
	}
}

// Less reports whether pos sorts before other.
func (pos Position) Less(other Position) bool {
	return pos.Compare(other) < 0
}

// Translate shifts the position by the given row and column deltas.
func (pos Position) Translate(rows, columns int) Position {
	return Position{Row: pos.Row + rows, Column: pos.Column + columns}
}

func (pos Position) String() string {
	return fmt.Sprintf("[%d,%d]", pos.Row, pos.Column)
}

// Range is a span between two positions. Start never sorts after End;
// zero-width ranges are legal.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// NewRange builds a range, rejecting inverted spans.
func NewRange(start, end Position) (Range, error) {
	if end.Less(start) {
		return Range{}, fmt.Errorf("%w: %s > %s", ErrInvertedRange, start, end)
	}

	return Range{Start: start, End: end}, nil
}

// IsEmpty reports whether the range has zero width.
func (rng Range) IsEmpty() bool {
	return rng.Start == rng.End
}

// Contains reports whether pos lies within the range. Both ends are
// inclusive so a caret placed right after a token still selects it.
func (rng Range) Contains(pos Position) bool {
	return rng.Start.Compare(pos) <= 0 && pos.Compare(rng.End) <= 0
}

// Encloses reports whether other lies entirely within the range.
func (rng Range) Encloses(other Range) bool {
	return rng.Start.Compare(other.Start) <= 0 && other.End.Compare(rng.End) <= 0
}

// Rows returns the number of rows the range spans, counting partial rows.
func (rng Range) Rows() int {
	return rng.End.Row - rng.Start.Row + 1
}

// String formats the range the way the tree view prints it: "[r,c] - [r,c]".
func (rng Range) String() string {
	return rng.Start.String() + " - " + rng.End.String()
}
