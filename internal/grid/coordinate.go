package grid

import (
	"fmt"
	"iter"
)

// Coordinate identifies a single grid cell.
type Coordinate struct {
	X int
	Z int
}

// String renders the coordinate as "(x, z)".
func (c Coordinate) String() string {
	return fmt.Sprintf("(%d, %d)", c.X, c.Z)
}

// Source yields coordinates one at a time. Next reports false once the
// source is exhausted.
type Source interface {
	Next() (Coordinate, bool)
}

// SliceSource replays an ordered list of coordinates.
type SliceSource struct {
	cells []Coordinate
	pos   int
}

// NewSliceSource wraps cells without copying them.
func NewSliceSource(cells []Coordinate) *SliceSource {
	return &SliceSource{cells: cells}
}

// Next returns the next cell in slice order.
func (s *SliceSource) Next() (Coordinate, bool) {
	if s == nil || s.pos >= len(s.cells) {
		return Coordinate{}, false
	}
	c := s.cells[s.pos]
	s.pos++
	return c, true
}

// Remaining reports how many cells have not been returned yet.
func (s *SliceSource) Remaining() int {
	if s == nil {
		return 0
	}
	return len(s.cells) - s.pos
}

// FromSeq adapts a push iterator into a Source. The returned stop function
// must be called if the source is abandoned before exhaustion.
func FromSeq(seq iter.Seq[Coordinate]) (Source, func()) {
	next, stop := iter.Pull(seq)
	return pullSource(next), stop
}

type pullSource func() (Coordinate, bool)

func (p pullSource) Next() (Coordinate, bool) {
	return p()
}
