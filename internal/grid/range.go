package grid

import (
	"errors"
	"fmt"
	"iter"
)

// ErrInvalidRange reports bounds where the upper corner precedes the lower one.
var ErrInvalidRange = errors.New("invalid range")

// stride is the interleave step along each axis. Cells are visited one residue
// class of (x mod stride, z mod stride) at a time.
const stride = 3

// Range is a closed rectangle [X1,X2]x[Z1,Z2] of grid cells.
type Range struct {
	X1, Z1 int
	X2, Z2 int
}

// NewRange validates the bounds and returns the range.
func NewRange(x1, z1, x2, z2 int) (Range, error) {
	r := Range{X1: x1, Z1: z1, X2: x2, Z2: z2}
	if err := r.Validate(); err != nil {
		return Range{}, err
	}
	return r, nil
}

// Validate checks that X2 >= X1 and Z2 >= Z1.
func (r Range) Validate() error {
	if r.X2 < r.X1 {
		return fmt.Errorf("%w: x2 (%d) must be >= x1 (%d)", ErrInvalidRange, r.X2, r.X1)
	}
	if r.Z2 < r.Z1 {
		return fmt.Errorf("%w: z2 (%d) must be >= z1 (%d)", ErrInvalidRange, r.Z2, r.Z1)
	}
	return nil
}

// Count returns the number of cells in the range.
func (r Range) Count() int64 {
	return (int64(r.X2) - int64(r.X1) + 1) * (int64(r.Z2) - int64(r.Z1) + 1)
}

// Contains reports whether c lies inside the range.
func (r Range) Contains(c Coordinate) bool {
	return c.X >= r.X1 && c.X <= r.X2 && c.Z >= r.Z1 && c.Z <= r.Z2
}

// String renders the range as "(x1, z1)-(x2, z2)".
func (r Range) String() string {
	return fmt.Sprintf("%s-%s", Coordinate{X: r.X1, Z: r.Z1}, Coordinate{X: r.X2, Z: r.Z2})
}

// Cells returns a fresh Source over every cell in the range. Each call starts
// from the beginning. The range is assumed valid.
func (r Range) Cells() Source {
	return &rangeSource{
		r:     r,
		xBase: floorMod(r.X1, stride),
		zBase: floorMod(r.Z1, stride),
	}
}

// All returns the same enumeration as Cells as a push iterator.
func (r Range) All() iter.Seq[Coordinate] {
	return func(yield func(Coordinate) bool) {
		src := r.Cells()
		for c, ok := src.Next(); ok; c, ok = src.Next() {
			if !yield(c) {
				return
			}
		}
	}
}

// rangeSource walks the residue classes in (offsetX, offsetZ) order; inside a
// class it walks rows of z, each row stepping x by stride.
type rangeSource struct {
	r            Range
	xBase, zBase int

	offsetX, offsetZ int
	x, z             int
	inClass          bool
	done             bool
}

func (s *rangeSource) Next() (Coordinate, bool) {
	for !s.done {
		if !s.inClass {
			if s.offsetX >= stride {
				s.done = true
				break
			}
			s.x = s.classStartX()
			s.z = s.classStartZ()
			s.inClass = true
		}
		if s.z > s.r.Z2 || s.classStartX() > s.r.X2 {
			s.nextClass()
			continue
		}
		if s.x > s.r.X2 {
			s.z += stride
			s.x = s.classStartX()
			continue
		}
		c := Coordinate{X: s.x, Z: s.z}
		s.x += stride
		return c, true
	}
	return Coordinate{}, false
}

func (s *rangeSource) classStartX() int {
	return s.r.X1 + floorMod(s.offsetX-s.xBase, stride)
}

func (s *rangeSource) classStartZ() int {
	return s.r.Z1 + floorMod(s.offsetZ-s.zBase, stride)
}

func (s *rangeSource) nextClass() {
	s.inClass = false
	s.offsetZ++
	if s.offsetZ >= stride {
		s.offsetZ = 0
		s.offsetX++
	}
}

func floorMod(a, m int) int {
	return ((a % m) + m) % m
}
