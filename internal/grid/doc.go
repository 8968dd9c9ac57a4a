// Package grid defines grid cell coordinates and the lazy sources that
// enumerate them. A Range walks a closed rectangle in a spatially interleaved
// order so neighbouring cells are not requested back to back.
package grid
