package core

import (
	"errors"
	"math"
	"runtime"
	"sync"
)

var (
	ErrShapeMismatch = errors.New("grid shape mismatch")
	ErrRaggedRows    = errors.New("rows have different lengths")
)

// Grid is a single raster band stored row-major with a per-pixel validity mask.
type Grid struct {
	R, C  int
	Data  []float64
	Valid []bool
}

// NewGrid allocates a zero grid with every pixel valid.
func NewGrid(r, c int) *Grid {
	g := &Grid{R: r, C: c, Data: make([]float64, r*c), Valid: make([]bool, r*c)}
	for i := range g.Valid {
		g.Valid[i] = true
	}
	return g
}

// NewMaskedGrid allocates a grid with every pixel masked.
func NewMaskedGrid(r, c int) *Grid {
	return &Grid{R: r, C: c, Data: make([]float64, r*c), Valid: make([]bool, r*c)}
}

// Constant returns an r x c grid filled with v.
func Constant(r, c int, v float64) *Grid {
	g := NewGrid(r, c)
	for i := range g.Data {
		g.Data[i] = v
	}
	return g
}

// FromSlice creates a Grid from a nested slice (copies). NaN values become masked pixels.
func FromSlice(a [][]float64) (*Grid, error) {
	r := len(a)
	if r == 0 {
		return &Grid{}, nil
	}

	c := len(a[0])
	g := NewGrid(r, c)
	k := 0
	for i := 0; i < r; i++ {
		if len(a[i]) != c {
			return nil, ErrRaggedRows
		}
		for j := 0; j < c; j++ {
			v := a[i][j]
			if math.IsNaN(v) {
				g.Valid[k] = false
			} else {
				g.Data[k] = v
			}
			k++
		}
	}
	return g, nil
}

// At returns element (i, j)
func (g *Grid) At(i, j int) float64 { return g.Data[i*g.C+j] }

// Set sets element (i, j) and marks it valid.
func (g *Grid) Set(i, j int, v float64) {
	k := i*g.C + j
	g.Data[k] = v
	g.Valid[k] = true
}

// SetMasked masks element (i, j).
func (g *Grid) SetMasked(i, j int) {
	k := i*g.C + j
	g.Data[k] = 0
	g.Valid[k] = false
}

// IsValid reports whether element (i, j) holds an observation.
func (g *Grid) IsValid(i, j int) bool { return g.Valid[i*g.C+j] }

// Len is the number of pixels.
func (g *Grid) Len() int { return g.R * g.C }

// Clone deep copies the grid.
func (g *Grid) Clone() *Grid {
	n := &Grid{R: g.R, C: g.C, Data: make([]float64, len(g.Data)), Valid: make([]bool, len(g.Valid))}
	copy(n.Data, g.Data)
	copy(n.Valid, g.Valid)
	return n
}

// SameShape reports whether g and o have identical dimensions.
func (g *Grid) SameShape(o *Grid) bool { return g.R == o.R && g.C == o.C }

// Apply applies f to every valid element in place.
func (g *Grid) Apply(f func(float64) float64) {
	for i := range g.Data {
		if g.Valid[i] {
			g.Data[i] = f(g.Data[i])
		}
	}
}

// Mask returns a grid holding 1 where g is valid and 0 elsewhere. The result has no masked pixels.
func (g *Grid) Mask() *Grid {
	m := NewGrid(g.R, g.C)
	for i, ok := range g.Valid {
		if ok {
			m.Data[i] = 1
		}
	}
	return m
}

// Eq compares g and target pixel by pixel, yielding 1 or 0. Pixels masked in either input stay masked.
func Eq(g, target *Grid) (*Grid, error) {
	if !g.SameShape(target) {
		return nil, ErrShapeMismatch
	}
	out := NewMaskedGrid(g.R, g.C)
	for i := range g.Data {
		if !g.Valid[i] || !target.Valid[i] {
			continue
		}
		out.Valid[i] = true
		if g.Data[i] == target.Data[i] {
			out.Data[i] = 1
		}
	}
	return out, nil
}

// ParallelRows splits [0, rows) into contiguous ranges and runs fn on each range concurrently.
func ParallelRows(rows int, fn func(rs, re int)) {
	workers := runtime.GOMAXPROCS(0)
	rowsPerWorker := (rows + workers - 1) / workers

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		start := w * rowsPerWorker
		end := min(start+rowsPerWorker, rows)
		if start >= end {
			continue
		}
		wg.Add(1)
		go func(rs, re int) {
			defer wg.Done()
			fn(rs, re)
		}(start, end)
	}
	wg.Wait()
}

// CheckShapes returns ErrShapeMismatch unless every grid matches the first.
func CheckShapes(grids ...*Grid) error {
	for i := 1; i < len(grids); i++ {
		if !grids[0].SameShape(grids[i]) {
			return ErrShapeMismatch
		}
	}
	return nil
}
