package datacube

import "math"

// An IndexArray records, per destination grid cell, the fractional
// source pixel coordinates that map to it. It has two bands (source-i,
// source-j) over the destination extent; NaN pairs mark cells with no
// source pixel.
type IndexArray struct {
	Width, Height int
	I, J          []float64
}

// NewIndexArray allocates an index array with all cells unmapped.
func NewIndexArray(width, height int) *IndexArray {
	a := &IndexArray{
		Width:  width,
		Height: height,
		I:      make([]float64, width*height),
		J:      make([]float64, width*height),
	}
	nan := math.NaN()
	for k := range a.I {
		a.I[k] = nan
		a.J[k] = nan
	}
	return a
}

// FlipRows reverses the row order of both bands in place.
func (a *IndexArray) FlipRows() {
	for j := 0; j < a.Height/2; j++ {
		top := j * a.Width
		bot := (a.Height - 1 - j) * a.Width
		for i := 0; i < a.Width; i++ {
			a.I[top+i], a.I[bot+i] = a.I[bot+i], a.I[top+i]
			a.J[top+i], a.J[bot+i] = a.J[bot+i], a.J[top+i]
		}
	}
}

// copyBlock writes block b into the receiver at destination pixel
// (x0, y0). Used to stitch per-tile results into a full index array.
func (a *IndexArray) copyBlock(b *IndexArray, x0, y0 int) {
	for j := 0; j < b.Height; j++ {
		dst := (y0+j)*a.Width + x0
		src := j * b.Width
		copy(a.I[dst:dst+b.Width], b.I[src:src+b.Width])
		copy(a.J[dst:dst+b.Width], b.J[src:src+b.Width])
	}
}
