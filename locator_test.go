package datacube

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// regularSwath builds a dataset whose pixel centers already sit on a
// regular grid of resolution 1, so resampling onto the derived grid is
// the identity.
func regularSwath(w, h int) *Dataset {
	x := make([]float64, w*h)
	y := make([]float64, w*h)
	data := make([]float64, w*h)
	for j := 0; j < h; j++ {
		for i := 0; i < w; i++ {
			x[j*w+i] = float64(i) + 0.5
			y[j*w+i] = float64(j) + 0.5
			data[j*w+i] = float64(j*w + i)
		}
	}
	ds := NewDataset()
	lonVar, _ := NewVariable("lon", []string{"y", "x"}, []int{h, w}, x)
	latVar, _ := NewVariable("lat", []string{"y", "x"}, []int{h, w}, y)
	bandVar, _ := NewVariable("band", []string{"y", "x"}, []int{h, w}, data)
	ds.AddVar(lonVar)
	ds.AddVar(latVar)
	ds.AddVar(bandVar)
	return ds
}

func TestComputeSourcePixelsIdentity(t *testing.T) {
	ds := regularSwath(4, 4)
	gc, err := GeoCodingFromDataset(ds)
	require.NoError(t, err)
	geom, err := DeriveGridGeom(gc)
	require.NoError(t, err)
	assert.Equal(t, 4, geom.Width())
	assert.Equal(t, 4, geom.Height())
	assert.Equal(t, 1.0, geom.XYRes())
	assert.Equal(t, 0.0, geom.XMin())
	assert.Equal(t, 0.0, geom.YMin())

	idx := ComputeSourcePixels(gc, geom, false, DefaultUVDelta)
	for j := 0; j < 4; j++ {
		for i := 0; i < 4; i++ {
			assert.InDelta(t, float64(i), idx.I[j*4+i], 1e-9, "i at %d,%d", j, i)
			assert.InDelta(t, float64(j), idx.J[j*4+i], 1e-9, "j at %d,%d", j, i)
		}
	}
}

func TestComputeSourcePixelsInteriorFullyMapped(t *testing.T) {
	// A slightly sheared swath still maps every interior destination
	// pixel to some source pixel.
	w, h := 10, 8
	x := make([]float64, w*h)
	y := make([]float64, w*h)
	for j := 0; j < h; j++ {
		for i := 0; i < w; i++ {
			x[j*w+i] = float64(i) + 0.5 + 0.05*float64(j)
			y[j*w+i] = float64(j) + 0.5 + 0.03*float64(i)
		}
	}
	gc := &GeoCoding{X: x, Y: y, Width: w, Height: h,
		XYNames: [2]string{"x", "y"}, Dims: [2]string{"y", "x"}}
	geom, err := DeriveGridGeom(gc)
	require.NoError(t, err)

	idx := ComputeSourcePixels(gc, geom, false, DefaultUVDelta)
	mapped := 0
	for k := range idx.I {
		if !math.IsNaN(idx.I[k]) {
			mapped++
			assert.False(t, math.IsNaN(idx.J[k]))
			assert.GreaterOrEqual(t, idx.I[k], 0.0)
			assert.LessOrEqual(t, idx.I[k], float64(w-1))
			assert.GreaterOrEqual(t, idx.J[k], 0.0)
			assert.LessOrEqual(t, idx.J[k], float64(h-1))
		}
	}
	// Shearing leaves unmapped corners, but the bulk of the grid is
	// covered.
	assert.Greater(t, mapped, geom.Width()*geom.Height()/2)
}

func TestComputeSourcePixelsInvertY(t *testing.T) {
	ds := regularSwath(4, 4)
	gc, err := GeoCodingFromDataset(ds)
	require.NoError(t, err)
	geom, err := DeriveGridGeom(gc)
	require.NoError(t, err)

	idx := ComputeSourcePixels(gc, geom, true, DefaultUVDelta)
	for j := 0; j < 4; j++ {
		for i := 0; i < 4; i++ {
			assert.InDelta(t, float64(i), idx.I[j*4+i], 1e-9)
			assert.InDelta(t, float64(3-j), idx.J[j*4+i], 1e-9)
		}
	}
}

func TestComputeSourcePixelsOffGrid(t *testing.T) {
	ds := regularSwath(4, 4)
	gc, err := GeoCodingFromDataset(ds)
	require.NoError(t, err)
	geom, err := NewGridGeom(4, 4, 100, 100, 1)
	require.NoError(t, err)

	idx := ComputeSourcePixels(gc, geom, false, DefaultUVDelta)
	for k := range idx.I {
		assert.True(t, math.IsNaN(idx.I[k]))
		assert.True(t, math.IsNaN(idx.J[k]))
	}
}

func TestComputeSourcePixelsNaNCorner(t *testing.T) {
	ds := regularSwath(4, 4)
	ds.Vars["lon"].Data[0] = math.NaN()
	ds.Vars["lat"].Data[0] = math.NaN()
	gc, err := GeoCodingFromDataset(ds)
	require.NoError(t, err)
	geom, err := NewGridGeom(4, 4, 0, 0, 1)
	require.NoError(t, err)

	// Cells touching the NaN corner are skipped, everything else maps.
	idx := ComputeSourcePixels(gc, geom, false, DefaultUVDelta)
	assert.True(t, math.IsNaN(idx.I[0]))
	assert.False(t, math.IsNaN(idx.I[2*4+2]))
}

func TestExtractSourcePixelsRounding(t *testing.T) {
	src := []float64{0, 1, 2, 3, 4, 5, 6, 7, 8} // 3x3
	testfunc := func(si, sj float64, expected float64) {
		t.Helper()
		idx := NewIndexArray(1, 1)
		idx.I[0] = si
		idx.J[0] = sj
		out := ExtractSourcePixels(src, 1, 3, 3, idx, math.NaN())
		assert.Equal(t, expected, out[0])
	}
	cases := []struct {
		si, sj, expected float64
	}{
		{0, 0, 0},
		{1.4, 0, 1},
		{1.6, 0, 2},
		{2, 2, 8},
		{0, 1.4, 3},
		{0, 1.6, 6},
		// Clamped to the source extent.
		{-0.4, 0, 0},
		{2.4, 2, 8},
		{0, 2.4, 6},
	}
	for _, c := range cases {
		testfunc(c.si, c.sj, c.expected)
	}
}

func TestExtractSourcePixelsFillAndLeadDims(t *testing.T) {
	// Two lead planes over a 2x2 source.
	src := []float64{
		1, 2, 3, 4,
		10, 20, 30, 40,
	}
	idx := NewIndexArray(2, 1)
	idx.I[0] = 1
	idx.J[0] = 0
	// idx cell 1 stays unmapped.

	out := ExtractSourcePixels(src, 2, 2, 2, idx, -9999)
	assert.Equal(t, []float64{2, -9999, 20, -9999}, out)
}
