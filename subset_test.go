package datacube

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpatialSubset(t *testing.T) {
	ds := regularSwath(8, 6)
	scalar, _ := NewVariable("t0", []string{"time"}, []int{1}, []float64{42})
	ds.AddVar(scalar)
	gc, err := GeoCodingFromDataset(ds)
	require.NoError(t, err)

	sub, subGC, err := SpatialSubset(ds, gc, [4]float64{2, 2, 5, 4}, 0, 1)
	require.NoError(t, err)
	require.NotNil(t, sub)

	// Pixel centers inside [2,5]x[2,4] are i 2..4, j 2..3, plus the
	// 1-pixel border.
	assert.Equal(t, 5, subGC.Width)
	assert.Equal(t, 4, subGC.Height)
	assert.Equal(t, 1.5, subGC.X[0])
	assert.Equal(t, 1.5, subGC.Y[0])

	band := sub.Vars["band"]
	require.NotNil(t, band)
	assert.Equal(t, []int{4, 5}, band.Shape)
	// Top-left cropped value is source (i=1, j=1).
	assert.Equal(t, 9.0, band.Data[0])

	// Non-spatial variables ride along uncropped.
	assert.Equal(t, []float64{42}, sub.Vars["t0"].Data)
}

func TestSpatialSubsetFullExtent(t *testing.T) {
	ds := regularSwath(4, 4)
	gc, err := GeoCodingFromDataset(ds)
	require.NoError(t, err)

	sub, subGC, err := SpatialSubset(ds, gc, [4]float64{-10, -10, 10, 10}, 0, 1)
	require.NoError(t, err)
	assert.Same(t, ds, sub)
	assert.Same(t, gc, subGC)
}

func TestSpatialSubsetNoOverlap(t *testing.T) {
	ds := regularSwath(4, 4)
	gc, err := GeoCodingFromDataset(ds)
	require.NoError(t, err)

	sub, subGC, err := SpatialSubset(ds, gc, [4]float64{50, 50, 60, 60}, 0, 1)
	require.NoError(t, err)
	assert.Nil(t, sub)
	assert.Nil(t, subGC)
}
