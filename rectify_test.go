package datacube

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRectifyDatasetIdentity(t *testing.T) {
	ds := regularSwath(4, 4)
	out, err := RectifyDataset(ds)
	require.NoError(t, err)
	require.NotNil(t, out)

	band := out.Vars["band"]
	require.NotNil(t, band)
	assert.Equal(t, []int{4, 4}, band.Shape)
	for k := 0; k < 16; k++ {
		assert.Equal(t, float64(k), band.Data[k])
	}

	lon := out.Vars["lon"]
	lat := out.Vars["lat"]
	require.NotNil(t, lon)
	require.NotNil(t, lat)
	assert.Equal(t, []string{"x"}, lon.Dims)
	assert.Equal(t, []string{"y"}, lat.Dims)
	assert.Equal(t, []float64{0.5, 1.5, 2.5, 3.5}, lon.Data)
	assert.Equal(t, []float64{0.5, 1.5, 2.5, 3.5}, lat.Data)
}

func TestRectifyDatasetInvertY(t *testing.T) {
	ds := regularSwath(4, 4)
	out, err := RectifyDataset(ds, InvertY())
	require.NoError(t, err)
	require.NotNil(t, out)

	band := out.Vars["band"]
	for j := 0; j < 4; j++ {
		for i := 0; i < 4; i++ {
			assert.Equal(t, float64((3-j)*4+i), band.Data[j*4+i])
		}
	}
	assert.Equal(t, []float64{3.5, 2.5, 1.5, 0.5}, out.Vars["lat"].Data)
}

func TestRectifyDatasetTiledMatchesUntiled(t *testing.T) {
	// Slightly irregular swath so the locator does real work.
	w, h := 11, 9
	x := make([]float64, w*h)
	y := make([]float64, w*h)
	data := make([]float64, w*h)
	for j := 0; j < h; j++ {
		for i := 0; i < w; i++ {
			x[j*w+i] = float64(i) + 0.5 + 0.04*float64(j)
			y[j*w+i] = float64(j) + 0.5 + 0.02*float64(i)
			data[j*w+i] = float64(j*w + i)
		}
	}
	ds := NewDataset()
	xv, _ := NewVariable("lon", []string{"y", "x"}, []int{h, w}, x)
	yv, _ := NewVariable("lat", []string{"y", "x"}, []int{h, w}, y)
	bv, _ := NewVariable("band", []string{"y", "x"}, []int{h, w}, data)
	ds.AddVar(xv)
	ds.AddVar(yv)
	ds.AddVar(bv)

	testfunc := func(invertY bool) {
		t.Helper()
		opts := []RectifyOption{}
		if invertY {
			opts = append(opts, InvertY())
		}
		plain, err := RectifyDataset(ds, opts...)
		require.NoError(t, err)
		tiled, err := RectifyDataset(ds, append(opts, WithTileSize(4, 3), Workers(3))...)
		require.NoError(t, err)

		pb := plain.Vars["band"]
		tb := tiled.Vars["band"]
		require.Equal(t, pb.Shape, tb.Shape)
		for k := range pb.Data {
			pv, tv := pb.Data[k], tb.Data[k]
			if math.IsNaN(pv) {
				assert.True(t, math.IsNaN(tv), "cell %d", k)
			} else {
				assert.Equal(t, pv, tv, "cell %d", k)
			}
		}
	}
	testfunc(false)
	testfunc(true)
}

func TestRectifyDatasetNoOverlap(t *testing.T) {
	ds := regularSwath(4, 4)
	geom, err := NewGridGeom(4, 4, 1000, 1000, 1)
	require.NoError(t, err)
	out, err := RectifyDataset(ds, OutputGeom(geom))
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestRectifyDatasetFillValue(t *testing.T) {
	ds := regularSwath(4, 4)
	// Output grid larger than the swath: the margin gets the fill value.
	geom, err := NewGridGeom(8, 8, -2, -2, 1)
	require.NoError(t, err)
	out, err := RectifyDataset(ds, OutputGeom(geom), FillValue(-1), NoSubset())
	require.NoError(t, err)
	require.NotNil(t, out)

	band := out.Vars["band"]
	assert.Equal(t, -1.0, band.Data[0])
	assert.Equal(t, 0.0, band.Data[2*8+2])
	assert.Equal(t, 15.0, band.Data[5*8+5])
}

func TestRectifyDatasetVarSelection(t *testing.T) {
	ds := regularSwath(4, 4)
	scalar, _ := NewVariable("t0", []string{"time"}, []int{1}, []float64{42})
	ds.AddVar(scalar)

	out, err := RectifyDataset(ds)
	require.NoError(t, err)
	_, ok := out.Vars["t0"]
	assert.False(t, ok, "non-grid variables are not selected by default")

	_, err = RectifyDataset(ds, VarNames("t0"))
	assert.Error(t, err, "explicitly requesting a non-grid variable fails")

	_, err = RectifyDataset(ds, VarNames())
	assert.Error(t, err, "empty explicit selection fails")

	out, err = RectifyDataset(ds, VarNames("band"))
	require.NoError(t, err)
	assert.NotNil(t, out.Vars["band"])
}

func TestRectifyDatasetLeadDims(t *testing.T) {
	ds := regularSwath(3, 3)
	data := make([]float64, 2*9)
	for k := range data {
		data[k] = float64(k)
	}
	cube, _ := NewVariable("cube", []string{"time", "y", "x"}, []int{2, 3, 3}, data)
	ds.AddVar(cube)

	out, err := RectifyDataset(ds, VarNames("cube"))
	require.NoError(t, err)
	v := out.Vars["cube"]
	require.NotNil(t, v)
	assert.Equal(t, []int{2, 3, 3}, v.Shape)
	assert.Equal(t, data, v.Data)
}

func TestRectifyDatasetBadOptions(t *testing.T) {
	ds := regularSwath(4, 4)
	_, err := RectifyDataset(ds, UVDelta(-1))
	assert.Error(t, err)
	_, err = RectifyDataset(ds, WithTileSize(0, 2))
	assert.Error(t, err)
}
