package datacube

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGridGeomValidation(t *testing.T) {
	testfunc := func(w, h int, res float64, wantErr bool) {
		t.Helper()
		_, err := NewGridGeom(w, h, 0, 0, res)
		if wantErr {
			assert.Error(t, err)
			assert.IsType(t, ErrInvalidOption{}, err)
		} else {
			assert.NoError(t, err)
		}
	}
	cases := []struct {
		w, h    int
		res     float64
		wantErr bool
	}{
		{10, 10, 1, false},
		{0, 10, 1, true},
		{10, 0, 1, true},
		{10, 10, 0, true},
		{10, 10, -1, true},
		{1, 1, 0.25, false},
	}
	for _, c := range cases {
		testfunc(c.w, c.h, c.res, c.wantErr)
	}

	_, err := NewGridGeom(10, 10, 0, 0, 1, TileSize(0, 4))
	assert.Error(t, err)
}

func TestGridGeomTiling(t *testing.T) {
	g, err := NewGridGeom(10, 7, 0, 0, 1, TileSize(4, 3))
	require.NoError(t, err)
	assert.True(t, g.IsTiled())
	assert.Equal(t, 3, g.NumTilesX())
	assert.Equal(t, 3, g.NumTilesY())

	x0, y0, w, h := g.TileBounds(0, 0)
	assert.Equal(t, []int{0, 0, 4, 3}, []int{x0, y0, w, h})
	x0, y0, w, h = g.TileBounds(2, 2)
	assert.Equal(t, []int{8, 6, 2, 1}, []int{x0, y0, w, h})

	// Untiled grids expose one full-extent tile.
	u, err := NewGridGeom(10, 7, 0, 0, 1)
	require.NoError(t, err)
	assert.False(t, u.IsTiled())
	assert.Equal(t, 10, u.TileWidth())
	assert.Equal(t, 7, u.TileHeight())
	assert.Equal(t, 1, u.NumTilesX()*u.NumTilesY())

	// Oversized tiles clamp to the extent.
	o, err := NewGridGeom(10, 7, 0, 0, 1, TileSize(100, 100))
	require.NoError(t, err)
	assert.Equal(t, 10, o.TileWidth())
	assert.Equal(t, 7, o.TileHeight())
}

func TestGridGeomCoordVars(t *testing.T) {
	g, err := NewGridGeom(4, 3, 10, 20, 0.5)
	require.NoError(t, err)

	xs, ys := g.CoordVars(false, false)
	assert.Equal(t, []float64{10.25, 10.75, 11.25, 11.75}, xs)
	assert.Equal(t, []float64{20.25, 20.75, 21.25}, ys)

	_, ys = g.CoordVars(false, true)
	assert.Equal(t, []float64{21.25, 20.75, 20.25}, ys)
}

func TestGridGeomCoordVarsDenormalizedLons(t *testing.T) {
	g, err := NewGridGeom(4, 1, 178, 0, 1)
	require.NoError(t, err)
	xs, _ := g.CoordVars(true, false)
	assert.Equal(t, []float64{178.5, 179.5, -179.5, -178.5}, xs)
}

func TestDeriveGridGeom(t *testing.T) {
	ds := regularSwath(6, 4)
	gc, err := GeoCodingFromDataset(ds)
	require.NoError(t, err)
	geom, err := DeriveGridGeom(gc)
	require.NoError(t, err)
	assert.Equal(t, 6, geom.Width())
	assert.Equal(t, 4, geom.Height())
	assert.Equal(t, 1.0, geom.XYRes())

	tiled, err := geom.Derive(TileSize(4, 2))
	require.NoError(t, err)
	assert.True(t, tiled.IsTiled())
	// Derive does not touch the original.
	assert.False(t, geom.IsTiled())
}
