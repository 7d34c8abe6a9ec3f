package datacube

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlockPlanMatchesSingleBlock(t *testing.T) {
	ds := regularSwath(8, 6)
	gc, err := GeoCodingFromDataset(ds)
	require.NoError(t, err)
	geom, err := DeriveGridGeom(gc, TileSize(3, 4))
	require.NoError(t, err)

	full := ComputeSourcePixels(gc, geom, false, DefaultUVDelta)
	plan := NewBlockPlan(gc, geom, false, DefaultUVDelta)
	stitched := plan.Compute(2)

	require.Equal(t, full.Width, stitched.Width)
	require.Equal(t, full.Height, stitched.Height)
	for k := range full.I {
		if math.IsNaN(full.I[k]) {
			assert.True(t, math.IsNaN(stitched.I[k]), "cell %d", k)
		} else {
			assert.Equal(t, full.I[k], stitched.I[k], "cell %d", k)
			assert.Equal(t, full.J[k], stitched.J[k], "cell %d", k)
		}
	}
}

func TestBlockPlanEmptySourceBlock(t *testing.T) {
	ds := regularSwath(4, 4)
	gc, err := GeoCodingFromDataset(ds)
	require.NoError(t, err)
	// A grid twice the swath size: the far tiles see no source pixels.
	geom, err := NewGridGeom(16, 16, 0, 0, 1, TileSize(4, 4))
	require.NoError(t, err)

	plan := NewBlockPlan(gc, geom, false, DefaultUVDelta)
	_, _, _, _, ok := plan.SourceBBox(3, 3)
	assert.False(t, ok)

	block := plan.ComputeBlock(3, 3)
	for k := range block.I {
		assert.True(t, math.IsNaN(block.I[k]))
	}

	gathered := plan.GatherBlock(3, 3, ds.Vars["band"].Data, 1, -7)
	assert.Len(t, gathered, 16)
	for _, v := range gathered {
		assert.Equal(t, -7.0, v)
	}
}

func TestBlockPlanGatherBlock(t *testing.T) {
	ds := regularSwath(8, 6)
	gc, err := GeoCodingFromDataset(ds)
	require.NoError(t, err)
	geom, err := DeriveGridGeom(gc, TileSize(3, 4))
	require.NoError(t, err)

	src := ds.Vars["band"].Data
	fullIdx := ComputeSourcePixels(gc, geom, false, DefaultUVDelta)
	fullOut := ExtractSourcePixels(src, 1, 8, 6, fullIdx, math.NaN())

	plan := NewBlockPlan(gc, geom, false, DefaultUVDelta)
	for by := 0; by < plan.NumBlocksY(); by++ {
		for bx := 0; bx < plan.NumBlocksX(); bx++ {
			x0, y0, w, h := plan.BlockBounds(bx, by)
			got := plan.GatherBlock(bx, by, src, 1, math.NaN())
			require.Len(t, got, w*h)
			for j := 0; j < h; j++ {
				for i := 0; i < w; i++ {
					want := fullOut[(y0+j)*geom.Width()+x0+i]
					if math.IsNaN(want) {
						assert.True(t, math.IsNaN(got[j*w+i]))
					} else {
						assert.Equal(t, want, got[j*w+i], "block %d,%d cell %d,%d", bx, by, i, j)
					}
				}
			}
		}
	}
}
