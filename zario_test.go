package datacube

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteZarrOpenZarrRoundTrip(t *testing.T) {
	ds := regularSwath(8, 6)
	ds.Attrs["title"] = "swath"
	store, err := NewCubeStore(ds, WithTileSize(3, 4))
	require.NoError(t, err)
	defer store.Close()

	path := filepath.Join(t.TempDir(), "cube.zarr")
	require.NoError(t, WriteZarr(path, store, 4))

	got, err := OpenZarr(path)
	require.NoError(t, err)
	assert.Equal(t, "swath", got.Attrs["title"])

	want, err := RectifyDataset(ds)
	require.NoError(t, err)
	for _, name := range []string{"band", "lon", "lat"} {
		wv := want.Vars[name]
		gv := got.Vars[name]
		require.NotNil(t, gv, name)
		assert.Equal(t, wv.Dims, gv.Dims, name)
		assert.Equal(t, wv.Shape, gv.Shape, name)
		require.Len(t, gv.Data, len(wv.Data), name)
		for k := range wv.Data {
			if math.IsNaN(wv.Data[k]) {
				assert.True(t, math.IsNaN(gv.Data[k]))
			} else {
				assert.Equal(t, wv.Data[k], gv.Data[k])
			}
		}
	}
}
