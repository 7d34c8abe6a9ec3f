package datacube

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geowerk/datacube/zarrstore"
)

func chunkFloats(t *testing.T, store *zarrstore.Store, key string) []float64 {
	t.Helper()
	raw, err := store.Get(key)
	require.NoError(t, err)
	require.Zero(t, len(raw)%8)
	out := make([]float64, len(raw)/8)
	for k := range out {
		out[k] = math.Float64frombits(binary.LittleEndian.Uint64(raw[k*8:]))
	}
	return out
}

func TestNewCubeStoreMatchesRectify(t *testing.T) {
	ds := regularSwath(8, 6)
	opts := []RectifyOption{WithTileSize(3, 4), Compressor(nil)}

	want, err := RectifyDataset(ds, opts...)
	require.NoError(t, err)
	store, err := NewCubeStore(ds, opts...)
	require.NoError(t, err)
	require.NotNil(t, store)
	defer store.Close()

	band, ok := store.Array("band")
	require.True(t, ok)
	assert.Equal(t, []int{6, 8}, band.Shape)
	assert.Equal(t, []int{4, 3}, band.Chunks)

	wantBand := want.Vars["band"]
	for by := 0; by < 2; by++ {
		for bx := 0; bx < 3; bx++ {
			got := chunkFloats(t, store, zarrstore.FormatChunkKey("band", []int{by, bx}))
			require.Len(t, got, 12)
			for j := 0; j < 4; j++ {
				for i := 0; i < 3; i++ {
					y, x := by*4+j, bx*3+i
					wantV := math.NaN()
					if y < 6 && x < 8 {
						wantV = wantBand.Data[y*8+x]
					}
					gotV := got[j*3+i]
					if math.IsNaN(wantV) {
						assert.True(t, math.IsNaN(gotV), "chunk %d.%d cell %d,%d", by, bx, j, i)
					} else {
						assert.Equal(t, wantV, gotV, "chunk %d.%d cell %d,%d", by, bx, j, i)
					}
				}
			}
		}
	}

	// Coordinate arrays are static single chunks.
	xs := chunkFloats(t, store, "lon/0")
	assert.Equal(t, want.Vars["lon"].Data, xs)
	ys := chunkFloats(t, store, "lat/0")
	assert.Equal(t, want.Vars["lat"].Data, ys)
}

func TestNewCubeStoreMetadata(t *testing.T) {
	ds := regularSwath(8, 6)
	ds.Attrs["title"] = "swath"
	store, err := NewCubeStore(ds, WithTileSize(4, 4))
	require.NoError(t, err)
	defer store.Close()

	raw, err := store.Get("band/.zarray")
	require.NoError(t, err)
	var meta map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &meta))
	assert.Equal(t, "<f8", meta["dtype"])
	assert.Equal(t, "NaN", meta["fill_value"])
	compressor, ok := meta["compressor"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "zlib", compressor["id"])

	raw, err = store.Get(".zattrs")
	require.NoError(t, err)
	var attrs map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &attrs))
	assert.Equal(t, "swath", attrs["title"])
}

func TestNewCubeStoreNoOverlap(t *testing.T) {
	ds := regularSwath(4, 4)
	geom, err := NewGridGeom(4, 4, 500, 500, 1)
	require.NoError(t, err)
	store, err := NewCubeStore(ds, OutputGeom(geom))
	require.NoError(t, err)
	assert.Nil(t, store)
}
