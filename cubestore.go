package datacube

import (
	"fmt"

	"github.com/geowerk/datacube/zarrstore"
)

// Compressor selects the chunk compressor of a cube store's arrays. The
// default is zlib at level 8; pass nil to store chunks uncompressed.
func Compressor(c zarrstore.Codec) RectifyOption {
	return func(cfg *rectifyConfig) error {
		cfg.compressor = c
		return nil
	}
}

// NewCubeStore builds a read-only chunk store serving the rectified view
// of a dataset without materializing it. Each destination tile becomes
// one chunk, synthesized on first read by locating and gathering only
// the source sub-region that maps into that tile. Chunks are therefore
// computed lazily, in any order, and in parallel.
//
// Like RectifyDataset, a nil store with a nil error means the requested
// output does not intersect the source.
func NewCubeStore(ds *Dataset, options ...RectifyOption) (*zarrstore.Store, error) {
	cfg, err := newRectifyConfig(append([]RectifyOption{Compressor(zarrstore.Zlib{Level: 8})}, options...)...)
	if err != nil {
		return nil, err
	}

	gc := cfg.gc
	if gc == nil {
		if gc, err = GeoCodingFromDataset(ds, cfg.xyNames...); err != nil {
			return nil, err
		}
	}

	var geom GridGeom
	if cfg.geom == nil {
		if geom, err = DeriveGridGeom(gc); err != nil {
			return nil, err
		}
	} else {
		geom = *cfg.geom
		if cfg.computeSubset {
			xMin, yMin, xMax, yMax := geom.XYBBox()
			subDS, subGC, err := SpatialSubset(ds, gc, [4]float64{xMin, yMin, xMax, yMax}, geom.XYRes(), 1)
			if err != nil {
				return nil, err
			}
			if subDS == nil {
				return nil, nil
			}
			ds, gc = subDS, subGC
		}
	}
	if cfg.tileWidth > 0 {
		if geom, err = geom.Derive(TileSize(cfg.tileWidth, cfg.tileHeight)); err != nil {
			return nil, err
		}
	}

	srcVars, err := SelectVariables(ds, gc, cfg.varNames)
	if err != nil {
		return nil, err
	}

	plan := NewBlockPlan(gc, geom, cfg.invertY, cfg.uvDelta)

	store, err := zarrstore.New(ds.Attrs)
	if err != nil {
		return nil, err
	}

	yDim, xDim := gc.Dims[0], gc.Dims[1]
	xs, ys := geom.CoordVars(gc.IsLonNormalized, cfg.invertY)
	xChunk, err := zarrstore.NewChunk([]int{geom.Width()}, xs)
	if err != nil {
		return nil, err
	}
	yChunk, err := zarrstore.NewChunk([]int{geom.Height()}, ys)
	if err != nil {
		return nil, err
	}
	coordSpecs := []zarrstore.ArraySpec{
		{Name: gc.XYNames[0], Dims: []string{xDim}, Data: xChunk, Compressor: cfg.compressor},
		{Name: gc.XYNames[1], Dims: []string{yDim}, Data: yChunk, Compressor: cfg.compressor},
	}
	for _, spec := range coordSpecs {
		if err := store.AddArray(spec); err != nil {
			return nil, err
		}
	}

	for name, v := range srcVars {
		lead := v.Shape[:len(v.Shape)-2]
		shape := append(append([]int{}, lead...), geom.Height(), geom.Width())
		chunks := append(append([]int{}, lead...), geom.TileHeight(), geom.TileWidth())
		dtype := v.DType
		if dtype == "" {
			dtype = "<f8"
		}
		spec := zarrstore.ArraySpec{
			Name:       name,
			Dims:       v.Dims,
			Shape:      shape,
			Chunks:     chunks,
			DType:      dtype,
			FillValue:  cfg.fill,
			Compressor: cfg.compressor,
			Attrs:      v.Attrs,
			GetData:    cubeChunkFunc(plan, v, cfg.fill),

			WantsChunkInfo: true,
		}
		if err := store.AddArray(spec); err != nil {
			return nil, fmt.Errorf("cube store %s: %w", name, err)
		}
	}
	return store, nil
}

// cubeChunkFunc produces the chunk callback of one rectified variable.
// The trailing two entries of the chunk index select the destination
// block; leading dimensions are not chunked.
func cubeChunkFunc(plan *BlockPlan, v *Variable, fill float64) zarrstore.GetDataFunc {
	leadSize := v.LeadSize()
	return func(index []int, req *zarrstore.ChunkRequest) (interface{}, error) {
		n := len(index)
		by, bx := index[n-2], index[n-1]
		data := plan.GatherBlock(bx, by, v.Data, leadSize, fill)
		c, err := zarrstore.NewChunk(req.Chunk.Shape, data)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}
