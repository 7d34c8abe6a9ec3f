package datacube

import (
	"fmt"
	"math"

	"github.com/geowerk/datacube/zarrstore"
)

type rectifyConfig struct {
	varNames      []string
	gc            *GeoCoding
	geom          *GridGeom
	tileWidth     int
	tileHeight    int
	invertY       bool
	uvDelta       float64
	computeSubset bool
	workers       int
	fill          float64
	xyNames       []string
	compressor    zarrstore.Codec
}

type RectifyOption func(c *rectifyConfig) error

// VarNames restricts rectification to the named variables. Without it,
// all variables matching the source grid are processed.
func VarNames(names ...string) RectifyOption {
	return func(c *rectifyConfig) error {
		c.varNames = names
		return nil
	}
}

// WithGeoCoding supplies a pre-built source geo-coding.
func WithGeoCoding(gc *GeoCoding) RectifyOption {
	return func(c *rectifyConfig) error {
		c.gc = gc
		return nil
	}
}

// XYNames names the x and y coordinate variables of the source dataset.
// Ignored when WithGeoCoding is given.
func XYNames(xName, yName string) RectifyOption {
	return func(c *rectifyConfig) error {
		c.xyNames = []string{xName, yName}
		return nil
	}
}

// OutputGeom supplies an explicit destination geometry. Without it, a
// geometry tightly bounding the source at matching resolution is derived.
func OutputGeom(geom GridGeom) RectifyOption {
	return func(c *rectifyConfig) error {
		c.geom = &geom
		return nil
	}
}

// WithTileSize overrides the destination geometry's tiling, enabling the
// block-parallel path when the resulting tile count exceeds one.
func WithTileSize(width, height int) RectifyOption {
	return func(c *rectifyConfig) error {
		if width <= 0 || height <= 0 {
			return ErrInvalidOption{"tile width and height must be >=1"}
		}
		c.tileWidth, c.tileHeight = width, height
		return nil
	}
}

// InvertY inverts the destination row axis so that y coordinates descend
// with the row index (display convention).
func InvertY() RectifyOption {
	return func(c *rectifyConfig) error {
		c.invertY = true
		return nil
	}
}

// UVDelta sets the point-in-triangle tolerance band. Higher values admit
// more near-boundary pixels at the cost of accuracy.
func UVDelta(d float64) RectifyOption {
	return func(c *rectifyConfig) error {
		if d < 0 {
			return ErrInvalidOption{"uv delta must be >=0"}
		}
		c.uvDelta = d
		return nil
	}
}

// NoSubset disables cropping of the source dataset to the destination
// bounding box before rectification.
func NoSubset() RectifyOption {
	return func(c *rectifyConfig) error {
		c.computeSubset = false
		return nil
	}
}

// Workers bounds the number of goroutines used for the tiled path.
func Workers(n int) RectifyOption {
	return func(c *rectifyConfig) error {
		c.workers = n
		return nil
	}
}

// FillValue sets the destination value of unmapped cells (NaN if unset).
func FillValue(fill float64) RectifyOption {
	return func(c *rectifyConfig) error {
		c.fill = fill
		return nil
	}
}

func newRectifyConfig(options ...RectifyOption) (*rectifyConfig, error) {
	c := &rectifyConfig{
		uvDelta:       DefaultUVDelta,
		computeSubset: true,
		fill:          math.NaN(),
	}
	for _, o := range options {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// RectifyDataset resamples a dataset with per-pixel x,y coordinates onto
// a regular destination grid. Each selected variable keeps its leading
// dimensions and attributes; its trailing two dimensions become the
// destination grid, with 1-D center-coordinate variables attached.
//
// The returned dataset is nil (with a nil error) when the requested
// output does not intersect the source: empty overlap is a normal
// outcome for swath data, not an error.
func RectifyDataset(ds *Dataset, options ...RectifyOption) (*Dataset, error) {
	cfg, err := newRectifyConfig(options...)
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

	var idx *IndexArray
	if geom.IsTiled() {
		idx = NewBlockPlan(gc, geom, cfg.invertY, cfg.uvDelta).Compute(cfg.workers)
	} else {
		idx = ComputeSourcePixels(gc, geom, cfg.invertY, cfg.uvDelta)
	}

	out := NewDataset()
	for k, v := range ds.Attrs {
		out.Attrs[k] = v
	}
	yDim, xDim := gc.Dims[0], gc.Dims[1]
	xs, ys := geom.CoordVars(gc.IsLonNormalized, cfg.invertY)
	xCoord := &Variable{Name: gc.XYNames[0], Dims: []string{xDim}, Shape: []int{geom.Width()}, Data: xs}
	yCoord := &Variable{Name: gc.XYNames[1], Dims: []string{yDim}, Shape: []int{geom.Height()}, Data: ys}

	for name, src := range srcVars {
		h, w := src.SpatialShape()
		dstData := ExtractSourcePixels(src.Data, src.LeadSize(), w, h, idx, cfg.fill)
		shape := append(append([]int{}, src.Shape[:len(src.Shape)-2]...), geom.Height(), geom.Width())
		dst := &Variable{
			Name:  name,
			Dims:  src.Dims,
			Shape: shape,
			Data:  dstData,
			DType: src.DType,
			Attrs: src.Attrs,
		}
		if err := out.AddVar(dst); err != nil {
			return nil, fmt.Errorf("rectify %s: %w", name, err)
		}
	}
	if err := out.AddVar(xCoord); err != nil {
		return nil, err
	}
	if err := out.AddVar(yCoord); err != nil {
		return nil, err
	}
	return out, nil
}
