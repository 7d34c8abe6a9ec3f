package datacube

import (
	"math"
	"sort"
)

// A GridGeom describes a regular destination grid: its origin, scalar
// resolution, extent in pixels, and optional tiling. The zero tile sizes
// mean "full extent" (untiled).
type GridGeom struct {
	width, height         int
	xMin, yMin            float64
	xyRes                 float64
	tileWidth, tileHeight int
}

type ErrInvalidOption struct {
	msg string
}

func (err ErrInvalidOption) Error() string {
	return err.msg
}

type GridOption func(g *GridGeom) error

// TileSize sets the grid's tile width and height.
func TileSize(width, height int) GridOption {
	return func(g *GridGeom) error {
		if width <= 0 || height <= 0 {
			return ErrInvalidOption{"tile width and height must be >=1"}
		}
		g.tileWidth, g.tileHeight = width, height
		return nil
	}
}

// NewGridGeom creates a destination grid geometry.
func NewGridGeom(width, height int, xMin, yMin, xyRes float64, options ...GridOption) (GridGeom, error) {
	g := GridGeom{
		width:  width,
		height: height,
		xMin:   xMin,
		yMin:   yMin,
		xyRes:  xyRes,
	}
	if width <= 0 || height <= 0 {
		return g, ErrInvalidOption{"width and height must be >=1"}
	}
	if xyRes <= 0 {
		return g, ErrInvalidOption{"resolution must be >0"}
	}
	for _, o := range options {
		if err := o(&g); err != nil {
			return g, err
		}
	}
	return g, nil
}

func (g GridGeom) Width() int     { return g.width }
func (g GridGeom) Height() int    { return g.height }
func (g GridGeom) XMin() float64  { return g.xMin }
func (g GridGeom) YMin() float64  { return g.yMin }
func (g GridGeom) XMax() float64  { return g.xMin + float64(g.width)*g.xyRes }
func (g GridGeom) YMax() float64  { return g.yMin + float64(g.height)*g.xyRes }
func (g GridGeom) XYRes() float64 { return g.xyRes }

// TileWidth returns the effective tile width, which is the full grid
// width when no tiling is set.
func (g GridGeom) TileWidth() int {
	if g.tileWidth <= 0 || g.tileWidth > g.width {
		return g.width
	}
	return g.tileWidth
}

func (g GridGeom) TileHeight() int {
	if g.tileHeight <= 0 || g.tileHeight > g.height {
		return g.height
	}
	return g.tileHeight
}

// IsTiled reports whether the grid decomposes into more than one tile.
func (g GridGeom) IsTiled() bool {
	return g.NumTilesX() > 1 || g.NumTilesY() > 1
}

func (g GridGeom) NumTilesX() int {
	return (g.width + g.TileWidth() - 1) / g.TileWidth()
}

func (g GridGeom) NumTilesY() int {
	return (g.height + g.TileHeight() - 1) / g.TileHeight()
}

// TileBounds returns the pixel rectangle of tile (tx, ty): its upper-left
// destination pixel and its size. The last tile in each direction may be
// smaller than the configured tile size.
func (g GridGeom) TileBounds(tx, ty int) (x0, y0, w, h int) {
	x0 = tx * g.TileWidth()
	y0 = ty * g.TileHeight()
	w = g.TileWidth()
	if x0+w > g.width {
		w = g.width - x0
	}
	h = g.TileHeight()
	if y0+h > g.height {
		h = g.height - y0
	}
	return
}

// XYBBox returns the grid's bounding box in coordinate units.
func (g GridGeom) XYBBox() (xMin, yMin, xMax, yMax float64) {
	return g.xMin, g.yMin, g.XMax(), g.YMax()
}

// Derive returns a copy of the geometry with the given options applied.
func (g GridGeom) Derive(options ...GridOption) (GridGeom, error) {
	d := g
	for _, o := range options {
		if err := o(&d); err != nil {
			return d, err
		}
	}
	return d, nil
}

// CoordVars returns the 1-D center coordinates of the destination grid
// columns and rows. Row coordinates ascend with the row index unless
// invertY is set, in which case they descend. When lons were normalized
// to [0, 360) during geo-coding, x coordinates above 180 are denormalized
// back into [-180, 180).
func (g GridGeom) CoordVars(isLonNormalized, invertY bool) (xs, ys []float64) {
	xs = make([]float64, g.width)
	for i := 0; i < g.width; i++ {
		x := g.xMin + (float64(i)+0.5)*g.xyRes
		if isLonNormalized && x > 180 {
			x -= 360
		}
		xs[i] = x
	}
	ys = make([]float64, g.height)
	for j := 0; j < g.height; j++ {
		y := g.yMin + (float64(j)+0.5)*g.xyRes
		if invertY {
			ys[g.height-1-j] = y
		} else {
			ys[j] = y
		}
	}
	return xs, ys
}

// DeriveGridGeom computes a destination geometry that tightly bounds the
// source coordinates at a resolution matching the source grid: the
// smaller of the median column and row coordinate steps.
func DeriveGridGeom(gc *GeoCoding, options ...GridOption) (GridGeom, error) {
	xMin, yMin := math.Inf(1), math.Inf(1)
	xMax, yMax := math.Inf(-1), math.Inf(-1)
	for k := range gc.X {
		x, y := gc.X[k], gc.Y[k]
		if math.IsNaN(x) || math.IsNaN(y) {
			continue
		}
		xMin, xMax = math.Min(xMin, x), math.Max(xMax, x)
		yMin, yMax = math.Min(yMin, y), math.Max(yMax, y)
	}
	if xMin > xMax {
		return GridGeom{}, ErrInvalidOption{"source grid has no finite coordinates"}
	}
	xRes := medianStep(gc.X, gc.Width, gc.Height, true)
	yRes := medianStep(gc.Y, gc.Width, gc.Height, false)
	res := math.Min(xRes, yRes)
	if !(res > 0) {
		return GridGeom{}, ErrInvalidOption{"cannot derive a positive resolution from source coordinates"}
	}
	width := int(math.Floor((xMax-xMin)/res)) + 1
	height := int(math.Floor((yMax-yMin)/res)) + 1
	return NewGridGeom(width, height, xMin-0.5*res, yMin-0.5*res, res, options...)
}

// medianStep computes the median absolute coordinate delta between
// neighboring pixels along the x axis (alongX) or the y axis.
func medianStep(values []float64, width, height int, alongX bool) float64 {
	var steps []float64
	if alongX {
		for j := 0; j < height; j++ {
			for i := 0; i < width-1; i++ {
				d := math.Abs(values[j*width+i+1] - values[j*width+i])
				if !math.IsNaN(d) {
					steps = append(steps, d)
				}
			}
		}
	} else {
		for j := 0; j < height-1; j++ {
			for i := 0; i < width; i++ {
				d := math.Abs(values[(j+1)*width+i] - values[j*width+i])
				if !math.IsNaN(d) {
					steps = append(steps, d)
				}
			}
		}
	}
	if len(steps) == 0 {
		return math.NaN()
	}
	sort.Float64s(steps)
	return steps[len(steps)/2]
}
