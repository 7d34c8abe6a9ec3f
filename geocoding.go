package datacube

import (
	"fmt"
	"math"
)

// A GeoCoding supplies the per-pixel x,y coordinates of a source grid.
// X and Y are flat row-major (Height x Width) buffers of equal shape.
type GeoCoding struct {
	X, Y            []float64
	Width, Height   int
	XYNames         [2]string // coordinate variable names (x, y)
	Dims            [2]string // spatial dimension names (y, x)
	IsGeoCRS        bool
	IsLonNormalized bool
}

var geoXNames = map[string]bool{"lon": true, "long": true, "longitude": true}
var geoYNames = map[string]bool{"lat": true, "latitude": true}

// GeoCodingFromDataset extracts a geo-coding from a dataset's 2-D
// coordinate variables. With no explicit names, the conventional
// longitude/latitude pairs are probed first, then x/y.
func GeoCodingFromDataset(ds *Dataset, xyNames ...string) (*GeoCoding, error) {
	var xName, yName string
	if len(xyNames) == 2 {
		xName, yName = xyNames[0], xyNames[1]
	} else if len(xyNames) != 0 {
		return nil, fmt.Errorf("xyNames must name exactly the x and y coordinate variables")
	} else {
		for _, pair := range [][2]string{{"lon", "lat"}, {"longitude", "latitude"}, {"x", "y"}} {
			if _, ok := ds.Vars[pair[0]]; !ok {
				continue
			}
			if _, ok := ds.Vars[pair[1]]; !ok {
				continue
			}
			xName, yName = pair[0], pair[1]
			break
		}
		if xName == "" {
			return nil, fmt.Errorf("cannot determine x,y coordinate variables")
		}
	}
	xVar, ok := ds.Vars[xName]
	if !ok {
		return nil, fmt.Errorf("coordinate variable %s not found", xName)
	}
	yVar, ok := ds.Vars[yName]
	if !ok {
		return nil, fmt.Errorf("coordinate variable %s not found", yName)
	}
	if len(xVar.Dims) != 2 || len(yVar.Dims) != 2 {
		return nil, fmt.Errorf("coordinate variables %s and %s must be 2-dimensional", xName, yName)
	}
	if xVar.Shape[0] != yVar.Shape[0] || xVar.Shape[1] != yVar.Shape[1] ||
		xVar.Dims[0] != yVar.Dims[0] || xVar.Dims[1] != yVar.Dims[1] {
		return nil, fmt.Errorf("coordinate variables %s and %s must have same shape and dimensions", xName, yName)
	}

	gc := &GeoCoding{
		X:        xVar.Data,
		Y:        yVar.Data,
		Width:    xVar.Shape[1],
		Height:   xVar.Shape[0],
		XYNames:  [2]string{xName, yName},
		Dims:     [2]string{xVar.Dims[0], xVar.Dims[1]},
		IsGeoCRS: geoXNames[xName] && geoYNames[yName],
	}
	if gc.IsGeoCRS && crossesAntimeridian(gc.X) {
		normalized := make([]float64, len(gc.X))
		for i, x := range gc.X {
			if x < 0 {
				x += 360
			}
			normalized[i] = x
		}
		gc.X = normalized
		gc.IsLonNormalized = true
	}
	return gc, nil
}

// crossesAntimeridian reports whether a longitude grid wraps at +/-180,
// detected by a jump of more than 180 degrees between horizontal
// neighbors.
func crossesAntimeridian(lons []float64) bool {
	for i := 1; i < len(lons); i++ {
		d := lons[i] - lons[i-1]
		if d > 180 || d < -180 {
			return true
		}
	}
	return false
}

// Derive returns a geo-coding with the same axis naming over replacement
// coordinate buffers.
func (gc *GeoCoding) Derive(x, y []float64, width, height int) *GeoCoding {
	d := *gc
	d.X, d.Y = x, y
	d.Width, d.Height = width, height
	return &d
}

// IJBBoxes computes, for every xy bounding box [xMin, yMin, xMax, yMax],
// the minimal source index box [iMin, jMin, iMax, jMax] containing all
// source pixels whose coordinates fall inside the box expanded by
// xyBorder. The index box is then expanded by ijBorder and clamped to the
// grid. Boxes with no containing pixel are returned as the sentinel
// [-1, -1, -1, -1].
func (gc *GeoCoding) IJBBoxes(xyBBoxes [][4]float64, xyBorder float64, ijBorder int) [][4]int {
	ijBBoxes := make([][4]int, len(xyBBoxes))
	for k, bbox := range xyBBoxes {
		xMin := bbox[0] - xyBorder
		yMin := bbox[1] - xyBorder
		xMax := bbox[2] + xyBorder
		yMax := bbox[3] + xyBorder
		iMin, jMin := math.MaxInt32, math.MaxInt32
		iMax, jMax := -1, -1
		for j := 0; j < gc.Height; j++ {
			row := j * gc.Width
			for i := 0; i < gc.Width; i++ {
				x := gc.X[row+i]
				y := gc.Y[row+i]
				if x >= xMin && x <= xMax && y >= yMin && y <= yMax {
					if i < iMin {
						iMin = i
					}
					if i > iMax {
						iMax = i
					}
					if j < jMin {
						jMin = j
					}
					if j > jMax {
						jMax = j
					}
				}
			}
		}
		if iMax < 0 {
			ijBBoxes[k] = [4]int{-1, -1, -1, -1}
			continue
		}
		iMin -= ijBorder
		jMin -= ijBorder
		iMax += ijBorder
		jMax += ijBorder
		if iMin < 0 {
			iMin = 0
		}
		if jMin < 0 {
			jMin = 0
		}
		if iMax > gc.Width-1 {
			iMax = gc.Width - 1
		}
		if jMax > gc.Height-1 {
			jMax = gc.Height - 1
		}
		ijBBoxes[k] = [4]int{iMin, jMin, iMax, jMax}
	}
	return ijBBoxes
}

// subGrid copies the rectangle [i0, i1] x [j0, j1] (inclusive) of a flat
// (height x width) buffer into a new contiguous buffer.
func subGrid(values []float64, width int, i0, j0, i1, j1 int) []float64 {
	sw := i1 - i0 + 1
	sh := j1 - j0 + 1
	out := make([]float64, sw*sh)
	for j := 0; j < sh; j++ {
		copy(out[j*sw:(j+1)*sw], values[(j0+j)*width+i0:(j0+j)*width+i0+sw])
	}
	return out
}
