package datacube

import (
	"runtime"

	"github.com/sourcegraph/conc/pool"
)

// A BlockPlan decomposes a rectification into independent per-tile
// computations. Each block is a pure function of immutable inputs (the
// source coordinates, the geometry scalars and the precomputed source
// bounding boxes), so blocks may be computed in any order or in
// parallel without synchronization.
type BlockPlan struct {
	gc        *GeoCoding
	geom      GridGeom
	invertY   bool
	uvDelta   float64
	srcBBoxes [][4]int // per tile, row-major (ty, tx); sentinel -1 = no source
	numTilesX int
	numTilesY int
}

// NewBlockPlan precomputes, for every destination tile, the bounding box
// of source rows and columns that can map into it: the tile's xy bounding
// box expanded by one destination resolution, located in the source grid
// and expanded by a 1-pixel border to tolerate quadrilaterals straddling
// the tile boundary.
func NewBlockPlan(gc *GeoCoding, geom GridGeom, invertY bool, uvDelta float64) *BlockPlan {
	p := &BlockPlan{
		gc:        gc,
		geom:      geom,
		invertY:   invertY,
		uvDelta:   uvDelta,
		numTilesX: geom.NumTilesX(),
		numTilesY: geom.NumTilesY(),
	}
	xyBBoxes := make([][4]float64, p.numTilesX*p.numTilesY)
	for ty := 0; ty < p.numTilesY; ty++ {
		for tx := 0; tx < p.numTilesX; tx++ {
			x0, y0, w, h := p.tileBounds(tx, ty)
			xyBBoxes[ty*p.numTilesX+tx] = [4]float64{
				geom.XMin() + float64(x0)*geom.XYRes(),
				geom.YMin() + float64(y0)*geom.XYRes(),
				geom.XMin() + float64(x0+w)*geom.XYRes(),
				geom.YMin() + float64(y0+h)*geom.XYRes(),
			}
		}
	}
	p.srcBBoxes = gc.IJBBoxes(xyBBoxes, geom.XYRes(), 1)
	return p
}

func (p *BlockPlan) NumBlocksX() int { return p.numTilesX }
func (p *BlockPlan) NumBlocksY() int { return p.numTilesY }

// BlockBounds returns the destination pixel rectangle of block (bx, by)
// in the output grid.
func (p *BlockPlan) BlockBounds(bx, by int) (x0, y0, w, h int) {
	return p.geom.TileBounds(bx, by)
}

// tileBounds returns the pixel rectangle of block (bx, by) in
// non-inverted destination row space. With y inversion, output block rows
// mirror around the grid center, so the block's source-facing rows are
// counted from the opposite edge.
func (p *BlockPlan) tileBounds(bx, by int) (x0, y0, w, h int) {
	x0, y0, w, h = p.geom.TileBounds(bx, by)
	if p.invertY {
		y0 = p.geom.Height() - y0 - h
	}
	return
}

// ComputeBlock computes the index array of one destination block. Blocks
// whose source bounding box is empty are returned entirely unmapped
// without running the locator. The result carries absolute source pixel
// indices.
func (p *BlockPlan) ComputeBlock(bx, by int) *IndexArray {
	x0, y0, w, h := p.tileBounds(bx, by)
	block := NewIndexArray(w, h)

	bbox := p.srcBBoxes[by*p.numTilesX+bx]
	iMin, jMin, iMax, jMax := bbox[0], bbox[1], bbox[2], bbox[3]
	if iMin == -1 {
		return block
	}

	subX := subGrid(p.gc.X, p.gc.Width, iMin, jMin, iMax, jMax)
	subY := subGrid(p.gc.Y, p.gc.Width, iMin, jMin, iMax, jMax)
	subW := iMax - iMin + 1
	subH := jMax - jMin + 1

	computeSourcePixels(subX, subY, subW, subH, iMin, jMin, block,
		p.geom.XMin()+float64(x0)*p.geom.XYRes(),
		p.geom.YMin()+float64(y0)*p.geom.XYRes(),
		p.geom.XYRes(), p.uvDelta)
	if p.invertY {
		block.FlipRows()
	}
	return block
}

// Compute evaluates all blocks, fanning them out over at most workers
// goroutines, and stitches the results into the full index array.
// workers <= 0 selects GOMAXPROCS.
func (p *BlockPlan) Compute(workers int) *IndexArray {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	full := NewIndexArray(p.geom.Width(), p.geom.Height())
	pl := pool.New().WithMaxGoroutines(workers)
	for by := 0; by < p.numTilesY; by++ {
		for bx := 0; bx < p.numTilesX; bx++ {
			bx, by := bx, by
			pl.Go(func() {
				x0, y0, _, _ := p.geom.TileBounds(bx, by)
				full.copyBlock(p.ComputeBlock(bx, by), x0, y0)
			})
		}
	}
	pl.Wait()
	return full
}

// SourceBBox returns the precomputed source index box of block (bx, by),
// or ok=false when no source cell intersects the block.
func (p *BlockPlan) SourceBBox(bx, by int) (iMin, jMin, iMax, jMax int, ok bool) {
	bbox := p.srcBBoxes[by*p.numTilesX+bx]
	if bbox[0] == -1 {
		return 0, 0, 0, 0, false
	}
	return bbox[0], bbox[1], bbox[2], bbox[3], true
}

// GatherBlock gathers one variable's values for one destination block,
// reading only the source sub-region implicated by the block's index
// array. srcValues has shape (lead..., srcHeight, srcWidth); the result
// has the block's spatial shape with the same leading dims.
func (p *BlockPlan) GatherBlock(bx, by int, srcValues []float64, leadSize int, fill float64) []float64 {
	block := p.ComputeBlock(bx, by)
	iMin, jMin, iMax, jMax, ok := p.SourceBBox(bx, by)
	if !ok {
		out := make([]float64, leadSize*block.Width*block.Height)
		for k := range out {
			out[k] = fill
		}
		return out
	}
	subW := iMax - iMin + 1
	subH := jMax - jMin + 1
	sub := make([]float64, leadSize*subW*subH)
	srcPlane := p.gc.Width * p.gc.Height
	for l := 0; l < leadSize; l++ {
		plane := srcValues[l*srcPlane : (l+1)*srcPlane]
		copy(sub[l*subW*subH:(l+1)*subW*subH], subGrid(plane, p.gc.Width, iMin, jMin, iMax, jMax))
	}
	// Shift the block's absolute source indices into the sub-region frame.
	rel := NewIndexArray(block.Width, block.Height)
	for k := range block.I {
		rel.I[k] = block.I[k] - float64(iMin)
		rel.J[k] = block.J[k] - float64(jMin)
	}
	return ExtractSourcePixels(sub, leadSize, subW, subH, rel, fill)
}
