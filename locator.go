package datacube

import "math"

// DefaultUVDelta is the tolerance band admitting near-boundary
// destination pixel centers as inside a source quadrilateral.
const DefaultUVDelta = 1e-3

// ComputeSourcePixels builds the destination-source index array for the
// whole destination grid in a single block. Destination cells not
// covered by any source quadrilateral remain NaN. When invertY is set,
// the row axis of the result is flipped after computation.
func ComputeSourcePixels(gc *GeoCoding, geom GridGeom, invertY bool, uvDelta float64) *IndexArray {
	dst := NewIndexArray(geom.Width(), geom.Height())
	computeSourcePixels(gc.X, gc.Y, gc.Width, gc.Height, 0, 0,
		dst, geom.XMin(), geom.YMin(), geom.XYRes(), uvDelta)
	if invertY {
		dst.FlipRows()
	}
	return dst
}

// computeSourcePixels is the pixel locator kernel. It iterates the
// source grid's cells (quadrilaterals of 4 neighboring pixel centers) in
// row-major (j, i) order, splits each into two triangles, and writes the
// fractional source coordinates of every matching destination pixel
// center into dst, offset by (srcIMin, srcJMin) to place sub-grid
// results in absolute source index space.
func computeSourcePixels(srcX, srcY []float64, srcWidth, srcHeight int,
	srcIMin, srcJMin int, dst *IndexArray,
	dstX0, dstY0, dstRes, uvDelta float64) {

	dstWidth := dst.Width
	dstHeight := dst.Height

	uMin := -uvDelta
	vMin := -uvDelta
	uvMax := 1.0 + 2*uvDelta

	for srcJ0 := 0; srcJ0 < srcHeight-1; srcJ0++ {
		for srcI0 := 0; srcI0 < srcWidth-1; srcI0++ {
			srcI1 := srcI0 + 1
			srcJ1 := srcJ0 + 1

			p0x := srcX[srcJ0*srcWidth+srcI0]
			p1x := srcX[srcJ0*srcWidth+srcI1]
			p2x := srcX[srcJ1*srcWidth+srcI0]
			p3x := srcX[srcJ1*srcWidth+srcI1]

			p0y := srcY[srcJ0*srcWidth+srcI0]
			p1y := srcY[srcJ0*srcWidth+srcI1]
			p2y := srcY[srcJ1*srcWidth+srcI0]
			p3y := srcY[srcJ1*srcWidth+srcI1]

			dstIMin := ifloor((p0x - dstX0) / dstRes)
			dstIMax := dstIMin
			dstJMin := ifloor((p0y - dstY0) / dstRes)
			dstJMax := dstJMin
			for _, px := range [3]float64{p1x, p2x, p3x} {
				i := ifloor((px - dstX0) / dstRes)
				if i < dstIMin {
					dstIMin = i
				}
				if i > dstIMax {
					dstIMax = i
				}
			}
			for _, py := range [3]float64{p1y, p2y, p3y} {
				j := ifloor((py - dstY0) / dstRes)
				if j < dstJMin {
					dstJMin = j
				}
				if j > dstJMax {
					dstJMax = j
				}
			}

			if dstIMax < 0 || dstJMax < 0 || dstIMin >= dstWidth || dstJMin >= dstHeight {
				continue
			}
			if dstIMin < 0 {
				dstIMin = 0
			}
			if dstIMax >= dstWidth {
				dstIMax = dstWidth - 1
			}
			if dstJMin < 0 {
				dstJMin = 0
			}
			if dstJMax >= dstHeight {
				dstJMax = dstHeight - 1
			}

			// Triangle A: u from p0 right to p1, v from p0 down to p2.
			detA := fdet(p0x, p0y, p1x, p1y, p2x, p2y)
			// Triangle B: u from p3 left to p2, v from p3 up to p1.
			detB := fdet(p3x, p3y, p2x, p2y, p1x, p1y)

			if math.IsNaN(detA) || math.IsNaN(detB) {
				// no plane at this cell
				continue
			}

			for dstJ := dstJMin; dstJ <= dstJMax; dstJ++ {
				dstY := dstY0 + (float64(dstJ)+0.5)*dstRes
				for dstI := dstIMin; dstI <= dstIMax; dstI++ {
					dstX := dstX0 + (float64(dstI)+0.5)*dstRes

					srcI := -1.0
					srcJ := -1.0

					if detA != 0.0 {
						u := fu(dstX, dstY, p0x, p0y, p2x, p2y) / detA
						v := fv(dstX, dstY, p0x, p0y, p1x, p1y) / detA
						if u >= uMin && v >= vMin && u+v <= uvMax {
							srcI = float64(srcI0) + fclamp(u, 0.0, 1.0)
							srcJ = float64(srcJ0) + fclamp(v, 0.0, 1.0)
						}
					}
					if srcI == -1.0 && detB != 0.0 {
						u := fu(dstX, dstY, p3x, p3y, p1x, p1y) / detB
						v := fv(dstX, dstY, p3x, p3y, p2x, p2y) / detB
						if u >= uMin && v >= vMin && u+v <= uvMax {
							srcI = float64(srcI1) - fclamp(u, 0.0, 1.0)
							srcJ = float64(srcJ1) - fclamp(v, 0.0, 1.0)
						}
					}
					if srcI != -1.0 {
						dst.I[dstJ*dstWidth+dstI] = float64(srcIMin) + srcI
						dst.J[dstJ*dstWidth+dstI] = float64(srcJMin) + srcJ
					}
				}
			}
		}
	}
}

func fdet(px0, py0, px1, py1, px2, py2 float64) float64 {
	return (px0-px1)*(py0-py2) - (px0-px2)*(py0-py1)
}

func fu(px, py, px0, py0, px2, py2 float64) float64 {
	return (px0-px)*(py0-py2) - (py0-py)*(px0-px2)
}

func fv(px, py, px0, py0, px1, py1 float64) float64 {
	return (py0-py)*(px0-px1) - (px0-px)*(py0-py1)
}

func fclamp(x, xMin, xMax float64) float64 {
	if x < xMin {
		return xMin
	}
	if x > xMax {
		return xMax
	}
	return x
}

func iclamp(x, xMin, xMax int) int {
	if x < xMin {
		return xMin
	}
	if x > xMax {
		return xMax
	}
	return x
}

func ifloor(x float64) int {
	return int(math.Floor(x))
}
