package datacube

import "math"

// ExtractSourcePixels gathers source values through an index array into a
// destination buffer. srcValues has shape (lead..., srcHeight, srcWidth)
// flattened row-major; the returned buffer has shape (lead..., dstHeight,
// dstWidth). Destination cells with an unmapped (NaN) index keep fill.
//
// Fractional source indices are rounded to the nearest integer with a
// floor(x + 0.49999) bias, which avoids round-half-to-even artifacts at
// exact .5 boundaries, then clamped to the source extent.
func ExtractSourcePixels(srcValues []float64, leadSize, srcWidth, srcHeight int,
	idx *IndexArray, fill float64) []float64 {

	dstWidth := idx.Width
	dstHeight := idx.Height

	dstValues := make([]float64, leadSize*dstHeight*dstWidth)
	for k := range dstValues {
		dstValues[k] = fill
	}

	srcIMax := srcWidth - 1
	srcJMax := srcHeight - 1
	srcPlane := srcWidth * srcHeight
	dstPlane := dstWidth * dstHeight

	for dstJ := 0; dstJ < dstHeight; dstJ++ {
		for dstI := 0; dstI < dstWidth; dstI++ {
			srcIF := idx.I[dstJ*dstWidth+dstI]
			srcJF := idx.J[dstJ*dstWidth+dstI]
			if math.IsNaN(srcIF) || math.IsNaN(srcJF) {
				continue
			}
			srcI := ifloor(srcIF + 0.49999)
			srcJ := ifloor(srcJF + 0.49999)
			if srcIF-float64(srcI) > 0.5 {
				srcI = iclamp(srcI+1, 0, srcIMax)
			}
			if srcJF-float64(srcJ) > 0.5 {
				srcJ = iclamp(srcJ+1, 0, srcJMax)
			}
			if srcI < 0 {
				srcI = 0
			} else if srcI > srcIMax {
				srcI = srcIMax
			}
			if srcJ < 0 {
				srcJ = 0
			} else if srcJ > srcJMax {
				srcJ = srcJMax
			}
			srcOff := srcJ*srcWidth + srcI
			dstOff := dstJ*dstWidth + dstI
			for l := 0; l < leadSize; l++ {
				dstValues[l*dstPlane+dstOff] = srcValues[l*srcPlane+srcOff]
			}
		}
	}
	return dstValues
}
