package datacube

// SpatialSubset crops a source dataset to the source pixels that can
// contribute to the given xy bounding box, expanded by xyBorder in
// coordinate units and ijBorder in pixels. Variables without the
// geo-coding's spatial dims are carried unchanged. A nil dataset is
// returned when no source pixel falls inside the box.
func SpatialSubset(ds *Dataset, gc *GeoCoding, xyBBox [4]float64, xyBorder float64, ijBorder int) (*Dataset, *GeoCoding, error) {
	bbox := gc.IJBBoxes([][4]float64{xyBBox}, xyBorder, ijBorder)[0]
	if bbox[0] == -1 {
		return nil, nil, nil
	}
	iMin, jMin, iMax, jMax := bbox[0], bbox[1], bbox[2], bbox[3]
	if iMin == 0 && jMin == 0 && iMax == gc.Width-1 && jMax == gc.Height-1 {
		return ds, gc, nil
	}
	subW := iMax - iMin + 1
	subH := jMax - jMin + 1

	out := NewDataset()
	for k, v := range ds.Attrs {
		out.Attrs[k] = v
	}
	for _, v := range ds.Vars {
		if !hasSpatialDims(v, gc) {
			if err := out.AddVar(v); err != nil {
				return nil, nil, err
			}
			continue
		}
		lead := v.LeadSize()
		_, w := v.SpatialShape()
		h := v.Shape[len(v.Shape)-2]
		plane := w * h
		cropped := make([]float64, lead*subW*subH)
		for l := 0; l < lead; l++ {
			copy(cropped[l*subW*subH:(l+1)*subW*subH],
				subGrid(v.Data[l*plane:(l+1)*plane], w, iMin, jMin, iMax, jMax))
		}
		shape := append(append([]int{}, v.Shape[:len(v.Shape)-2]...), subH, subW)
		cv := &Variable{
			Name:  v.Name,
			Dims:  v.Dims,
			Shape: shape,
			Data:  cropped,
			DType: v.DType,
			Attrs: v.Attrs,
		}
		if err := out.AddVar(cv); err != nil {
			return nil, nil, err
		}
	}
	sub := gc.Derive(
		subGrid(gc.X, gc.Width, iMin, jMin, iMax, jMax),
		subGrid(gc.Y, gc.Width, iMin, jMin, iMax, jMax),
		subW, subH)
	return out, sub, nil
}

func hasSpatialDims(v *Variable, gc *GeoCoding) bool {
	if len(v.Dims) < 2 {
		return false
	}
	return v.Dims[len(v.Dims)-2] == gc.Dims[0] && v.Dims[len(v.Dims)-1] == gc.Dims[1] &&
		v.Shape[len(v.Shape)-2] == gc.Height && v.Shape[len(v.Shape)-1] == gc.Width
}
