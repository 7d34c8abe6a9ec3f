package datacube

import (
	"fmt"
)

// A Variable is a named n-dimensional array defined over named dimensions.
// Values are held as a flat row-major float64 buffer; DType records the
// storage data type used when the variable is written to or served from a
// chunk store ("<f8" if empty).
type Variable struct {
	Name  string
	Dims  []string
	Shape []int
	Data  []float64
	DType string
	Attrs map[string]interface{}
}

// NewVariable creates a variable and checks that data length matches shape.
func NewVariable(name string, dims []string, shape []int, data []float64) (*Variable, error) {
	if len(dims) != len(shape) {
		return nil, fmt.Errorf("variable %s: dims and shape must have same length", name)
	}
	n := 1
	for _, s := range shape {
		if s <= 0 {
			return nil, fmt.Errorf("variable %s: shape entries must be >=1", name)
		}
		n *= s
	}
	if len(data) != n {
		return nil, fmt.Errorf("variable %s: data length %d does not match shape %v", name, len(data), shape)
	}
	return &Variable{Name: name, Dims: dims, Shape: shape, Data: data}, nil
}

// Size returns the total number of elements.
func (v *Variable) Size() int {
	n := 1
	for _, s := range v.Shape {
		n *= s
	}
	return n
}

// LeadSize returns the product of all dimensions preceding the trailing
// two spatial dimensions. Variables with fewer than 2 dims have no
// spatial plane and return 0.
func (v *Variable) LeadSize() int {
	if len(v.Shape) < 2 {
		return 0
	}
	n := 1
	for _, s := range v.Shape[:len(v.Shape)-2] {
		n *= s
	}
	return n
}

// SpatialShape returns the trailing (height, width) dimensions, or (0, 0)
// for variables of fewer than 2 dims.
func (v *Variable) SpatialShape() (height, width int) {
	if len(v.Shape) < 2 {
		return 0, 0
	}
	return v.Shape[len(v.Shape)-2], v.Shape[len(v.Shape)-1]
}

// A Dataset is a set of variables sharing named dimensions, plus
// free-form attributes.
type Dataset struct {
	Vars  map[string]*Variable
	Attrs map[string]interface{}
}

// NewDataset creates an empty dataset.
func NewDataset() *Dataset {
	return &Dataset{Vars: map[string]*Variable{}, Attrs: map[string]interface{}{}}
}

// AddVar registers a variable, checking dimension size agreement against
// variables already present.
func (ds *Dataset) AddVar(v *Variable) error {
	if _, ok := ds.Vars[v.Name]; ok {
		return fmt.Errorf("variable %s is already defined", v.Name)
	}
	for i, dim := range v.Dims {
		for _, other := range ds.Vars {
			for k, odim := range other.Dims {
				if odim == dim && other.Shape[k] != v.Shape[i] {
					return fmt.Errorf("variable %s defines dimension %s with size %d, but %s uses size %d",
						v.Name, dim, v.Shape[i], other.Name, other.Shape[k])
				}
			}
		}
	}
	ds.Vars[v.Name] = v
	return nil
}

// SelectVariables returns the variables to be rectified. With an empty
// name list, all variables whose trailing two dimensions match the
// geo-coding's grid are selected (the coordinate variables themselves are
// excluded). Explicitly named variables must match the grid or an error
// is returned.
func SelectVariables(ds *Dataset, gc *GeoCoding, names []string) (map[string]*Variable, error) {
	if names == nil {
		selected := map[string]*Variable{}
		for name, v := range ds.Vars {
			if name == gc.XYNames[0] || name == gc.XYNames[1] {
				continue
			}
			if isGridVar(v, gc) {
				selected[name] = v
			}
		}
		return selected, nil
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("empty variable name list")
	}
	selected := map[string]*Variable{}
	for _, name := range names {
		v, ok := ds.Vars[name]
		if !ok {
			return nil, fmt.Errorf("variable %s not found", name)
		}
		if !isGridVar(v, gc) {
			return nil, fmt.Errorf("cannot rectify variable %s: its shape or dimensions do not match those of %s and %s",
				name, gc.XYNames[0], gc.XYNames[1])
		}
		selected[name] = v
	}
	return selected, nil
}

func isGridVar(v *Variable, gc *GeoCoding) bool {
	if len(v.Dims) < 2 {
		return false
	}
	h, w := v.SpatialShape()
	if h != gc.Height || w != gc.Width {
		return false
	}
	return v.Dims[len(v.Dims)-2] == gc.Dims[0] && v.Dims[len(v.Dims)-1] == gc.Dims[1]
}
