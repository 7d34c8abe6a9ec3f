package datacube

import (
	"fmt"

	"github.com/geowerk/datacube/zarrstore"
)

// OpenZarr loads a Zarr v2 directory into an in-memory dataset. Arrays
// keep their stored dtype tag so a later write round-trips the storage
// encoding.
func OpenZarr(path string) (*Dataset, error) {
	attrs, arrays, err := zarrstore.ReadDir(path)
	if err != nil {
		return nil, err
	}
	ds := NewDataset()
	ds.Attrs = attrs
	for _, a := range arrays {
		v, err := NewVariable(a.Name, a.Dims, a.Shape, a.Data)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		v.DType = a.DType
		v.Attrs = a.Attrs
		if err := ds.AddVar(v); err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
	}
	return ds, nil
}

// WriteZarr materializes a chunk store as a Zarr v2 directory at path,
// computing and writing chunks in parallel.
func WriteZarr(path string, store *zarrstore.Store, workers int) error {
	return zarrstore.WriteDir(path, store, workers)
}
