package zarrstore

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/google/uuid"
	"github.com/tbonfort/gobs"
)

// WriteDir materializes every key of a store as a Zarr v2 directory at
// path. Chunks are resolved and written in parallel over at most workers
// goroutines (GOMAXPROCS if <= 0). The directory is assembled under a
// scratch name next to the target and renamed into place once complete,
// so a failed write never leaves a partial store at path.
func WriteDir(path string, s *Store, workers int) error {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+"-"+uuid.NewString())
	if err := os.MkdirAll(tmp, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", tmp, err)
	}
	defer os.RemoveAll(tmp)

	// Bare array names resolve to empty payloads and clash with the
	// array's key directory on disk; only the nested keys become files.
	var keys []string
	for _, key := range s.Keys() {
		if !strings.Contains(key, "/") {
			if _, ok := s.Array(key); ok {
				continue
			}
		}
		keys = append(keys, key)
	}
	for _, key := range keys {
		if dir := filepath.Dir(filepath.Join(tmp, key)); dir != tmp {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("mkdir %s: %w", dir, err)
			}
		}
	}

	pool := gobs.NewPool(workers)
	batch := pool.Batch()
	for _, key := range keys {
		key := key
		batch.Submit(func() error {
			data, err := s.Get(key)
			if err != nil {
				return fmt.Errorf("resolve %s: %w", key, err)
			}
			if err := os.WriteFile(filepath.Join(tmp, key), data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", key, err)
			}
			return nil
		})
	}
	if err := batch.Wait(); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

// A DirArray is one array read back from a Zarr directory, decoded to
// float64 values in row-major order.
type DirArray struct {
	Name      string
	Dims      []string
	DType     string
	Shape     []int
	Data      []float64
	FillValue float64
	Attrs     map[string]interface{}
}

// ReadDir loads a Zarr v2 directory: the group attributes plus every
// array, fully decoded. Missing chunk files resolve to the array's fill
// value. Only C-ordered arrays are supported.
func ReadDir(path string) (map[string]interface{}, []DirArray, error) {
	attrs, err := readJSONFile(filepath.Join(path, AttrsKey))
	if err != nil {
		return nil, nil, err
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", path, err)
	}
	var arrays []DirArray
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		a, err := readDirArray(filepath.Join(path, e.Name()), e.Name())
		if err != nil {
			return nil, nil, err
		}
		if a != nil {
			arrays = append(arrays, *a)
		}
	}
	return attrs, arrays, nil
}

type arrayMeta struct {
	ZarrFormat int                      `json:"zarr_format"`
	DType      string                   `json:"dtype"`
	Shape      []int                    `json:"shape"`
	Chunks     []int                    `json:"chunks"`
	FillValue  interface{}              `json:"fill_value"`
	Compressor map[string]interface{}   `json:"compressor"`
	Filters    []map[string]interface{} `json:"filters"`
	Order      string                   `json:"order"`
}

func readDirArray(dir, name string) (*DirArray, error) {
	raw, err := os.ReadFile(filepath.Join(dir, ArrayKey))
	if os.IsNotExist(err) {
		return nil, nil // not an array directory
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Join(dir, ArrayKey), err)
	}
	var meta arrayMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("%s: parse %s: %w", name, ArrayKey, err)
	}
	if meta.ZarrFormat != zarrFormat {
		return nil, fmt.Errorf("%s: unsupported zarr format %d", name, meta.ZarrFormat)
	}
	if meta.Order != "" && meta.Order != "C" {
		return nil, fmt.Errorf("%s: unsupported order %q", name, meta.Order)
	}
	dt, err := parseDType(meta.DType)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	var compressor Codec
	if meta.Compressor != nil {
		if compressor, err = CodecFromConfig(meta.Compressor); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
	}
	var filters []Codec
	for _, cfg := range meta.Filters {
		f, err := CodecFromConfig(cfg)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		filters = append(filters, f)
	}
	fill := decodeFillValue(meta.FillValue)

	attrs, err := readJSONFile(filepath.Join(dir, AttrsKey))
	if err != nil {
		return nil, err
	}
	var dims []string
	if rawDims, ok := attrs[dimensionsAttr].([]interface{}); ok {
		for _, d := range rawDims {
			s, ok := d.(string)
			if !ok {
				return nil, fmt.Errorf("%s: malformed %s", name, dimensionsAttr)
			}
			dims = append(dims, s)
		}
		delete(attrs, dimensionsAttr)
	}
	if len(dims) != len(meta.Shape) {
		return nil, fmt.Errorf("%s: %s does not match shape %v", name, dimensionsAttr, meta.Shape)
	}

	size := 1
	for _, s := range meta.Shape {
		size *= s
	}
	data := make([]float64, size)
	for i := range data {
		data[i] = fill
	}

	numChunks := make([]int, len(meta.Shape))
	for i := range meta.Shape {
		numChunks[i] = (meta.Shape[i] + meta.Chunks[i] - 1) / meta.Chunks[i]
	}
	for _, key := range ChunkKeys(name, numChunks) {
		id := strings.TrimPrefix(key, name+"/")
		raw, err := os.ReadFile(filepath.Join(dir, id))
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", key, err)
		}
		for i := len(filters) - 1; i >= 0; i-- {
			if raw, err = filters[i].Decode(raw); err != nil {
				return nil, fmt.Errorf("%s: filter %s: %w", key, filters[i].Config()["id"], err)
			}
		}
		if compressor != nil {
			if raw, err = compressor.Decode(raw); err != nil {
				return nil, fmt.Errorf("%s: decompress: %w", key, err)
			}
		}
		values, err := decodeValues(raw, dt)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		if len(values) != chunkSize(meta.Chunks) {
			return nil, fmt.Errorf("%s: chunk holds %d values, expected %d", key, len(values), chunkSize(meta.Chunks))
		}
		index := parseChunkID(id)
		placeChunk(data, meta.Shape, values, meta.Chunks, index)
	}

	return &DirArray{
		Name:      name,
		Dims:      dims,
		DType:     meta.DType,
		Shape:     meta.Shape,
		Data:      data,
		FillValue: fill,
		Attrs:     attrs,
	}, nil
}

// placeChunk copies the valid region of a padded chunk into the full
// array at the chunk's position.
func placeChunk(full []float64, shape []int, values []float64, chunks, index []int) {
	slices := ArraySlices(shape, chunks, index)
	valid := ChunkShape(shape, chunks, index)
	fullStrides := rowMajorStrides(shape)
	chunkStrides := rowMajorStrides(chunks)

	rowLen := valid[len(valid)-1]
	// Walk every row of the valid region with an odometer over the
	// leading dimensions.
	pos := make([]int, len(shape)-1)
	for {
		fullOff := slices[len(shape)-1][0]
		chunkOff := 0
		for d := 0; d < len(shape)-1; d++ {
			fullOff += (slices[d][0] + pos[d]) * fullStrides[d]
			chunkOff += pos[d] * chunkStrides[d]
		}
		copy(full[fullOff:fullOff+rowLen], values[chunkOff:chunkOff+rowLen])

		d := len(pos) - 1
		for ; d >= 0; d-- {
			pos[d]++
			if pos[d] < valid[d] {
				break
			}
			pos[d] = 0
		}
		if d < 0 {
			break
		}
	}
}

func chunkSize(chunks []int) int {
	n := 1
	for _, c := range chunks {
		n *= c
	}
	return n
}

// parseChunkID parses a "i0.i1..." chunk file name; the caller has
// already enumerated valid keys.
func parseChunkID(id string) []int {
	parts := strings.Split(id, ".")
	index := make([]int, len(parts))
	for d, p := range parts {
		n := 0
		for _, c := range p {
			n = n*10 + int(c-'0')
		}
		index[d] = n
	}
	return index
}

// decodeFillValue maps a JSON fill value onto a float64, honoring the
// Zarr v2 string spellings for non-finite floats.
func decodeFillValue(v interface{}) float64 {
	switch f := v.(type) {
	case float64:
		return f
	case string:
		switch f {
		case "NaN":
			return math.NaN()
		case "Infinity":
			return math.Inf(1)
		case "-Infinity":
			return math.Inf(-1)
		}
	}
	return math.NaN()
}

func readJSONFile(path string) (map[string]interface{}, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return map[string]interface{}{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	doc := map[string]interface{}{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return doc, nil
}
