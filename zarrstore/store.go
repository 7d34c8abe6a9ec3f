package zarrstore

import (
	"errors"
	"fmt"
	"strings"
)

// ErrKeyNotFound signals a store lookup miss: an unknown key, a
// malformed chunk coordinate, or a chunk index out of range. It is
// distinct from validation errors, which surface at AddArray time.
var ErrKeyNotFound = errors.New("key not found")

// ErrReadOnly is returned by every write attempt; the store has no write
// path.
var ErrReadOnly = errors.New("store is read-only")

// Reserved group-level keys.
const (
	MetadataKey = ".zmetadata"
	GroupKey    = ".zgroup"
	AttrsKey    = ".zattrs"
	ArrayKey    = ".zarray"
)

// A Store maintains finalized arrays in a flat, top-level hierarchy and
// serves them through the minimal key-value protocol a Zarr v2 consumer
// needs. All reads are side-effect free and safe to interleave or run in
// parallel; the control-plane operations (AddArray, RemoveArray, Rename,
// Close) mutate the array registry and must be serialized by the caller.
type Store struct {
	attrs    map[string]interface{}
	arrays   map[string]*Array
	arrayOrd []string
	dimSizes map[string]int
}

// New creates a store holding the given top-level attributes and arrays.
func New(attrs map[string]interface{}, specs ...ArraySpec) (*Store, error) {
	s := &Store{
		attrs:    attrs,
		arrays:   map[string]*Array{},
		dimSizes: map[string]int{},
	}
	for _, spec := range specs {
		if err := s.AddArray(spec); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// AddArray finalizes the spec and registers the resulting array. It
// fails if the name is taken or a dimension name is reused with a
// conflicting size.
func (s *Store) AddArray(spec ArraySpec) error {
	a, err := spec.Finalize()
	if err != nil {
		return err
	}
	if _, ok := s.arrays[a.Name]; ok {
		return fmt.Errorf("array %s is already defined", a.Name)
	}
	for d, dim := range a.Dims {
		if size, ok := s.dimSizes[dim]; ok && size != a.Shape[d] {
			return fmt.Errorf("array %s defines dimension %s with size %d, but existing size is %d",
				a.Name, dim, a.Shape[d], size)
		}
	}
	for d, dim := range a.Dims {
		s.dimSizes[dim] = a.Shape[d]
	}
	s.arrays[a.Name] = a
	s.arrayOrd = append(s.arrayOrd, a.Name)
	return nil
}

// RemoveArray deletes an array and garbage-collects dimension names no
// longer referenced by any remaining array.
func (s *Store) RemoveArray(name string) error {
	a, ok := s.arrays[name]
	if !ok {
		return fmt.Errorf("%s: can only remove arrays", name)
	}
	delete(s.arrays, name)
	for i, n := range s.arrayOrd {
		if n == name {
			s.arrayOrd = append(s.arrayOrd[:i], s.arrayOrd[i+1:]...)
			break
		}
	}
	for _, dim := range a.Dims {
		used := false
		for _, other := range s.arrays {
			for _, odim := range other.Dims {
				if odim == dim {
					used = true
					break
				}
			}
		}
		if !used {
			delete(s.dimSizes, dim)
		}
	}
	return nil
}

// Rename relabels an array in place.
func (s *Store) Rename(oldName, newName string) error {
	a, ok := s.arrays[oldName]
	if !ok {
		return fmt.Errorf("can only rename arrays, but %s is not an array", oldName)
	}
	if _, ok := s.arrays[newName]; ok {
		return fmt.Errorf("cannot rename array %s into %s because it already exists", oldName, newName)
	}
	if strings.Contains(newName, "/") {
		return fmt.Errorf("cannot rename array %s into %s", oldName, newName)
	}
	renamed := *a
	renamed.Name = newName
	s.arrays[newName] = &renamed
	delete(s.arrays, oldName)
	for i, n := range s.arrayOrd {
		if n == oldName {
			s.arrayOrd[i] = newName
			break
		}
	}
	return nil
}

// Close invokes every array's on-close handler, if present.
func (s *Store) Close() {
	for _, name := range s.arrayOrd {
		a := s.arrays[name]
		if a.OnClose != nil {
			a.OnClose(a)
		}
	}
}

// Array returns the finalized form of a registered array.
func (s *Store) Array(name string) (*Array, bool) {
	a, ok := s.arrays[name]
	return a, ok
}

// ArrayNames returns the registered array names in insertion order.
func (s *Store) ArrayNames() []string {
	return append([]string{}, s.arrayOrd...)
}

// Keys enumerates every key in the store, including all chunk keys.
func (s *Store) Keys() []string {
	keys := []string{MetadataKey, GroupKey, AttrsKey}
	for _, name := range s.arrayOrd {
		a := s.arrays[name]
		keys = append(keys, name, name+"/"+ArrayKey, name+"/"+AttrsKey)
		keys = append(keys, ChunkKeys(name, a.NumChunks)...)
	}
	return keys
}

// ListDir lists the entries of a store path: the root, or one array.
func (s *Store) ListDir(path string) ([]string, error) {
	if path == "" {
		entries := []string{MetadataKey, GroupKey, AttrsKey}
		entries = append(entries, s.arrayOrd...)
		return entries, nil
	}
	if !strings.Contains(path, "/") {
		a, ok := s.arrays[path]
		if !ok {
			return nil, fmt.Errorf("%s: %w", path, ErrKeyNotFound)
		}
		entries := []string{ArrayKey, AttrsKey}
		for _, key := range ChunkKeys(path, a.NumChunks) {
			entries = append(entries, strings.TrimPrefix(key, path+"/"))
		}
		return entries, nil
	}
	return nil, fmt.Errorf("%s is not a directory", path)
}

// Has reports whether a key resolves without computing any chunk data.
func (s *Store) Has(key string) bool {
	switch key {
	case MetadataKey, GroupKey, AttrsKey:
		return true
	}
	if _, ok := s.arrays[key]; ok {
		return true
	}
	name, suffix, ok := splitArrayKey(key)
	if !ok {
		return false
	}
	a, ok := s.arrays[name]
	if !ok {
		return false
	}
	if suffix == ArrayKey || suffix == AttrsKey {
		return true
	}
	_, ok = parseChunkIndex(a, suffix)
	return ok
}

// Get resolves a key to its encoded byte content. Unknown keys, chunk
// indexes out of range and malformed chunk coordinates return
// ErrKeyNotFound. Chunk keys of arrays declaring the "ndarray" chunk
// encoding cannot be served as bytes; read those with GetChunk.
func (s *Store) Get(key string) ([]byte, error) {
	switch key {
	case MetadataKey:
		return s.consolidatedMetadata()
	case GroupKey:
		return jsonBytes(groupMetadata())
	case AttrsKey:
		return jsonBytes(s.attrsDocument())
	}
	if _, ok := s.arrays[key]; ok {
		return []byte{}, nil
	}
	name, suffix, ok := splitArrayKey(key)
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrKeyNotFound)
	}
	a, ok := s.arrays[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrKeyNotFound)
	}
	switch suffix {
	case ArrayKey:
		return jsonBytes(arrayMetadata(a))
	case AttrsKey:
		return jsonBytes(arrayAttrsDocument(a))
	}
	index, ok := parseChunkIndex(a, suffix)
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrKeyNotFound)
	}
	value, err := s.resolveChunk(a, index)
	if err != nil {
		return nil, err
	}
	raw, ok := value.([]byte)
	if !ok {
		return nil, fmt.Errorf("%s: data must be encoded as bytes, but was %T",
			FormatChunkKey(a.Name, index), value)
	}
	return raw, nil
}

// GetChunk resolves one chunk of an array declared with the "ndarray"
// chunk encoding to its native, unencoded form.
func (s *Store) GetChunk(name string, index []int) (*Chunk, error) {
	a, ok := s.arrays[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrKeyNotFound)
	}
	for d, i := range index {
		if d >= a.NDim() || i < 0 || i >= a.NumChunks[d] {
			return nil, fmt.Errorf("%s: %w", FormatChunkKey(name, index), ErrKeyNotFound)
		}
	}
	if len(index) != a.NDim() {
		return nil, fmt.Errorf("%s: %w", FormatChunkKey(name, index), ErrKeyNotFound)
	}
	value, err := s.resolveChunk(a, index)
	if err != nil {
		return nil, err
	}
	c, ok := value.(*Chunk)
	if !ok {
		return nil, fmt.Errorf("%s: data must be encoded as ndarray, but was %T",
			FormatChunkKey(a.Name, index), value)
	}
	return c, nil
}

// Put always fails: arrays in this store are generative.
func (s *Store) Put(key string, value []byte) error {
	return fmt.Errorf("%s: %w", key, ErrReadOnly)
}

// Delete always fails; use RemoveArray to drop whole arrays.
func (s *Store) Delete(key string) error {
	return fmt.Errorf("%s: %w", key, ErrReadOnly)
}

// resolveChunk produces a chunk's payload: either a []byte (for the
// "bytes" chunk encoding, filtered and compressed as declared) or a
// *Chunk (for the "ndarray" encoding), padded to the declared chunk
// shape in both cases.
func (s *Store) resolveChunk(a *Array, index []int) (interface{}, error) {
	var value interface{}
	if a.Data != nil {
		value = sliceChunk(a.Data, a.Chunks, index)
	} else {
		req := &ChunkRequest{}
		if a.WantsChunkInfo {
			req.Chunk = &ChunkInfo{
				Index:  index,
				Shape:  ChunkShape(a.Shape, a.Chunks, index),
				Slices: ArraySlices(a.Shape, a.Chunks, index),
			}
		}
		if a.WantsArrayInfo {
			req.Array = a
		}
		var err error
		value, err = a.GetData(index, req)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", FormatChunkKey(a.Name, index), err)
		}
	}

	if c, ok := value.(*Chunk); ok {
		if !shapeEqual(c.Shape, a.Chunks) {
			c = padChunk(c, a.Chunks, fillFloat(a.FillValue))
		}
		if a.ChunkEncoding == EncodingBytes {
			return encodeChunk(c, a)
		}
		return c, nil
	}
	return value, nil
}

// encodeChunk serializes a chunk to bytes per the array's dtype and
// order, then applies the declared filters in order and the compressor.
func encodeChunk(c *Chunk, a *Array) ([]byte, error) {
	dt, err := parseDType(a.DType)
	if err != nil {
		return nil, err
	}
	data := encodeValues(c, dt, a.Order)
	for _, f := range a.Filters {
		if data, err = f.Encode(data); err != nil {
			return nil, fmt.Errorf("%s: filter %s: %w", a.Name, f.Config()["id"], err)
		}
	}
	if a.Compressor != nil {
		if data, err = a.Compressor.Encode(data); err != nil {
			return nil, fmt.Errorf("%s: compressor %s: %w", a.Name, a.Compressor.Config()["id"], err)
		}
	}
	return data, nil
}

// fillFloat maps any fill value Finalize accepts onto the float64 used
// for chunk padding; nil and string fills pad with 0.
func fillFloat(v interface{}) float64 {
	switch f := v.(type) {
	case float64:
		return f
	case float32:
		return float64(f)
	case int:
		return float64(f)
	case int32:
		return float64(f)
	case int64:
		return float64(f)
	}
	return 0
}

// splitArrayKey splits "<array>/<suffix>" at the last separator.
func splitArrayKey(key string) (name, suffix string, ok bool) {
	i := strings.LastIndex(key, "/")
	if i < 0 {
		return "", "", false
	}
	return key[:i], key[i+1:], true
}
