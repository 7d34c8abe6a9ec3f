// Package zarrstore implements a read-only, chunk-synthesizing array
// store following the Zarr v2 storage layout. Arrays are either backed
// by a static in-memory block or computed on demand, chunk by chunk, by
// a caller-supplied function.
package zarrstore

import (
	"fmt"
)

// ChunkInfo describes the chunk a data callback is asked to produce:
// its index, its true (possibly partial) shape, and the half-open slice
// bounds it occupies in the full array.
type ChunkInfo struct {
	Index  []int
	Shape  []int
	Slices [][2]int
}

// A ChunkRequest carries the optional context a data callback declared
// interest in via ArraySpec.WantsChunkInfo / WantsArrayInfo. Fields not
// asked for are nil.
type ChunkRequest struct {
	Chunk *ChunkInfo
	Array *Array
}

// GetDataFunc computes one chunk of an array. The return value must be a
// *Chunk, or a []byte holding chunk data already encoded per the array's
// declared chunk encoding.
type GetDataFunc func(index []int, req *ChunkRequest) (interface{}, error)

// OnCloseFunc is called with the array's finalized form when the store
// is closed, for cleanup of external resources held by data callbacks.
type OnCloseFunc func(a *Array)

// Chunk encodings.
const (
	EncodingBytes   = "bytes"
	EncodingNDArray = "ndarray"
)

// An ArraySpec is the raw, loosely-filled description of a store array.
// It is validated and defaulted exactly once, by Finalize; downstream
// code only ever sees the finalized Array.
type ArraySpec struct {
	Name  string
	Dims  []string
	DType string
	Shape []int
	// Chunks defaults to Shape. The last chunk along an axis may be
	// partial; served chunks are always padded to the declared shape.
	Chunks []int

	// Exactly one of Data and GetData must be set.
	Data    *Chunk
	GetData GetDataFunc

	// Context opt-ins for GetData, recorded once at finalization.
	WantsChunkInfo bool
	WantsArrayInfo bool

	// FillValue must be nil, an int, a float64 or a string.
	FillValue  interface{}
	Compressor Codec
	Filters    []Codec
	Order      string // "C" (default) or "F"
	Attrs      map[string]interface{}
	OnClose    OnCloseFunc

	ChunkEncoding string // EncodingBytes (default) or EncodingNDArray
}

// An Array is a finalized, immutable array registration: the validated
// spec with all defaults applied plus derived per-dimension chunk counts.
type Array struct {
	Name      string
	Dims      []string
	DType     string
	Shape     []int
	Chunks    []int
	NumChunks []int

	Data    *Chunk
	GetData GetDataFunc

	WantsChunkInfo bool
	WantsArrayInfo bool

	FillValue     interface{}
	Compressor    Codec
	Filters       []Codec
	Order         string
	Attrs         map[string]interface{}
	OnClose       OnCloseFunc
	ChunkEncoding string
}

// Finalize validates the spec and returns its immutable, fully-populated
// form. All configuration errors surface here, never later on the read
// path.
func (s ArraySpec) Finalize() (*Array, error) {
	name := s.Name
	if name == "" {
		return nil, fmt.Errorf("missing array name")
	}
	if s.Data == nil && s.GetData == nil {
		return nil, fmt.Errorf("array %s: either data or a data function must be defined", name)
	}
	if s.Data != nil && s.GetData != nil {
		return nil, fmt.Errorf("array %s: data and a data function cannot be defined together", name)
	}
	if len(s.Dims) == 0 {
		return nil, fmt.Errorf("array %s: missing dims", name)
	}
	ndim := len(s.Dims)

	dtype := s.DType
	shape := s.Shape
	chunks := s.Chunks
	if s.Data != nil {
		if dtype == "" {
			dtype = "<f8"
		}
		shape = s.Data.Shape
		chunks = s.Data.Shape
	}
	if dtype == "" {
		return nil, fmt.Errorf("array %s: missing dtype", name)
	}
	if _, err := parseDType(dtype); err != nil {
		return nil, fmt.Errorf("array %s: %w", name, err)
	}
	if shape == nil {
		return nil, fmt.Errorf("array %s: missing shape", name)
	}
	if len(shape) != ndim {
		return nil, fmt.Errorf("array %s: dims and shape must have same length", name)
	}
	if chunks == nil {
		chunks = shape
	}
	if len(chunks) != ndim {
		return nil, fmt.Errorf("array %s: dims and chunks must have same length", name)
	}
	for i := range chunks {
		if chunks[i] <= 0 || shape[i] <= 0 {
			return nil, fmt.Errorf("array %s: shape and chunks entries must be >=1", name)
		}
	}

	numChunks := make([]int, ndim)
	for i := range shape {
		numChunks[i] = (shape[i] + chunks[i] - 1) / chunks[i]
	}

	for i, f := range s.Filters {
		if f == nil {
			return nil, fmt.Errorf("array %s: filter %d must be a codec", name, i)
		}
	}
	var filters []Codec
	if len(s.Filters) > 0 {
		filters = append(filters, s.Filters...)
	}

	switch s.FillValue.(type) {
	case nil, int, int32, int64, float32, float64, string:
	default:
		return nil, fmt.Errorf("array %s: fill value type must be nil, int, float or string, was %T",
			name, s.FillValue)
	}

	order := s.Order
	if order == "" {
		order = "C"
	}
	if order != "C" && order != "F" {
		return nil, fmt.Errorf("array %s: order must be one of C, F, was %q", name, order)
	}

	chunkEncoding := s.ChunkEncoding
	if chunkEncoding == "" {
		chunkEncoding = EncodingBytes
	}
	if chunkEncoding != EncodingBytes && chunkEncoding != EncodingNDArray {
		return nil, fmt.Errorf("array %s: chunk encoding must be one of %s, %s, was %q",
			name, EncodingBytes, EncodingNDArray, chunkEncoding)
	}

	return &Array{
		Name:           name,
		Dims:           append([]string{}, s.Dims...),
		DType:          dtype,
		Shape:          append([]int{}, shape...),
		Chunks:         append([]int{}, chunks...),
		NumChunks:      numChunks,
		Data:           s.Data,
		GetData:        s.GetData,
		WantsChunkInfo: s.WantsChunkInfo,
		WantsArrayInfo: s.WantsArrayInfo,
		FillValue:      s.FillValue,
		Compressor:     s.Compressor,
		Filters:        filters,
		Order:          order,
		Attrs:          s.Attrs,
		OnClose:        s.OnClose,
		ChunkEncoding:  chunkEncoding,
	}, nil
}

// NDim returns the array's dimensionality.
func (a *Array) NDim() int { return len(a.Dims) }
