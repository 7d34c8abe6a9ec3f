package zarrstore

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// A Chunk is a native in-memory array block: a flat row-major float64
// buffer with an explicit shape.
type Chunk struct {
	Shape []int
	Data  []float64
}

// NewChunk creates a chunk and checks that the data length matches the
// shape.
func NewChunk(shape []int, data []float64) (*Chunk, error) {
	n := 1
	for _, s := range shape {
		n *= s
	}
	if len(data) != n {
		return nil, fmt.Errorf("chunk data length %d does not match shape %v", len(data), shape)
	}
	return &Chunk{Shape: shape, Data: data}, nil
}

// Size returns the number of elements.
func (c *Chunk) Size() int {
	n := 1
	for _, s := range c.Shape {
		n *= s
	}
	return n
}

func shapeEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ArraySlices returns the half-open slice bounds a chunk occupies in the
// full array. The last chunk along an axis stops at the array edge.
func ArraySlices(shape, chunks, index []int) [][2]int {
	slices := make([][2]int, len(shape))
	for d := range shape {
		start := index[d] * chunks[d]
		stop := start + chunks[d]
		if stop > shape[d] {
			stop = shape[d]
		}
		slices[d] = [2]int{start, stop}
	}
	return slices
}

// ChunkShape returns the true shape of a chunk, accounting for partial
// trailing chunks.
func ChunkShape(shape, chunks, index []int) []int {
	out := make([]int, len(shape))
	for d, s := range ArraySlices(shape, chunks, index) {
		out[d] = s[1] - s[0]
	}
	return out
}

// padChunk pads a possibly-partial chunk up to the declared chunk shape,
// filling the trailing region of each axis with fill. The storage
// protocol demands uniform chunk shape even at array edges.
func padChunk(c *Chunk, chunks []int, fill float64) *Chunk {
	if shapeEqual(c.Shape, chunks) {
		return c
	}
	n := 1
	for _, s := range chunks {
		n *= s
	}
	data := make([]float64, n)
	if fill != 0 {
		for k := range data {
			data[k] = fill
		}
	}
	ndim := len(chunks)
	srcStrides := rowMajorStrides(c.Shape)
	dstStrides := rowMajorStrides(chunks)
	idx := make([]int, ndim)
	for {
		srcOff, dstOff := 0, 0
		for d := 0; d < ndim; d++ {
			srcOff += idx[d] * srcStrides[d]
			dstOff += idx[d] * dstStrides[d]
		}
		data[dstOff] = c.Data[srcOff]
		d := ndim - 1
		for ; d >= 0; d-- {
			idx[d]++
			if idx[d] < c.Shape[d] {
				break
			}
			idx[d] = 0
		}
		if d < 0 {
			break
		}
	}
	return &Chunk{Shape: append([]int{}, chunks...), Data: data}
}

// sliceChunk extracts the chunk at index from a static full-array chunk.
func sliceChunk(full *Chunk, chunks, index []int) *Chunk {
	shape := ChunkShape(full.Shape, chunks, index)
	slices := ArraySlices(full.Shape, chunks, index)
	n := 1
	for _, s := range shape {
		n *= s
	}
	data := make([]float64, n)
	ndim := len(shape)
	srcStrides := rowMajorStrides(full.Shape)
	dstStrides := rowMajorStrides(shape)
	idx := make([]int, ndim)
	for k := 0; k < n; k++ {
		srcOff := 0
		dstOff := 0
		for d := 0; d < ndim; d++ {
			srcOff += (slices[d][0] + idx[d]) * srcStrides[d]
			dstOff += idx[d] * dstStrides[d]
		}
		data[dstOff] = full.Data[srcOff]
		for d := ndim - 1; d >= 0; d-- {
			idx[d]++
			if idx[d] < shape[d] {
				break
			}
			idx[d] = 0
		}
	}
	return &Chunk{Shape: shape, Data: data}
}

func rowMajorStrides(shape []int) []int {
	strides := make([]int, len(shape))
	s := 1
	for d := len(shape) - 1; d >= 0; d-- {
		strides[d] = s
		s *= shape[d]
	}
	return strides
}

func colMajorStrides(shape []int) []int {
	strides := make([]int, len(shape))
	s := 1
	for d := 0; d < len(shape); d++ {
		strides[d] = s
		s *= shape[d]
	}
	return strides
}

// FormatChunkKey derives the store key of a chunk:
// "<array-name>/<i0>.<i1>....".
func FormatChunkKey(name string, index []int) string {
	parts := make([]string, len(index))
	for d, i := range index {
		parts[d] = strconv.Itoa(i)
	}
	return name + "/" + strings.Join(parts, ".")
}

// parseChunkIndex parses a dot-separated chunk coordinate string and
// checks it against the array's chunk grid. ok is false for malformed or
// out-of-range coordinates, which the caller reports as a key miss.
func parseChunkIndex(a *Array, id string) (index []int, ok bool) {
	parts := strings.Split(id, ".")
	if len(parts) != a.NDim() {
		return nil, false
	}
	index = make([]int, len(parts))
	for d, p := range parts {
		i, err := strconv.Atoi(p)
		if err != nil {
			return nil, false
		}
		if i < 0 || i >= a.NumChunks[d] {
			return nil, false
		}
		index[d] = i
	}
	return index, true
}

// ChunkKeys enumerates the chunk keys of an array in row-major chunk
// index order.
func ChunkKeys(name string, numChunks []int) []string {
	total := 1
	for _, n := range numChunks {
		total *= n
	}
	keys := make([]string, 0, total)
	index := make([]int, len(numChunks))
	for k := 0; k < total; k++ {
		keys = append(keys, FormatChunkKey(name, index))
		for d := len(index) - 1; d >= 0; d-- {
			index[d]++
			if index[d] < numChunks[d] {
				break
			}
			index[d] = 0
		}
	}
	return keys
}

type dtype struct {
	order byte // '<', '>' or '|'
	kind  byte // 'i', 'u' or 'f'
	size  int  // bytes per element
}

func parseDType(s string) (dtype, error) {
	if len(s) < 3 {
		return dtype{}, fmt.Errorf("invalid dtype %q", s)
	}
	dt := dtype{order: s[0], kind: s[1]}
	if dt.order != '<' && dt.order != '>' && dt.order != '|' {
		return dtype{}, fmt.Errorf("invalid dtype byte order in %q", s)
	}
	size, err := strconv.Atoi(s[2:])
	if err != nil {
		return dtype{}, fmt.Errorf("invalid dtype %q", s)
	}
	dt.size = size
	switch dt.kind {
	case 'f':
		if size != 4 && size != 8 {
			return dtype{}, fmt.Errorf("unsupported float dtype %q", s)
		}
	case 'i', 'u':
		if size != 1 && size != 2 && size != 4 && size != 8 {
			return dtype{}, fmt.Errorf("unsupported integer dtype %q", s)
		}
	default:
		return dtype{}, fmt.Errorf("unsupported dtype kind in %q", s)
	}
	return dt, nil
}

func (dt dtype) byteOrder() binary.ByteOrder {
	if dt.order == '>' {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// encodeValues serializes float64 values into the raw element encoding
// of the dtype, in the given iteration order over shape ("C" row-major
// or "F" column-major).
func encodeValues(c *Chunk, dt dtype, order string) []byte {
	out := make([]byte, c.Size()*dt.size)
	bo := dt.byteOrder()
	put := func(off int, v float64) {
		b := out[off : off+dt.size]
		switch {
		case dt.kind == 'f' && dt.size == 8:
			bo.PutUint64(b, math.Float64bits(v))
		case dt.kind == 'f' && dt.size == 4:
			bo.PutUint32(b, math.Float32bits(float32(v)))
		default:
			u := uint64(int64(v))
			if dt.kind == 'u' {
				u = uint64(v)
			}
			switch dt.size {
			case 1:
				b[0] = byte(u)
			case 2:
				bo.PutUint16(b, uint16(u))
			case 4:
				bo.PutUint32(b, uint32(u))
			case 8:
				bo.PutUint64(b, u)
			}
		}
	}
	if order == "F" {
		strides := rowMajorStrides(c.Shape)
		fstrides := colMajorStrides(c.Shape)
		idx := make([]int, len(c.Shape))
		for k := 0; k < c.Size(); k++ {
			src, dst := 0, 0
			for d := range idx {
				src += idx[d] * strides[d]
				dst += idx[d] * fstrides[d]
			}
			put(dst*dt.size, c.Data[src])
			for d := len(idx) - 1; d >= 0; d-- {
				idx[d]++
				if idx[d] < c.Shape[d] {
					break
				}
				idx[d] = 0
			}
		}
	} else {
		for k, v := range c.Data {
			put(k*dt.size, v)
		}
	}
	return out
}

// decodeValues is the inverse of encodeValues for "C" order buffers.
func decodeValues(raw []byte, dt dtype) ([]float64, error) {
	if len(raw)%dt.size != 0 {
		return nil, fmt.Errorf("raw chunk length %d is not a multiple of element size %d", len(raw), dt.size)
	}
	n := len(raw) / dt.size
	bo := dt.byteOrder()
	out := make([]float64, n)
	for k := 0; k < n; k++ {
		b := raw[k*dt.size : (k+1)*dt.size]
		switch {
		case dt.kind == 'f' && dt.size == 8:
			out[k] = math.Float64frombits(bo.Uint64(b))
		case dt.kind == 'f' && dt.size == 4:
			out[k] = float64(math.Float32frombits(bo.Uint32(b)))
		case dt.kind == 'u':
			var u uint64
			switch dt.size {
			case 1:
				u = uint64(b[0])
			case 2:
				u = uint64(bo.Uint16(b))
			case 4:
				u = uint64(bo.Uint32(b))
			case 8:
				u = bo.Uint64(b)
			}
			out[k] = float64(u)
		default:
			var i int64
			switch dt.size {
			case 1:
				i = int64(int8(b[0]))
			case 2:
				i = int64(int16(bo.Uint16(b)))
			case 4:
				i = int64(int32(bo.Uint32(b)))
			case 8:
				i = int64(bo.Uint64(b))
			}
			out[k] = float64(i)
		}
	}
	return out, nil
}
