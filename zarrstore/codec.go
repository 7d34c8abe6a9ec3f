package zarrstore

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// A Codec transforms chunk bytes on their way in and out of the store,
// and exports the JSON configuration a Zarr consumer needs to reverse
// the transformation.
type Codec interface {
	Encode(data []byte) ([]byte, error)
	Decode(data []byte) ([]byte, error)
	Config() map[string]interface{}
}

// CodecFromConfig builds a codec from a Zarr codec configuration object
// (an "id" key plus codec-specific parameters).
func CodecFromConfig(cfg map[string]interface{}) (Codec, error) {
	id, _ := cfg["id"].(string)
	level := -1
	switch l := cfg["level"].(type) {
	case float64: // parsed from JSON
		level = int(l)
	case int:
		level = l
	}
	switch id {
	case "zlib":
		return Zlib{Level: level}, nil
	case "gzip":
		return Gzip{Level: level}, nil
	case "zstd":
		return Zstd{Level: level}, nil
	}
	return nil, fmt.Errorf("unknown codec id %q", id)
}

// Zlib is the numcodecs "zlib" codec.
type Zlib struct {
	Level int
}

func (c Zlib) Encode(data []byte) ([]byte, error) {
	buf := bytes.Buffer{}
	level := c.Level
	if level <= 0 {
		level = zlib.DefaultCompression
	}
	w, err := zlib.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, fmt.Errorf("zlib writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("zlib write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("zlib close: %w", err)
	}
	return buf.Bytes(), nil
}

func (c Zlib) Decode(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("zlib reader: %w", err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("zlib read: %w", err)
	}
	return out, nil
}

func (c Zlib) Config() map[string]interface{} {
	level := c.Level
	if level <= 0 {
		level = 6 // what zlib.DefaultCompression resolves to
	}
	return map[string]interface{}{"id": "zlib", "level": level}
}

// Gzip is the numcodecs "gzip" codec.
type Gzip struct {
	Level int
}

func (c Gzip) Encode(data []byte) ([]byte, error) {
	buf := bytes.Buffer{}
	level := c.Level
	if level <= 0 {
		level = gzip.DefaultCompression
	}
	w, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, fmt.Errorf("gzip writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("gzip write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("gzip close: %w", err)
	}
	return buf.Bytes(), nil
}

func (c Gzip) Decode(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gzip reader: %w", err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("gzip read: %w", err)
	}
	return out, nil
}

func (c Gzip) Config() map[string]interface{} {
	level := c.Level
	if level <= 0 {
		level = 6 // what gzip.DefaultCompression resolves to
	}
	return map[string]interface{}{"id": "gzip", "level": level}
}

// Zstd is the numcodecs "zstd" codec.
type Zstd struct {
	Level int
}

func (c Zstd) Encode(data []byte) ([]byte, error) {
	level := zstd.SpeedDefault
	if c.Level > 0 {
		level = zstd.EncoderLevelFromZstd(c.Level)
	}
	w, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level))
	if err != nil {
		return nil, fmt.Errorf("zstd writer: %w", err)
	}
	out := w.EncodeAll(data, nil)
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("zstd close: %w", err)
	}
	return out, nil
}

func (c Zstd) Decode(data []byte) ([]byte, error) {
	r, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd reader: %w", err)
	}
	defer r.Close()
	out, err := r.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decode: %w", err)
	}
	return out, nil
}

func (c Zstd) Config() map[string]interface{} {
	level := c.Level
	if level <= 0 {
		level = 3
	}
	return map[string]interface{}{"id": "zstd", "level": level}
}
