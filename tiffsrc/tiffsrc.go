// Package tiffsrc exposes the pixel tiles of a tiled TIFF as chunk
// store arrays. Tiles are served byte for byte: an uncompressed TIFF
// becomes raw chunks, a deflate TIFF becomes zlib chunks, with no
// decode or re-encode in between.
package tiffsrc

import (
	"fmt"
	"io"

	"github.com/google/tiff"
	_ "github.com/google/tiff/bigtiff"

	"github.com/geowerk/datacube/zarrstore"
)

// TIFF compression schemes with a Zarr-compatible byte stream.
const (
	compressionNone    = 1
	compressionDeflate = 8
)

// Sample formats (tag 339).
const (
	sampleFormatUInt   = 1
	sampleFormatInt    = 2
	sampleFormatIEEEFP = 3
)

type ifd struct {
	SubfileType     uint32   `tiff:"field,tag=254"`
	ImageWidth      uint64   `tiff:"field,tag=256"`
	ImageLength     uint64   `tiff:"field,tag=257"`
	BitsPerSample   []uint16 `tiff:"field,tag=258"`
	Compression     uint16   `tiff:"field,tag=259"`
	SamplesPerPixel uint16   `tiff:"field,tag=277"`
	TileWidth       uint16   `tiff:"field,tag=322"`
	TileLength      uint16   `tiff:"field,tag=323"`
	TileOffsets     []uint64 `tiff:"field,tag=324"`
	TileByteCounts  []uint64 `tiff:"field,tag=325"`
	SampleFormat    []uint16 `tiff:"field,tag=339"`
}

// A Source is the full-resolution image of a tiled TIFF, ready to be
// registered as a store array.
type Source struct {
	r     tiff.ReadAtReadSeeker
	ifd   *ifd
	dtype string

	width, height  int
	tileW, tileH   int
	tilesX, tilesY int
}

// Open parses a TIFF stream and locates its full-resolution image. The
// image must be tiled, single-band, and stored uncompressed or with
// deflate compression.
func Open(r tiff.ReadAtReadSeeker) (*Source, error) {
	tif, err := tiff.Parse(r, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("parse tiff: %w", err)
	}
	var full *ifd
	for _, tifd := range tif.IFDs() {
		i := &ifd{}
		if err := tiff.UnmarshalIFD(tifd, i); err != nil {
			return nil, fmt.Errorf("unmarshal ifd: %w", err)
		}
		if i.SubfileType == 0 {
			full = i
			break
		}
	}
	if full == nil {
		return nil, fmt.Errorf("no full-resolution image")
	}
	if full.TileWidth == 0 || full.TileLength == 0 {
		return nil, fmt.Errorf("not a tiled tiff")
	}
	if full.SamplesPerPixel > 1 {
		return nil, fmt.Errorf("unsupported samples per pixel %d", full.SamplesPerPixel)
	}
	if full.Compression != compressionNone && full.Compression != compressionDeflate {
		return nil, fmt.Errorf("unsupported compression %d", full.Compression)
	}
	bigEndian := tif.Order() == "MM"
	dtype, err := dtypeOf(full, bigEndian)
	if err != nil {
		return nil, err
	}

	s := &Source{
		r:      r,
		ifd:    full,
		dtype:  dtype,
		width:  int(full.ImageWidth),
		height: int(full.ImageLength),
		tileW:  int(full.TileWidth),
		tileH:  int(full.TileLength),
	}
	s.tilesX = (s.width + s.tileW - 1) / s.tileW
	s.tilesY = (s.height + s.tileH - 1) / s.tileH
	if len(full.TileOffsets) < s.tilesX*s.tilesY {
		return nil, fmt.Errorf("have %d tile offsets, expected %d", len(full.TileOffsets), s.tilesX*s.tilesY)
	}
	return s, nil
}

func (s *Source) Width() int    { return s.width }
func (s *Source) Height() int   { return s.height }
func (s *Source) DType() string { return s.dtype }

// ReadTile returns the raw bytes of tile (tx, ty). A tile with a zero
// byte count resolves to an all-zero buffer, encoded like its siblings.
func (s *Source) ReadTile(tx, ty int) ([]byte, error) {
	if tx < 0 || tx >= s.tilesX || ty < 0 || ty >= s.tilesY {
		return nil, fmt.Errorf("tile %d.%d out of range", ty, tx)
	}
	idx := ty*s.tilesX + tx
	n := s.ifd.TileByteCounts[idx]
	if n == 0 {
		return s.emptyTile()
	}
	if _, err := s.r.Seek(int64(s.ifd.TileOffsets[idx]), io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek to %d: %w", s.ifd.TileOffsets[idx], err)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(s.r, buf); err != nil {
		return nil, fmt.Errorf("read %d from %d: %w", n, s.ifd.TileOffsets[idx], err)
	}
	return buf, nil
}

func (s *Source) emptyTile() ([]byte, error) {
	raw := make([]byte, s.tileW*s.tileH*int(s.ifd.BitsPerSample[0])/8)
	if s.ifd.Compression == compressionDeflate {
		return zarrstore.Zlib{}.Encode(raw)
	}
	return raw, nil
}

// AddTo registers the image as an array serving one chunk per TIFF
// tile. TIFF edge tiles are stored at full tile size, so chunks need no
// further padding.
func (s *Source) AddTo(store *zarrstore.Store, name string, dims [2]string) error {
	var compressor zarrstore.Codec
	if s.ifd.Compression == compressionDeflate {
		compressor = zarrstore.Zlib{}
	}
	return store.AddArray(zarrstore.ArraySpec{
		Name:       name,
		Dims:       []string{dims[0], dims[1]},
		DType:      s.dtype,
		Shape:      []int{s.height, s.width},
		Chunks:     []int{s.tileH, s.tileW},
		FillValue:  0,
		Compressor: compressor,
		GetData: func(index []int, req *zarrstore.ChunkRequest) (interface{}, error) {
			return s.ReadTile(index[1], index[0])
		},
	})
}

func dtypeOf(i *ifd, bigEndian bool) (string, error) {
	if len(i.BitsPerSample) == 0 {
		return "", fmt.Errorf("missing bits per sample")
	}
	bits := i.BitsPerSample[0]
	format := uint16(sampleFormatUInt)
	if len(i.SampleFormat) > 0 {
		format = i.SampleFormat[0]
	}
	var kind byte
	switch format {
	case sampleFormatUInt:
		kind = 'u'
	case sampleFormatInt:
		kind = 'i'
	case sampleFormatIEEEFP:
		kind = 'f'
	default:
		return "", fmt.Errorf("unsupported sample format %d", format)
	}
	switch bits {
	case 8, 16, 32, 64:
	default:
		return "", fmt.Errorf("unsupported bits per sample %d", bits)
	}
	if kind == 'f' && bits < 32 {
		return "", fmt.Errorf("unsupported bits per sample %d for floating point", bits)
	}
	order := byte('<')
	if bits == 8 {
		order = '|'
	} else if bigEndian {
		order = '>'
	}
	return fmt.Sprintf("%c%c%d", order, kind, bits/8), nil
}
