package ptiff

import "fmt"

// SubfileType values (tag 254).
const (
	SubfileFullResolution uint32 = 0
	SubfileReducedImage   uint32 = 1
)

// Photometric interpretations (tag 262) understood by the image helpers.
const (
	PhotometricMinIsWhite uint16 = 0
	PhotometricMinIsBlack uint16 = 1
	PhotometricRGB        uint16 = 2
)

// PlanarConfig values (tag 284). Only chunky storage is supported.
const (
	PlanarChunky uint16 = 1
	PlanarPlanar uint16 = 2
)

// SampleFormat values (tag 339).
const (
	SampleFormatUint uint16 = 1
	SampleFormatInt  uint16 = 2
)

// Descriptor holds the layout metadata of one page. A TileWidth and
// TileLength of zero mean the page is stored as scanlines.
type Descriptor struct {
	SubfileType     uint32
	ImageWidth      int
	ImageLength     int
	BitsPerSample   int
	Compression     uint16
	Photometric     uint16
	SamplesPerPixel int
	RowsPerStrip    int
	MinSampleValue  int
	MaxSampleValue  int
	PlanarConfig    uint16
	PageNumber      int
	PageCount       int
	TileWidth       int
	TileLength      int
	SampleFormat    uint16
}

// IsTiled reports whether the page is tile-organized.
func (d Descriptor) IsTiled() bool {
	return d.TileWidth > 0 || d.TileLength > 0
}

// Bounds returns the full page rectangle.
func (d Descriptor) Bounds() Rect {
	return Rect{Y2: d.ImageLength, X2: d.ImageWidth}
}

// TilesAcross returns the number of tile columns.
func (d Descriptor) TilesAcross() int { return TileCount(d.ImageWidth, d.TileWidth) }

// TilesDown returns the number of tile rows.
func (d Descriptor) TilesDown() int { return TileCount(d.ImageLength, d.TileLength) }

// BytesPerSample returns the storage width of a single sample.
func (d Descriptor) BytesPerSample() int { return (d.BitsPerSample + 7) / 8 }

// PixelBytes returns the storage width of one interleaved pixel.
func (d Descriptor) PixelBytes() int { return d.BytesPerSample() * d.SamplesPerPixel }

// TileBytes returns the decoded size of one full tile.
func (d Descriptor) TileBytes() int { return d.TileWidth * d.TileLength * d.PixelBytes() }

// RowBytes returns the decoded size of one image row.
func (d Descriptor) RowBytes() int { return d.ImageWidth * d.PixelBytes() }

// chunkCount returns the number of tiles or strips the page is stored in.
func (d Descriptor) chunkCount() int {
	if d.IsTiled() {
		return d.TilesAcross() * d.TilesDown()
	}
	return TileCount(d.ImageLength, d.rowsPerStrip())
}

func (d Descriptor) rowsPerStrip() int {
	if d.RowsPerStrip <= 0 || d.RowsPerStrip > d.ImageLength {
		return d.ImageLength
	}
	return d.RowsPerStrip
}

// withDefaults fills zero fields the way a new page is written.
func (d Descriptor) withDefaults() Descriptor {
	if d.SamplesPerPixel == 0 {
		d.SamplesPerPixel = 1
	}
	if d.BitsPerSample == 0 {
		d.BitsPerSample = 8
	}
	if d.Compression == 0 {
		d.Compression = CompressionNone
	}
	if d.PlanarConfig == 0 {
		d.PlanarConfig = PlanarChunky
	}
	if d.SampleFormat == 0 {
		d.SampleFormat = SampleFormatUint
	}
	if d.Photometric == PhotometricMinIsWhite {
		if d.SamplesPerPixel >= 3 {
			d.Photometric = PhotometricRGB
		} else {
			d.Photometric = PhotometricMinIsBlack
		}
	}
	if d.MaxSampleValue == 0 {
		d.MaxSampleValue = 1<<d.BitsPerSample - 1
	}
	if !d.IsTiled() {
		d.RowsPerStrip = 1
	}
	return d
}

// checkWritable rejects descriptors that cannot be laid out as a new page.
func (d Descriptor) checkWritable() error {
	if d.ImageWidth <= 0 || d.ImageLength <= 0 {
		return fmt.Errorf("%w: image is %dx%d", ErrMissingRequiredField, d.ImageWidth, d.ImageLength)
	}
	if d.IsTiled() && (d.TileWidth <= 0 || d.TileLength <= 0) {
		return fmt.Errorf("%w: tile size is %dx%d", ErrMissingRequiredField, d.TileWidth, d.TileLength)
	}
	if d.Compression != CompressionNone {
		return fmt.Errorf("%w: pages are written uncompressed, got compression %d", ErrUnsupportedLayout, d.Compression)
	}
	if d.BitsPerSample != 8 && d.BitsPerSample != 16 {
		return fmt.Errorf("%w: %d bits per sample", ErrUnsupportedLayout, d.BitsPerSample)
	}
	return nil
}

// Directory is the ordered list of page descriptors in a container. Index 0
// is the first page written, which is the finest level of a pyramid.
type Directory struct {
	pages []Descriptor
}

// Len returns the number of pages.
func (dir *Directory) Len() int { return len(dir.pages) }

// Get returns the descriptor at index i.
func (dir *Directory) Get(i int) (Descriptor, error) {
	if i < 0 || i >= len(dir.pages) {
		return Descriptor{}, fmt.Errorf("%w: page %d of %d", ErrIndexOutOfRange, i, len(dir.pages))
	}
	return dir.pages[i], nil
}

// Append adds a descriptor and returns its index. All pages of a container
// share the storage organization of page 0, and only chunky storage is
// accepted. A zero PlanarConfig means chunky.
func (dir *Directory) Append(d Descriptor) (int, error) {
	if err := dir.canAppend(d); err != nil {
		return 0, err
	}
	dir.pages = append(dir.pages, d)
	return len(dir.pages) - 1, nil
}

func (dir *Directory) canAppend(d Descriptor) error {
	if d.PlanarConfig != 0 && d.PlanarConfig != PlanarChunky {
		return fmt.Errorf("%w: planar configuration %d", ErrUnsupportedLayout, d.PlanarConfig)
	}
	if len(dir.pages) > 0 && dir.pages[0].IsTiled() != d.IsTiled() {
		return fmt.Errorf("%w: cannot mix scanline and tiled pages", ErrConflict)
	}
	return nil
}

// Resolve maps a relative index onto [0, Len()). Negative indices count from
// the end; any index outside [-Len(), Len()) is rejected.
func (dir *Directory) Resolve(idx int) (int, error) {
	n := len(dir.pages)
	if idx >= n || idx < -n {
		return 0, fmt.Errorf("%w: page %d of %d", ErrIndexOutOfRange, idx, n)
	}
	if idx < 0 {
		idx += n
	}
	return idx, nil
}

// Pages returns a copy of all descriptors.
func (dir *Directory) Pages() []Descriptor {
	out := make([]Descriptor, len(dir.pages))
	copy(out, dir.pages)
	return out
}

// load appends a parsed descriptor without the organization check, so
// files written by other tools stay readable.
func (dir *Directory) load(d Descriptor) {
	dir.pages = append(dir.pages, d)
}
