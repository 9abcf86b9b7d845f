package ptiff

import (
	"fmt"
	"log/slog"
	"math"
)

// pyramidLevels returns the number of reduced levels built below a
// width x length base with the given tile size.
func pyramidLevels(width, length, tile int) int {
	major := max(width, length)
	if major <= 0 || tile <= 0 {
		return 0
	}
	n := int(math.Ceil(math.Log2(float64(major)/float64(tile)))) + 1
	n = max(n, 0)
	// a level needs at least one row and one column
	for n > 0 && (width>>n == 0 || length>>n == 0) {
		n--
	}
	return n
}

// buildPyramid writes base as page 0 of an empty store, followed by
// successively halved reduced-resolution levels. Every level is stored as
// 8-bit samples.
func buildPyramid[T Sample](s Store, base *Raster[T], d Descriptor, workers int, logger *slog.Logger) error {
	if n := s.PageCount(); n != 0 {
		return fmt.Errorf("%w: pyramid needs an empty container, found %d pages", ErrConflict, n)
	}
	if d.TileWidth == 0 || d.TileLength == 0 || d.TileWidth != d.TileLength {
		return fmt.Errorf("%w: pyramid needs square tiles, got %dx%d", ErrUnsupportedLayout, d.TileWidth, d.TileLength)
	}
	if d.ImageWidth == 0 {
		d.ImageWidth = base.Width
	}
	if d.ImageLength == 0 {
		d.ImageLength = base.Height
	}
	if d.SamplesPerPixel == 0 {
		d.SamplesPerPixel = base.Samples
	}
	if d.ImageWidth != base.Width || d.ImageLength != base.Height || d.SamplesPerPixel != base.Samples {
		return fmt.Errorf("%w: %dx%dx%d raster for a %dx%dx%d page", ErrInvalidRegion,
			base.Width, base.Height, base.Samples, d.ImageWidth, d.ImageLength, d.SamplesPerPixel)
	}
	bits := sampleBits[T]()
	if d.BitsPerSample == 0 {
		d.BitsPerSample = bits
	}
	if d.BitsPerSample != 8 || bits != 8 {
		if logger != nil {
			logger.Warn("pyramid levels are stored with 8-bit samples",
				"requested_bits", d.BitsPerSample, "raster_bits", bits)
		}
		d.BitsPerSample = 8
	}

	levels := pyramidLevels(d.ImageWidth, d.ImageLength, d.TileWidth)
	d.SubfileType = SubfileFullResolution
	d.MaxSampleValue = 255
	d.PageNumber = 0
	d.PageCount = levels + 1

	if _, err := writeSubfile(s, scaleToBytes(base), d, workers); err != nil {
		return fmt.Errorf("failed to write base level: %w", err)
	}

	for i := 1; i <= levels; i++ {
		ld := d
		ld.SubfileType = SubfileReducedImage
		ld.ImageWidth = d.ImageWidth >> i
		ld.ImageLength = d.ImageLength >> i
		ld.PageNumber = i
		if err := downsampleLevel(s, i-1, ld, workers); err != nil {
			return fmt.Errorf("failed to build level %d: %w", i, err)
		}
		if logger != nil {
			logger.Debug("pyramid level written", "level", i, "width", ld.ImageWidth, "length", ld.ImageLength)
		}
	}
	return nil
}

// scaleToBytes maps samples onto [0, 255] by 255/max, truncating. A raster
// whose maximum is zero stays zero.
func scaleToBytes[T Sample](base *Raster[T]) *Raster[uint8] {
	out := NewRaster[uint8](base.Width, base.Height, base.Samples)
	var peak uint32
	for _, v := range base.Pix {
		peak = max(peak, uint32(v))
	}
	if peak == 0 {
		return out
	}
	for i, v := range base.Pix {
		out.Pix[i] = uint8(uint32(v) * 255 / peak)
	}
	return out
}

// downsampleLevel appends a page described by d whose every pixel is the
// mean of a 2x2 block of page src. Each destination tile is built from at
// most four source tiles.
func downsampleLevel(s Store, src int, d Descriptor, workers int) error {
	sd, err := s.Descriptor(src)
	if err != nil {
		return err
	}
	page, err := s.BeginPage(d)
	if err != nil {
		return err
	}
	d, err = s.Descriptor(page)
	if err != nil {
		return err
	}

	ts := d.TileWidth
	spp := d.SamplesPerPixel
	blockStride := 2 * ts * spp
	tileStride := ts * spp

	tiles := TileRange{Y1: d.TilesDown(), X1: d.TilesAcross()}
	err = forEach(workers, tiles.Tiles(), func(t TileIndex) error {
		block := getZeroedBuffer(4 * ts * ts * spp)
		defer putBuffer(block)
		for dy := 0; dy < 2; dy++ {
			for dx := 0; dx < 2; dx++ {
				sx, sy := 2*t.X+dx, 2*t.Y+dy
				if sx >= sd.TilesAcross() || sy >= sd.TilesDown() {
					continue
				}
				data, err := s.ReadTile(src, sx, sy)
				if err != nil {
					return fmt.Errorf("failed to read source tile (%d, %d): %w", sx, sy, err)
				}
				for row := 0; row < ts; row++ {
					at := (dy*ts+row)*blockStride + dx*tileStride
					copy(block[at:at+tileStride], data[row*tileStride:(row+1)*tileStride])
				}
			}
		}

		tile := getBuffer(ts * ts * spp)
		defer putBuffer(tile)
		for y := 0; y < ts; y++ {
			top := block[2*y*blockStride:]
			bottom := block[(2*y+1)*blockStride:]
			for x := 0; x < ts; x++ {
				for c := 0; c < spp; c++ {
					l := 2*x*spp + c
					r := l + spp
					sum := uint(top[l]) + uint(top[r]) + uint(bottom[l]) + uint(bottom[r])
					tile[(y*ts+x)*spp+c] = uint8(sum / 4)
				}
			}
		}
		if err := s.WriteTile(page, t.X, t.Y, tile); err != nil {
			return fmt.Errorf("failed to write tile (%d, %d): %w", t.X, t.Y, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return s.CommitPage(page)
}
