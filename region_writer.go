package ptiff

import (
	"encoding/binary"
	"fmt"
)

// writeRegion overwrites r of an existing page with src. Tiles that r
// covers completely are written without being read first.
func writeRegion[T Sample](s Store, page int, r Rect, src *Raster[T], workers int) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if src.Width != r.Width() || src.Height != r.Height() {
		return fmt.Errorf("%w: %dx%d raster for %v", ErrInvalidRegion, src.Width, src.Height, r)
	}
	d, err := s.Descriptor(page)
	if err != nil {
		return err
	}
	if err := checkLayout[T](d); err != nil {
		return err
	}
	if src.Samples != d.SamplesPerPixel {
		return fmt.Errorf("%w: raster has %d samples per pixel, page has %d", ErrInvalidRegion, src.Samples, d.SamplesPerPixel)
	}
	if !r.Within(d.ImageWidth, d.ImageLength) {
		return fmt.Errorf("%w: %v outside %dx%d page %d", ErrInvalidRegion, r, d.ImageWidth, d.ImageLength, page)
	}
	if d.Compression != CompressionNone {
		return fmt.Errorf("%w: page %d is compressed and cannot be updated in place", ErrConflict, page)
	}
	order := s.ByteOrder()

	if !d.IsTiled() {
		rows := make([]int, 0, r.Height())
		for y := r.Y1; y < r.Y2; y++ {
			rows = append(rows, y)
		}
		fullWidth := r.X1 == 0 && r.X2 == d.ImageWidth
		return forEach(workers, rows, func(y int) error {
			buf := getZeroedBuffer(d.RowBytes())
			defer putBuffer(buf)
			if !fullWidth {
				data, err := s.ReadRow(page, y)
				if err != nil {
					return fmt.Errorf("failed to read row %d: %w", y, err)
				}
				copy(buf, data)
			}
			rowRect := Rect{Y1: y, Y2: y + 1, X2: d.ImageWidth}
			copyRasterToChunk(buf, rowRect, src, r, d.PixelBytes(), order)
			if err := s.WriteRow(page, y, buf); err != nil {
				return fmt.Errorf("failed to write row %d: %w", y, err)
			}
			return nil
		})
	}

	tiles := TilesOverlapping(r, d.TileWidth, d.TileLength).Clamp(d.TilesDown(), d.TilesAcross())
	return forEach(workers, tiles.Tiles(), func(t TileIndex) error {
		tileRect := TileRect(t.X, t.Y, d.TileWidth, d.TileLength)
		buf := getZeroedBuffer(d.TileBytes())
		defer putBuffer(buf)
		if tileRect.Intersect(r) != tileRect {
			data, err := s.ReadTile(page, t.X, t.Y)
			if err != nil {
				return fmt.Errorf("failed to read tile (%d, %d): %w", t.X, t.Y, err)
			}
			copy(buf, data)
		}
		copyRasterToChunk(buf, tileRect, src, r, d.PixelBytes(), order)
		if err := s.WriteTile(page, t.X, t.Y, buf); err != nil {
			return fmt.Errorf("failed to write tile (%d, %d): %w", t.X, t.Y, err)
		}
		return nil
	})
}

// writeSubfile appends src as a new page laid out by d. Zero image
// dimensions and sample counts in d are taken from src.
func writeSubfile[T Sample](s Store, src *Raster[T], d Descriptor, workers int) (int, error) {
	if d.ImageWidth == 0 {
		d.ImageWidth = src.Width
	}
	if d.ImageLength == 0 {
		d.ImageLength = src.Height
	}
	if d.SamplesPerPixel == 0 {
		d.SamplesPerPixel = src.Samples
	}
	if d.BitsPerSample == 0 {
		d.BitsPerSample = sampleBits[T]()
	}
	if d.ImageWidth != src.Width || d.ImageLength != src.Height || d.SamplesPerPixel != src.Samples {
		return 0, fmt.Errorf("%w: %dx%dx%d raster for a %dx%dx%d page", ErrInvalidRegion,
			src.Width, src.Height, src.Samples, d.ImageWidth, d.ImageLength, d.SamplesPerPixel)
	}
	if err := checkLayout[T](d.withDefaults()); err != nil {
		return 0, err
	}

	page, err := s.BeginPage(d)
	if err != nil {
		return 0, err
	}
	d, err = s.Descriptor(page)
	if err != nil {
		return 0, err
	}
	order := s.ByteOrder()
	whole := d.Bounds()

	if !d.IsTiled() {
		rows := make([]int, d.ImageLength)
		for y := range rows {
			rows[y] = y
		}
		err = forEach(workers, rows, func(y int) error {
			buf := getBuffer(d.RowBytes())
			defer putBuffer(buf)
			encodeSamples(buf, src.Row(y), order)
			if err := s.WriteRow(page, y, buf); err != nil {
				return fmt.Errorf("failed to write row %d: %w", y, err)
			}
			return nil
		})
	} else {
		tiles := TileRange{Y1: d.TilesDown(), X1: d.TilesAcross()}
		err = forEach(workers, tiles.Tiles(), func(t TileIndex) error {
			buf := getZeroedBuffer(d.TileBytes())
			defer putBuffer(buf)
			copyRasterToChunk(buf, TileRect(t.X, t.Y, d.TileWidth, d.TileLength), src, whole, d.PixelBytes(), order)
			if err := s.WriteTile(page, t.X, t.Y, buf); err != nil {
				return fmt.Errorf("failed to write tile (%d, %d): %w", t.X, t.Y, err)
			}
			return nil
		})
	}
	if err != nil {
		return 0, err
	}
	if err := s.CommitPage(page); err != nil {
		return 0, err
	}
	return page, nil
}

// copyRasterToChunk encodes the part of src that falls inside dst into a
// chunk covering dst. src has its origin at (r.Y1, r.X1).
func copyRasterToChunk[T Sample](buf []byte, dst Rect, src *Raster[T], r Rect, pixelBytes int, order binary.ByteOrder) {
	inter := dst.Intersect(r)
	if inter.Empty() {
		return
	}
	n := inter.Width() * src.Samples
	for y := inter.Y1; y < inter.Y2; y++ {
		srcOff := src.Index(inter.X1-r.X1, y-r.Y1, 0)
		dstOff := ((y-dst.Y1)*dst.Width() + (inter.X1 - dst.X1)) * pixelBytes
		encodeSamples(buf[dstOff:], src.Pix[srcOff:srcOff+n], order)
	}
}
