package ptiff

import (
	"encoding/binary"
	"fmt"
)

// readRegion reads r from page. Every part of r must lie inside the page.
func readRegion[T Sample](s Store, page int, r Rect, workers int) (*Raster[T], error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	d, err := s.Descriptor(page)
	if err != nil {
		return nil, err
	}
	if !r.Within(d.ImageWidth, d.ImageLength) {
		return nil, fmt.Errorf("%w: %v outside %dx%d page %d", ErrInvalidRegion, r, d.ImageWidth, d.ImageLength, page)
	}
	return copyRegion[T](s, page, d, r, workers)
}

// readPage reads a whole page.
func readPage[T Sample](s Store, page int, workers int) (*Raster[T], error) {
	d, err := s.Descriptor(page)
	if err != nil {
		return nil, err
	}
	return copyRegion[T](s, page, d, d.Bounds(), workers)
}

// crop reads r from page, which may extend past the page or lie outside it
// entirely. Pixels outside the page are zero.
func crop[T Sample](s Store, page int, r Rect, workers int) (*Raster[T], error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	d, err := s.Descriptor(page)
	if err != nil {
		return nil, err
	}
	return copyRegion[T](s, page, d, r, workers)
}

// copyRegion assembles r from the tiles or rows of a page into a new
// zero-filled raster.
func copyRegion[T Sample](s Store, page int, d Descriptor, r Rect, workers int) (*Raster[T], error) {
	if err := checkLayout[T](d); err != nil {
		return nil, err
	}
	if d.IsTiled() && d.TileWidth != d.TileLength {
		return nil, fmt.Errorf("%w: %dx%d tiles are not square", ErrUnsupportedLayout, d.TileWidth, d.TileLength)
	}

	out := NewRaster[T](r.Width(), r.Height(), d.SamplesPerPixel)
	clip := r.Intersect(d.Bounds())
	if clip.Empty() {
		return out, nil
	}
	order := s.ByteOrder()

	if !d.IsTiled() {
		rows := make([]int, 0, clip.Height())
		for y := clip.Y1; y < clip.Y2; y++ {
			rows = append(rows, y)
		}
		err := forEach(workers, rows, func(y int) error {
			data, err := s.ReadRow(page, y)
			if err != nil {
				return fmt.Errorf("failed to read row %d: %w", y, err)
			}
			rowRect := Rect{Y1: y, X1: 0, Y2: y + 1, X2: d.ImageWidth}
			copyChunkToRaster(out, r, data, rowRect, clip, d.PixelBytes(), order)
			return nil
		})
		if err != nil {
			return nil, err
		}
		return out, nil
	}

	tiles := TilesOverlapping(clip, d.TileWidth, d.TileLength).Clamp(d.TilesDown(), d.TilesAcross())
	err := forEach(workers, tiles.Tiles(), func(t TileIndex) error {
		data, err := s.ReadTile(page, t.X, t.Y)
		if err != nil {
			return fmt.Errorf("failed to read tile (%d, %d): %w", t.X, t.Y, err)
		}
		tileRect := TileRect(t.X, t.Y, d.TileWidth, d.TileLength)
		copyChunkToRaster(out, r, data, tileRect, clip, d.PixelBytes(), order)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// copyChunkToRaster decodes the part of a chunk that falls inside clip into
// out, whose origin is at (r.Y1, r.X1). The chunk covers src.
func copyChunkToRaster[T Sample](out *Raster[T], r Rect, data []byte, src, clip Rect, pixelBytes int, order binary.ByteOrder) {
	inter := src.Intersect(clip)
	if inter.Empty() {
		return
	}
	spp := out.Samples
	n := inter.Width() * spp
	for y := inter.Y1; y < inter.Y2; y++ {
		srcOff := ((y-src.Y1)*src.Width() + (inter.X1 - src.X1)) * pixelBytes
		dstOff := out.Index(inter.X1-r.X1, y-r.Y1, 0)
		decodeSamples(out.Pix[dstOff:dstOff+n], data[srcOff:], order)
	}
}
