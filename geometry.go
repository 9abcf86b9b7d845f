package ptiff

import (
	"fmt"
	"image"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// Bound returns r as an orb.Bound with X along columns and Y along rows.
func (r Rect) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{float64(r.X1), float64(r.Y1)},
		Max: orb.Point{float64(r.X2), float64(r.Y2)},
	}
}

// RectFromBound returns the smallest pixel rectangle covering b.
func RectFromBound(b orb.Bound) Rect {
	return Rect{
		Y1: int(math.Floor(b.Min[1])),
		X1: int(math.Floor(b.Min[0])),
		Y2: int(math.Ceil(b.Max[1])),
		X2: int(math.Ceil(b.Max[0])),
	}
}

// PolygonFromBounds creates a polygon from a bounding box
func PolygonFromBounds(bound orb.Bound) orb.Polygon {
	if bound.IsEmpty() {
		return orb.Polygon{}
	}

	ring := orb.Ring{
		{bound.Min[0], bound.Min[1]},
		{bound.Max[0], bound.Min[1]},
		{bound.Max[0], bound.Max[1]},
		{bound.Min[0], bound.Max[1]},
		{bound.Min[0], bound.Min[1]},
	}

	return orb.Polygon{ring}
}

// Footprint returns the extent of a page in full-resolution pixel
// coordinates. Reduced levels are scaled up by the ratio of page widths.
// Pages that failed to parse return their error.
func (f *File) Footprint(idx int) (orb.Bound, error) {
	var base, d Descriptor
	err := f.read(func(c *Container) error {
		page, err := c.Directory().Resolve(idx)
		if err != nil {
			return err
		}
		if base, err = c.Descriptor(0); err != nil {
			return err
		}
		d, err = c.Descriptor(page)
		return err
	})
	if err != nil {
		return orb.Bound{}, err
	}
	scale := float64(base.ImageWidth) / float64(d.ImageWidth)
	return orb.Bound{
		Max: orb.Point{float64(d.ImageWidth) * scale, float64(d.ImageLength) * scale},
	}, nil
}

// ReadMapTile reads one tile of the pyramid addressed as a map tile: zoom 0
// is the coarsest page and each zoom step selects the next finer page. X
// and Y are tile columns and rows of that page. Tiles at the image edge are
// zero padded.
func (f *File) ReadMapTile(t maptile.Tile) (image.Image, error) {
	pages, err := f.Directory()
	if err != nil {
		return nil, err
	}
	if int(t.Z) >= len(pages) {
		return nil, fmt.Errorf("%w: zoom %d of %d levels", ErrIndexOutOfRange, t.Z, len(pages))
	}
	page := len(pages) - 1 - int(t.Z)
	d := pages[page]
	if !d.IsTiled() {
		return nil, fmt.Errorf("%w: page %d is not tiled", ErrUnsupportedLayout, page)
	}

	r := TileRect(int(t.X), int(t.Y), d.TileWidth, d.TileLength)
	if r.Intersect(d.Bounds()).Empty() {
		return nil, fmt.Errorf("%w: tile %d/%d/%d lies outside the page", ErrIndexOutOfRange, t.Z, t.X, t.Y)
	}

	switch d.BitsPerSample {
	case 8:
		ras, err := Crop[uint8](f, page, r)
		if err != nil {
			return nil, err
		}
		return ras.Image(d.Photometric), nil
	case 16:
		ras, err := Crop[uint16](f, page, r)
		if err != nil {
			return nil, err
		}
		return ras.Image(d.Photometric), nil
	default:
		return nil, fmt.Errorf("%w: %d bits per sample", ErrUnsupportedLayout, d.BitsPerSample)
	}
}
