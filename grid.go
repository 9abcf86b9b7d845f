package ptiff

import "fmt"

// Rect is a half-open pixel rectangle: rows [Y1, Y2) and columns [X1, X2).
type Rect struct {
	Y1, X1, Y2, X2 int
}

// Height returns the number of rows covered by r.
func (r Rect) Height() int { return r.Y2 - r.Y1 }

// Width returns the number of columns covered by r.
func (r Rect) Width() int { return r.X2 - r.X1 }

// Empty reports whether r covers no pixels.
func (r Rect) Empty() bool { return r.Y1 >= r.Y2 || r.X1 >= r.X2 }

// Validate returns ErrInvalidRegion unless Y1 < Y2 and X1 < X2.
func (r Rect) Validate() error {
	if r.Empty() {
		return fmt.Errorf("%w: %v has no area", ErrInvalidRegion, r)
	}
	return nil
}

// Within reports whether r lies entirely inside a width x height image.
func (r Rect) Within(width, height int) bool {
	return r.Y1 >= 0 && r.X1 >= 0 && r.Y2 <= height && r.X2 <= width
}

// Intersect returns the overlap of r and o. The result may be empty.
func (r Rect) Intersect(o Rect) Rect {
	return Rect{
		Y1: max(r.Y1, o.Y1),
		X1: max(r.X1, o.X1),
		Y2: min(r.Y2, o.Y2),
		X2: min(r.X2, o.X2),
	}
}

// Shift scales r down by 2^s using floor division on every coordinate.
// A rectangle that would collapse keeps at least one row and one column.
func (r Rect) Shift(s int) Rect {
	out := Rect{Y1: r.Y1 >> s, X1: r.X1 >> s, Y2: r.Y2 >> s, X2: r.X2 >> s}
	if out.Y2 <= out.Y1 {
		out.Y2 = out.Y1 + 1
	}
	if out.X2 <= out.X1 {
		out.X2 = out.X1 + 1
	}
	return out
}

func (r Rect) String() string {
	return fmt.Sprintf("[%d:%d, %d:%d]", r.Y1, r.Y2, r.X1, r.X2)
}

// TileRange is a block of tile indices; Y0/X0 are inclusive and Y1/X1 exclusive.
type TileRange struct {
	Y0, X0, Y1, X1 int
}

// Empty reports whether the range holds no tiles.
func (t TileRange) Empty() bool { return t.Y0 >= t.Y1 || t.X0 >= t.X1 }

// Len returns the number of tiles in the range.
func (t TileRange) Len() int {
	if t.Empty() {
		return 0
	}
	return (t.Y1 - t.Y0) * (t.X1 - t.X0)
}

// Clamp clips the range to a grid of tilesY rows and tilesX columns.
func (t TileRange) Clamp(tilesY, tilesX int) TileRange {
	return TileRange{
		Y0: min(max(t.Y0, 0), tilesY),
		X0: min(max(t.X0, 0), tilesX),
		Y1: min(max(t.Y1, 0), tilesY),
		X1: min(max(t.X1, 0), tilesX),
	}
}

// Tiles lists the range row by row.
func (t TileRange) Tiles() []TileIndex {
	out := make([]TileIndex, 0, t.Len())
	for ty := t.Y0; ty < t.Y1; ty++ {
		for tx := t.X0; tx < t.X1; tx++ {
			out = append(out, TileIndex{X: tx, Y: ty})
		}
	}
	return out
}

// TileIndex addresses one tile of a page grid.
type TileIndex struct {
	X, Y int
}

// TileCount returns ceil(dim / tileDim).
func TileCount(dim, tileDim int) int {
	if tileDim <= 0 || dim <= 0 {
		return 0
	}
	return (dim + tileDim - 1) / tileDim
}

// TilesOverlapping returns the tiles touched by r. A tile that r only reaches
// with its exclusive end is not included.
func TilesOverlapping(r Rect, tileWidth, tileLength int) TileRange {
	return TileRange{
		Y0: floorDiv(r.Y1, tileLength),
		X0: floorDiv(r.X1, tileWidth),
		Y1: floorDiv(r.Y2-1, tileLength) + 1,
		X1: floorDiv(r.X2-1, tileWidth) + 1,
	}
}

// AlignedBounds rounds r outward to multiples of tileDim.
func AlignedBounds(r Rect, tileDim int) Rect {
	return Rect{
		Y1: floorDiv(r.Y1, tileDim) * tileDim,
		X1: floorDiv(r.X1, tileDim) * tileDim,
		Y2: (floorDiv(r.Y2-1, tileDim) + 1) * tileDim,
		X2: (floorDiv(r.X2-1, tileDim) + 1) * tileDim,
	}
}

// TileRect returns the full pixel extent of tile (tx, ty), including any part
// that hangs past the image edge.
func TileRect(tx, ty, tileWidth, tileLength int) Rect {
	return Rect{
		Y1: ty * tileLength,
		X1: tx * tileWidth,
		Y2: (ty + 1) * tileLength,
		X2: (tx + 1) * tileWidth,
	}
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
