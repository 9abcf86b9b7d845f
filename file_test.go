package ptiff

import (
	"encoding/binary"
	"errors"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

func TestOpenNotFound(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.tif"))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestCreateBigTIFF(t *testing.T) {
	f := newTestFile(t, WithBigTIFF(true))
	if _, err := WriteSubfile(f, patternRaster[uint8](20, 20, 1), Descriptor{TileWidth: 16, TileLength: 16}); err != nil {
		t.Fatal(err)
	}
	v, err := f.Version()
	if err != nil {
		t.Fatal(err)
	}
	if v != 43 {
		t.Errorf("Expected BigTIFF version 43, got %d", v)
	}

	reopened, err := Open(f.Path())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	got, err := ReadPage[uint8](reopened, 0)
	if err != nil {
		t.Fatal(err)
	}
	checkRegion(t, got, patternRaster[uint8](20, 20, 1), Rect{Y2: 20, X2: 20})
}

// buildTestPyramid writes a gradient pyramid with 16 px tiles.
func buildTestPyramid(t *testing.T, size int) *File {
	t.Helper()
	f := newTestFile(t)
	base := NewRaster[uint8](size, size, 1)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			base.Set(x, y, 0, uint8((x+y)%256))
		}
	}
	// a 255 peak leaves the base level unscaled
	base.Set(size-1, size-1, 0, 255)
	if err := BuildPyramid(f, base, Descriptor{TileWidth: 16, TileLength: 16}); err != nil {
		t.Fatalf("BuildPyramid failed: %v", err)
	}
	return f
}

func TestFileDescriptorRelativeIndex(t *testing.T) {
	f := buildTestPyramid(t, 64)
	n, err := f.PageCount()
	if err != nil {
		t.Fatal(err)
	}
	if n != 4 {
		t.Fatalf("Expected 4 pages, got %d", n)
	}

	last, err := f.Descriptor(-1)
	if err != nil {
		t.Fatal(err)
	}
	if last.ImageWidth != 8 {
		t.Errorf("Expected 8 px coarsest level, got %d", last.ImageWidth)
	}
	first, err := f.Descriptor(-4)
	if err != nil {
		t.Fatal(err)
	}
	if first.ImageWidth != 64 {
		t.Errorf("Expected 64 px finest level, got %d", first.ImageWidth)
	}
	for _, idx := range []int{4, -5} {
		if _, err := f.Descriptor(idx); !errors.Is(err, ErrIndexOutOfRange) {
			t.Errorf("Descriptor(%d): expected ErrIndexOutOfRange, got %v", idx, err)
		}
	}
}

func TestMultiPageCrop(t *testing.T) {
	f := buildTestPyramid(t, 64)

	ras, level, err := MultiPageCrop[uint8](f, Rect{Y1: 0, X1: 0, Y2: 64, X2: 64}, FitPageTile)
	if err != nil {
		t.Fatalf("MultiPageCrop failed: %v", err)
	}
	if level != 2 {
		t.Errorf("Expected level 2, got %d", level)
	}
	if ras.Width != 16 || ras.Height != 16 {
		t.Errorf("Expected 16x16 crop, got %dx%d", ras.Width, ras.Height)
	}

	ras, level, err = MultiPageCrop[uint8](f, Rect{Y1: 8, X1: 8, Y2: 20, X2: 24}, FitPageTile)
	if err != nil {
		t.Fatal(err)
	}
	if level != 0 {
		t.Errorf("Expected level 0, got %d", level)
	}
	want, err := ReadRegion[uint8](f, 0, Rect{Y1: 8, X1: 8, Y2: 20, X2: 24})
	if err != nil {
		t.Fatal(err)
	}
	checkRegion(t, ras, want, Rect{Y2: 12, X2: 16})

	if _, _, err := MultiPageCrop[uint8](f, Rect{Y2: 4, X2: 4}, Strategy(3)); !errors.Is(err, ErrInvalidStrategy) {
		t.Errorf("Expected ErrInvalidStrategy, got %v", err)
	}
}

func TestReadRegionImage(t *testing.T) {
	f := newTestFile(t)
	if _, err := WriteSubfile(f, patternRaster[uint8](20, 20, 3), Descriptor{TileWidth: 16, TileLength: 16}); err != nil {
		t.Fatal(err)
	}
	img, err := f.ReadRegionImage(0, Rect{Y1: 2, X1: 3, Y2: 12, X2: 18})
	if err != nil {
		t.Fatalf("ReadRegionImage failed: %v", err)
	}
	nrgba, ok := img.(*image.NRGBA)
	if !ok {
		t.Fatalf("Expected *image.NRGBA, got %T", img)
	}
	if nrgba.Bounds().Dx() != 15 || nrgba.Bounds().Dy() != 10 {
		t.Errorf("Unexpected bounds %v", nrgba.Bounds())
	}
	c := nrgba.NRGBAAt(0, 0)
	want := patternRaster[uint8](20, 20, 3)
	if c.R != want.At(3, 2, 0) || c.G != want.At(3, 2, 1) || c.B != want.At(3, 2, 2) || c.A != 255 {
		t.Errorf("Unexpected color %v", c)
	}
}

func TestReadMapTile(t *testing.T) {
	f := buildTestPyramid(t, 64)

	img, err := f.ReadMapTile(maptile.New(0, 0, 0))
	if err != nil {
		t.Fatalf("ReadMapTile failed: %v", err)
	}
	if _, ok := img.(*image.Gray); !ok {
		t.Errorf("Expected *image.Gray, got %T", img)
	}
	if img.Bounds().Dx() != 16 {
		t.Errorf("Expected 16 px tile, got %d", img.Bounds().Dx())
	}

	// zoom 3 is the finest page: 4x4 tiles
	img, err = f.ReadMapTile(maptile.New(3, 1, 3))
	if err != nil {
		t.Fatal(err)
	}
	gray := img.(*image.Gray)
	if got := gray.GrayAt(0, 0).Y; got != 64 {
		t.Errorf("Expected first pixel 64, got %d", got)
	}

	if _, err := f.ReadMapTile(maptile.New(4, 0, 3)); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("Expected ErrIndexOutOfRange for a tile past the edge, got %v", err)
	}
	if _, err := f.ReadMapTile(maptile.New(0, 0, 4)); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("Expected ErrIndexOutOfRange for a zoom past the finest level, got %v", err)
	}
}

func TestFootprint(t *testing.T) {
	f := buildTestPyramid(t, 64)
	for idx := 0; idx < 4; idx++ {
		b, err := f.Footprint(idx)
		if err != nil {
			t.Fatal(err)
		}
		want := orb.Bound{Max: orb.Point{64, 64}}
		if !b.Equal(want) {
			t.Errorf("Page %d: expected footprint %v, got %v", idx, want, b)
		}
	}
	if _, err := f.Footprint(5); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("Expected ErrIndexOutOfRange, got %v", err)
	}
}

func TestFootprintOfBrokenPage(t *testing.T) {
	order := binary.LittleEndian
	good := Descriptor{ImageWidth: 16, ImageLength: 16, TileWidth: 16, TileLength: 16}.withDefaults()
	first, nextAt, err := encodeIFD(pageEntries(good, []uint64{8}, []uint64{256}, false), 8, order, false)
	if err != nil {
		t.Fatal(err)
	}
	pos := align2(8 + int64(len(first)))
	// width only: the second page has no length
	second, _, err := encodeIFD([]entry{{tagImageWidth, dtLong, []uint64{8}}}, pos, order, false)
	if err != nil {
		t.Fatal(err)
	}
	order.PutUint32(first[nextAt:], uint32(pos))

	buf := writeHeader(order, false)
	order.PutUint32(buf[4:], 8)
	buf = append(buf, first...)
	for int64(len(buf)) < pos {
		buf = append(buf, 0)
	}
	buf = append(buf, second...)
	path := filepath.Join(t.TempDir(), "broken.tif")
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatal(err)
	}

	f, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if b, err := f.Footprint(0); err != nil || !b.Equal(orb.Bound{Max: orb.Point{16, 16}}) {
		t.Errorf("Expected the first page footprint, got %v (%v)", b, err)
	}
	if _, err := f.Footprint(1); !errors.Is(err, ErrMissingRequiredField) {
		t.Errorf("Expected ErrMissingRequiredField for the broken page, got %v", err)
	}
}

func TestRectBoundConversion(t *testing.T) {
	r := Rect{Y1: 2, X1: 3, Y2: 10, X2: 20}
	if got := RectFromBound(r.Bound()); got != r {
		t.Errorf("Expected %v, got %v", r, got)
	}
	b := orb.Bound{Min: orb.Point{1.5, 2.2}, Max: orb.Point{3.1, 4.9}}
	if got := RectFromBound(b); got != (Rect{Y1: 2, X1: 1, Y2: 5, X2: 4}) {
		t.Errorf("Unexpected rect %v", got)
	}
	poly := PolygonFromBounds(r.Bound())
	if len(poly) != 1 || len(poly[0]) != 5 {
		t.Errorf("Expected a closed ring of 5 points, got %v", poly)
	}
}
