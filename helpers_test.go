package ptiff

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

// newTestFile creates an empty container in a temporary directory.
func newTestFile(t testing.TB, opts ...Option) *File {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.tif")
	f, err := Create(path, opts...)
	if err != nil {
		t.Fatalf("Failed to create container: %v", err)
	}
	return f
}

// patternRaster fills a raster with values that differ for every sample
// position, so misplaced pixels show up in comparisons.
func patternRaster[T Sample](width, height, samples int) *Raster[T] {
	r := NewRaster[T](width, height, samples)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			for s := 0; s < samples; s++ {
				r.Set(x, y, s, T(x*7+y*13+s*101))
			}
		}
	}
	return r
}

// checkRegion compares got against the part of src covered by r.
func checkRegion[T Sample](t *testing.T, got, src *Raster[T], r Rect) {
	t.Helper()
	if got.Width != r.Width() || got.Height != r.Height() || got.Samples != src.Samples {
		t.Fatalf("Expected %dx%dx%d raster, got %dx%dx%d",
			r.Width(), r.Height(), src.Samples, got.Width, got.Height, got.Samples)
	}
	for y := 0; y < got.Height; y++ {
		for x := 0; x < got.Width; x++ {
			for s := 0; s < got.Samples; s++ {
				want := src.At(r.X1+x, r.Y1+y, s)
				if v := got.At(x, y, s); v != want {
					t.Fatalf("Pixel (%d, %d) sample %d: expected %d, got %d", r.X1+x, r.Y1+y, s, want, v)
				}
			}
		}
	}
}

// testPage is a hand-assembled page: a descriptor and its stored chunks.
type testPage struct {
	desc   Descriptor
	chunks [][]byte
	// extra entries written as-is, e.g. a predictor
	extra []entry
}

// buildTIFF writes a container assembled by encodeTIFF to a temporary file.
func buildTIFF(t *testing.T, order binary.ByteOrder, big bool, pages ...testPage) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "built.tif")
	if err := os.WriteFile(path, encodeTIFF(t, order, big, pages...), 0o644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}
	return path
}

// encodeTIFF assembles a container from pre-encoded chunks, writing chunk
// data after the header and each directory after its data.
func encodeTIFF(t *testing.T, order binary.ByteOrder, big bool, pages ...testPage) []byte {
	t.Helper()
	buf := writeHeader(order, big)
	ptrPos := 4
	if big {
		ptrPos = 8
	}

	for _, p := range pages {
		offsets := make([]uint64, len(p.chunks))
		counts := make([]uint64, len(p.chunks))
		for i, c := range p.chunks {
			offsets[i] = uint64(len(buf))
			counts[i] = uint64(len(c))
			buf = append(buf, c...)
		}
		if len(buf)%2 == 1 {
			buf = append(buf, 0)
		}

		entries := append(pageEntries(p.desc, offsets, counts, big), p.extra...)
		pos := int64(len(buf))
		ifdBytes, nextAt, err := encodeIFD(entries, pos, order, big)
		if err != nil {
			t.Fatalf("Failed to encode IFD: %v", err)
		}
		if big {
			order.PutUint64(buf[ptrPos:], uint64(pos))
		} else {
			order.PutUint32(buf[ptrPos:], uint32(pos))
		}
		buf = append(buf, ifdBytes...)
		ptrPos = int(pos) + nextAt
	}

	return buf
}

// tileChunks splits src into encoded tiles of a tiled descriptor.
func tileChunks[T Sample](src *Raster[T], d Descriptor, order binary.ByteOrder, encode func([]byte) []byte) [][]byte {
	var chunks [][]byte
	for ty := 0; ty < d.TilesDown(); ty++ {
		for tx := 0; tx < d.TilesAcross(); tx++ {
			buf := make([]byte, d.TileBytes())
			copyRasterToChunk(buf, TileRect(tx, ty, d.TileWidth, d.TileLength), src, d.Bounds(), d.PixelBytes(), order)
			if encode != nil {
				buf = encode(buf)
			}
			chunks = append(chunks, buf)
		}
	}
	return chunks
}
