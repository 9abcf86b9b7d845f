package ptiff

import (
	"bytes"
	"encoding/binary"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
)

// Benchmark data generation helpers

// generateTestTileData creates random tile bytes for benchmarking
func generateTestTileData(width, height, samples, bytesPerSample int) []byte {
	data := make([]byte, width*height*samples*bytesPerSample)
	for i := range data {
		data[i] = byte(rand.Intn(256))
	}
	return data
}

// createBenchmarkFile writes a tiled page of random samples and returns its
// path. The file is shared by every iteration of a benchmark.
func createBenchmarkFile(b *testing.B, size, tile, samples int) string {
	b.Helper()
	path := filepath.Join(b.TempDir(), "bench.tif")
	f, err := Create(path)
	if err != nil {
		b.Fatalf("Failed to create file: %v", err)
	}
	src := &Raster[uint8]{
		Pix:     generateTestTileData(size, size, samples, 1),
		Width:   size,
		Height:  size,
		Samples: samples,
	}
	if _, err := WriteSubfile(f, src, Descriptor{TileWidth: tile, TileLength: tile}); err != nil {
		b.Fatalf("Failed to write page: %v", err)
	}
	return path
}

// =============================================================================
// Benchmarks for sample decoding
// =============================================================================

func BenchmarkDecodeSamples_8bit(b *testing.B) {
	data := generateTestTileData(256, 256, 3, 1)
	dst := make([]uint8, 256*256*3)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		decodeSamples(dst, data, binary.LittleEndian)
	}
}

func BenchmarkDecodeSamples_16bit(b *testing.B) {
	data := generateTestTileData(256, 256, 3, 2)
	dst := make([]uint16, 256*256*3)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		decodeSamples(dst, data, binary.BigEndian)
	}
}

// =============================================================================
// Benchmarks for region reads (flat raster output)
// =============================================================================

func BenchmarkReadRegion_Small(b *testing.B) {
	benchmarkReadRegion(b, Rect{Y1: 100, X1: 100, Y2: 164, X2: 164})
}

func BenchmarkReadRegion_Large(b *testing.B) {
	benchmarkReadRegion(b, Rect{Y1: 0, X1: 0, Y2: 1024, X2: 1024})
}

func benchmarkReadRegion(b *testing.B, r Rect) {
	path := createBenchmarkFile(b, 1024, 256, 3)
	f, err := Open(path)
	if err != nil {
		b.Fatalf("Failed to open file: %v", err)
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if _, err := ReadRegion[uint8](f, 0, r); err != nil {
			b.Fatalf("ReadRegion failed: %v", err)
		}
	}
}

// =============================================================================
// Benchmarks for pixel access patterns (flat array with accessor methods)
// =============================================================================

func BenchmarkPixelAccess_Sequential(b *testing.B) {
	r := &Raster[uint8]{Pix: generateTestTileData(256, 256, 3, 1), Width: 256, Height: 256, Samples: 3}

	b.ResetTimer()
	b.ReportAllocs()

	var sum uint64
	for i := 0; i < b.N; i++ {
		sum = 0
		for y := 0; y < r.Height; y++ {
			for x := 0; x < r.Width; x++ {
				for s := 0; s < r.Samples; s++ {
					sum += uint64(r.At(x, y, s))
				}
			}
		}
	}
	_ = sum
}

func BenchmarkPixelAccess_SequentialDirect(b *testing.B) {
	r := &Raster[uint8]{Pix: generateTestTileData(256, 256, 3, 1), Width: 256, Height: 256, Samples: 3}

	b.ResetTimer()
	b.ReportAllocs()

	var sum uint64
	for i := 0; i < b.N; i++ {
		sum = 0
		// Direct array access is fastest
		for _, v := range r.Pix {
			sum += uint64(v)
		}
	}
	_ = sum
}

// =============================================================================
// Benchmarks for byte buffer operations
// =============================================================================

func BenchmarkByteBufferAlloc(b *testing.B) {
	size := 256 * 256 * 3 // Typical tile size

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		buf := make([]byte, size)
		_ = buf
	}
}

func BenchmarkByteBufferPooled(b *testing.B) {
	size := 256 * 256 * 3 // Typical tile size

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		buf := getBuffer(size)
		_ = buf
		putBuffer(buf)
	}
}

// =============================================================================
// Benchmarks for pyramid construction
// =============================================================================

func BenchmarkDownsampleLevel(b *testing.B) {
	path := createBenchmarkFile(b, 1024, 256, 3)
	c, err := openContainer(path, true, nil)
	if err != nil {
		b.Fatalf("Failed to open container: %v", err)
	}
	defer c.Close()
	d := Descriptor{ImageWidth: 512, ImageLength: 512, SamplesPerPixel: 3, TileWidth: 256, TileLength: 256}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if err := downsampleLevel(c, 0, d, 4); err != nil {
			b.Fatalf("downsampleLevel failed: %v", err)
		}
	}
}

// =============================================================================
// Benchmark for TIFF parsing
// =============================================================================

func BenchmarkContainer_Open(b *testing.B) {
	path := createBenchmarkFile(b, 1024, 256, 3)
	data, err := os.ReadFile(path)
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if _, err := newContainer(bytes.NewReader(data), int64(len(data)), nil); err != nil {
			b.Fatalf("Failed to parse container: %v", err)
		}
	}
}

// =============================================================================
// Parallel vs Sequential comparison benchmarks
// =============================================================================

func BenchmarkSequentialTileProcessing(b *testing.B) {
	benchmarkTileProcessing(b, 1)
}

func BenchmarkParallelTileProcessing(b *testing.B) {
	benchmarkTileProcessing(b, 0)
}

func benchmarkTileProcessing(b *testing.B, workers int) {
	tiles := make([][]byte, 16)
	for i := range tiles {
		tiles[i] = generateTestTileData(256, 256, 3, 1)
	}
	results := make([]uint64, len(tiles))
	indices := make([]int, len(tiles))
	for i := range indices {
		indices[i] = i
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		forEach(workers, indices, func(idx int) error {
			sum := uint64(0)
			for _, v := range tiles[idx] {
				sum += uint64(v)
			}
			results[idx] = sum
			return nil
		})
	}
}
