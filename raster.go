package ptiff

import (
	"encoding/binary"
	"fmt"
)

// Sample is the set of pixel component types the engine reads and writes.
type Sample interface {
	~uint8 | ~uint16
}

// Raster is an interleaved (chunky) pixel buffer. Sample s of pixel (x, y)
// lives at Pix[(y*Width+x)*Samples+s].
type Raster[T Sample] struct {
	Pix     []T
	Width   int
	Height  int
	Samples int
}

// NewRaster allocates a zero-filled raster.
func NewRaster[T Sample](width, height, samples int) *Raster[T] {
	return &Raster[T]{
		Pix:     make([]T, width*height*samples),
		Width:   width,
		Height:  height,
		Samples: samples,
	}
}

// Stride returns the number of samples in one row.
func (r *Raster[T]) Stride() int { return r.Width * r.Samples }

// Index returns the position of sample s of pixel (x, y) in Pix.
func (r *Raster[T]) Index(x, y, s int) int {
	return (y*r.Width+x)*r.Samples + s
}

// At returns sample s of pixel (x, y).
func (r *Raster[T]) At(x, y, s int) T { return r.Pix[r.Index(x, y, s)] }

// Set stores sample s of pixel (x, y).
func (r *Raster[T]) Set(x, y, s int, v T) { r.Pix[r.Index(x, y, s)] = v }

// Row returns the samples of row y.
func (r *Raster[T]) Row(y int) []T {
	return r.Pix[y*r.Stride() : (y+1)*r.Stride()]
}

// sampleBits returns the width of T in bits.
func sampleBits[T Sample]() int {
	if uint64(^T(0)) > 0xff {
		return 16
	}
	return 8
}

// checkLayout rejects pages whose sample layout T cannot hold.
func checkLayout[T Sample](d Descriptor) error {
	if d.PlanarConfig != PlanarChunky {
		return fmt.Errorf("%w: planar configuration %d", ErrUnsupportedLayout, d.PlanarConfig)
	}
	if bits := sampleBits[T](); d.BitsPerSample != bits {
		return fmt.Errorf("%w: page has %d-bit samples, raster holds %d-bit", ErrUnsupportedLayout, d.BitsPerSample, bits)
	}
	return nil
}

// decodeSamples converts stored sample bytes into dst.
func decodeSamples[T Sample](dst []T, src []byte, order binary.ByteOrder) {
	if sampleBits[T]() == 8 {
		for i := range dst {
			dst[i] = T(src[i])
		}
		return
	}
	for i := range dst {
		dst[i] = T(order.Uint16(src[2*i:]))
	}
}

// encodeSamples converts src into stored sample bytes.
func encodeSamples[T Sample](dst []byte, src []T, order binary.ByteOrder) {
	if sampleBits[T]() == 8 {
		for i, v := range src {
			dst[i] = byte(v)
		}
		return
	}
	for i, v := range src {
		order.PutUint16(dst[2*i:], uint16(v))
	}
}
