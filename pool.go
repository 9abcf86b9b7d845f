package ptiff

import (
	"sync"
)

// Scratch buffers for compressed chunks and read-modify-write tiles.

// byteSlicePool pools byte slices of various sizes
type byteSlicePool struct {
	// Small buffers (up to 64KB) - 128x128 tiles and single rows
	small sync.Pool
	// Medium buffers (up to 256KB) - 256x256 gray or RGBA tiles
	medium sync.Pool
	// Large buffers (up to 1MB) - 512x512 tiles and 2x2 pyramid blocks
	large sync.Pool
	// XLarge buffers (up to 4MB) - blocks of 512x512 RGB tiles
	xlarge sync.Pool
}

const (
	smallBufferSize  = 64 * 1024
	mediumBufferSize = 256 * 1024
	largeBufferSize  = 1024 * 1024
	xlargeBufferSize = 4 * 1024 * 1024
)

func newSizedPool(size int) sync.Pool {
	return sync.Pool{
		New: func() any {
			buf := make([]byte, size)
			return &buf
		},
	}
}

var bufferPool = &byteSlicePool{
	small:  newSizedPool(smallBufferSize),
	medium: newSizedPool(mediumBufferSize),
	large:  newSizedPool(largeBufferSize),
	xlarge: newSizedPool(xlargeBufferSize),
}

// getBuffer returns a byte slice of the requested length from the pool.
// Its contents are undefined; use getZeroedBuffer when they must be zero.
func getBuffer(size int) []byte {
	var p *sync.Pool
	switch {
	case size <= smallBufferSize:
		p = &bufferPool.small
	case size <= mediumBufferSize:
		p = &bufferPool.medium
	case size <= largeBufferSize:
		p = &bufferPool.large
	case size <= xlargeBufferSize:
		p = &bufferPool.xlarge
	default:
		return make([]byte, size)
	}
	bufPtr := p.Get().(*[]byte)
	return (*bufPtr)[:size]
}

// getZeroedBuffer returns a pooled slice with every byte cleared.
func getZeroedBuffer(size int) []byte {
	buf := getBuffer(size)
	clear(buf)
	return buf
}

// putBuffer returns a buffer to the pool. The buffer must not be used after.
func putBuffer(buf []byte) {
	c := cap(buf)
	buf = buf[:c]
	switch c {
	case smallBufferSize:
		bufferPool.small.Put(&buf)
	case mediumBufferSize:
		bufferPool.medium.Put(&buf)
	case largeBufferSize:
		bufferPool.large.Put(&buf)
	case xlargeBufferSize:
		bufferPool.xlarge.Put(&buf)
	}
	// non-standard sizes are left to the GC
}
