package ptiff

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/image/tiff/lzw"
)

var zstdDecoderPool = sync.Pool{
	New: func() any {
		dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1), zstd.WithDecoderLowmem(true))
		if err != nil {
			panic(err)
		}
		return dec
	},
}

// decompress decodes one stored tile or strip. The result always holds
// exactly expected bytes; short chunks are zero padded.
func decompress(compression uint16, data []byte, expected int) ([]byte, error) {
	var out []byte
	switch compression {
	case CompressionNone:
		out = data

	case CompressionLZW:
		if len(data) == expected {
			// stored raw despite the tag
			out = append([]byte(nil), data...)
			break
		}
		r := lzw.NewReader(bytes.NewReader(data), lzw.MSB, 8)
		decoded, err := io.ReadAll(r)
		r.Close()
		if err != nil && len(decoded) < expected {
			return nil, fmt.Errorf("failed to decompress LZW chunk (%d bytes, expected %d): %w", len(data), expected, err)
		}
		out = decoded

	case CompressionDeflate, CompressionAdobeDeflate:
		r, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to open deflate chunk: %w", err)
		}
		decoded, err := io.ReadAll(r)
		r.Close()
		if err != nil && len(decoded) < expected {
			return nil, fmt.Errorf("failed to decompress deflate chunk: %w", err)
		}
		out = decoded

	case CompressionZSTD:
		dec := zstdDecoderPool.Get().(*zstd.Decoder)
		decoded, err := dec.DecodeAll(data, make([]byte, 0, expected))
		zstdDecoderPool.Put(dec)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress zstd chunk: %w", err)
		}
		out = decoded

	default:
		return nil, fmt.Errorf("%w: compression %d", ErrUnsupportedLayout, compression)
	}

	switch {
	case len(out) > expected:
		out = out[:expected]
	case len(out) < expected:
		padded := make([]byte, expected)
		copy(padded, out)
		out = padded
	}
	return out, nil
}
