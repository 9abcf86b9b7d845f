package ptiff

import (
	"bytes"
	"errors"
	"testing"

	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

func TestDecompress(t *testing.T) {
	raw := bytes.Repeat([]byte("tile data "), 100)

	var deflated bytes.Buffer
	w := zlib.NewWriter(&deflated)
	w.Write(raw)
	w.Close()

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatal(err)
	}
	zstded := enc.EncodeAll(raw, nil)
	enc.Close()

	tests := []struct {
		name        string
		compression uint16
		data        []byte
	}{
		{"none", CompressionNone, raw},
		{"lzw stored raw", CompressionLZW, raw},
		{"deflate", CompressionDeflate, deflated.Bytes()},
		{"adobe deflate", CompressionAdobeDeflate, deflated.Bytes()},
		{"zstd", CompressionZSTD, zstded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decompress(tt.compression, tt.data, len(raw))
			if err != nil {
				t.Fatalf("decompress failed: %v", err)
			}
			if !bytes.Equal(got, raw) {
				t.Error("Decoded chunk differs from the original")
			}
		})
	}
}

func TestDecompressPadsShortChunks(t *testing.T) {
	got, err := decompress(CompressionNone, []byte{1, 2, 3}, 6)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte{1, 2, 3, 0, 0, 0}) {
		t.Errorf("Expected zero padding, got %v", got)
	}
	got, err = decompress(CompressionNone, []byte{1, 2, 3, 4}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte{1, 2}) {
		t.Errorf("Expected truncation, got %v", got)
	}
}

func TestDecompressUnsupported(t *testing.T) {
	// 7 is JPEG
	if _, err := decompress(7, []byte{0xff, 0xd8}, 16); !errors.Is(err, ErrUnsupportedLayout) {
		t.Errorf("Expected ErrUnsupportedLayout, got %v", err)
	}
	if _, err := decompress(CompressionZSTD, []byte("not zstd"), 16); err == nil {
		t.Error("Expected an error for a corrupt zstd chunk")
	}
}
