package ptiff

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

// entry is a directory entry waiting to be encoded.
type entry struct {
	id     uint16
	typ    dataType
	values []uint64
}

// writeHeader returns the header of an empty container.
func writeHeader(order binary.ByteOrder, big bool) []byte {
	var header []byte
	if big {
		header = make([]byte, 16)
		order.PutUint16(header[2:4], bigTIFFVersion)
		order.PutUint16(header[4:6], 8)
	} else {
		header = make([]byte, 8)
		order.PutUint16(header[2:4], tiffVersion)
	}
	if order == binary.BigEndian {
		copy(header[0:2], "MM")
	} else {
		copy(header[0:2], "II")
	}
	return header
}

// pageEntries builds the directory entries of a page stored in chunks at
// the given offsets.
func pageEntries(d Descriptor, offsets, counts []uint64, big bool) []entry {
	spp := d.SamplesPerPixel
	repeat := func(v uint64) []uint64 {
		out := make([]uint64, spp)
		for i := range out {
			out[i] = v
		}
		return out
	}
	offsetType := dtLong
	if big {
		offsetType = dtLong8
	}

	entries := []entry{
		{tagNewSubfileType, dtLong, []uint64{uint64(d.SubfileType)}},
		{tagImageWidth, dtLong, []uint64{uint64(d.ImageWidth)}},
		{tagImageLength, dtLong, []uint64{uint64(d.ImageLength)}},
		{tagBitsPerSample, dtShort, repeat(uint64(d.BitsPerSample))},
		{tagCompression, dtShort, []uint64{uint64(d.Compression)}},
		{tagPhotometric, dtShort, []uint64{uint64(d.Photometric)}},
		{tagSamplesPerPixel, dtShort, []uint64{uint64(spp)}},
		{tagMinSampleValue, dtShort, repeat(uint64(d.MinSampleValue))},
		{tagMaxSampleValue, dtShort, repeat(uint64(d.MaxSampleValue))},
		{tagPlanarConfig, dtShort, []uint64{uint64(d.PlanarConfig)}},
		{tagSampleFormat, dtShort, repeat(uint64(d.SampleFormat))},
	}
	if d.PageCount > 0 {
		entries = append(entries, entry{tagPageNumber, dtShort, []uint64{uint64(d.PageNumber), uint64(d.PageCount)}})
	}
	if extra := extraSamples(d); extra > 0 {
		entries = append(entries, entry{tagExtraSamples, dtShort, make([]uint64, extra)})
		for i := range entries[len(entries)-1].values {
			entries[len(entries)-1].values[i] = 2 // unassociated alpha
		}
	}
	if d.IsTiled() {
		entries = append(entries,
			entry{tagTileWidth, dtLong, []uint64{uint64(d.TileWidth)}},
			entry{tagTileLength, dtLong, []uint64{uint64(d.TileLength)}},
			entry{tagTileOffsets, offsetType, offsets},
			entry{tagTileByteCounts, offsetType, counts},
		)
	} else {
		entries = append(entries,
			entry{tagRowsPerStrip, dtLong, []uint64{uint64(d.rowsPerStrip())}},
			entry{tagStripOffsets, offsetType, offsets},
			entry{tagStripByteCounts, offsetType, counts},
		)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].id < entries[j].id })
	return entries
}

// extraSamples returns the number of samples beyond the color channels.
func extraSamples(d Descriptor) int {
	switch d.Photometric {
	case PhotometricRGB:
		return max(d.SamplesPerPixel-3, 0)
	default:
		return max(d.SamplesPerPixel-1, 0)
	}
}

// encodeIFD lays out a directory to be written at pos. Values that do not
// fit in their entry follow the directory. It returns the encoded bytes and
// the position of the next-IFD pointer inside them.
func encodeIFD(entries []entry, pos int64, order binary.ByteOrder, big bool) ([]byte, int, error) {
	countSize, entrySize, ptrSize := 2, 12, 4
	if big {
		countSize, entrySize, ptrSize = 8, 20, 8
	}
	inlineSize := ptrSize

	head := countSize + len(entries)*entrySize + ptrSize
	buf := make([]byte, head)
	if big {
		order.PutUint64(buf, uint64(len(entries)))
	} else {
		order.PutUint16(buf, uint16(len(entries)))
	}

	for i, e := range entries {
		raw := make([]byte, len(e.values)*e.typ.size())
		for j, v := range e.values {
			switch e.typ.size() {
			case 2:
				if v > math.MaxUint16 {
					return nil, 0, fmt.Errorf("%w: tag %d value %d does not fit a SHORT", ErrUnsupportedLayout, e.id, v)
				}
				order.PutUint16(raw[j*2:], uint16(v))
			case 4:
				if v > math.MaxUint32 {
					return nil, 0, fmt.Errorf("%w: tag %d value %d needs BigTIFF", ErrUnsupportedLayout, e.id, v)
				}
				order.PutUint32(raw[j*4:], uint32(v))
			case 8:
				order.PutUint64(raw[j*8:], v)
			default:
				raw[j] = byte(v)
			}
		}

		at := countSize + i*entrySize
		order.PutUint16(buf[at:], e.id)
		order.PutUint16(buf[at+2:], uint16(e.typ))
		valueAt := at + 8
		if big {
			order.PutUint64(buf[at+4:], uint64(len(e.values)))
			valueAt = at + 12
		} else {
			order.PutUint32(buf[at+4:], uint32(len(e.values)))
		}

		if len(raw) <= inlineSize {
			copy(buf[valueAt:valueAt+inlineSize], raw)
			continue
		}
		if len(buf)%2 == 1 {
			buf = append(buf, 0)
		}
		offset := uint64(pos) + uint64(len(buf))
		if big {
			order.PutUint64(buf[valueAt:], offset)
		} else {
			if offset > math.MaxUint32 {
				return nil, 0, fmt.Errorf("%w: directory at %d needs BigTIFF", ErrUnsupportedLayout, pos)
			}
			order.PutUint32(buf[valueAt:], uint32(offset))
		}
		buf = append(buf, raw...)
	}
	return buf, head - ptrSize, nil
}
