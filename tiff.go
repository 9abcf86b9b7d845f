package ptiff

import (
	"encoding/binary"
	"fmt"
	"io"
)

// TIFF constants
const (
	tiffMagicLE    = 0x4949 // "II" little-endian
	tiffMagicBE    = 0x4D4D // "MM" big-endian
	tiffVersion    = 42
	bigTIFFVersion = 43
)

// Compression types
const (
	CompressionNone         uint16 = 1
	CompressionLZW          uint16 = 5
	CompressionDeflate      uint16 = 8
	CompressionAdobeDeflate uint16 = 32946
	CompressionZSTD         uint16 = 50000
)

// Tag IDs used by the container.
const (
	tagNewSubfileType  = 254
	tagImageWidth      = 256
	tagImageLength     = 257
	tagBitsPerSample   = 258
	tagCompression     = 259
	tagPhotometric     = 262
	tagStripOffsets    = 273
	tagSamplesPerPixel = 277
	tagRowsPerStrip    = 278
	tagStripByteCounts = 279
	tagMinSampleValue  = 280
	tagMaxSampleValue  = 281
	tagPlanarConfig    = 284
	tagPageNumber      = 297
	tagPredictor       = 317
	tagTileWidth       = 322
	tagTileLength      = 323
	tagTileOffsets     = 324
	tagTileByteCounts  = 325
	tagExtraSamples    = 338
	tagSampleFormat    = 339
)

// dataType is the field type of a tag entry.
type dataType uint16

const (
	dtByte      dataType = 1
	dtASCII     dataType = 2
	dtShort     dataType = 3
	dtLong      dataType = 4
	dtRational  dataType = 5
	dtSByte     dataType = 6
	dtUndefined dataType = 7
	dtSShort    dataType = 8
	dtSLong     dataType = 9
	dtSRational dataType = 10
	dtFloat     dataType = 11
	dtDouble    dataType = 12
	dtIFD       dataType = 13
	dtLong8     dataType = 16
	dtSLong8    dataType = 17
	dtIFD8      dataType = 18
)

// size returns the size in bytes of one value of the type.
func (t dataType) size() int {
	switch t {
	case dtByte, dtASCII, dtSByte, dtUndefined:
		return 1
	case dtShort, dtSShort:
		return 2
	case dtLong, dtSLong, dtFloat, dtIFD:
		return 4
	case dtRational, dtSRational, dtDouble, dtLong8, dtSLong8, dtIFD8:
		return 8
	default:
		return 1
	}
}

// tag is one directory entry. inline holds the raw value field, which is the
// value itself when it fits and the value offset otherwise.
type tag struct {
	ID     uint16
	Type   dataType
	Count  uint64
	inline []byte
}

// ifd is one parsed image file directory.
type ifd struct {
	Offset int64
	Tags   map[uint16]*tag
	Next   uint64
	// position of the next-IFD pointer, patched when a page is appended after this one
	nextPtrPos int64
}

// tiffReader parses directories from a classic or BigTIFF container.
type tiffReader struct {
	r         io.ReaderAt
	byteOrder binary.ByteOrder
	big       bool
	firstIFD  uint64
}

// newTIFFReader reads and checks the file header.
func newTIFFReader(r io.ReaderAt) (*tiffReader, error) {
	header := make([]byte, 16)
	n, err := r.ReadAt(header, 0)
	if n < 8 {
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		return nil, ioError("read TIFF header", err)
	}

	tr := &tiffReader{r: r}
	switch binary.LittleEndian.Uint16(header[0:2]) {
	case tiffMagicLE:
		tr.byteOrder = binary.LittleEndian
	case tiffMagicBE:
		tr.byteOrder = binary.BigEndian
	default:
		return nil, fmt.Errorf("%w: invalid TIFF magic: 0x%04x", ErrUnsupportedLayout, binary.LittleEndian.Uint16(header[0:2]))
	}

	switch version := tr.byteOrder.Uint16(header[2:4]); version {
	case tiffVersion:
		tr.firstIFD = uint64(tr.byteOrder.Uint32(header[4:8]))
	case bigTIFFVersion:
		if n < 16 {
			return nil, ioError("read BigTIFF header", io.ErrUnexpectedEOF)
		}
		if tr.byteOrder.Uint16(header[4:6]) != 8 {
			return nil, fmt.Errorf("%w: BigTIFF offset size %d", ErrUnsupportedLayout, tr.byteOrder.Uint16(header[4:6]))
		}
		tr.big = true
		tr.firstIFD = tr.byteOrder.Uint64(header[8:16])
	default:
		return nil, fmt.Errorf("%w: invalid TIFF version: %d", ErrUnsupportedLayout, version)
	}
	return tr, nil
}

// headerPtrPos returns the position of the first-IFD pointer.
func (tr *tiffReader) headerPtrPos() int64 {
	if tr.big {
		return 8
	}
	return 4
}

// entrySize returns the size of one directory entry.
func (tr *tiffReader) entrySize() int {
	if tr.big {
		return 20
	}
	return 12
}

// readIFDs follows the directory chain from the header.
func (tr *tiffReader) readIFDs() ([]*ifd, error) {
	var ifds []*ifd
	seen := make(map[uint64]bool)
	for offset := tr.firstIFD; offset != 0; {
		if seen[offset] {
			return nil, fmt.Errorf("%w: IFD chain loops at offset %d", ErrUnsupportedLayout, offset)
		}
		seen[offset] = true

		d, err := tr.readIFD(int64(offset))
		if err != nil {
			return nil, fmt.Errorf("failed to read IFD %d: %w", len(ifds), err)
		}
		ifds = append(ifds, d)
		offset = d.Next
	}
	return ifds, nil
}

// readIFD reads a single directory and its entries in two reads.
func (tr *tiffReader) readIFD(offset int64) (*ifd, error) {
	countSize := 2
	ptrSize := 4
	if tr.big {
		countSize, ptrSize = 8, 8
	}

	countBuf := make([]byte, countSize)
	if n, err := tr.r.ReadAt(countBuf, offset); n < countSize {
		return nil, ioError("read tag count", err)
	}
	var count uint64
	if tr.big {
		count = tr.byteOrder.Uint64(countBuf)
	} else {
		count = uint64(tr.byteOrder.Uint16(countBuf))
	}
	if count > 4096 {
		return nil, fmt.Errorf("%w: IFD at %d claims %d entries", ErrUnsupportedLayout, offset, count)
	}

	entrySize := tr.entrySize()
	buf := make([]byte, int(count)*entrySize+ptrSize)
	if n, err := tr.r.ReadAt(buf, offset+int64(countSize)); n < len(buf) {
		return nil, ioError("read IFD structure", err)
	}

	d := &ifd{
		Offset:     offset,
		Tags:       make(map[uint16]*tag, count),
		nextPtrPos: offset + int64(countSize) + int64(count)*int64(entrySize),
	}
	for i := 0; i < int(count); i++ {
		e := buf[i*entrySize : (i+1)*entrySize]
		t := &tag{
			ID:   tr.byteOrder.Uint16(e[0:2]),
			Type: dataType(tr.byteOrder.Uint16(e[2:4])),
		}
		if tr.big {
			t.Count = tr.byteOrder.Uint64(e[4:12])
			t.inline = e[12:20]
		} else {
			t.Count = uint64(tr.byteOrder.Uint32(e[4:8]))
			t.inline = e[8:12]
		}
		d.Tags[t.ID] = t
	}

	next := buf[len(buf)-ptrSize:]
	if tr.big {
		d.Next = tr.byteOrder.Uint64(next)
	} else {
		d.Next = uint64(tr.byteOrder.Uint32(next))
	}
	return d, nil
}

// uints returns the integer values of a tag, reading them from their offset
// when they do not fit in the entry.
func (tr *tiffReader) uints(t *tag) ([]uint64, error) {
	size := t.Type.size()
	total := uint64(size) * t.Count
	if t.Count > 1<<28 {
		return nil, fmt.Errorf("%w: tag %d has %d values", ErrUnsupportedLayout, t.ID, t.Count)
	}

	raw := t.inline
	if total > uint64(len(t.inline)) {
		var offset uint64
		if tr.big {
			offset = tr.byteOrder.Uint64(t.inline)
		} else {
			offset = uint64(tr.byteOrder.Uint32(t.inline))
		}
		raw = make([]byte, total)
		if n, err := tr.r.ReadAt(raw, int64(offset)); uint64(n) < total {
			return nil, ioError(fmt.Sprintf("read values of tag %d", t.ID), err)
		}
	}

	values := make([]uint64, t.Count)
	for i := range values {
		b := raw[i*size:]
		switch t.Type {
		case dtByte, dtUndefined, dtASCII:
			values[i] = uint64(b[0])
		case dtSByte:
			values[i] = uint64(int8(b[0]))
		case dtShort:
			values[i] = uint64(tr.byteOrder.Uint16(b))
		case dtSShort:
			values[i] = uint64(int16(tr.byteOrder.Uint16(b)))
		case dtLong, dtIFD:
			values[i] = uint64(tr.byteOrder.Uint32(b))
		case dtSLong:
			values[i] = uint64(int32(tr.byteOrder.Uint32(b)))
		case dtLong8, dtSLong8, dtIFD8:
			values[i] = tr.byteOrder.Uint64(b)
		default:
			return nil, fmt.Errorf("%w: tag %d has non-integer type %d", ErrUnsupportedLayout, t.ID, t.Type)
		}
	}
	return values, nil
}

// uint returns the first value of a tag, or def when the tag is absent.
func (tr *tiffReader) uint(d *ifd, id uint16, def uint64) (uint64, error) {
	t, ok := d.Tags[id]
	if !ok || t.Count == 0 {
		return def, nil
	}
	values, err := tr.uints(t)
	if err != nil {
		return 0, err
	}
	return values[0], nil
}

// descriptor extracts the page layout of a directory. The returned
// descriptor is filled as far as possible even when err is non-nil.
func (tr *tiffReader) descriptor(d *ifd) (Descriptor, error) {
	var desc Descriptor
	for _, id := range []uint16{tagImageWidth, tagImageLength, tagPhotometric} {
		if _, ok := d.Tags[id]; !ok {
			return desc, fmt.Errorf("%w: tag %d", ErrMissingRequiredField, id)
		}
	}
	_, hasTW := d.Tags[tagTileWidth]
	_, hasTL := d.Tags[tagTileLength]
	_, hasTO := d.Tags[tagTileOffsets]
	if (hasTW || hasTL || hasTO) && !(hasTW && hasTL) {
		return desc, fmt.Errorf("%w: tiled page needs both TileWidth and TileLength", ErrMissingRequiredField)
	}

	fields := []struct {
		id  uint16
		def uint64
		set func(uint64)
	}{
		{tagNewSubfileType, 0, func(v uint64) { desc.SubfileType = uint32(v) }},
		{tagImageWidth, 0, func(v uint64) { desc.ImageWidth = int(v) }},
		{tagImageLength, 0, func(v uint64) { desc.ImageLength = int(v) }},
		{tagBitsPerSample, 1, func(v uint64) { desc.BitsPerSample = int(v) }},
		{tagCompression, uint64(CompressionNone), func(v uint64) { desc.Compression = uint16(v) }},
		{tagPhotometric, 0, func(v uint64) { desc.Photometric = uint16(v) }},
		{tagSamplesPerPixel, 1, func(v uint64) { desc.SamplesPerPixel = int(v) }},
		{tagRowsPerStrip, 1<<32 - 1, func(v uint64) { desc.RowsPerStrip = int(min(v, 1<<31-1)) }},
		{tagMinSampleValue, 0, func(v uint64) { desc.MinSampleValue = int(v) }},
		{tagMaxSampleValue, 0, func(v uint64) { desc.MaxSampleValue = int(v) }},
		{tagPlanarConfig, uint64(PlanarChunky), func(v uint64) { desc.PlanarConfig = uint16(v) }},
		{tagTileWidth, 0, func(v uint64) { desc.TileWidth = int(v) }},
		{tagTileLength, 0, func(v uint64) { desc.TileLength = int(v) }},
		{tagSampleFormat, uint64(SampleFormatUint), func(v uint64) { desc.SampleFormat = uint16(v) }},
	}
	for _, f := range fields {
		v, err := tr.uint(d, f.id, f.def)
		if err != nil {
			return desc, err
		}
		f.set(v)
	}
	if desc.MaxSampleValue == 0 && desc.BitsPerSample < 32 {
		desc.MaxSampleValue = 1<<desc.BitsPerSample - 1
	}

	if t, ok := d.Tags[tagPageNumber]; ok && t.Count >= 2 {
		values, err := tr.uints(t)
		if err != nil {
			return desc, err
		}
		desc.PageNumber, desc.PageCount = int(values[0]), int(values[1])
	}
	if desc.ImageWidth <= 0 || desc.ImageLength <= 0 {
		return desc, fmt.Errorf("%w: image is %dx%d", ErrMissingRequiredField, desc.ImageWidth, desc.ImageLength)
	}
	return desc, nil
}

// chunkTags returns the offset and byte count tags of a page.
func chunkTags(d *ifd, tiled bool) (offsets, counts *tag, err error) {
	offsetID, countID := uint16(tagStripOffsets), uint16(tagStripByteCounts)
	if tiled {
		offsetID, countID = tagTileOffsets, tagTileByteCounts
	}
	offsets, ok := d.Tags[offsetID]
	if !ok {
		return nil, nil, fmt.Errorf("%w: tag %d", ErrMissingRequiredField, offsetID)
	}
	counts, ok = d.Tags[countID]
	if !ok {
		return nil, nil, fmt.Errorf("%w: tag %d", ErrMissingRequiredField, countID)
	}
	return offsets, counts, nil
}
