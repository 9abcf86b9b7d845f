package ptiff

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"sync"

	"golang.org/x/exp/mmap"
)

// Store is the page-addressable container the region and pyramid engines
// work against. Tile and row data is decoded and returned at its full size;
// callers must not modify returned slices.
type Store interface {
	PageCount() int
	Descriptor(page int) (Descriptor, error)
	ByteOrder() binary.ByteOrder
	ReadTile(page, tx, ty int) ([]byte, error)
	ReadRow(page, row int) ([]byte, error)
	WriteTile(page, tx, ty int, data []byte) error
	WriteRow(page, row int, data []byte) error
	BeginPage(d Descriptor) (int, error)
	CommitPage(page int) error
}

// pageLayout tracks where the chunks of a page live.
type pageLayout struct {
	desc      Descriptor
	err       error
	ifd       *ifd // nil for pages begun through this handle
	predictor uint64
	offsets   []uint64
	counts    []uint64
	committed bool
}

// Container is a TIFF file opened for page I/O. All access to the
// underlying file is serialized; decoding happens outside the lock.
type Container struct {
	mu         sync.Mutex
	r          io.ReaderAt
	file       *os.File // nil when read-only
	closer     io.Closer
	tr         *tiffReader
	size       int64
	nextPtrPos int64
	dir        Directory
	pages      []*pageLayout
	cache      *chunkCache
}

// createContainer writes an empty container to path, replacing any file
// already there.
func createContainer(path string, order binary.ByteOrder, big bool) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return ioError("create "+path, err)
	}
	if _, err := f.Write(writeHeader(order, big)); err != nil {
		f.Close()
		return ioError("write header", err)
	}
	if err := f.Close(); err != nil {
		return ioError("close "+path, err)
	}
	return nil
}

// openContainer opens a local container. Read-only handles are memory
// mapped.
func openContainer(path string, writable bool, cache *chunkCache) (*Container, error) {
	if writable {
		f, err := os.OpenFile(path, os.O_RDWR, 0)
		if err != nil {
			return nil, openError(path, err)
		}
		st, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, ioError("stat "+path, err)
		}
		c, err := newContainer(f, st.Size(), cache)
		if err != nil {
			f.Close()
			return nil, err
		}
		c.file = f
		c.closer = f
		return c, nil
	}

	m, err := mmap.Open(path)
	if err != nil {
		return nil, openError(path, err)
	}
	c, err := newContainer(m, int64(m.Len()), cache)
	if err != nil {
		m.Close()
		return nil, err
	}
	c.closer = m
	return c, nil
}

func openError(path string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return ioError("open "+path, err)
}

// newContainer parses the directory chain of r.
func newContainer(r io.ReaderAt, size int64, cache *chunkCache) (*Container, error) {
	tr, err := newTIFFReader(r)
	if err != nil {
		return nil, err
	}
	ifds, err := tr.readIFDs()
	if err != nil {
		return nil, err
	}

	c := &Container{
		r:          r,
		tr:         tr,
		size:       size,
		nextPtrPos: tr.headerPtrPos(),
		cache:      cache,
	}
	for _, d := range ifds {
		desc, derr := tr.descriptor(d)
		p := &pageLayout{desc: desc, err: derr, ifd: d, committed: true}
		if derr == nil {
			if p.predictor, err = tr.uint(d, tagPredictor, 1); err != nil {
				p.err = err
			}
		}
		c.dir.load(desc)
		c.pages = append(c.pages, p)
		c.nextPtrPos = d.nextPtrPos
	}
	return c, nil
}

// Close releases the file handle.
func (c *Container) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}

// PageCount returns the number of pages, including pages begun but not yet
// committed through this handle.
func (c *Container) PageCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dir.Len()
}

// Version returns 42 for classic TIFF and 43 for BigTIFF.
func (c *Container) Version() int {
	if c.tr.big {
		return bigTIFFVersion
	}
	return tiffVersion
}

// ByteOrder returns the byte order of stored samples.
func (c *Container) ByteOrder() binary.ByteOrder { return c.tr.byteOrder }

// Directory returns a snapshot of the page descriptors.
func (c *Container) Directory() *Directory {
	c.mu.Lock()
	defer c.mu.Unlock()
	return &Directory{pages: c.dir.Pages()}
}

// Descriptor returns the layout of a page.
func (c *Container) Descriptor(page int) (Descriptor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, err := c.dir.Get(page)
	if err != nil {
		return d, err
	}
	if p := c.pages[page]; p.err != nil {
		return d, fmt.Errorf("page %d: %w", page, p.err)
	}
	return d, nil
}

// ReadTile returns decoded tile (tx, ty) of a tiled page.
func (c *Container) ReadTile(page, tx, ty int) ([]byte, error) {
	d, err := c.Descriptor(page)
	if err != nil {
		return nil, err
	}
	if !d.IsTiled() {
		return nil, fmt.Errorf("%w: page %d is stored as scanlines", ErrUnsupportedLayout, page)
	}
	if tx < 0 || ty < 0 || tx >= d.TilesAcross() || ty >= d.TilesDown() {
		return nil, fmt.Errorf("%w: tile (%d, %d) of page %d", ErrIndexOutOfRange, tx, ty, page)
	}
	return c.readChunk(page, ty*d.TilesAcross()+tx, d.TileBytes())
}

// ReadRow returns decoded row of a scanline page. Strips of several rows are
// decoded whole.
func (c *Container) ReadRow(page, row int) ([]byte, error) {
	d, err := c.Descriptor(page)
	if err != nil {
		return nil, err
	}
	if d.IsTiled() {
		return nil, fmt.Errorf("%w: page %d is tiled", ErrUnsupportedLayout, page)
	}
	if row < 0 || row >= d.ImageLength {
		return nil, fmt.Errorf("%w: row %d of page %d", ErrIndexOutOfRange, row, page)
	}
	rps := d.rowsPerStrip()
	strip := row / rps
	rows := min(rps, d.ImageLength-strip*rps)
	data, err := c.readChunk(page, strip, rows*d.RowBytes())
	if err != nil {
		return nil, err
	}
	off := (row - strip*rps) * d.RowBytes()
	return data[off : off+d.RowBytes()], nil
}

// readChunk reads and decodes one tile or strip. The stored bytes are
// always read; only the decoding of compressed chunks is cached.
func (c *Container) readChunk(page, index, expected int) ([]byte, error) {
	c.mu.Lock()
	p := c.pages[page]
	if err := c.loadChunks(p); err != nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("page %d: %w", page, err)
	}
	if index >= len(p.offsets) {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: chunk %d of page %d", ErrIndexOutOfRange, index, page)
	}
	compression := p.desc.Compression
	if compression != CompressionNone && p.predictor != 1 {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: predictor %d", ErrUnsupportedLayout, p.predictor)
	}
	offset, count := p.offsets[index], p.counts[index]
	if count > math.MaxInt32 {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: chunk %d of page %d holds %d bytes", ErrUnsupportedLayout, index, page, count)
	}

	var raw []byte
	if compression == CompressionNone {
		raw = make([]byte, count)
	} else {
		raw = getBuffer(int(count))
	}
	if count > 0 {
		if n, err := c.r.ReadAt(raw, int64(offset)); n < len(raw) {
			c.mu.Unlock()
			if compression != CompressionNone {
				putBuffer(raw)
			}
			return nil, ioError(fmt.Sprintf("read chunk %d of page %d", index, page), err)
		}
	}
	c.mu.Unlock()

	if compression == CompressionNone {
		return decompress(compression, raw, expected)
	}
	defer putBuffer(raw)

	key := chunkKey{page: page, index: index, offset: offset, count: count}
	if data, ok := c.cache.get(key, raw, expected); ok {
		return data, nil
	}
	data, err := decompress(compression, raw, expected)
	if err != nil {
		return nil, fmt.Errorf("failed to decode chunk %d of page %d: %w", index, page, err)
	}
	c.cache.add(key, raw, data)
	return data, nil
}

// loadChunks reads the offset arrays of a parsed page on first use.
// Callers hold c.mu.
func (c *Container) loadChunks(p *pageLayout) error {
	if p.offsets != nil {
		return nil
	}
	if p.err != nil {
		return p.err
	}
	offTag, countTag, err := chunkTags(p.ifd, p.desc.IsTiled())
	if err != nil {
		return err
	}
	offsets, err := c.tr.uints(offTag)
	if err != nil {
		return fmt.Errorf("failed to read chunk offsets: %w", err)
	}
	counts, err := c.tr.uints(countTag)
	if err != nil {
		return fmt.Errorf("failed to read chunk byte counts: %w", err)
	}
	if n := p.desc.chunkCount(); len(offsets) < n || len(counts) < n {
		return fmt.Errorf("%w: %d offsets and %d byte counts for %d chunks", ErrUnsupportedLayout, len(offsets), len(counts), n)
	}
	p.offsets, p.counts = offsets, counts
	return nil
}

// WriteTile overwrites tile (tx, ty) of an uncompressed tiled page.
func (c *Container) WriteTile(page, tx, ty int, data []byte) error {
	if c.file == nil {
		return ErrReadOnly
	}
	d, err := c.Descriptor(page)
	if err != nil {
		return err
	}
	if !d.IsTiled() {
		return fmt.Errorf("%w: page %d is stored as scanlines", ErrUnsupportedLayout, page)
	}
	if tx < 0 || ty < 0 || tx >= d.TilesAcross() || ty >= d.TilesDown() {
		return fmt.Errorf("%w: tile (%d, %d) of page %d", ErrIndexOutOfRange, tx, ty, page)
	}
	if len(data) != d.TileBytes() {
		return fmt.Errorf("%w: tile holds %d bytes, got %d", ErrInvalidRegion, d.TileBytes(), len(data))
	}
	return c.writeChunk(page, ty*d.TilesAcross()+tx, 0, data)
}

// WriteRow overwrites one row of an uncompressed scanline page.
func (c *Container) WriteRow(page, row int, data []byte) error {
	if c.file == nil {
		return ErrReadOnly
	}
	d, err := c.Descriptor(page)
	if err != nil {
		return err
	}
	if d.IsTiled() {
		return fmt.Errorf("%w: page %d is tiled", ErrUnsupportedLayout, page)
	}
	if row < 0 || row >= d.ImageLength {
		return fmt.Errorf("%w: row %d of page %d", ErrIndexOutOfRange, row, page)
	}
	if len(data) != d.RowBytes() {
		return fmt.Errorf("%w: row holds %d bytes, got %d", ErrInvalidRegion, d.RowBytes(), len(data))
	}
	rps := d.rowsPerStrip()
	return c.writeChunk(page, row/rps, (row%rps)*d.RowBytes(), data)
}

// writeChunk writes data at byte position within of a chunk. Chunks keep
// the footprint they were given when the page was laid out.
func (c *Container) writeChunk(page, index, within int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.pages[page]
	if p.desc.Compression != CompressionNone {
		return fmt.Errorf("%w: page %d is compressed and cannot be updated in place", ErrConflict, page)
	}
	if err := c.loadChunks(p); err != nil {
		return fmt.Errorf("page %d: %w", page, err)
	}
	if uint64(within+len(data)) > p.counts[index] {
		return fmt.Errorf("%w: chunk %d of page %d holds %d bytes", ErrConflict, index, page, p.counts[index])
	}
	if _, err := c.file.WriteAt(data, int64(p.offsets[index])+int64(within)); err != nil {
		return ioError(fmt.Sprintf("write chunk %d of page %d", index, page), err)
	}
	return nil
}

// BeginPage appends a page and reserves zero-filled space for every chunk.
// The page is readable and writable through this handle at once and becomes
// part of the file when committed.
func (c *Container) BeginPage(d Descriptor) (int, error) {
	if c.file == nil {
		return 0, ErrReadOnly
	}
	d = d.withDefaults()
	if err := d.checkWritable(); err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.dir.canAppend(d); err != nil {
		return 0, err
	}

	chunkBytes := d.RowBytes()
	if d.IsTiled() {
		chunkBytes = d.TileBytes()
	}
	n := d.chunkCount()
	start := align2(c.size)
	end := start + int64(n)*int64(chunkBytes)
	if !c.tr.big && end > math.MaxUint32 {
		return 0, fmt.Errorf("%w: page needs %d bytes, beyond classic TIFF addressing; use BigTIFF", ErrUnsupportedLayout, end)
	}
	if err := c.file.Truncate(end); err != nil {
		return 0, ioError("reserve page data", err)
	}

	p := &pageLayout{
		desc:      d,
		predictor: 1,
		offsets:   make([]uint64, n),
		counts:    make([]uint64, n),
	}
	for i := range p.offsets {
		p.offsets[i] = uint64(start) + uint64(i*chunkBytes)
		p.counts[i] = uint64(chunkBytes)
	}
	c.size = end
	page, err := c.dir.Append(d)
	if err != nil {
		return 0, err
	}
	c.pages = append(c.pages, p)
	return page, nil
}

// CommitPage writes the directory of a begun page and links it at the end
// of the directory chain.
func (c *Container) CommitPage(page int) error {
	if c.file == nil {
		return ErrReadOnly
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if page < 0 || page >= len(c.pages) {
		return fmt.Errorf("%w: page %d of %d", ErrIndexOutOfRange, page, len(c.pages))
	}
	p := c.pages[page]
	if p.committed {
		return fmt.Errorf("%w: page %d is already committed", ErrConflict, page)
	}

	pos := align2(c.size)
	buf, nextAt, err := encodeIFD(pageEntries(p.desc, p.offsets, p.counts, c.tr.big), pos, c.tr.byteOrder, c.tr.big)
	if err != nil {
		return err
	}
	if !c.tr.big && pos+int64(len(buf)) > math.MaxUint32 {
		return fmt.Errorf("%w: directory beyond classic TIFF addressing; use BigTIFF", ErrUnsupportedLayout)
	}
	if _, err := c.file.WriteAt(buf, pos); err != nil {
		return ioError("write directory", err)
	}

	var ptr []byte
	if c.tr.big {
		ptr = make([]byte, 8)
		c.tr.byteOrder.PutUint64(ptr, uint64(pos))
	} else {
		ptr = make([]byte, 4)
		c.tr.byteOrder.PutUint32(ptr, uint32(pos))
	}
	if _, err := c.file.WriteAt(ptr, c.nextPtrPos); err != nil {
		return ioError("link directory", err)
	}

	c.nextPtrPos = pos + int64(nextAt)
	c.size = pos + int64(len(buf))
	p.committed = true
	return nil
}

func align2(n int64) int64 {
	return (n + 1) &^ 1
}
