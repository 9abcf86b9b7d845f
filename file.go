package ptiff

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// File is a pyramidal TIFF on local disk or behind an HTTP URL. A File holds
// no open handle: every operation opens the container, works on it and
// closes it before returning. Decodings of compressed chunks are shared
// between operations through the File's tile cache.
type File struct {
	path  string
	url   string
	opts  options
	cache *chunkCache
}

func newFile(path, url string, opts []Option) *File {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &File{path: path, url: url, opts: o, cache: newChunkCache(o.cacheSize)}
}

// Open opens an existing local container and checks that it parses.
func Open(path string, opts ...Option) (*File, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, ioError("stat "+path, err)
	}
	f := newFile(path, "", opts)
	c, err := f.acquire(false)
	if err != nil {
		return nil, err
	}
	c.Close()
	return f, nil
}

// Create writes a new empty container at path, replacing any existing file.
func Create(path string, opts ...Option) (*File, error) {
	f := newFile(path, "", opts)
	if err := createContainer(path, binary.LittleEndian, f.opts.bigTIFF); err != nil {
		return nil, err
	}
	return f, nil
}

// OpenURL opens a remote container for reading through HTTP range requests.
func OpenURL(url string, opts ...Option) (*File, error) {
	f := newFile("", url, opts)
	c, err := f.acquire(false)
	if err != nil {
		return nil, err
	}
	c.Close()
	return f, nil
}

// Path returns the local path or URL of the file.
func (f *File) Path() string {
	if f.url != "" {
		return f.url
	}
	return f.path
}

// acquire opens a container handle for one operation.
func (f *File) acquire(writable bool) (*Container, error) {
	if f.url == "" {
		return openContainer(f.path, writable, f.cache)
	}
	if writable {
		return nil, fmt.Errorf("%w: %s", ErrReadOnly, f.url)
	}
	rr, err := NewHTTPRangeReader(f.url, f.opts.client)
	if err != nil {
		return nil, err
	}
	return newContainer(rr, rr.Size(), f.cache)
}

// read runs fn against a read-only handle.
func (f *File) read(fn func(c *Container) error) error {
	c, err := f.acquire(false)
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(c)
}

// write runs fn against a writable handle.
func (f *File) write(fn func(c *Container) error) (err error) {
	c, err := f.acquire(true)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := c.Close(); cerr != nil && err == nil {
			err = ioError("close "+f.path, cerr)
		}
	}()
	return fn(c)
}

// Version returns 42 for classic TIFF and 43 for BigTIFF.
func (f *File) Version() (int, error) {
	var v int
	err := f.read(func(c *Container) error {
		v = c.Version()
		return nil
	})
	return v, err
}

// PageCount returns the number of pages.
func (f *File) PageCount() (int, error) {
	var n int
	err := f.read(func(c *Container) error {
		n = c.PageCount()
		return nil
	})
	return n, err
}

// Directory returns the descriptors of every page.
func (f *File) Directory() ([]Descriptor, error) {
	var pages []Descriptor
	err := f.read(func(c *Container) error {
		pages = c.Directory().Pages()
		return nil
	})
	return pages, err
}

// Descriptor returns the descriptor of a page. Negative indices count from
// the last page.
func (f *File) Descriptor(idx int) (Descriptor, error) {
	var d Descriptor
	err := f.read(func(c *Container) error {
		page, err := c.Directory().Resolve(idx)
		if err != nil {
			return err
		}
		d, err = c.Descriptor(page)
		return err
	})
	return d, err
}

// ReadPage reads a whole page.
func ReadPage[T Sample](f *File, idx int) (*Raster[T], error) {
	var out *Raster[T]
	err := f.read(func(c *Container) error {
		page, err := c.Directory().Resolve(idx)
		if err != nil {
			return err
		}
		out, err = readPage[T](c, page, f.opts.workers)
		return err
	})
	return out, err
}

// ReadRegion reads r from a page. r must lie inside the page.
func ReadRegion[T Sample](f *File, idx int, r Rect) (*Raster[T], error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	var out *Raster[T]
	err := f.read(func(c *Container) error {
		page, err := c.Directory().Resolve(idx)
		if err != nil {
			return err
		}
		out, err = readRegion[T](c, page, r, f.opts.workers)
		return err
	})
	return out, err
}

// Crop reads r from a page; parts of r outside the page are zero.
func Crop[T Sample](f *File, idx int, r Rect) (*Raster[T], error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	var out *Raster[T]
	err := f.read(func(c *Container) error {
		page, err := c.Directory().Resolve(idx)
		if err != nil {
			return err
		}
		out, err = crop[T](c, page, r, f.opts.workers)
		return err
	})
	return out, err
}

// MultiPageCrop serves r, given in full-resolution coordinates, from the
// pyramid level chosen by strategy. It returns the crop and the level used.
func MultiPageCrop[T Sample](f *File, r Rect, strategy Strategy) (*Raster[T], int, error) {
	if err := r.Validate(); err != nil {
		return nil, 0, err
	}
	var (
		out   *Raster[T]
		level int
	)
	err := f.read(func(c *Container) error {
		var (
			scaled Rect
			err    error
		)
		level, scaled, err = SelectLevel(r, c.Directory().Pages(), strategy)
		if err != nil {
			return err
		}
		out, err = crop[T](c, level, scaled, f.opts.workers)
		return err
	})
	return out, level, err
}

// WriteSubfile appends src as a new page and returns its index.
func WriteSubfile[T Sample](f *File, src *Raster[T], d Descriptor) (int, error) {
	var page int
	err := f.write(func(c *Container) error {
		var err error
		page, err = writeSubfile(c, src, d, f.opts.workers)
		return err
	})
	return page, err
}

// WriteRegion overwrites r of an existing uncompressed page with src.
func WriteRegion[T Sample](f *File, idx int, r Rect, src *Raster[T]) error {
	if err := r.Validate(); err != nil {
		return err
	}
	return f.write(func(c *Container) error {
		page, err := c.Directory().Resolve(idx)
		if err != nil {
			return err
		}
		return writeRegion(c, page, r, src, f.opts.workers)
	})
}

// BuildPyramid writes base and its reduced-resolution levels into an empty
// file. d supplies the tile size and photometric interpretation.
func BuildPyramid[T Sample](f *File, base *Raster[T], d Descriptor) error {
	return f.write(func(c *Container) error {
		return buildPyramid(c, base, d, f.opts.workers, f.opts.logger)
	})
}
