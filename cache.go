package ptiff

import (
	"bytes"

	lru "github.com/hashicorp/golang-lru"
)

// chunkKey identifies a stored tile or strip by its place in the file.
type chunkKey struct {
	page   int
	index  int
	offset uint64
	count  uint64
}

// cachedChunk pairs the stored bytes of a chunk with their decoding.
type cachedChunk struct {
	raw  []byte
	data []byte
}

// chunkCache keeps recently decoded compressed chunks of one file. Entries
// are only served for identical stored bytes, so changes made to the file
// by other writers are never masked. A nil cache is valid and caches
// nothing.
type chunkCache struct {
	lru *lru.Cache
}

func newChunkCache(size int) *chunkCache {
	if size <= 0 {
		return nil
	}
	c, err := lru.New(size)
	if err != nil {
		return nil
	}
	return &chunkCache{lru: c}
}

// get returns the decoding of raw when it was cached under key with the
// same stored bytes and the expected decoded size.
func (c *chunkCache) get(key chunkKey, raw []byte, expected int) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	v, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	e := v.(cachedChunk)
	if len(e.data) != expected || !bytes.Equal(e.raw, raw) {
		c.lru.Remove(key)
		return nil, false
	}
	return e.data, true
}

// add caches data as the decoding of raw. raw is copied.
func (c *chunkCache) add(key chunkKey, raw, data []byte) {
	if c == nil {
		return
	}
	c.lru.Add(key, cachedChunk{raw: bytes.Clone(raw), data: data})
}

func (c *chunkCache) len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}
