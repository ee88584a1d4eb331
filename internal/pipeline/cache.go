package pipeline

import (
	"encoding/binary"
	"math"

	"github.com/dgryski/go-spooky"
	lru "github.com/hashicorp/golang-lru"
)

// EmbeddingCache memoizes network outputs by pixel tensor, so an image seen
// during training is not run through the network again when it is scored
// later in the same process. A nil *EmbeddingCache is valid and caches
// nothing.
type EmbeddingCache struct {
	cache  *lru.Cache
	hits   int
	misses int
}

// NewEmbeddingCache returns a cache holding up to size embeddings, or nil
// when size is zero.
func NewEmbeddingCache(size int) (*EmbeddingCache, error) {
	if size <= 0 {
		return nil, nil
	}
	cache, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &EmbeddingCache{cache: cache}, nil
}

// Get returns the embedding stored for pixels.
func (c *EmbeddingCache) Get(pixels []float32) ([]float32, bool) {
	if c == nil {
		return nil, false
	}
	v, ok := c.cache.Get(pixelKey(pixels))
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++
	return v.([]float32), true
}

// Add stores features for pixels.
func (c *EmbeddingCache) Add(pixels, features []float32) {
	if c == nil {
		return
	}
	c.cache.Add(pixelKey(pixels), features)
}

// Stats returns the hit and miss counts.
func (c *EmbeddingCache) Stats() (hits, misses int) {
	if c == nil {
		return 0, 0
	}
	return c.hits, c.misses
}

func pixelKey(pixels []float32) uint64 {
	buf := make([]byte, 4*len(pixels))
	for i, v := range pixels {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return spooky.Hash64(buf)
}
