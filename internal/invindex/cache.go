package invindex

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/myscale/sparse-index/internal/posting"
	"github.com/myscale/sparse-index/internal/types"
)

// defaultPostingCacheSize bounds how many decoded postings one compressed
// segment reader keeps warm.
const defaultPostingCacheSize = 1024

// PostingCache memoizes decoded posting lists per dimension, so repeated
// queries against the same compressed segment don't re-run block
// bit-unpacking and de-quantization on every call. Cached lists are plain
// heap data copied out of the mmap during decode, so an entry stays valid
// even after the segment's files are unmapped.
type PostingCache struct {
	lru *lru.Cache[types.DimId, *posting.List]
}

// NewPostingCache creates a cache holding at most capacity decoded
// postings.
func NewPostingCache(capacity int) (*PostingCache, error) {
	l, err := lru.New[types.DimId, *posting.List](capacity)
	if err != nil {
		return nil, err
	}
	return &PostingCache{lru: l}, nil
}

// Get returns the cached decoded posting for dim, if present.
func (c *PostingCache) Get(dim types.DimId) (*posting.List, bool) {
	return c.lru.Get(dim)
}

// Put inserts the decoded posting for dim.
func (c *PostingCache) Put(dim types.DimId, l *posting.List) {
	c.lru.Add(dim, l)
}

// Len reports the number of currently cached postings.
func (c *PostingCache) Len() int { return c.lru.Len() }
