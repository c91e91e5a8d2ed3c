package chain

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/bridgescope/backend/internal/model"
)

type tsKey struct {
	chain model.Chain
	block uint64
}

// TimestampCache is the process-wide LRU of block timestamps, shared by all
// observers so repeated logs from the same block cost one RPC call total.
type TimestampCache struct {
	lru *lru.Cache[tsKey, uint64]
}

// NewTimestampCache creates a bounded cache. Size must be positive.
func NewTimestampCache(size int) (*TimestampCache, error) {
	c, err := lru.New[tsKey, uint64](size)
	if err != nil {
		return nil, err
	}
	return &TimestampCache{lru: c}, nil
}

// Get returns the cached timestamp for (chain, block).
func (c *TimestampCache) Get(chain model.Chain, block uint64) (uint64, bool) {
	return c.lru.Get(tsKey{chain, block})
}

// Add stores a timestamp for (chain, block).
func (c *TimestampCache) Add(chain model.Chain, block uint64, ts uint64) {
	c.lru.Add(tsKey{chain, block}, ts)
}

// Len returns the number of cached entries.
func (c *TimestampCache) Len() int { return c.lru.Len() }
