package parse

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"resym/internal/shared/observability"
)

// Cache is the bounded parse cache. Entries are keyed by content hash and
// immutable once stored: a changed file hashes to a new key instead of
// mutating an existing entry, so concurrent readers never observe a
// half-updated tree. Eviction is strict LRU under the capacity bound.
type Cache struct {
	inner *lru.Cache[string, *Tree]
}

func NewCache(capacity int) (*Cache, error) {
	inner, err := lru.NewWithEvict(capacity, func(string, *Tree) {
		observability.ParseCacheEvictions.Inc()
	})
	if err != nil {
		return nil, err
	}
	return &Cache{inner: inner}, nil
}

func (c *Cache) Get(hash string) (*Tree, bool) {
	tree, ok := c.inner.Get(hash)
	if ok {
		observability.ParseCacheHits.Inc()
	} else {
		observability.ParseCacheMisses.Inc()
	}
	return tree, ok
}

func (c *Cache) Add(hash string, tree *Tree) {
	// First store wins; the tree for a given hash is deterministic.
	if _, ok := c.inner.Peek(hash); ok {
		return
	}
	c.inner.Add(hash, tree)
}

func (c *Cache) Len() int {
	return c.inner.Len()
}
