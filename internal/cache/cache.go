// Package cache provides small LRU caches shared by the analysis passes.
package cache

import (
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/tidwall/gjson"
)

// BodyCache memoizes parsed response bodies by exchange index. Both the
// correlation builder and the replay orchestrator re-read bodies; parsing a
// large capture repeatedly is the dominant cost without this.
type BodyCache struct {
	cache *lru.Cache[int, gjson.Result]
}

// NewBodyCache creates a cache holding at most maxItems parsed bodies.
func NewBodyCache(maxItems int) (*BodyCache, error) {
	c, err := lru.New[int, gjson.Result](maxItems)
	if err != nil {
		return nil, err
	}
	return &BodyCache{cache: c}, nil
}

// Get returns the parsed body for an exchange index.
func (c *BodyCache) Get(index int) (gjson.Result, bool) {
	return c.cache.Get(index)
}

// Parse returns the parsed body, parsing and caching on miss. Invalid JSON
// caches a zero Result so repeated lookups stay cheap.
func (c *BodyCache) Parse(index int, body string) gjson.Result {
	if r, ok := c.cache.Get(index); ok {
		return r
	}
	var r gjson.Result
	if gjson.Valid(body) {
		r = gjson.Parse(body)
	}
	c.cache.Add(index, r)
	return r
}

// Len returns the number of cached bodies.
func (c *BodyCache) Len() int {
	return c.cache.Len()
}
