package fitness

import (
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"kcbalance/internal/model"
)

const DefaultCacheSize = 1024

// Cached memoizes another evaluator by candidate fingerprint. Elites carried
// between generations hit the cache instead of being rescored.
type Cached struct {
	inner  Evaluator
	cache  *lru.Cache[string, model.FitnessResult]
	hits   atomic.Int64
	misses atomic.Int64
}

func NewCached(inner Evaluator, size int) (*Cached, error) {
	if inner == nil {
		return nil, fmt.Errorf("inner evaluator is required")
	}
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, model.FitnessResult](size)
	if err != nil {
		return nil, fmt.Errorf("create fitness cache: %w", err)
	}
	return &Cached{inner: inner, cache: cache}, nil
}

func (c *Cached) Name() string {
	return "cached(" + c.inner.Name() + ")"
}

func (c *Cached) Evaluate(candidate model.Candidate) model.FitnessResult {
	key := model.Fingerprint(candidate)
	if result, ok := c.cache.Get(key); ok {
		c.hits.Add(1)
		return result
	}
	c.misses.Add(1)
	result := c.inner.Evaluate(candidate)
	c.cache.Add(key, result)
	return result
}

func (c *Cached) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
