// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package cache

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// LRUCache is a bounded cache for values that never change once fetched,
// like finality claims that reached their threshold.
type LRUCache[K comparable, V any] struct {
	cache *lru.Cache[K, V]
	group singleflight.Group
}

func NewLRUCache[K comparable, V any](size int) (*LRUCache[K, V], error) {
	c, err := lru.New[K, V](size)
	if err != nil {
		return nil, err
	}
	return &LRUCache[K, V]{cache: c}, nil
}

// Get returns the cached value of key or fetches and caches it. With
// invalidate set the entry is dropped first.
func (c *LRUCache[K, V]) Get(ctx context.Context, key K, fetch FetchFunc[K, V], invalidate bool) (V, error) {
	if invalidate {
		c.cache.Remove(key)
	} else if v, ok := c.cache.Get(key); ok {
		return v, nil
	}

	v, err, _ := c.group.Do(keyString(key), func() (interface{}, error) {
		value, err := fetch(ctx, key)
		if err != nil {
			return nil, err
		}
		c.cache.Add(key, value)
		return value, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return v.(V), nil
}

// Remove drops key
func (c *LRUCache[K, V]) Remove(key K) {
	c.cache.Remove(key)
}

// Len returns the number of cached entries
func (c *LRUCache[K, V]) Len() int {
	return c.cache.Len()
}
