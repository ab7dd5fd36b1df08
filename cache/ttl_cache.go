// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

// Package cache holds the relayer's read-through caches. Every cache
// deduplicates concurrent fetches of the same key.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// FetchFunc loads the value of key on a cache miss
type FetchFunc[K comparable, V any] func(ctx context.Context, key K) (V, error)

type ttlEntry[V any] struct {
	value   V
	expires time.Time
}

// TTLCache keeps values for a fixed time after they were fetched. It suits
// data that is immutable once published but may not exist yet, such as raw
// commitments on a lagging off-chain store.
type TTLCache[K comparable, V any] struct {
	lock    sync.RWMutex
	entries map[K]ttlEntry[V]
	ttl     time.Duration
	now     func() time.Time
	group   singleflight.Group
}

func NewTTLCache[K comparable, V any](ttl time.Duration) *TTLCache[K, V] {
	return &TTLCache[K, V]{
		entries: make(map[K]ttlEntry[V]),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the cached value of key while it is fresh and fetches it
// otherwise. With invalidate set the entry is dropped before fetching, so
// concurrent readers never observe the stale value.
func (c *TTLCache[K, V]) Get(ctx context.Context, key K, fetch FetchFunc[K, V], invalidate bool) (V, error) {
	if invalidate {
		c.lock.Lock()
		delete(c.entries, key)
		c.lock.Unlock()
	} else {
		c.lock.RLock()
		e, ok := c.entries[key]
		c.lock.RUnlock()
		if ok && c.now().Before(e.expires) {
			return e.value, nil
		}
	}

	v, err, _ := c.group.Do(keyString(key), func() (interface{}, error) {
		value, err := fetch(ctx, key)
		if err != nil {
			return nil, err
		}
		c.lock.Lock()
		c.entries[key] = ttlEntry[V]{value: value, expires: c.now().Add(c.ttl)}
		c.lock.Unlock()
		return value, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return v.(V), nil
}

// Purge drops expired entries and returns how many were removed
func (c *TTLCache[K, V]) Purge() int {
	c.lock.Lock()
	defer c.lock.Unlock()

	now := c.now()
	removed := 0
	for k, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of entries, fresh or not
func (c *TTLCache[K, V]) Len() int {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return len(c.entries)
}

func keyString[K comparable](key K) string {
	if s, ok := any(key).(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%v", key)
}
