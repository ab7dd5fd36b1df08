// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package cache

import (
	"context"
	"sync"
)

type call[V any] struct {
	done chan struct{}
	val  V
	err  error
}

// FIFOCache remembers the results of the last capacity successful fetches
// and evicts in insertion order. Failed fetches are not cached, so a key is
// retried until it succeeds once. The relayer uses it to submit each
// approval at most once.
type FIFOCache[K comparable, V any] struct {
	lock     sync.Mutex
	values   map[K]V
	order    []K
	capacity int
	inflight map[K]*call[V]
}

func NewFIFOCache[K comparable, V any](capacity int) *FIFOCache[K, V] {
	if capacity <= 0 {
		capacity = 1
	}
	return &FIFOCache[K, V]{
		values:   make(map[K]V),
		order:    make([]K, 0, capacity),
		capacity: capacity,
		inflight: make(map[K]*call[V]),
	}
}

// Get returns the remembered value of key or runs fetch once for all
// concurrent callers
func (c *FIFOCache[K, V]) Get(ctx context.Context, key K, fetch FetchFunc[K, V]) (V, error) {
	c.lock.Lock()
	if v, ok := c.values[key]; ok {
		c.lock.Unlock()
		return v, nil
	}
	if cl, ok := c.inflight[key]; ok {
		c.lock.Unlock()
		select {
		case <-cl.done:
			return cl.val, cl.err
		case <-ctx.Done():
			var zero V
			return zero, ctx.Err()
		}
	}
	cl := &call[V]{done: make(chan struct{})}
	c.inflight[key] = cl
	c.lock.Unlock()

	cl.val, cl.err = fetch(ctx, key)

	c.lock.Lock()
	if cl.err == nil {
		c.add(key, cl.val)
	}
	delete(c.inflight, key)
	c.lock.Unlock()
	close(cl.done)
	return cl.val, cl.err
}

// add stores key, evicting the oldest entry when full. Requires lock.
func (c *FIFOCache[K, V]) add(key K, val V) {
	if _, ok := c.values[key]; ok {
		c.values[key] = val
		return
	}
	if len(c.order) >= c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.values, oldest)
	}
	c.values[key] = val
	c.order = append(c.order, key)
}

// Len returns the number of remembered keys
func (c *FIFOCache[K, V]) Len() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return len(c.values)
}
