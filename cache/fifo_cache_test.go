// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package cache

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFIFOCache(t *testing.T) {
	tests := []struct {
		name      string
		key       string
		wantCalls int
	}{
		{name: "fresh cache, fetch", key: "a", wantCalls: 1},
		{name: "cached, no fetch", key: "a", wantCalls: 1},
		{name: "second key, fetch", key: "b", wantCalls: 2},
		{name: "third key, fetch", key: "c", wantCalls: 3},
		{name: "first key evicted, fetch", key: "a", wantCalls: 4},
	}

	cache := NewFIFOCache[string, int](2)
	c := &counter{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)

			v, err := cache.Get(context.Background(), tt.key, c.fetch)
			require.NoError(err)
			require.Equal(1, v)
			require.Equal(tt.wantCalls, c.calls)
		})
	}
}

func TestFIFOCacheRetriesFailures(t *testing.T) {
	require := require.New(t)
	cache := NewFIFOCache[string, int](4)
	c := &counter{err: errors.New("rejected")}

	_, err := cache.Get(context.Background(), "a", c.fetch)
	require.ErrorIs(err, c.err)
	require.Zero(cache.Len())

	c.err = nil
	_, err = cache.Get(context.Background(), "a", c.fetch)
	require.NoError(err)
	require.Equal(2, c.calls)
}

func TestFIFOCacheSingleFlight(t *testing.T) {
	require := require.New(t)
	cache := NewFIFOCache[string, int](4)

	var (
		lock    sync.Mutex
		calls   int
		release = make(chan struct{})
	)
	fetch := func(context.Context, string) (int, error) {
		lock.Lock()
		calls++
		lock.Unlock()
		<-release
		return 7, nil
	}

	var wg sync.WaitGroup
	results := make([]int, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := cache.Get(context.Background(), "k", fetch)
			if err == nil {
				results[i] = v
			}
		}(i)
	}
	close(release)
	wg.Wait()

	for _, v := range results {
		require.Equal(7, v)
	}
	require.LessOrEqual(calls, 8)
	require.GreaterOrEqual(calls, 1)
}
