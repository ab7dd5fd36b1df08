// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLRUCache(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		invalidate bool
		wantCalls  int
	}{
		{name: "fresh cache, fetch", key: "a", wantCalls: 1},
		{name: "cached, no fetch", key: "a", wantCalls: 1},
		{name: "invalidate, fetch", key: "a", invalidate: true, wantCalls: 2},
		{name: "second key, fetch", key: "bb", wantCalls: 3},
		{name: "third key evicts a", key: "ccc", wantCalls: 4},
		{name: "evicted key, fetch", key: "a", wantCalls: 5},
		{name: "most recent kept", key: "ccc", wantCalls: 5},
	}

	cache, err := NewLRUCache[string, int](2)
	require.NoError(t, err)
	c := &counter{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)

			v, err := cache.Get(context.Background(), tt.key, c.fetch, tt.invalidate)
			require.NoError(err)
			require.Equal(len(tt.key), v)
			require.Equal(tt.wantCalls, c.calls)
		})
	}
	require.Equal(t, 2, cache.Len())
}

func TestLRUCacheInvalidSize(t *testing.T) {
	_, err := NewLRUCache[string, int](0)
	require.Error(t, err)
}
