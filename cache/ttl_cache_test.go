// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type counter struct {
	calls int
	err   error
}

func (c *counter) fetch(_ context.Context, key string) (int, error) {
	c.calls++
	if c.err != nil {
		return 0, c.err
	}
	return len(key), nil
}

func TestTTLCache(t *testing.T) {
	tests := []struct {
		name       string
		advance    time.Duration
		invalidate bool
		wantCalls  int
	}{
		{
			name:      "empty cache fetches",
			wantCalls: 1,
		},
		{
			name:      "fresh entry is served",
			advance:   time.Second,
			wantCalls: 1,
		},
		{
			name:       "invalidate fetches",
			invalidate: true,
			wantCalls:  2,
		},
		{
			name:      "expired entry fetches",
			advance:   time.Minute,
			wantCalls: 3,
		},
	}

	now := time.Unix(1000, 0)
	cache := NewTTLCache[string, int](10 * time.Second)
	cache.now = func() time.Time { return now }
	c := &counter{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)
			now = now.Add(tt.advance)

			v, err := cache.Get(context.Background(), "digest", c.fetch, tt.invalidate)
			require.NoError(err)
			require.Equal(6, v)
			require.Equal(tt.wantCalls, c.calls)
		})
	}
}

func TestTTLCacheDoesNotCacheErrors(t *testing.T) {
	require := require.New(t)
	cache := NewTTLCache[string, int](time.Minute)
	c := &counter{err: errors.New("unavailable")}

	_, err := cache.Get(context.Background(), "a", c.fetch, false)
	require.ErrorIs(err, c.err)
	require.Zero(cache.Len())

	c.err = nil
	v, err := cache.Get(context.Background(), "a", c.fetch, false)
	require.NoError(err)
	require.Equal(1, v)
	require.Equal(2, c.calls)
}

func TestTTLCachePurge(t *testing.T) {
	require := require.New(t)
	now := time.Unix(0, 0)
	cache := NewTTLCache[string, int](time.Second)
	cache.now = func() time.Time { return now }
	c := &counter{}

	_, err := cache.Get(context.Background(), "a", c.fetch, false)
	require.NoError(err)
	now = now.Add(2 * time.Second)
	_, err = cache.Get(context.Background(), "b", c.fetch, false)
	require.NoError(err)

	require.Equal(1, cache.Purge())
	require.Equal(1, cache.Len())
}
