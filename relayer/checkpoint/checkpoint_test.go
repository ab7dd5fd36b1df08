// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package checkpoint

import (
	"testing"

	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/luxfi/channel/database"
)

var testKey = Key(1, 2, common.HexToAddress("0xc1"))

func TestStageCommitsContiguousRanges(t *testing.T) {
	type stage struct {
		first, last uint64
		want        uint64
	}
	tests := []struct {
		name   string
		stages []stage
	}{
		{
			name:   "in order",
			stages: []stage{{1, 5, 5}, {6, 7, 7}},
		},
		{
			name:   "out of order",
			stages: []stage{{6, 7, 0}, {8, 8, 0}, {1, 5, 8}},
		},
		{
			name:   "stale range ignored",
			stages: []stage{{1, 5, 5}, {3, 4, 5}, {6, 6, 6}},
		},
		{
			name:   "overlapping range",
			stages: []stage{{1, 5, 5}, {4, 9, 9}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)
			m, err := New(zap.NewNop(), database.NewMemDB(), testKey)
			require.NoError(err)
			for _, s := range tt.stages {
				m.Stage(s.first, s.last)
				require.Equal(s.want, m.Committed())
			}
		})
	}
}

func TestAdvanceDropsCoveredRanges(t *testing.T) {
	require := require.New(t)
	m, err := New(zap.NewNop(), database.NewMemDB(), testKey)
	require.NoError(err)

	m.Stage(6, 7)
	m.Advance(7)
	require.Equal(uint64(7), m.Committed())
	require.Zero(m.pending.Len())

	m.Advance(3)
	require.Equal(uint64(7), m.Committed())

	m.Reset(2)
	require.Equal(uint64(2), m.Committed())
}

func TestFlushPersists(t *testing.T) {
	require := require.New(t)
	db := database.NewMemDB()
	m, err := New(zap.NewNop(), db, testKey)
	require.NoError(err)

	require.NoError(m.Flush())
	require.Zero(db.Len())

	m.Stage(1, 4)
	require.NoError(m.Flush())

	reloaded, err := New(zap.NewNop(), db, testKey)
	require.NoError(err)
	require.Equal(uint64(4), reloaded.Committed())
}
