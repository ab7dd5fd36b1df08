// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package chain

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/channel/database"
	"github.com/luxfi/channel/outbound"
)

var errWriteFailed = errors.New("write failed")

// failingDB fails batch writes while fail is set
type failingDB struct {
	database.Database
	fail bool
}

func (db *failingDB) NewBatch() database.Batch {
	return &failingBatch{Batch: db.Database.NewBatch(), db: db}
}

type failingBatch struct {
	database.Batch
	db *failingDB
}

func (b *failingBatch) Write() error {
	if b.db.fail {
		return errWriteFailed
	}
	return b.Batch.Write()
}

func TestProduceBlockIsAtomic(t *testing.T) {
	for _, finality := range []Finality{FinalityCommittee, FinalityProofOfWork} {
		t.Run(string(finality), func(t *testing.T) {
			require := require.New(t)
			ctx := context.Background()
			n := newTestNet(t, finality)
			db := &failingDB{Database: database.NewMemDB()}
			a := newChain(t, n.a.config, db)
			out := outbound.DefaultConfig(networkB, testChannel)
			out.MaxMessagesPerCommit = 5
			out.CommitInterval = 1
			require.NoError(a.RegisterOutbound(n.admin.Address(), out))
			n.a = a
			n.submit(t, 7)
			headers := len(a.Headers(0, 0))

			db.fail = true
			_, err := a.ProduceBlock(ctx)
			require.ErrorIs(err, errWriteFailed)

			// Neither the channel nor the chain moved.
			require.Zero(a.Height())
			status, err := a.Outbound(networkB, testChannel)
			require.NoError(err)
			require.Zero(status.CommittedNonce)
			require.Equal(7, status.Pending)
			records, err := a.Records(networkB, testChannel, 0)
			require.NoError(err)
			require.Empty(records)
			require.Empty(a.Statements(0, 0))
			require.Len(a.Headers(0, 0), headers)

			db.fail = false
			block, err := a.ProduceBlock(ctx)
			require.NoError(err)
			require.Equal(uint64(1), block.Number)
			require.Len(block.Records, 1)
			require.Zero(block.Records[0].Index)
			require.Equal(uint64(1), block.Records[0].FirstNonce)
			require.Equal(uint64(5), block.Records[0].LastNonce)

			_, _, err = a.Prove(networkB, testChannel, block.Records[0].Digest, 1)
			require.NoError(err)
			if finality == FinalityCommittee {
				require.Equal(uint64(1), block.Statement.LeafCount)
			} else {
				require.Equal(uint64(1), block.Header.LogsCount)
				require.True(block.Header.CheckWork())
				require.Equal(block.Header.ParentHash, a.Headers(0, 0)[headers-1].Hash())
			}

			reloaded := newChain(t, a.config, db)
			require.Equal(uint64(1), reloaded.Height())
			status, err = reloaded.Outbound(networkB, testChannel)
			require.NoError(err)
			require.Equal(uint64(5), status.CommittedNonce)
			require.Equal(2, status.Pending)
			records, err = reloaded.Records(networkB, testChannel, 0)
			require.NoError(err)
			require.Len(records, 1)
			require.Zero(records[0].Index)
		})
	}
}
