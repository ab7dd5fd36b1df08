// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

// Package checkpoint persists how far a relayer got on each channel.
package checkpoint

import (
	"container/heap"
	"context"
	"fmt"
	"sync"

	"github.com/luxfi/geth/common"
	"go.uber.org/zap"

	"github.com/luxfi/channel"
	"github.com/luxfi/channel/database"
)

var checkpointPrefix = []byte("relayer/checkpoint")

// Key is the database key of the watermark of one relayed channel
func Key(origin, destination channel.NetworkID, channelID common.Address) []byte {
	return database.Key(
		checkpointPrefix,
		database.Uint64Key(uint64(origin)),
		database.Uint64Key(uint64(destination)),
		channelID.Bytes(),
	)
}

type nonceRange struct {
	first, last uint64
}

type rangeHeap []nonceRange

func (h rangeHeap) Len() int { return len(h) }

func (h rangeHeap) Less(i, j int) bool { return h[i].first < h[j].first }

func (h rangeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *rangeHeap) Push(x interface{}) { *h = append(*h, x.(nonceRange)) }

func (h *rangeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// Manager tracks the delivered nonce watermark of a channel. Delivered
// ranges may be staged in any order; the watermark only moves over a
// contiguous prefix and is written to the database by Flush.
type Manager struct {
	log       *zap.Logger
	db        database.Database
	key       []byte
	lock      sync.Mutex
	committed uint64
	pending   *rangeHeap
	dirty     bool
}

// New loads the stored watermark under key
func New(log *zap.Logger, db database.Database, key []byte) (*Manager, error) {
	stored, err := database.GetUint64OrZero(db, key)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	h := &rangeHeap{}
	heap.Init(h)
	log.Info("Loaded checkpoint", zap.Uint64("delivered", stored))
	return &Manager{
		log:       log,
		db:        db,
		key:       key,
		committed: stored,
		pending:   h,
	}, nil
}

// Stage records that nonces first..last were delivered
func (m *Manager) Stage(first, last uint64) {
	m.lock.Lock()
	defer m.lock.Unlock()

	if last <= m.committed {
		return
	}
	heap.Push(m.pending, nonceRange{first: first, last: last})
	for m.pending.Len() > 0 {
		next := (*m.pending)[0]
		if next.first > m.committed+1 {
			break
		}
		heap.Pop(m.pending)
		if next.last > m.committed {
			m.committed = next.last
			m.dirty = true
		}
	}
}

// Advance moves the watermark to nonce when the destination reports
// deliveries made by someone else
func (m *Manager) Advance(nonce uint64) {
	m.lock.Lock()
	defer m.lock.Unlock()

	if nonce <= m.committed {
		return
	}
	m.committed = nonce
	m.dirty = true
	for m.pending.Len() > 0 && (*m.pending)[0].last <= nonce {
		heap.Pop(m.pending)
	}
}

// Reset forces the watermark down, e.g. after the destination was rebuilt
func (m *Manager) Reset(nonce uint64) {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.log.Warn(
		"Resetting checkpoint",
		zap.Uint64("from", m.committed),
		zap.Uint64("to", nonce),
	)
	m.committed = nonce
	m.pending = &rangeHeap{}
	m.dirty = true
}

// Committed returns the watermark
func (m *Manager) Committed() uint64 {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.committed
}

// Flush writes the watermark if it changed
func (m *Manager) Flush() error {
	m.lock.Lock()
	defer m.lock.Unlock()

	if !m.dirty {
		return nil
	}
	if err := database.PutUint64(m.db, m.key, m.committed); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	m.dirty = false
	return nil
}

// Run flushes on every write signal until ctx is done
func (m *Manager) Run(ctx context.Context, writeSignal <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			if err := m.Flush(); err != nil {
				m.log.Error("Failed to flush checkpoint", zap.Error(err))
			}
			return
		case <-writeSignal:
			if err := m.Flush(); err != nil {
				m.log.Error("Failed to flush checkpoint", zap.Error(err))
			}
		}
	}
}
