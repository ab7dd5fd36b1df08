// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package outbound

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/luxfi/channel/database"
)

// Committer decides which channels commit at a given height. In interval
// mode every channel commits once its interval elapsed. In round-robin mode
// at most one non-empty channel commits per height, bounding the work done
// in a single block.
type Committer struct {
	log        *zap.Logger
	roundRobin bool
	channels   []*Channel
	last       map[*Channel]uint64
	next       int
}

func NewCommitter(log *zap.Logger, roundRobin bool) *Committer {
	return &Committer{
		log:        log,
		roundRobin: roundRobin,
		last:       make(map[*Channel]uint64),
	}
}

// Add registers a channel
func (c *Committer) Add(ch *Channel) {
	c.channels = append(c.channels, ch)
}

// Channels returns the registered channels
func (c *Committer) Channels() []*Channel {
	return c.channels
}

// Round is the set of commits staged by one Tick
type Round struct {
	committer *Committer
	height    uint64
	due       []*Channel
	staged    []*Staged
	next      int
}

// Records returns the staged records in commit order
func (r *Round) Records() []*Record {
	records := make([]*Record, 0, len(r.staged))
	for _, s := range r.staged {
		records = append(records, s.Record)
	}
	return records
}

// Apply advances the channels and the schedule once the batch the round was
// staged into has been written
func (r *Round) Apply() {
	for _, s := range r.staged {
		s.Apply()
	}
	for _, ch := range r.due {
		r.committer.last[ch] = r.height
	}
	r.committer.next = r.next
}

// Discard returns every staged message to its queue
func (r *Round) Discard() {
	for i := len(r.staged) - 1; i >= 0; i-- {
		r.staged[i].Discard()
	}
}

// Tick stages the commits of the channels due at height into batch. The
// caller writes batch and then applies or discards the round.
func (c *Committer) Tick(ctx context.Context, batch database.Batch, height uint64) (*Round, error) {
	round := &Round{committer: c, height: height, next: c.next}
	var err error
	if c.roundRobin {
		err = c.tickRoundRobin(ctx, batch, round)
	} else {
		err = c.tickInterval(ctx, batch, round)
	}
	if err != nil {
		round.Discard()
		return nil, err
	}
	return round, nil
}

func (c *Committer) tickInterval(ctx context.Context, batch database.Batch, round *Round) error {
	for _, ch := range c.channels {
		if round.height < c.last[ch]+ch.config.CommitInterval {
			continue
		}
		if err := c.commit(ctx, batch, ch, round); err != nil {
			return err
		}
	}
	return nil
}

func (c *Committer) tickRoundRobin(ctx context.Context, batch database.Batch, round *Round) error {
	for i := 0; i < len(c.channels); i++ {
		ch := c.channels[(c.next+i)%len(c.channels)]
		if ch.Pending() == 0 {
			continue
		}
		round.next = (c.next + i + 1) % len(c.channels)
		return c.commit(ctx, batch, ch, round)
	}
	return nil
}

func (c *Committer) commit(ctx context.Context, batch database.Batch, ch *Channel, round *Round) error {
	staged, err := ch.Commit(ctx, batch, round.height)
	if err != nil {
		c.log.Error(
			"Failed to commit channel",
			zap.Stringer("channel", ch.config.Channel),
			zap.Uint64("height", round.height),
			zap.Error(err),
		)
		return fmt.Errorf("failed to commit channel %s: %w", ch.config.Channel, err)
	}
	round.due = append(round.due, ch)
	if staged != nil {
		round.staged = append(round.staged, staged)
	}
	return nil
}
