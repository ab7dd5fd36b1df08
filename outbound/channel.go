// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

// Package outbound accepts messages on the source chain, assigns nonces and
// periodically commits the queued batch.
package outbound

import (
	"context"
	"fmt"
	"math"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"go.uber.org/zap"

	"github.com/luxfi/channel"
	"github.com/luxfi/channel/database"
	"github.com/luxfi/channel/offchain"
	"github.com/luxfi/channel/queue"
)

var (
	nonceKey     = []byte("nonce")
	committedKey = []byte("committed")
	countKey     = []byte("count")
	haltedKey    = []byte("halted")
	queuePrefix  = []byte("queue")
	logPrefix    = []byte("log")
)

// Record is the on-chain trace of one commit. Only the digest identifies
// the batch; the body lives in off-chain storage.
type Record struct {
	NetworkID  channel.NetworkID `json:"networkID"`
	Channel    common.Address    `json:"channel"`
	Index      uint64            `json:"index"`
	Digest     common.Hash       `json:"digest"`
	FirstNonce uint64            `json:"firstNonce"`
	LastNonce  uint64            `json:"lastNonce"`
	Height     uint64            `json:"height"`
}

// Accepted is reported for each message accepted by Submit
type Accepted struct {
	Origin common.Address
	ID     channel.MessageID
}

// Channel is one outbound channel towards a remote network.
//
// Channel is not safe for concurrent use; the hosting chain applies
// submissions sequentially.
type Channel struct {
	config   Config
	log      *zap.Logger
	db       database.Database
	store    offchain.Store
	notifier channel.StatusNotifier
	queue    *queue.Queue
	prefix   []byte

	lastNonce      uint64
	committedNonce uint64
	count          uint64
	halted         bool

	accepted []Accepted
}

// New loads the channel state from db, creating it if absent
func New(
	log *zap.Logger,
	config Config,
	db database.Database,
	store offchain.Store,
	notifier channel.StatusNotifier,
) (*Channel, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid outbound config: %w", err)
	}
	if notifier == nil {
		notifier = channel.NoopNotifier{}
	}
	c := &Channel{
		config:   config,
		log:      log.With(zap.Uint64("networkID", uint64(config.NetworkID)), zap.Stringer("channel", config.Channel)),
		db:       db,
		store:    store,
		notifier: notifier,
		queue:    queue.New(config.queueCapacity(), config.MaxPayloadSize),
		prefix:   Prefix(config.NetworkID, config.Channel),
	}
	if err := c.load(); err != nil {
		return nil, err
	}
	return c, nil
}

// Prefix is the database prefix of a channel's state
func Prefix(networkID channel.NetworkID, channelID common.Address) []byte {
	return database.Key([]byte("outbound"), database.Uint64Key(uint64(networkID)), channelID.Bytes())
}

func (c *Channel) key(parts ...[]byte) []byte {
	return database.Key(append([][]byte{c.prefix}, parts...)...)
}

func (c *Channel) load() error {
	var err error
	if c.lastNonce, err = database.GetUint64OrZero(c.db, c.key(nonceKey)); err != nil {
		return fmt.Errorf("failed to load nonce: %w", err)
	}
	if c.committedNonce, err = database.GetUint64OrZero(c.db, c.key(committedKey)); err != nil {
		return fmt.Errorf("failed to load committed nonce: %w", err)
	}
	if c.count, err = database.GetUint64OrZero(c.db, c.key(countKey)); err != nil {
		return fmt.Errorf("failed to load commitment count: %w", err)
	}
	if c.halted, err = c.db.Has(c.key(haltedKey)); err != nil {
		return fmt.Errorf("failed to load halted flag: %w", err)
	}
	var pending []channel.Message
	err = c.db.IteratePrefix(c.key(queuePrefix, nil), func(_, value []byte) (bool, error) {
		msg, err := channel.ParseMessage(value)
		if err != nil {
			return false, err
		}
		pending = append(pending, *msg)
		return true, nil
	})
	if err != nil {
		return fmt.Errorf("failed to load queue: %w", err)
	}
	for _, msg := range pending {
		if err := c.queue.Push(msg); err != nil {
			return fmt.Errorf("failed to restore queued message %d: %w", msg.Nonce, err)
		}
	}
	return nil
}

// Submit queues a message and returns its nonce
func (c *Channel) Submit(
	origin common.Address,
	target common.Address,
	payload []byte,
	fee *uint256.Int,
	maxGas uint64,
) (uint64, error) {
	if c.halted {
		return 0, fmt.Errorf("%w: nonce counter exhausted", channel.ErrChannelHalted)
	}
	if err := c.queue.CanPush(len(payload)); err != nil {
		return 0, err
	}
	if c.lastNonce == math.MaxUint64 {
		if err := c.halt(); err != nil {
			return 0, err
		}
		return 0, fmt.Errorf("%w: channel %s", channel.ErrNonceOverflow, c.config.Channel)
	}

	msg := channel.NewMessage(c.config.NetworkID, c.config.Channel, target, fee, maxGas, payload)
	msg.Nonce = c.lastNonce + 1
	if err := msg.Verify(c.config.MaxPayloadSize); err != nil {
		return 0, err
	}

	batch := c.db.NewBatch()
	if err := database.PutUint64(batch, c.key(nonceKey), msg.Nonce); err != nil {
		return 0, err
	}
	if err := batch.Put(c.key(queuePrefix, database.Uint64Key(msg.Nonce)), msg.Bytes()); err != nil {
		return 0, err
	}
	if err := batch.Write(); err != nil {
		return 0, fmt.Errorf("failed to persist message: %w", err)
	}
	if err := c.queue.Push(*msg); err != nil {
		return 0, err
	}
	c.lastNonce = msg.Nonce

	id := msg.ID()
	c.accepted = append(c.accepted, Accepted{Origin: origin, ID: id})
	c.notifier.OnStatusChange(c.config.NetworkID, id, channel.StatusInQueue)
	c.log.Debug(
		"Accepted message",
		zap.Stringer("origin", origin),
		zap.Stringer("target", target),
		zap.Uint64("nonce", msg.Nonce),
	)
	return msg.Nonce, nil
}

// halt permanently stops the channel. Recovery needs a manual migration.
func (c *Channel) halt() error {
	if err := c.db.Put(c.key(haltedKey), []byte{1}); err != nil {
		return fmt.Errorf("failed to persist halt: %w", err)
	}
	c.halted = true
	c.log.Error(
		"Nonce counter overflow, channel halted",
		zap.Uint64("lastNonce", c.lastNonce),
	)
	return nil
}

// Staged is a commit whose writes sit in a caller's batch. Apply moves the
// channel forward once that batch was written, Discard returns the messages
// to the queue.
type Staged struct {
	Record *Record

	ch      *Channel
	msgs    []channel.Message
	pending []channel.Message
	done    bool
}

// Commit drains the queue into a commitment, stores the body off-chain and
// stages the digest record of the on-chain log into batch. It returns nil
// if the queue is empty. Nothing in the channel changes until the caller
// writes batch and applies the result.
func (c *Channel) Commit(ctx context.Context, batch database.Batch, height uint64) (*Staged, error) {
	if c.queue.Len() == 0 {
		return nil, nil
	}

	s := &Staged{ch: c, pending: c.queue.Peek()}
	s.msgs = c.queue.Take(c.config.MaxMessagesPerCommit, c.config.MaxGasPerCommit)
	commitment, err := channel.NewCommitment(s.msgs)
	if err != nil {
		s.Discard()
		return nil, err
	}
	digest, err := offchain.PutCommitment(ctx, c.store, c.config.StoragePrefix, c.config.Kind, commitment)
	if err != nil {
		s.Discard()
		return nil, err
	}

	s.Record = &Record{
		NetworkID:  c.config.NetworkID,
		Channel:    c.config.Channel,
		Index:      c.count,
		Digest:     digest,
		FirstNonce: commitment.FirstNonce(),
		LastNonce:  commitment.LastNonce(),
		Height:     height,
	}
	if err := c.stage(batch, s); err != nil {
		s.Discard()
		return nil, err
	}
	return s, nil
}

func (c *Channel) stage(batch database.Batch, s *Staged) error {
	recordBytes, err := channel.Codec.Marshal(channel.CodecVersion, s.Record)
	if err != nil {
		return fmt.Errorf("failed to encode commitment record: %w", err)
	}
	for _, msg := range s.msgs {
		if err := batch.Delete(c.key(queuePrefix, database.Uint64Key(msg.Nonce))); err != nil {
			return err
		}
	}
	if err := batch.Put(c.key(logPrefix, database.Uint64Key(s.Record.Index)), recordBytes); err != nil {
		return err
	}
	if err := database.PutUint64(batch, c.key(countKey), c.count+1); err != nil {
		return err
	}
	return database.PutUint64(batch, c.key(committedKey), s.Record.LastNonce)
}

// Apply records the commit in memory and notifies the committed messages.
// The staging batch must have been written.
func (s *Staged) Apply() {
	if s.done {
		return
	}
	s.done = true
	c := s.ch
	c.count++
	c.committedNonce = s.Record.LastNonce
	for i := range s.msgs {
		c.notifier.OnStatusChange(c.config.NetworkID, s.msgs[i].ID(), channel.StatusCommitted)
	}
	c.log.Info(
		"Committed messages",
		zap.Stringer("digest", s.Record.Digest),
		zap.Uint64("index", s.Record.Index),
		zap.Uint64("firstNonce", s.Record.FirstNonce),
		zap.Uint64("lastNonce", s.Record.LastNonce),
		zap.Uint64("height", s.Record.Height),
		zap.Int("remaining", c.queue.Len()),
	)
}

// Discard puts the taken messages back in their original order. The
// staging batch must not be written.
func (s *Staged) Discard() {
	if s.done {
		return
	}
	s.done = true
	q := s.ch.queue
	q.Take(q.Len(), 0)
	for _, msg := range s.pending {
		_ = q.Push(msg)
	}
}

// Records returns the commitment log entries whose last nonce is greater
// than afterNonce, in commit order.
func (c *Channel) Records(afterNonce uint64) ([]Record, error) {
	var records []Record
	err := c.db.IteratePrefix(c.key(logPrefix, nil), func(_, value []byte) (bool, error) {
		var r Record
		if _, err := channel.Codec.Unmarshal(value, &r); err != nil {
			return false, fmt.Errorf("%w: commitment record: %v", channel.ErrDecode, err)
		}
		if r.LastNonce > afterNonce {
			records = append(records, r)
		}
		return true, nil
	})
	return records, err
}

// Commitment reads a committed batch back from off-chain storage
func (c *Channel) Commitment(ctx context.Context, digest common.Hash) (*channel.Commitment, error) {
	return offchain.GetCommitment(ctx, c.store, c.config.StoragePrefix, c.config.Kind, digest)
}

// DrainAccepted returns and clears the accepted notifications
func (c *Channel) DrainAccepted() []Accepted {
	out := c.accepted
	c.accepted = nil
	return out
}

// Config returns the channel config
func (c *Channel) Config() Config { return c.config }

// Nonce returns the last assigned nonce
func (c *Channel) Nonce() uint64 { return c.lastNonce }

// CommittedNonce returns the nonce of the last committed message
func (c *Channel) CommittedNonce() uint64 { return c.committedNonce }

// Pending returns the number of queued messages
func (c *Channel) Pending() int { return c.queue.Len() }

// Halted reports whether the nonce counter is exhausted
func (c *Channel) Halted() bool { return c.halted }
