// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

// Package chain is a deterministic single-process ledger hosting the bridge
// modules: outbound and inbound channels, light clients of other networks,
// committee approvals and legacy requests. Every state transition runs under
// one lock, one block at a time.
package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/luxfi/geth/common"
	"go.uber.org/zap"

	"github.com/luxfi/channel"
	"github.com/luxfi/channel/approval"
	"github.com/luxfi/channel/database"
	"github.com/luxfi/channel/inbound"
	"github.com/luxfi/channel/lightclient"
	"github.com/luxfi/channel/mmr"
	"github.com/luxfi/channel/offchain"
	"github.com/luxfi/channel/outbound"
)

var (
	ErrChannelExists = errors.New("channel already registered")

	heightKey         = []byte("chain/height")
	adminNonceKey     = []byte("chain/admin/nonce")
	leafPrefix        = []byte("chain/leaf")
	statementPrefix   = []byte("chain/statement")
	headerPrefix      = []byte("chain/header")
	validatorsKey     = []byte("chain/validators")
	inboxPrefix       = []byte("chain/inbox")
	outboundPrefix    = []byte("chain/config/outbound")
	inboundPrefix     = []byte("chain/config/inbound")
	lightClientPrefix = []byte("chain/config/lightclient")
)

type channelKey struct {
	network channel.NetworkID
	channel common.Address
}

type leafKey struct {
	network channel.NetworkID
	channel common.Address
	digest  common.Hash
}

// leafPos locates a leaf: the accumulator index under committee finality or
// the index inside its block under proof-of-work finality
type leafPos struct {
	index uint64
	block uint64
}

type storedLeaf struct {
	Leaf  lightclient.Leaf
	Index uint64
}

type validators struct {
	Current *lightclient.ValidatorSet
	Pending *lightclient.ValidatorSet `rlp:"nil"`
}

// Block summarises what one produced block changed
type Block struct {
	Number    uint64                 `json:"number"`
	Records   []outbound.Record      `json:"records"`
	Statement *lightclient.Statement `json:"statement,omitempty"`
	Header    *lightclient.Header    `json:"header,omitempty"`
}

// Chain is the simulated ledger
type Chain struct {
	lock   sync.Mutex
	log    *zap.Logger
	config Config
	db     database.Database
	store  offchain.Store

	height     uint64
	adminNonce uint64
	committer  *outbound.Committer
	outbound   map[channelKey]*outbound.Channel
	inbound    map[channelKey]*inbound.Channel
	registry   *inbound.Registry
	ledger     *ledger
	sync       *lightclient.Sync
	statuses   []channel.StatusChange
	requests   *approval.Requests
	leaves     map[leafKey]leafPos
	leafCount  uint64

	// committee finality
	accumulator *mmr.MMR
	current     *lightclient.ValidatorSet
	pending     *lightclient.ValidatorSet
	statements  []*lightclient.Statement
	approvals   map[uint64]*approval.Collector

	// proof-of-work finality
	headers     []*lightclient.Header
	blockLeaves map[uint64]*mmr.MMR
}

// New opens the chain stored in db
func New(log *zap.Logger, config Config, db database.Database, store offchain.Store) (*Chain, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid chain config: %w", err)
	}
	c := &Chain{
		log:         log.With(zap.Uint64("networkID", uint64(config.NetworkID))),
		config:      config,
		db:          db,
		store:       store,
		committer:   outbound.NewCommitter(log, config.RoundRobin),
		outbound:    make(map[channelKey]*outbound.Channel),
		inbound:     make(map[channelKey]*inbound.Channel),
		registry:    inbound.NewRegistry(),
		ledger:      newLedger(),
		sync:        lightclient.NewSync(log, config.Admin),
		leaves:      make(map[leafKey]leafPos),
		accumulator: mmr.New(),
		approvals:   make(map[uint64]*approval.Collector),
		blockLeaves: make(map[uint64]*mmr.MMR),
	}
	for _, target := range config.Inboxes {
		if err := c.registry.Register(target, c.inboxHandler()); err != nil {
			return nil, err
		}
	}
	if err := c.load(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Chain) notifier() channel.StatusNotifier {
	return channel.NotifierFunc(func(networkID channel.NetworkID, id channel.MessageID, status channel.Status) {
		c.statuses = append(c.statuses, channel.StatusChange{NetworkID: networkID, ID: id, Status: status})
	})
}

func (c *Chain) load() error {
	var err error
	if c.height, err = database.GetUint64OrZero(c.db, heightKey); err != nil {
		return fmt.Errorf("failed to load height: %w", err)
	}
	if c.adminNonce, err = database.GetUint64OrZero(c.db, adminNonceKey); err != nil {
		return fmt.Errorf("failed to load admin nonce: %w", err)
	}
	if err := c.loadValidators(); err != nil {
		return err
	}
	if err := c.loadLeaves(); err != nil {
		return err
	}
	if err := c.loadStatements(); err != nil {
		return err
	}
	if err := c.loadHeaders(); err != nil {
		return err
	}
	if err := c.loadChannels(); err != nil {
		return err
	}
	return c.loadLightClients()
}

func (c *Chain) loadValidators() error {
	if c.config.Finality != FinalityCommittee {
		return nil
	}
	b, err := c.db.Get(validatorsKey)
	switch {
	case database.IsNotFound(err):
		genesis, err := lightclient.NewValidatorSet(1, c.config.Committee)
		if err != nil {
			return err
		}
		c.current = genesis
	case err != nil:
		return fmt.Errorf("failed to load validators: %w", err)
	default:
		var v validators
		if _, err := channel.Codec.Unmarshal(b, &v); err != nil {
			return fmt.Errorf("%w: validators: %v", channel.ErrDecode, err)
		}
		c.current = v.Current
		c.pending = v.Pending
	}
	c.requests = approval.NewRequests(
		c.log,
		approval.NewCollector(c.current.ID, c.current.Members),
		c.requestListener,
	)
	return nil
}

func (c *Chain) saveValidators() error {
	b, err := channel.Codec.Marshal(channel.CodecVersion, &validators{Current: c.current, Pending: c.pending})
	if err != nil {
		return err
	}
	return c.db.Put(validatorsKey, b)
}

func (c *Chain) loadLeaves() error {
	return c.db.IteratePrefix(database.Key(leafPrefix, nil), func(_, value []byte) (bool, error) {
		var s storedLeaf
		if _, err := channel.Codec.Unmarshal(value, &s); err != nil {
			return false, fmt.Errorf("%w: leaf: %v", channel.ErrDecode, err)
		}
		c.addLeaf(&s.Leaf)
		return true, nil
	})
}

// addLeaf appends leaf to the accumulator of the current finality mode
func (c *Chain) addLeaf(leaf *lightclient.Leaf) storedLeaf {
	var index uint64
	if c.config.Finality == FinalityCommittee {
		index = c.accumulator.Append(leaf.Hash())
	} else {
		acc, ok := c.blockLeaves[leaf.Block]
		if !ok {
			acc = mmr.New()
			c.blockLeaves[leaf.Block] = acc
		}
		index = acc.Append(leaf.Hash())
	}
	c.leaves[leafKey{network: leaf.NetworkID, channel: leaf.Channel, digest: leaf.Digest}] = leafPos{
		index: index,
		block: leaf.Block,
	}
	c.leafCount++
	return storedLeaf{Leaf: *leaf, Index: index}
}

func (c *Chain) loadStatements() error {
	return c.db.IteratePrefix(database.Key(statementPrefix, nil), func(_, value []byte) (bool, error) {
		st := &lightclient.Statement{}
		if _, err := channel.Codec.Unmarshal(value, st); err != nil {
			return false, fmt.Errorf("%w: statement: %v", channel.ErrDecode, err)
		}
		c.statements = append(c.statements, st)
		return true, nil
	})
}

func (c *Chain) loadHeaders() error {
	if c.config.Finality != FinalityProofOfWork {
		return nil
	}
	err := c.db.IteratePrefix(database.Key(headerPrefix, nil), func(_, value []byte) (bool, error) {
		h := &lightclient.Header{}
		if _, err := channel.Codec.Unmarshal(value, h); err != nil {
			return false, fmt.Errorf("%w: header: %v", channel.ErrDecode, err)
		}
		c.headers = append(c.headers, h)
		return true, nil
	})
	if err != nil || len(c.headers) > 0 {
		return err
	}
	genesis := &lightclient.Header{Difficulty: c.config.difficulty()}
	genesis.Seal()
	return c.putHeader(c.db, genesis)
}

func (c *Chain) putHeader(w database.KeyValueWriter, h *lightclient.Header) error {
	b, err := channel.Codec.Marshal(channel.CodecVersion, h)
	if err != nil {
		return err
	}
	if err := w.Put(database.Key(headerPrefix, database.Uint64Key(h.Number)), b); err != nil {
		return err
	}
	c.headers = append(c.headers, h)
	return nil
}

func (c *Chain) loadChannels() error {
	err := c.db.IteratePrefix(database.Key(outboundPrefix, nil), func(_, value []byte) (bool, error) {
		var config outbound.Config
		if err := json.Unmarshal(value, &config); err != nil {
			return false, fmt.Errorf("%w: outbound config: %v", channel.ErrDecode, err)
		}
		return true, c.openOutbound(config)
	})
	if err != nil {
		return err
	}
	return c.db.IteratePrefix(database.Key(inboundPrefix, nil), func(_, value []byte) (bool, error) {
		var config inbound.Config
		if err := json.Unmarshal(value, &config); err != nil {
			return false, fmt.Errorf("%w: inbound config: %v", channel.ErrDecode, err)
		}
		return true, c.openInbound(config)
	})
}

func (c *Chain) openOutbound(config outbound.Config) error {
	ch, err := outbound.New(c.log, config, c.db, c.store, c.notifier())
	if err != nil {
		return err
	}
	c.outbound[channelKey{network: config.NetworkID, channel: config.Channel}] = ch
	c.committer.Add(ch)
	return nil
}

func (c *Chain) openInbound(config inbound.Config) error {
	ch, err := inbound.New(c.log, config, c.db, c.sync, c.registry, c.ledger, c.notifier())
	if err != nil {
		return err
	}
	c.inbound[channelKey{network: config.Origin, channel: config.Channel}] = ch
	return nil
}

// ProduceBlock advances the chain by one block: due outbound channels
// commit, their leaves are accumulated and the block is sealed with a
// finality statement or a header.
func (c *Chain) ProduceBlock(ctx context.Context) (*Block, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	height := c.height + 1
	batch := c.db.NewBatch()
	round, err := c.committer.Tick(ctx, batch, height)
	if err != nil {
		return nil, err
	}
	undo := c.snapshot()
	block, err := c.buildBlock(batch, height, round.Records(), undo)
	if err != nil {
		c.rollback(undo, height)
		round.Discard()
		return nil, err
	}
	if err := batch.Write(); err != nil {
		c.rollback(undo, height)
		round.Discard()
		return nil, fmt.Errorf("failed to persist block %d: %w", height, err)
	}
	round.Apply()
	c.height = height
	c.pruneApprovals()
	if st := block.Statement; st != nil && st.Next != nil {
		c.log.Info(
			"Committee handover announced",
			zap.Uint64("block", height),
			zap.Uint64("validatorSetID", st.Next.ID),
		)
	}
	c.log.Debug(
		"Produced block",
		zap.Uint64("height", height),
		zap.Int("commitments", len(block.Records)),
	)
	return block, nil
}

// blockUndo holds what a block changes in memory before its batch is
// written
type blockUndo struct {
	leafCount   uint64
	accumulated uint64
	leaves      []leafKey
	statements  int
	headers     int
	current     *lightclient.ValidatorSet
	pending     *lightclient.ValidatorSet
}

func (c *Chain) snapshot() *blockUndo {
	return &blockUndo{
		leafCount:   c.leafCount,
		accumulated: c.accumulator.Len(),
		statements:  len(c.statements),
		headers:     len(c.headers),
		current:     c.current,
		pending:     c.pending,
	}
}

// rollback forgets a block that was not persisted
func (c *Chain) rollback(u *blockUndo, height uint64) {
	for _, k := range u.leaves {
		delete(c.leaves, k)
	}
	c.leafCount = u.leafCount
	c.accumulator.Truncate(u.accumulated)
	delete(c.blockLeaves, height)
	c.statements = c.statements[:u.statements]
	c.headers = c.headers[:u.headers]
	delete(c.approvals, height)
	if c.current != u.current {
		c.current = u.current
		c.requests.Rotate(c.current.ID, c.current.Members)
	}
	c.pending = u.pending
}

// buildBlock stages the leaves of records and the seal of height into batch
func (c *Chain) buildBlock(batch database.Batch, height uint64, records []*outbound.Record, undo *blockUndo) (*Block, error) {
	block := &Block{Number: height}
	for _, r := range records {
		block.Records = append(block.Records, *r)
		leaf := &lightclient.Leaf{
			NetworkID: r.NetworkID,
			Channel:   r.Channel,
			Digest:    r.Digest,
			Block:     height,
		}
		seq := c.leafCount
		stored := c.addLeaf(leaf)
		undo.leaves = append(undo.leaves, leafKey{network: leaf.NetworkID, channel: leaf.Channel, digest: leaf.Digest})
		b, err := channel.Codec.Marshal(channel.CodecVersion, &stored)
		if err != nil {
			return nil, err
		}
		if err := batch.Put(database.Key(leafPrefix, database.Uint64Key(seq)), b); err != nil {
			return nil, err
		}
	}

	switch c.config.Finality {
	case FinalityCommittee:
		if len(records) > 0 || c.pending != nil {
			st, err := c.sealStatement(batch, height)
			if err != nil {
				return nil, err
			}
			block.Statement = st
		}
	case FinalityProofOfWork:
		h, err := c.sealHeader(batch, height)
		if err != nil {
			return nil, err
		}
		block.Header = h
	}

	if err := database.PutUint64(batch, heightKey, height); err != nil {
		return nil, err
	}
	return block, nil
}

func (c *Chain) sealStatement(batch database.Batch, height uint64) (*lightclient.Statement, error) {
	st := &lightclient.Statement{
		BlockNumber:    height,
		ValidatorSetID: c.current.ID,
		LeafCount:      c.accumulator.Len(),
		Next:           c.pending.Clone(),
	}
	if st.LeafCount > 0 {
		root, err := c.accumulator.Root()
		if err != nil {
			return nil, err
		}
		st.Root = root
	}
	b, err := channel.Codec.Marshal(channel.CodecVersion, st)
	if err != nil {
		return nil, err
	}
	if err := batch.Put(database.Key(statementPrefix, database.Uint64Key(height)), b); err != nil {
		return nil, err
	}
	c.statements = append(c.statements, st)
	c.approvals[height] = approval.NewCollector(c.current.ID, c.current.Members)

	if c.pending != nil {
		// Statements after this one are signed by the announced set.
		c.current = c.pending
		c.pending = nil
		c.requests.Rotate(c.current.ID, c.current.Members)
		v, err := channel.Codec.Marshal(channel.CodecVersion, &validators{Current: c.current})
		if err != nil {
			return nil, err
		}
		if err := batch.Put(validatorsKey, v); err != nil {
			return nil, err
		}
	}
	return st, nil
}

func (c *Chain) sealHeader(batch database.Batch, height uint64) (*lightclient.Header, error) {
	parent := c.headers[len(c.headers)-1]
	h := &lightclient.Header{
		ParentHash: parent.Hash(),
		Number:     height,
		Time:       height,
		Difficulty: c.config.difficulty(),
	}
	if acc, ok := c.blockLeaves[height]; ok {
		root, err := acc.Root()
		if err != nil {
			return nil, err
		}
		h.LogsRoot = root
		h.LogsCount = acc.Len()
	}
	h.Seal()
	if err := c.putHeader(batch, h); err != nil {
		return nil, err
	}
	return h, nil
}

func (c *Chain) inboxHandler() inbound.Handler {
	return inbound.HandlerFunc(func(_ context.Context, msg *channel.Message) error {
		key := database.Key(inboxPrefix, msg.Target.Bytes(), msg.Channel.Bytes(), database.Uint64Key(msg.Nonce))
		return c.db.Put(key, msg.Bytes())
	})
}

// Height returns the number of the last produced block
func (c *Chain) Height() uint64 {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.height
}

// NetworkID returns the id of this chain
func (c *Chain) NetworkID() channel.NetworkID {
	return c.config.NetworkID
}

// Finality returns the finality mode of this chain
func (c *Chain) Finality() Finality {
	return c.config.Finality
}

// Statuses returns the status changes recorded from index from on
func (c *Chain) Statuses(from int) []channel.StatusChange {
	c.lock.Lock()
	defer c.lock.Unlock()
	if from < 0 || from >= len(c.statuses) {
		return nil
	}
	return append([]channel.StatusChange(nil), c.statuses[from:]...)
}

// Inbox returns the messages delivered to an inbox target
func (c *Chain) Inbox(target common.Address) ([]channel.Message, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	var msgs []channel.Message
	err := c.db.IteratePrefix(database.Key(inboxPrefix, target.Bytes(), nil), func(_, value []byte) (bool, error) {
		msg, err := channel.ParseMessage(value)
		if err != nil {
			return false, err
		}
		msgs = append(msgs, *msg)
		return true, nil
	})
	return msgs, err
}
