// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

// Package relayer moves committed batches from a source chain to a
// destination chain. It holds no authority: every delivery is checked by the
// destination's light client, so any number of relayers may run against the
// same channels.
package relayer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/luxfi/geth/common"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/luxfi/channel"
	"github.com/luxfi/channel/approval"
	"github.com/luxfi/channel/cache"
	"github.com/luxfi/channel/chain"
	"github.com/luxfi/channel/database"
	"github.com/luxfi/channel/inbound"
	"github.com/luxfi/channel/lightclient"
	"github.com/luxfi/channel/outbound"
	"github.com/luxfi/channel/relayer/checkpoint"
	"github.com/luxfi/channel/utils"
)

const (
	DefaultPollInterval       = 2 * time.Second
	DefaultWriteInterval      = 10 * time.Second
	DefaultCommitmentCacheTTL = time.Minute
	DefaultHeaderBatchSize    = 64

	claimCacheSize    = 256
	approvalCacheSize = 1024
)

var errNoRoutes = errors.New("no channels to relay")

// State of the relay loop on one channel
type State uint8

const (
	StateIdle State = iota
	StateWatching
	StateProofAssembly
	StateSubmitting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWatching:
		return "watching"
	case StateProofAssembly:
		return "proof-assembly"
	case StateSubmitting:
		return "submitting"
	default:
		return "unknown"
	}
}

// Source is the chain commitments are read from
type Source interface {
	Info(ctx context.Context) (*chain.Info, error)
	Records(ctx context.Context, network channel.NetworkID, channelID common.Address, afterNonce uint64) ([]outbound.Record, error)
	Commitment(ctx context.Context, network channel.NetworkID, channelID common.Address, digest common.Hash) (*channel.Commitment, error)
	Statements(ctx context.Context, afterBlock uint64, limit int) ([]lightclient.Statement, error)
	Approve(ctx context.Context, block uint64, signer common.Address, signature []byte) (bool, error)
	FinalityClaim(ctx context.Context, block uint64) (*lightclient.FinalityClaim, error)
	Headers(ctx context.Context, from uint64, limit int) ([]*lightclient.Header, error)
	Prove(ctx context.Context, network channel.NetworkID, channelID common.Address, digest common.Hash, at uint64) (*lightclient.Proof, uint64, error)
}

// Destination is the chain commitments are delivered to
type Destination interface {
	Dispatched(ctx context.Context, origin channel.NetworkID, channelID common.Address) (uint64, error)
	LightClient(ctx context.Context, origin channel.NetworkID) (*chain.LightClientStatus, error)
	ImportFinality(ctx context.Context, origin channel.NetworkID, claim *lightclient.FinalityClaim) error
	ImportHeaders(ctx context.Context, origin channel.NetworkID, headers []*lightclient.Header) error
	Deliver(ctx context.Context, relayer common.Address, origin channel.NetworkID, d *inbound.Delivery) (*inbound.Receipt, error)
}

// Route is one relayed channel
type Route struct {
	Destination channel.NetworkID
	Channel     common.Address
}

// Config of a relayer
type Config struct {
	// Address is credited with delivery rewards
	Address common.Address
	// Signer, if set, approves committee statements of the source chain
	Signer approval.Signer
	Routes []Route

	PollInterval  time.Duration
	WriteInterval time.Duration
	// RPCTimeout bounds every single call to either chain
	RPCTimeout time.Duration
	// RetryTimeout bounds the retries of a failed read
	RetryTimeout time.Duration
	// SubmissionsPerSecond caps deliveries. Zero means unlimited.
	SubmissionsPerSecond float64
	CommitmentCacheTTL   time.Duration
	HeaderBatchSize      int
}

func (c *Config) setDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.WriteInterval <= 0 {
		c.WriteInterval = DefaultWriteInterval
	}
	if c.RPCTimeout <= 0 {
		c.RPCTimeout = utils.DefaultRPCTimeout
	}
	if c.RetryTimeout <= 0 {
		c.RetryTimeout = utils.DefaultRetryTimeout
	}
	if c.CommitmentCacheTTL <= 0 {
		c.CommitmentCacheTTL = DefaultCommitmentCacheTTL
	}
	if c.HeaderBatchSize <= 0 {
		c.HeaderBatchSize = DefaultHeaderBatchSize
	}
}

// Relayer runs the relay loop over a set of routes
type Relayer struct {
	log      *zap.Logger
	config   Config
	source   Source
	dest     Destination
	origin   channel.NetworkID
	finality chain.Finality
	metrics  *Metrics
	limiter  *rate.Limiter

	checkpoints map[Route]*checkpoint.Manager
	commitments *cache.TTLCache[common.Hash, *channel.Commitment]
	claims      *cache.LRUCache[uint64, *lightclient.FinalityClaim]
	approvals   *cache.FIFOCache[uint64, bool]

	// syncLock serialises light client updates across routes
	syncLock sync.Mutex

	stateLock sync.RWMutex
	states    map[Route]State
}

// New creates a relayer. It reads the source chain's identity once.
func New(
	ctx context.Context,
	log *zap.Logger,
	config Config,
	source Source,
	dest Destination,
	db database.Database,
	registerer prometheus.Registerer,
) (*Relayer, error) {
	if len(config.Routes) == 0 {
		return nil, errNoRoutes
	}
	config.setDefaults()

	callCtx, cancel := context.WithTimeout(ctx, config.RPCTimeout)
	info, err := source.Info(callCtx)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("failed to read source chain info: %w", err)
	}
	metrics, err := NewMetrics(registerer)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	claims, err := cache.NewLRUCache[uint64, *lightclient.FinalityClaim](claimCacheSize)
	if err != nil {
		return nil, err
	}

	limit := rate.Inf
	if config.SubmissionsPerSecond > 0 {
		limit = rate.Limit(config.SubmissionsPerSecond)
	}
	r := &Relayer{
		log:         log.With(zap.Uint64("origin", uint64(info.NetworkID))),
		config:      config,
		source:      source,
		dest:        dest,
		origin:      info.NetworkID,
		finality:    info.Finality,
		metrics:     metrics,
		limiter:     rate.NewLimiter(limit, 1),
		checkpoints: make(map[Route]*checkpoint.Manager),
		commitments: cache.NewTTLCache[common.Hash, *channel.Commitment](config.CommitmentCacheTTL),
		claims:      claims,
		approvals:   cache.NewFIFOCache[uint64, bool](approvalCacheSize),
		states:      make(map[Route]State),
	}
	for _, route := range config.Routes {
		if _, ok := r.checkpoints[route]; ok {
			return nil, fmt.Errorf("duplicate route %d/%s", route.Destination, route.Channel)
		}
		if err := r.checkRoute(ctx, route); err != nil {
			return nil, err
		}
		cp, err := checkpoint.New(
			r.routeLog(route),
			db,
			checkpoint.Key(r.origin, route.Destination, route.Channel),
		)
		if err != nil {
			return nil, err
		}
		r.checkpoints[route] = cp
		r.states[route] = StateIdle
	}
	r.log.Info(
		"Created relayer",
		zap.String("finality", string(r.finality)),
		zap.Int("routes", len(config.Routes)),
		zap.Stringer("address", config.Address),
	)
	return r, nil
}

// checkRoute fails unless both ends of route are registered. An
// unregistered channel would otherwise be retried forever.
func (r *Relayer) checkRoute(ctx context.Context, route Route) error {
	callCtx, cancel := context.WithTimeout(ctx, r.config.RPCTimeout)
	defer cancel()
	if _, err := r.source.Records(callCtx, route.Destination, route.Channel, math.MaxUint64); err != nil {
		return fmt.Errorf("outbound channel %d/%s on network %d: %w", route.Destination, route.Channel, r.origin, err)
	}
	if _, err := r.dest.Dispatched(callCtx, r.origin, route.Channel); err != nil {
		return fmt.Errorf("inbound channel %d/%s on network %d: %w", r.origin, route.Channel, route.Destination, err)
	}
	return nil
}

func (r *Relayer) routeLog(route Route) *zap.Logger {
	return r.log.With(
		zap.Uint64("destination", uint64(route.Destination)),
		zap.Stringer("channel", route.Channel),
	)
}

// Run relays every PollInterval until ctx is done or a fatal error occurs
func (r *Relayer) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	signals := make([]chan struct{}, 0, len(r.checkpoints))
	for _, cp := range r.checkpoints {
		cp := cp
		signal := make(chan struct{}, 1)
		signals = append(signals, signal)
		g.Go(func() error {
			cp.Run(ctx, signal)
			return nil
		})
	}

	g.Go(func() error {
		poll := time.NewTicker(r.config.PollInterval)
		defer poll.Stop()
		write := time.NewTicker(r.config.WriteInterval)
		defer write.Stop()

		for {
			if err := r.Tick(ctx); err != nil {
				return err
			}
			select {
			case <-ctx.Done():
				return nil
			case <-write.C:
				for _, s := range signals {
					select {
					case s <- struct{}{}:
					default:
					}
				}
			case <-poll.C:
			}
		}
	})
	return g.Wait()
}

// Tick runs one pass over every route concurrently. Only fatal errors are
// returned; anything else is logged and retried on the next tick.
func (r *Relayer) Tick(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, route := range r.config.Routes {
		route := route
		g.Go(func() error {
			err := r.relay(gctx, route)
			if err == nil {
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			kind := channel.Classify(err)
			if kind == channel.KindFatal {
				r.routeLog(route).Error("Relay halted", zap.Error(err))
				return err
			}
			r.routeLog(route).Warn(
				"Relay attempt failed",
				zap.Stringer("kind", kind),
				zap.Error(err),
			)
			return nil
		})
	}
	return g.Wait()
}

// Flush writes all checkpoints
func (r *Relayer) Flush() error {
	for _, cp := range r.checkpoints {
		if err := cp.Flush(); err != nil {
			return err
		}
	}
	return nil
}

// State returns the loop state of route
func (r *Relayer) State(route Route) State {
	r.stateLock.RLock()
	defer r.stateLock.RUnlock()
	return r.states[route]
}

// Delivered returns the delivered nonce watermark of route
func (r *Relayer) Delivered(route Route) uint64 {
	cp, ok := r.checkpoints[route]
	if !ok {
		return 0
	}
	return cp.Committed()
}

func (r *Relayer) setState(route Route, s State) {
	r.stateLock.Lock()
	defer r.stateLock.Unlock()
	r.states[route] = s
}
