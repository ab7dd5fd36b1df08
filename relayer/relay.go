// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package relayer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/luxfi/geth/common"
	"go.uber.org/zap"

	"github.com/luxfi/channel"
	"github.com/luxfi/channel/chain"
	"github.com/luxfi/channel/inbound"
	"github.com/luxfi/channel/lightclient"
	"github.com/luxfi/channel/outbound"
	"github.com/luxfi/channel/utils"
)

// read runs an idempotent call with a per-call timeout, retrying transport
// failures. Coded errors from either chain are returned at once.
func (r *Relayer) read(ctx context.Context, op func(ctx context.Context) error) error {
	return utils.WithRetriesTimeout(ctx, r.log, func() error {
		err := r.call(ctx, op)
		if err == nil {
			return nil
		}
		if channel.Classify(err) == channel.KindUnknown || (errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil) {
			return err
		}
		return backoff.Permanent(err)
	}, r.config.RetryTimeout)
}

// call runs op once with a per-call timeout
func (r *Relayer) call(ctx context.Context, op func(ctx context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, r.config.RPCTimeout)
	defer cancel()
	return op(callCtx)
}

// waiting reports errors that clear once the source chain progresses
func waiting(err error) bool {
	return errors.Is(err, channel.ErrNotFinalized) || errors.Is(err, channel.ErrNotReady)
}

func (r *Relayer) relay(ctx context.Context, route Route) error {
	r.setState(route, StateWatching)
	defer r.setState(route, StateIdle)

	var dispatched uint64
	err := r.read(ctx, func(ctx context.Context) error {
		var err error
		dispatched, err = r.dest.Dispatched(ctx, r.origin, route.Channel)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to read dispatched nonce: %w", err)
	}
	labels := route.labels(r.origin)
	r.metrics.dispatchedNonce.With(labels).Set(float64(dispatched))

	cp := r.checkpoints[route]
	if committed := cp.Committed(); dispatched < committed {
		cp.Reset(dispatched)
	} else {
		cp.Advance(dispatched)
	}

	var records []outbound.Record
	err = r.read(ctx, func(ctx context.Context) error {
		var err error
		records, err = r.source.Records(ctx, route.Destination, route.Channel, dispatched)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to read commitment log: %w", err)
	}

	for _, record := range records {
		if record.FirstNonce != dispatched+1 {
			return fmt.Errorf("%w: commitment %s starts at nonce %d, destination expects %d",
				channel.ErrInvalidNonce, record.Digest, record.FirstNonce, dispatched+1)
		}
		delivered, err := r.deliver(ctx, route, record)
		if err != nil {
			return err
		}
		if !delivered {
			return nil
		}
		dispatched = record.LastNonce
	}
	return nil
}

// deliver proves and submits one commitment. It returns false without error
// while the commitment is not final yet.
func (r *Relayer) deliver(ctx context.Context, route Route, record outbound.Record) (bool, error) {
	log := r.routeLog(route).With(
		zap.Stringer("digest", record.Digest),
		zap.Uint64("firstNonce", record.FirstNonce),
		zap.Uint64("lastNonce", record.LastNonce),
	)
	labels := route.labels(r.origin)
	r.setState(route, StateProofAssembly)
	start := time.Now()

	commitment, err := r.commitments.Get(ctx, record.Digest, func(ctx context.Context, digest common.Hash) (*channel.Commitment, error) {
		var c *channel.Commitment
		err := r.read(ctx, func(ctx context.Context) error {
			var err error
			c, err = r.source.Commitment(ctx, route.Destination, route.Channel, digest)
			return err
		})
		return c, err
	}, false)
	if err != nil {
		return false, fmt.Errorf("failed to fetch commitment: %w", err)
	}

	at, err := r.ensureFinality(ctx, record.Height)
	if waiting(err) {
		log.Debug("Waiting for finality", zap.Uint64("height", record.Height), zap.Error(err))
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to sync light client: %w", err)
	}

	var (
		proof *lightclient.Proof
		block uint64
	)
	err = r.read(ctx, func(ctx context.Context) error {
		var err error
		proof, block, err = r.source.Prove(ctx, route.Destination, route.Channel, record.Digest, at)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("failed to build proof: %w", err)
	}
	r.metrics.proofAssembled(labels, time.Since(start))

	r.setState(route, StateSubmitting)
	if err := r.limiter.Wait(ctx); err != nil {
		return false, err
	}
	var receipt *inbound.Receipt
	err = r.call(ctx, func(ctx context.Context) error {
		var err error
		receipt, err = r.dest.Deliver(ctx, r.config.Address, r.origin, &inbound.Delivery{
			Commitment: *commitment,
			Block:      block,
			Proof:      *proof,
		})
		return err
	})
	switch {
	case channel.IsDuplicate(err):
		r.metrics.duplicateDeliveries.With(labels).Inc()
		log.Debug("Commitment already delivered")
	case err != nil:
		kind := channel.Classify(err)
		r.metrics.failed(labels, kind)
		if kind == channel.KindProofInvalid {
			r.claims.Remove(at)
		}
		return false, fmt.Errorf("failed to deliver commitment %s: %w", record.Digest, err)
	default:
		failed := 0
		for _, result := range receipt.Results {
			if result.Status == channel.StatusFailed {
				failed++
			}
		}
		r.metrics.delivered(labels, len(receipt.Results))
		log.Info(
			"Delivered commitment",
			zap.Int("messages", len(receipt.Results)),
			zap.Int("failed", failed),
			zap.Stringer("reward", receipt.Reward),
		)
	}
	r.checkpoints[route].Stage(record.FirstNonce, record.LastNonce)
	return true, nil
}

// ensureFinality brings the destination light client to a state that can
// verify a commitment made at height. Under committee finality it returns
// the statement block to prove against.
func (r *Relayer) ensureFinality(ctx context.Context, height uint64) (uint64, error) {
	r.syncLock.Lock()
	defer r.syncLock.Unlock()

	switch r.finality {
	case chain.FinalityCommittee:
		return r.syncCommittee(ctx, height)
	case chain.FinalityProofOfWork:
		return 0, r.syncHeaders(ctx, height)
	default:
		return 0, fmt.Errorf("%w: source finality %q", channel.ErrUnknownNetwork, r.finality)
	}
}

func (r *Relayer) lightClient(ctx context.Context) (*chain.LightClientStatus, error) {
	var status *chain.LightClientStatus
	err := r.read(ctx, func(ctx context.Context) error {
		var err error
		status, err = r.dest.LightClient(ctx, r.origin)
		return err
	})
	return status, err
}

func (r *Relayer) syncCommittee(ctx context.Context, height uint64) (uint64, error) {
	status, err := r.lightClient(ctx)
	if err != nil {
		return 0, err
	}
	if status.Latest >= height {
		return status.Latest, nil
	}

	var statements []lightclient.Statement
	err = r.read(ctx, func(ctx context.Context) error {
		var err error
		statements, err = r.source.Statements(ctx, status.Latest, 0)
		return err
	})
	if err != nil {
		return 0, err
	}
	for i := range statements {
		st := &statements[i]
		// Statements announcing a committee cannot be skipped.
		if st.Next == nil && st.BlockNumber < height {
			continue
		}
		if err := r.importStatement(ctx, st); err != nil {
			return 0, err
		}
		if st.BlockNumber >= height {
			return st.BlockNumber, nil
		}
	}
	return 0, fmt.Errorf("%w: no statement covers block %d", channel.ErrNotFinalized, height)
}

func (r *Relayer) importStatement(ctx context.Context, st *lightclient.Statement) error {
	if r.config.Signer != nil {
		if err := r.approve(ctx, st); err != nil {
			return err
		}
	}

	claim, err := r.claims.Get(ctx, st.BlockNumber, func(ctx context.Context, block uint64) (*lightclient.FinalityClaim, error) {
		var claim *lightclient.FinalityClaim
		err := r.call(ctx, func(ctx context.Context) error {
			var err error
			claim, err = r.source.FinalityClaim(ctx, block)
			return err
		})
		return claim, err
	}, false)
	if err != nil {
		return err
	}

	err = r.call(ctx, func(ctx context.Context) error {
		return r.dest.ImportFinality(ctx, r.origin, claim)
	})
	switch {
	case err == nil:
		r.metrics.importedClaims.Inc()
		r.log.Info(
			"Imported finality statement",
			zap.Uint64("block", st.BlockNumber),
			zap.Uint64("validatorSetID", st.ValidatorSetID),
			zap.Int("signatures", len(claim.Signatures)),
		)
	case channel.IsDuplicate(err):
	case errors.Is(err, channel.ErrStaleClaim):
		// Another relayer moved the light client past this statement.
		return fmt.Errorf("%w: %v", channel.ErrNotReady, err)
	default:
		r.claims.Remove(st.BlockNumber)
		return fmt.Errorf("failed to import statement %d: %w", st.BlockNumber, err)
	}
	return nil
}

// approve submits this relayer's signature over st once
func (r *Relayer) approve(ctx context.Context, st *lightclient.Statement) error {
	signer := r.config.Signer
	_, err := r.approvals.Get(ctx, st.BlockNumber, func(ctx context.Context, block uint64) (bool, error) {
		sig, err := signer.Sign(st.Digest())
		if err != nil {
			return false, err
		}
		var ready bool
		err = r.call(ctx, func(ctx context.Context) error {
			var err error
			ready, err = r.source.Approve(ctx, block, signer.Address(), sig)
			return err
		})
		return ready, err
	})
	if errors.Is(err, channel.ErrForbidden) || errors.Is(err, channel.ErrStaleClaim) {
		r.log.Debug(
			"Statement not signable by this relayer",
			zap.Uint64("block", st.BlockNumber),
			zap.Error(err),
		)
		return nil
	}
	return err
}

func (r *Relayer) syncHeaders(ctx context.Context, height uint64) error {
	status, err := r.lightClient(ctx)
	if err != nil {
		return err
	}
	if status.Finalized >= height {
		return nil
	}

	var headers []*lightclient.Header
	err = r.read(ctx, func(ctx context.Context) error {
		var err error
		headers, err = r.source.Headers(ctx, status.Best+1, r.config.HeaderBatchSize)
		return err
	})
	if err != nil {
		return err
	}
	if len(headers) > 0 {
		err := r.call(ctx, func(ctx context.Context) error {
			return r.dest.ImportHeaders(ctx, r.origin, headers)
		})
		switch {
		case err == nil:
			r.metrics.importedHeaders.Add(float64(len(headers)))
			r.log.Debug(
				"Imported headers",
				zap.Uint64("from", headers[0].Number),
				zap.Int("count", len(headers)),
			)
		case channel.IsDuplicate(err):
		default:
			return fmt.Errorf("failed to import headers from %d: %w", headers[0].Number, err)
		}
	}

	if status, err = r.lightClient(ctx); err != nil {
		return err
	}
	if status.Finalized >= height {
		return nil
	}
	return fmt.Errorf("%w: block %d, finalized %d", channel.ErrNotFinalized, height, status.Finalized)
}
