// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package chain

import (
	"errors"
	"fmt"

	"github.com/luxfi/geth/common"
	"go.uber.org/zap"

	"github.com/luxfi/channel"
	"github.com/luxfi/channel/approval"
)

func (c *Chain) requestListener(r approval.Request) {
	c.log.Debug(
		"Request status",
		zap.Stringer("hash", r.Hash),
		zap.Stringer("status", r.Status),
	)
}

func (c *Chain) legacyRequests() (*approval.Requests, error) {
	if c.requests == nil {
		return nil, fmt.Errorf("%w: chain %d has no committee for requests", channel.ErrUnknownNetwork, c.config.NetworkID)
	}
	return c.requests, nil
}

// RegisterRequest starts tracking a legacy request
func (c *Chain) RegisterRequest(hash common.Hash, network channel.NetworkID, payload []byte) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	r, err := c.legacyRequests()
	if err != nil {
		return err
	}
	return r.Register(hash, network, payload)
}

// ApproveRequest records a committee signature over a request hash
func (c *Chain) ApproveRequest(hash common.Hash, signer common.Address, signature []byte) (approval.RequestStatus, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	r, err := c.legacyRequests()
	if err != nil {
		return 0, err
	}
	return r.Approve(hash, signer, signature)
}

// FinalizeRequest reports the destination outcome of a request. A non-empty
// reason fails it.
func (c *Chain) FinalizeRequest(origin common.Address, hash common.Hash, reason string) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	if err := c.authorize(origin); err != nil {
		return err
	}
	r, err := c.legacyRequests()
	if err != nil {
		return err
	}
	var verifyErr error
	if reason != "" {
		verifyErr = errors.New(reason)
	}
	return r.Finalize(hash, verifyErr)
}

// CancelRequest withdraws a request still waiting for approvals
func (c *Chain) CancelRequest(origin common.Address, hash common.Hash) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	if err := c.authorize(origin); err != nil {
		return err
	}
	r, err := c.legacyRequests()
	if err != nil {
		return err
	}
	return r.Cancel(hash)
}

// Request returns a legacy request
func (c *Chain) Request(hash common.Hash) (*approval.Request, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	r, err := c.legacyRequests()
	if err != nil {
		return nil, err
	}
	req, ok := r.Get(hash)
	if !ok {
		return nil, fmt.Errorf("%w: request %s", channel.ErrNotFound, hash)
	}
	return &req, nil
}

// PendingRequests returns the requests awaiting delivery
func (c *Chain) PendingRequests() ([]common.Hash, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	r, err := c.legacyRequests()
	if err != nil {
		return nil, err
	}
	return r.Pending(), nil
}
