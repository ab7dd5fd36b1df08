// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package approval

import (
	"errors"
	"fmt"

	"github.com/luxfi/geth/common"
	"go.uber.org/zap"

	"github.com/luxfi/channel"
)

var (
	ErrUnknownRequest    = errors.New("unknown request")
	ErrRequestExists     = errors.New("request already registered")
	ErrInvalidTransition = errors.New("invalid request status transition")
)

// RequestStatus is the lifecycle of a legacy per-request transfer
type RequestStatus uint8

const (
	RequestPending RequestStatus = iota + 1
	RequestApprovalsReady
	RequestDone
	RequestFailed
	RequestCancelled
)

func (s RequestStatus) String() string {
	switch s {
	case RequestPending:
		return "pending"
	case RequestApprovalsReady:
		return "approvals-ready"
	case RequestDone:
		return "done"
	case RequestFailed:
		return "failed"
	case RequestCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Request is a single legacy bridge request, e.g. an asset transfer
type Request struct {
	Hash      common.Hash
	NetworkID channel.NetworkID
	Payload   []byte
	Status    RequestStatus
	Reason    string
}

// RequestListener observes request status transitions
type RequestListener func(req Request)

// Requests tracks legacy requests and their approvals. A request enters the
// pending-delivery index when its approvals become ready and leaves it when
// it completes or fails.
type Requests struct {
	log       *zap.Logger
	collector *Collector
	requests  map[common.Hash]*Request
	pending   []common.Hash
	listener  RequestListener
}

func NewRequests(log *zap.Logger, collector *Collector, listener RequestListener) *Requests {
	if listener == nil {
		listener = func(Request) {}
	}
	return &Requests{
		log:       log,
		collector: collector,
		requests:  make(map[common.Hash]*Request),
		listener:  listener,
	}
}

// Register starts tracking a request observed on the source network
func (r *Requests) Register(hash common.Hash, networkID channel.NetworkID, payload []byte) error {
	if _, ok := r.requests[hash]; ok {
		return fmt.Errorf("%w: %s", ErrRequestExists, hash)
	}
	req := &Request{
		Hash:      hash,
		NetworkID: networkID,
		Payload:   append([]byte(nil), payload...),
		Status:    RequestPending,
	}
	r.requests[hash] = req
	r.listener(*req)
	return nil
}

// Approve records a peer signature over the request hash. The request
// becomes ApprovalsReady the moment the signature set reaches majority.
func (r *Requests) Approve(hash common.Hash, signer common.Address, signature []byte) (RequestStatus, error) {
	req, ok := r.requests[hash]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownRequest, hash)
	}
	if _, err := r.collector.Record(hash, signer, signature); err != nil {
		return req.Status, err
	}
	if req.Status == RequestPending && r.collector.IsReady(hash) {
		req.Status = RequestApprovalsReady
		r.pending = append(r.pending, hash)
		r.log.Info(
			"Request approvals ready",
			zap.Stringer("hash", hash),
			zap.Int("signatures", r.collector.Count(hash)),
		)
		r.listener(*req)
	}
	return req.Status, nil
}

// Finalize completes a request whose approvals are ready. A non-nil
// verifyErr marks the request Failed; nothing is dropped silently.
func (r *Requests) Finalize(hash common.Hash, verifyErr error) error {
	req, ok := r.requests[hash]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRequest, hash)
	}
	if verifyErr != nil {
		return r.fail(req, verifyErr.Error())
	}
	if req.Status != RequestApprovalsReady {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, req.Status, RequestDone)
	}
	req.Status = RequestDone
	r.removePending(hash)
	r.collector.Forget(hash)
	r.listener(*req)
	return nil
}

// Fail marks an unfinished request as failed
func (r *Requests) Fail(hash common.Hash, reason string) error {
	req, ok := r.requests[hash]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRequest, hash)
	}
	return r.fail(req, reason)
}

func (r *Requests) fail(req *Request, reason string) error {
	if req.Status != RequestPending && req.Status != RequestApprovalsReady {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, req.Status, RequestFailed)
	}
	req.Status = RequestFailed
	req.Reason = reason
	r.removePending(req.Hash)
	r.log.Warn(
		"Request failed",
		zap.Stringer("hash", req.Hash),
		zap.String("reason", reason),
	)
	r.listener(*req)
	return nil
}

// Cancel withdraws a request that has not gathered its approvals yet
func (r *Requests) Cancel(hash common.Hash) error {
	req, ok := r.requests[hash]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRequest, hash)
	}
	if req.Status != RequestPending {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, req.Status, RequestCancelled)
	}
	req.Status = RequestCancelled
	r.collector.Forget(hash)
	r.listener(*req)
	return nil
}

// Rotate switches the peer set approving requests. Pending requests
// restart their approval count under the new epoch.
func (r *Requests) Rotate(epoch uint64, peers []common.Address) {
	r.collector.Rotate(epoch, peers)
}

// Get returns a copy of the request
func (r *Requests) Get(hash common.Hash) (Request, bool) {
	req, ok := r.requests[hash]
	if !ok {
		return Request{}, false
	}
	return *req, true
}

// Pending returns the hashes awaiting delivery, oldest first
func (r *Requests) Pending() []common.Hash {
	return append([]common.Hash(nil), r.pending...)
}

func (r *Requests) removePending(hash common.Hash) {
	for i, h := range r.pending {
		if h == hash {
			r.pending = append(r.pending[:i], r.pending[i+1:]...)
			return
		}
	}
}
