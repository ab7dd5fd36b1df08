// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package channel

import (
	"context"
	"errors"
	"fmt"
)

var (
	// Rejected input
	ErrPayloadTooLarge       = errors.New("payload too large")
	ErrQueueSizeLimitReached = errors.New("queue size limit reached")
	ErrInvalidNonce          = errors.New("invalid nonce")
	ErrForbidden             = errors.New("forbidden")
	ErrInvalidMessage        = errors.New("invalid message")
	ErrUnknownChannel        = errors.New("unknown channel")
	ErrUnknownNetwork        = errors.New("unknown network")
	ErrDecode                = errors.New("decode error")
	ErrAlreadyInitialized    = errors.New("light client already initialized")

	// Proof invalid
	ErrInvalidSignature = errors.New("invalid signature")
	ErrInvalidProof     = errors.New("invalid proof")
	ErrStaleClaim       = errors.New("stale claim")
	ErrNotFinalized     = errors.New("not finalized")
	ErrNotEnoughSigners = errors.New("not enough signers")

	// Transient
	ErrNotReady = errors.New("not ready")
	ErrNotFound = errors.New("not found")

	// Idempotent duplicates
	ErrAlreadyDelivered = errors.New("already delivered")
	ErrAlreadyImported  = errors.New("already imported")

	// Fatal
	ErrNonceOverflow  = errors.New("nonce counter overflow")
	ErrChannelHalted  = errors.New("channel halted")
	ErrOverflow       = errors.New("arithmetic overflow")
	ErrNotInitialized = errors.New("light client not initialized")
)

// Kind is the error taxonomy the relay loop acts on
type Kind uint8

const (
	KindUnknown Kind = iota
	KindRejectedInput
	KindProofInvalid
	KindTransient
	KindDuplicate
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindRejectedInput:
		return "rejected-input"
	case KindProofInvalid:
		return "proof-invalid"
	case KindTransient:
		return "transient"
	case KindDuplicate:
		return "duplicate"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

type errorInfo struct {
	err  error
	code int32
	kind Kind
}

var errorTable = []errorInfo{
	{ErrPayloadTooLarge, -32010, KindRejectedInput},
	{ErrQueueSizeLimitReached, -32011, KindRejectedInput},
	{ErrInvalidNonce, -32012, KindRejectedInput},
	{ErrForbidden, -32013, KindRejectedInput},
	{ErrInvalidMessage, -32014, KindRejectedInput},
	{ErrUnknownChannel, -32015, KindRejectedInput},
	{ErrUnknownNetwork, -32016, KindRejectedInput},
	{ErrDecode, -32017, KindRejectedInput},
	{ErrAlreadyInitialized, -32018, KindRejectedInput},
	{ErrInvalidSignature, -32020, KindProofInvalid},
	{ErrInvalidProof, -32021, KindProofInvalid},
	{ErrStaleClaim, -32022, KindProofInvalid},
	{ErrNotFinalized, -32023, KindTransient},
	{ErrNotEnoughSigners, -32024, KindProofInvalid},
	{ErrNotReady, -32030, KindTransient},
	{ErrNotFound, -32031, KindTransient},
	{ErrAlreadyDelivered, -32040, KindDuplicate},
	{ErrAlreadyImported, -32041, KindDuplicate},
	{ErrNonceOverflow, -32050, KindFatal},
	{ErrChannelHalted, -32051, KindFatal},
	{ErrOverflow, -32052, KindFatal},
	{ErrNotInitialized, -32053, KindRejectedInput},
}

// Error is an error carrying a numeric code so it survives an RPC hop.
// It implements the ErrorCode method expected by JSON-RPC servers.
type Error struct {
	Code    int32
	Message string
}

// Error implements the error interface
func (e *Error) Error() string {
	return e.Message
}

// ErrorCode returns the JSON-RPC error code
func (e *Error) ErrorCode() int {
	return int(e.Code)
}

// Unwrap returns the sentinel error the code stands for
func (e *Error) Unwrap() error {
	for _, info := range errorTable {
		if info.code == e.Code {
			return info.err
		}
	}
	return nil
}

// WithCode wraps err in an *Error if it matches a known sentinel
func WithCode(err error) error {
	if err == nil {
		return nil
	}
	for _, info := range errorTable {
		if errors.Is(err, info.err) {
			return &Error{Code: info.code, Message: err.Error()}
		}
	}
	return err
}

// FromCode rebuilds an error received with a numeric code
func FromCode(code int, message string) error {
	for _, info := range errorTable {
		if int(info.code) == code {
			return &Error{Code: info.code, Message: message}
		}
	}
	return fmt.Errorf("rpc error %d: %s", code, message)
}

// Classify returns the taxonomy kind of err. Context deadlines and
// cancellations are transient.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTransient
	}
	for _, info := range errorTable {
		if errors.Is(err, info.err) {
			return info.kind
		}
	}
	return KindUnknown
}

// IsDuplicate reports whether err means the work was already done
func IsDuplicate(err error) bool {
	return Classify(err) == KindDuplicate
}
