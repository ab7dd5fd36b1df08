// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package inbound

import (
	"context"
	"errors"
	"fmt"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/channel"
)

var (
	ErrUnknownTarget     = errors.New("no handler registered for target")
	ErrHandlerRegistered = errors.New("handler already registered")
)

// Handler consumes the payload of a delivered message
type Handler interface {
	Handle(ctx context.Context, msg *channel.Message) error
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(ctx context.Context, msg *channel.Message) error

func (f HandlerFunc) Handle(ctx context.Context, msg *channel.Message) error {
	return f(ctx, msg)
}

// DecodeError is returned when a payload does not decode into the type the
// target handler expects
type DecodeError struct {
	Target common.Address
	Nonce  uint64
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode payload of message %d for %s: %v", e.Nonce, e.Target, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return channel.ErrDecode
}

// Typed returns a handler that decodes the payload into a T before calling
// fn
func Typed[T any](fn func(ctx context.Context, msg *channel.Message, v *T) error) Handler {
	return HandlerFunc(func(ctx context.Context, msg *channel.Message) error {
		v := new(T)
		if _, err := channel.Codec.Unmarshal(msg.Payload, v); err != nil {
			return &DecodeError{Target: msg.Target, Nonce: msg.Nonce, Err: err}
		}
		return fn(ctx, msg, v)
	})
}

// Registry maps targets to handlers
type Registry struct {
	handlers map[common.Address]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[common.Address]Handler)}
}

// Register binds target to h
func (r *Registry) Register(target common.Address, h Handler) error {
	if _, ok := r.handlers[target]; ok {
		return fmt.Errorf("%w: %s", ErrHandlerRegistered, target)
	}
	r.handlers[target] = h
	return nil
}

// Dispatch runs the handler of msg.Target. A panicking handler is reported
// as an error.
func (r *Registry) Dispatch(ctx context.Context, msg *channel.Message) (err error) {
	h, ok := r.handlers[msg.Target]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTarget, msg.Target)
	}
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler for %s panicked: %v", msg.Target, p)
		}
	}()
	return h.Handle(ctx, msg)
}
