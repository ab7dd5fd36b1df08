// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package utils

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

const (
	DefaultRPCTimeout   = 5 * time.Second
	DefaultRetryTimeout = 10 * time.Second
	initialRetryDelay   = 100 * time.Millisecond
)

// WithRetriesTimeout runs operation with exponential backoff until it
// succeeds, returns a backoff.Permanent error, ctx is done or timeout has
// elapsed. The last error is returned.
func WithRetriesTimeout(
	ctx context.Context,
	log *zap.Logger,
	operation backoff.Operation,
	timeout time.Duration,
) error {
	expBackOff := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(initialRetryDelay),
		backoff.WithMaxElapsedTime(timeout),
	)
	notify := func(err error, delay time.Duration) {
		log.Debug(
			"Operation failed, retrying",
			zap.Duration("delay", delay),
			zap.Error(err),
		)
	}
	return backoff.RetryNotify(operation, backoff.WithContext(expBackOff, ctx), notify)
}

// WithMaxRetries is WithRetriesTimeout bounded by attempts instead of time
func WithMaxRetries(
	ctx context.Context,
	log *zap.Logger,
	operation backoff.Operation,
	maxRetries uint64,
) error {
	b := backoff.WithMaxRetries(
		backoff.NewExponentialBackOff(backoff.WithInitialInterval(time.Millisecond)),
		maxRetries,
	)
	notify := func(err error, delay time.Duration) {
		log.Debug(
			"Operation failed, retrying",
			zap.Duration("delay", delay),
			zap.Error(err),
		)
	}
	return backoff.RetryNotify(operation, backoff.WithContext(b, ctx), notify)
}
