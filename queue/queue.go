// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

// Package queue holds outbound messages that have a nonce but are not yet
// part of a commitment.
package queue

import (
	"fmt"

	"github.com/luxfi/channel"
)

// Queue is a bounded FIFO of messages for one destination network
type Queue struct {
	capacity       int
	maxPayloadSize int
	items          []channel.Message
}

// New returns a queue holding at most capacity messages of at most
// maxPayloadSize payload bytes each.
func New(capacity int, maxPayloadSize int) *Queue {
	return &Queue{
		capacity:       capacity,
		maxPayloadSize: maxPayloadSize,
		items:          make([]channel.Message, 0, capacity),
	}
}

// CanPush returns the error Push would return for a payload of size n
// without modifying the queue.
func (q *Queue) CanPush(n int) error {
	if n > q.maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d", channel.ErrPayloadTooLarge, n, q.maxPayloadSize)
	}
	if len(q.items) >= q.capacity {
		return fmt.Errorf("%w: %d messages pending", channel.ErrQueueSizeLimitReached, len(q.items))
	}
	return nil
}

// Push appends msg to the back of the queue
func (q *Queue) Push(msg channel.Message) error {
	if err := q.CanPush(len(msg.Payload)); err != nil {
		return err
	}
	q.items = append(q.items, msg)
	return nil
}

// Take removes and returns up to maxCount messages from the front whose
// summed MaxGas stays within maxGas. A zero maxGas disables the gas cap.
// The first message is always taken so one oversized message cannot block
// the queue forever. Messages left behind keep their order.
func (q *Queue) Take(maxCount int, maxGas uint64) []channel.Message {
	n := 0
	var gas uint64
	for n < len(q.items) && n < maxCount {
		next := gas + q.items[n].MaxGas
		if maxGas > 0 && n > 0 && (next > maxGas || next < gas) {
			break
		}
		gas = next
		n++
	}
	if n == 0 {
		return nil
	}
	taken := make([]channel.Message, n)
	copy(taken, q.items[:n])
	remaining := copy(q.items, q.items[n:])
	for i := remaining; i < len(q.items); i++ {
		q.items[i] = channel.Message{}
	}
	q.items = q.items[:remaining]
	return taken
}

// Peek returns a copy of the pending messages
func (q *Queue) Peek() []channel.Message {
	out := make([]channel.Message, len(q.items))
	copy(out, q.items)
	return out
}

// Len returns the number of pending messages
func (q *Queue) Len() int {
	return len(q.items)
}

// Capacity returns the maximum number of pending messages
func (q *Queue) Capacity() int {
	return q.capacity
}
