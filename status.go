// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package channel

// Status is the delivery state of a message as seen by application modules
type Status uint8

const (
	StatusInQueue Status = iota + 1
	StatusCommitted
	StatusDelivered
	StatusFailed
	StatusRefunded
)

func (s Status) String() string {
	switch s {
	case StatusInQueue:
		return "in-queue"
	case StatusCommitted:
		return "committed"
	case StatusDelivered:
		return "delivered"
	case StatusFailed:
		return "failed"
	case StatusRefunded:
		return "refunded"
	default:
		return "unknown"
	}
}

// StatusNotifier is implemented by application modules that react to
// delivery status changes, e.g. refunding on StatusFailed.
type StatusNotifier interface {
	OnStatusChange(networkID NetworkID, id MessageID, status Status)
}

// NotifierFunc adapts a function to StatusNotifier
type NotifierFunc func(networkID NetworkID, id MessageID, status Status)

func (f NotifierFunc) OnStatusChange(networkID NetworkID, id MessageID, status Status) {
	f(networkID, id, status)
}

// NoopNotifier drops all notifications
type NoopNotifier struct{}

func (NoopNotifier) OnStatusChange(NetworkID, MessageID, Status) {}

// StatusChange is a recorded notification
type StatusChange struct {
	NetworkID NetworkID `json:"networkID"`
	ID        MessageID `json:"id"`
	Status    Status    `json:"status"`
}
