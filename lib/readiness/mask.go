// Copyright 2026 The Quark Authors
// SPDX-License-Identifier: Apache-2.0

package readiness

import (
	"strings"

	"golang.org/x/sys/unix"
)

// EventMask is a set of readiness events on one descriptor.
type EventMask uint32

const (
	// Readable: data (or a connection) is available to the consumer.
	Readable EventMask = unix.EPOLLIN

	// Writable: space is available for the producer.
	Writable EventMask = unix.EPOLLOUT

	// Error: an error is latched on the descriptor.
	Error EventMask = unix.EPOLLERR

	// HangUp: both directions are closed, or the peer is gone.
	HangUp EventMask = unix.EPOLLHUP

	// ReadHangUp: the peer shut down its sending side.
	ReadHangUp EventMask = unix.EPOLLRDHUP

	// PendingShutdownComplete: a deferred write shutdown requested by
	// the guest can proceed because the send buffer has drained.
	PendingShutdownComplete EventMask = 1 << 24
)

// hostMask covers the bits that come from, or go to, epoll.
const hostMask = Readable | Writable | Error | HangUp | ReadHangUp

// FromHost converts an epoll event mask into an EventMask, dropping bits
// the bridge does not interpret.
func FromHost(events uint32) EventMask {
	return EventMask(events) & hostMask
}

// Host returns the epoll bits of m for EPOLL_CTL_ADD/MOD.
func (m EventMask) Host() uint32 {
	return uint32(m & hostMask)
}

// Has reports whether any bit of other is set in m.
func (m EventMask) Has(other EventMask) bool {
	return m&other != 0
}

var maskNames = []struct {
	bit  EventMask
	name string
}{
	{Readable, "readable"},
	{Writable, "writable"},
	{Error, "error"},
	{HangUp, "hangup"},
	{ReadHangUp, "read-hangup"},
	{PendingShutdownComplete, "pending-shutdown-complete"},
}

// String returns the event names joined with "|", or "none".
func (m EventMask) String() string {
	if m == 0 {
		return "none"
	}
	var names []string
	for _, entry := range maskNames {
		if m&entry.bit != 0 {
			names = append(names, entry.name)
		}
	}
	if len(names) == 0 {
		return "unknown"
	}
	return strings.Join(names, "|")
}
