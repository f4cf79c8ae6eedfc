// Copyright 2026 The Quark Authors
// SPDX-License-Identifier: Apache-2.0

package socketbuf

import (
	"sync"

	"golang.org/x/sys/unix"
)

// AcceptedConnection is a host connection accepted by the bridge and
// waiting for the guest to pick it up.
type AcceptedConnection struct {
	// FD is the host descriptor of the connection.
	FD int

	// Peer is the remote address reported by accept4.
	Peer unix.Sockaddr

	// Buffer is the socket buffer already attached to the connection's
	// data bridge.
	Buffer *SocketBuffer
}

// AcceptQueue is a bounded FIFO of accepted connections. The listening
// bridge is the only producer and the guest the only consumer. Safe for
// concurrent use.
type AcceptQueue struct {
	mutex    sync.Mutex
	pending  []AcceptedConnection
	capacity int
	errno    unix.Errno
}

// NewAcceptQueue creates a queue holding at most capacity connections.
// A non-positive capacity is treated as 1, matching listen(2)'s
// minimum backlog.
func NewAcceptQueue(capacity int) *AcceptQueue {
	if capacity <= 0 {
		capacity = 1
	}
	return &AcceptQueue{capacity: capacity}
}

// HasSpace reports whether another connection can be enqueued.
func (q *AcceptQueue) HasSpace() bool {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return len(q.pending) < q.capacity
}

// Enqueue appends a connection. trigger is true when the queue went
// from empty to non-empty; hasSpace reports whether the next accept may
// proceed.
func (q *AcceptQueue) Enqueue(connection AcceptedConnection) (trigger, hasSpace bool) {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	trigger = len(q.pending) == 0
	q.pending = append(q.pending, connection)
	return trigger, len(q.pending) < q.capacity
}

// Dequeue removes the oldest connection. trigger is true when the
// removal gave a full queue space again, meaning the listening bridge
// should resume accepting. ok is false when the queue is empty.
func (q *AcceptQueue) Dequeue() (connection AcceptedConnection, trigger, ok bool) {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	if len(q.pending) == 0 {
		return AcceptedConnection{}, false, false
	}
	wasFull := len(q.pending) >= q.capacity
	connection = q.pending[0]
	q.pending[0] = AcceptedConnection{}
	q.pending = q.pending[1:]
	return connection, wasFull && len(q.pending) < q.capacity, true
}

// Len returns the number of queued connections.
func (q *AcceptQueue) Len() int {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return len(q.pending)
}

// SetCapacity changes the bound, as a second listen(2) call with a new
// backlog does. Connections already queued beyond the new bound stay
// queued; HasSpace stays false until they drain.
func (q *AcceptQueue) SetCapacity(capacity int) {
	if capacity <= 0 {
		capacity = 1
	}
	q.mutex.Lock()
	defer q.mutex.Unlock()
	q.capacity = capacity
}

// SetError latches a host accept error. The first error wins.
func (q *AcceptQueue) SetError(errno unix.Errno) {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	if q.errno == 0 {
		q.errno = errno
	}
}

// Error returns the latched errno, or zero.
func (q *AcceptQueue) Error() unix.Errno {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return q.errno
}

// Drain removes and returns every queued connection. Used when the
// listening socket closes so the caller can release them.
func (q *AcceptQueue) Drain() []AcceptedConnection {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	drained := q.pending
	q.pending = nil
	return drained
}
