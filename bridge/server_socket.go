// Copyright 2026 The Quark Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/gao-feng/Quark/lib/netutil"
	"github.com/gao-feng/Quark/lib/readiness"
	"github.com/gao-feng/Quark/lib/socketbuf"
)

// ServerSocket bridges a host listening socket to a guest accept queue.
type ServerSocket struct {
	bridge *Bridge
	fd     int
	queue  *socketbuf.AcceptQueue

	// acceptMutex keeps the accept pump the queue's only producer when
	// a poller notification and a guest resumption race.
	acceptMutex sync.Mutex
	closed      bool
}

// NewServerSocket wraps a listening descriptor. The caller is
// responsible for registering and watching fd; Bridge.Listen does both.
func NewServerSocket(bridge *Bridge, fd int, queue *socketbuf.AcceptQueue) *ServerSocket {
	return &ServerSocket{
		bridge: bridge,
		fd:     fd,
		queue:  queue,
	}
}

// FD returns the host listening descriptor.
func (s *ServerSocket) FD() int {
	return s.fd
}

// Queue returns the accept queue the guest consumes.
func (s *ServerSocket) Queue() *socketbuf.AcceptQueue {
	return s.queue
}

// Addr returns the bound local address.
func (s *ServerSocket) Addr() (net.Addr, error) {
	return s.bridge.Host.LocalAddress(s.fd)
}

// Notify handles a host readiness event. Every event on a listening
// socket means the same thing: try to accept.
func (s *ServerSocket) Notify(readiness.EventMask) {
	s.Accept()
}

// Accept moves completed host connections into the accept queue until
// the host has none left (EAGAIN), the queue is full, or accept fails.
// Connections left in the host backlog are picked up by the next call,
// which the guest triggers when a dequeue frees space in a full queue.
func (s *ServerSocket) Accept() {
	s.acceptMutex.Lock()
	defer s.acceptMutex.Unlock()
	if s.closed {
		return
	}

	if s.queue.Error() != 0 {
		s.bridge.signal(s.fd, readiness.Error|readiness.Readable)
		return
	}

	logger := s.bridge.logger()
	hasSpace := s.queue.HasSpace()
	for hasSpace {
		fd, peer, err := s.bridge.Host.Accept(s.fd)
		if err != nil {
			if netutil.IsWouldBlock(err) {
				return
			}
			s.queue.SetError(netutil.Errno(err))
			s.bridge.signal(s.fd, readiness.Error|readiness.Readable)
			logger.Warn("accept failed, listener latched in error",
				"fd", s.fd,
				"error", err,
			)
			return
		}

		buffer, err := s.bridge.adopt(fd)
		if err != nil {
			logger.Error("abandoning accepted connection",
				"listener_fd", s.fd,
				"peer", netutil.SockaddrString(peer),
				"error", err,
			)
			continue
		}

		logger.Debug("connection accepted",
			"listener_fd", s.fd,
			"fd", fd,
			"peer", netutil.SockaddrString(peer),
		)

		var trigger bool
		trigger, hasSpace = s.queue.Enqueue(socketbuf.AcceptedConnection{
			FD:     fd,
			Peer:   peer,
			Buffer: buffer,
		})
		if trigger {
			s.bridge.signal(s.fd, readiness.Readable)
		}
	}
}

// Dequeue removes the oldest accepted connection for the guest. When
// the removal frees space in a full queue, the accept pump is resumed
// so connections still waiting in the host backlog are drained.
func (s *ServerSocket) Dequeue() (socketbuf.AcceptedConnection, bool) {
	connection, trigger, ok := s.queue.Dequeue()
	if trigger {
		s.Accept()
	}
	return connection, ok
}

// SetBacklog changes the accept queue bound, as listen(2) on an already
// listening socket does. A larger bound resumes accepting immediately.
func (s *ServerSocket) SetBacklog(backlog int) {
	s.queue.SetCapacity(backlog)
	if s.queue.HasSpace() {
		s.Accept()
	}
}

// Close stops accepting, closes every connection still waiting in the
// accept queue, and releases the listening descriptor. Safe to call
// more than once.
func (s *ServerSocket) Close() error {
	s.acceptMutex.Lock()
	if s.closed {
		s.acceptMutex.Unlock()
		return nil
	}
	s.closed = true
	s.acceptMutex.Unlock()

	var errs []error
	for _, pending := range s.queue.Drain() {
		if socket, ok := s.bridge.DataSocket(pending.FD); ok {
			if err := socket.Close(); err != nil {
				errs = append(errs, fmt.Errorf("closing queued connection: %w", err))
			}
		}
	}
	if err := s.bridge.release(s.fd, false); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
