// Copyright 2026 The Quark Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/gao-feng/Quark/lib/netutil"
	"github.com/gao-feng/Quark/lib/readiness"
	"github.com/gao-feng/Quark/lib/socketbuf"
)

// readReadyMask are the host events that can only be observed by
// reading: new data, end of stream, or a pending socket error.
const readReadyMask = readiness.Readable | readiness.ReadHangUp | readiness.HangUp | readiness.Error

// peerClosingMask are the host events announcing that a read will
// eventually return EOF or an error rather than more data.
const peerClosingMask = readiness.ReadHangUp | readiness.HangUp | readiness.Error

// DataSocket pumps bytes between a connected host descriptor and its
// SocketBuffer.
type DataSocket struct {
	bridge *Bridge
	fd     int
	buffer *socketbuf.SocketBuffer

	// readMutex and writeMutex each admit one pump per direction. A
	// pump holds its mutex for the whole call.
	readMutex  sync.Mutex
	writeMutex sync.Mutex

	// closed is only set while both direction mutexes are held, so a
	// pump that observes it false under its mutex owns a live fd.
	closed       atomic.Bool
	shutdownDone atomic.Bool
	// peerClosing is set once the host reports the peer's close. That
	// edge is never reported again, so from then on the read pump reads
	// past short reads until EOF, EAGAIN, or an error.
	peerClosing atomic.Bool
	closeOnce    sync.Once
	closeError   error
}

// NewDataSocket wraps a connected descriptor and its buffer.
func NewDataSocket(bridge *Bridge, fd int, buffer *socketbuf.SocketBuffer) *DataSocket {
	return &DataSocket{
		bridge: bridge,
		fd:     fd,
		buffer: buffer,
	}
}

// FD returns the host descriptor.
func (s *DataSocket) FD() int {
	return s.fd
}

// Buffer returns the socket buffer shared with the guest.
func (s *DataSocket) Buffer() *socketbuf.SocketBuffer {
	return s.buffer
}

// Notify dispatches a host readiness event. A latched error
// short-circuits to an Error|Readable signal with no host I/O.
// Otherwise the read pump runs for read-side events and then the write
// pump for write-side events; with edge-triggered notifications a
// dropped direction would not be reported again.
func (s *DataSocket) Notify(mask readiness.EventMask) {
	if s.buffer.Error() != 0 {
		s.bridge.signal(s.fd, readiness.Error|readiness.Readable)
		return
	}

	if mask.Has(peerClosingMask) {
		s.peerClosing.Store(true)
	}
	if mask.Has(readReadyMask) {
		s.PumpRead()
	}
	if mask.Has(readiness.Writable) && s.buffer.Error() == 0 {
		s.PumpWrite()
	}
}

// PumpRead reads from the host into the receive ring until the host
// has no more data, the ring is full, the peer closes, or the read
// fails. Once the peer's close has been reported, a short read no
// longer ends the pump.
func (s *DataSocket) PumpRead() {
	s.readMutex.Lock()
	defer s.readMutex.Unlock()
	if s.closed.Load() {
		return
	}

	target := s.buffer.FreeReadBuffer()
	if len(target) == 0 {
		return
	}

	for {
		n, err := s.bridge.Host.Read(s.fd, target)
		if err != nil {
			if netutil.IsWouldBlock(err) {
				return
			}
			s.latchError(err, "read")
			return
		}

		if n == 0 {
			s.buffer.SetReadClosed()
			if s.buffer.HasReadData() {
				s.bridge.signal(s.fd, readiness.Readable)
			} else {
				s.bridge.signal(s.fd, readiness.HangUp)
			}
			return
		}

		trigger, next := s.buffer.ProduceAndFreeReadBuffer(n)
		if trigger {
			s.bridge.signal(s.fd, readiness.Readable)
		}

		// A short read means the host socket is drained for now, unless
		// the peer's close is still waiting behind the data.
		if n < len(target) && !s.peerClosing.Load() {
			return
		}
		if len(next) == 0 {
			return
		}
		target = next
	}
}

// PumpWrite writes staged bytes from the send ring to the host until
// the ring is empty, the host socket buffer is full, the peer closes,
// or the write fails.
func (s *DataSocket) PumpWrite() {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	if s.closed.Load() {
		return
	}

	source := s.buffer.AvailableWriteBuffer()
	if len(source) == 0 {
		return
	}

	for {
		n, err := s.bridge.Host.Write(s.fd, source)
		if err != nil {
			if netutil.IsWouldBlock(err) {
				return
			}
			s.latchError(err, "write")
			return
		}

		if n == 0 {
			s.buffer.SetWriteClosed()
			if s.buffer.HasWriteData() {
				// The write cannot succeed, but a blocked writer must
				// wake to observe the closed state.
				s.bridge.signal(s.fd, readiness.Writable)
			} else {
				s.bridge.signal(s.fd, readiness.HangUp)
			}
			return
		}

		trigger, next := s.buffer.ConsumeAndAvailableWriteBuffer(n)
		if trigger {
			s.bridge.signal(s.fd, readiness.Writable)
		}

		// A short write means the host socket buffer is full for now.
		if n < len(source) {
			return
		}
		if len(next) == 0 {
			if s.buffer.PendingWriteShutdown() {
				s.bridge.signal(s.fd, readiness.PendingShutdownComplete)
			}
			return
		}
		source = next
	}
}

func (s *DataSocket) latchError(err error, operation string) {
	s.buffer.SetError(netutil.Errno(err))
	s.bridge.signal(s.fd, readiness.Error|readiness.Readable)

	logger := s.bridge.logger()
	if netutil.IsExpectedCloseError(err) {
		logger.Debug("connection reset by peer", "fd", s.fd, "operation", operation, "error", err)
		return
	}
	logger.Warn("host I/O failed, connection latched in error", "fd", s.fd, "operation", operation, "error", err)
}

// Shutdown half-closes the guest's sending side. Staged bytes are
// flushed first: the host shutdown happens now if the send ring is
// already empty, or after the write pump drains it and signals
// PendingShutdownComplete.
func (s *DataSocket) Shutdown() error {
	s.buffer.SetPendingWriteShutdown()
	if !s.buffer.HasWriteData() {
		return s.FinishShutdown()
	}
	s.PumpWrite()
	return nil
}

// FinishShutdown shuts down the host write side. Only the first call
// reaches the host.
func (s *DataSocket) FinishShutdown() error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	if s.closed.Load() || !s.shutdownDone.CompareAndSwap(false, true) {
		return nil
	}
	return s.bridge.Host.Shutdown(s.fd, unix.SHUT_WR)
}

// ShutdownDone reports whether the host write side has been shut down.
func (s *DataSocket) ShutdownDone() bool {
	return s.shutdownDone.Load()
}

// Close stops both pumps and releases the descriptor. In-flight pumps
// finish first; later notifications are ignored. Safe to call more than
// once; every call returns the first call's result.
func (s *DataSocket) Close() error {
	s.closeOnce.Do(func() {
		s.readMutex.Lock()
		s.writeMutex.Lock()
		s.closed.Store(true)
		s.writeMutex.Unlock()
		s.readMutex.Unlock()

		s.closeError = s.bridge.release(s.fd, true)
		s.bridge.logger().Debug("connection closed", "fd", s.fd)
	})
	return s.closeError
}
