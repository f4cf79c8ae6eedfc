// Copyright 2026 The Quark Authors
// SPDX-License-Identifier: Apache-2.0

package socketbuf

import (
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/gao-feng/Quark/lib/buffer"
)

// DefaultBufferSize is the capacity of each ring when no size is
// configured. 64 KiB matches the default Linux TCP receive window
// before autotuning.
const DefaultBufferSize = 64 * 1024

// SocketBuffer is the pair of rings shared by the bridge and the guest
// for one connected socket. Safe for concurrent use under the
// single-writer-per-cursor discipline described in the package docs.
type SocketBuffer struct {
	readRing  *ring
	writeRing *ring

	readClosed      atomic.Bool
	writeClosed     atomic.Bool
	pendingShutdown atomic.Bool
	errno           atomic.Uint32
}

// NewSocketBuffer creates a buffer whose receive ring holds readSize
// bytes and whose send ring holds writeSize bytes. Non-positive sizes
// select DefaultBufferSize.
func NewSocketBuffer(readSize, writeSize int) *SocketBuffer {
	if readSize <= 0 {
		readSize = DefaultBufferSize
	}
	if writeSize <= 0 {
		writeSize = DefaultBufferSize
	}
	return &SocketBuffer{
		readRing:  newRing(readSize),
		writeRing: newRing(writeSize),
	}
}

// FreeReadBuffer returns the contiguous free space in the receive ring.
// The host read pump reads into it directly. Empty when the ring is full.
func (b *SocketBuffer) FreeReadBuffer() []byte {
	return b.readRing.freeRegion()
}

// ProduceAndFreeReadBuffer publishes n bytes written into the last free
// region. trigger is true when the receive ring went from empty to
// non-empty. next is the following free region.
func (b *SocketBuffer) ProduceAndFreeReadBuffer(n int) (trigger bool, next []byte) {
	return b.readRing.produce(n)
}

// AvailableWriteBuffer returns the contiguous bytes the guest has staged
// in the send ring. The host write pump writes from it directly.
func (b *SocketBuffer) AvailableWriteBuffer() []byte {
	return b.writeRing.availableRegion()
}

// ConsumeAndAvailableWriteBuffer releases n bytes sent from the last
// available region. trigger is true when the send ring went from full
// to not full. next is the following available region.
func (b *SocketBuffer) ConsumeAndAvailableWriteBuffer(n int) (trigger bool, next []byte) {
	return b.writeRing.consume(n)
}

// HasReadData reports whether the guest has unread bytes.
func (b *SocketBuffer) HasReadData() bool {
	return b.readRing.available() > 0
}

// HasWriteData reports whether staged bytes are waiting to be sent.
func (b *SocketBuffer) HasWriteData() bool {
	return b.writeRing.available() > 0
}

// SetReadClosed latches that the host peer will send no more data.
func (b *SocketBuffer) SetReadClosed() {
	b.readClosed.Store(true)
}

// ReadClosed reports whether SetReadClosed has been called.
func (b *SocketBuffer) ReadClosed() bool {
	return b.readClosed.Load()
}

// SetWriteClosed latches that the host can accept no more data.
func (b *SocketBuffer) SetWriteClosed() {
	b.writeClosed.Store(true)
}

// WriteClosed reports whether SetWriteClosed has been called.
func (b *SocketBuffer) WriteClosed() bool {
	return b.writeClosed.Load()
}

// SetError latches a host errno. The first latched error wins; a zero
// errno is ignored.
func (b *SocketBuffer) SetError(errno unix.Errno) {
	if errno == 0 {
		return
	}
	b.errno.CompareAndSwap(0, uint32(errno))
}

// Error returns the latched errno, or zero.
func (b *SocketBuffer) Error() unix.Errno {
	return unix.Errno(b.errno.Load())
}

// SetPendingWriteShutdown records that the guest shut down its sending
// side while bytes may still be staged. The host shutdown happens once
// the send ring drains.
func (b *SocketBuffer) SetPendingWriteShutdown() {
	b.pendingShutdown.Store(true)
}

// PendingWriteShutdown reports whether a write shutdown was requested
// and the send ring has drained, so the shutdown can proceed now.
func (b *SocketBuffer) PendingWriteShutdown() bool {
	return b.pendingShutdown.Load() && !b.HasWriteData()
}

// Read copies unread bytes into dst. trigger is true when the receive
// ring went from full to not full, meaning a stalled read pump should
// be resumed.
func (b *SocketBuffer) Read(dst []byte) (n int, trigger bool) {
	return b.readRing.copyOut(dst)
}

// ReadView moves up to limit unread bytes out of the receive ring as a
// SegmentedView: one segment per contiguous ring region, so a wrapped
// ring yields two. trigger has the same meaning as for Read.
func (b *SocketBuffer) ReadView(limit int) (view buffer.SegmentedView, trigger bool) {
	var segments []buffer.ByteView
	size := 0
	for size < limit {
		region := b.readRing.availableRegion()
		if len(region) == 0 {
			break
		}
		if len(region) > limit-size {
			region = region[:limit-size]
		}
		segment := buffer.NewByteView(len(region))
		copy(segment.AsSlice(), region)
		segments = append(segments, segment)
		size += len(region)

		crossed, _ := b.readRing.consume(len(region))
		trigger = trigger || crossed
	}
	return buffer.NewSegmentedView(size, segments), trigger
}

// Write stages src in the send ring, copying as much as fits. trigger
// is true when the ring went from empty to non-empty, meaning the write
// pump should be resumed.
func (b *SocketBuffer) Write(src []byte) (n int, trigger bool) {
	return b.writeRing.copyIn(src)
}

// WriteView stages bytes from the front of view, trimming what was
// staged. trigger has the same meaning as for Write.
func (b *SocketBuffer) WriteView(view *buffer.SegmentedView) (n int, trigger bool) {
	for view.Size() > 0 {
		first, _ := view.First()
		if first.Len() == 0 {
			view.RemoveFirst()
			continue
		}
		written, crossed := b.writeRing.copyIn(first.AsSlice())
		trigger = trigger || crossed
		n += written
		view.TrimFront(written)
		if written < first.Len() {
			break
		}
	}
	return n, trigger
}

// ReadCapacity returns the receive ring's capacity in bytes.
func (b *SocketBuffer) ReadCapacity() int {
	return len(b.readRing.data)
}

// WriteCapacity returns the send ring's capacity in bytes.
func (b *SocketBuffer) WriteCapacity() int {
	return len(b.writeRing.data)
}
