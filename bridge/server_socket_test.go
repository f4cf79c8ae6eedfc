// Copyright 2026 The Quark Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"errors"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/gao-feng/Quark/lib/readiness"
	"github.com/gao-feng/Quark/lib/socketbuf"
)

const listenerFD = 3

func newServerSocket(t *testing.T, backlog int) (*testBridge, *ServerSocket) {
	t.Helper()
	b := newTestBridge(t)
	return b, NewServerSocket(b.Bridge, listenerFD, socketbuf.NewAcceptQueue(backlog))
}

func TestAccept_StopsWhenQueueFull(t *testing.T) {
	b, server := newServerSocket(t, 2)
	b.host.queueAccept(
		acceptResult{fd: 10, peer: &unix.SockaddrInet4{Port: 40000, Addr: [4]byte{10, 0, 0, 1}}},
		acceptResult{fd: 11},
		acceptResult{fd: 12},
	)

	server.Notify(readiness.Readable)

	if server.Queue().Len() != 2 {
		t.Fatalf("queued = %d, want 2", server.Queue().Len())
	}
	if b.host.acceptCalls != 2 {
		t.Fatalf("host accept calls = %d, want 2 (the third stays in the host backlog)", b.host.acceptCalls)
	}
	requireSignals(t, b.signaler, signal{listenerFD, readiness.Readable})

	for _, fd := range []int{10, 11} {
		if _, ok := b.table.Lookup(fd); !ok {
			t.Errorf("fd %d not registered", fd)
		}
		if !b.async.attached[fd] {
			t.Errorf("fd %d not attached for async I/O", fd)
		}
		if b.watcher.watched[fd] != dataWatchMask {
			t.Errorf("fd %d watch mask = %v, want %v", fd, b.watcher.watched[fd], dataWatchMask)
		}
	}

	// Dequeuing from the full queue resumes the pump, which drains the
	// remaining host connection.
	first, ok := server.Dequeue()
	if !ok || first.FD != 10 {
		t.Fatalf("Dequeue = fd %d, %v; want fd 10", first.FD, ok)
	}
	if first.Buffer == nil {
		t.Fatal("accepted connection has no socket buffer")
	}
	if server.Queue().Len() != 2 {
		t.Fatalf("queued after resume = %d, want 2", server.Queue().Len())
	}
	// The queue was never empty, so the resumed pump signals nothing.
	requireSignals(t, b.signaler)

	second, _ := server.Dequeue()
	third, _ := server.Dequeue()
	if second.FD != 11 || third.FD != 12 {
		t.Fatalf("dequeue order = %d, %d; want 11, 12", second.FD, third.FD)
	}
	if _, _, ok := server.Queue().Dequeue(); ok {
		t.Fatal("queue should be empty")
	}
}

func TestAccept_WouldBlockIsSilent(t *testing.T) {
	b, server := newServerSocket(t, 4)

	server.Accept()

	if server.Queue().Len() != 0 {
		t.Fatalf("queued = %d, want 0", server.Queue().Len())
	}
	if server.Queue().Error() != 0 {
		t.Fatalf("EAGAIN latched error %v", server.Queue().Error())
	}
	requireSignals(t, b.signaler)
}

func TestAccept_ErrorLatches(t *testing.T) {
	b, server := newServerSocket(t, 4)
	b.host.queueAccept(acceptResult{err: unix.EMFILE}, acceptResult{fd: 10})

	server.Accept()

	if server.Queue().Error() != unix.EMFILE {
		t.Fatalf("latched error = %v, want EMFILE", server.Queue().Error())
	}
	requireSignals(t, b.signaler, signal{listenerFD, readiness.Error | readiness.Readable})

	// Later notifications report the latched error without touching
	// the host.
	calls := b.host.ioCalls()
	server.Notify(readiness.Readable)
	if b.host.ioCalls() != calls {
		t.Fatal("accept pump touched the host after the error latched")
	}
	requireSignals(t, b.signaler, signal{listenerFD, readiness.Error | readiness.Readable})
}

func TestAccept_AbandonsConnectionThatCannotBeWired(t *testing.T) {
	t.Run("async attach", func(t *testing.T) {
		b, server := newServerSocket(t, 4)
		b.async.failFD = 10
		b.host.queueAccept(acceptResult{fd: 10}, acceptResult{fd: 11})

		server.Accept()

		requireAbandoned(t, b, 10)
		connection, ok := server.Dequeue()
		if !ok || connection.FD != 11 {
			t.Fatalf("Dequeue = fd %d, %v; want fd 11", connection.FD, ok)
		}
	})

	t.Run("watch", func(t *testing.T) {
		b, server := newServerSocket(t, 4)
		b.watcher.failFD = 10
		b.host.queueAccept(acceptResult{fd: 10}, acceptResult{fd: 11})

		server.Accept()

		requireAbandoned(t, b, 10)
		if b.async.attached[10] {
			t.Error("abandoned fd still attached for async I/O")
		}
		if server.Queue().Len() != 1 {
			t.Fatalf("queued = %d, want 1", server.Queue().Len())
		}
	})
}

func requireAbandoned(t *testing.T, b *testBridge, fd int) {
	t.Helper()
	if _, ok := b.table.Lookup(fd); ok {
		t.Errorf("abandoned fd %d still registered", fd)
	}
	if len(b.host.closed) != 1 || b.host.closed[0] != fd {
		t.Errorf("host closes = %v, want [%d]", b.host.closed, fd)
	}
	if b.signaler.take() == nil {
		t.Error("surviving connection was not signalled")
	}
}

func TestServerSocket_SetBacklogResumes(t *testing.T) {
	b, server := newServerSocket(t, 1)
	b.host.queueAccept(acceptResult{fd: 10}, acceptResult{fd: 11})

	server.Accept()
	if server.Queue().Len() != 1 {
		t.Fatalf("queued = %d, want 1", server.Queue().Len())
	}

	server.SetBacklog(4)
	if server.Queue().Len() != 2 {
		t.Fatalf("queued after SetBacklog = %d, want 2", server.Queue().Len())
	}
	requireSignals(t, b.signaler, signal{listenerFD, readiness.Readable})
}

func TestServerSocket_CloseReleasesPending(t *testing.T) {
	b := newTestBridge(t)
	server, err := b.Listen("127.0.0.1:0", 4)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	b.host.queueAccept(acceptResult{fd: 10}, acceptResult{fd: 11})
	server.Accept()

	if err := server.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := server.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	if b.table.Len() != 0 {
		t.Fatalf("registry holds %d descriptors after Close, want 0", b.table.Len())
	}
	if len(b.async.attached) != 0 {
		t.Fatalf("async registry holds %v after Close", b.async.attached)
	}
	if len(b.watcher.watched) != 0 {
		t.Fatalf("watcher holds %v after Close", b.watcher.watched)
	}
	if len(b.host.closed) != 3 {
		t.Fatalf("host closes = %v, want the two connections and the listener", b.host.closed)
	}

	calls := b.host.ioCalls()
	server.Notify(readiness.Readable)
	if b.host.ioCalls() != calls {
		t.Fatal("accept pump touched the host after Close")
	}
}

func TestServerSocket_CloseReportsQueuedConnectionFailure(t *testing.T) {
	b := newTestBridge(t)
	server, err := b.Listen("127.0.0.1:0", 4)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	b.host.queueAccept(acceptResult{fd: 10}, acceptResult{fd: 11})
	server.Accept()
	b.host.closeErrors = map[int]error{10: unix.EIO}

	err = server.Close()
	if !errors.Is(err, unix.EIO) {
		t.Fatalf("Close error = %v, want EIO from the queued connection", err)
	}
	if len(b.host.closed) != 3 {
		t.Fatalf("host closes = %v, want every descriptor closed despite the failure", b.host.closed)
	}
}
