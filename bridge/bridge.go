// Copyright 2026 The Quark Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"errors"
	"fmt"
	"log/slog"
	"net"

	"golang.org/x/sys/unix"

	"github.com/gao-feng/Quark/lib/fdtable"
	"github.com/gao-feng/Quark/lib/readiness"
	"github.com/gao-feng/Quark/lib/socketbuf"
)

// HostIO is the set of host syscalls the bridge performs. Every
// descriptor it returns or accepts is nonblocking.
type HostIO interface {
	// Listen creates a nonblocking TCP listening socket bound to
	// address. The host backlog is the system maximum; the guest's
	// bound is enforced by the accept queue alone, so connections
	// beyond it wait in the host backlog.
	Listen(address string) (int, error)

	// Accept accepts one pending connection as a nonblocking,
	// close-on-exec descriptor.
	Accept(fd int) (int, unix.Sockaddr, error)

	Read(fd int, p []byte) (int, error)
	Write(fd int, p []byte) (int, error)
	Shutdown(fd int, how int) error
	Close(fd int) error

	// LocalAddress returns the address fd is bound to.
	LocalAddress(fd int) (net.Addr, error)
}

// Registry is the host descriptor registry.
type Registry interface {
	Register(fd int) (*fdtable.Entry, error)
	Lookup(fd int) (*fdtable.Entry, bool)
	Remove(fd int)
}

// AsyncRegistry is the asynchronous I/O submission registry. A
// descriptor must be attached before the guest can submit I/O on it.
type AsyncRegistry interface {
	Attach(fd int) error
	Detach(fd int)
}

// Watcher arms host readiness notifications for a descriptor.
type Watcher interface {
	Watch(fd int, mask readiness.EventMask) error
	Unwatch(fd int) error
}

// Signaler tells the guest that events occurred on a descriptor.
type Signaler interface {
	Signal(fd int, mask readiness.EventMask)
}

// dataWatchMask is the host event set armed for connected sockets.
const dataWatchMask = readiness.Readable | readiness.Writable | readiness.ReadHangUp

// Bridge holds the process-wide collaborators shared by every socket
// it creates. Build one at startup and keep it for the life of the
// process.
type Bridge struct {
	Host     HostIO
	Registry Registry
	Async    AsyncRegistry
	Watcher  Watcher
	Signaler Signaler

	// ReadBufferSize and WriteBufferSize size the rings of each
	// accepted connection's SocketBuffer. Zero selects
	// socketbuf.DefaultBufferSize.
	ReadBufferSize  int
	WriteBufferSize int

	// Logger receives structured log output. If nil, slog.Default() is
	// used. Per-connection events are logged at Debug level; latched
	// host errors at Warn; lifecycle failures at Error.
	Logger *slog.Logger
}

// logger returns the configured logger or the default.
func (b *Bridge) logger() *slog.Logger {
	if b.Logger != nil {
		return b.Logger
	}
	return slog.Default()
}

func (b *Bridge) signal(fd int, mask readiness.EventMask) {
	b.Signaler.Signal(fd, mask)
}

// Listen opens a host listening socket on address and wires it into the
// registry and the poller. The returned socket's accept queue holds at
// most backlog connections.
func (b *Bridge) Listen(address string, backlog int) (*ServerSocket, error) {
	fd, err := b.Host.Listen(address)
	if err != nil {
		return nil, fmt.Errorf("bridge: listen on %s: %w", address, err)
	}

	entry, err := b.Registry.Register(fd)
	if err != nil {
		b.Host.Close(fd)
		return nil, fmt.Errorf("bridge: registering listener fd %d: %w", fd, err)
	}

	server := NewServerSocket(b, fd, socketbuf.NewAcceptQueue(backlog))
	entry.SetHandler(server)

	if err := b.Watcher.Watch(fd, readiness.Readable); err != nil {
		b.Registry.Remove(fd)
		b.Host.Close(fd)
		return nil, fmt.Errorf("bridge: watching listener fd %d: %w", fd, err)
	}

	b.logger().Info("listening",
		"address", address,
		"fd", fd,
		"backlog", backlog,
	)
	return server, nil
}

// DataSocket returns the data bridge registered for fd.
func (b *Bridge) DataSocket(fd int) (*DataSocket, bool) {
	entry, ok := b.Registry.Lookup(fd)
	if !ok {
		return nil, false
	}
	socket, ok := entry.Handler().(*DataSocket)
	return socket, ok
}

// adopt wires a freshly accepted descriptor: registry entry, socket
// buffer, data bridge, async I/O slot, and readiness watch, in that
// order. On failure the descriptor is unwound and closed.
func (b *Bridge) adopt(fd int) (*socketbuf.SocketBuffer, error) {
	entry, err := b.Registry.Register(fd)
	if err != nil {
		b.Host.Close(fd)
		return nil, fmt.Errorf("registering fd %d: %w", fd, err)
	}

	buffer := socketbuf.NewSocketBuffer(b.ReadBufferSize, b.WriteBufferSize)
	socket := NewDataSocket(b, fd, buffer)
	entry.SetHandler(socket)

	if err := b.Async.Attach(fd); err != nil {
		b.Registry.Remove(fd)
		b.Host.Close(fd)
		return nil, fmt.Errorf("attaching fd %d for async I/O: %w", fd, err)
	}

	if err := b.Watcher.Watch(fd, dataWatchMask); err != nil {
		b.Async.Detach(fd)
		b.Registry.Remove(fd)
		b.Host.Close(fd)
		return nil, fmt.Errorf("watching fd %d: %w", fd, err)
	}

	return buffer, nil
}

// release unwinds everything adopt (or Listen) set up for fd and closes
// it. Removing the registry entry first means a poller event racing
// with the close finds nothing to dispatch to.
func (b *Bridge) release(fd int, attached bool) error {
	b.Registry.Remove(fd)
	var errs []error
	if err := b.Watcher.Unwatch(fd); err != nil && !errors.Is(err, unix.ENOENT) {
		errs = append(errs, fmt.Errorf("unwatching fd %d: %w", fd, err))
	}
	if attached {
		b.Async.Detach(fd)
	}
	if err := b.Host.Close(fd); err != nil {
		errs = append(errs, fmt.Errorf("closing fd %d: %w", fd, err))
	}
	return errors.Join(errs...)
}
