// Copyright 2026 The Quark Authors
// SPDX-License-Identifier: Apache-2.0

package workload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gao-feng/Quark/bridge"
	"github.com/gao-feng/Quark/lib/buffer"
	"github.com/gao-feng/Quark/lib/readiness"
	"github.com/gao-feng/Quark/lib/socketbuf"
)

// DefaultChunkSize bounds the bytes moved per receive-ring view.
const DefaultChunkSize = 16 * 1024

// connectionEvents is everything a connection loop reacts to.
const connectionEvents = readiness.Readable | readiness.Writable | readiness.PendingShutdownComplete

// Echo is a guest that echoes every accepted connection.
type Echo struct {
	Bridge *bridge.Bridge
	Hub    *readiness.Hub

	// ChunkSize bounds each receive-ring view. Zero selects
	// DefaultChunkSize.
	ChunkSize int

	// Logger receives structured log output. If nil, slog.Default() is
	// used.
	Logger *slog.Logger

	connections atomic.Int64
	echoed      atomic.Int64
}

func (e *Echo) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func (e *Echo) chunkSize() int {
	if e.ChunkSize > 0 {
		return e.ChunkSize
	}
	return DefaultChunkSize
}

// Connections returns the number of connections served to completion.
func (e *Echo) Connections() int64 {
	return e.connections.Load()
}

// Echoed returns the total bytes staged back to peers.
func (e *Echo) Echoed() int64 {
	return e.echoed.Load()
}

// Serve accepts connections from server until ctx is done or the
// listener latches an error. It waits for in-flight connections before
// returning. Cancellation is a normal stop and returns nil.
func (e *Echo) Serve(ctx context.Context, server *bridge.ServerSocket) error {
	waiter := e.Hub.Subscribe(server.FD(), readiness.Readable)
	defer waiter.Close()

	var waitGroup sync.WaitGroup
	defer waitGroup.Wait()

	for {
		for {
			connection, ok := server.Dequeue()
			if !ok {
				break
			}
			waitGroup.Add(1)
			go func() {
				defer waitGroup.Done()
				e.serveConnection(ctx, connection)
			}()
		}

		if errno := server.Queue().Error(); errno != 0 {
			return fmt.Errorf("workload: accepting on fd %d: %w", server.FD(), errno)
		}

		if _, err := waiter.Wait(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
	}
}

// serveConnection runs one connection to completion and closes it.
func (e *Echo) serveConnection(ctx context.Context, connection socketbuf.AcceptedConnection) {
	logger := e.logger().With("fd", connection.FD)
	socket, ok := e.Bridge.DataSocket(connection.FD)
	if !ok {
		logger.Warn("accepted connection has no data socket")
		return
	}

	waiter := e.Hub.Subscribe(connection.FD, connectionEvents)
	defer waiter.Close()
	defer func() {
		if err := socket.Close(); err != nil {
			logger.Error("closing connection", "error", err)
		}
	}()

	state := echoState{
		socket:    socket,
		buffer:    connection.Buffer,
		chunkSize: e.chunkSize(),
	}
	for {
		done, err := state.step()
		e.echoed.Add(int64(state.takeEchoed()))
		if err != nil {
			logger.Debug("connection ended with error", "error", err)
			return
		}
		if done {
			e.connections.Add(1)
			logger.Debug("connection finished")
			return
		}
		if state.progressed {
			continue
		}

		mask, err := waiter.Wait(ctx)
		if err != nil {
			return
		}
		if mask.Has(readiness.PendingShutdownComplete) {
			if err := socket.FinishShutdown(); err != nil {
				logger.Debug("finishing write shutdown", "error", err)
				return
			}
		}
	}
}

// echoState is the per-connection echo loop state. Only the
// connection's goroutine touches it.
type echoState struct {
	socket    *bridge.DataSocket
	buffer    *socketbuf.SocketBuffer
	chunkSize int

	// pending holds bytes taken from the receive ring that did not yet
	// fit in the send ring.
	pending           buffer.SegmentedView
	shutdownRequested bool
	progressed        bool
	echoed            int
}

func (s *echoState) takeEchoed() int {
	n := s.echoed
	s.echoed = 0
	return n
}

// step moves as much data as it can without blocking. It reports done
// once the peer's stream has been echoed in full and the host write
// side is shut down.
func (s *echoState) step() (done bool, err error) {
	s.progressed = false

	if errno := s.buffer.Error(); errno != 0 {
		return false, errno
	}
	if s.buffer.WriteClosed() {
		return false, errors.New("peer stopped reading")
	}

	if s.pending.Size() == 0 && !s.shutdownRequested {
		view, trigger := s.buffer.ReadView(s.chunkSize)
		if trigger {
			// The ring was full, so the read pump stopped; nothing
			// else will restart it under edge-triggered polling.
			s.socket.PumpRead()
		}
		if view.Size() > 0 {
			s.pending = view
			s.progressed = true
		}
	}

	if s.pending.Size() > 0 {
		n, trigger := s.buffer.WriteView(&s.pending)
		if trigger {
			s.socket.PumpWrite()
		}
		if n > 0 {
			s.echoed += n
			s.progressed = true
		}
	}

	if !s.shutdownRequested && s.pending.Size() == 0 && s.buffer.ReadClosed() && !s.buffer.HasReadData() {
		s.shutdownRequested = true
		s.progressed = true
		if err := s.socket.Shutdown(); err != nil {
			return false, err
		}
	}

	if s.shutdownRequested && !s.buffer.HasWriteData() {
		if err := s.socket.FinishShutdown(); err != nil {
			return false, err
		}
		return s.socket.ShutdownDone(), nil
	}
	return false, nil
}
