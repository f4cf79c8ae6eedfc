// Copyright 2026 The Quark Authors
// SPDX-License-Identifier: Apache-2.0

package workload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/gao-feng/Quark/bridge"
	"github.com/gao-feng/Quark/lib/asyncio"
	"github.com/gao-feng/Quark/lib/fdtable"
	"github.com/gao-feng/Quark/lib/poller"
	"github.com/gao-feng/Quark/lib/readiness"
	"github.com/gao-feng/Quark/lib/testutil"
)

type stack struct {
	bridge *bridge.Bridge
	server *bridge.ServerSocket
	echo   *Echo
	async  *asyncio.Registry
	table  *fdtable.Table
}

// startStack wires a real host bridge on a loopback port and runs the
// poller and an Echo guest until the test ends.
func startStack(t *testing.T, bufferSize, backlog int) *stack {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	table := fdtable.New()
	events, err := poller.New(table, logger)
	if err != nil {
		t.Fatalf("poller.New: %v", err)
	}
	hub := readiness.NewHub(nil)
	async := asyncio.NewRegistry(64)

	hostBridge := &bridge.Bridge{
		Host:            bridge.SystemHost(),
		Registry:        table,
		Async:           async,
		Watcher:         events,
		Signaler:        hub,
		ReadBufferSize:  bufferSize,
		WriteBufferSize: bufferSize,
		Logger:          logger,
	}
	server, err := hostBridge.Listen("127.0.0.1:0", backlog)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}

	echo := &Echo{Bridge: hostBridge, Hub: hub, ChunkSize: bufferSize / 2, Logger: logger}

	ctx, cancel := context.WithCancel(context.Background())
	pollerDone := make(chan error, 1)
	serveDone := make(chan error, 1)
	go func() { pollerDone <- events.Run(ctx, 2) }()
	go func() { serveDone <- echo.Serve(ctx, server) }()

	t.Cleanup(func() {
		cancel()
		if err := testutil.RequireReceive(t, serveDone, 10*time.Second, "echo shutdown"); err != nil {
			t.Errorf("Serve: %v", err)
		}
		if err := testutil.RequireReceive(t, pollerDone, 10*time.Second, "poller shutdown"); err != nil {
			t.Errorf("poller Run: %v", err)
		}
		if err := server.Close(); err != nil {
			t.Errorf("closing listener: %v", err)
		}
		events.Close()
	})

	return &stack{bridge: hostBridge, server: server, echo: echo, async: async, table: table}
}

func (s *stack) address(t *testing.T) string {
	t.Helper()
	address, err := s.server.Addr()
	if err != nil {
		t.Fatalf("Addr: %v", err)
	}
	return address.String()
}

// exchange sends payload, half-closes, and returns everything the
// server sends back before closing its side.
func exchange(address string, payload []byte) ([]byte, error) {
	conn, err := net.Dial("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(20 * time.Second))

	writeErr := make(chan error, 1)
	go func() {
		_, err := conn.Write(payload)
		if err == nil {
			err = conn.(*net.TCPConn).CloseWrite()
		}
		writeErr <- err
	}()

	received, err := io.ReadAll(conn)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	if err := <-writeErr; err != nil {
		return nil, fmt.Errorf("write: %w", err)
	}
	return received, nil
}

func roundTrip(t *testing.T, address string, payload []byte) []byte {
	t.Helper()
	received, err := exchange(address, payload)
	if err != nil {
		t.Fatalf("round trip: %v", err)
	}
	return received
}

func TestEcho_SmallMessage(t *testing.T) {
	s := startStack(t, 4096, 8)

	got := roundTrip(t, s.address(t), []byte("hello, bridge"))
	if string(got) != "hello, bridge" {
		t.Fatalf("echoed %q, want %q", got, "hello, bridge")
	}
}

func TestEcho_EmptyStream(t *testing.T) {
	s := startStack(t, 4096, 8)

	if got := roundTrip(t, s.address(t), nil); len(got) != 0 {
		t.Fatalf("echoed %d bytes for an empty stream", len(got))
	}
}

func TestEcho_PayloadLargerThanRings(t *testing.T) {
	// 256-byte rings against a 1 MiB payload forces every ring to fill
	// and wrap repeatedly, so progress depends on the full/empty
	// triggers resuming the pumps.
	s := startStack(t, 256, 8)

	payload := bytes.Repeat([]byte("0123456789abcdefghijklmnopqrstuv"), 32*1024)
	got := roundTrip(t, s.address(t), payload)
	if !bytes.Equal(got, payload) {
		t.Fatalf("echoed %d bytes, want %d identical bytes", len(got), len(payload))
	}
}

func TestEcho_ConcurrentClientsThroughSmallBacklog(t *testing.T) {
	// A backlog of one means the accept queue fills immediately and
	// later connections wait in the host until a dequeue resumes the
	// accept pump.
	s := startStack(t, 1024, 1)
	address := s.address(t)

	const clients = 12
	var waitGroup sync.WaitGroup
	failures := make(chan error, clients)
	for range clients {
		waitGroup.Add(1)
		go func() {
			defer waitGroup.Done()
			name := testutil.UniqueID("client")
			payload := bytes.Repeat([]byte(name+";"), 500)
			got, err := exchange(address, payload)
			if err != nil {
				failures <- fmt.Errorf("%s: %w", name, err)
				return
			}
			if !bytes.Equal(got, payload) {
				failures <- fmt.Errorf("%s: echoed %d bytes, want %d identical bytes", name, len(got), len(payload))
			}
		}()
	}
	waitGroup.Wait()
	close(failures)
	for failure := range failures {
		t.Error(failure)
	}
}

func TestEcho_ReleasesConnections(t *testing.T) {
	s := startStack(t, 4096, 8)
	address := s.address(t)

	for range 5 {
		roundTrip(t, address, []byte("ping"))
	}

	// The server side closes just after its FIN reaches the client, so
	// give the connection goroutines a moment to finish.
	deadline := time.Now().Add(10 * time.Second)
	for s.echo.Connections() < 5 || s.async.Attached() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("after 5 connections: served=%d attached=%d", s.echo.Connections(), s.async.Attached())
		}
		time.Sleep(10 * time.Millisecond)
	}
	if s.echo.Echoed() != 20 {
		t.Errorf("Echoed = %d, want 20", s.echo.Echoed())
	}
	// Only the listener remains registered.
	if s.table.Len() != 1 {
		t.Errorf("registry holds %d descriptors, want 1", s.table.Len())
	}
}
