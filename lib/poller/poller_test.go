// Copyright 2026 The Quark Authors
// SPDX-License-Identifier: Apache-2.0

package poller

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/gao-feng/Quark/lib/fdtable"
	"github.com/gao-feng/Quark/lib/readiness"
	"github.com/gao-feng/Quark/lib/testutil"
)

// channelHandler forwards every notification to a channel.
type channelHandler chan readiness.EventMask

func (h channelHandler) Notify(mask readiness.EventMask) {
	h <- mask
}

func newPoller(t *testing.T, table Lookup) *Poller {
	t.Helper()
	poller, err := New(table, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { poller.Close() })
	return poller
}

// runPoller starts Run in the background and returns a function that
// cancels it and waits for it to return.
func runPoller(t *testing.T, poller *Poller, workers int) func() error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- poller.Run(ctx, workers) }()
	return func() error {
		cancel()
		return testutil.RequireReceive(t, done, 5*time.Second, "poller shutdown")
	}
}

func TestPoller_DispatchesReadable(t *testing.T) {
	table := fdtable.New()
	poller := newPoller(t, table)
	pair := testutil.SocketPair(t)

	entry, err := table.Register(pair[0])
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	events := make(channelHandler, 16)
	entry.SetHandler(events)

	if err := poller.Watch(pair[0], readiness.Readable|readiness.ReadHangUp); err != nil {
		t.Fatalf("Watch: %v", err)
	}
	stop := runPoller(t, poller, 2)

	if _, err := unix.Write(pair[1], []byte("edge")); err != nil {
		t.Fatalf("write: %v", err)
	}
	mask := testutil.RequireReceive(t, events, 5*time.Second, "readable event")
	if !mask.Has(readiness.Readable) {
		t.Fatalf("event = %v, want readable", mask)
	}

	unix.Close(pair[1])
	pair[1] = -1
	for {
		mask = testutil.RequireReceive(t, events, 5*time.Second, "hangup event")
		if mask.Has(readiness.ReadHangUp) {
			break
		}
	}

	if err := stop(); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestPoller_EdgeTriggered(t *testing.T) {
	table := fdtable.New()
	poller := newPoller(t, table)
	pair := testutil.SocketPair(t)

	entry, _ := table.Register(pair[0])
	events := make(channelHandler, 16)
	entry.SetHandler(events)
	if err := poller.Watch(pair[0], readiness.Readable); err != nil {
		t.Fatalf("Watch: %v", err)
	}
	stop := runPoller(t, poller, 1)
	defer stop()

	unix.Write(pair[1], []byte("one"))
	testutil.RequireReceive(t, events, 5*time.Second, "first edge")

	// The data is left unread. A level-triggered poller would report it
	// again; an edge-triggered one reports only the next arrival.
	unix.Write(pair[1], []byte("two"))
	testutil.RequireReceive(t, events, 5*time.Second, "second edge")
	select {
	case mask := <-events:
		t.Fatalf("unexpected repeat event %v without new data", mask)
	default:
	}
}

func TestPoller_UnregisteredDescriptorIsDropped(t *testing.T) {
	table := fdtable.New()
	poller := newPoller(t, table)
	pair := testutil.SocketPair(t)

	if err := poller.Watch(pair[0], readiness.Readable); err != nil {
		t.Fatalf("Watch: %v", err)
	}
	stop := runPoller(t, poller, 1)

	// No table entry: the event is logged and discarded, and the
	// worker keeps running.
	unix.Write(pair[1], []byte("orphan"))

	entry, _ := table.Register(pair[1])
	events := make(channelHandler, 4)
	entry.SetHandler(events)
	if err := poller.Watch(pair[1], readiness.Readable); err != nil {
		t.Fatalf("Watch: %v", err)
	}
	unix.Write(pair[0], []byte("reply"))
	testutil.RequireReceive(t, events, 5*time.Second, "event after an orphan")

	if err := stop(); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestPoller_WatchAndUnwatch(t *testing.T) {
	poller := newPoller(t, fdtable.New())
	pair := testutil.SocketPair(t)

	if err := poller.Watch(pair[0], readiness.Readable); err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if err := poller.Watch(pair[0], readiness.Readable); !errors.Is(err, unix.EEXIST) {
		t.Fatalf("second Watch = %v, want EEXIST", err)
	}
	if err := poller.Unwatch(pair[0]); err != nil {
		t.Fatalf("Unwatch: %v", err)
	}
	if err := poller.Unwatch(pair[0]); !errors.Is(err, unix.ENOENT) {
		t.Fatalf("second Unwatch = %v, want ENOENT", err)
	}
}

func TestPoller_RunReturnsOnCancel(t *testing.T) {
	poller := newPoller(t, fdtable.New())
	stop := runPoller(t, poller, 4)
	if err := stop(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := poller.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := poller.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
