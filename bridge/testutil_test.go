// Copyright 2026 The Quark Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/gao-feng/Quark/lib/fdtable"
	"github.com/gao-feng/Quark/lib/readiness"
)

// readResult is one scripted host read. A result with eof set returns
// zero bytes; a result with err set fails; otherwise data is returned,
// possibly across several reads if the caller's slice is shorter.
type readResult struct {
	data []byte
	eof  bool
	err  error
}

// writeResult is one scripted host write. limit caps the bytes
// accepted (0 means a zero-length write); err fails the write.
type writeResult struct {
	limit int
	err   error
}

type acceptResult struct {
	fd   int
	peer unix.Sockaddr
	err  error
}

// fakeHost scripts host syscall results per descriptor. An exhausted
// read or accept script returns EAGAIN; an exhausted write script
// accepts everything.
type fakeHost struct {
	mutex sync.Mutex

	reads   map[int][]readResult
	writes  map[int][]writeResult
	accepts []acceptResult
	written map[int][]byte

	readCalls   int
	writeCalls  int
	acceptCalls int
	closed      []int
	shutdowns   []int
	// closeErrors fails Close for the listed descriptors after
	// recording the close.
	closeErrors map[int]error

	// readHook, when set, runs at the start of every Read outside the
	// fake's lock.
	readHook func(fd int)
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		reads:   make(map[int][]readResult),
		writes:  make(map[int][]writeResult),
		written: make(map[int][]byte),
	}
}

func (h *fakeHost) queueRead(fd int, results ...readResult) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.reads[fd] = append(h.reads[fd], results...)
}

func (h *fakeHost) queueWrite(fd int, results ...writeResult) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.writes[fd] = append(h.writes[fd], results...)
}

func (h *fakeHost) queueAccept(results ...acceptResult) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.accepts = append(h.accepts, results...)
}

func (h *fakeHost) Listen(address string) (int, error) {
	return 3, nil
}

func (h *fakeHost) Accept(fd int) (int, unix.Sockaddr, error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.acceptCalls++
	if len(h.accepts) == 0 {
		return -1, nil, unix.EAGAIN
	}
	result := h.accepts[0]
	h.accepts = h.accepts[1:]
	if result.err != nil {
		return -1, nil, result.err
	}
	return result.fd, result.peer, nil
}

func (h *fakeHost) Read(fd int, p []byte) (int, error) {
	if h.readHook != nil {
		h.readHook(fd)
	}
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.readCalls++
	script := h.reads[fd]
	if len(script) == 0 {
		return 0, unix.EAGAIN
	}
	result := script[0]
	switch {
	case result.err != nil:
		h.reads[fd] = script[1:]
		return 0, result.err
	case result.eof:
		h.reads[fd] = script[1:]
		return 0, nil
	}
	n := copy(p, result.data)
	if n < len(result.data) {
		script[0].data = result.data[n:]
	} else {
		h.reads[fd] = script[1:]
	}
	return n, nil
}

func (h *fakeHost) Write(fd int, p []byte) (int, error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.writeCalls++
	n := len(p)
	if script := h.writes[fd]; len(script) > 0 {
		result := script[0]
		h.writes[fd] = script[1:]
		if result.err != nil {
			return 0, result.err
		}
		n = min(result.limit, len(p))
	}
	h.written[fd] = append(h.written[fd], p[:n]...)
	return n, nil
}

func (h *fakeHost) Shutdown(fd int, how int) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.shutdowns = append(h.shutdowns, fd)
	return nil
}

func (h *fakeHost) Close(fd int) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.closed = append(h.closed, fd)
	return h.closeErrors[fd]
}

func (h *fakeHost) LocalAddress(fd int) (net.Addr, error) {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 8642}, nil
}

func (h *fakeHost) ioCalls() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.readCalls + h.writeCalls + h.acceptCalls
}

type signal struct {
	fd   int
	mask readiness.EventMask
}

type fakeSignaler struct {
	mutex   sync.Mutex
	signals []signal
}

func (s *fakeSignaler) Signal(fd int, mask readiness.EventMask) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.signals = append(s.signals, signal{fd, mask})
}

func (s *fakeSignaler) take() []signal {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	taken := s.signals
	s.signals = nil
	return taken
}

type fakeWatcher struct {
	mutex   sync.Mutex
	watched map[int]readiness.EventMask
	failFD  int
}

func (w *fakeWatcher) Watch(fd int, mask readiness.EventMask) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	if fd == w.failFD {
		return errors.New("watch refused")
	}
	w.watched[fd] = mask
	return nil
}

func (w *fakeWatcher) Unwatch(fd int) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	if _, ok := w.watched[fd]; !ok {
		return unix.ENOENT
	}
	delete(w.watched, fd)
	return nil
}

type fakeAsync struct {
	mutex    sync.Mutex
	attached map[int]bool
	failFD   int
}

func (a *fakeAsync) Attach(fd int) error {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	if fd == a.failFD {
		return errors.New("registered file table is full")
	}
	a.attached[fd] = true
	return nil
}

func (a *fakeAsync) Detach(fd int) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	delete(a.attached, fd)
}

// testBridge bundles a Bridge with its fakes.
type testBridge struct {
	*Bridge
	host     *fakeHost
	table    *fdtable.Table
	async    *fakeAsync
	watcher  *fakeWatcher
	signaler *fakeSignaler
}

func newTestBridge(t *testing.T) *testBridge {
	t.Helper()
	host := newFakeHost()
	table := fdtable.New()
	async := &fakeAsync{attached: make(map[int]bool), failFD: -1}
	watcher := &fakeWatcher{watched: make(map[int]readiness.EventMask), failFD: -1}
	signaler := &fakeSignaler{}
	return &testBridge{
		Bridge: &Bridge{
			Host:            host,
			Registry:        table,
			Async:           async,
			Watcher:         watcher,
			Signaler:        signaler,
			ReadBufferSize:  100,
			WriteBufferSize: 100,
			Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		},
		host:     host,
		table:    table,
		async:    async,
		watcher:  watcher,
		signaler: signaler,
	}
}

// requireSignals fails unless exactly the expected signals were
// emitted since the last call, in order.
func requireSignals(t *testing.T, signaler *fakeSignaler, want ...signal) {
	t.Helper()
	got := signaler.take()
	if len(got) != len(want) {
		t.Fatalf("signals = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("signal %d = {%d %v}, want {%d %v}", i, got[i].fd, got[i].mask, want[i].fd, want[i].mask)
		}
	}
}
