// Copyright 2026 The Quark Authors
// SPDX-License-Identifier: Apache-2.0

package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/gao-feng/Quark/lib/fdtable"
	"github.com/gao-feng/Quark/lib/readiness"
)

// eventBatch is the number of events one worker collects per wait.
const eventBatch = 128

// Lookup resolves a descriptor to its table entry. *fdtable.Table
// satisfies it.
type Lookup interface {
	Lookup(fd int) (*fdtable.Entry, bool)
}

// Poller is an edge-triggered epoll instance dispatching into a
// descriptor table.
type Poller struct {
	epollFD int
	wakeFD  int
	table   Lookup
	logger  *slog.Logger

	closeOnce  sync.Once
	closeError error
}

// New creates an epoll instance. A nil logger selects slog.Default().
func New(table Lookup, logger *slog.Logger) (*Poller, error) {
	if logger == nil {
		logger = slog.Default()
	}

	epollFD, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("poller: epoll_create1: %w", err)
	}

	wakeFD, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epollFD)
		return nil, fmt.Errorf("poller: eventfd: %w", err)
	}

	// The wake descriptor is level-triggered and never drained, so
	// once written every worker observes it.
	event := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakeFD)}
	if err := unix.EpollCtl(epollFD, unix.EPOLL_CTL_ADD, wakeFD, &event); err != nil {
		unix.Close(wakeFD)
		unix.Close(epollFD)
		return nil, fmt.Errorf("poller: registering wake descriptor: %w", err)
	}

	return &Poller{
		epollFD: epollFD,
		wakeFD:  wakeFD,
		table:   table,
		logger:  logger,
	}, nil
}

// Watch arms edge-triggered notifications for mask on fd.
func (p *Poller) Watch(fd int, mask readiness.EventMask) error {
	event := unix.EpollEvent{
		Events: mask.Host() | unix.EPOLLET,
		Fd:     int32(fd),
	}
	if err := unix.EpollCtl(p.epollFD, unix.EPOLL_CTL_ADD, fd, &event); err != nil {
		return fmt.Errorf("poller: watching fd %d: %w", fd, err)
	}
	return nil
}

// Unwatch disarms fd. Unwatching a descriptor that is not watched
// returns an error wrapping ENOENT.
func (p *Poller) Unwatch(fd int) error {
	if err := unix.EpollCtl(p.epollFD, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("poller: unwatching fd %d: %w", fd, err)
	}
	return nil
}

// Run dispatches events with workers goroutines until ctx is
// cancelled, then returns nil. It returns early with an error if
// epoll_wait fails with anything other than EINTR. Run must not be
// called concurrently with Close.
func (p *Poller) Run(ctx context.Context, workers int) error {
	if workers < 1 {
		workers = 1
	}

	stop := context.AfterFunc(ctx, p.wake)
	defer stop()

	var waitGroup sync.WaitGroup
	errs := make([]error, workers)
	for worker := range workers {
		waitGroup.Add(1)
		go func() {
			defer waitGroup.Done()
			errs[worker] = p.work()
			if errs[worker] != nil {
				// One failed worker takes the rest down with it.
				p.wake()
			}
		}()
	}
	waitGroup.Wait()

	return errors.Join(errs...)
}

func (p *Poller) work() error {
	events := make([]unix.EpollEvent, eventBatch)
	for {
		n, err := unix.EpollWait(p.epollFD, events, -1)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return fmt.Errorf("poller: epoll_wait: %w", err)
		}

		for _, event := range events[:n] {
			fd := int(event.Fd)
			if fd == p.wakeFD {
				// Cancelled, or a sibling worker failed and Run
				// reports its error.
				return nil
			}
			p.dispatch(fd, readiness.FromHost(event.Events))
		}
	}
}

func (p *Poller) dispatch(fd int, mask readiness.EventMask) {
	entry, ok := p.table.Lookup(fd)
	if !ok {
		// Closed between the kernel queuing the event and now.
		p.logger.Debug("event for unregistered descriptor", "fd", fd, "events", mask)
		return
	}
	entry.Notify(mask)
}

// wake makes the wake descriptor readable.
func (p *Poller) wake() {
	var one = [8]byte{1}
	if _, err := unix.Write(p.wakeFD, one[:]); err != nil && !errors.Is(err, unix.EAGAIN) {
		p.logger.Error("waking poller workers", "error", err)
	}
}

// Close releases the epoll instance. Call it after Run has returned.
func (p *Poller) Close() error {
	p.closeOnce.Do(func() {
		p.closeError = errors.Join(unix.Close(p.wakeFD), unix.Close(p.epollFD))
	})
	return p.closeError
}
