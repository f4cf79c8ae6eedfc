// Copyright 2026 The Quark Authors
// SPDX-License-Identifier: Apache-2.0

package readiness

import (
	"context"
	"sync"
)

// alwaysDelivered are the events every waiter receives regardless of
// its subscription mask, matching epoll's treatment of EPOLLERR and
// EPOLLHUP.
const alwaysDelivered = Error | HangUp

// Recorder observes every signal the hub delivers. Implementations must
// not block.
type Recorder interface {
	Record(fd int, mask EventMask)
}

// Hub routes guest-visible events from the bridge to the waiters
// subscribed on each descriptor. Safe for concurrent use.
type Hub struct {
	mutex    sync.Mutex
	waiters  map[int][]*Waiter
	recorder Recorder
}

// NewHub creates a hub. recorder may be nil.
func NewHub(recorder Recorder) *Hub {
	return &Hub{
		waiters:  make(map[int][]*Waiter),
		recorder: recorder,
	}
}

// Signal delivers mask to the waiters on fd whose subscription overlaps
// it. It never blocks.
func (h *Hub) Signal(fd int, mask EventMask) {
	if h.recorder != nil {
		h.recorder.Record(fd, mask)
	}

	h.mutex.Lock()
	waiters := h.waiters[fd]
	h.mutex.Unlock()

	for _, waiter := range waiters {
		if delivered := mask & (waiter.mask | alwaysDelivered); delivered != 0 {
			waiter.deliver(delivered)
		}
	}
}

// Subscribe registers a waiter for the events in mask on fd. Error and
// HangUp are always delivered. Call Close on the waiter to unsubscribe.
func (h *Hub) Subscribe(fd int, mask EventMask) *Waiter {
	waiter := &Waiter{
		hub:   h,
		fd:    fd,
		mask:  mask,
		ready: make(chan struct{}, 1),
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()
	// Copy-on-write so Signal can iterate its snapshot without the lock.
	existing := h.waiters[fd]
	updated := make([]*Waiter, len(existing), len(existing)+1)
	copy(updated, existing)
	h.waiters[fd] = append(updated, waiter)
	return waiter
}

// Subscribers returns the number of waiters registered on fd.
func (h *Hub) Subscribers(fd int) int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.waiters[fd])
}

func (h *Hub) unsubscribe(target *Waiter) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	existing := h.waiters[target.fd]
	updated := make([]*Waiter, 0, len(existing))
	for _, waiter := range existing {
		if waiter != target {
			updated = append(updated, waiter)
		}
	}
	if len(updated) == 0 {
		delete(h.waiters, target.fd)
		return
	}
	h.waiters[target.fd] = updated
}

// Waiter accumulates the events signalled on one descriptor until the
// guest takes them.
type Waiter struct {
	hub  *Hub
	fd   int
	mask EventMask

	mutex   sync.Mutex
	pending EventMask
	ready   chan struct{}
	closed  bool
}

func (w *Waiter) deliver(mask EventMask) {
	w.mutex.Lock()
	w.pending |= mask
	w.mutex.Unlock()

	select {
	case w.ready <- struct{}{}:
	default:
	}
}

// Ready returns a channel that receives when events are pending. The
// channel holds at most one token; call Take after receiving.
func (w *Waiter) Ready() <-chan struct{} {
	return w.ready
}

// Take returns and clears the pending events.
func (w *Waiter) Take() EventMask {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	pending := w.pending
	w.pending = 0
	return pending
}

// Wait blocks until events are pending or ctx is done.
func (w *Waiter) Wait(ctx context.Context) (EventMask, error) {
	for {
		if pending := w.Take(); pending != 0 {
			return pending, nil
		}
		select {
		case <-w.ready:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

// Close unsubscribes the waiter. Safe to call more than once.
func (w *Waiter) Close() {
	w.mutex.Lock()
	if w.closed {
		w.mutex.Unlock()
		return
	}
	w.closed = true
	w.mutex.Unlock()
	w.hub.unsubscribe(w)
}
