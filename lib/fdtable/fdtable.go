// Copyright 2026 The Quark Authors
// SPDX-License-Identifier: Apache-2.0

// Package fdtable maps raw host descriptors to the bridge objects that
// handle their readiness events. The poller looks descriptors up here
// to dispatch epoll events; the bridge registers freshly accepted
// descriptors and removes them on close.
package fdtable

import (
	"fmt"
	"sync"

	"github.com/gao-feng/Quark/lib/readiness"
)

// Handler receives readiness events for one host descriptor.
type Handler interface {
	Notify(mask readiness.EventMask)
}

// Entry is the table's record for one descriptor. The handler is set
// after registration because the bridge object is built around the
// registered descriptor.
type Entry struct {
	fd int

	mutex   sync.Mutex
	handler Handler
}

// FD returns the host descriptor.
func (e *Entry) FD() int {
	return e.fd
}

// SetHandler attaches the handler that receives this descriptor's
// events.
func (e *Entry) SetHandler(handler Handler) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.handler = handler
}

// Handler returns the attached handler, or nil.
func (e *Entry) Handler() Handler {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.handler
}

// Notify forwards mask to the attached handler. Events that arrive
// before a handler is attached are dropped; the handler drains the
// descriptor on its first notification anyway.
func (e *Entry) Notify(mask readiness.EventMask) {
	if handler := e.Handler(); handler != nil {
		handler.Notify(mask)
	}
}

// Table is the process-wide descriptor registry. Safe for concurrent
// use.
type Table struct {
	mutex   sync.RWMutex
	entries map[int]*Entry
}

// New creates an empty table.
func New() *Table {
	return &Table{entries: make(map[int]*Entry)}
}

// Register adds fd and returns its entry. Registering a descriptor that
// is already present is an error: the kernel never hands out a live
// descriptor number twice, so a duplicate means a missed Remove.
func (t *Table) Register(fd int) (*Entry, error) {
	if fd < 0 {
		return nil, fmt.Errorf("fdtable: invalid descriptor %d", fd)
	}
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if _, exists := t.entries[fd]; exists {
		return nil, fmt.Errorf("fdtable: descriptor %d already registered", fd)
	}
	entry := &Entry{fd: fd}
	t.entries[fd] = entry
	return entry, nil
}

// Lookup returns the entry for fd.
func (t *Table) Lookup(fd int) (*Entry, bool) {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	entry, ok := t.entries[fd]
	return entry, ok
}

// Remove deletes fd from the table. Removing an absent descriptor is a
// no-op.
func (t *Table) Remove(fd int) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	delete(t.entries, fd)
}

// Len returns the number of registered descriptors.
func (t *Table) Len() int {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return len(t.entries)
}
