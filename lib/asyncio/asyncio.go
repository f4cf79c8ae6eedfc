// Copyright 2026 The Quark Authors
// SPDX-License-Identifier: Apache-2.0

// Package asyncio tracks the descriptors registered with the
// asynchronous I/O submission subsystem. Registration assigns each
// descriptor a fixed slot, the way io_uring's registered-file table
// does, so submissions can reference a slot index instead of a raw
// descriptor. The table has a fixed size; attaching to a full table
// fails, and that failure abandons the connection being attached.
package asyncio

import (
	"errors"
	"fmt"
	"sync"
)

// DefaultTableSize is the registered-file table size when none is
// configured.
const DefaultTableSize = 4096

var (
	// ErrTableFull is returned by Attach when every slot is in use.
	ErrTableFull = errors.New("asyncio: registered file table is full")

	// ErrAlreadyAttached is returned by Attach for a descriptor that
	// already holds a slot.
	ErrAlreadyAttached = errors.New("asyncio: descriptor already attached")
)

// Registry is a fixed-size registered-file table. Safe for concurrent
// use.
type Registry struct {
	mutex sync.Mutex
	slots []int
	byFD  map[int]int
	free  []int
}

// NewRegistry creates a table with size slots. A non-positive size
// selects DefaultTableSize.
func NewRegistry(size int) *Registry {
	if size <= 0 {
		size = DefaultTableSize
	}
	registry := &Registry{
		slots: make([]int, size),
		byFD:  make(map[int]int),
		free:  make([]int, 0, size),
	}
	// Hand out low slots first.
	for slot := size - 1; slot >= 0; slot-- {
		registry.slots[slot] = -1
		registry.free = append(registry.free, slot)
	}
	return registry
}

// Attach assigns fd a slot.
func (r *Registry) Attach(fd int) error {
	if fd < 0 {
		return fmt.Errorf("asyncio: invalid descriptor %d", fd)
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if _, exists := r.byFD[fd]; exists {
		return fmt.Errorf("attaching fd %d: %w", fd, ErrAlreadyAttached)
	}
	if len(r.free) == 0 {
		return fmt.Errorf("attaching fd %d: %w", fd, ErrTableFull)
	}
	slot := r.free[len(r.free)-1]
	r.free = r.free[:len(r.free)-1]
	r.slots[slot] = fd
	r.byFD[fd] = slot
	return nil
}

// Detach releases fd's slot. Detaching an unknown descriptor is a no-op.
func (r *Registry) Detach(fd int) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	slot, exists := r.byFD[fd]
	if !exists {
		return
	}
	delete(r.byFD, fd)
	r.slots[slot] = -1
	r.free = append(r.free, slot)
}

// Slot returns the slot assigned to fd.
func (r *Registry) Slot(fd int) (int, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	slot, ok := r.byFD[fd]
	return slot, ok
}

// Attached returns the number of occupied slots.
func (r *Registry) Attached() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return len(r.byFD)
}
