// Copyright 2026 The Quark Authors
// SPDX-License-Identifier: Apache-2.0

package socketbuf

import (
	"fmt"
	"sync"
)

// ring is a fixed-capacity byte ring with one producer and one
// consumer. head and tail are monotonically increasing byte counts; the
// stored bytes are [head, tail). The mutex guards only the cursors.
type ring struct {
	mutex sync.Mutex
	data  []byte
	head  uint64
	tail  uint64
}

func newRing(capacity int) *ring {
	if capacity <= 0 {
		panic(fmt.Sprintf("socketbuf: ring capacity must be positive, got %d", capacity))
	}
	return &ring{data: make([]byte, capacity)}
}

func (r *ring) lockedAvailable() int {
	return int(r.tail - r.head)
}

func (r *ring) lockedFree() int {
	return len(r.data) - r.lockedAvailable()
}

// lockedFreeRegion returns the contiguous free space starting at tail.
func (r *ring) lockedFreeRegion() []byte {
	free := r.lockedFree()
	if free == 0 {
		return nil
	}
	start := int(r.tail % uint64(len(r.data)))
	end := start + free
	if end > len(r.data) {
		end = len(r.data)
	}
	return r.data[start:end:end]
}

// lockedAvailableRegion returns the contiguous stored bytes starting at
// head.
func (r *ring) lockedAvailableRegion() []byte {
	available := r.lockedAvailable()
	if available == 0 {
		return nil
	}
	start := int(r.head % uint64(len(r.data)))
	end := start + available
	if end > len(r.data) {
		end = len(r.data)
	}
	return r.data[start:end:end]
}

func (r *ring) freeRegion() []byte {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.lockedFreeRegion()
}

func (r *ring) availableRegion() []byte {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.lockedAvailableRegion()
}

func (r *ring) available() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.lockedAvailable()
}

// produce advances tail by n bytes already written into the free
// region. Returns whether the ring went from empty to non-empty and the
// next free region.
func (r *ring) produce(n int) (bool, []byte) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if n < 0 || n > r.lockedFree() {
		panic(fmt.Sprintf("socketbuf: produce(%d) with %d bytes free", n, r.lockedFree()))
	}
	wasEmpty := r.lockedAvailable() == 0
	r.tail += uint64(n)
	return wasEmpty && n > 0, r.lockedFreeRegion()
}

// consume advances head by n bytes already read out of the available
// region. Returns whether the ring went from full to not full and the
// next available region.
func (r *ring) consume(n int) (bool, []byte) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if n < 0 || n > r.lockedAvailable() {
		panic(fmt.Sprintf("socketbuf: consume(%d) with %d bytes available", n, r.lockedAvailable()))
	}
	wasFull := r.lockedFree() == 0
	r.head += uint64(n)
	return wasFull && n > 0, r.lockedAvailableRegion()
}

// copyIn copies as much of src as fits. Returns the count and whether
// the ring went from empty to non-empty.
func (r *ring) copyIn(src []byte) (int, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	wasEmpty := r.lockedAvailable() == 0
	copied := 0
	for copied < len(src) {
		region := r.lockedFreeRegion()
		if len(region) == 0 {
			break
		}
		n := copy(region, src[copied:])
		r.tail += uint64(n)
		copied += n
	}
	return copied, wasEmpty && copied > 0
}

// copyOut copies up to len(dst) stored bytes. Returns the count and
// whether the ring went from full to not full.
func (r *ring) copyOut(dst []byte) (int, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	wasFull := r.lockedFree() == 0
	copied := 0
	for copied < len(dst) {
		region := r.lockedAvailableRegion()
		if len(region) == 0 {
			break
		}
		n := copy(dst[copied:], region)
		r.head += uint64(n)
		copied += n
	}
	return copied, wasFull && copied > 0
}
