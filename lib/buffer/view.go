// Copyright 2026 The Quark Authors
// SPDX-License-Identifier: Apache-2.0

package buffer

import "fmt"

// ByteView is an owned byte buffer with a visible region that starts
// at the front of the storage after construction.
type ByteView struct {
	data []byte
}

// NewByteView allocates a zero-filled view of the given length.
func NewByteView(size int) ByteView {
	return ByteView{data: make([]byte, size)}
}

// NewByteViewFromBytes wraps already-produced bytes. The view takes
// ownership of data; the caller must not retain or modify it.
func NewByteViewFromBytes(data []byte) ByteView {
	return ByteView{data: data}
}

// Len returns the length of the visible region.
func (v ByteView) Len() int {
	return len(v.data)
}

// AsSlice returns the visible region. The returned slice aliases the
// view's storage.
func (v ByteView) AsSlice() []byte {
	return v.data
}

// TrimFront removes the first count bytes from the visible region.
// Trimming past the end is a caller bug and panics.
func (v *ByteView) TrimFront(count int) {
	if count < 0 || count > len(v.data) {
		panic(fmt.Sprintf("buffer: TrimFront(%d) on view of length %d", count, len(v.data)))
	}
	v.data = v.data[count:]
}

// CapLength irreversibly reduces the visible region to length bytes.
// The excluded tail is zeroed and the slice capacity clamped so the
// view cannot be resliced to expose it again. Capping beyond the
// current length is a caller bug and panics.
func (v *ByteView) CapLength(length int) {
	if length < 0 || length > len(v.data) {
		panic(fmt.Sprintf("buffer: CapLength(%d) on view of length %d", length, len(v.data)))
	}
	clear(v.data[length:])
	v.data = v.data[:length:length]
}

// ToSegmentedView returns a single-segment SegmentedView holding v.
// The receiver's storage moves into the result.
func (v ByteView) ToSegmentedView() SegmentedView {
	return NewSegmentedView(len(v.data), []ByteView{v})
}
