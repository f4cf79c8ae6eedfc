// Copyright 2026 The Quark Authors
// SPDX-License-Identifier: Apache-2.0

package buffer

// SegmentedView is one logical byte stream stored across
// non-contiguous ByteViews. size always equals the sum of the segment
// lengths.
type SegmentedView struct {
	views []ByteView
	size  int
}

// NewSegmentedView builds a SegmentedView from pre-built segments.
// size must equal the total length of views.
func NewSegmentedView(size int, views []ByteView) SegmentedView {
	return SegmentedView{views: views, size: size}
}

// Size returns the total number of bytes across all segments.
func (sv *SegmentedView) Size() int {
	return sv.size
}

// Views returns the segments. The slice aliases the view's storage.
func (sv *SegmentedView) Views() []ByteView {
	return sv.views
}

// TrimFront removes the first count bytes, dropping whole segments and
// trimming the last partially consumed one. Trimming more than Size
// leaves an empty view.
func (sv *SegmentedView) TrimFront(count int) {
	for count > 0 && len(sv.views) > 0 {
		if count < sv.views[0].Len() {
			sv.size -= count
			sv.views[0].TrimFront(count)
			return
		}
		count -= sv.views[0].Len()
		sv.RemoveFirst()
	}
}

// CapLength irreversibly reduces the view to length bytes. The segment
// straddling the boundary is capped (zeroing its tail) and every
// following segment is dropped. Capping at or beyond Size is a no-op.
func (sv *SegmentedView) CapLength(length int) {
	if length < 0 {
		length = 0
	}
	if length >= sv.size {
		return
	}

	sv.size = length
	for i := range sv.views {
		segment := &sv.views[i]
		if segment.Len() >= length {
			if length == 0 {
				sv.truncateSegments(i)
			} else {
				segment.CapLength(length)
				sv.truncateSegments(i + 1)
			}
			return
		}
		length -= segment.Len()
	}
}

// truncateSegments drops views[keep:], releasing the dropped segments
// so the backing array does not pin their storage.
func (sv *SegmentedView) truncateSegments(keep int) {
	clear(sv.views[keep:])
	sv.views = sv.views[:keep]
}

// First returns the first segment without removing it. The boolean is
// false when the view has no segments.
func (sv *SegmentedView) First() (ByteView, bool) {
	if len(sv.views) == 0 {
		return ByteView{}, false
	}
	return sv.views[0], true
}

// RemoveFirst drops the first segment. Returns false if there was
// nothing to remove.
func (sv *SegmentedView) RemoveFirst() bool {
	if len(sv.views) == 0 {
		return false
	}
	sv.size -= sv.views[0].Len()
	sv.views[0] = ByteView{}
	sv.views = sv.views[1:]
	return true
}

// Append moves the segments of other onto the end of sv. other must not
// be used afterwards.
func (sv *SegmentedView) Append(other SegmentedView) {
	sv.views = append(sv.views, other.views...)
	sv.size += other.size
}

// ReadTo copies bytes from the front of the view into dst and trims
// them off. Returns the number of bytes copied.
func (sv *SegmentedView) ReadTo(dst []byte) int {
	copied := 0
	for copied < len(dst) && len(sv.views) > 0 {
		if sv.views[0].Len() == 0 {
			sv.RemoveFirst()
			continue
		}
		n := copy(dst[copied:], sv.views[0].AsSlice())
		copied += n
		sv.TrimFront(n)
	}
	return copied
}

// ToView materializes the stream into one contiguous ByteView. A view
// with a single segment hands that segment back without copying. The
// SegmentedView is consumed.
func (sv *SegmentedView) ToView() ByteView {
	if len(sv.views) == 1 {
		single := sv.views[0]
		sv.views = nil
		sv.size = 0
		return single
	}

	data := make([]byte, 0, sv.size)
	for _, segment := range sv.views {
		data = append(data, segment.AsSlice()...)
	}
	sv.views = nil
	sv.size = 0
	return NewByteViewFromBytes(data)
}
