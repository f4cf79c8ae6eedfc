// Copyright 2026 The Quark Authors
// SPDX-License-Identifier: Apache-2.0

// Package buffer provides the byte views used to move packet and stream
// data through the host network bridge without forcing it into one
// contiguous allocation.
//
// [ByteView] is a single owned buffer with a visible region. Trimming
// the front discards bytes; capping the length truncates the visible
// region, zeroes the discarded tail, and clamps the slice capacity so
// the view can never be resliced back over the excluded bytes. This
// keeps leftover data from a previous packet from resurfacing when a
// buffer is reused.
//
// [SegmentedView] is an ordered list of ByteViews forming one logical
// byte stream. It tracks the total size alongside the segments and
// keeps the two consistent across every trim, cap, remove and append.
//
// Views have a single owner. Operations that consume a view
// ([ByteView.ToSegmentedView], [SegmentedView.Append],
// [SegmentedView.ToView]) transfer the underlying storage; the caller
// must not use the consumed value afterwards.
package buffer
