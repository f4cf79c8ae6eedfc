// Copyright 2026 The Quark Authors
// SPDX-License-Identifier: Apache-2.0

// Package socketbuf provides the buffers shared between the host socket
// bridge and the guest: [SocketBuffer] for connected streams and
// [AcceptQueue] for pending connections on a listening socket.
//
// A SocketBuffer holds two independent rings. The receive ring is
// filled by the bridge's read pump and drained by the guest; the send
// ring is filled by the guest and drained by the bridge's write pump.
// Each cursor has exactly one writer, so the host side and the guest
// side touch disjoint regions of ring memory and only the cursor
// updates need synchronizing. The host side receives ring memory as
// slices ([SocketBuffer.FreeReadBuffer],
// [SocketBuffer.AvailableWriteBuffer]) and performs syscalls directly
// into or out of them.
//
// Every method that moves a cursor reports whether the move crossed a
// boundary the other side may be waiting on (empty to non-empty, or
// full to not full). The caller turns that into a readiness signal or a
// pump resumption.
package socketbuf
