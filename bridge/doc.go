// Copyright 2026 The Quark Authors
// SPDX-License-Identifier: Apache-2.0

// Package bridge moves bytes between real host sockets and the guest's
// in-sandbox socket buffers without ever handing the guest a host file
// descriptor.
//
// The guest sees a [socketbuf.SocketBuffer] per connection and a
// [socketbuf.AcceptQueue] per listening socket. The bridge owns the
// host descriptors and reacts to edge-triggered readiness events:
//
//   - [ServerSocket] drains completed host accepts into the accept
//     queue while the queue has space. Each accepted descriptor is
//     registered, given a fresh SocketBuffer and a [DataSocket], and
//     watched for readiness before it is queued for the guest.
//   - [DataSocket] runs a read pump (host → receive ring) and a write
//     pump (send ring → host). Each direction has its own mutex, so
//     the two pumps of one descriptor run in parallel while two pumps
//     of the same direction never overlap.
//
// Every pump drains until the host reports EAGAIN, the buffer runs out
// of space or data, the peer closes, or an error occurs. Nothing is
// returned to the caller: closure is latched on the buffer as a
// half-close flag, errors are latched as an errno, and both are turned
// into guest-visible signals through the [Signaler]. Once an error is
// latched, every later notification short-circuits to an Error|Readable
// signal without touching the host.
//
// The collaborators (descriptor registry, async I/O registry, host
// poller, guest signal hub, and the host syscalls themselves) are
// injected through [Bridge] so the pumps run against fakes in tests.
package bridge
