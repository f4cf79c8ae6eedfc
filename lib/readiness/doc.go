// Copyright 2026 The Quark Authors
// SPDX-License-Identifier: Apache-2.0

// Package readiness defines the event masks exchanged between the host
// poller, the socket bridge, and the guest, and the [Hub] through which
// the bridge tells the guest that something happened on a descriptor.
//
// [EventMask] reuses the epoll bit values for the host-visible events
// (readable, writable, error, hang-up, read hang-up) so host masks
// convert without a lookup table. [PendingShutdownComplete] is a
// bridge-only bit that epoll never reports.
//
// The bridge calls [Hub.Signal] from inside its pumps, so Signal never
// blocks: each [Waiter] coalesces pending bits and exposes a
// one-slot ready channel. A guest registers its waiter before checking
// socket state, then waits; a signal delivered between the check and
// the wait is held in the waiter rather than lost.
package readiness
