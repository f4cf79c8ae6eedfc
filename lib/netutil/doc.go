// Copyright 2026 The Quark Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil classifies host socket errors for the network bridge.
//
// [IsWouldBlock] and [IsInterrupted] separate the transient results of
// nonblocking syscalls from real failures. [Errno] reduces any error to
// the errno latched on a socket buffer or accept queue.
// [IsExpectedCloseError] recognizes normal teardown (EOF, EPIPE,
// ECONNRESET) so callers can log it at Debug.
package netutil
