// Copyright 2026 The Quark Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers.
//
// [SocketPair] creates a connected pair of nonblocking stream sockets
// and closes them when the test completes. Tests for the poller and
// the host bridge use a pair wherever they need a real descriptor with
// real readiness edges.
//
// [RequireReceive] and [RequireClosed] bound a wait on a channel;
// [RequireEventually] bounds a wait on state a pump publishes without
// one, such as a latched ring flag. Tests never block without a
// deadline.
//
// [UniqueID] generates monotonically increasing identifiers for test
// disambiguation, such as distinct payloads written by concurrent
// clients.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
package testutil
