// Copyright 2026 The Quark Authors
// SPDX-License-Identifier: Apache-2.0

// Package poller delivers host readiness to the descriptor table.
//
// A [Poller] owns one edge-triggered epoll instance. [Poller.Watch]
// arms a descriptor with EPOLLET; [Poller.Run] starts worker
// goroutines that wait on the instance and hand every event to the
// matching [fdtable.Entry]. Because notifications are edge-triggered,
// a handler must drain the descriptor until EAGAIN (or until its own
// buffer is full and it has arranged to be resumed) before returning.
//
// Several workers may wait on the same instance. The kernel hands each
// edge to one worker, but two edges for one descriptor can reach two
// workers at once, so handlers serialize their own work.
package poller
