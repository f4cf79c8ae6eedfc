// Copyright 2026 The Quark Authors
// SPDX-License-Identifier: Apache-2.0

// Package workload holds guest-side consumers of the host network
// bridge.
//
// [Echo] accepts every connection a [bridge.ServerSocket] queues and
// sends back whatever each peer sends, then half-closes once the peer
// has. It exercises the full guest contract: waiting on readiness
// signals, resuming host pumps when a ring trigger fires, moving data
// as segmented views, and the two-step write shutdown.
package workload
