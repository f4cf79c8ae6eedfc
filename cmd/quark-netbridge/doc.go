// Copyright 2026 The Quark Authors
// SPDX-License-Identifier: Apache-2.0

// Quark-netbridge runs the host socket bridge with an echo guest. It
// listens on a host TCP address, moves every accepted connection's
// bytes through per-connection socket buffers driven by edge-triggered
// epoll, and echoes each stream back to its peer.
//
// The "trace" subcommand prints a readiness trace written by a
// previous run:
//
//	quark-netbridge --config quark.yaml
//	quark-netbridge trace /var/lib/quark/signals.zst
package main
