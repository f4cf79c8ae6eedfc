// Copyright 2026 The Quark Authors
// SPDX-License-Identifier: Apache-2.0

// Package trace records every guest-visible readiness signal to a
// file for offline inspection.
//
// A trace is a CBOR sequence of [Record] values encoded through
// lib/codec. The file extension picks the framing: ".zst" wraps the
// sequence in a zstd stream, ".lz4" in an lz4 frame, anything else is
// written raw. [Writer] implements readiness.Recorder, so a daemon
// installs tracing by passing a Writer to readiness.NewHub.
//
// [Writer.Record] runs inside the bridge pumps and never blocks: a
// writer goroutine does the encoding and file I/O, and records arriving
// while it is a full queue behind are dropped and counted. Write
// failures do not propagate to the signalling path either. The first
// failure is latched, later records are discarded, and the error is
// returned from [Writer.Close].
//
// [ReadAll] decodes a trace; [ReadRaw] also renders each record's CBOR
// diagnostic notation for inspecting the bytes as stored.
package trace
