// Copyright 2026 The Quark Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the CBOR encoding configuration shared by
// every binary format the bridge writes, currently the readiness
// trace.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, smallest integer encoding, no indefinite-length items.
// Same logical data always produces identical bytes, so two traces of
// the same run compare equal byte for byte.
//
// A trace is written one [Marshal]ed record at a time and read back
// either as a stream with [NewDecoder] or item by item with
// [DiagnoseFirst] and [Unmarshal], which also yields the diagnostic
// notation of each item:
//
//	data, err := codec.Marshal(record)
//	notation, rest, err := codec.DiagnoseFirst(data)
//
// Types serialized only as CBOR carry `cbor` struct tags. Types that
// also appear in JSON output carry `json` tags, which fxamacker/cbor
// reads as a fallback; never put both on one field.
package codec
