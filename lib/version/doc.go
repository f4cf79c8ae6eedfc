// Copyright 2026 The Quark Authors
// SPDX-License-Identifier: Apache-2.0

// Package version provides build version information for the bridge
// binaries.
//
// Four package-level variables are injected at build time via
// -ldflags -X:
//
//	go build -ldflags "-X github.com/gao-feng/Quark/lib/version.GitCommit=$(git rev-parse --short HEAD)"
//
//   - [GitCommit] -- short git SHA of the build
//   - [GitDirty] -- "true" if there were uncommitted changes
//   - [BuildTime] -- UTC timestamp of the build
//   - [Version] -- semantic version string (set manually for releases)
//
// [Info] formats them for --version, [Full] adds the Go version and
// platform, and [Print] writes the full form for a named binary.
package version
