// Copyright 2026 The Quark Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the network bridge daemon configuration.
//
// Configuration is loaded from a single file specified by either the
// QUARK_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There is no automatic file search. A file ending
// in .json or .jsonc is read as JSON with comments; any other file is
// YAML.
//
// The file may carry development and production sections that
// override base values when [Config].Environment matches. Production
// defaults to info-level JSON logs.
//
// Variable expansion is performed on path fields after loading:
// ${HOME}, ${QUARK_STATE}, and ${VAR:-default} patterns are expanded.
// No other environment variables override config values.
package config
