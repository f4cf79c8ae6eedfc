// Copyright 2026 The Quark Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides binary entrypoint helpers. [Fatal] reports
// an error from run() to stderr and exits, for the window before the
// structured logger exists or after it has been torn down.
package process
