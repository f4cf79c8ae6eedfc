// Copyright 2026 The Quark Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"errors"
	"io"
	"net"

	"golang.org/x/sys/unix"
)

// IsExpectedCloseError reports whether err is a normal connection
// termination: EOF, closed descriptor, broken pipe, or connection reset.
// A peer that full-closes produces ECONNRESET or EPIPE on the surviving
// side rather than a zero-length read; both are expected during
// teardown and are logged at Debug rather than Error.
func IsExpectedCloseError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var errno unix.Errno
	if errors.As(err, &errno) {
		return errno == unix.EPIPE || errno == unix.ECONNRESET || errno == unix.EBADF
	}
	return false
}
