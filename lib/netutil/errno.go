// Copyright 2026 The Quark Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"errors"

	"golang.org/x/sys/unix"
)

// IsWouldBlock reports whether err is the host's "no more work right
// now" result for a nonblocking descriptor. It is a stop condition for
// the bridge pumps, not a failure.
func IsWouldBlock(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK)
}

// IsInterrupted reports whether err is EINTR. Nonblocking syscalls
// interrupted by a signal are retried immediately.
func IsInterrupted(err error) bool {
	return errors.Is(err, unix.EINTR)
}

// Errno extracts the host errno carried by err. Errors that do not wrap
// an errno map to EIO so a latched error is never zero.
func Errno(err error) unix.Errno {
	if err == nil {
		return 0
	}
	var errno unix.Errno
	if errors.As(err, &errno) && errno != 0 {
		return errno
	}
	return unix.EIO
}
