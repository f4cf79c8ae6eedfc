// Copyright 2026 The Quark Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"testing"

	"golang.org/x/sys/unix"
)

// SocketPair returns a connected pair of nonblocking, close-on-exec
// stream sockets. Both ends are closed when the test completes unless
// the test closes them first and sets the slot to -1.
//
// Bytes written to one end are readable from the other, which makes a
// pair a stand-in for an accepted TCP connection anywhere only the
// descriptor semantics matter.
func SocketPair(t *testing.T) *[2]int {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	pair := &fds
	t.Cleanup(func() {
		for _, fd := range pair {
			if fd >= 0 {
				unix.Close(fd)
			}
		}
	})
	return pair
}
