// Copyright 2026 The Quark Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"

	"github.com/gao-feng/Quark/lib/netutil"
)

// SystemHost returns the HostIO backed by real Linux syscalls. EINTR is
// retried; every other result, including EAGAIN, is returned as-is.
func SystemHost() HostIO {
	return systemHost{}
}

type systemHost struct{}

func (systemHost) Listen(address string) (int, error) {
	tcpAddress, err := net.ResolveTCPAddr("tcp", address)
	if err != nil {
		return -1, err
	}
	sockaddr, family := netutil.SockaddrFromTCPAddr(tcpAddress)

	fd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, fmt.Errorf("socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("setsockopt SO_REUSEADDR: %w", err)
	}
	if err := unix.Bind(fd, sockaddr); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("bind: %w", err)
	}
	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("listen: %w", err)
	}
	return fd, nil
}

func (systemHost) Accept(fd int) (int, unix.Sockaddr, error) {
	for {
		connectionFD, peer, err := unix.Accept4(fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if netutil.IsInterrupted(err) {
			continue
		}
		return connectionFD, peer, err
	}
}

func (systemHost) Read(fd int, p []byte) (int, error) {
	for {
		n, err := unix.Read(fd, p)
		if netutil.IsInterrupted(err) {
			continue
		}
		if err != nil {
			return 0, err
		}
		return n, nil
	}
}

func (systemHost) Write(fd int, p []byte) (int, error) {
	for {
		n, err := unix.Write(fd, p)
		if netutil.IsInterrupted(err) {
			continue
		}
		if err != nil {
			return 0, err
		}
		return n, nil
	}
}

func (systemHost) Shutdown(fd int, how int) error {
	return unix.Shutdown(fd, how)
}

func (systemHost) Close(fd int) error {
	return unix.Close(fd)
}

func (systemHost) LocalAddress(fd int) (net.Addr, error) {
	sockaddr, err := unix.Getsockname(fd)
	if err != nil {
		return nil, err
	}
	if address := netutil.TCPAddrFromSockaddr(sockaddr); address != nil {
		return address, nil
	}
	return nil, fmt.Errorf("fd %d is not an inet socket", fd)
}
