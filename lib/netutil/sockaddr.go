// Copyright 2026 The Quark Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// TCPAddrFromSockaddr converts an inet sockaddr returned by accept4 or
// getsockname into a *net.TCPAddr. Returns nil for other families.
func TCPAddrFromSockaddr(sockaddr unix.Sockaddr) *net.TCPAddr {
	switch address := sockaddr.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: net.IP(append([]byte(nil), address.Addr[:]...)), Port: address.Port}
	case *unix.SockaddrInet6:
		return &net.TCPAddr{IP: net.IP(append([]byte(nil), address.Addr[:]...)), Port: address.Port}
	default:
		return nil
	}
}

// SockaddrFromTCPAddr converts a TCP address into the sockaddr and
// address family for bind(2). An unspecified IP binds the IPv4
// wildcard.
func SockaddrFromTCPAddr(address *net.TCPAddr) (unix.Sockaddr, int) {
	if address.IP == nil || address.IP.To4() != nil {
		sockaddr := &unix.SockaddrInet4{Port: address.Port}
		if ip4 := address.IP.To4(); ip4 != nil {
			copy(sockaddr.Addr[:], ip4)
		}
		return sockaddr, unix.AF_INET
	}
	sockaddr := &unix.SockaddrInet6{Port: address.Port}
	copy(sockaddr.Addr[:], address.IP.To16())
	return sockaddr, unix.AF_INET6
}

// SockaddrString formats a sockaddr for logging.
func SockaddrString(sockaddr unix.Sockaddr) string {
	if sockaddr == nil {
		return "unknown"
	}
	if address := TCPAddrFromSockaddr(sockaddr); address != nil {
		return address.String()
	}
	if address, ok := sockaddr.(*unix.SockaddrUnix); ok {
		if address.Name == "" {
			return "unix:@"
		}
		return "unix:" + address.Name
	}
	return fmt.Sprintf("%T", sockaddr)
}
