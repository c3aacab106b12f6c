//go:build linux

package sslnet

import (
	"net"

	"github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"
)

// resolveTCP resolves host[:port] against the standard resolver. Address
// parsing itself is explicitly out of scope (spec.md §1): this is the thin
// stdlib shim the rest of the module builds on.
func resolveTCP(network, address string) (*net.TCPAddr, error) {
	addr, err := net.ResolveTCPAddr(network, address)
	if err != nil {
		return nil, errors.Wrap(err, "resolve")
	}
	return addr, nil
}

func sockaddrFromTCPAddr(addr *net.TCPAddr) (unix.Sockaddr, int, error) {
	ip := addr.IP
	if ip4 := ip.To4(); ip4 != nil {
		sa := &unix.SockaddrInet4{Port: addr.Port}
		copy(sa.Addr[:], ip4)
		return sa, unix.AF_INET, nil
	}
	if ip16 := ip.To16(); ip16 != nil {
		sa := &unix.SockaddrInet6{Port: addr.Port}
		copy(sa.Addr[:], ip16)
		return sa, unix.AF_INET6, nil
	}
	// Unspecified address (e.g. listen on all interfaces): default to IPv4
	// any, matching the teacher's net.Listen("tcp", ":port") default.
	return &unix.SockaddrInet4{Port: addr.Port}, unix.AF_INET, nil
}

func sockaddrToAddr(sa unix.Sockaddr) net.Addr {
	switch s := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: net.IP(s.Addr[:]), Port: s.Port}
	case *unix.SockaddrInet6:
		return &net.TCPAddr{IP: net.IP(s.Addr[:]), Port: s.Port}
	default:
		return nil
	}
}
