//go:build linux

package sslnet

import (
	"github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"
)

// Dial starts a non-blocking TCP connect to address ("host:port").
// It returns the new Conn, whether the connect completed synchronously
// (rare, but possible for loopback destinations), and an error.
//
// The caller drives completion of a pending connect with Conn.CheckConnect.
func Dial(address string) (conn *Conn, connected bool, err error) {
	addr, err := resolveTCP("tcp", address)
	if err != nil {
		return nil, false, err
	}

	sa, family, err := sockaddrFromTCPAddr(addr)
	if err != nil {
		return nil, false, err
	}

	fd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, false, errors.Wrap(err, "socket")
	}

	c := &Conn{fd: fd, remote: addr}

	err = unix.Connect(fd, sa)
	if err == nil {
		c.refreshAddrs()
		return c, true, nil
	}
	if err == unix.EINPROGRESS {
		return c, false, nil
	}

	_ = unix.Close(fd)
	return nil, false, errors.Wrap(err, "connect")
}
