// Package sslnet provides a raw, non-blocking TCP socket wrapper.
//
// Unlike net.Conn, which hides readiness behind Go's runtime-managed
// netpoller and blocks the calling goroutine, sslnet.Conn exposes the
// syscall-level EAGAIN signal directly: every Read/Write either completes
// immediately or reports ErrWouldBlock along with the direction that would
// unblock it. This lets a single-threaded, externally driven poll loop
// compute its own readiness mask, which is what a non-blocking TLS engine
// layered on top needs (see pkg/sslstream).
//
// Linux-only: SOCK_NONBLOCK/accept4(2) are used directly rather than the
// fcntl dance other platforms need.
//
//go:build linux

package sslnet

import (
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"
)

var _ net.Conn = (*Conn)(nil)

// Direction records which way a socket operation would need to unblock.
type Direction int

// Direction values.
const (
	DirNone Direction = iota
	DirReading
	DirWriting
)

func (d Direction) String() string {
	switch d {
	case DirReading:
		return "reading"
	case DirWriting:
		return "writing"
	default:
		return "none"
	}
}

// ErrWouldBlock is returned by Read/Write when the underlying syscall
// reports EAGAIN/EWOULDBLOCK. It implements net.Error so callers that only
// check Timeout()/Temporary() still behave sanely.
var ErrWouldBlock = &blockError{}

type blockError struct{}

func (*blockError) Error() string   { return "sslnet: operation would block" }
func (*blockError) Timeout() bool   { return true }
func (*blockError) Temporary() bool { return true }

// Conn is a non-blocking TCP connection identified by a raw file
// descriptor. It is not safe for concurrent use, matching the
// single-threaded, one-goroutine-per-stream model this package is built
// for.
type Conn struct {
	fd     int
	local  net.Addr
	remote net.Addr

	lastBlocked Direction
	progress    uint64
}

// Fd returns the underlying file descriptor, for use by a poll loop.
func (c *Conn) Fd() int { return c.fd }

// LocalAddr returns the cached local address.
func (c *Conn) LocalAddr() net.Addr { return c.local }

// RemoteAddr returns the cached remote address.
func (c *Conn) RemoteAddr() net.Addr { return c.remote }

// LastBlocked returns the direction of the most recent EAGAIN.
func (c *Conn) LastBlocked() Direction { return c.lastBlocked }

// Progress returns a monotonically increasing counter of raw bytes
// transferred across the socket. A caller that snapshots Progress before
// an operation and compares it after can tell whether bytes moved on the
// wire; pkg/sslstream does not consult it.
func (c *Conn) Progress() uint64 { return atomic.LoadUint64(&c.progress) }

// SetNoDelay enables or disables TCP_NODELAY.
func (c *Conn) SetNoDelay(on bool) error {
	v := 0
	if on {
		v = 1
	}
	if err := unix.SetsockoptInt(c.fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, v); err != nil {
		return errors.Wrap(err, "setsockopt TCP_NODELAY")
	}
	return nil
}

// CheckConnect reports whether a non-blocking connect that returned
// EINPROGRESS has since completed, by reading SO_ERROR. It returns
// (true, nil) on success, (false, nil) if the connect is still pending,
// and (false, err) on a hard connect failure.
func (c *Conn) CheckConnect() (bool, error) {
	soerr, err := unix.GetsockoptInt(c.fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return false, errors.Wrap(err, "getsockopt SO_ERROR")
	}
	if soerr == 0 {
		c.refreshAddrs()
		return true, nil
	}
	if unix.Errno(soerr) == unix.EINPROGRESS {
		return false, nil
	}
	return false, errors.Wrap(unix.Errno(soerr), "tcp connect")
}

func (c *Conn) refreshAddrs() {
	if sa, err := unix.Getsockname(c.fd); err == nil {
		if a := sockaddrToAddr(sa); a != nil {
			c.local = a
		}
	}
	if sa, err := unix.Getpeername(c.fd); err == nil {
		if a := sockaddrToAddr(sa); a != nil {
			c.remote = a
		}
	}
}

// Read implements a non-blocking read. On EAGAIN it records the blocked
// direction and returns ErrWouldBlock. A zero-length Read is rejected: the
// caller's contract is that a zero-length recv is a precondition violation
// (see pkg/sslstream).
func (c *Conn) Read(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, errors.New("sslnet: zero-length read")
	}
	n, err := unix.Read(c.fd, b)
	if err != nil {
		if isAgain(err) {
			c.lastBlocked = DirReading
			return 0, ErrWouldBlock
		}
		c.lastBlocked = DirNone
		return 0, errors.Wrap(err, "read")
	}
	c.lastBlocked = DirNone
	if n == 0 {
		return 0, io.EOF
	}
	atomic.AddUint64(&c.progress, uint64(n))
	return n, nil
}

// Write implements a non-blocking write. On EAGAIN it records the blocked
// direction and returns ErrWouldBlock.
func (c *Conn) Write(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}
	n, err := unix.Write(c.fd, b)
	if err != nil {
		if isAgain(err) {
			c.lastBlocked = DirWriting
			return 0, ErrWouldBlock
		}
		c.lastBlocked = DirNone
		return 0, errors.Wrap(err, "write")
	}
	c.lastBlocked = DirNone
	atomic.AddUint64(&c.progress, uint64(n))
	return n, nil
}

// Close closes the underlying file descriptor.
func (c *Conn) Close() error {
	return unix.Close(c.fd)
}

// SetDeadline, SetReadDeadline and SetWriteDeadline are no-ops: Conn is
// always non-blocking and has no notion of a deadline-driven timeout. They
// exist only so Conn satisfies net.Conn. (pkg/sslstream does not layer
// crypto/tls directly on a Conn; see its engine.go.)
func (c *Conn) SetDeadline(t time.Time) error      { return nil }
func (c *Conn) SetReadDeadline(t time.Time) error  { return nil }
func (c *Conn) SetWriteDeadline(t time.Time) error { return nil }

func isAgain(err error) bool {
	return err == unix.EAGAIN || err == unix.EWOULDBLOCK
}
