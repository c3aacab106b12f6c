// Package operr classifies the errors a Stream operation can return,
// matching spec.md §7's error model: transient (EAGAIN), fatal protocol
// (EPROTO), fatal I/O (raw errno), and configuration (ENOPROTOOPT).
package operr

import (
	"errors"
	"syscall"

	"github.com/ovsnet/ofssl/pkg/sslnet"
)

// Again is the transient "would block, retry on wait-ready" error. It
// implements net.Error so standard library retry-loop idioms keep working.
var Again error = &classified{msg: "resource temporarily unavailable", timeout: true}

// Protocol is the fatal-protocol error: handshake failure, unexpected
// close, bootstrap rejection, or a malformed certificate chain.
var Protocol = func(reason string) error {
	return &classified{msg: reason, protocol: true}
}

// Config is the configuration error: required credentials are missing, or
// the loaded key/certificate do not correspond.
var Config = func(reason string) error {
	return &classified{msg: reason, config: true}
}

type classified struct {
	msg      string
	timeout  bool
	protocol bool
	config   bool
}

func (e *classified) Error() string   { return e.msg }
func (e *classified) Timeout() bool   { return e.timeout }
func (e *classified) Temporary() bool { return e.timeout }

// IsAgain reports whether err represents a transient would-block
// condition, whether it is operr.Again, sslnet.ErrWouldBlock, or an
// EAGAIN/EWOULDBLOCK syscall errno.
func IsAgain(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, sslnet.ErrWouldBlock) {
		return true
	}
	var c *classified
	if errors.As(err, &c) {
		return c.timeout
	}
	return errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EWOULDBLOCK)
}

// IsProtocol reports whether err is a fatal protocol error (EPROTO class).
func IsProtocol(err error) bool {
	var c *classified
	if errors.As(err, &c) {
		return c.protocol
	}
	return false
}

// IsConfig reports whether err is a configuration error (ENOPROTOOPT class).
func IsConfig(err error) bool {
	var c *classified
	if errors.As(err, &c) {
		return c.config
	}
	return false
}

// FromErrno classifies a raw syscall/errno-bearing error as a fatal I/O
// error (spec.md §7's fourth class, distinct from Again/Protocol/Config).
// The original error stays reachable via errors.Is/As/Unwrap, so a caller
// that wants the underlying errno (syscall.ECONNRESET, and so on) can
// still get at it; this only adds operr's own classification on top.
func FromErrno(err error) error {
	if err == nil {
		return nil
	}
	return &ioError{err: err}
}

type ioError struct{ err error }

func (e *ioError) Error() string { return e.err.Error() }
func (e *ioError) Unwrap() error { return e.err }
