package sslstream

import (
	"fmt"

	"github.com/effective-security/xlog"

	"github.com/ovsnet/ofssl/ofconn"
	"github.com/ovsnet/ofssl/pkg/sslctx"
	"github.com/ovsnet/ofssl/pkg/sslnet"
	"github.com/ovsnet/ofssl/pkg/sslstream/operr"
)

// Listener is a passive, non-blocking TCP+TLS acceptor (spec.md §4.3).
type Listener struct {
	ctx *sslctx.Context
	raw *sslnet.Listener
}

var _ ofconn.Listener = (*Listener)(nil)

// Listen binds and listens non-blocking on address ("[bind-ip]:port").
// Fails immediately if the context is missing a required credential.
func Listen(c *sslctx.Context, address string) (*Listener, error) {
	if !c.Ready() {
		return nil, operr.Config("sslctx not configured: missing key, certificate, or trust store")
	}

	raw, err := sslnet.Listen(address)
	if err != nil {
		return nil, operr.FromErrno(err)
	}
	return &Listener{ctx: c, raw: raw}, nil
}

// Accept returns the next pending inbound Stream in SERVER role, phase
// TLS_HANDSHAKE (the TCP accept itself is never partial, per spec.md
// §4.3).
func (l *Listener) Accept() (ofconn.Stream, error) {
	conn, err := l.raw.Accept()
	if err != nil {
		if operr.IsAgain(err) {
			return nil, operr.Again
		}
		return nil, operr.FromErrno(err)
	}

	if err := conn.SetNoDelay(true); err != nil {
		logger.KV(xlog.WARNING, "listener", l.Name(), "reason", "setnodelay_failed", "err", err.Error())
	}

	s := newStream(l.ctx, sslctx.RoleServer, conn, phaseTLSHandshake, false, nameFor("ssl", conn.RemoteAddr()))
	s.ensureTLSConn()
	return s, nil
}

// Wait reports what to wait for before Accept would make progress: always
// readability, since a listening socket only ever blocks on "no pending
// connection".
func (l *Listener) Wait() ofconn.WaitEvent {
	return ofconn.WaitReadable
}

// Close closes the listening socket.
func (l *Listener) Close() error {
	return l.raw.Close()
}

// Name returns a diagnostic string such as "pssl:0.0.0.0:6653", formatted
// from the listener's bound address.
func (l *Listener) Name() string {
	return fmt.Sprintf("pssl:%s", l.raw.Addr().String())
}
