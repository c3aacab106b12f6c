// Package sslstream implements the core of this module: a per-connection
// state machine driving a raw TCP connect through a TLS handshake into
// full-duplex encrypted I/O, edge-triggered and single-threaded, meant to
// be driven by an external poll loop via the ofconn.Stream contract.
//
// crypto/tls.Conn's Handshake/Read/Write calls are themselves blocking and
// permanently cache their first error, so they cannot be driven directly
// off a non-blocking net.Conn the way pkg/sslnet.Conn's own primitives
// are retried. Instead this package runs a *tls.Conn over an in-memory
// chanConn (chanconn.go), with each blocking call hosted on its own
// transient goroutine (engine.go) and a non-blocking pump (pump.go)
// shuttling ciphertext between that goroutine and the real raw socket.
package sslstream

import (
	"crypto/x509"
	"fmt"
	"io"
	"net"

	"github.com/effective-security/xlog"

	"github.com/ovsnet/ofssl/internal/metricskey"
	"github.com/ovsnet/ofssl/ofconn"
	"github.com/ovsnet/ofssl/pkg/sslctx"
	"github.com/ovsnet/ofssl/pkg/sslnet"
	"github.com/ovsnet/ofssl/pkg/sslstream/diag"
	"github.com/ovsnet/ofssl/pkg/sslstream/operr"
)

var logger = xlog.NewPackageLogger("github.com/ovsnet/ofssl/pkg", "sslstream")

// phase is the stream's position in its lifecycle, advancing strictly
// forward per spec.md §3.
type phase int

const (
	phaseTCPConnecting phase = iota
	phaseTLSHandshake
	phaseOpen
	phaseClosed
)

func (p phase) String() string {
	switch p {
	case phaseTCPConnecting:
		return "tcp_connecting"
	case phaseTLSHandshake:
		return "tls_handshake"
	case phaseOpen:
		return "open"
	default:
		return "closed"
	}
}

// Stream is a single, non-blocking, possibly-TLS connection. It is not
// safe for concurrent use: every method must be called from the single
// thread driving the external poll loop. (The transient goroutines
// engine.go spawns per handshake/read/write are an implementation detail
// hidden behind pump/advanceHandshake/Recv/drain; at most one of each is
// ever in flight, and their results only become visible the next time
// this Stream's own methods are called.)
type Stream struct {
	ctx  *sslctx.Context
	role sslctx.Role

	phase  phase
	raw    *sslnet.Conn
	engine *tlsEngine

	// bootstrapSession latches, at construction, whether this stream was
	// opened while the context's CA trust was still pending bootstrap
	// (spec.md §9, design note 2) — checked post-handshake instead of
	// re-reading crypto/tls's live verify state.
	bootstrapSession bool

	// pendingOut/pendingIn hold a ciphertext chunk pump() could not fully
	// deliver on a previous call (raw socket or engine queue was not
	// ready), so it resumes from there instead of re-reading/re-producing
	// it. rawEOF latches once the raw socket has reported a clean close.
	pendingOut []byte
	pendingIn  []byte
	rawEOF     bool

	txbuf []byte
	txoff int

	name        string
	diag        *diag.Limiter
	crlVerifier CRLVerifier
}

func newStream(c *sslctx.Context, role sslctx.Role, raw *sslnet.Conn, ph phase, bootstrapSession bool, name string) *Stream {
	return &Stream{
		ctx:              c,
		role:             role,
		raw:              raw,
		phase:            ph,
		bootstrapSession: bootstrapSession,
		name:             name,
		diag:             diag.New(logger),
	}
}

// Name returns a diagnostic string such as "ssl:192.0.2.1:6653".
func (s *Stream) Name() string { return s.name }

var _ ofconn.Stream = (*Stream)(nil)

func nameFor(prefix string, addr net.Addr) string {
	return fmt.Sprintf("%s:%s", prefix, addr.String())
}

// Connect drives the stream forward: TCP connect completion, then the TLS
// handshake, then (for a bootstrap session) the one-time CA capture. It is
// edge-triggered and idempotent — call it again on every wait-ready event
// until it returns nil or a non-transient error.
func (s *Stream) Connect() error {
	switch s.phase {
	case phaseClosed:
		return operr.Protocol("stream closed")
	case phaseTCPConnecting:
		ok, err := s.raw.CheckConnect()
		if err != nil {
			s.diag.KV(xlog.WARNING, "stream", s.name, "reason", "tcp_connect_failed", "err", err.Error())
			return operr.FromErrno(err)
		}
		if !ok {
			return operr.Again
		}
		if err := s.raw.SetNoDelay(true); err != nil {
			s.diag.KV(xlog.WARNING, "stream", s.name, "reason", "setnodelay_failed", "err", err.Error())
		}
		s.phase = phaseTLSHandshake
		s.ensureTLSConn()
		fallthrough
	case phaseTLSHandshake:
		return s.advanceHandshake()
	case phaseOpen:
		return nil
	}
	return operr.Protocol("unreachable phase")
}

func (s *Stream) ensureTLSConn() {
	if s.engine != nil {
		return
	}
	cfg := s.ctx.TLSConfig(s.role, s.bootstrapSession)
	s.engine = newTLSEngine(s.role, cfg)
}

func (s *Stream) advanceHandshake() error {
	if err := s.pump(); err != nil {
		s.diag.KV(xlog.WARNING, "stream", s.name, "reason", "pump_failed", "err", err.Error())
		return err
	}

	err := s.engine.handshake()
	if err == nil {
		return s.handshakeComplete()
	}

	if operr.IsAgain(err) {
		metricskey.EagainRetries.IncrCounter(1, "handshake", s.ioWaitDirection())
		return operr.Again
	}

	metricskey.HandshakeFailed.IncrCounter(1, s.role.String())
	s.diag.KV(xlog.WARNING, "stream", s.name, "reason", "handshake_failed", "err", err.Error())
	return operr.Protocol("handshake failed: " + err.Error())
}

func (s *Stream) handshakeComplete() error {
	if s.ctx.BootstrapPending() && s.bootstrapSession {
		chain := s.peerChain()
		bootstrapErr := s.ctx.TryBootstrap(chain)
		if bootstrapErr != nil {
			s.diag.KV(xlog.WARNING, "stream", s.name, "reason", "bootstrap_failed", "err", bootstrapErr.Error())
		}
		return operr.Protocol("bootstrap handshake: reconnect to verify against installed CA")
	}

	if s.bootstrapSession {
		// Opened during bootstrap, but another connection already won the
		// race and flipped global state while we were mid-handshake: our
		// session verified nothing, so it cannot be trusted.
		return operr.Protocol("bootstrap race lost: reconnect under installed CA")
	}

	if s.crlVerifier != nil {
		if err := checkRevocation(s.crlVerifier, s.engine.connectionState().VerifiedChains); err != nil {
			return err
		}
	}

	s.phase = phaseOpen
	return nil
}

func (s *Stream) peerChain() []*x509.Certificate {
	return s.engine.connectionState().PeerCertificates
}

// Recv reads decrypted application bytes. A zero-length b is rejected by
// contract (spec.md §4.4).
func (s *Stream) Recv(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, operr.Config("zero-length read")
	}
	if s.phase != phaseOpen {
		return 0, operr.Protocol("recv before handshake complete")
	}

	if err := s.pump(); err != nil {
		return 0, err
	}

	n, err := s.engine.read(b)
	if err == nil {
		return n, nil
	}
	if err == io.EOF {
		if n > 0 {
			return n, nil
		}
		return 0, nil
	}
	if operr.IsAgain(err) {
		metricskey.EagainRetries.IncrCounter(1, "recv", s.ioWaitDirection())
		return 0, operr.Again
	}

	s.diag.KV(xlog.NOTICE, "stream", s.name, "reason", "recv_failed", "err", err.Error())
	return 0, operr.Protocol("recv: " + err.Error())
}

// Send queues up to len(b) bytes for the wire. Returns operr.Again while a
// previous Send's buffer has not fully drained (spec.md §3: at most one
// in-flight send).
func (s *Stream) Send(b []byte) (int, error) {
	if s.phase != phaseOpen {
		return 0, operr.Protocol("send before handshake complete")
	}
	if s.txbuf != nil {
		return 0, operr.Again
	}

	s.txbuf = append([]byte(nil), b...)
	s.txoff = 0

	if err := s.drain(); err != nil {
		if operr.IsAgain(err) {
			return len(b), nil
		}
		return 0, err
	}
	return len(b), nil
}

// drain attempts to advance txbuf by one engine write, clearing txbuf on
// success. Returns operr.Again if the write is still in flight or blocked
// with bytes queued.
func (s *Stream) drain() error {
	if err := s.pump(); err != nil {
		return err
	}

	if s.txoff >= len(s.txbuf) {
		s.txbuf = nil
		s.txoff = 0
		return nil
	}

	n, err := s.engine.write(s.txbuf[s.txoff:])
	if err != nil {
		if operr.IsAgain(err) {
			metricskey.EagainRetries.IncrCounter(1, "send", s.ioWaitDirection())
			return operr.Again
		}
		s.txbuf = nil
		s.txoff = 0
		s.diag.KV(xlog.NOTICE, "stream", s.name, "reason", "send_failed", "err", err.Error())
		return operr.Protocol("send: " + err.Error())
	}

	s.txoff += n
	if err := s.pump(); err != nil {
		return err
	}
	if s.txoff >= len(s.txbuf) {
		s.txbuf = nil
		s.txoff = 0
		return nil
	}
	return operr.Again
}

// Run drains any pending background write.
func (s *Stream) Run() error {
	if s.phase != phaseOpen || s.txbuf == nil {
		return nil
	}
	err := s.drain()
	if operr.IsAgain(err) {
		return nil
	}
	return err
}

// RunWait calls Run and reports what to wait for next: WaitNone once no
// send is queued, otherwise the direction the pending drain needs.
func (s *Stream) RunWait() ofconn.WaitEvent {
	_ = s.Run()
	if s.txbuf == nil {
		return ofconn.WaitNone
	}
	return s.ioWait()
}

// Wait reports what the poll loop should arm before the given operation
// would make further progress, matching spec.md §4.4's wait computation.
func (s *Stream) Wait(query ofconn.WaitQuery) ofconn.WaitEvent {
	switch query {
	case ofconn.WaitConnect:
		return s.waitConnect()
	case ofconn.WaitRecv:
		if s.engine != nil && len(s.engine.rdLeftover) > 0 {
			return ofconn.WaitImmediate
		}
		return s.ioWait()
	case ofconn.WaitSend:
		if s.txbuf == nil {
			return ofconn.WaitImmediate
		}
		return s.ioWait()
	default:
		return ofconn.WaitNone
	}
}

func (s *Stream) waitConnect() ofconn.WaitEvent {
	switch s.phase {
	case phaseTCPConnecting:
		return ofconn.WaitWritable
	case phaseTLSHandshake:
		return s.ioWait()
	default:
		return ofconn.WaitImmediate
	}
}

// Close performs a best-effort, one-shot shutdown: no retry loop, per
// spec.md §4.4 ("Close"). Any queued txbuf is discarded.
func (s *Stream) Close() error {
	if s.phase == phaseClosed {
		return nil
	}
	s.phase = phaseClosed
	s.txbuf = nil

	if s.engine != nil {
		s.engine.close()
	}
	if s.raw != nil {
		_ = s.raw.Close()
	}
	return nil
}
