package sslstream

import (
	"crypto/tls"

	"github.com/ovsnet/ofssl/pkg/sslctx"
	"github.com/ovsnet/ofssl/pkg/sslstream/operr"
)

// tlsEngine hosts a *tls.Conn whose underlying net.Conn is a chanConn
// instead of the real (non-blocking) socket. crypto/tls.Conn's Handshake,
// Read and Write are inherently blocking and, once any one of them
// returns an error, permanently cache it on the *tls.Conn — so unlike
// this package's other primitives, they cannot be driven by calling them
// repeatedly on a non-blocking conn until they stop returning EAGAIN.
//
// Instead, each logical operation (the handshake, one Read, one Write)
// runs on its own transient goroutine the first time it is requested;
// crypto/tls.Conn documents that Read and Write may be called
// concurrently with each other and with Handshake, so at most one
// goroutine per operation, never retried, is safe. The result is
// delivered over a buffered (size 1) channel so that abandoning the
// operation (Stream.Close) never leaks the goroutine: it always has
// somewhere to put its result even if nobody is listening anymore.
type tlsEngine struct {
	pipe *chanConn
	conn *tls.Conn

	hsStarted bool
	hsResult  chan error

	rdPending  bool
	rdResult   chan rwResult
	rdScratch  []byte
	rdLeftover []byte

	wrPending bool
	wrResult  chan rwResult
}

type rwResult struct {
	n   int
	err error
}

func newTLSEngine(role sslctx.Role, cfg *tls.Config) *tlsEngine {
	pipe := newChanConn()
	e := &tlsEngine{
		pipe:     pipe,
		hsResult: make(chan error, 1),
		rdResult: make(chan rwResult, 1),
		wrResult: make(chan rwResult, 1),
	}
	if role == sslctx.RoleServer {
		e.conn = tls.Server(pipe, cfg)
	} else {
		e.conn = tls.Client(pipe, cfg)
	}
	return e
}

// handshake is edge-triggered like every other operation in this package:
// call it again on every wait-ready event until it returns something
// other than operr.Again. It starts the handshake goroutine at most once.
func (e *tlsEngine) handshake() error {
	if !e.hsStarted {
		e.hsStarted = true
		go func() { e.hsResult <- e.conn.Handshake() }()
	}

	select {
	case err := <-e.hsResult:
		return err
	default:
		return operr.Again
	}
}

// read behaves like a non-blocking io.Reader: it returns operr.Again
// until the in-flight Read goroutine (started on first call) completes.
// Bytes decrypted but too large for the caller's buffer are retained in
// rdLeftover and served first on the next call, so nothing is dropped.
func (e *tlsEngine) read(b []byte) (int, error) {
	if len(e.rdLeftover) > 0 {
		n := copy(b, e.rdLeftover)
		e.rdLeftover = e.rdLeftover[n:]
		return n, nil
	}

	if !e.rdPending {
		e.rdPending = true
		e.rdScratch = make([]byte, 16384)
		scratch := e.rdScratch
		go func() {
			n, err := e.conn.Read(scratch)
			e.rdResult <- rwResult{n: n, err: err}
		}()
	}

	select {
	case res := <-e.rdResult:
		e.rdPending = false
		n := copy(b, e.rdScratch[:res.n])
		if n < res.n {
			e.rdLeftover = append([]byte(nil), e.rdScratch[n:res.n]...)
		}
		if res.err != nil && n == 0 {
			return 0, res.err
		}
		return n, res.err
	default:
		return 0, operr.Again
	}
}

// write behaves like a non-blocking io.Writer for the single in-flight
// buffer b: the caller must pass the same (or a prefix-advanced) slice on
// every retry until it stops returning operr.Again, exactly like
// pkg/sslnet.Conn.Write's contract.
func (e *tlsEngine) write(b []byte) (int, error) {
	if !e.wrPending {
		e.wrPending = true
		buf := append([]byte(nil), b...)
		go func() {
			n, err := e.conn.Write(buf)
			e.wrResult <- rwResult{n: n, err: err}
		}()
	}

	select {
	case res := <-e.wrResult:
		e.wrPending = false
		return res.n, res.err
	default:
		return 0, operr.Again
	}
}

func (e *tlsEngine) connectionState() tls.ConnectionState {
	return e.conn.ConnectionState()
}

// close tears down the chanConn directly rather than calling
// tls.Conn.Close/CloseWrite, which would try to write a close_notify
// alert through the pipe and block forever once nobody is pumping it
// anymore. Closing the pipe unblocks any goroutine still parked in
// Handshake/Read/Write with an error; it has somewhere to deliver that
// result (the buffered channels above) even though nothing reads it.
func (e *tlsEngine) close() {
	e.pipe.Close()
}
