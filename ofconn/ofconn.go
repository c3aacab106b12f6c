// Package ofconn defines the narrow surface a stream-class dispatch
// framework needs from a transport: a byte-stream Stream plus a passive
// Listener that accepts them, both built around an externally-driven
// "what should I wait for next" query rather than blocking calls.
//
// Implementations are driven single-threaded and cooperatively: no method
// may be called concurrently with another method on the same Stream or
// Listener. The pkg/sslstream implementation runs each blocking crypto/tls
// call on a transient internal goroutine (see its engine.go).
package ofconn

// WaitEvent tells the poll loop what to arm on a stream's or listener's
// file descriptor before calling back in.
type WaitEvent int

// WaitEvent values.
const (
	// WaitNone means no event is pending; nothing further will happen
	// until the caller initiates another operation.
	WaitNone WaitEvent = iota
	// WaitImmediate means the caller should retry right away, without
	// waiting on the fd at all (progress is available now).
	WaitImmediate
	// WaitReadable means the fd should be armed for readability.
	WaitReadable
	// WaitWritable means the fd should be armed for writability.
	WaitWritable
)

func (w WaitEvent) String() string {
	switch w {
	case WaitImmediate:
		return "immediate"
	case WaitReadable:
		return "readable"
	case WaitWritable:
		return "writable"
	default:
		return "none"
	}
}

// WaitQuery selects which of a Stream's pending operations Wait reports
// readiness for.
type WaitQuery int

// WaitQuery values.
const (
	// WaitConnect asks what to wait for before retrying Connect.
	WaitConnect WaitQuery = iota
	// WaitRecv asks what to wait for before retrying Recv.
	WaitRecv
	// WaitSend asks what to wait for before retrying Send.
	WaitSend
)

// Stream is a non-blocking, single connection byte stream: either a TCP
// connection in progress, a TLS handshake in progress, or an open,
// optionally encrypted duplex channel.
type Stream interface {
	// Connect drives the connection (and, once the transport connects,
	// any handshake) forward. It returns operr.Again while more progress
	// requires an I/O event; nil once the stream is open.
	Connect() error

	// Recv reads decrypted application bytes into b. It returns
	// operr.Again if no bytes are available yet, (0, nil) on peer EOF,
	// and otherwise the number of bytes read.
	Recv(b []byte) (int, error)

	// Send encrypts and queues up to len(b) bytes for the wire. It
	// returns operr.Again if the stream's single write slot is still
	// occupied by a previous, unflushed Send.
	Send(b []byte) (int, error)

	// Run drains any background work the stream can make progress on
	// right now (e.g. flushing a queued Send) without requiring a
	// corresponding application-level call.
	Run() error

	// RunWait calls Run and then reports what to wait for next.
	RunWait() WaitEvent

	// Wait reports what to wait for before the given operation would
	// make further progress, without performing any I/O itself.
	Wait(query WaitQuery) WaitEvent

	// Close releases the stream's resources. Best-effort: a single
	// attempt at an orderly shutdown, no retry loop.
	Close() error

	// Name returns a diagnostic string identifying the stream, such as
	// "ssl:192.0.2.1:6653".
	Name() string
}

// Listener accepts inbound Streams.
type Listener interface {
	// Accept returns the next pending inbound Stream, or operr.Again if
	// none is pending.
	Accept() (Stream, error)

	// Wait reports what to wait for before Accept would make progress.
	Wait() WaitEvent

	// Close stops accepting and releases the listening socket.
	Close() error

	// Name returns a diagnostic string identifying the listener, such as
	// "pssl:0.0.0.0:6653".
	Name() string
}
