package sslstream

import (
	"io"

	"github.com/ovsnet/ofssl/ofconn"
	"github.com/ovsnet/ofssl/pkg/sslstream/operr"
)

// pump is the non-blocking bridge between the real raw socket and the
// engine's chanConn: it drains whatever ciphertext the engine has
// produced onto the wire, then feeds whatever ciphertext arrived on the
// wire to the engine, retrying any partial transfer from where it left
// off on the next call. Every external Stream method that touches the
// engine (Connect during the handshake, Recv, Send/drain) calls this
// first, so a handshake, read or write blocked on chanConn gets a chance
// to make progress before its completion is checked.
func (s *Stream) pump() error {
	if s.engine == nil {
		return nil
	}
	if err := s.pumpEngineToRaw(); err != nil {
		return err
	}
	return s.pumpRawToEngine()
}

// pumpEngineToRaw flushes s.pendingOut (left over from a previous call)
// to the raw socket, then keeps pulling more chunks out of the engine's
// output channel and flushing those too, until either the engine has
// nothing more queued or the raw socket blocks.
func (s *Stream) pumpEngineToRaw() error {
	for {
		if s.pendingOut == nil {
			select {
			case chunk := <-s.engine.pipe.out:
				s.pendingOut = chunk
			default:
				return nil
			}
		}

		n, err := s.raw.Write(s.pendingOut)
		if err != nil {
			if operr.IsAgain(err) {
				return nil
			}
			return operr.FromErrno(err)
		}
		if n < len(s.pendingOut) {
			s.pendingOut = s.pendingOut[n:]
			return nil
		}
		s.pendingOut = nil
	}
}

// pumpRawToEngine flushes s.pendingIn (left over because the engine's
// input channel was full) into the engine, then keeps reading more
// ciphertext off the raw socket and handing it to the engine, until
// either the raw socket has nothing more available or the engine's queue
// is full.
func (s *Stream) pumpRawToEngine() error {
	if s.rawEOF {
		return nil
	}

	for {
		if s.pendingIn != nil {
			select {
			case s.engine.pipe.in <- s.pendingIn:
				s.pendingIn = nil
			default:
				return nil
			}
			continue
		}

		scratch := make([]byte, 16384)
		n, err := s.raw.Read(scratch)
		if err != nil {
			if operr.IsAgain(err) {
				return nil
			}
			if err == io.EOF {
				s.rawEOF = true
				s.engine.pipe.closeIn()
				return nil
			}
			return operr.FromErrno(err)
		}

		chunk := scratch[:n]
		select {
		case s.engine.pipe.in <- chunk:
		default:
			s.pendingIn = chunk
			return nil
		}
	}
}

// ioWait reports which raw-socket direction would let pump make further
// progress: writable if ciphertext produced by the engine is still
// waiting to go out, readable otherwise. Unlike the old rxWant/txWant
// discipline, this never needs to be told which direction a particular
// operation blocked on — pump always attempts both directions every time
// it runs, so it can never miss a direction the TLS engine suddenly needs
// (for example a renegotiation-triggered write surfacing mid-read).
func (s *Stream) ioWait() ofconn.WaitEvent {
	if s.engine != nil && s.pendingOut != nil {
		return ofconn.WaitWritable
	}
	return ofconn.WaitReadable
}

func (s *Stream) ioWaitDirection() string {
	if s.ioWait() == ofconn.WaitWritable {
		return "writing"
	}
	return "reading"
}
