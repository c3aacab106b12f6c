package sslstream

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/effective-security/xlog"

	"github.com/ovsnet/ofssl/ofconn"
	"github.com/ovsnet/ofssl/pkg/sslconfig"
	"github.com/ovsnet/ofssl/pkg/sslctx"
	"github.com/ovsnet/ofssl/pkg/sslnet"
	"github.com/ovsnet/ofssl/pkg/sslstream/operr"
)

// Dial resolves host[:port] (default port sslconfig.DefaultPort), starts a
// non-blocking TCP connect, and returns a client-role Stream (spec.md
// §4.2). If the context is missing a required credential, Dial fails
// immediately with a "protocol unavailable" error rather than opening a
// doomed session.
func Dial(c *sslctx.Context, hostport string) (ofconn.Stream, error) {
	if !c.Ready() {
		return nil, operr.Config("sslctx not configured: missing key, certificate, or trust store")
	}

	addr := withDefaultPort(hostport)

	raw, connected, err := sslnet.Dial(addr)
	if err != nil {
		return nil, operr.FromErrno(err)
	}

	ph := phaseTCPConnecting
	if connected {
		if err := raw.SetNoDelay(true); err != nil {
			logger.KV(xlog.WARNING, "stream", addr, "reason", "setnodelay_failed", "err", err.Error())
		}
		ph = phaseTLSHandshake
	}

	s := newStream(c, sslctx.RoleClient, raw, ph, c.BootstrapPending(), nameFor("ssl", raw.RemoteAddr()))
	if ph == phaseTLSHandshake {
		s.ensureTLSConn()
	}
	return s, nil
}

func withDefaultPort(hostport string) string {
	if _, _, err := net.SplitHostPort(hostport); err == nil {
		return hostport
	}
	if strings.Contains(hostport, ":") && !strings.HasPrefix(hostport, "[") {
		// looks like an IPv6 literal without a port
		return fmt.Sprintf("[%s]:%d", hostport, sslconfig.DefaultPort)
	}
	return net.JoinHostPort(hostport, strconv.Itoa(sslconfig.DefaultPort))
}
