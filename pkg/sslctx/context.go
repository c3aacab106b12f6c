// Package sslctx implements the process-wide, lazily-initialized TLS
// context spec.md §2.1/§4.1 describes: credentials, peer-verification
// policy, and bootstrap (trust-on-first-use) state, shared by every active
// and passive TLS stream in the process.
package sslctx

import (
	"crypto/tls"
	"crypto/x509"
	"sync"

	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/ovsnet/ofssl/pkg", "sslctx")

// Context is the process-wide singleton described by spec.md §3. The
// default instance is created at package initialization and never
// destroyed; Init is idempotent.
type Context struct {
	mu sync.Mutex

	initOnce sync.Once

	configuredKey  bool
	configuredCert bool
	configuredCA   bool

	bootstrapPending bool
	bootstrapPath    string

	keyPEM  []byte
	certPEM []byte
	cert    *tls.Certificate

	roots      *x509.CertPool
	clientCAs  *x509.CertPool
	extraChain []*x509.Certificate

	clientAuthType tls.ClientAuthType

	dh *dhCache
}

// New returns a fresh, uninitialized Context. Most programs share a single
// default Context via the package-level free functions in api.go; New
// exists for tests and for embedding applications that want independent
// credential sets in one process.
func New() *Context {
	return &Context{
		clientAuthType: tls.RequireAndVerifyClientCert,
		dh:             newDHCache(),
	}
}

// Init performs the one-time setup of spec.md §4.1. There is nothing to
// fail on before any credential is loaded: the *tls.Config is assembled
// lazily from whatever has been configured (see TLSConfig). TLS 1.x is
// enforced via MinVersion at that point; SSLv2/SSLv3 have no equivalent to
// disable since crypto/tls never implements them.
func (c *Context) Init() error {
	c.initOnce.Do(func() {})
	return nil
}

// IsConfigured reports whether any of key/cert/CA has been set (spec.md §6
// is_configured()).
func (c *Context) IsConfigured() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.configuredKey || c.configuredCert || c.configuredCA
}

// Ready reports whether a TLS stream may be constructed: spec.md §3's
// invariant "configured_key ∧ configured_cert ∧ (configured_ca ∨
// bootstrap_pending)".
func (c *Context) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.configuredKey && c.configuredCert && (c.configuredCA || c.bootstrapPending)
}

// BootstrapPending reports whether the context is currently in
// trust-on-first-use mode.
func (c *Context) BootstrapPending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bootstrapPending
}

// BootstrapPath returns the path the CA will be (or was) persisted to, for
// diagnostics; empty if bootstrap was never configured.
func (c *Context) BootstrapPath() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bootstrapPath
}

// DHParams returns (generating and caching on first use) the DH parameters
// for the given key length. See dhcache.go for why this is kept without
// being wired into crypto/tls.
func (c *Context) DHParams(bits int) (*DHParams, error) {
	return c.dh.Get(bits)
}

// TLSConfig builds a *tls.Config for the given role. bootstrapSession, only
// meaningful for RoleClient, marks a session constructed while bootstrap
// was pending: its peer-certificate verification is skipped so the
// handshake can complete long enough to capture the peer's root (spec.md
// §4.5 step 1).
func (c *Context) TLSConfig(role Role, bootstrapSession bool) *tls.Config {
	c.mu.Lock()
	defer c.mu.Unlock()

	cfg := &tls.Config{
		MinVersion: tls.VersionTLS10,
	}
	if c.cert != nil {
		presented := *c.cert
		if len(c.extraChain) > 0 {
			presented.Certificate = append(append([][]byte(nil), presented.Certificate...), derForExtraChain(c.extraChain)...)
		}
		cfg.Certificates = []tls.Certificate{presented}
	}

	switch role {
	case RoleClient:
		cfg.RootCAs = c.roots
		if bootstrapSession {
			cfg.InsecureSkipVerify = true
		}
	case RoleServer:
		cfg.ClientCAs = c.clientCAs
		cfg.ClientAuth = c.clientAuthType
	}

	return cfg
}

// derForExtraChain returns the raw DER bytes of certs, in order, for
// appending to a presented tls.Certificate's chain: SetPeerCACertFile's
// whole point is that these extra certs go out over the wire to the peer,
// not into any verification pool.
func derForExtraChain(certs []*x509.Certificate) [][]byte {
	der := make([][]byte, len(certs))
	for i, crt := range certs {
		der[i] = crt.Raw
	}
	return der
}

// Role distinguishes a client (active, outbound) from a server (passive,
// inbound) TLS session, per spec.md §3.
type Role int

// Role values.
const (
	RoleClient Role = iota
	RoleServer
)

func (r Role) String() string {
	if r == RoleServer {
		return "server"
	}
	return "client"
}
