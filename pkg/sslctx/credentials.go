package sslctx

import (
	"crypto/sha1" //nolint:gosec // fingerprint is diagnostic only, matching historical SSL fingerprint display conventions
	"crypto/x509"
	"encoding/hex"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
)

// SetPrivateKeyFile loads a PEM-encoded private key (spec.md §6). The key
// is matched against a previously- or subsequently-loaded certificate as
// soon as both halves are present.
func (c *Context) SetPrivateKeyFile(path string) error {
	if err := c.Init(); err != nil {
		return err
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read private key file")
	}

	c.mu.Lock()
	c.keyPEM = b
	certPEM := c.certPEM
	c.mu.Unlock()

	if certPEM != nil {
		return c.pairKeyAndCert(certPEM, b)
	}

	c.mu.Lock()
	c.configuredKey = true
	c.mu.Unlock()
	return nil
}

// SetCertificateFile loads a PEM-encoded leaf+chain certificate (spec.md
// §6).
func (c *Context) SetCertificateFile(path string) error {
	if err := c.Init(); err != nil {
		return err
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read certificate file")
	}

	c.mu.Lock()
	c.certPEM = b
	keyPEM := c.keyPEM
	c.mu.Unlock()

	if keyPEM != nil {
		return c.pairKeyAndCert(b, keyPEM)
	}

	c.mu.Lock()
	c.configuredCert = true
	c.mu.Unlock()
	return nil
}

// pairKeyAndCert parses both PEM halves together, confirming key/cert
// correspondence (spec.md §3's invariant), and logs the leaf's SHA-1
// fingerprint and subject.
func (c *Context) pairKeyAndCert(certPEM, keyPEM []byte) error {
	pair, err := x509KeyPairWithOCSP(certPEM, keyPEM, nil)
	if err != nil {
		return errors.Wrap(err, "key/certificate do not correspond")
	}

	sum := sha1.Sum(pair.Leaf.Raw)
	logger.KV(xlog.INFO,
		"reason", "credential_loaded",
		"fingerprint", hex.EncodeToString(sum[:]),
		"subject", pair.Leaf.Subject.String())

	c.mu.Lock()
	c.cert = pair
	c.configuredKey = true
	c.configuredCert = true
	c.mu.Unlock()
	return nil
}

// SetCACertFile loads one or more trusted CA certificates from a PEM
// bundle. If bootstrap is true and the file does not yet exist, the
// context instead enters bootstrap (trust-on-first-use) mode (spec.md
// §4.5): the first successful client handshake captures the peer's root,
// persists it, and the context transitions out of bootstrap mode.
func (c *Context) SetCACertFile(path string, bootstrap bool) error {
	if err := c.Init(); err != nil {
		return err
	}

	if bootstrap {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			c.mu.Lock()
			c.bootstrapPending = true
			c.bootstrapPath = path
			c.mu.Unlock()
			logger.KV(xlog.NOTICE, "reason", "bootstrap_pending", "path", path)
			return nil
		}
	}

	return c.loadCACertFile(path)
}

func (c *Context) loadCACertFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read CA cert file")
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(b) {
		return errors.New("no certificates found in CA bundle")
	}

	logger.KV(xlog.INFO, "reason", "ca_loaded", "path", path)

	c.mu.Lock()
	c.roots = pool
	c.clientCAs = pool
	c.configuredCA = true
	c.bootstrapPending = false
	c.mu.Unlock()
	return nil
}

// SetPeerCACertFile adds extra chain certificates the server presents to
// the peer, without trusting them for verification (spec.md §6).
func (c *Context) SetPeerCACertFile(path string) error {
	if err := c.Init(); err != nil {
		return err
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read peer CA cert file")
	}

	var certs []*x509.Certificate
	rest := b
	for {
		cert, remainder, ok := decodeOneCert(rest)
		if !ok {
			break
		}
		certs = append(certs, cert)
		rest = remainder
	}
	if len(certs) == 0 {
		return errors.New("no certificates found in peer CA bundle")
	}

	c.mu.Lock()
	c.extraChain = append(c.extraChain, certs...)
	c.mu.Unlock()
	return nil
}
