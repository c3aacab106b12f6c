package sslctx

import (
	"crypto/x509"
	"encoding/pem"
	"os"

	"github.com/effective-security/xlog"

	"github.com/ovsnet/ofssl/internal/metricskey"
)

// TryBootstrap implements spec.md §4.5's trust-on-first-use capture: the
// last certificate of a freshly completed handshake's chain, if
// self-signed, is persisted as the trusted root and the context leaves
// bootstrap mode. Called by a Stream only while BootstrapPending is true,
// on the first stream to finish a handshake; callers that lose the race to
// persist the file fall back to whatever another stream already wrote.
func (c *Context) TryBootstrap(chain []*x509.Certificate) error {
	if len(chain) == 0 {
		return errBootstrapEmpty
	}

	candidate := chain[len(chain)-1]
	if err := candidate.CheckSignatureFrom(candidate); err != nil {
		return errBootstrapNotSelfSigned
	}

	c.mu.Lock()
	path := c.bootstrapPath
	c.mu.Unlock()
	if path == "" {
		return errBootstrapNoPath
	}

	block := &pem.Block{Type: "CERTIFICATE", Bytes: candidate.Raw}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o444)
	if err != nil {
		if os.IsExist(err) {
			// lost the race; another stream's chain already won. Adopt
			// whatever is now on disk instead of failing the caller.
			metricskey.BootstrapLost.IncrCounter(1)
			return c.loadCACertFile(path)
		}
		return err
	}
	defer f.Close()

	if err := pem.Encode(f, block); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}

	sum := candidate.Subject.String()
	logger.KV(xlog.NOTICE, "reason", "bootstrap_won", "path", path, "subject", sum)
	metricskey.BootstrapWon.IncrCounter(1)

	return c.loadCACertFile(path)
}

var (
	errBootstrapEmpty         = bootstrapError("bootstrap: empty peer chain")
	errBootstrapNotSelfSigned = bootstrapError("bootstrap: candidate root is not self-signed")
	errBootstrapNoPath        = bootstrapError("bootstrap: no path configured")
)

type bootstrapError string

func (e bootstrapError) Error() string { return string(e) }
