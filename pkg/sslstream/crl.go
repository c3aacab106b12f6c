package sslstream

import (
	"crypto/x509"

	"github.com/effective-security/xlog"
	"github.com/effective-security/xpki/certutil"
	"golang.org/x/crypto/ocsp"

	"github.com/ovsnet/ofssl/pkg/sslstream/operr"
)

// CRLVerifier checks one link of a verified chain for revocation, the same
// shape as the teacher's transport.CRLVerifier: cert is the entity, issuer
// is its immediate signer.
type CRLVerifier interface {
	Verify(cert, issuer *x509.Certificate) (ocsp.ResponseStatus, error)
}

// checkRevocation walks every verified chain from leaf up to (but not
// including) the root, rejecting the handshake if any link is revoked.
// Adapted from the teacher's tlsListener's inline CRL check in
// pkg/transport/listener_tls.go, which ran the same walk per accepted
// connection; here it is an optional post-handshake hook a Stream can be
// given instead of being wired unconditionally.
func checkRevocation(verifier CRLVerifier, chains [][]*x509.Certificate) error {
	if verifier == nil {
		return nil
	}

	for _, chain := range chains {
		for i := 0; i < len(chain)-1; i++ {
			crt := chain[i]
			status, err := verifier.Verify(crt, chain[i+1])
			if err != nil {
				logger.KV(xlog.WARNING,
					"status", "unable_to_verify",
					"serial", crt.SerialNumber.String(),
					"subject", crt.Subject.String(),
					"issuer", crt.Issuer.String(),
					"err", err.Error())
				continue
			}
			switch status {
			case ocsp.Revoked:
				return operr.Protocol("certificate serial " + crt.SerialNumber.String() + " revoked")
			case ocsp.Unknown:
				logger.KV(xlog.DEBUG,
					"status", "unknown",
					"serial", crt.SerialNumber.String(),
					"subject", crt.Subject.String(),
					"issuer", crt.Issuer.String(),
					"ikid", certutil.GetAuthorityKeyID(crt))
			}
		}
	}
	return nil
}

// SetCRLVerifier attaches a revocation check that runs once, right after a
// successful (non-bootstrap) handshake, before the stream is handed to the
// caller as OPEN.
func (s *Stream) SetCRLVerifier(v CRLVerifier) {
	s.crlVerifier = v
}
