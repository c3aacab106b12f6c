package sslctx

import (
	"crypto/x509"
	"encoding/pem"
)

// decodeOneCert decodes and parses the first "CERTIFICATE" PEM block in b,
// returning the parsed certificate and the unconsumed remainder. ok is
// false once no further PEM blocks remain.
func decodeOneCert(b []byte) (cert *x509.Certificate, rest []byte, ok bool) {
	for {
		var block *pem.Block
		block, b = pem.Decode(b)
		if block == nil {
			return nil, nil, false
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		c, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			continue
		}
		return c, b, true
	}
}
