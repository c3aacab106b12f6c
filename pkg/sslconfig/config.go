// Package sslconfig defines the plain configuration types an embedding
// application binds its own flags/env/YAML to, mirroring the shape of the
// teacher's pkg/transport.TLSInfo and pkg/appinit.LogConfig tagged structs.
// This module does not parse flags or config files itself: that belongs to
// the embedding application, consistent with spec.md treating the stream
// framework as an external collaborator.
package sslconfig

import (
	"crypto/tls"
	"fmt"
)

// DefaultPort is the IANA-assigned OpenFlow-over-TLS port (spec.md §6,
// "Default port: a fixed OpenFlow-SSL port constant").
const DefaultPort = 6653

// Config describes the credentials and verification policy an embedding
// application configures a sslctx.Context with. Nothing in this module
// reads a Config; the application passes its fields to the sslctx setters.
type Config struct {
	// PrivateKeyFile is a PEM-encoded private key.
	PrivateKeyFile string `json:"private_key_file,omitempty" yaml:"private_key_file,omitempty"`
	// CertificateFile is a PEM-encoded leaf+chain certificate.
	CertificateFile string `json:"certificate_file,omitempty" yaml:"certificate_file,omitempty"`
	// CACertFile is the trusted CA bundle. If Bootstrap is true and this
	// file does not exist yet, the context enters bootstrap (trust-on-
	// first-use) mode instead of failing.
	CACertFile string `json:"ca_cert_file,omitempty" yaml:"ca_cert_file,omitempty"`
	// Bootstrap enables trust-on-first-use for CACertFile.
	Bootstrap bool `json:"bootstrap,omitempty" yaml:"bootstrap,omitempty"`
	// PeerCACertFile adds extra chain certificates presented to the peer
	// (not used for verification).
	PeerCACertFile string `json:"peer_ca_cert_file,omitempty" yaml:"peer_ca_cert_file,omitempty"`

	// ClientAuthType records a server-side client-auth mode. sslctx.Context
	// has no setter for it: its server sessions always use
	// tls.RequireAndVerifyClientCert (PEER|FAIL_IF_NO_PEER_CERT, spec.md §3).
	ClientAuthType tls.ClientAuthType `json:"client_auth_type,omitempty" yaml:"client_auth_type,omitempty"`
}

// String renders a one-line summary, matching the teacher's
// transport.TLSInfo.String().
func (c *Config) String() string {
	return fmt.Sprintf("cert=%s, key=%s, ca=%s, bootstrap=%t, peer-ca=%s",
		c.CertificateFile, c.PrivateKeyFile, c.CACertFile, c.Bootstrap, c.PeerCACertFile)
}

// Empty reports whether no credentials have been configured at all.
func (c *Config) Empty() bool {
	return c.CertificateFile == "" && c.PrivateKeyFile == "" && c.CACertFile == ""
}
