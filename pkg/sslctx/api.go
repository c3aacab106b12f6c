package sslctx

// defaultContext is the process-wide Context most programs use, mirroring
// the teacher's package-level singletons in pkg/tlsconfig. Embedding
// applications that need independent credential sets can construct their
// own Context with New instead.
var defaultContext = New()

// Default returns the process-wide Context.
func Default() *Context { return defaultContext }

// SetPrivateKeyFile loads a PEM-encoded private key into the default
// Context (spec.md §6).
func SetPrivateKeyFile(path string) error { return defaultContext.SetPrivateKeyFile(path) }

// SetCertificateFile loads a PEM-encoded certificate chain into the
// default Context (spec.md §6).
func SetCertificateFile(path string) error { return defaultContext.SetCertificateFile(path) }

// SetCACertFile loads (or, if bootstrap is true and the file is absent,
// schedules trust-on-first-use capture of) the CA trust bundle on the
// default Context (spec.md §6).
func SetCACertFile(path string, bootstrap bool) error {
	return defaultContext.SetCACertFile(path, bootstrap)
}

// SetPeerCACertFile adds extra chain certificates presented to peers, on
// the default Context (spec.md §6).
func SetPeerCACertFile(path string) error { return defaultContext.SetPeerCACertFile(path) }

// IsConfigured reports whether the default Context has any credential
// configured (spec.md §6).
func IsConfigured() bool { return defaultContext.IsConfigured() }
