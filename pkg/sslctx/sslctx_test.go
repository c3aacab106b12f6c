package sslctx

import (
	"crypto/x509"
	"crypto/x509/pkix"
	"os"
	"path/filepath"
	"testing"

	"github.com/effective-security/xpki/certutil"
	"github.com/effective-security/xpki/testca"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testPKI struct {
	certFile string
	keyFile  string
	rootFile string
	root     *testca.Entity
}

func newTestPKI(t *testing.T, dir string) *testPKI {
	root := testca.NewEntity(
		testca.Authority,
		testca.Subject(pkix.Name{CommonName: "[TEST] Root CA"}),
		testca.KeyUsage(x509.KeyUsageCertSign|x509.KeyUsageCRLSign|x509.KeyUsageDigitalSignature),
	)
	leaf := root.Issue(
		testca.Subject(pkix.Name{CommonName: "localhost"}),
		testca.ExtKeyUsage(x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth),
		testca.DNSName("localhost", "127.0.0.1"),
	)

	p := &testPKI{
		certFile: filepath.Join(dir, "leaf.pem"),
		keyFile:  filepath.Join(dir, "leaf-key.pem"),
		rootFile: filepath.Join(dir, "root.pem"),
		root:     root,
	}

	keyOut, err := os.Create(p.keyFile)
	require.NoError(t, err)
	_, err = keyOut.Write(testca.PrivKeyToPEM(leaf.PrivateKey))
	require.NoError(t, err)
	require.NoError(t, keyOut.Close())

	certOut, err := os.Create(p.certFile)
	require.NoError(t, err)
	certutil.EncodeToPEM(certOut, true, leaf.Certificate)
	require.NoError(t, certOut.Close())

	rootOut, err := os.Create(p.rootFile)
	require.NoError(t, err)
	certutil.EncodeToPEM(rootOut, true, root.Certificate)
	require.NoError(t, rootOut.Close())

	return p
}

func TestContextReadiness(t *testing.T) {
	dir := t.TempDir()
	pki := newTestPKI(t, dir)

	c := New()
	assert.False(t, c.Ready())
	assert.False(t, c.IsConfigured())

	require.NoError(t, c.SetPrivateKeyFile(pki.keyFile))
	assert.False(t, c.Ready())
	assert.True(t, c.IsConfigured())

	require.NoError(t, c.SetCertificateFile(pki.certFile))
	assert.False(t, c.Ready())

	require.NoError(t, c.SetCACertFile(pki.rootFile, false))
	assert.True(t, c.Ready())
	assert.False(t, c.BootstrapPending())
}

func TestContextBootstrapPending(t *testing.T) {
	dir := t.TempDir()
	pki := newTestPKI(t, dir)

	c := New()
	require.NoError(t, c.SetPrivateKeyFile(pki.keyFile))
	require.NoError(t, c.SetCertificateFile(pki.certFile))

	missing := filepath.Join(dir, "bootstrap-ca.pem")
	require.NoError(t, c.SetCACertFile(missing, true))
	assert.True(t, c.Ready())
	assert.True(t, c.BootstrapPending())
	assert.Equal(t, missing, c.BootstrapPath())
}

func TestTryBootstrapPersistsSelfSignedRoot(t *testing.T) {
	dir := t.TempDir()
	pki := newTestPKI(t, dir)

	c := New()
	require.NoError(t, c.SetPrivateKeyFile(pki.keyFile))
	require.NoError(t, c.SetCertificateFile(pki.certFile))

	path := filepath.Join(dir, "bootstrap-ca.pem")
	require.NoError(t, c.SetCACertFile(path, true))

	err := c.TryBootstrap([]*x509.Certificate{pki.root.Certificate})
	require.NoError(t, err)
	assert.False(t, c.BootstrapPending())
	assert.True(t, c.Ready())
	assert.FileExists(t, path)
}

func TestTryBootstrapRejectsNonSelfSigned(t *testing.T) {
	dir := t.TempDir()
	pki := newTestPKI(t, dir)
	leaf := pki.root.Issue(testca.Subject(pkix.Name{CommonName: "not-a-root"}))

	c := New()
	require.NoError(t, c.SetPrivateKeyFile(pki.keyFile))
	require.NoError(t, c.SetCertificateFile(pki.certFile))
	require.NoError(t, c.SetCACertFile(filepath.Join(dir, "bootstrap-ca.pem"), true))

	err := c.TryBootstrap([]*x509.Certificate{leaf.Certificate})
	assert.Error(t, err)
	assert.True(t, c.BootstrapPending())
}

func TestDHParamsCachedAndDistinctByBits(t *testing.T) {
	c := New()
	p1024, err := c.DHParams(1024)
	require.NoError(t, err)
	p2048, err := c.DHParams(2048)
	require.NoError(t, err)

	assert.NotEqual(t, p1024.Prime, p2048.Prime)
	assert.True(t, p1024.Prime.ProbablyPrime(20))
	assert.True(t, p2048.Prime.ProbablyPrime(20))

	again, err := c.DHParams(1024)
	require.NoError(t, err)
	assert.Same(t, p1024, again)
}
