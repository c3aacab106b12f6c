package sslstream

import (
	"crypto/x509"
	"crypto/x509/pkix"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/effective-security/xpki/certutil"
	"github.com/effective-security/xpki/testca"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovsnet/ofssl/ofconn"
	"github.com/ovsnet/ofssl/pkg/sslctx"
	"github.com/ovsnet/ofssl/pkg/sslstream/operr"
	"github.com/ovsnet/ofssl/x/netutil"
)

func listenAddr(t *testing.T) string {
	port, err := netutil.FindFreePort("127.0.0.1", 10)
	require.NoError(t, err)
	return net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
}

type testPKI struct {
	root *testca.Entity
	leaf *testca.Entity
}

func buildTestPKI() *testPKI {
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
	return &testPKI{root: root, leaf: leaf}
}

func writePEM(t *testing.T, dir, name string, write func(f *os.File)) string {
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	write(f)
	require.NoError(t, f.Close())
	return path
}

// buildContext loads a fresh sslctx.Context from pki's leaf/key and trusts
// pki's root directly (no bootstrap).
func buildContext(t *testing.T, dir string, pki *testPKI) *sslctx.Context {
	keyFile := writePEM(t, dir, "key.pem", func(f *os.File) {
		_, err := f.Write(testca.PrivKeyToPEM(pki.leaf.PrivateKey))
		require.NoError(t, err)
	})
	certFile := writePEM(t, dir, "cert.pem", func(f *os.File) {
		certutil.EncodeToPEM(f, true, pki.leaf.Certificate)
	})
	rootFile := writePEM(t, dir, "root.pem", func(f *os.File) {
		certutil.EncodeToPEM(f, true, pki.root.Certificate)
	})

	c := sslctx.New()
	require.NoError(t, c.SetPrivateKeyFile(keyFile))
	require.NoError(t, c.SetCertificateFile(certFile))
	require.NoError(t, c.SetCACertFile(rootFile, false))
	require.True(t, c.Ready())
	return c
}

// pumpUntil repeatedly calls fn until it returns a non-operr.Again result
// (or the deadline elapses), matching the edge-triggered retry contract
// every Stream/Listener method documents.
func pumpUntil(t *testing.T, fn func() error) {
	deadline := time.Now().Add(5 * time.Second)
	for {
		err := fn()
		if err == nil {
			return
		}
		if !operr.IsAgain(err) {
			require.NoError(t, err)
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for progress")
		}
		time.Sleep(time.Millisecond)
	}
}

func acceptOne(t *testing.T, l *Listener) ofconn.Stream {
	deadline := time.Now().Add(5 * time.Second)
	for {
		s, err := l.Accept()
		if err == nil {
			return s
		}
		if !operr.IsAgain(err) {
			require.NoError(t, err)
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting to accept")
		}
		time.Sleep(time.Millisecond)
	}
}

// connectBoth drives client and server Connect in turn until both report an
// open stream: neither side's handshake can finish unless the peer's is
// driven too.
func connectBoth(t *testing.T, client, server ofconn.Stream) {
	deadline := time.Now().Add(5 * time.Second)
	clientErr, serverErr := operr.Again, operr.Again
	for clientErr != nil || serverErr != nil {
		if clientErr != nil {
			clientErr = client.Connect()
			if !operr.IsAgain(clientErr) {
				require.NoError(t, clientErr)
			}
		}
		if serverErr != nil {
			serverErr = server.Connect()
			if !operr.IsAgain(serverErr) {
				require.NoError(t, serverErr)
			}
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for handshake")
		}
		time.Sleep(time.Millisecond)
	}
}

// recvAll reads want bytes from s, calling Run on sender between attempts
// so that sender's queued Send is drained onto the wire.
func recvAll(t *testing.T, sender, s ofconn.Stream, want int) []byte {
	out := make([]byte, 0, want)
	buf := make([]byte, want)
	deadline := time.Now().Add(5 * time.Second)
	for len(out) < want {
		require.NoError(t, sender.Run())
		n, err := s.Recv(buf)
		if err != nil {
			if operr.IsAgain(err) {
				if time.Now().After(deadline) {
					t.Fatal("timed out waiting for bytes")
				}
				time.Sleep(time.Millisecond)
				continue
			}
			require.NoError(t, err)
		}
		out = append(out, buf[:n]...)
	}
	return out
}

func TestEchoOverTLS(t *testing.T) {
	dir := t.TempDir()
	pki := buildTestPKI()
	serverCtx := buildContext(t, mkdir(t, dir, "server"), pki)
	clientCtx := buildContext(t, mkdir(t, dir, "client"), pki)

	l, err := Listen(serverCtx, listenAddr(t))
	require.NoError(t, err)
	defer l.Close()

	client, err := Dial(clientCtx, l.raw.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	server := acceptOne(t, l)
	defer server.Close()

	connectBoth(t, client, server)

	n, err := client.Send([]byte("ABC"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	got := recvAll(t, client, server, 3)
	assert.Equal(t, "ABC", string(got))

	n, err = server.Send([]byte("xyz\n"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	got = recvAll(t, server, client, 4)
	assert.Equal(t, "xyz\n", string(got))
}

func TestHandshakeFailsOnMismatchedCA(t *testing.T) {
	dir := t.TempDir()
	serverPKI := buildTestPKI()
	otherPKI := buildTestPKI()

	serverCtx := buildContext(t, mkdir(t, dir, "server"), serverPKI)
	clientCtx := buildContext(t, mkdir(t, dir, "client"), otherPKI)

	l, err := Listen(serverCtx, listenAddr(t))
	require.NoError(t, err)
	defer l.Close()

	client, err := Dial(clientCtx, l.raw.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	server := acceptOne(t, l)
	defer server.Close()

	deadline := time.Now().Add(5 * time.Second)
	var clientErr, serverErr error
	for {
		if clientErr == nil || operr.IsAgain(clientErr) {
			clientErr = client.Connect()
		}
		if serverErr == nil || operr.IsAgain(serverErr) {
			serverErr = server.Connect()
		}
		if clientErr != nil && !operr.IsAgain(clientErr) {
			break
		}
		if serverErr != nil && !operr.IsAgain(serverErr) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for handshake failure")
		}
		time.Sleep(time.Millisecond)
	}

	failed := (clientErr != nil && operr.IsProtocol(clientErr)) || (serverErr != nil && operr.IsProtocol(serverErr))
	assert.True(t, failed, "expected a protocol error on mismatched CA, client=%v server=%v", clientErr, serverErr)
}

func TestZeroLengthRecvRejected(t *testing.T) {
	dir := t.TempDir()
	pki := buildTestPKI()
	ctx := buildContext(t, dir, pki)

	l, err := Listen(ctx, listenAddr(t))
	require.NoError(t, err)
	defer l.Close()

	client, err := Dial(ctx, l.raw.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	server := acceptOne(t, l)
	defer server.Close()

	connectBoth(t, client, server)

	_, err = client.Recv(nil)
	assert.Error(t, err)
}

func mkdir(t *testing.T, base, name string) string {
	p := filepath.Join(base, name)
	require.NoError(t, os.MkdirAll(p, 0o755))
	return p
}
