//go:build linux

package sslnet_test

import (
	"testing"
	"time"

	"github.com/ovsnet/ofssl/pkg/sslnet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitConnected(t *testing.T, c *sslnet.Conn) {
	t.Helper()
	for i := 0; i < 100; i++ {
		ok, err := c.CheckConnect()
		require.NoError(t, err)
		if ok {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("connect did not complete in time")
}

func TestDialAcceptLoopback(t *testing.T) {
	l, err := sslnet.Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	assert.NotEmpty(t, l.Addr().String())

	client, connected, err := sslnet.Dial(l.Addr().String())
	require.NoError(t, err)
	defer client.Close()
	if !connected {
		waitConnected(t, client)
	}

	var server *sslnet.Conn
	for i := 0; i < 100; i++ {
		server, err = l.Accept()
		if err == nil {
			break
		}
		if err != sslnet.ErrWouldBlock {
			require.NoError(t, err)
		}
		time.Sleep(time.Millisecond)
	}
	require.NotNil(t, server)
	defer server.Close()

	require.NoError(t, client.SetNoDelay(true))

	n, err := client.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	buf := make([]byte, 16)
	var rn int
	for i := 0; i < 100; i++ {
		rn, err = server.Read(buf)
		if err == nil {
			break
		}
		if err != sslnet.ErrWouldBlock {
			require.NoError(t, err)
		}
		time.Sleep(time.Millisecond)
	}
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:rn]))
	assert.True(t, server.Progress() >= 5)
}

func TestReadZeroLengthRejected(t *testing.T) {
	l, err := sslnet.Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	client, _, err := sslnet.Dial(l.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Read(nil)
	assert.Error(t, err)
}
