package duplex_test

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zerobuffer-go/zerobuffer"
	"github.com/zerobuffer-go/zerobuffer/duplex"
)

func testConfig(t *testing.T) (string, duplex.Config, zerobuffer.Option) {
	channel := fmt.Sprintf("dplx-%s-%d", t.Name(), os.Getpid())
	cfg := duplex.Config{
		Request:  zerobuffer.BufferConfig{PayloadSize: 4096},
		Response: zerobuffer.BufferConfig{PayloadSize: 4096},
	}
	return channel, cfg, zerobuffer.WithLockDir(t.TempDir())
}

// connectPair starts server creation and client connection concurrently,
// since each blocks (via ConnectRetry) until the other side has created
// its half of the channel.
func connectPair(t *testing.T, ctx context.Context, channel string, cfg duplex.Config, lockDir zerobuffer.Option, handler duplex.Handler, mutableHandler duplex.MutableHandler) (*duplex.Server, *duplex.Client) {
	t.Helper()

	type serverResult struct {
		server *duplex.Server
		err    error
	}
	type clientResult struct {
		client *duplex.Client
		err    error
	}

	serverCh := make(chan serverResult, 1)
	go func() {
		if mutableHandler != nil {
			s, err := duplex.CreateMutable(ctx, channel, cfg, mutableHandler, lockDir)
			serverCh <- serverResult{s, err}
			return
		}
		s, err := duplex.Create(ctx, channel, cfg, handler, lockDir)
		serverCh <- serverResult{s, err}
	}()

	clientCh := make(chan clientResult, 1)
	go func() {
		c, err := duplex.Connect(ctx, channel, cfg, lockDir)
		clientCh <- clientResult{c, err}
	}()

	sr := <-serverCh
	require.NoError(t, sr.err)
	cr := <-clientCh
	require.NoError(t, cr.err)
	return sr.server, cr.client
}

func TestImmutableEcho(t *testing.T) {
	channel, cfg, lockDir := testConfig(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	echo := func(seq uint64, req []byte) ([]byte, error) {
		out := make([]byte, len(req))
		copy(out, req)
		return bytes.ToUpper(out), nil
	}

	server, client := connectPair(t, ctx, channel, cfg, lockDir, echo, nil)
	defer server.Close()
	defer client.Close()

	runErr := make(chan error, 1)
	serverCtx, stopServer := context.WithCancel(context.Background())
	go func() { runErr <- server.Run(serverCtx) }()
	defer stopServer()

	resp, err := client.SendRequestAndWait([]byte("hello"), 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte("HELLO"), resp)

	resp2, err := client.SendRequestAndWait([]byte("world"), 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte("WORLD"), resp2)

	stopServer()
	select {
	case err := <-runErr:
		assert.NoError(t, err) // cancellation is a clean stop
	case <-time.After(time.Second):
		t.Fatal("server did not stop")
	}
}

func TestMutableEcho(t *testing.T) {
	channel, cfg, lockDir := testConfig(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	fillUpper := func(seq uint64, req []byte, resp []byte) (int, error) {
		n := copy(resp, bytes.ToUpper(req))
		return n, nil
	}

	server, client := connectPair(t, ctx, channel, cfg, lockDir, nil, fillUpper)
	defer server.Close()
	defer client.Close()

	serverCtx, stopServer := context.WithCancel(context.Background())
	defer stopServer()
	go server.Run(serverCtx)

	resp, err := client.SendRequestAndWait([]byte("mutable"), 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte("MUTABLE"), resp)
}
