package proxy

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smnsjas/go-ntlmproxy/httpio"
)

func TestDispatcherGracefulShutdown(t *testing.T) {
	echo := echoServer(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	fwd := newTestForwarder(&Settings{
		NoProxy: NewNoProxyMatcher([]string{"127.*"}),
	}, nil)
	d := NewDispatcher(fwd, []Listener{{Listener: ln, Kind: ListenProxy}}, discardLogger(), false)

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- d.Run(ctx) }()

	// Open a CONNECT tunnel through the dispatcher.
	client, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer client.Close()
	fmt.Fprintf(client, "CONNECT %s HTTP/1.1\r\n\r\n", echo.String())
	cbr := bufio.NewReader(client)
	resp, err := httpio.ReadResponse(cbr)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	// First signal: stop accepting, keep serving the live tunnel.
	cancel()
	waitForClosedListener(t, ln.Addr().String())

	client.Write([]byte("still-alive"))
	buf := make([]byte, 11)
	_, err = io.ReadFull(cbr, buf)
	require.NoError(t, err)
	assert.Equal(t, "still-alive", string(buf))

	select {
	case <-runDone:
		t.Fatal("dispatcher exited while a worker was active")
	case <-time.After(100 * time.Millisecond):
	}

	// Closing the tunnel lets the barrier drop.
	client.Close()
	select {
	case err := <-runDone:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("dispatcher did not drain after last worker finished")
	}
}

// waitForClosedListener polls until new connections are refused or the
// accepted socket is immediately unusable.
func waitForClosedListener(t *testing.T, addr string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 200*time.Millisecond)
		if err != nil {
			return
		}
		// A connection may still land in the OS backlog after close;
		// a read distinguishes it.
		conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		_, err = conn.Read(make([]byte, 1))
		conn.Close()
		if err == io.EOF {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("listener still accepting after shutdown")
}

func TestDispatcherRequiresListeners(t *testing.T) {
	fwd := newTestForwarder(&Settings{}, nil)
	d := NewDispatcher(fwd, nil, discardLogger(), false)
	assert.Error(t, d.Run(context.Background()))
}

func TestDispatcherServesTunnelListeners(t *testing.T) {
	echo := echoServer(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	fwd := newTestForwarder(&Settings{}, nil)
	d := NewDispatcher(fwd, []Listener{
		{Listener: ln, Kind: ListenTunnel, Target: echo.String()},
	}, discardLogger(), false)

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- d.Run(ctx) }()

	client, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	client.Write([]byte("ab"))
	buf := make([]byte, 2)
	_, err = io.ReadFull(client, buf)
	require.NoError(t, err)
	assert.Equal(t, "ab", string(buf))
	client.Close()

	cancel()
	select {
	case <-runDone:
	case <-time.After(5 * time.Second):
		t.Fatal("dispatcher did not stop")
	}
}
