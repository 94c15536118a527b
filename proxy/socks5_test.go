package proxy

import (
	"context"
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoServer accepts one connection and echoes everything back.
func echoServer(t *testing.T) net.Addr {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				io.Copy(conn, conn)
				conn.Close()
			}()
		}
	}()
	return ln.Addr()
}

func socksPair(t *testing.T, fwd *Forwarder) net.Conn {
	t.Helper()
	client, server := net.Pipe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		fwd.HandleSOCKSConn(context.Background(), server)
	}()
	t.Cleanup(func() {
		client.Close()
		<-done
	})
	return client
}

// connectIPv4 encodes a SOCKS5 CONNECT to an 127.0.0.1 address.
func connectIPv4(t *testing.T, addr net.Addr) []byte {
	t.Helper()
	tcp, ok := addr.(*net.TCPAddr)
	require.True(t, ok)
	req := []byte{socksVersion, cmdConnect, 0x00, atypIPv4}
	req = append(req, tcp.IP.To4()...)
	req = append(req, byte(tcp.Port>>8), byte(tcp.Port))
	return req
}

func TestSOCKS5NoAuthWhenNoUsers(t *testing.T) {
	target := echoServer(t)
	fwd := newTestForwarder(&Settings{}, nil)
	client := socksPair(t, fwd)

	client.Write([]byte{socksVersion, 1, methodNoAuth})
	reply := make([]byte, 2)
	_, err := io.ReadFull(client, reply)
	require.NoError(t, err)
	assert.Equal(t, []byte{socksVersion, methodNoAuth}, reply)

	client.Write(connectIPv4(t, target))
	reply = make([]byte, 10)
	_, err = io.ReadFull(client, reply)
	require.NoError(t, err)
	assert.Equal(t, byte(replySucceeded), reply[1])

	client.Write([]byte("hello"))
	buf := make([]byte, 5)
	_, err = io.ReadFull(client, buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf))
}

func TestSOCKS5RejectsNoAuthWhenUsersConfigured(t *testing.T) {
	fwd := newTestForwarder(&Settings{
		SOCKSUsers: map[string]string{"alice": "wonder"},
	}, nil)
	client := socksPair(t, fwd)

	client.Write([]byte{socksVersion, 1, methodNoAuth})
	reply := make([]byte, 2)
	_, err := io.ReadFull(client, reply)
	require.NoError(t, err)
	assert.Equal(t, []byte{socksVersion, methodNoAcceptable}, reply)

	// The handler closes after refusing.
	_, err = client.Read(make([]byte, 1))
	assert.Error(t, err)
}

func TestSOCKS5UserPassGrantedAndBridged(t *testing.T) {
	target := echoServer(t)
	fwd := newTestForwarder(&Settings{
		SOCKSUsers: map[string]string{"alice": "wonder"},
	}, nil)
	client := socksPair(t, fwd)

	client.Write([]byte{socksVersion, 2, methodNoAuth, methodUserPass})
	reply := make([]byte, 2)
	_, err := io.ReadFull(client, reply)
	require.NoError(t, err)
	assert.Equal(t, []byte{socksVersion, methodUserPass}, reply)

	// RFC 1929 subnegotiation.
	authReq := []byte{socksAuthVersion, 5}
	authReq = append(authReq, "alice"...)
	authReq = append(authReq, 6)
	authReq = append(authReq, "wonder"...)
	client.Write(authReq)
	_, err = io.ReadFull(client, reply)
	require.NoError(t, err)
	assert.Equal(t, []byte{socksAuthVersion, 0x00}, reply)

	client.Write(connectIPv4(t, target))
	connectReply := make([]byte, 10)
	_, err = io.ReadFull(client, connectReply)
	require.NoError(t, err)
	assert.Equal(t, byte(replySucceeded), connectReply[1])

	client.Write([]byte("roundtrip"))
	buf := make([]byte, 9)
	_, err = io.ReadFull(client, buf)
	require.NoError(t, err)
	assert.Equal(t, "roundtrip", string(buf))
}

func TestSOCKS5WrongPassword(t *testing.T) {
	fwd := newTestForwarder(&Settings{
		SOCKSUsers: map[string]string{"alice": "wonder"},
	}, nil)
	client := socksPair(t, fwd)

	client.Write([]byte{socksVersion, 1, methodUserPass})
	reply := make([]byte, 2)
	_, err := io.ReadFull(client, reply)
	require.NoError(t, err)

	authReq := []byte{socksAuthVersion, 5}
	authReq = append(authReq, "alice"...)
	authReq = append(authReq, 5)
	authReq = append(authReq, "guess"...)
	client.Write(authReq)
	_, err = io.ReadFull(client, reply)
	require.NoError(t, err)
	assert.Equal(t, []byte{socksAuthVersion, 0x01}, reply)

	_, err = client.Read(make([]byte, 1))
	assert.Error(t, err)
}

func TestSOCKS5DomainName(t *testing.T) {
	target := echoServer(t)
	tcp := target.(*net.TCPAddr)
	fwd := newTestForwarder(&Settings{}, nil)
	client := socksPair(t, fwd)

	client.Write([]byte{socksVersion, 1, methodNoAuth})
	io.ReadFull(client, make([]byte, 2))

	req := []byte{socksVersion, cmdConnect, 0x00, atypDomain, byte(len("localhost"))}
	req = append(req, "localhost"...)
	req = append(req, byte(tcp.Port>>8), byte(tcp.Port))
	client.Write(req)

	reply := make([]byte, 10)
	_, err := io.ReadFull(client, reply)
	require.NoError(t, err)
	assert.Equal(t, byte(replySucceeded), reply[1])
}

func TestSOCKS5UnsupportedAddressType(t *testing.T) {
	fwd := newTestForwarder(&Settings{}, nil)
	client := socksPair(t, fwd)

	client.Write([]byte{socksVersion, 1, methodNoAuth})
	io.ReadFull(client, make([]byte, 2))

	req := []byte{socksVersion, cmdConnect, 0x00, atypIPv6}
	req = append(req, make([]byte, 18)...)
	client.Write(req)

	reply := make([]byte, 10)
	_, err := io.ReadFull(client, reply)
	require.NoError(t, err)
	assert.Equal(t, byte(replyAddressUnsupported), reply[1])
}

func TestSOCKS5UnsupportedCommand(t *testing.T) {
	fwd := newTestForwarder(&Settings{}, nil)
	client := socksPair(t, fwd)

	client.Write([]byte{socksVersion, 1, methodNoAuth})
	io.ReadFull(client, make([]byte, 2))

	// BIND is not implemented.
	client.Write([]byte{socksVersion, 0x02, 0x00, atypIPv4, 127, 0, 0, 1, 0, 80})
	reply := make([]byte, 10)
	_, err := io.ReadFull(client, reply)
	require.NoError(t, err)
	assert.Equal(t, byte(replyCommandUnsupported), reply[1])
}

func TestFixedTunnelBridges(t *testing.T) {
	target := echoServer(t)
	fwd := newTestForwarder(&Settings{}, nil)

	client, server := net.Pipe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		fwd.HandleTunnelConn(context.Background(), server, target.String())
	}()
	defer func() {
		client.Close()
		<-done
	}()

	client.Write([]byte("fixed"))
	buf := make([]byte, 5)
	_, err := io.ReadFull(client, buf)
	require.NoError(t, err)
	assert.Equal(t, "fixed", string(buf))
}
