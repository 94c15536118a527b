package httpio

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reader(s string) *bufio.Reader {
	return bufio.NewReader(strings.NewReader(s))
}

func TestReadRequest(t *testing.T) {
	req, err := ReadRequest(reader(
		"GET http://example.com/index.html HTTP/1.1\r\n" +
			"Host: example.com\r\n" +
			"User-Agent: test\r\n" +
			"\r\n"))
	require.NoError(t, err)
	assert.Equal(t, "GET", req.Method)
	assert.Equal(t, "http://example.com/index.html", req.URI)
	assert.Equal(t, "HTTP/1.1", req.Version)
	assert.Equal(t, "example.com", req.Host)
	assert.Equal(t, "80", req.Port)
	assert.Equal(t, "test", req.Header.Get("user-agent"))
}

func TestReadRequestConnect(t *testing.T) {
	req, err := ReadRequest(reader("CONNECT example.com:443 HTTP/1.1\r\n\r\n"))
	require.NoError(t, err)
	assert.Equal(t, "example.com", req.Host)
	assert.Equal(t, "443", req.Port)
}

func TestReadRequestHostHeaderTarget(t *testing.T) {
	req, err := ReadRequest(reader("GET /path HTTP/1.1\r\nHost: intra.local:8080\r\n\r\n"))
	require.NoError(t, err)
	assert.Equal(t, "intra.local", req.Host)
	assert.Equal(t, "8080", req.Port)
}

func TestReadRequestContinuationLine(t *testing.T) {
	req, err := ReadRequest(reader(
		"GET / HTTP/1.1\r\n" +
			"X-Long: first\r\n" +
			"  second part\r\n" +
			"\r\n"))
	require.NoError(t, err)
	assert.Equal(t, "first second part", req.Header.Get("X-Long"))
}

func TestReadRequestEOFOnIdle(t *testing.T) {
	_, err := ReadRequest(reader(""))
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadRequestMalformed(t *testing.T) {
	_, err := ReadRequest(reader("NONSENSE\r\n\r\n"))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestReadResponse(t *testing.T) {
	resp, err := ReadResponse(reader(
		"HTTP/1.1 407 Proxy Authentication Required\r\n" +
			"Proxy-Authenticate: NTLM\r\n" +
			"Content-Length: 0\r\n" +
			"\r\n"))
	require.NoError(t, err)
	assert.Equal(t, 407, resp.StatusCode)
	assert.Equal(t, "Proxy Authentication Required", resp.Reason)
	assert.Equal(t, "NTLM", resp.Header.Get("proxy-authenticate"))
}

func TestHeaderRoundTrip(t *testing.T) {
	raw := "Host: example.com\r\n" +
		"Set-Cookie: a=1\r\n" +
		"X-Custom: v\r\n" +
		"Set-Cookie: b=2\r\n"
	var h Header
	require.NoError(t, readHeader(reader(raw+"\r\n"), &h))

	var buf bytes.Buffer
	require.NoError(t, h.WriteTo(&buf))
	assert.Equal(t, raw+"\r\n", buf.String())
	assert.Equal(t, []string{"a=1", "b=2"}, h.Values("Set-Cookie"))
}

func TestFramingPrecedence(t *testing.T) {
	tests := []struct {
		name    string
		preamble string
		method  string
		want    FramingKind
	}{
		{"chunked dominates length", "HTTP/1.1 200 OK\r\nContent-Length: 10\r\nTransfer-Encoding: chunked\r\n\r\n", "GET", FramingChunked},
		{"content length", "HTTP/1.1 200 OK\r\nContent-Length: 10\r\n\r\n", "GET", FramingLength},
		{"204 bodyless", "HTTP/1.1 204 No Content\r\n\r\n", "GET", FramingNone},
		{"304 bodyless", "HTTP/1.1 304 Not Modified\r\n\r\n", "GET", FramingNone},
		{"1xx bodyless", "HTTP/1.1 100 Continue\r\n\r\n", "GET", FramingNone},
		{"head bodyless", "HTTP/1.1 200 OK\r\n\r\n", "HEAD", FramingNone},
		{"until close", "HTTP/1.1 200 OK\r\n\r\n", "GET", FramingUntilClose},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := ReadResponse(reader(tt.preamble))
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.ResponseFraming(tt.method).Kind)
		})
	}
}

func TestRequestFramingDefaultsToNone(t *testing.T) {
	req, err := ReadRequest(reader("GET / HTTP/1.1\r\nHost: x\r\n\r\n"))
	require.NoError(t, err)
	assert.Equal(t, FramingNone, req.RequestFraming().Kind)
}

func TestStripHopByHop(t *testing.T) {
	var h Header
	h.Add("Proxy-Connection", "keep-alive")
	h.Add("Connection", "close, X-Per-Hop")
	h.Add("X-Per-Hop", "v")
	h.Add("Proxy-Authorization", "NTLM abc")
	h.Add("Transfer-Encoding", "chunked")
	h.Add("Host", "example.com")

	h.StripHopByHop()

	assert.False(t, h.Has("Proxy-Connection"))
	assert.False(t, h.Has("Connection"))
	assert.False(t, h.Has("X-Per-Hop"))
	assert.False(t, h.Has("Proxy-Authorization"))
	assert.False(t, h.Has("Transfer-Encoding"))
	assert.True(t, h.Has("Host"))
}

func TestSubstitute(t *testing.T) {
	var h Header
	h.Add("User-Agent", "curl")
	h.Substitute([]Substitution{
		{Name: "User-Agent", Value: "Mozilla/5.0"},
		{Name: "X-Injected", Value: "yes"},
	})
	assert.Equal(t, "Mozilla/5.0", h.Get("User-Agent"))
	assert.Equal(t, "yes", h.Get("X-Injected"))
	assert.Equal(t, 2, h.Len())
}

func TestKeepAlive(t *testing.T) {
	tests := []struct {
		preamble string
		want     bool
	}{
		{"GET / HTTP/1.1\r\nHost: x\r\n\r\n", true},
		{"GET / HTTP/1.0\r\nHost: x\r\n\r\n", false},
		{"GET / HTTP/1.0\r\nProxy-Connection: keep-alive\r\n\r\n", true},
		{"GET / HTTP/1.1\r\nConnection: close\r\n\r\n", false},
	}
	for _, tt := range tests {
		req, err := ReadRequest(reader(tt.preamble))
		require.NoError(t, err)
		assert.Equal(t, tt.want, req.KeepAlive(), tt.preamble)
	}
}

func TestRelayChunkedVerbatim(t *testing.T) {
	// Chunk sizes with an extension, uneven casing, and a trailer: all
	// must survive byte-for-byte.
	body := "4;ext=1\r\nWiki\r\n" +
		"5\r\npedia\r\n" +
		"E\r\n in\r\n\r\nchunks.\r\n" +
		"0\r\n" +
		"X-Trailer: v\r\n" +
		"\r\n"
	var out bytes.Buffer
	n, err := RelayBody(&out, reader(body), Framing{Kind: FramingChunked})
	require.NoError(t, err)
	assert.Equal(t, body, out.String())
	assert.Equal(t, int64(4+5+14), n)
}

func TestRelayChunkedBadSize(t *testing.T) {
	var out bytes.Buffer
	_, err := RelayBody(&out, reader("zz\r\n"), Framing{Kind: FramingChunked})
	assert.ErrorIs(t, err, ErrBadChunk)
}

func TestRelayLength(t *testing.T) {
	var out bytes.Buffer
	n, err := RelayBody(&out, reader("hello world"), Framing{Kind: FramingLength, Length: 5})
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
	assert.Equal(t, "hello", out.String())
}

func TestRelayUntilClose(t *testing.T) {
	var out bytes.Buffer
	n, err := RelayBody(&out, reader("all of it"), Framing{Kind: FramingUntilClose})
	require.NoError(t, err)
	assert.Equal(t, int64(9), n)
	assert.Equal(t, "all of it", out.String())
}

func TestDrainBodyRefusesUntilClose(t *testing.T) {
	err := DrainBody(reader("x"), Framing{Kind: FramingUntilClose})
	assert.Error(t, err)
}

func TestWriteResponse(t *testing.T) {
	resp := &Response{Version: "HTTP/1.1", StatusCode: 502, Reason: "Bad Gateway"}
	resp.Header.Add("Content-Length", "0")
	var buf bytes.Buffer
	require.NoError(t, resp.WriteTo(&buf))
	assert.Equal(t, "HTTP/1.1 502 Bad Gateway\r\nContent-Length: 0\r\n\r\n", buf.String())
}

func TestReadRequestTruncatedHeader(t *testing.T) {
	_, err := ReadRequest(reader("GET / HTTP/1.1\r\nHost: x"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformed) || errors.Is(err, io.EOF))
}
