package proxy

import (
	"bytes"
	"io"
	"net"
	"sync"
)

// tunnelBlockSize is the per-direction copy granularity.
const tunnelBlockSize = 32 * 1024

// halfCloser is the CloseWrite side of a TCP connection.
type halfCloser interface {
	CloseWrite() error
}

// Tunnel relays bytes full-duplex between a and b. When one direction
// ends with EOF or an error, the receiving socket is half-closed
// (CloseWrite) or, lacking a write side of its own, closed outright;
// once both directions have ended, both sockets are closed. aPre and bPre carry bytes
// already read ahead of the respective socket (buffered-reader
// leftover); each is drained toward the peer before its socket is read
// directly. Either may be nil.
func Tunnel(a, b net.Conn, aPre, bPre io.Reader) {
	var wg sync.WaitGroup
	wg.Add(2)

	copyDir := func(dst, src net.Conn, pre io.Reader) {
		defer wg.Done()
		buf := make([]byte, tunnelBlockSize)
		if pre != nil {
			if _, err := io.CopyBuffer(dst, pre, buf); err != nil {
				dst.Close()
				return
			}
		}
		io.CopyBuffer(dst, src, buf)
		// Propagate EOF to the peer; fall back to a hard close when the
		// socket has no independent write side.
		if hc, ok := dst.(halfCloser); ok {
			hc.CloseWrite()
		} else {
			dst.Close()
		}
	}

	go copyDir(b, a, aPre)
	go copyDir(a, b, bPre)
	wg.Wait()

	a.Close()
	b.Close()
}

// bufferedLeftover returns a reader over the bytes br has read ahead
// of its socket, or nil when the buffer is empty.
func bufferedLeftover(br interface {
	Buffered() int
	Peek(int) ([]byte, error)
	Discard(int) (int, error)
}) io.Reader {
	n := br.Buffered()
	if n == 0 {
		return nil
	}
	data, _ := br.Peek(n)
	out := make([]byte, n)
	copy(out, data)
	br.Discard(n)
	return bytes.NewReader(out)
}
