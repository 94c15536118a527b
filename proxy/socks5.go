package proxy

import (
	"context"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
)

// SOCKS5 wire constants (RFC 1928, RFC 1929).
const (
	socksVersion     = 0x05
	socksAuthVersion = 0x01

	methodNoAuth       = 0x00
	methodUserPass     = 0x02
	methodNoAcceptable = 0xFF

	cmdConnect = 0x01

	atypIPv4   = 0x01
	atypDomain = 0x03
	atypIPv6   = 0x04

	replySucceeded          = 0x00
	replyGeneralFailure     = 0x01
	replyHostUnreachable    = 0x04
	replyCommandUnsupported = 0x07
	replyAddressUnsupported = 0x08
)

// ErrSOCKS marks protocol violations on the SOCKS leg.
var ErrSOCKS = errors.New("proxy: socks5 protocol error")

// HandleSOCKSConn serves one SOCKS5 client: method negotiation,
// optional username/password auth against the configured map, a
// CONNECT request, then the bridge to a direct or parent tunnel.
func (f *Forwarder) HandleSOCKSConn(ctx context.Context, client net.Conn) {
	defer client.Close()

	if err := f.socksNegotiate(client); err != nil {
		f.log.Debug("socks negotiation failed", "peer", client.RemoteAddr().String(), "error", err)
		return
	}

	host, port, err := socksReadConnect(client)
	if err != nil {
		f.log.Debug("socks request failed", "peer", client.RemoteAddr().String(), "error", err)
		return
	}

	upstream, pre, err := f.EstablishTunnel(ctx, host, port)
	if err != nil {
		f.log.Warn("socks target unreachable", "target", net.JoinHostPort(host, port), "error", err)
		socksReply(client, replyHostUnreachable)
		return
	}
	if err := socksReply(client, replySucceeded); err != nil {
		upstream.Close()
		return
	}
	if f.settings.LogRequests {
		f.log.Info("socks connect", "target", net.JoinHostPort(host, port), "peer", client.RemoteAddr().String())
	}
	Tunnel(client, upstream, nil, pre)
}

// socksNegotiate runs method selection and, when users are configured,
// the RFC 1929 subnegotiation. Passwords compare in constant time.
func (f *Forwarder) socksNegotiate(client net.Conn) error {
	var hdr [2]byte
	if _, err := io.ReadFull(client, hdr[:]); err != nil {
		return fmt.Errorf("%w: greeting: %v", ErrSOCKS, err)
	}
	if hdr[0] != socksVersion {
		return fmt.Errorf("%w: version %d", ErrSOCKS, hdr[0])
	}
	methods := make([]byte, hdr[1])
	if _, err := io.ReadFull(client, methods); err != nil {
		return fmt.Errorf("%w: methods: %v", ErrSOCKS, err)
	}

	want := byte(methodNoAuth)
	if len(f.settings.SOCKSUsers) > 0 {
		want = methodUserPass
	}
	offered := false
	for _, m := range methods {
		if m == want {
			offered = true
			break
		}
	}
	if !offered {
		client.Write([]byte{socksVersion, methodNoAcceptable})
		return fmt.Errorf("%w: required method %#x not offered", ErrSOCKS, want)
	}
	if _, err := client.Write([]byte{socksVersion, want}); err != nil {
		return err
	}
	if want == methodNoAuth {
		return nil
	}
	return f.socksUserPass(client)
}

func (f *Forwarder) socksUserPass(client net.Conn) error {
	var hdr [2]byte
	if _, err := io.ReadFull(client, hdr[:]); err != nil {
		return fmt.Errorf("%w: auth header: %v", ErrSOCKS, err)
	}
	if hdr[0] != socksAuthVersion {
		return fmt.Errorf("%w: auth version %d", ErrSOCKS, hdr[0])
	}
	user := make([]byte, hdr[1])
	if _, err := io.ReadFull(client, user); err != nil {
		return err
	}
	var plen [1]byte
	if _, err := io.ReadFull(client, plen[:]); err != nil {
		return err
	}
	pass := make([]byte, plen[0])
	if _, err := io.ReadFull(client, pass); err != nil {
		return err
	}

	expected, ok := f.settings.SOCKSUsers[string(user)]
	granted := ok && subtle.ConstantTimeCompare([]byte(expected), pass) == 1
	if !granted {
		client.Write([]byte{socksAuthVersion, 0x01})
		return fmt.Errorf("%w: authentication failed for %q", ErrSOCKS, string(user))
	}
	_, err := client.Write([]byte{socksAuthVersion, 0x00})
	return err
}

// socksReadConnect parses the request and returns the target. Only
// CONNECT with IPv4 or DOMAINNAME addressing is accepted; other
// commands and address types answer with their RFC 1928 §6 code.
func socksReadConnect(client net.Conn) (host, port string, err error) {
	var hdr [4]byte
	if _, err := io.ReadFull(client, hdr[:]); err != nil {
		return "", "", fmt.Errorf("%w: request: %v", ErrSOCKS, err)
	}
	if hdr[0] != socksVersion {
		return "", "", fmt.Errorf("%w: version %d", ErrSOCKS, hdr[0])
	}
	if hdr[1] != cmdConnect {
		socksReply(client, replyCommandUnsupported)
		return "", "", fmt.Errorf("%w: command %d unsupported", ErrSOCKS, hdr[1])
	}

	switch hdr[3] {
	case atypIPv4:
		var addr [4]byte
		if _, err := io.ReadFull(client, addr[:]); err != nil {
			return "", "", err
		}
		host = net.IP(addr[:]).String()
	case atypDomain:
		var dlen [1]byte
		if _, err := io.ReadFull(client, dlen[:]); err != nil {
			return "", "", err
		}
		name := make([]byte, dlen[0])
		if _, err := io.ReadFull(client, name); err != nil {
			return "", "", err
		}
		host = string(name)
	case atypIPv6:
		// Consumed so the refusal is not written against an unread request.
		var addr [16]byte
		if _, err := io.ReadFull(client, addr[:]); err != nil {
			return "", "", err
		}
	default:
		socksReply(client, replyAddressUnsupported)
		return "", "", fmt.Errorf("%w: address type %d unsupported", ErrSOCKS, hdr[3])
	}

	var p [2]byte
	if _, err := io.ReadFull(client, p[:]); err != nil {
		return "", "", err
	}
	if hdr[1] != cmdConnect {
		socksReply(client, replyCommandUnsupported)
		return "", "", fmt.Errorf("%w: command %d unsupported", ErrSOCKS, hdr[1])
	}
	if hdr[3] == atypIPv6 {
		socksReply(client, replyAddressUnsupported)
		return "", "", fmt.Errorf("%w: address type %d unsupported", ErrSOCKS, hdr[3])
	}
	return host, fmt.Sprint(binary.BigEndian.Uint16(p[:])), nil
}

// socksReply sends a reply with a zero IPv4 bind address.
func socksReply(client net.Conn, code byte) error {
	_, err := client.Write([]byte{socksVersion, code, 0x00, atypIPv4, 0, 0, 0, 0, 0, 0})
	return err
}

// HandleTunnelConn serves one fixed-tunnel client: a SOCKS handler
// that skipped negotiation, bridging straight to the configured
// target.
func (f *Forwarder) HandleTunnelConn(ctx context.Context, client net.Conn, target string) {
	defer client.Close()

	host, port, err := net.SplitHostPort(target)
	if err != nil {
		f.log.Error("invalid tunnel target", "target", target, "error", err)
		return
	}
	upstream, pre, err := f.EstablishTunnel(ctx, host, port)
	if err != nil {
		f.log.Warn("tunnel target unreachable", "target", target, "error", err)
		return
	}
	if f.settings.LogRequests {
		f.log.Info("tunnel connect", "target", target, "peer", client.RemoteAddr().String())
	}
	Tunnel(client, upstream, nil, pre)
}
