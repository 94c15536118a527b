// Package proxy implements the connection dispatcher and the
// per-request forwarding engine: accepting clients on proxy, SOCKS5 and
// fixed-tunnel listeners, authenticating against parent proxies with
// the NTLM family, pooling authenticated upstream connections and
// relaying traffic.
package proxy

import "errors"

// Error kinds per failure class. Workers classify with errors.Is at
// their top level; everything else is wrapped detail.
var (
	// ErrResolve means a parent hostname could not be resolved.
	// Retriable across the parent list.
	ErrResolve = errors.New("proxy: cannot resolve parent")

	// ErrConnect means TCP connect to a parent failed. Retriable across
	// the parent list.
	ErrConnect = errors.New("proxy: cannot connect to parent")

	// ErrParentsExhausted means every parent in the rotation failed for
	// this request; the client gets a 502.
	ErrParentsExhausted = errors.New("proxy: no parent proxy available")

	// ErrAuthFailed means the parent rejected the Type-3 response; the
	// 407 is relayed to the client.
	ErrAuthFailed = errors.New("proxy: parent rejected credentials")

	// ErrUpstreamIO means a mid-exchange failure on the parent side; the
	// pooled connection is discarded.
	ErrUpstreamIO = errors.New("proxy: upstream i/o failure")

	// ErrClientIO means the client went away; the worker terminates
	// silently.
	ErrClientIO = errors.New("proxy: client i/o failure")

	// ErrProtocol means malformed HTTP, NTLM or SOCKS from either side.
	ErrProtocol = errors.New("proxy: protocol violation")
)
