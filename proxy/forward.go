package proxy

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"

	"github.com/smnsjas/go-ntlmproxy/auth"
	"github.com/smnsjas/go-ntlmproxy/httpio"
	"github.com/smnsjas/go-ntlmproxy/pac"
)

// result is the forwarder's verdict on one request, driving the
// per-connection keep-alive loop.
type result int

const (
	// resDone ends the loop cleanly.
	resDone result = iota

	// resContinue keeps the client connection for the next request.
	resContinue

	// resAbort drops the client without further writes.
	resAbort
)

// attempt is one position in the per-request parent order.
type attempt struct {
	direct    bool
	parentIdx int
}

// Forwarder drives the per-request engine: direct-vs-parent decision,
// the authentication dance, header rewriting, body relay and
// keep-alive looping.
type Forwarder struct {
	settings *Settings
	registry *parentRegistry
	pool     *Pool
	sel      *Selector
	log      *slog.Logger
}

// NewForwarder builds the forwarder over the frozen settings and the
// static parent list.
func NewForwarder(settings *Settings, parents []*ParentProxy, log *slog.Logger) *Forwarder {
	return &Forwarder{
		settings: settings,
		registry: newParentRegistry(parents),
		pool:     NewPool(),
		sel:      NewSelector(parents),
		log:      log,
	}
}

// Pool exposes the upstream pool (shutdown drains it).
func (f *Forwarder) Pool() *Pool {
	return f.pool
}

// withLogger returns a shallow copy bound to log. The copy shares the
// pool, registry and selector.
func (f *Forwarder) withLogger(log *slog.Logger) *Forwarder {
	cp := *f
	cp.log = log
	return &cp
}

// HandleProxyConn serves one accepted proxy client: a keep-alive loop
// of read request, forward, relay, until either side is done.
func (f *Forwarder) HandleProxyConn(ctx context.Context, client net.Conn) {
	defer client.Close()
	br := bufio.NewReader(client)

	for {
		req, err := httpio.ReadRequest(br)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				f.log.Debug("client request unreadable", "error", err)
				if errors.Is(err, httpio.ErrMalformed) {
					f.respondError(client, 400, "Bad Request")
				}
			}
			return
		}
		if f.settings.LogRequests {
			f.log.Info("request", "method", req.Method, "uri", req.URI, "peer", client.RemoteAddr().String())
		}

		res := f.forwardOne(ctx, client, br, req)
		if res != resContinue {
			return
		}
		select {
		case <-ctx.Done():
			// Shutdown requested; finish after the in-flight exchange.
			return
		default:
		}
	}
}

// forwardOne runs the Deciding/Connecting/Authenticating/Relaying
// states for a single request.
func (f *Forwarder) forwardOne(ctx context.Context, client net.Conn, clientBR *bufio.Reader, req *httpio.Request) result {
	attempts, err := f.attempts(req)
	if err != nil {
		f.log.Warn("parent selection failed", "host", req.Host, "error", err)
		return f.respondError(client, 502, "Bad Gateway")
	}

	creds, err := f.requestCreds(req)
	if err != nil {
		f.log.Warn("basic bridge credentials unusable", "error", err)
		return f.respondError(client, 407, "Proxy Authentication Required")
	}

	for _, at := range attempts {
		if at.direct {
			res, err := f.exchangeDirect(ctx, client, clientBR, req)
			if err == nil {
				return res
			}
			f.log.Warn("direct connect failed", "host", req.Host, "error", err)
			continue
		}

		parent := f.registry.parent(at.parentIdx)
		res, err := f.exchangeViaParent(ctx, client, clientBR, req, at.parentIdx, creds)
		if err == nil {
			if at.parentIdx < f.sel.Len() {
				f.sel.Success(at.parentIdx)
			}
			return res
		}
		if errors.Is(err, ErrClientIO) {
			// The client is gone; another parent cannot help.
			return resAbort
		}
		f.log.Warn("parent attempt failed", "parent", parent.String(), "error", err)
		retrySafe := errors.Is(err, ErrConnect) || errors.Is(err, ErrResolve) ||
			req.RequestFraming().Kind == httpio.FramingNone
		if !retrySafe {
			// The request body was consumed by the failed attempt and
			// cannot be replayed against another parent.
			return f.respondError(client, 502, "Bad Gateway")
		}
	}

	f.log.Error("all parents failed", "host", req.Host, "error", ErrParentsExhausted)
	return f.respondError(client, 502, "Bad Gateway")
}

// attempts computes the ordered connect plan: NoProxy forces direct,
// PAC supplies a per-request list, otherwise the sticky selector order.
func (f *Forwarder) attempts(req *httpio.Request) ([]attempt, error) {
	if f.settings.NoProxy.Match(req.Host) {
		return []attempt{{direct: true}}, nil
	}

	if f.settings.PAC != nil {
		verdict, err := f.settings.PAC.FindProxyForURL(req.URI, req.Host)
		if err != nil {
			return nil, err
		}
		var out []attempt
		for _, v := range pac.ParseVerdict(verdict) {
			if v.Direct {
				out = append(out, attempt{direct: true})
				continue
			}
			out = append(out, attempt{parentIdx: f.registry.index(v.Host, v.Port)})
		}
		if len(out) == 0 {
			// An empty or unparseable verdict degrades to DIRECT.
			out = append(out, attempt{direct: true})
		}
		return out, nil
	}

	if f.sel.Len() == 0 {
		return []attempt{{direct: true}}, nil
	}
	var out []attempt
	for _, i := range f.sel.Order() {
		out = append(out, attempt{parentIdx: i})
	}
	return out, nil
}

// requestCreds resolves the credentials for this request: the global
// block, or the client's Basic pair when bridging is enabled.
func (f *Forwarder) requestCreds(req *httpio.Request) (*auth.Credentials, error) {
	if !f.settings.BasicBridge {
		return f.settings.Creds, nil
	}
	value := req.Header.Get("Proxy-Authorization")
	if !strings.HasPrefix(value, "Basic ") {
		return f.settings.Creds, nil
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(value[len("Basic "):]))
	if err != nil {
		return nil, fmt.Errorf("%w: basic credentials: %v", ErrProtocol, err)
	}
	userpass := string(raw)
	user, pass, ok := strings.Cut(userpass, ":")
	if !ok {
		return nil, fmt.Errorf("%w: basic credentials missing separator", ErrProtocol)
	}
	global := f.settings.Creds
	// A domain sent by the client wins over the configured one.
	user, domain := auth.ParseUser(user, "")
	if domain == "" {
		domain = global.Domain
	}
	return auth.NewCredentials(global.Mode, user, domain, global.Workstation, []byte(pass), global.Flags), nil
}

// provider builds the security provider for one fresh upstream
// connection.
func (f *Forwarder) provider(creds *auth.Credentials, parentHost string) (auth.SecurityProvider, error) {
	if creds.Mode == auth.ModeGSS {
		return auth.NewKerberosProvider(f.settings.Kerberos, creds, parentHost)
	}
	return auth.NewNTLMProvider(creds), nil
}

// leaseParent returns a pooled authenticated connection or dials a
// fresh one. The second return reports whether the connection came
// from the pool (and may therefore be stale).
func (f *Forwarder) leaseParent(ctx context.Context, parentIdx int) (*PooledConn, bool, error) {
	if pc := f.pool.Lease(parentIdx); pc != nil {
		return pc, true, nil
	}
	conn, err := f.registry.parent(parentIdx).Dial(ctx)
	if err != nil {
		return nil, false, err
	}
	return newPooledConn(conn, parentIdx), false, nil
}

// exchangeViaParent forwards one request through the parent at
// parentIdx, authenticating when the connection is fresh. A stale
// pooled connection earns one retry on a fresh dial.
func (f *Forwarder) exchangeViaParent(ctx context.Context, client net.Conn, clientBR *bufio.Reader, req *httpio.Request, parentIdx int, creds *auth.Credentials) (result, error) {
	pc, pooled, err := f.leaseParent(ctx, parentIdx)
	if err != nil {
		return resAbort, err
	}

	resp, err := f.sendRequest(ctx, pc, req, clientBR, creds)
	if err != nil {
		f.pool.Release(pc, StateDirty)
		// A stale pooled connection earns one redial, but only when the
		// request body was not consumed by the failed attempt.
		replayable := req.RequestFraming().Kind == httpio.FramingNone
		if !pooled || !replayable || !errors.Is(err, ErrUpstreamIO) {
			return resAbort, err
		}
		f.log.Debug("pooled connection stale, redialing", "parent", f.registry.parent(parentIdx).String())
		conn, derr := f.registry.parent(parentIdx).Dial(ctx)
		if derr != nil {
			return resAbort, derr
		}
		pc = newPooledConn(conn, parentIdx)
		resp, err = f.sendRequest(ctx, pc, req, clientBR, creds)
		if err != nil {
			f.pool.Release(pc, StateDirty)
			return resAbort, err
		}
	}

	// From here on bytes may reach the client; failures must not spill
	// over into a retry on another parent.
	res, err := f.relay(ctx, client, clientBR, req, pc, resp)
	if err != nil {
		f.log.Warn("relay failed", "error", err)
		return resAbort, nil
	}
	return res, nil
}

// sendRequest performs the Authenticating state on a fresh connection
// (Type-1 probe, 407 consumption, Type-3 repeat on the same TCP
// connection) or a plain forward on an authenticated one, and returns
// the parent's final response preamble.
func (f *Forwarder) sendRequest(ctx context.Context, pc *PooledConn, req *httpio.Request, clientBR *bufio.Reader, creds *auth.Credentials) (*httpio.Response, error) {
	framing := req.RequestFraming()

	if pc.State != StateFresh || !creds.Ready() {
		if err := f.writeUpstream(pc, req, "", framing, clientBR); err != nil {
			return nil, err
		}
		resp, err := f.readUpstreamResponse(pc)
		if err == nil {
			pc.State = StateAuthenticated
		}
		return resp, err
	}

	provider, err := f.provider(creds, f.registry.parent(pc.ParentIndex).Host)
	if err != nil {
		return nil, err
	}

	tok, cont, err := provider.Step(ctx, nil)
	if err != nil {
		return nil, err
	}
	authValue := provider.Scheme() + " " + base64.StdEncoding.EncodeToString(tok)

	// The probe withholds the body; it is replayed with the Type-3.
	probeFraming := framing
	if cont {
		probeFraming = httpio.Framing{Kind: httpio.FramingNone}
	}
	if err := f.writeUpstream(pc, req, authValue, probeFraming, clientBR); err != nil {
		return nil, err
	}
	resp, err := f.readUpstreamResponse(pc)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != 407 || !cont {
		pc.State = StateAuthenticated
		return resp, nil
	}

	challenge, ok := extractChallenge(resp, provider.Scheme())
	if !ok {
		// 407 without our scheme: the parent wants something else;
		// relay its demand untouched.
		return resp, nil
	}

	// The 407 must be consumed fully before the retry, CONNECT included.
	respFraming := resp.ResponseFraming(req.Method)
	if err := httpio.DrainBody(pc.Reader, respFraming); err != nil {
		return nil, fmt.Errorf("%w: draining challenge response: %v", ErrUpstreamIO, err)
	}
	if resp.ConnectionClose() {
		return nil, fmt.Errorf("%w: parent closed connection mid-handshake", ErrUpstreamIO)
	}

	tok, _, err = provider.Step(ctx, challenge)
	if err != nil {
		return nil, err
	}
	authValue = provider.Scheme() + " " + base64.StdEncoding.EncodeToString(tok)
	if err := f.writeUpstream(pc, req, authValue, framing, clientBR); err != nil {
		return nil, err
	}
	resp, err = f.readUpstreamResponse(pc)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == 407 {
		// Credentials rejected after Type-3. The 407 is relayed to the
		// client; the connection stays Fresh and is discarded on release.
		f.log.Warn("parent rejected credentials", "parent", f.registry.parent(pc.ParentIndex).String(), "user", creds.User, "error", ErrAuthFailed)
		return resp, nil
	}
	pc.State = StateAuthenticated
	return resp, nil
}

// extractChallenge pulls the base64 token for scheme out of a 407's
// Proxy-Authenticate headers.
func extractChallenge(resp *httpio.Response, scheme string) ([]byte, bool) {
	for _, value := range resp.Header.Values("Proxy-Authenticate") {
		name, b64, _ := strings.Cut(strings.TrimSpace(value), " ")
		if !strings.EqualFold(name, scheme) || b64 == "" {
			continue
		}
		raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(b64))
		if err != nil {
			continue
		}
		return raw, true
	}
	return nil, false
}

// writeUpstream emits the request preamble toward the parent with
// hop-by-hop headers stripped, substitutions applied, and the body
// relayed per framing.
func (f *Forwarder) writeUpstream(pc *PooledConn, req *httpio.Request, authValue string, framing httpio.Framing, clientBR *bufio.Reader) error {
	out := &httpio.Request{Method: req.Method, URI: req.URI, Version: req.Version}
	copyHeader(&out.Header, &req.Header)
	out.Header.StripHopByHop()
	out.Header.Substitute(f.settings.Substitutions)

	switch framing.Kind {
	case httpio.FramingChunked:
		out.Header.Set("Transfer-Encoding", "chunked")
	case httpio.FramingNone:
		if req.Method != "CONNECT" && req.RequestFraming().Kind != httpio.FramingNone {
			// Body withheld for the probe.
			out.Header.Set("Content-Length", "0")
		}
	}
	if authValue != "" {
		out.Header.Set("Proxy-Authorization", authValue)
	}
	out.Header.Set("Proxy-Connection", "Keep-Alive")

	var buf bytes.Buffer
	if err := out.WriteTo(&buf); err != nil {
		return err
	}
	if _, err := pc.Conn.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("%w: writing request: %v", ErrUpstreamIO, err)
	}

	if framing.Kind != httpio.FramingNone {
		if _, err := httpio.RelayBody(pc.Conn, clientBR, framing); err != nil {
			return fmt.Errorf("%w: relaying request body: %v", ErrClientIO, err)
		}
	}
	return nil
}

func (f *Forwarder) readUpstreamResponse(pc *PooledConn) (*httpio.Response, error) {
	resp, err := httpio.ReadResponse(pc.Reader)
	if err != nil {
		if errors.Is(err, httpio.ErrMalformed) {
			return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
		}
		return nil, fmt.Errorf("%w: reading response: %v", ErrUpstreamIO, err)
	}
	return resp, nil
}

// relay performs the Relaying state: CONNECT switches to the tunnel,
// other methods stream the response and decide keep-alive.
func (f *Forwarder) relay(ctx context.Context, client net.Conn, clientBR *bufio.Reader, req *httpio.Request, pc *PooledConn, resp *httpio.Response) (result, error) {
	if req.Method == "CONNECT" {
		if resp.StatusCode != 200 {
			// Auth failures and parent errors relay as-is; the
			// connection cannot carry another exchange reliably.
			f.relayResponse(client, req, resp, pc)
			f.pool.Release(pc, StateDirty)
			return resDone, nil
		}
		resp.Header.StripHopByHop()
		if err := resp.WriteTo(client); err != nil {
			f.pool.Release(pc, StateDirty)
			return resAbort, fmt.Errorf("%w: %v", ErrClientIO, err)
		}
		upstream := pc.Conn
		pre := bufferedLeftover(pc.Reader)
		Tunnel(client, upstream, bufferedLeftover(clientBR), pre)
		// The tunnel consumed and closed the connection.
		pc.State = StateDirty
		return resDone, nil
	}

	reusable, err := f.relayResponse(client, req, resp, pc)
	if err != nil {
		f.pool.Release(pc, StateDirty)
		return resAbort, err
	}

	if reusable && pc.State == StateAuthenticated {
		f.pool.Release(pc, StateAuthenticated)
	} else {
		f.pool.Release(pc, StateDirty)
	}
	if req.KeepAlive() {
		return resContinue, nil
	}
	return resDone, nil
}

// relayResponse writes the response preamble and body to the client.
// Returns whether the upstream connection remains reusable.
func (f *Forwarder) relayResponse(client net.Conn, req *httpio.Request, resp *httpio.Response, pc *PooledConn) (bool, error) {
	framing := resp.ResponseFraming(req.Method)
	reusable := !resp.ConnectionClose() && framing.Kind != httpio.FramingUntilClose

	resp.Header.StripHopByHop()
	if framing.Kind == httpio.FramingChunked {
		resp.Header.Set("Transfer-Encoding", "chunked")
	}
	if req.KeepAlive() && framing.Kind != httpio.FramingUntilClose {
		resp.Header.Set("Proxy-Connection", "keep-alive")
	} else {
		resp.Header.Set("Proxy-Connection", "close")
	}

	// ISA scanner shim: prefetch small bounded bodies so the upstream
	// scanner cannot stall the headers.
	if body, ok := f.scannerPrefetch(req, framing, pc); ok {
		if err := resp.WriteTo(client); err != nil {
			return false, fmt.Errorf("%w: %v", ErrClientIO, err)
		}
		if _, err := client.Write(body); err != nil {
			return false, fmt.Errorf("%w: %v", ErrClientIO, err)
		}
		return reusable, nil
	}

	if err := resp.WriteTo(client); err != nil {
		return false, fmt.Errorf("%w: %v", ErrClientIO, err)
	}
	if _, err := httpio.RelayBody(client, pc.Reader, framing); err != nil {
		// Failed mid-body: the upstream connection is unusable and the
		// client stream is out of sync.
		return false, fmt.Errorf("%w: relaying response body: %v", ErrUpstreamIO, err)
	}
	return reusable, nil
}

// scannerPrefetch reads the whole body ahead of the client when the
// request's User-Agent matches a configured scanner agent and the
// response is length-framed under the threshold.
func (f *Forwarder) scannerPrefetch(req *httpio.Request, framing httpio.Framing, pc *PooledConn) ([]byte, bool) {
	if len(f.settings.ScannerAgents) == 0 || framing.Kind != httpio.FramingLength || framing.Length > f.settings.ScannerSize {
		return nil, false
	}
	agent := strings.ToLower(req.Header.Get("User-Agent"))
	matched := false
	for _, pattern := range f.settings.ScannerAgents {
		if hostMatch(agent, strings.ToLower(pattern)) {
			matched = true
			break
		}
	}
	if !matched {
		return nil, false
	}
	body := make([]byte, framing.Length)
	if _, err := io.ReadFull(pc.Reader, body); err != nil {
		return nil, false
	}
	return body, true
}

// exchangeDirect serves a NoProxy or PAC-DIRECT request by connecting
// straight to the origin.
func (f *Forwarder) exchangeDirect(ctx context.Context, client net.Conn, clientBR *bufio.Reader, req *httpio.Request) (result, error) {
	var dialer net.Dialer
	target := net.JoinHostPort(req.Host, req.Port)
	origin, err := dialer.DialContext(ctx, "tcp", target)
	if err != nil {
		return resAbort, fmt.Errorf("%w: %s: %v", ErrConnect, target, err)
	}

	// Past this point bytes may reach the client; failures abort the
	// connection instead of propagating into a retry.
	abort := func(err error) (result, error) {
		f.log.Warn("direct exchange failed", "target", target, "error", err)
		return resAbort, nil
	}

	if req.Method == "CONNECT" {
		if _, err := io.WriteString(client, req.Version+" 200 Connection established\r\n\r\n"); err != nil {
			origin.Close()
			return abort(fmt.Errorf("%w: %v", ErrClientIO, err))
		}
		Tunnel(client, origin, bufferedLeftover(clientBR), nil)
		return resDone, nil
	}
	defer origin.Close()

	out := &httpio.Request{Method: req.Method, URI: originForm(req.URI), Version: req.Version}
	copyHeader(&out.Header, &req.Header)
	out.Header.StripHopByHop()
	out.Header.Substitute(f.settings.Substitutions)
	framing := req.RequestFraming()
	if framing.Kind == httpio.FramingChunked {
		out.Header.Set("Transfer-Encoding", "chunked")
	}
	out.Header.Set("Connection", "close")

	if err := out.WriteTo(origin); err != nil {
		return abort(fmt.Errorf("%w: %v", ErrUpstreamIO, err))
	}
	if framing.Kind != httpio.FramingNone {
		if _, err := httpio.RelayBody(origin, clientBR, framing); err != nil {
			return abort(fmt.Errorf("%w: %v", ErrClientIO, err))
		}
	}

	originBR := bufio.NewReader(origin)
	resp, err := httpio.ReadResponse(originBR)
	if err != nil {
		return abort(fmt.Errorf("%w: %v", ErrUpstreamIO, err))
	}
	respFraming := resp.ResponseFraming(req.Method)
	resp.Header.StripHopByHop()
	if respFraming.Kind == httpio.FramingChunked {
		resp.Header.Set("Transfer-Encoding", "chunked")
	}
	resp.Header.Set("Proxy-Connection", "close")
	if err := resp.WriteTo(client); err != nil {
		return abort(fmt.Errorf("%w: %v", ErrClientIO, err))
	}
	if _, err := httpio.RelayBody(client, originBR, respFraming); err != nil {
		return abort(fmt.Errorf("%w: %v", ErrUpstreamIO, err))
	}
	// The origin link was Connection: close; the client may go on.
	if req.KeepAlive() && respFraming.Kind != httpio.FramingUntilClose {
		return resContinue, nil
	}
	return resDone, nil
}

// originForm strips the scheme and authority from an absolute URI.
func originForm(uri string) string {
	rest, ok := strings.CutPrefix(uri, "http://")
	if !ok {
		rest, ok = strings.CutPrefix(uri, "https://")
	}
	if !ok {
		return uri
	}
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		return rest[i:]
	}
	return "/"
}

// EstablishTunnel opens a byte pipe to host:port for SOCKS5 and fixed
// tunnel workers: direct when NoProxy matches (or no parents exist),
// otherwise an authenticated CONNECT through the parent rotation.
// The returned reader carries parent bytes read ahead of the socket.
func (f *Forwarder) EstablishTunnel(ctx context.Context, host, port string) (net.Conn, io.Reader, error) {
	if f.settings.NoProxy.Match(host) || f.sel.Len() == 0 {
		var dialer net.Dialer
		conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, port))
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrConnect, err)
		}
		return conn, nil, nil
	}

	connect := &httpio.Request{
		Method:  "CONNECT",
		URI:     net.JoinHostPort(host, port),
		Version: "HTTP/1.1",
		Host:    host,
		Port:    port,
	}
	connect.Header.Add("Host", connect.URI)

	var lastErr error
	for _, idx := range f.sel.Order() {
		pc, pooled, err := f.leaseParent(ctx, idx)
		if err != nil {
			lastErr = err
			continue
		}
		resp, err := f.sendRequest(ctx, pc, connect, nil, f.settings.Creds)
		if err != nil && pooled && errors.Is(err, ErrUpstreamIO) {
			// Stale pooled socket; one fresh retry on this parent.
			f.pool.Release(pc, StateDirty)
			conn, derr := f.registry.parent(idx).Dial(ctx)
			if derr != nil {
				lastErr = derr
				continue
			}
			pc = newPooledConn(conn, idx)
			resp, err = f.sendRequest(ctx, pc, connect, nil, f.settings.Creds)
		}
		if err != nil {
			f.pool.Release(pc, StateDirty)
			lastErr = err
			continue
		}
		if resp.StatusCode != 200 {
			f.pool.Release(pc, StateDirty)
			lastErr = fmt.Errorf("%w: parent answered %d", ErrConnect, resp.StatusCode)
			continue
		}
		f.sel.Success(idx)
		pc.State = StateDirty // consumed by the tunnel, never pooled again
		return pc.Conn, bufferedLeftover(pc.Reader), nil
	}
	if lastErr == nil {
		lastErr = ErrParentsExhausted
	}
	return nil, nil, lastErr
}

// respondError writes a minimal error response and ends the exchange.
func (f *Forwarder) respondError(client net.Conn, code int, reason string) result {
	resp := &httpio.Response{Version: "HTTP/1.1", StatusCode: code, Reason: reason}
	resp.Header.Add("Content-Length", "0")
	resp.Header.Add("Proxy-Connection", "close")
	resp.WriteTo(client)
	return resDone
}

func copyHeader(dst, src *httpio.Header) {
	*dst = src.Clone()
}
