package proxy

import (
	"context"
	"fmt"
	"net/url"

	"github.com/smnsjas/go-ntlmproxy/auth"
	"github.com/smnsjas/go-ntlmproxy/httpio"
)

// DetectResult is the outcome of probing one auth mode.
type DetectResult struct {
	Mode       auth.Mode
	StatusCode int
	OK         bool
	Err        error
}

// Detect probes the first parent in selection order with each
// candidate mode against testURL and reports which of them
// authenticate; when that parent cannot be reached the probe fails and
// no other parent is tried. Used by the operator's autodetect flag;
// each probe runs on its own connection.
func (f *Forwarder) Detect(ctx context.Context, testURL string, modes []auth.Mode) []DetectResult {
	req, err := detectRequest(testURL)
	results := make([]DetectResult, 0, len(modes))
	if err != nil {
		return append(results, DetectResult{Err: err})
	}

	for _, mode := range modes {
		creds := f.settings.Creds.WithMode(mode)
		res := DetectResult{Mode: mode}
		if !creds.Ready() {
			res.Err = fmt.Errorf("proxy: no %v hash available", mode)
			results = append(results, res)
			continue
		}
		res.StatusCode, res.Err = f.probe(ctx, req, creds)
		res.OK = res.Err == nil && res.StatusCode != 407
		results = append(results, res)
	}
	return results
}

func (f *Forwarder) probe(ctx context.Context, req *httpio.Request, creds *auth.Credentials) (int, error) {
	order := f.sel.Order()
	if len(order) == 0 {
		return 0, ErrParentsExhausted
	}
	conn, err := f.registry.parent(order[0]).Dial(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	pc := newPooledConn(conn, order[0])
	resp, err := f.sendRequest(ctx, pc, req, nil, creds)
	if err != nil {
		return 0, err
	}
	framing := resp.ResponseFraming(req.Method)
	if framing.Kind != httpio.FramingUntilClose {
		httpio.DrainBody(pc.Reader, framing)
	}
	return resp.StatusCode, nil
}

func detectRequest(testURL string) (*httpio.Request, error) {
	u, err := url.Parse(testURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("%w: test url %q", ErrProtocol, testURL)
	}
	req := &httpio.Request{
		Method:  "GET",
		URI:     testURL,
		Version: "HTTP/1.1",
		Host:    u.Hostname(),
		Port:    u.Port(),
	}
	if req.Port == "" {
		req.Port = "80"
	}
	req.Header.Add("Host", u.Host)
	req.Header.Add("User-Agent", "Mozilla/5.0 (compatible)")
	return req, nil
}
