package proxy

import (
	"net"
	"sync"

	"github.com/smnsjas/go-ntlmproxy/auth"
	"github.com/smnsjas/go-ntlmproxy/httpio"
	"github.com/smnsjas/go-ntlmproxy/pac"
)

// Settings is the frozen startup state shared read-only by every
// worker. Only the pool, the PAC engine and the parent registry carry
// their own synchronization.
type Settings struct {
	// Creds is the global credential block.
	Creds *auth.Credentials

	// Kerberos configures GSS mode; zero value when unused.
	Kerberos auth.KerberosConfig

	// NoProxy routes matching hosts to direct connects.
	NoProxy *NoProxyMatcher

	// Substitutions are applied to forwarded request headers after
	// hop-by-hop stripping.
	Substitutions []httpio.Substitution

	// SOCKSUsers maps SOCKS5 user names to passwords. Empty means the
	// NO_AUTH method is accepted.
	SOCKSUsers map[string]string

	// BasicBridge decodes a client's Proxy-Authorization: Basic into
	// per-request credentials for the upstream handshake.
	BasicBridge bool

	// ScannerAgents are User-Agent wildcards that trigger the ISA
	// scanner prefetch; ScannerSize is the response-size ceiling for it.
	ScannerAgents []string
	ScannerSize   int64

	// PAC, when non-nil, derives a per-request parent list.
	PAC *pac.Engine

	// LogRequests enables the one-line-per-request log.
	LogRequests bool
}

// parentRegistry assigns stable indexes to parent proxies so the pool
// can key connections by parent even when PAC introduces parents at
// request time. The static list seeds it; PAC verdicts extend it.
type parentRegistry struct {
	mu      sync.Mutex
	parents []*ParentProxy
	byAddr  map[string]int
}

func newParentRegistry(static []*ParentProxy) *parentRegistry {
	r := &parentRegistry{byAddr: make(map[string]int)}
	for _, p := range static {
		r.byAddr[net.JoinHostPort(p.Host, p.Port)] = len(r.parents)
		r.parents = append(r.parents, p)
	}
	return r
}

// index returns the stable index for host:port, registering it first
// when PAC named a parent not seen before.
func (r *parentRegistry) index(host, port string) int {
	addr := net.JoinHostPort(host, port)
	r.mu.Lock()
	defer r.mu.Unlock()
	if i, ok := r.byAddr[addr]; ok {
		return i
	}
	i := len(r.parents)
	r.byAddr[addr] = i
	r.parents = append(r.parents, NewParentProxy(host, port))
	return i
}

// parent returns the parent at a registry index.
func (r *parentRegistry) parent(i int) *ParentProxy {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.parents[i]
}
