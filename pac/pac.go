// Package pac evaluates Proxy Auto-Configuration scripts and parses
// their verdict strings.
//
// The interpreter (dop251/goja) is not re-entrant, so every evaluation
// holds the engine mutex; that lock is a correctness requirement, not
// an optimization.
package pac

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"

	"github.com/dop251/goja"
)

// Engine wraps one goja runtime with FindProxyForURL loaded.
type Engine struct {
	mu sync.Mutex
	vm *goja.Runtime
	fn goja.Callable
}

// Evaluation errors.
var (
	// ErrNoFunction is returned when the script does not define
	// FindProxyForURL.
	ErrNoFunction = errors.New("pac: script does not define FindProxyForURL")

	// ErrBadVerdict is returned when the script returns a non-string.
	ErrBadVerdict = errors.New("pac: FindProxyForURL returned a non-string")
)

// Load reads and compiles a PAC script from path.
func Load(path string) (*Engine, error) {
	script, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("pac: read %s: %w", path, err)
	}
	return New(string(script))
}

// New compiles a PAC script.
func New(script string) (*Engine, error) {
	vm := goja.New()
	registerHelpers(vm)
	if _, err := vm.RunString(script); err != nil {
		return nil, fmt.Errorf("pac: evaluate script: %w", err)
	}
	fn, ok := goja.AssertFunction(vm.Get("FindProxyForURL"))
	if !ok {
		return nil, ErrNoFunction
	}
	return &Engine{vm: vm, fn: fn}, nil
}

// FindProxyForURL runs the script for one request and returns the raw
// verdict string.
func (e *Engine) FindProxyForURL(url, host string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	v, err := e.fn(goja.Undefined(), e.vm.ToValue(url), e.vm.ToValue(host))
	if err != nil {
		return "", fmt.Errorf("pac: FindProxyForURL: %w", err)
	}
	s, ok := v.Export().(string)
	if !ok {
		return "", ErrBadVerdict
	}
	return s, nil
}

// Verdict is one entry of a parsed PAC result.
type Verdict struct {
	// Direct is true for a DIRECT token; Host/Port are empty then.
	Direct bool
	Host   string
	Port   string
}

// ParseVerdict splits a semicolon-separated verdict into ordered
// entries. Only PROXY and DIRECT tokens are honored; SOCKS, HTTPS and
// other schemes are skipped, preserving the historical limitation.
func ParseVerdict(verdict string) []Verdict {
	var out []Verdict
	for _, tok := range strings.Split(verdict, ";") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		kind, rest, _ := strings.Cut(tok, " ")
		switch strings.ToUpper(kind) {
		case "DIRECT":
			out = append(out, Verdict{Direct: true})
		case "PROXY":
			host, port, err := net.SplitHostPort(strings.TrimSpace(rest))
			if err != nil || host == "" {
				continue
			}
			out = append(out, Verdict{Host: host, Port: port})
		}
	}
	return out
}

// registerHelpers installs the standard PAC helper functions.
func registerHelpers(vm *goja.Runtime) {
	vm.Set("isPlainHostName", func(host string) bool {
		return !strings.Contains(host, ".")
	})
	vm.Set("dnsDomainIs", func(host, domain string) bool {
		return strings.HasSuffix(strings.ToLower(host), strings.ToLower(domain))
	})
	vm.Set("localHostOrDomainIs", func(host, hostdom string) bool {
		host = strings.ToLower(host)
		hostdom = strings.ToLower(hostdom)
		return host == hostdom || strings.HasPrefix(hostdom, host+".")
	})
	vm.Set("isResolvable", func(host string) bool {
		addrs, err := net.LookupHost(host)
		return err == nil && len(addrs) > 0
	})
	vm.Set("dnsResolve", func(host string) string {
		addrs, err := net.LookupHost(host)
		if err != nil || len(addrs) == 0 {
			return ""
		}
		return addrs[0]
	})
	vm.Set("myIpAddress", func() string {
		conn, err := net.Dial("udp", "8.8.8.8:53")
		if err != nil {
			return "127.0.0.1"
		}
		defer conn.Close()
		addr, _, _ := net.SplitHostPort(conn.LocalAddr().String())
		return addr
	})
	vm.Set("isInNet", func(host, pattern, mask string) bool {
		ip := net.ParseIP(host)
		if ip == nil {
			addrs, err := net.LookupHost(host)
			if err != nil || len(addrs) == 0 {
				return false
			}
			ip = net.ParseIP(addrs[0])
		}
		maskIP := net.ParseIP(mask)
		patIP := net.ParseIP(pattern)
		if ip == nil || maskIP == nil || patIP == nil {
			return false
		}
		m := net.IPMask(maskIP.To4())
		return ip.Mask(m).Equal(patIP.Mask(m))
	})
	vm.Set("dnsDomainLevels", func(host string) int {
		return strings.Count(host, ".")
	})
	vm.Set("shExpMatch", func(s, pattern string) bool {
		return wildcardMatch(strings.ToLower(s), strings.ToLower(pattern))
	})
}

// wildcardMatch implements shell-style matching with * and ?.
func wildcardMatch(s, pattern string) bool {
	if pattern == "" {
		return s == ""
	}
	switch pattern[0] {
	case '*':
		for i := 0; i <= len(s); i++ {
			if wildcardMatch(s[i:], pattern[1:]) {
				return true
			}
		}
		return false
	case '?':
		return s != "" && wildcardMatch(s[1:], pattern[1:])
	default:
		return s != "" && s[0] == pattern[0] && wildcardMatch(s[1:], pattern[1:])
	}
}
