package proxy

import "strings"

// NoProxyMatcher routes hosts matching operator wildcard patterns to a
// direct TCP connect instead of a parent proxy. Frozen after startup,
// readable without synchronization.
type NoProxyMatcher struct {
	patterns []string
}

// NewNoProxyMatcher builds a matcher from comma- or list-separated
// patterns. Patterns use * and ? wildcards; a bare "domain.com" also
// matches any of its subdomains, mirroring the usual NoProxy
// convention.
func NewNoProxyMatcher(patterns []string) *NoProxyMatcher {
	m := &NoProxyMatcher{}
	for _, group := range patterns {
		for _, p := range strings.Split(group, ",") {
			if p = strings.TrimSpace(strings.ToLower(p)); p != "" {
				m.patterns = append(m.patterns, p)
			}
		}
	}
	return m
}

// Empty reports whether no patterns are configured.
func (m *NoProxyMatcher) Empty() bool {
	return m == nil || len(m.patterns) == 0
}

// Match reports whether host should bypass the parent proxies.
func (m *NoProxyMatcher) Match(host string) bool {
	if m.Empty() {
		return false
	}
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	for _, p := range m.patterns {
		if hostMatch(host, p) {
			return true
		}
		// "example.com" also covers "*.example.com".
		if !strings.ContainsAny(p, "*?") && strings.HasSuffix(host, "."+p) {
			return true
		}
	}
	return false
}

// hostMatch implements shell-style wildcard matching with * and ?.
func hostMatch(host, pattern string) bool {
	if pattern == "" {
		return host == ""
	}
	switch pattern[0] {
	case '*':
		for i := 0; i <= len(host); i++ {
			if hostMatch(host[i:], pattern[1:]) {
				return true
			}
		}
		return false
	case '?':
		return host != "" && hostMatch(host[1:], pattern[1:])
	default:
		return host != "" && host[0] == pattern[0] && hostMatch(host[1:], pattern[1:])
	}
}
