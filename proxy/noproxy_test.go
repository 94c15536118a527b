package proxy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNoProxyMatch(t *testing.T) {
	m := NewNoProxyMatcher([]string{"*.local, intranet", "10.0.?.1"})

	tests := []struct {
		host string
		want bool
	}{
		{"intra.local", true},
		{"a.b.local", true},
		{"local", false},
		{"intranet", true},
		{"sub.intranet", true},
		{"intranet.com", false},
		{"10.0.0.1", true},
		{"10.0.10.1", false},
		{"example.com", false},
		{"INTRA.LOCAL", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, m.Match(tt.host), tt.host)
	}
}

func TestNoProxyEmpty(t *testing.T) {
	var m *NoProxyMatcher
	assert.False(t, m.Match("anything"))
	assert.True(t, m.Empty())
	assert.False(t, NewNoProxyMatcher(nil).Match("host"))
}
