// Package httpio reads and writes HTTP/1.x message preambles on raw
// sockets and relays message bodies while preserving their framing.
//
// The stdlib net/http machinery is unsuitable here: a proxy that
// authenticates on behalf of its clients must round-trip headers
// byte-faithfully (order and spelling preserved), keep ownership of the
// underlying connection across the NTLM handshake, and forward chunked
// bodies without re-framing them. This package works at that level and
// nothing above it.
package httpio

import (
	"io"
	"strings"
)

// field is one header line. Name keeps its original spelling for
// round-tripping; lookups fold case.
type field struct {
	Name  string
	Value string
}

// Header is an ordered multimap of HTTP header fields. Insertion order
// is preserved on emit; duplicate names are allowed and kept.
type Header struct {
	fields []field
}

// Get returns the first value for name, folding case. Missing fields
// return the empty string.
func (h *Header) Get(name string) string {
	for _, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			return f.Value
		}
	}
	return ""
}

// Has reports whether name is present.
func (h *Header) Has(name string) bool {
	for _, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			return true
		}
	}
	return false
}

// Add appends a field, keeping duplicates.
func (h *Header) Add(name, value string) {
	h.fields = append(h.fields, field{Name: name, Value: value})
}

// Set replaces the first occurrence of name (preserving its position)
// and drops the rest; absent names are appended.
func (h *Header) Set(name, value string) {
	out := h.fields[:0]
	replaced := false
	for _, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			if replaced {
				continue
			}
			f.Value = value
			f.Name = name
			replaced = true
		}
		out = append(out, f)
	}
	h.fields = out
	if !replaced {
		h.Add(name, value)
	}
}

// Del removes every occurrence of name.
func (h *Header) Del(name string) {
	out := h.fields[:0]
	for _, f := range h.fields {
		if !strings.EqualFold(f.Name, name) {
			out = append(out, f)
		}
	}
	h.fields = out
}

// Len returns the number of fields.
func (h *Header) Len() int {
	return len(h.fields)
}

// appendContinuation folds a continuation line into the last field.
func (h *Header) appendContinuation(line string) {
	if len(h.fields) == 0 {
		return
	}
	last := &h.fields[len(h.fields)-1]
	last.Value += " " + strings.TrimSpace(line)
}

// Clone returns a deep copy.
func (h *Header) Clone() Header {
	return Header{fields: append([]field(nil), h.fields...)}
}

// Values returns every value for name in order.
func (h *Header) Values(name string) []string {
	var vals []string
	for _, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			vals = append(vals, f.Value)
		}
	}
	return vals
}

// WriteTo emits the fields in insertion order followed by the blank
// line that terminates the preamble.
func (h *Header) WriteTo(w io.Writer) error {
	var sb strings.Builder
	for _, f := range h.fields {
		sb.WriteString(f.Name)
		sb.WriteString(": ")
		sb.WriteString(f.Value)
		sb.WriteString("\r\n")
	}
	sb.WriteString("\r\n")
	_, err := io.WriteString(w, sb.String())
	return err
}

// hopByHop lists the headers HTTP/1.1 scopes to a single connection.
// They are stripped before forwarding and regenerated as needed.
var hopByHop = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authorization",
	"Proxy-Authenticate",
	"TE",
	"Trailers",
	"Transfer-Encoding",
	"Upgrade",
}

// StripHopByHop removes the hop-by-hop set plus any header named by the
// Connection field itself. Transfer-Encoding is restored by the caller
// when the body it forwards is chunked.
func (h *Header) StripHopByHop() {
	for _, name := range strings.Split(h.Get("Connection"), ",") {
		if name = strings.TrimSpace(name); name != "" {
			h.Del(name)
		}
	}
	for _, name := range hopByHop {
		h.Del(name)
	}
}

// Substitute applies operator-configured replacements: each entry
// replaces all occurrences of its name or is appended when absent.
func (h *Header) Substitute(subs []Substitution) {
	for _, s := range subs {
		h.Set(s.Name, s.Value)
	}
}

// Substitution is one operator-configured header override.
type Substitution struct {
	Name  string
	Value string
}
