// Package log wires the process logger: level selection, an optional
// trace file, and redaction of credential material before any record
// reaches a sink.
package log

import (
	"context"
	"log/slog"
	"strings"
)

// sensitiveKeys lists attribute-key substrings whose values never
// appear in logs. A proxy that holds NTLM hashes and SOCKS passwords
// must not leak them at any log level, trace included.
var sensitiveKeys = []string{
	"password",
	"pass",
	"secret",
	"hash",
	"challenge",
	"token",
	"cred",
	"authorization",
}

// RedactingHandler is a slog.Handler that replaces sensitive attribute
// values before passing records on.
type RedactingHandler struct {
	next slog.Handler
}

// NewRedactingHandler wraps next with redaction.
func NewRedactingHandler(next slog.Handler) *RedactingHandler {
	return &RedactingHandler{next: next}
}

// Enabled implements slog.Handler.
func (h *RedactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *RedactingHandler) Handle(ctx context.Context, r slog.Record) error {
	var attrs []slog.Attr
	r.Attrs(func(a slog.Attr) bool {
		attrs = append(attrs, redactAttr(a))
		return true
	})

	clean := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	clean.AddAttrs(attrs...)
	return h.next.Handle(ctx, clean)
}

// WithAttrs implements slog.Handler.
func (h *RedactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	redacted := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		redacted[i] = redactAttr(a)
	}
	return &RedactingHandler{next: h.next.WithAttrs(redacted)}
}

// WithGroup implements slog.Handler.
func (h *RedactingHandler) WithGroup(name string) slog.Handler {
	return &RedactingHandler{next: h.next.WithGroup(name)}
}

func redactAttr(a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindGroup {
		members := a.Value.Group()
		redacted := make([]any, len(members))
		for i, m := range members {
			redacted[i] = redactAttr(m)
		}
		return slog.Group(a.Key, redacted...)
	}

	key := strings.ToLower(a.Key)
	for _, sens := range sensitiveKeys {
		if strings.Contains(key, sens) {
			return slog.String(a.Key, "[REDACTED]")
		}
	}
	return a
}
