package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

// Options selects the logger shape.
type Options struct {
	// Verbose lowers the level to Debug.
	Verbose bool

	// TraceFile tees records to a file and forces Debug level.
	TraceFile string
}

// Setup builds the process logger: text handler on stderr, redaction
// always on, and an optional trace file. The returned closer flushes
// the trace file on shutdown; it is a no-op without one.
func Setup(opts Options) (*slog.Logger, io.Closer, error) {
	level := slog.LevelInfo
	if opts.Verbose || opts.TraceFile != "" {
		level = slog.LevelDebug
	}

	var out io.Writer = os.Stderr
	var closer io.Closer = nopCloser{}
	if opts.TraceFile != "" {
		f, err := os.OpenFile(opts.TraceFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("log: open trace file: %w", err)
		}
		out = io.MultiWriter(os.Stderr, f)
		closer = f
	}

	handler := NewRedactingHandler(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
	return slog.New(handler), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
