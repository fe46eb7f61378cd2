package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/parisxmas/TenderDesk/internal/gelf"
)

type Options struct {
	Level    string
	Format   string
	GelfAddr string
	Output   io.Writer
}

// New builds the process logger. When GelfAddr is set, records are also sent
// to the GELF endpoint as JSON regardless of Format. The returned closer
// releases the GELF socket.
func New(opts Options) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch strings.ToLower(opts.Format) {
	case "", "text":
		handler = slog.NewTextHandler(out, handlerOpts)
	case "json":
		handler = slog.NewJSONHandler(out, handlerOpts)
	default:
		return nil, nil, fmt.Errorf("unknown log format %q", opts.Format)
	}

	var closer io.Closer = nopCloser{}
	if opts.GelfAddr != "" {
		w, err := gelf.New(opts.GelfAddr, "tenderdesk")
		if err != nil {
			return nil, nil, fmt.Errorf("gelf: %w", err)
		}
		handler = fanout{handler, slog.NewJSONHandler(w, handlerOpts)}
		closer = w
	}
	return slog.New(handler), closer, nil
}

func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
