// Package logging configures the process-wide zerolog logger from
// internal/config, per spec §6's "Configuration" notes and the ambient
// logging stack every component in this repo writes through.
package logging

import (
	"context"
	"fmt"
	stdlog "log"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
)

// Init installs the global zerolog logger: RFC3339Nano timestamps, level
// parsed from logLevel (falling back to info on an empty or unknown
// value), and output to logPath when set (falling back to stdout on open
// failure) or stdout otherwise. The standard library logger is redirected
// through it so every dependency's log.Print call lands in the same
// stream.
func Init(logPath, logLevel string) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	var w io.Writer = os.Stdout
	if logPath != "" {
		if f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			w = f
		} else {
			_, _ = fmt.Fprintf(os.Stderr, "logging: failed to open log file %q: %v\n", logPath, err)
		}
	}
	log.Logger = log.Output(w).With().Timestamp().Logger()

	level := strings.ToLower(strings.TrimSpace(logLevel))
	if level == "warning" {
		level = "warn"
	}
	lvl := zerolog.InfoLevel
	if level != "" {
		if l, err := zerolog.ParseLevel(level); err == nil {
			lvl = l
		}
	}
	zerolog.SetGlobalLevel(lvl)

	stdlog.SetFlags(0)
	stdlog.SetOutput(log.Logger)
}

// FromContext returns the global logger enriched with the active span's
// trace and span IDs, so a log line can be correlated back to the request
// that produced it without threading a logger through every call.
func FromContext(ctx context.Context) *zerolog.Logger {
	l := log.Logger
	if ctx == nil {
		return &l
	}
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return &l
	}
	l = l.With().Str("trace_id", sc.TraceID().String()).Logger()
	if sc.HasSpanID() {
		l = l.With().Str("span_id", sc.SpanID().String()).Logger()
	}
	if sc.IsSampled() {
		l = l.With().Bool("trace_sampled", true).Logger()
	}
	return &l
}

// NewHTTPClient wraps base (or a fresh client when base is nil) with an
// otelhttp transport so every outbound call this process makes carries a
// trace span.
func NewHTTPClient(base *http.Client) *http.Client {
	if base == nil {
		base = &http.Client{}
	}
	rt := base.Transport
	if rt == nil {
		rt = http.DefaultTransport
	}
	base.Transport = otelhttp.NewTransport(rt)
	return base
}
