// Package logging configures the process-wide slog logger and names the
// events vmr2tei logs.
//
// Only the command line and the API log; the conversion packages under core
// return errors and never write to a logger.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	runIDKey
)

var std *slog.Logger

func init() {
	InitLogger(slog.LevelInfo, FormatText)
}

// ParseLevel maps a level name to a slog level. The empty name is info.
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

// Format is a log output format.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat maps a format name to a Format. The empty name is text.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	}
	return FormatText, fmt.Errorf("unknown log format %q", s)
}

// InitLogger replaces the global logger. Logs go to stderr so that
// documents written to stdout stay clean.
func InitLogger(level slog.Level, format Format) {
	InitLoggerTo(os.Stderr, level, format)
}

// InitLoggerTo replaces the global logger with one writing to w.
func InitLoggerTo(w io.Writer, level slog.Level, format Format) {
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.String(slog.TimeKey, a.Value.Time().Format(time.RFC3339))
			}
			return a
		},
	}
	var h slog.Handler = slog.NewTextHandler(w, opts)
	if format == FormatJSON {
		h = slog.NewJSONHandler(w, opts)
	}
	std = slog.New(h)
	slog.SetDefault(std)
}

// NewRunID returns a fresh conversion run ID.
func NewRunID() string {
	return uuid.NewString()
}

// WithRunID tags ctx with a conversion run ID.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

// RunID returns the run ID of ctx, or "".
func RunID(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey).(string)
	return id
}

// WithRequestID tags ctx with an HTTP request ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID returns the request ID of ctx, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// FromContext returns the global logger with the request and run IDs of
// ctx attached.
func FromContext(ctx context.Context) *slog.Logger {
	l := std
	if id := RequestID(ctx); id != "" {
		l = l.With("request_id", id)
	}
	if id := RunID(ctx); id != "" {
		l = l.With("run_id", id)
	}
	return l
}

func Debug(msg string, args ...any) { std.Debug(msg, args...) }
func Info(msg string, args ...any)  { std.Info(msg, args...) }
func Warn(msg string, args ...any)  { std.Warn(msg, args...) }
func Error(msg string, args ...any) { std.Error(msg, args...) }

// emit logs an event with its fixed attributes followed by the caller's.
func emit(ctx context.Context, level slog.Level, event string, extra []any, attrs ...any) {
	FromContext(ctx).Log(ctx, level, event, append(attrs, extra...)...)
}

// RunStarted logs the start of a conversion run over records read from
// source.
func RunStarted(ctx context.Context, source string, records int, args ...any) {
	emit(ctx, slog.LevelInfo, "run_started", args, "source", source, "records", records)
}

// UnitFailed logs a unit that failed to parse or collate.
func UnitFailed(ctx context.Context, index int, anchor string, err error, args ...any) {
	emit(ctx, slog.LevelWarn, "unit_failed", args, "index", index, "anchor", anchor, "error", err.Error())
}

// RunFinished logs the outcome of a conversion run.
func RunFinished(ctx context.Context, units, failed int, d time.Duration, args ...any) {
	emit(ctx, slog.LevelInfo, "run_finished", args, "units", units, "failed", failed, "duration_ms", d.Milliseconds())
}

// JobEvent logs an API job state change.
func JobEvent(jobID, status string, args ...any) {
	emit(context.Background(), slog.LevelInfo, "job_event", args, "job_id", jobID, "status", status)
}

// WebSocketEvent logs a progress client connecting or leaving.
func WebSocketEvent(event string, clients int, args ...any) {
	emit(context.Background(), slog.LevelInfo, "websocket_event", args, "event", event, "client_count", clients)
}

// ServerStartup logs the address a server listens on.
func ServerStartup(serverType, protocol, addr string, args ...any) {
	emit(context.Background(), slog.LevelInfo, "server_startup", args,
		"server_type", serverType, "protocol", protocol, "addr", addr)
}
