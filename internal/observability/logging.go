// Package observability provides the structured logging and metrics
// surface shared by every component (A-H): a slog-based logger with
// request/session correlation and secret redaction, and a Prometheus
// metrics registry backing the §6 metrics snapshot.
package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
)

// Logger wraps log/slog with context-derived correlation fields and
// redaction of API keys/tokens/secrets before they reach a sink.
type Logger struct {
	logger  *slog.Logger
	redacts []*regexp.Regexp
}

// LogConfig configures logger construction.
type LogConfig struct {
	// Level is one of "debug", "info", "warn", "error".
	Level string
	// Format is "json" or "text".
	Format string
	// Output defaults to os.Stdout.
	Output io.Writer
}

type ctxKey string

const (
	RequestIDKey ctxKey = "request_id"
	SessionIDKey ctxKey = "session_id"
)

var defaultRedactPatterns = []string{
	`(?i)(api[_-]?key|apikey)[\s:=]+["']?([a-zA-Z0-9_\-]{16,})["']?`,
	`(?i)(bearer|token)[\s:]+([a-zA-Z0-9_\-.]{16,})`,
	`(?i)(secret|password|passwd|pwd)[\s:=]+["']?([^\s"']{8,})["']?`,
	`sk-ant-[a-zA-Z0-9_-]{20,}`,
	`sk-[a-zA-Z0-9]{20,}`,
}

// NewLogger builds a Logger from config, defaulting Output to stdout,
// Level to "info", and Format to "json".
func NewLogger(cfg LogConfig) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	if cfg.Format == "" {
		cfg.Format = "json"
	}

	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "text" {
		handler = slog.NewTextHandler(cfg.Output, opts)
	} else {
		handler = slog.NewJSONHandler(cfg.Output, opts)
	}

	redacts := make([]*regexp.Regexp, 0, len(defaultRedactPatterns))
	for _, pattern := range defaultRedactPatterns {
		if re, err := regexp.Compile(pattern); err == nil {
			redacts = append(redacts, re)
		}
	}

	return &Logger{logger: slog.New(handler), redacts: redacts}
}

// WithContext returns a logger that attaches request/session correlation
// fields pulled from ctx to every subsequent record.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	attrs := make([]any, 0, 4)
	if v, ok := ctx.Value(RequestIDKey).(string); ok && v != "" {
		attrs = append(attrs, "request_id", v)
	}
	if v, ok := ctx.Value(SessionIDKey).(string); ok && v != "" {
		attrs = append(attrs, "session_id", v)
	}
	if len(attrs) == 0 {
		return l
	}
	return &Logger{logger: l.logger.With(attrs...), redacts: l.redacts}
}

func (l *Logger) redact(args []any) []any {
	out := make([]any, len(args))
	copy(out, args)
	for i, a := range out {
		if s, ok := a.(string); ok {
			for _, re := range l.redacts {
				if re.MatchString(s) {
					out[i] = re.ReplaceAllString(s, "[REDACTED]")
				}
			}
		}
	}
	return out
}

func (l *Logger) Debug(msg string, args ...any) { l.logger.Debug(msg, l.redact(args)...) }
func (l *Logger) Info(msg string, args ...any)   { l.logger.Info(msg, l.redact(args)...) }
func (l *Logger) Warn(msg string, args ...any)   { l.logger.Warn(msg, l.redact(args)...) }
func (l *Logger) Error(msg string, args ...any)  { l.logger.Error(msg, l.redact(args)...) }

// Slog exposes the underlying *slog.Logger for libraries that want it
// directly (e.g. http.Server's ErrorLog adapter).
func (l *Logger) Slog() *slog.Logger { return l.logger }
