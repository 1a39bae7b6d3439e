package logger

import (
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
)

type LogLevel string

const (
	InfoLevel  LogLevel = "INFO"
	ErrorLevel LogLevel = "ERROR"
	DebugLevel LogLevel = "DEBUG"
	WarnLevel  LogLevel = "WARN"
)

var (
	emailRegex  = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	tokenRegex  = regexp.MustCompile(`eyJ[^\s"]+`)
	userIDRegex = regexp.MustCompile(`\buser_id\s*=\s*[0-9a-fA-F-]+`)
)

// level is shared by every Logger so SetLevel applies process-wide.
var level = new(slog.LevelVar)

// Logger is a centralized structured logger
type Logger struct {
	out *slog.Logger
}

// New creates a new Logger writing JSON lines to stdout.
func New() *Logger {
	return NewWithWriter(os.Stdout)
}

// NewWithWriter creates a Logger writing to w.
func NewWithWriter(w io.Writer) *Logger {
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Value.Kind() == slog.KindString {
				a.Value = slog.StringValue(Anonymize(a.Value.String()))
			}
			return a
		},
	})
	return &Logger{out: slog.New(h)}
}

// SetLevel changes the minimum level for all loggers. Unknown names fall back to INFO.
func SetLevel(name string) {
	switch LogLevel(strings.ToUpper(name)) {
	case DebugLevel:
		level.Set(slog.LevelDebug)
	case WarnLevel:
		level.Set(slog.LevelWarn)
	case ErrorLevel:
		level.Set(slog.LevelError)
	default:
		level.Set(slog.LevelInfo)
	}
}

// Anonymize replaces sensitive information in logs (emails, tokens, IDs)
func Anonymize(s string) string {
	s = emailRegex.ReplaceAllString(s, "[REDACTED_EMAIL]")
	s = tokenRegex.ReplaceAllString(s, "[REDACTED_TOKEN]")
	s = userIDRegex.ReplaceAllString(s, "user_id=[USER_ID]")
	return s
}

// --- Convenient methods ---
func (l *Logger) Info(module, msg string, attrs ...any) {
	l.out.Info(msg, append([]any{"module", module}, attrs...)...)
}

func (l *Logger) Debug(module, msg string, attrs ...any) {
	l.out.Debug(msg, append([]any{"module", module}, attrs...)...)
}

func (l *Logger) Warn(module, msg string, attrs ...any) {
	l.out.Warn(msg, append([]any{"module", module}, attrs...)...)
}

func (l *Logger) Error(module, msg string, err error, attrs ...any) {
	args := []any{"module", module}
	if err != nil {
		args = append(args, "error", err.Error())
	}
	l.out.Error(msg, append(args, attrs...)...)
}
