package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	slogmulti "github.com/samber/slog-multi"
)

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

var (
	mu       sync.RWMutex
	logger   *slog.Logger
	levelVar = new(slog.LevelVar)
	closer   io.Closer
)

func init() {
	levelVar.Set(slog.LevelInfo)
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: levelVar}))
}

// ParseLevel maps a config string ("debug", "INFO", ...) to a Level.
// Unknown values fall back to LevelInfo.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l Level) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func SetLevel(l Level) {
	levelVar.Set(l.slogLevel())
}

// Setup configures the global logger: text lines on stderr and, when file is
// non-empty, JSON lines appended to file. If the file cannot be opened the
// logger stays stderr-only and the error is returned.
func Setup(file string, l Level) error {
	SetLevel(l)

	stderrHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: levelVar})
	if file == "" {
		swap(slog.New(stderrHandler), nil)
		return nil
	}

	f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		swap(slog.New(stderrHandler), nil)
		Error("failed to open log file, using stderr only", err, "file", file)
		return err
	}

	fileHandler := slog.NewJSONHandler(f, &slog.HandlerOptions{Level: levelVar})
	swap(slog.New(slogmulti.Fanout(stderrHandler, fileHandler)), f)
	return nil
}

// SetupWithWriters points the logger at arbitrary writers. Used by tests.
func SetupWithWriters(text, json io.Writer, l Level) {
	SetLevel(l)
	handlers := []slog.Handler{slog.NewTextHandler(text, &slog.HandlerOptions{Level: levelVar})}
	if json != nil {
		handlers = append(handlers, slog.NewJSONHandler(json, &slog.HandlerOptions{Level: levelVar}))
	}
	swap(slog.New(slogmulti.Fanout(handlers...)), nil)
}

// Close releases the log file opened by Setup, if any.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if closer == nil {
		return nil
	}
	err := closer.Close()
	closer = nil
	return err
}

func swap(l *slog.Logger, c io.Closer) {
	mu.Lock()
	old := closer
	logger = l
	closer = c
	mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
}

func current() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Logger exposes the underlying slog logger for libraries that accept one.
func Logger() *slog.Logger {
	return current()
}

func Debug(msg string, kv ...any) {
	current().Debug(msg, kv...)
}

func Info(msg string, kv ...any) {
	current().Info(msg, kv...)
}

func Warn(msg string, kv ...any) {
	current().Warn(msg, kv...)
}

func Error(msg string, err error, kv ...any) {
	// Prepend error into key-value list.
	extended := append([]any{"err", err}, kv...)
	current().Error(msg, extended...)
}

// RedactURL hides the path and query of a URL for logging purposes, e.g.
// https://example.com/private.ics?token=abcd -> https://example.com/...(redacted)
func RedactURL(u string) string {
	const redactedSuffix = "/...(redacted)"

	i := strings.Index(u, "://")
	if i == -1 {
		return "url://...(redacted)"
	}
	rest := u[i+3:]
	if j := strings.IndexByte(rest, '/'); j >= 0 {
		rest = rest[:j]
	}
	if j := strings.IndexByte(rest, '?'); j >= 0 {
		rest = rest[:j]
	}
	return u[:i+3] + rest + redactedSuffix
}
