package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"golang.org/x/term"
)

type Config struct {
	Level  string
	Format string // "auto", "text", "json", "console"
	Output io.Writer
}

var once sync.Once

// Init installs the process-wide logger. Only the first call has effect.
func Init(cfg Config) {
	once.Do(func() {
		slog.SetDefault(New(cfg))
	})
}

// New builds a logger without touching the process default.
func New(cfg Config) *slog.Logger {
	return slog.New(newHandler(cfg))
}

func newHandler(cfg Config) slog.Handler {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	level := parseLevel(cfg.Level)
	tty := isTerminal(cfg.Output)
	switch cfg.Format {
	case "json":
		return slog.NewJSONHandler(cfg.Output, &slog.HandlerOptions{Level: level})
	case "text":
		return slog.NewTextHandler(cfg.Output, &slog.HandlerOptions{Level: level})
	case "console":
		return newConsoleHandler(cfg.Output, level, tty)
	default:
		// auto: humans get the console layout, pipes and files get logfmt
		if tty {
			return newConsoleHandler(cfg.Output, level, true)
		}
		return slog.NewTextHandler(cfg.Output, &slog.HandlerOptions{Level: level})
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	return ok && term.IsTerminal(int(f.Fd()))
}

func parseLevel(levelStr string) slog.Level {
	level, err := ParseLevel(levelStr)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

// ParseLevel maps a case-insensitive level name to its slog.Level. An empty
// name is info.
func ParseLevel(levelStr string) (slog.Level, error) {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", levelStr)
	}
}

// consoleHandler writes one line per record for a human reader:
//
//	12:00:00 INFO  Starting forwarder  listen=0.0.0.0:11111 target=127.0.0.1:22222
//
// Attributes given to WithAttrs are rendered once and kept as text.
type consoleHandler struct {
	mu    *sync.Mutex
	w     io.Writer
	level slog.Level
	color bool
	pre   string
	group string
}

func newConsoleHandler(w io.Writer, level slog.Level, color bool) *consoleHandler {
	return &consoleHandler{mu: &sync.Mutex{}, w: w, level: level, color: color}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *consoleHandler) Handle(_ context.Context, r slog.Record) error {
	tag := levelTag(r.Level)
	if h.color {
		tag = colorize(r.Level, tag)
	}

	var b strings.Builder
	b.WriteString(r.Time.Format(time.TimeOnly))
	b.WriteByte(' ')
	b.WriteString(tag)
	b.WriteByte(' ')
	b.WriteString(r.Message)
	b.WriteString(h.pre)
	r.Attrs(func(a slog.Attr) bool {
		appendAttr(&b, h.group, a)
		return true
	})
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	c := *h
	var b strings.Builder
	for _, a := range attrs {
		appendAttr(&b, h.group, a)
	}
	c.pre = h.pre + b.String()
	return &c
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := *h
	c.group = joinKey(h.group, name)
	return &c
}

func levelTag(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return "ERROR"
	case l >= slog.LevelWarn:
		return "WARN "
	case l >= slog.LevelInfo:
		return "INFO "
	default:
		return "DEBUG"
	}
}

var (
	errorColor = forced(color.New(color.FgRed, color.Bold))
	warnColor  = forced(color.New(color.FgYellow))
	infoColor  = forced(color.New(color.FgGreen))
	debugColor = forced(color.New(color.FgHiBlack))
)

// forced ignores color.NoColor; the handler already decided the writer is a terminal.
func forced(c *color.Color) *color.Color {
	c.EnableColor()
	return c
}

func colorize(l slog.Level, tag string) string {
	switch {
	case l >= slog.LevelError:
		return errorColor.Sprint(tag)
	case l >= slog.LevelWarn:
		return warnColor.Sprint(tag)
	case l >= slog.LevelInfo:
		return infoColor.Sprint(tag)
	default:
		return debugColor.Sprint(tag)
	}
}

// appendAttr renders a as "  key=value", flattening groups into dotted keys.
func appendAttr(b *strings.Builder, group string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		sub := group
		if a.Key != "" {
			sub = joinKey(group, a.Key)
		}
		for _, ga := range a.Value.Group() {
			appendAttr(b, sub, ga)
		}
		return
	}
	b.WriteString("  ")
	b.WriteString(joinKey(group, a.Key))
	b.WriteByte('=')
	b.WriteString(quoteIfNeeded(a.Value.String()))
}

func formatAttr(group string, a slog.Attr) string {
	var b strings.Builder
	appendAttr(&b, group, a)
	return b.String()
}

func joinKey(group, key string) string {
	if group == "" {
		return key
	}
	return group + "." + key
}

func quoteIfNeeded(s string) string {
	if s == "" || strings.ContainsAny(s, " \t\n\"=") {
		return fmt.Sprintf("%q", s)
	}
	return s
}
