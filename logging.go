package gekko2d

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync/atomic"
)

// Logger is the engine's logging surface. It is a superset of the logger
// the render packages accept, so any Logger can be handed to them.
type Logger interface {
	DebugEnabled() bool
	SetDebug(enabled bool)
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// DefaultLogger writes "[prefix] LEVEL: message" lines. Debug and info go
// to out, warnings and errors to errOut.
type DefaultLogger struct {
	debug  atomic.Bool
	prefix string
	out    *log.Logger
	errOut *log.Logger
}

func NewDefaultLogger(prefix string, debug bool) *DefaultLogger {
	return NewDefaultLoggerTo(os.Stdout, os.Stderr, prefix, debug)
}

// NewDefaultLoggerTo is NewDefaultLogger with explicit writers.
func NewDefaultLoggerTo(out, errOut io.Writer, prefix string, debug bool) *DefaultLogger {
	flags := log.LstdFlags | log.Lmicroseconds
	l := &DefaultLogger{
		prefix: prefix,
		out:    log.New(out, "", flags),
		errOut: log.New(errOut, "", flags),
	}
	l.debug.Store(debug)
	return l
}

func (l *DefaultLogger) DebugEnabled() bool    { return l.debug.Load() }
func (l *DefaultLogger) SetDebug(enabled bool) { l.debug.Store(enabled) }

func (l *DefaultLogger) line(level, format string, args ...any) string {
	msg := fmt.Sprintf(format, args...)
	if l.prefix == "" {
		return level + ": " + msg
	}
	return "[" + l.prefix + "] " + level + ": " + msg
}

func (l *DefaultLogger) Debugf(format string, args ...any) {
	if l.debug.Load() {
		l.out.Print(l.line("DEBUG", format, args...))
	}
}

func (l *DefaultLogger) Infof(format string, args ...any) {
	l.out.Print(l.line("INFO", format, args...))
}

func (l *DefaultLogger) Warnf(format string, args ...any) {
	l.errOut.Print(l.line("WARN", format, args...))
}

func (l *DefaultLogger) Errorf(format string, args ...any) {
	l.errOut.Print(l.line("ERROR", format, args...))
}

// LoggingModule installs a DefaultLogger resource. Config, when present,
// can turn debug output on.
type LoggingModule struct {
	Prefix string
	Debug  bool
}

func (m LoggingModule) Install(app *App, cmd *Commands) {
	debug := m.Debug
	if cfg := Resource[Config](app); cfg != nil {
		debug = debug || cfg.Render.Debug
	}
	cmd.AddResources(NewDefaultLogger(m.Prefix, debug))
}

type nopLogger struct{}

func NewNopLogger() Logger { return nopLogger{} }

func (nopLogger) DebugEnabled() bool             { return false }
func (nopLogger) SetDebug(bool)                  {}
func (nopLogger) Debugf(format string, _ ...any) {}
func (nopLogger) Infof(format string, _ ...any)  {}
func (nopLogger) Warnf(format string, _ ...any)  {}
func (nopLogger) Errorf(format string, _ ...any) {}

// Logger returns the installed logger, or a no-op logger. Never nil.
func (app *App) Logger() Logger {
	if app == nil {
		return NewNopLogger()
	}
	if l := Resource[DefaultLogger](app); l != nil {
		return l
	}
	for _, r := range app.resources {
		if l, ok := r.(Logger); ok {
			return l
		}
	}
	return NewNopLogger()
}
