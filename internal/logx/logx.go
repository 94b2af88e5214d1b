// Package logx is a thin wrapper over zerolog implementing the
// LOG_LEVEL/VERBOSE/LOG_FOR configuration properties (spec.md §6),
// grounded on joeycumines-go-utilpkg/logiface-zerolog's pattern of
// driving zerolog from a small facade rather than importing it
// everywhere directly.
package logx

import (
	"io"
	"strings"

	"github.com/rs/zerolog"

	"github.com/statinf-otawa/otawa-sub004/internal/config"
)

// Logger wraps a zerolog.Logger plus the LOG_FOR processor-name filter.
type Logger struct {
	base   zerolog.Logger
	logFor string
}

// New builds a Logger honoring opts.LogLevel/Verbose/LogFor, writing to
// w (os.Stderr in normal operation).
func New(w io.Writer, opts config.Options) *Logger {
	level := levelFor(opts.LogLevel)
	if opts.Verbose && level > zerolog.DebugLevel {
		level = zerolog.DebugLevel
	}
	base := zerolog.New(w).Level(level).With().Timestamp().Logger()
	return &Logger{base: base, logFor: opts.LogFor}
}

func levelFor(l config.LogLevel) zerolog.Level {
	switch l {
	case config.LogNone:
		return zerolog.Disabled
	case config.LogProc:
		return zerolog.InfoLevel
	case config.LogFile, config.LogFun:
		return zerolog.DebugLevel
	case config.LogBlock, config.LogInst:
		return zerolog.TraceLevel
	default:
		return zerolog.InfoLevel
	}
}

// allowed reports whether logFor permits logging for the named
// processor: empty means every processor, otherwise a comma-separated
// allow-list.
func (l *Logger) allowed(processor string) bool {
	if l.logFor == "" || processor == "" {
		return true
	}
	for _, name := range strings.Split(l.logFor, ",") {
		if strings.TrimSpace(name) == processor {
			return true
		}
	}
	return false
}

// For returns an event-building sub-logger scoped to one processor
// name; callers chain .Info()/.Debug()/.Trace() off it as usual.
func (l *Logger) For(processor string) *ProcLogger {
	return &ProcLogger{l: l, processor: processor, allowed: l.allowed(processor)}
}

// ProcLogger is a Logger scoped to one processor name for LOG_FOR
// filtering.
type ProcLogger struct {
	l         *Logger
	processor string
	allowed   bool
}

var nop = zerolog.Nop()

func (p *ProcLogger) event(level zerolog.Level) *zerolog.Event {
	if !p.allowed {
		return nop.WithLevel(level)
	}
	return p.l.base.WithLevel(level).Str("processor", p.processor)
}

func (p *ProcLogger) Info() *zerolog.Event  { return p.event(zerolog.InfoLevel) }
func (p *ProcLogger) Debug() *zerolog.Event { return p.event(zerolog.DebugLevel) }
func (p *ProcLogger) Trace() *zerolog.Event { return p.event(zerolog.TraceLevel) }
func (p *ProcLogger) Warn() *zerolog.Event  { return p.event(zerolog.WarnLevel) }
func (p *ProcLogger) Error() *zerolog.Event { return p.event(zerolog.ErrorLevel) }

// Discard returns a Logger that drops everything, used by tests and
// callers that don't care about diagnostics.
func Discard() *Logger {
	return New(io.Discard, config.Options{LogLevel: config.LogNone})
}
