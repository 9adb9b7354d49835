// Package log implements a small leveled, colorized logger in the
// klaytn/go-ethereum idiom: a package-level default Logger, colored level
// prefixes via fatih/color, caller frames via go-stack/stack, and a
// spew-backed dump helper for ad-hoc object inspection during debugging.
package log

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/fatih/color"
	"github.com/go-stack/stack"
	"github.com/mattn/go-colorable"
)

// Level is a logging verbosity level, ordered least to most verbose.
type Level int

const (
	LvlError Level = iota
	LvlWarn
	LvlInfo
	LvlDebug
	LvlTrace
)

var lvlNames = map[Level]string{
	LvlError: "ERROR",
	LvlWarn:  "WARN ",
	LvlInfo:  "INFO ",
	LvlDebug: "DEBUG",
	LvlTrace: "TRACE",
}

var lvlColors = map[Level]*color.Color{
	LvlError: color.New(color.FgRed, color.Bold),
	LvlWarn:  color.New(color.FgYellow),
	LvlInfo:  color.New(color.FgGreen),
	LvlDebug: color.New(color.FgCyan),
	LvlTrace: color.New(color.FgMagenta),
}

// Logger writes leveled, contextual log lines, the way a Node's workers
// (server, client, miner, ...) each tag their output with their own name.
type Logger struct {
	mu     sync.Mutex
	out    io.Writer
	lvl    Level
	ctx    []interface{}
	useCol bool
}

var root = New()

// New creates a Logger writing to stderr through go-colorable, so ANSI
// sequences render correctly even when wrapped (e.g. under a Windows
// console or when piped).
func New(ctx ...interface{}) *Logger {
	return &Logger{
		out:    colorable.NewColorableStderr(),
		lvl:    LvlInfo,
		ctx:    ctx,
		useCol: true,
	}
}

// Root returns the package-level default Logger.
func Root() *Logger { return root }

// SetLevel adjusts the minimum level that will be emitted.
func (l *Logger) SetLevel(lvl Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lvl = lvl
}

// New returns a child logger with additional persistent context fields,
// mirroring klaytn's `log.New("module", "p2p")` pattern used by every
// subsystem to tag its own lines.
func (l *Logger) New(ctx ...interface{}) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	merged := make([]interface{}, 0, len(l.ctx)+len(ctx))
	merged = append(merged, l.ctx...)
	merged = append(merged, ctx...)
	return &Logger{out: l.out, lvl: l.lvl, ctx: merged, useCol: l.useCol}
}

func (l *Logger) write(lvl Level, skip int, msg string, extra ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if lvl > l.lvl {
		return
	}

	call := stack.Caller(skip)
	ts := time.Now().Format("15:04:05.000")
	prefix := lvlColors[lvl].Sprintf("[%s]", lvlNames[lvl])

	ctx := formatCtx(append(append([]interface{}{}, l.ctx...), extra...))
	fmt.Fprintf(l.out, "%s %s %s %+v%s\n", ts, prefix, msg, call, ctx)
}

func formatCtx(ctx []interface{}) string {
	if len(ctx) == 0 {
		return ""
	}
	s := ""
	for i := 0; i+1 < len(ctx); i += 2 {
		s += fmt.Sprintf(" %v=%v", ctx[i], ctx[i+1])
	}
	return s
}

func (l *Logger) Error(msg string, ctx ...interface{}) { l.write(LvlError, 2, msg, ctx...) }
func (l *Logger) Warn(msg string, ctx ...interface{})  { l.write(LvlWarn, 2, msg, ctx...) }
func (l *Logger) Info(msg string, ctx ...interface{})  { l.write(LvlInfo, 2, msg, ctx...) }
func (l *Logger) Debug(msg string, ctx ...interface{}) { l.write(LvlDebug, 2, msg, ctx...) }
func (l *Logger) Trace(msg string, ctx ...interface{}) { l.write(LvlTrace, 2, msg, ctx...) }

// Package-level convenience wrappers over the root logger, the way
// klaytn's log package exposes both Logger methods and bare functions.
func Error(msg string, ctx ...interface{}) { root.write(LvlError, 2, msg, ctx...) }
func Warn(msg string, ctx ...interface{})  { root.write(LvlWarn, 2, msg, ctx...) }
func Info(msg string, ctx ...interface{})  { root.write(LvlInfo, 2, msg, ctx...) }
func Debug(msg string, ctx ...interface{}) { root.write(LvlDebug, 2, msg, ctx...) }
func Trace(msg string, ctx ...interface{}) { root.write(LvlTrace, 2, msg, ctx...) }

// SetLevel sets the verbosity of the root logger. Node's VERBOSE config
// field feeds this at startup.
func SetLevel(lvl Level) { root.SetLevel(lvl) }

// VerbosityFromInt maps the CLI --verbosity integer (0-4) to a Level,
// clamping out-of-range values.
func VerbosityFromInt(v int) Level {
	switch {
	case v <= 0:
		return LvlError
	case v == 1:
		return LvlWarn
	case v == 2:
		return LvlInfo
	case v == 3:
		return LvlDebug
	default:
		return LvlTrace
	}
}

// Dump pretty-prints a value to stderr for ad-hoc debugging, e.g. a
// malformed wire envelope a developer wants to eyeball mid-session.
func Dump(v interface{}) {
	spew.Fdump(os.Stderr, v)
}
