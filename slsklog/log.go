// Package slsklog is a small leveled, structured logger in the style
// geth's own log package uses throughout the teacher codebase:
// Info("message", "key", value, ...), with a caller-derived location and
// colorized level tags when attached to a terminal.
package slsklog

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/go-stack/stack"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// Lvl is a log severity level, ordered least to most severe.
type Lvl int

const (
	LvlDebug Lvl = iota
	LvlInfo
	LvlWarn
	LvlError
)

func (l Lvl) String() string {
	switch l {
	case LvlDebug:
		return "DEBUG"
	case LvlInfo:
		return "INFO"
	case LvlWarn:
		return "WARN"
	case LvlError:
		return "ERROR"
	default:
		return "?????"
	}
}

var levelColor = map[Lvl]*color.Color{
	LvlDebug: color.New(color.FgHiBlack),
	LvlInfo:  color.New(color.FgGreen),
	LvlWarn:  color.New(color.FgYellow),
	LvlError: color.New(color.FgRed),
}

// Logger emits leveled, structured lines carrying a fixed set of
// key-value context pairs established via New.
type Logger struct {
	ctx []interface{}
}

var (
	mu       sync.Mutex
	out      io.Writer
	minLevel = LvlInfo
	colorize bool
)

func init() {
	if isatty.IsTerminal(os.Stderr.Fd()) {
		out = colorable.NewColorableStderr()
		colorize = true
	} else {
		out = os.Stderr
		colorize = false
	}
}

// SetOutput redirects every logger's output, e.g. to a file during
// tests or when daemonized.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
	colorize = false
}

// SetLevel suppresses any log line below lvl.
func SetLevel(lvl Lvl) {
	mu.Lock()
	defer mu.Unlock()
	minLevel = lvl
}

// Root is the package-level logger with no fixed context.
var Root = &Logger{}

// New returns a child logger with ctx appended to every line it emits,
// e.g. slsklog.New("username", "bob", "kind", slsk.P2P).
func New(ctx ...interface{}) *Logger {
	return &Logger{ctx: ctx}
}

func (l *Logger) child(ctx ...interface{}) *Logger {
	merged := make([]interface{}, 0, len(l.ctx)+len(ctx))
	merged = append(merged, l.ctx...)
	merged = append(merged, ctx...)
	return &Logger{ctx: merged}
}

func (l *Logger) New(ctx ...interface{}) *Logger { return l.child(ctx...) }

func (l *Logger) Debug(msg string, ctx ...interface{}) { l.write(LvlDebug, msg, ctx) }
func (l *Logger) Info(msg string, ctx ...interface{})  { l.write(LvlInfo, msg, ctx) }
func (l *Logger) Warn(msg string, ctx ...interface{})  { l.write(LvlWarn, msg, ctx) }
func (l *Logger) Error(msg string, ctx ...interface{}) { l.write(LvlError, msg, ctx) }

func Debug(msg string, ctx ...interface{}) { Root.write(LvlDebug, msg, ctx) }
func Info(msg string, ctx ...interface{})  { Root.write(LvlInfo, msg, ctx) }
func Warn(msg string, ctx ...interface{})  { Root.write(LvlWarn, msg, ctx) }
func Error(msg string, ctx ...interface{}) { Root.write(LvlError, msg, ctx) }

func (l *Logger) write(lvl Lvl, msg string, kv []interface{}) {
	mu.Lock()
	defer mu.Unlock()
	if lvl < minLevel {
		return
	}

	var b strings.Builder
	ts := time.Now().Format("15:04:05.000")
	tag := lvl.String()
	if colorize {
		tag = levelColor[lvl].Sprint(tag)
	}
	fmt.Fprintf(&b, "%s [%s] %s", ts, tag, msg)

	all := make([]interface{}, 0, len(l.ctx)+len(kv))
	all = append(all, l.ctx...)
	all = append(all, kv...)
	for i := 0; i+1 < len(all); i += 2 {
		fmt.Fprintf(&b, " %v=%v", all[i], all[i+1])
	}
	if caller := callerLocation(); caller != "" {
		fmt.Fprintf(&b, " caller=%s", caller)
	}
	b.WriteByte('\n')
	io.WriteString(out, b.String())
}

// callerLocation walks past this package's own frames to find the first
// call site outside slsklog, mirroring the teacher's use of go-stack for
// a compact file:line annotation instead of a full runtime stack trace.
func callerLocation() string {
	trace := stack.Trace().TrimRuntime()
	for _, c := range trace {
		s := fmt.Sprintf("%+v", c)
		if !strings.Contains(s, "slsklog") {
			return s
		}
	}
	return ""
}
