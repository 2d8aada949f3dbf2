// Package hostlog implements the launcher's structured logger (spec
// component J). It is a trimmed adaptation of the teacher's
// ingest/log logger: leveled, RFC5424-structured, safe for concurrent
// use from every syscall worker and enclave driver goroutine.
package hostlog

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/crewjam/rfc5424"
)

// Level is a logging severity, ordered low to high.
type Level int

const (
	OFF Level = iota
	DEBUG
	INFO
	WARN
	ERROR
	CRITICAL
	FATAL
)

func (l Level) String() string {
	switch l {
	case OFF:
		return "OFF"
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case CRITICAL:
		return "CRITICAL"
	case FATAL:
		return "FATAL"
	}
	return "UNKNOWN"
}

func (l Level) priority() rfc5424.Priority {
	switch l {
	case DEBUG:
		return rfc5424.User | rfc5424.Debug
	case INFO:
		return rfc5424.User | rfc5424.Info
	case WARN:
		return rfc5424.User | rfc5424.Warning
	case ERROR:
		return rfc5424.User | rfc5424.Error
	case CRITICAL:
		return rfc5424.User | rfc5424.Crit
	case FATAL:
		return rfc5424.User | rfc5424.Emergency
	}
	return rfc5424.User | rfc5424.Debug
}

// ErrNotOpen is returned by any operation on a closed Logger.
var ErrNotOpen = errors.New("hostlog: logger is not open")

// Logger is a leveled, structured logger writing RFC5424-framed lines to
// one or more writers. The launcher uses a single process-wide instance,
// passed explicitly into every constructor -- never a package global.
type Logger struct {
	mtx      sync.Mutex
	wtrs     []io.WriteCloser
	lvl      Level
	hot      bool
	appname  string
	hostname string
}

// New creates a Logger at level INFO writing to wtr.
func New(wtr io.WriteCloser) *Logger {
	l := &Logger{
		wtrs: []io.WriteCloser{wtr},
		lvl:  INFO,
		hot:  true,
	}
	l.hostname, _ = os.Hostname()
	l.appname = "Launcher"
	return l
}

// NewStderr creates a Logger writing to os.Stderr, matching the
// teacher's preferred default sink for a foreground process.
func NewStderr() *Logger {
	return New(nopCloser{os.Stderr})
}

// SetLevel changes the minimum level that will be emitted.
func (l *Logger) SetLevel(lvl Level) {
	l.mtx.Lock()
	l.lvl = lvl
	l.mtx.Unlock()
}

func (l *Logger) ready() error {
	if !l.hot || len(l.wtrs) == 0 {
		return ErrNotOpen
	}
	return nil
}

// KV builds a structured key-value field for a log line.
func KV(name string, value interface{}) rfc5424.SDParam {
	var v string
	switch t := value.(type) {
	case string:
		v = t
	default:
		v = fmt.Sprintf("%v", value)
	}
	return rfc5424.SDParam{Name: name, Value: v}
}

// KVErr is shorthand for KV("error", err).
func KVErr(err error) rfc5424.SDParam {
	return KV("error", err)
}

func (l *Logger) log(lvl Level, msg string, sds ...rfc5424.SDParam) {
	if lvl < l.lvl || l.lvl == OFF {
		return
	}
	ts := time.Now()
	m := rfc5424.Message{
		Priority:  lvl.priority(),
		Timestamp: ts,
		Hostname:  l.hostname,
		AppName:   l.appname,
		Message:   []byte(msg),
	}
	if len(sds) > 0 {
		m.StructuredData = []rfc5424.StructuredData{{ID: "gw@1", Parameters: sds}}
	}
	b, err := m.MarshalBinary()
	if err != nil {
		b = []byte(fmt.Sprintf("%s [%s] %s", ts.Format(time.RFC3339), lvl, msg))
	}
	line := strings.TrimRight(string(b), "\n\r")

	l.mtx.Lock()
	defer l.mtx.Unlock()
	if l.ready() != nil {
		return
	}
	for _, w := range l.wtrs {
		io.WriteString(w, line)
		io.WriteString(w, "\n")
	}
}

func (l *Logger) Debug(msg string, sds ...rfc5424.SDParam) { l.log(DEBUG, msg, sds...) }
func (l *Logger) Info(msg string, sds ...rfc5424.SDParam)  { l.log(INFO, msg, sds...) }
func (l *Logger) Warn(msg string, sds ...rfc5424.SDParam)  { l.log(WARN, msg, sds...) }
func (l *Logger) Error(msg string, sds ...rfc5424.SDParam) { l.log(ERROR, msg, sds...) }

// Fatal logs at FATAL and exits with code 1, matching the "[ Launcher ]
// fatal" contract spec.md §7 requires for configuration errors.
func (l *Logger) Fatal(msg string, sds ...rfc5424.SDParam) {
	l.FatalCode(1, msg, sds...)
}

// FatalCode logs at FATAL and exits with the given code. Used when the
// enclave's own TERMINATE exit code must be the process exit code.
func (l *Logger) FatalCode(code int, msg string, sds ...rfc5424.SDParam) {
	l.log(FATAL, msg, sds...)
	os.Exit(code)
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
