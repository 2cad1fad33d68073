package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// Leveled process-wide logger used by the article service.
// - Debug/Info/Warn/Error/Fatal variants and Init(level)
// - With(key, value, ...) prefixes key=value context onto a line

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

var (
	mu     sync.RWMutex
	logger *log.Logger = log.New(os.Stdout, "", 0)
	level  Level       = LevelInfo
)

// Init sets the global log level (case-insensitive: debug, info, warn, error, fatal).
// Call early during startup. Default level is Info.
func Init(l string) {
	mu.Lock()
	defer mu.Unlock()
	level = parseLevel(l)
}

func parseLevel(l string) Level {
	switch strings.ToLower(strings.TrimSpace(l)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	case "fatal":
		return LevelFatal
	}
	return LevelInfo
}

// SetOutput redirects log output; tests use it to capture lines.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	logger = log.New(w, "", 0)
}

func header(lvl string) string {
	return fmt.Sprintf("%s [%s] ", time.Now().Format(time.RFC3339), strings.ToUpper(lvl))
}

func shouldLog(l Level) bool {
	mu.RLock()
	defer mu.RUnlock()
	return l >= level
}

func output(l Level, name, prefix, format string, v ...interface{}) {
	if !shouldLog(l) {
		return
	}
	mu.RLock()
	out := logger
	mu.RUnlock()
	out.Print(header(name) + prefix + fmt.Sprintf(format, v...))
}

func Debugf(format string, v ...interface{}) { output(LevelDebug, "debug", "", format, v...) }
func Infof(format string, v ...interface{})  { output(LevelInfo, "info", "", format, v...) }
func Warnf(format string, v ...interface{})  { output(LevelWarn, "warn", "", format, v...) }
func Errorf(format string, v ...interface{}) { output(LevelError, "error", "", format, v...) }

func Fatalf(format string, v ...interface{}) {
	output(LevelFatal, "fatal", "", format, v...)
	os.Exit(1)
}

// Debug/Info/Warn/Error helpers that accept a single string
func Debug(v string) { Debugf("%s", v) }
func Info(v string)  { Infof("%s", v) }
func Warn(v string)  { Warnf("%s", v) }
func Error(v string) { Errorf("%s", v) }

// LevelString returns the current level as text.
func LevelString() string {
	mu.RLock()
	defer mu.RUnlock()
	switch level {
	case LevelDebug:
		return "debug"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	case LevelFatal:
		return "fatal"
	}
	return "info"
}

// Entry carries key=value context for a group of log lines.
type Entry struct {
	prefix string
}

// With returns an Entry whose lines start with the given key/value pairs.
// A trailing key without value is logged with an empty value.
func With(kv ...interface{}) *Entry {
	return (&Entry{}).With(kv...)
}

func (e *Entry) With(kv ...interface{}) *Entry {
	var b strings.Builder
	b.WriteString(e.prefix)
	for i := 0; i < len(kv); i += 2 {
		var val interface{} = ""
		if i+1 < len(kv) {
			val = kv[i+1]
		}
		fmt.Fprintf(&b, "%v=%v ", kv[i], val)
	}
	return &Entry{prefix: b.String()}
}

func (e *Entry) Debugf(format string, v ...interface{}) {
	output(LevelDebug, "debug", e.prefix, format, v...)
}

func (e *Entry) Infof(format string, v ...interface{}) {
	output(LevelInfo, "info", e.prefix, format, v...)
}

func (e *Entry) Warnf(format string, v ...interface{}) {
	output(LevelWarn, "warn", e.prefix, format, v...)
}

func (e *Entry) Errorf(format string, v ...interface{}) {
	output(LevelError, "error", e.prefix, format, v...)
}
