package mqttc

import (
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"
)

// LogLevel orders log severities. Messages below the configured level are
// discarded.
type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
	// LogLevelNone turns logging off entirely.
	LogLevelNone
)

var logLevelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR", "NONE"}

// String returns the upper-case name of the level.
func (l LogLevel) String() string {
	if l < LogLevelDebug || l > LogLevelNone {
		return "UNKNOWN"
	}
	return logLevelNames[l]
}

// LogFields carries structured key-value context for a log line.
type LogFields map[string]any

// Logger is the logging hook the client emits through. The zero
// configuration uses NoOpLogger, so logging costs nothing unless asked for.
type Logger interface {
	Debug(msg string, fields LogFields)
	Info(msg string, fields LogFields)
	Warn(msg string, fields LogFields)
	Error(msg string, fields LogFields)

	// WithFields returns a logger that attaches the given fields to every
	// message it emits. Call-site fields shadow attached ones.
	WithFields(fields LogFields) Logger

	Level() LogLevel
	SetLevel(level LogLevel)
}

// NoOpLogger discards everything.
type NoOpLogger struct {
	level LogLevel
}

// NewNoOpLogger returns a logger that drops all output.
func NewNoOpLogger() *NoOpLogger {
	return &NoOpLogger{level: LogLevelNone}
}

func (n *NoOpLogger) Debug(string, LogFields) {}
func (n *NoOpLogger) Info(string, LogFields)  {}
func (n *NoOpLogger) Warn(string, LogFields)  {}
func (n *NoOpLogger) Error(string, LogFields) {}

func (n *NoOpLogger) WithFields(LogFields) Logger { return n }

func (n *NoOpLogger) Level() LogLevel         { return n.level }
func (n *NoOpLogger) SetLevel(level LogLevel) { n.level = level }

// StdLogger writes leveled lines through the standard library log package.
// Fields render as key=value pairs in sorted key order, so output is stable
// across runs.
type StdLogger struct {
	out    *log.Logger
	level  LogLevel
	fields LogFields
}

// NewStdLogger builds a logger writing to w, or to stderr when w is nil.
func NewStdLogger(w io.Writer, level LogLevel) *StdLogger {
	if w == nil {
		w = os.Stderr
	}
	return &StdLogger{
		out:   log.New(w, "", log.LstdFlags),
		level: level,
	}
}

func (s *StdLogger) Debug(msg string, fields LogFields) { s.emit(LogLevelDebug, msg, fields) }
func (s *StdLogger) Info(msg string, fields LogFields)  { s.emit(LogLevelInfo, msg, fields) }
func (s *StdLogger) Warn(msg string, fields LogFields)  { s.emit(LogLevelWarn, msg, fields) }
func (s *StdLogger) Error(msg string, fields LogFields) { s.emit(LogLevelError, msg, fields) }

// WithFields returns a child logger carrying the merged field set. The
// parent is not modified.
func (s *StdLogger) WithFields(fields LogFields) Logger {
	merged := make(LogFields, len(s.fields)+len(fields))
	for k, v := range s.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &StdLogger{out: s.out, level: s.level, fields: merged}
}

func (s *StdLogger) Level() LogLevel         { return s.level }
func (s *StdLogger) SetLevel(level LogLevel) { s.level = level }

func (s *StdLogger) emit(level LogLevel, msg string, fields LogFields) {
	if level < s.level {
		return
	}

	var b strings.Builder
	b.WriteByte('[')
	b.WriteString(level.String())
	b.WriteString("] ")
	b.WriteString(msg)

	keys := make([]string, 0, len(s.fields)+len(fields))
	for k := range s.fields {
		if _, shadowed := fields[k]; !shadowed {
			keys = append(keys, k)
		}
	}
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v, ok := fields[k]
		if !ok {
			v = s.fields[k]
		}
		fmt.Fprintf(&b, " %s=%v", k, v)
	}

	s.out.Print(b.String())
}

// Field names used by the client's own log output.
const (
	LogFieldClientID   = "client_id"
	LogFieldServer     = "server"
	LogFieldTopic      = "topic"
	LogFieldPacketID   = "packet_id"
	LogFieldPacketType = "packet_type"
	LogFieldQoS        = "qos"
	LogFieldReasonCode = "reason_code"
	LogFieldError      = "error"
	LogFieldAttempt    = "attempt"
	LogFieldDuration   = "duration"
	LogFieldBytes      = "bytes"
)
