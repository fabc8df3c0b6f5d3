// Package logger defines the structured logging contract used across the
// client and its add-ons. The zero setup default is NoOpLogger.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"
)

// Field is a key-value pair attached to a log line.
type Field struct {
	Key   string
	Value any
}

// Logger is the minimal logging surface the client depends on.
type Logger interface {
	Debug(msg string)
	Info(msg string)
	Warn(msg string)
	Error(msg string)
	WithFields(fields ...Field) Logger
}

// Field constructors.

func String(key, value string) Field           { return Field{Key: key, Value: value} }
func Int(key string, value int) Field          { return Field{Key: key, Value: value} }
func Bool(key string, value bool) Field        { return Field{Key: key, Value: value} }
func Float64(key string, value float64) Field  { return Field{Key: key, Value: value} }
func Time(key string, value time.Time) Field   { return Field{Key: key, Value: value} }
func Err(value error) Field                    { return Field{Key: "error", Value: value} }
func Any(key string, value any) Field          { return Field{Key: key, Value: value} }

func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value}
}

// NoOpLogger discards everything. It is the default when no logger is set.
type NoOpLogger struct{}

func (l *NoOpLogger) Debug(string)               {}
func (l *NoOpLogger) Info(string)                {}
func (l *NoOpLogger) Warn(string)                {}
func (l *NoOpLogger) Error(string)               {}
func (l *NoOpLogger) WithFields(...Field) Logger { return l }

// BasicLogger writes plain-text lines through the standard library logger.
type BasicLogger struct {
	logger *log.Logger
	fields []Field
}

// NewBasicLogger creates a BasicLogger writing to stderr.
func NewBasicLogger() Logger {
	return NewBasicLoggerWithWriter(os.Stderr)
}

// NewBasicLoggerWithWriter creates a BasicLogger writing to w.
func NewBasicLoggerWithWriter(w io.Writer) Logger {
	return &BasicLogger{logger: log.New(w, "", log.LstdFlags)}
}

func (l *BasicLogger) log(level, msg string) {
	if len(l.fields) == 0 {
		l.logger.Printf("%s: %s", level, msg)
		return
	}
	parts := make([]string, len(l.fields))
	for i, f := range l.fields {
		parts[i] = fmt.Sprintf("%s=%v", f.Key, f.Value)
	}
	l.logger.Printf("%s: %s | %s", level, msg, strings.Join(parts, " "))
}

func (l *BasicLogger) Debug(msg string) { l.log("DEBUG", msg) }
func (l *BasicLogger) Info(msg string)  { l.log("INFO", msg) }
func (l *BasicLogger) Warn(msg string)  { l.log("WARN", msg) }
func (l *BasicLogger) Error(msg string) { l.log("ERROR", msg) }

func (l *BasicLogger) WithFields(fields ...Field) Logger {
	merged := make([]Field, 0, len(l.fields)+len(fields))
	merged = append(merged, l.fields...)
	merged = append(merged, fields...)
	return &BasicLogger{logger: l.logger, fields: merged}
}
