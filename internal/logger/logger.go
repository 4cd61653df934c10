package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Fields mirrors logrus.Fields so callers don't import logrus directly.
type Fields map[string]interface{}

// Log wraps logrus.Logger.
type Log struct {
	*logrus.Logger
}

// Entry wraps logrus.Entry.
type Entry struct {
	*logrus.Entry
}

var (
	globalMu     sync.Mutex
	globalLogger *Log
)

// New returns a JSON logger on stderr at the LOG_LEVEL level (info by default).
func New() *Log {
	l := &Log{Logger: logrus.New()}
	l.Logger.SetOutput(os.Stderr)
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = "info"
	}
	if lvl, err := logrus.ParseLevel(strings.ToLower(level)); err == nil {
		l.Logger.SetLevel(lvl)
	} else {
		l.Logger.SetLevel(logrus.InfoLevel)
	}
	l.Logger.SetFormatter(jsonFormatter())
	return l
}

// Discard returns a logger that writes nowhere.
func Discard() *Log {
	l := &Log{Logger: logrus.New()}
	l.Logger.SetOutput(io.Discard)
	return l
}

func GetLogger() *Log {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		globalLogger = New()
	}
	return globalLogger
}

func SetLogger(l *Log) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = l
}

func (l *Log) WithComponent(component string) *Entry {
	return &Entry{Entry: l.Logger.WithField("component", component)}
}

func (l *Log) WithFields(fields Fields) *Entry {
	return &Entry{Entry: l.Logger.WithFields(logrus.Fields(fields))}
}

func (l *Log) WithError(err error) *Entry {
	return &Entry{Entry: l.Logger.WithError(err)}
}

func (e *Entry) WithComponent(component string) *Entry {
	return &Entry{Entry: e.Entry.WithField("component", component)}
}

func (e *Entry) WithFields(fields Fields) *Entry {
	return &Entry{Entry: e.Entry.WithFields(logrus.Fields(fields))}
}

func (e *Entry) WithField(key string, value interface{}) *Entry {
	return &Entry{Entry: e.Entry.WithField(key, value)}
}

func (e *Entry) WithError(err error) *Entry {
	return &Entry{Entry: e.Entry.WithError(err)}
}

// Configure applies level, format (json|text) and output (stdout|stderr|file path).
// File output rotates through lumberjack when maxAgeDays > 0.
func (l *Log) Configure(level, format, output string, maxAgeDays int) error {
	if env := os.Getenv("LOG_LEVEL"); env != "" {
		level = env
	}
	if level == "" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("invalid log level '%s'", level)
	}
	l.Logger.SetLevel(lvl)
	l.Logger.SetReportCaller(lvl >= logrus.DebugLevel)

	switch strings.ToLower(format) {
	case "json", "":
		l.Logger.SetFormatter(jsonFormatter())
	case "text":
		l.Logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:    true,
			TimestampFormat:  time.RFC3339,
			CallerPrettyfier: callerPrettyfier,
		})
	default:
		return fmt.Errorf("invalid log format '%s'", format)
	}

	switch output {
	case "stderr", "":
		l.Logger.SetOutput(os.Stderr)
	case "stdout":
		l.Logger.SetOutput(os.Stdout)
	default:
		if maxAgeDays > 0 {
			l.Logger.SetOutput(&lumberjack.Logger{
				Filename: output,
				MaxAge:   maxAgeDays,
				MaxSize:  100,
				Compress: true,
			})
			return nil
		}
		file, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file '%s': %w", output, err)
		}
		l.Logger.SetOutput(file)
	}
	return nil
}

func jsonFormatter() *logrus.JSONFormatter {
	return &logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
		CallerPrettyfier: callerPrettyfier,
	}
}

func callerPrettyfier(f *runtime.Frame) (string, string) {
	return "", fmt.Sprintf("%s:%d", filepath.Base(f.File), f.Line)
}
