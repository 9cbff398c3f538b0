package logger

import (
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Logger struct {
	*logrus.Entry
}

func New() *Logger {
	base := logrus.New()

	// Local env = pretty console; others = JSON
	env := os.Getenv("ENVIRONMENT")
	if env == "" || env == "local" {
		base.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339Nano,
			ForceColors:     true,
		})
	} else {
		base.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		})
	}

	base.SetOutput(output(os.Getenv("LOG_FILE")))
	base.SetLevel(ParseLevel(os.Getenv("LOG_LEVEL")))

	return &Logger{Entry: logrus.NewEntry(base)}
}

// NewWithWriter builds a JSON logger writing to w. Used by tests to capture entries.
func NewWithWriter(w io.Writer, level logrus.Level) *Logger {
	base := logrus.New()
	base.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	base.SetOutput(w)
	base.SetLevel(level)
	return &Logger{Entry: logrus.NewEntry(base)}
}

// ParseLevel maps LOG_LEVEL values onto logrus levels, defaulting to info.
func ParseLevel(level string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// output keeps stdout and, when a file is configured, tees into a rotated file.
func output(file string) io.Writer {
	file = strings.TrimSpace(file)
	if file == "" {
		return os.Stdout
	}
	rotated := &lumberjack.Logger{
		Filename:   file,
		MaxSize:    100, // MB
		MaxBackups: 10,
		MaxAge:     30, // days
		Compress:   true,
	}
	return io.MultiWriter(os.Stdout, rotated)
}

// WithRequest attaches request metadata and returns an entry
func (l *Logger) WithRequest(r *http.Request) *logrus.Entry {
	reqID := r.Header.Get("X-Request-ID")
	if reqID == "" {
		reqID = uuid.New().String()
	}

	return l.WithFields(logrus.Fields{
		"req_id":     reqID,
		"method":     r.Method,
		"path":       r.URL.Path,
		"remote_ip":  r.RemoteAddr,
		"user_agent": r.UserAgent(),
	})
}

// WithError standardizes error logging
func (l *Logger) WithError(err error) *logrus.Entry {
	if err == nil {
		return l.Entry
	}
	return l.Entry.WithField("error", err.Error())
}
