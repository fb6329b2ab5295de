package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"content-batch/internal/models"
)

var defaultLogger *logrus.Logger

// New builds a logger writing to out. format is "json" or "text".
func New(level, format string, out io.Writer) *logrus.Logger {
	l := logrus.New()
	if out == nil {
		out = os.Stdout
	}
	l.SetOutput(out)
	l.SetLevel(ParseLevel(level))

	if strings.EqualFold(format, "json") {
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	} else {
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	}
	return l
}

// ParseLevel maps LOG_LEVEL style names to logrus levels, defaulting to info
func ParseLevel(level string) logrus.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return logrus.DebugLevel
	case "WARN", "WARNING":
		return logrus.WarnLevel
	case "ERROR":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// SetDefault replaces the logger returned by GetLogger
func SetDefault(l *logrus.Logger) {
	defaultLogger = l
}

// GetLogger returns the process logger, creating an info-level text logger on first use
func GetLogger() *logrus.Logger {
	if defaultLogger == nil {
		defaultLogger = New(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"), os.Stdout)
	}
	return defaultLogger
}

// Discard returns a logger that drops everything, for tests
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// WithJob creates a logger with job context
func WithJob(l logrus.FieldLogger, job *models.Job) *logrus.Entry {
	fields := logrus.Fields{"component": "controller"}
	if job != nil {
		fields["job_id"] = job.ID
		fields["job_status"] = job.Status
	}
	return l.WithFields(fields)
}

// WithItem creates a logger with item context
func WithItem(l logrus.FieldLogger, jobID string, item *models.Item) *logrus.Entry {
	return l.WithFields(logrus.Fields{
		"component": "executor",
		"job_id":    jobID,
		"item_id":   item.ID,
		"order":     item.Order,
	})
}
