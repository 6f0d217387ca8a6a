// Package logger builds the process-wide logrus logger.
package logger

import (
	"fmt"
	"io"
	"os"
	"path"
	"runtime"
	"strings"
	"sync"

	formatter "github.com/antonfisher/nested-logrus-formatter"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// RequestIDKey is the field name carrying the per-request id
const RequestIDKey = "request_id"

// Fields is an alias so callers need not import logrus
type Fields = logrus.Fields

// Options controls logger construction
type Options struct {
	Level  string
	Format string
	File   string
	Output io.Writer
}

var (
	logger *logrus.Logger
	once   sync.Once
)

// New builds a logger from opts. It does not touch the shared instance.
func New(opts Options) (*logrus.Logger, error) {
	l := logrus.New()

	level := opts.Level
	if level == "" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %s", level)
	}
	l.SetLevel(lvl)

	switch opts.Format {
	case "", "console":
		l.SetFormatter(&formatter.Formatter{
			NoColors:        opts.File != "",
			TimestampFormat: "02 Jan 06 - 15:04:05",
			HideKeys:        false,
			CallerFirst:     true,
			CustomCallerFormatter: func(f *runtime.Frame) string {
				s := strings.Split(f.Function, ".")
				funcName := s[len(s)-1]
				return fmt.Sprintf(" [%s:%d][%s()]", path.Base(f.File), f.Line, funcName)
			},
		})
		l.SetReportCaller(lvl >= logrus.DebugLevel)
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("invalid log format: %s", opts.Format)
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	writers := []io.Writer{out}
	if opts.File != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   opts.File,
			LocalTime:  true,
			Compress:   true,
			MaxSize:    100,
			MaxAge:     7,
			MaxBackups: 3,
		})
	}
	l.SetOutput(io.MultiWriter(writers...))

	return l, nil
}

// Init configures the shared logger once. Later calls return the first result.
func Init(opts Options) (*logrus.Logger, error) {
	var err error
	once.Do(func() {
		logger, err = New(opts)
	})
	if err != nil {
		return nil, err
	}
	return Get(), nil
}

// Get returns the shared logger, falling back to logrus defaults when Init
// was never called or failed.
func Get() *logrus.Logger {
	if logger == nil {
		return logrus.StandardLogger()
	}
	return logger
}

// WithRequestID returns an entry tagged with id
func WithRequestID(l logrus.FieldLogger, id string) *logrus.Entry {
	if id == "" {
		id = "unknown"
	}
	return l.WithField(RequestIDKey, id)
}
