package logging

import (
	"context"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

type Logger interface {
	WithField(key string, value interface{}) Logger
	WithFields(fields logrus.Fields) Logger
	WithError(err error) Logger

	Debug(args ...interface{})
	Info(args ...interface{})
	Warn(args ...interface{})
	Error(args ...interface{})
	Fatal(args ...interface{})

	SetLevel(level logrus.Level)
}

type logger struct {
	entry *logrus.Entry
}

func New() Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetFormatter(&logrus.JSONFormatter{})
	return &logger{entry: logrus.NewEntry(l)}
}

// NewNop returns a logger discarding every record.
func NewNop() Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return &logger{entry: logrus.NewEntry(l)}
}

func (l *logger) WithField(key string, value interface{}) Logger {
	return &logger{entry: l.entry.WithField(key, value)}
}

func (l *logger) WithFields(fields logrus.Fields) Logger {
	return &logger{entry: l.entry.WithFields(fields)}
}

func (l *logger) WithError(err error) Logger {
	return &logger{entry: l.entry.WithError(err)}
}

func (l *logger) Debug(args ...interface{}) { l.entry.Debug(args...) }
func (l *logger) Info(args ...interface{})  { l.entry.Info(args...) }
func (l *logger) Warn(args ...interface{})  { l.entry.Warn(args...) }
func (l *logger) Error(args ...interface{}) { l.entry.Error(args...) }
func (l *logger) Fatal(args ...interface{}) { l.entry.Fatal(args...) }

func (l *logger) SetLevel(level logrus.Level) {
	l.entry.Logger.SetLevel(level)
}

type ctxKey struct{}

func WithLogger(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

func LoggerFromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(ctxKey{}).(Logger); ok {
		return l
	}
	return New()
}

// FromLogrus wraps an existing logrus logger, e.g. one created by logrus/hooks/test.
func FromLogrus(l *logrus.Logger) Logger {
	return &logger{entry: logrus.NewEntry(l)}
}
