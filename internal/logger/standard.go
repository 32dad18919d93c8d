package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// StandardLogger writes plain entries to one writer and, optionally, JSON
// copies to a second one. Derived loggers share the parent's lock so entries
// from concurrent tasks never interleave.
type StandardLogger struct {
	mu           *sync.Mutex
	level        Level
	output       io.Writer
	formatter    Formatter
	tee          io.Writer
	teeFormatter Formatter
	fields       []Field
}

// NewStandardLogger constructs a StandardLogger. Without options it writes
// INFO and above to stdout.
func NewStandardLogger(options ...Option) *StandardLogger {
	log := &StandardLogger{
		mu:        &sync.Mutex{},
		level:     LevelInfo,
		output:    os.Stdout,
		formatter: &TextFormatter{},
	}

	for _, opt := range options {
		if opt != nil {
			opt(log)
		}
	}

	if log.output == nil {
		log.output = os.Stdout
	}
	if log.formatter == nil {
		log.formatter = &TextFormatter{}
	}
	return log
}

// Option configures a StandardLogger during construction.
type Option func(*StandardLogger)

// WithLevel sets the minimum Level that will be emitted.
func WithLevel(level Level) Option {
	return func(l *StandardLogger) {
		l.level = level
	}
}

// WithOutput redirects console entries to w.
func WithOutput(w io.Writer) Option {
	return func(l *StandardLogger) {
		l.output = w
	}
}

// WithFormatter overrides the console formatter.
func WithFormatter(formatter Formatter) Option {
	return func(l *StandardLogger) {
		l.formatter = formatter
	}
}

// WithFields registers fields attached to every entry.
func WithFields(fields ...Field) Option {
	return func(l *StandardLogger) {
		l.fields = append(l.fields, fields...)
	}
}

func (l *StandardLogger) Debug(format string, args ...interface{}) {
	l.emit(context.Background(), LevelDebug, format, args, nil)
}

func (l *StandardLogger) Info(format string, args ...interface{}) {
	l.emit(context.Background(), LevelInfo, format, args, nil)
}

func (l *StandardLogger) Warn(format string, args ...interface{}) {
	l.emit(context.Background(), LevelWarn, format, args, nil)
}

func (l *StandardLogger) Error(format string, args ...interface{}) {
	l.emit(context.Background(), LevelError, format, args, nil)
}

func (l *StandardLogger) DebugContext(ctx context.Context, msg string, fields ...Field) {
	l.emit(ctx, LevelDebug, msg, nil, fields)
}

func (l *StandardLogger) InfoContext(ctx context.Context, msg string, fields ...Field) {
	l.emit(ctx, LevelInfo, msg, nil, fields)
}

func (l *StandardLogger) WarnContext(ctx context.Context, msg string, fields ...Field) {
	l.emit(ctx, LevelWarn, msg, nil, fields)
}

func (l *StandardLogger) ErrorContext(ctx context.Context, msg string, fields ...Field) {
	l.emit(ctx, LevelError, msg, nil, fields)
}

// With derives a logger that adds fields to every entry.
func (l *StandardLogger) With(fields ...Field) Logger {
	l.mu.Lock()
	defer l.mu.Unlock()

	child := *l
	child.fields = append(append([]Field{}, l.fields...), fields...)
	return &child
}

// SetLevel adjusts the minimum level emitted.
func (l *StandardLogger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// GetLevel returns the minimum level emitted.
func (l *StandardLogger) GetLevel() Level {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

// emit renders one entry. args non-nil means msg is a printf format.
func (l *StandardLogger) emit(ctx context.Context, level Level, msg string, args []interface{}, fields []Field) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level < l.level {
		return
	}
	if args != nil {
		msg = fmt.Sprintf(msg, args...)
	}

	all := make([]Field, 0, len(l.fields)+len(fields)+2)
	all = append(all, l.fields...)
	all = append(all, traceFieldsFromContext(ctx)...)
	all = append(all, fields...)

	l.write(&Entry{Time: time.Now(), Level: level, Message: msg, Fields: all})
}

func (l *StandardLogger) write(entry *Entry) {
	out, err := l.formatter.Format(entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to format log entry: %v\n", err)
		return
	}
	if _, err := l.output.Write(out); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write log entry: %v\n", err)
	}

	if l.tee == nil || l.teeFormatter == nil {
		return
	}
	if out, err = l.teeFormatter.Format(entry); err == nil {
		_, _ = l.tee.Write(out)
	}
}
