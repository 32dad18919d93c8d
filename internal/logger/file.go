package logger

import (
	"io"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// FileOptions configures the rotating log file written next to console output.
type FileOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	Compress   bool
}

// OpenRotatingFile prepares a size-rotated log file. The returned writer must
// be closed by the caller once logging has finished.
func OpenRotatingFile(opts FileOptions) (io.WriteCloser, error) {
	if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
		return nil, err
	}

	return &lumberjack.Logger{
		Filename:   opts.Path,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		Compress:   opts.Compress,
		LocalTime:  true,
	}, nil
}

// WithFileTee duplicates every entry into file using the JSON formatter, while
// the console keeps the configured formatter.
func WithFileTee(file io.Writer) Option {
	return func(l *StandardLogger) {
		if file == nil {
			return
		}
		l.tee = file
		l.teeFormatter = &JSONFormatter{}
	}
}
