// Package fetcher streams remote content into local files.
package fetcher

import (
	"context"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	apperrors "binstrap/internal/errors"
	"binstrap/internal/logger"
	"binstrap/internal/progress"
)

const (
	defaultMaxRetries = 3
	defaultBackoff    = time.Second
	defaultTimeout    = 300 * time.Second
	defaultUserAgent  = "binstrap/1.0 (Go downloader)"
	copyBufferSize    = 32 * 1024
)

// Request identifies the content to fetch.
type Request struct {
	URL     string
	Headers map[string]string
}

// Result summarizes a finished transfer.
type Result struct {
	// Written is the number of bytes in the destination.
	Written int64
	// Total is the declared length, or -1 when the source did not declare one.
	Total int64
	// Attempts is how many tries the transfer took.
	Attempts int
}

// Destination receives fetched bytes. *os.File satisfies it.
type Destination interface {
	io.Writer
	io.Seeker
	Truncate(size int64) error
}

// Fetcher streams req into dst, reporting progress to sink.
type Fetcher interface {
	Fetch(ctx context.Context, req Request, dst Destination, sink progress.Sink) (Result, error)
}

// Retry controls how failed attempts are repeated.
type Retry struct {
	// MaxRetries is the total number of attempts. Default: 3.
	MaxRetries int
	// Backoff is multiplied by the attempt number before each retry. Default: 1s.
	Backoff time.Duration
}

func (r Retry) normalized() Retry {
	if r.MaxRetries <= 0 {
		r.MaxRetries = defaultMaxRetries
	}
	if r.Backoff < 0 {
		r.Backoff = defaultBackoff
	}
	return r
}

type attemptFunc func(ctx context.Context, dst Destination, sink progress.Sink) (Result, error)

// run executes fn with retries. Only recoverable errors are retried; before
// each retry the sink is reset and the destination rewound.
func (r Retry) run(ctx context.Context, log logger.Logger, rawURL string, dst Destination, sink progress.Sink, fn attemptFunc) (Result, error) {
	r = r.normalized()

	var lastErr error
	for attempt := 1; attempt <= r.MaxRetries; attempt++ {
		if attempt > 1 {
			log.WarnContext(ctx, "retrying download",
				logger.Int("attempt", attempt),
				logger.Int("max_attempts", r.MaxRetries),
				logger.Error(lastErr),
			)
			sink.Reset()
			if err := rewind(dst); err != nil {
				return Result{Attempts: attempt - 1}, err
			}
			if err := sleep(ctx, time.Duration(attempt)*r.Backoff); err != nil {
				break
			}
		}

		res, err := fn(ctx, dst, sink)
		res.Attempts = attempt
		if err == nil {
			return res, nil
		}
		lastErr = err

		appErr, ok := apperrors.As(err)
		if !ok || !appErr.Recoverable || ctx.Err() != nil {
			break
		}
	}

	if ctx.Err() != nil {
		return Result{}, apperrors.NetworkError(apperrors.CodeFetchTransport, "download cancelled", ctx.Err()).
			WithRecoverable(false).
			WithModule("fetcher").
			WithOperation("Fetch").
			WithField("url", rawURL)
	}

	appErr := apperrors.Annotate(lastErr, "fetcher", "Fetch")
	return Result{}, appErr.WithField("url", rawURL)
}

func rewind(dst Destination) error {
	if _, err := dst.Seek(0, io.SeekStart); err != nil {
		return apperrors.SystemError(apperrors.CodeCacheIO, "failed to rewind destination", err).
			WithModule("fetcher").
			WithOperation("Fetch")
	}
	if err := dst.Truncate(0); err != nil {
		return apperrors.SystemError(apperrors.CodeCacheIO, "failed to truncate destination", err).
			WithModule("fetcher").
			WithOperation("Fetch")
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// announce reports the total to the sink and reserves space in dst.
func announce(dst Destination, sink progress.Sink, total int64) {
	if total < 0 {
		return
	}
	sink.TotalKnown(total)
	if f, ok := dst.(*os.File); ok && total > 0 {
		preallocate(f, total)
	}
}

// copyBody streams src into dst, advancing sink per chunk.
func copyBody(dst Destination, src io.Reader, sink progress.Sink) (int64, error) {
	buf := make([]byte, copyBufferSize)
	return io.CopyBuffer(&sinkWriter{w: dst, sink: sink}, src, buf)
}

type sinkWriter struct {
	w    io.Writer
	sink progress.Sink
}

func (s *sinkWriter) Write(p []byte) (int, error) {
	n, err := s.w.Write(p)
	if n > 0 {
		s.sink.Advance(int64(n))
	}
	return n, err
}

// Router dispatches requests by URL scheme: http and https go to HTTP, every
// other scheme goes to Blob.
type Router struct {
	HTTP Fetcher
	Blob Fetcher
}

// Fetch implements Fetcher.
func (r Router) Fetch(ctx context.Context, req Request, dst Destination, sink progress.Sink) (Result, error) {
	if sink == nil {
		sink = progress.NoopSink{}
	}
	u, err := url.Parse(req.URL)
	if err != nil || u.Scheme == "" {
		sink.Close()
		return Result{}, apperrors.NetworkError(apperrors.CodeFetchTransport, "invalid download URL", err).
			WithRecoverable(false).
			WithModule("fetcher").
			WithOperation("Fetch").
			WithField("url", req.URL)
	}

	var target Fetcher
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		target = r.HTTP
	default:
		target = r.Blob
	}
	if target == nil {
		sink.Close()
		return Result{}, apperrors.NetworkError(apperrors.CodeFetchTransport, "no fetcher registered for scheme", nil).
			WithRecoverable(false).
			WithModule("fetcher").
			WithOperation("Fetch").
			WithField("url", req.URL).
			WithField("scheme", u.Scheme)
	}
	return target.Fetch(ctx, req, dst, sink)
}
