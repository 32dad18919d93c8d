package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"time"

	apperrors "binstrap/internal/errors"
	"binstrap/internal/logger"
	"binstrap/internal/progress"
)

// HTTPClient represents the subset of http.Client methods required by HTTPFetcher.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPFetcher downloads http and https URLs.
type HTTPFetcher struct {
	client    HTTPClient
	userAgent string
	retry     Retry
	log       logger.Logger
}

// HTTPOption customises HTTPFetcher construction.
type HTTPOption func(*HTTPFetcher)

// WithHTTPClient overrides the HTTP client used for downloads.
func WithHTTPClient(client HTTPClient) HTTPOption {
	return func(f *HTTPFetcher) {
		f.client = client
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) HTTPOption {
	return func(f *HTTPFetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// WithRetry sets the retry policy.
func WithRetry(r Retry) HTTPOption {
	return func(f *HTTPFetcher) {
		f.retry = r
	}
}

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(log logger.Logger) HTTPOption {
	return func(f *HTTPFetcher) {
		if log != nil {
			f.log = log
		}
	}
}

// NewHTTPFetcher builds an HTTPFetcher. timeout bounds each attempt when the
// default client is used.
func NewHTTPFetcher(timeout time.Duration, opts ...HTTPOption) *HTTPFetcher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	f := &HTTPFetcher{
		userAgent: defaultUserAgent,
		retry:     Retry{MaxRetries: defaultMaxRetries, Backoff: defaultBackoff},
		log:       logger.NewStandardLogger(logger.WithLevel(logger.LevelError)),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	if f.client == nil {
		f.client = defaultHTTPClient(timeout)
	}
	return f
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, req Request, dst Destination, sink progress.Sink) (Result, error) {
	if sink == nil {
		sink = progress.NoopSink{}
	}
	defer sink.Close()

	return f.retry.run(ctx, f.log, req.URL, dst, sink, func(ctx context.Context, dst Destination, sink progress.Sink) (Result, error) {
		return f.attempt(ctx, req, dst, sink)
	})
}

func (f *HTTPFetcher) attempt(ctx context.Context, r Request, dst Destination, sink progress.Sink) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.URL, nil)
	if err != nil {
		return Result{}, apperrors.NetworkError(apperrors.CodeFetchTransport, "failed to create download request", err).
			WithRecoverable(false).
			WithModule("fetcher").
			WithOperation("doDownload")
	}
	req.Header.Set("User-Agent", f.userAgent)
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return Result{}, apperrors.NetworkError(apperrors.CodeFetchTransport, "download request failed", err).
			WithModule("fetcher").
			WithOperation("doDownload")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		retryable := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
		return Result{}, apperrors.NetworkError(apperrors.CodeFetchStatus,
			fmt.Sprintf("download failed with status %d", resp.StatusCode), nil).
			WithRecoverable(retryable).
			WithModule("fetcher").
			WithOperation("doDownload").
			WithField("status", resp.StatusCode)
	}

	total := resp.ContentLength
	announce(dst, sink, total)

	written, err := copyBody(dst, resp.Body, sink)
	if err != nil {
		return Result{}, apperrors.NetworkError(apperrors.CodeFetchTransport, "failed to read response body", err).
			WithModule("fetcher").
			WithOperation("doDownload").
			WithField("written", written)
	}
	if total >= 0 && written != total {
		return Result{}, apperrors.NetworkError(apperrors.CodeFetchLength, "body length differs from Content-Length", nil).
			WithModule("fetcher").
			WithOperation("doDownload").
			WithField("declared", total).
			WithField("written", written)
	}

	return Result{Written: written, Total: total}, nil
}

func defaultHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		DisableCompression:    true,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
