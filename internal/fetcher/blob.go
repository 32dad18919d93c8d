package fetcher

import (
	"context"
	"net/url"
	"path"
	"strings"

	apperrors "binstrap/internal/errors"
	"binstrap/internal/logger"
	"binstrap/internal/progress"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	"gocloud.dev/gcerrors"
)

// BucketOpener opens the bucket named by a gocloud bucket URL.
type BucketOpener func(ctx context.Context, bucketURL string) (*blob.Bucket, error)

// BlobFetcher reads objects through gocloud.dev/blob, covering file:// and any
// other registered bucket scheme.
type BlobFetcher struct {
	open  BucketOpener
	retry Retry
	log   logger.Logger
}

// NewBlobFetcher builds a BlobFetcher. A nil opener uses blob.OpenBucket.
func NewBlobFetcher(open BucketOpener, retry Retry, log logger.Logger) *BlobFetcher {
	if open == nil {
		open = blob.OpenBucket
	}
	if log == nil {
		log = logger.NewStandardLogger(logger.WithLevel(logger.LevelError))
	}
	return &BlobFetcher{open: open, retry: retry, log: log}
}

// Fetch implements Fetcher. Headers are ignored.
func (f *BlobFetcher) Fetch(ctx context.Context, req Request, dst Destination, sink progress.Sink) (Result, error) {
	if sink == nil {
		sink = progress.NoopSink{}
	}
	defer sink.Close()

	bucketURL, key, err := SplitObjectURL(req.URL)
	if err != nil {
		return Result{}, apperrors.NetworkError(apperrors.CodeFetchTransport, "invalid object URL", err).
			WithRecoverable(false).
			WithModule("fetcher").
			WithOperation("Fetch").
			WithField("url", req.URL)
	}

	return f.retry.run(ctx, f.log, req.URL, dst, sink, func(ctx context.Context, dst Destination, sink progress.Sink) (Result, error) {
		return f.attempt(ctx, bucketURL, key, dst, sink)
	})
}

func (f *BlobFetcher) attempt(ctx context.Context, bucketURL, key string, dst Destination, sink progress.Sink) (Result, error) {
	bucket, err := f.open(ctx, bucketURL)
	if err != nil {
		return Result{}, apperrors.NetworkError(apperrors.CodeFetchTransport, "failed to open bucket", err).
			WithRecoverable(false).
			WithModule("fetcher").
			WithOperation("openBucket").
			WithField("bucket", bucketURL)
	}
	defer bucket.Close()

	reader, err := bucket.NewReader(ctx, key, nil)
	if err != nil {
		code := apperrors.CodeFetchTransport
		retryable := true
		switch gcerrors.Code(err) {
		case gcerrors.NotFound, gcerrors.PermissionDenied, gcerrors.InvalidArgument:
			code = apperrors.CodeFetchStatus
			retryable = false
		}
		return Result{}, apperrors.NetworkError(code, "failed to open object", err).
			WithRecoverable(retryable).
			WithModule("fetcher").
			WithOperation("readObject").
			WithField("key", key)
	}
	defer reader.Close()

	total := reader.Size()
	announce(dst, sink, total)

	written, err := copyBody(dst, reader, sink)
	if err != nil {
		return Result{}, apperrors.NetworkError(apperrors.CodeFetchTransport, "failed to read object", err).
			WithModule("fetcher").
			WithOperation("readObject").
			WithField("key", key)
	}
	if written != total {
		return Result{}, apperrors.NetworkError(apperrors.CodeFetchLength, "object length differs from its attributes", nil).
			WithModule("fetcher").
			WithOperation("readObject").
			WithField("declared", total).
			WithField("written", written)
	}
	return Result{Written: written, Total: total}, nil
}

// SplitObjectURL separates an object URL into its bucket URL and key.
// file:///srv/assets/tool.zip becomes file:///srv/assets and tool.zip; for
// other schemes the host names the bucket and the path is the key.
func SplitObjectURL(raw string) (string, string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", err
	}
	if u.Scheme == "" {
		return "", "", &url.Error{Op: "parse", URL: raw, Err: errMissingScheme}
	}

	if strings.EqualFold(u.Scheme, "file") {
		p := u.Path
		if p == "" || strings.HasSuffix(p, "/") {
			return "", "", &url.Error{Op: "parse", URL: raw, Err: errMissingKey}
		}
		bucket := *u
		bucket.Path = path.Dir(p)
		return bucket.String(), path.Base(p), nil
	}

	key := strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", "", &url.Error{Op: "parse", URL: raw, Err: errMissingKey}
	}
	bucket := *u
	bucket.Path = ""
	bucket.RawPath = ""
	return bucket.String(), key, nil
}

type urlError string

func (e urlError) Error() string { return string(e) }

const (
	errMissingScheme urlError = "missing scheme"
	errMissingKey    urlError = "missing object key"
)
