package fetcher

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	apperrors "binstrap/internal/errors"
	"binstrap/internal/logger"
	"binstrap/internal/progress"

	"gocloud.dev/blob"
	"gocloud.dev/blob/memblob"
)

type recordingSink struct {
	mu       sync.Mutex
	total    int64
	advanced int64
	resets   int
	closed   int
}

func (s *recordingSink) TotalKnown(n int64) { s.mu.Lock(); s.total = n; s.mu.Unlock() }
func (s *recordingSink) Advance(n int64)    { s.mu.Lock(); s.advanced += n; s.mu.Unlock() }
func (s *recordingSink) Reset()             { s.mu.Lock(); s.resets++; s.advanced = 0; s.mu.Unlock() }
func (s *recordingSink) Close()             { s.mu.Lock(); s.closed++; s.mu.Unlock() }

func tempDest(t *testing.T) *os.File {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "dest-*")
	if err != nil {
		t.Fatalf("create temp: %v", err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}

func readBack(t *testing.T, f *os.File) string {
	t.Helper()
	data, err := os.ReadFile(f.Name())
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	return string(data)
}

func TestHTTPFetchStreamsBodyAndHeaders(t *testing.T) {
	payload := strings.Repeat("binstrap", 10000)
	var gotUA, gotToken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotToken = r.Header.Get("Authorization")
		_, _ = io.WriteString(w, payload)
	}))
	defer srv.Close()

	dst := tempDest(t)
	sink := &recordingSink{}
	f := NewHTTPFetcher(0, WithHTTPClient(srv.Client()), WithUserAgent("test-agent"))

	res, err := f.Fetch(context.Background(), Request{
		URL:     srv.URL + "/tool.bin",
		Headers: map[string]string{"Authorization": "Bearer abc"},
	}, dst, sink)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if res.Written != int64(len(payload)) || res.Total != int64(len(payload)) || res.Attempts != 1 {
		t.Fatalf("result = %+v", res)
	}
	if got := readBack(t, dst); got != payload {
		t.Fatalf("content length %d, want %d", len(got), len(payload))
	}
	if gotUA != "test-agent" || gotToken != "Bearer abc" {
		t.Fatalf("headers: ua=%q auth=%q", gotUA, gotToken)
	}
	if sink.total != int64(len(payload)) || sink.advanced != int64(len(payload)) || sink.closed != 1 {
		t.Fatalf("sink = %+v", sink)
	}
}

func TestHTTPFetchRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.Header().Set("Content-Length", "7")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = io.WriteString(w, "garbage")
			return
		}
		_, _ = io.WriteString(w, "ok")
	}))
	defer srv.Close()

	dst := tempDest(t)
	_, _ = dst.WriteString("stale bytes from an earlier attempt")
	sink := &recordingSink{}
	log := logger.NewMockLogger()
	f := NewHTTPFetcher(0, WithHTTPClient(srv.Client()), WithRetry(Retry{MaxRetries: 3}), WithLogger(log))

	res, err := f.Fetch(context.Background(), Request{URL: srv.URL}, dst, sink)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.Attempts != 3 || atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("attempts = %d, calls = %d", res.Attempts, calls)
	}
	if sink.resets != 2 {
		t.Fatalf("resets = %d", sink.resets)
	}
	if got := readBack(t, dst); got != "ok" {
		t.Fatalf("content = %q", got)
	}
	if log.CountEntries(logger.LevelWarn) != 2 {
		t.Fatalf("warn entries = %d", log.CountEntries(logger.LevelWarn))
	}
}

func TestHTTPFetchDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(0, WithHTTPClient(srv.Client()), WithRetry(Retry{MaxRetries: 5}))
	_, err := f.Fetch(context.Background(), Request{URL: srv.URL + "/missing"}, tempDest(t), nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if kind := apperrors.KindOf(err); kind != apperrors.KindNetwork {
		t.Fatalf("kind = %s", kind)
	}
	appErr, _ := apperrors.As(err)
	if appErr.StringField("url") != srv.URL+"/missing" {
		t.Fatalf("url metadata = %v", appErr.Metadata)
	}
	if calls != 1 {
		t.Fatalf("calls = %d", calls)
	}
}

type shortBodyClient struct{}

func (shortBodyClient) Do(req *http.Request) (*http.Response, error) {
	return &http.Response{
		StatusCode:    http.StatusOK,
		ContentLength: 100,
		Body:          io.NopCloser(bytes.NewReader(make([]byte, 10))),
		Request:       req,
	}, nil
}

func TestHTTPFetchDetectsLengthMismatch(t *testing.T) {
	f := NewHTTPFetcher(0, WithHTTPClient(shortBodyClient{}), WithRetry(Retry{MaxRetries: 2}))
	_, err := f.Fetch(context.Background(), Request{URL: "http://example.invalid/x"}, tempDest(t), nil)
	if err == nil {
		t.Fatal("expected length mismatch")
	}
	if !apperrors.Is(err, &apperrors.AppError{Code: apperrors.CodeFetchLength}) {
		t.Fatalf("err = %v", err)
	}
	if apperrors.KindOf(err) != apperrors.KindNetwork {
		t.Fatalf("kind = %s", apperrors.KindOf(err))
	}
}

func TestHTTPFetchHonoursCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := NewHTTPFetcher(0, WithHTTPClient(srv.Client()))
	_, err := f.Fetch(ctx, Request{URL: srv.URL}, tempDest(t), nil)
	if apperrors.KindOf(err) != apperrors.KindNetwork {
		t.Fatalf("cancelled fetch kind = %s (%v)", apperrors.KindOf(err), err)
	}
}

func TestBlobFetchFromFileBucket(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "asset.bin"), []byte("from disk"), 0o644); err != nil {
		t.Fatal(err)
	}

	dst := tempDest(t)
	sink := &recordingSink{}
	f := NewBlobFetcher(nil, Retry{MaxRetries: 1}, nil)
	res, err := f.Fetch(context.Background(), Request{URL: "file://" + filepath.ToSlash(dir) + "/asset.bin"}, dst, sink)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.Written != 9 || readBack(t, dst) != "from disk" {
		t.Fatalf("result = %+v content = %q", res, readBack(t, dst))
	}
	if sink.total != 9 || sink.closed != 1 {
		t.Fatalf("sink = %+v", sink)
	}
}

func TestBlobFetchMissingObject(t *testing.T) {
	opened := 0
	open := func(ctx context.Context, _ string) (*blob.Bucket, error) {
		opened++
		return memblob.OpenBucket(nil), nil
	}
	f := NewBlobFetcher(open, Retry{MaxRetries: 3}, nil)
	_, err := f.Fetch(context.Background(), Request{URL: "mem://assets/nope.bin"}, tempDest(t), nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if opened != 1 {
		t.Fatalf("missing object was retried: %d opens", opened)
	}
	if !apperrors.Is(err, &apperrors.AppError{Code: apperrors.CodeFetchStatus}) {
		t.Fatalf("err = %v", err)
	}
}

func TestBlobFetchFromMemoryBucket(t *testing.T) {
	open := func(ctx context.Context, bucketURL string) (*blob.Bucket, error) {
		if bucketURL != "mem://assets" {
			t.Errorf("bucket url = %s", bucketURL)
		}
		b := memblob.OpenBucket(nil)
		if err := b.WriteAll(ctx, "dir/tool.zip", []byte("zipdata"), nil); err != nil {
			return nil, err
		}
		return b, nil
	}

	dst := tempDest(t)
	f := NewBlobFetcher(open, Retry{}, nil)
	if _, err := f.Fetch(context.Background(), Request{URL: "mem://assets/dir/tool.zip"}, dst, nil); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got := readBack(t, dst); got != "zipdata" {
		t.Fatalf("content = %q", got)
	}
}

func TestSplitObjectURL(t *testing.T) {
	cases := []struct {
		raw, bucket, key string
	}{
		{"file:///srv/assets/tool.zip", "file:///srv/assets", "tool.zip"},
		{"mem://bucket/a/b.txt", "mem://bucket", "a/b.txt"},
		{"s3://bucket/key.bin?region=eu-west-1", "s3://bucket?region=eu-west-1", "key.bin"},
	}
	for _, tc := range cases {
		bucket, key, err := SplitObjectURL(tc.raw)
		if err != nil {
			t.Fatalf("SplitObjectURL(%s): %v", tc.raw, err)
		}
		if bucket != tc.bucket || key != tc.key {
			t.Errorf("SplitObjectURL(%s) = %s, %s", tc.raw, bucket, key)
		}
	}
	if _, _, err := SplitObjectURL("mem://bucket/"); err == nil {
		t.Error("expected error for missing key")
	}
}

func TestRouterDispatchesByScheme(t *testing.T) {
	var httpHits, blobHits int
	r := Router{
		HTTP: fetcherFunc(func() { httpHits++ }),
		Blob: fetcherFunc(func() { blobHits++ }),
	}
	for _, u := range []string{"http://a/x", "HTTPS://a/x", "file:///x", "mem://b/x"} {
		if _, err := r.Fetch(context.Background(), Request{URL: u}, nil, nil); err != nil {
			t.Fatalf("Fetch(%s): %v", u, err)
		}
	}
	if httpHits != 2 || blobHits != 2 {
		t.Fatalf("http=%d blob=%d", httpHits, blobHits)
	}
	if _, err := r.Fetch(context.Background(), Request{URL: "no-scheme"}, nil, nil); err == nil {
		t.Fatal("expected error for URL without scheme")
	}
}

type fetcherFunc func()

func (f fetcherFunc) Fetch(context.Context, Request, Destination, progress.Sink) (Result, error) {
	f()
	return Result{}, nil
}
