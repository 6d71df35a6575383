package s3

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pithecene-io/netlog/notify"
)

func fakeS3(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return ts
}

func testNotifier(t *testing.T, ts *httptest.Server, cfg Config) *Notifier {
	t.Helper()
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")
	t.Setenv("AWS_REGION", "us-east-1")

	cfg.Endpoint = ts.URL
	cfg.UsePathStyle = true
	if cfg.Bucket == "" {
		cfg.Bucket = "netlog-bucket"
	}

	n, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return n
}

func writeLogFile(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "run-42.json")
	if err := os.WriteFile(p, []byte(contents), 0o644); err != nil {
		t.Fatalf("write log file: %v", err)
	}
	return p
}

func TestNotify_UploadsRawBody(t *testing.T) {
	var gotBody []byte
	var gotPath string
	ts := fakeS3(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		gotBody = body
		w.WriteHeader(http.StatusOK)
	})

	logPath := writeLogFile(t, `{"constants":{},"events":[]}`)
	n := testNotifier(t, ts, Config{Prefix: "runs"})

	event := &notify.CompletionEvent{FinalLogPath: logPath, EventCount: 3}
	if err := n.Notify(context.Background(), event); err != nil {
		t.Fatalf("notify: %v", err)
	}

	if string(gotBody) != `{"constants":{},"events":[]}` {
		t.Errorf("unexpected uploaded body: %s", gotBody)
	}
	if want := "/netlog-bucket/runs/run-42.json"; gotPath != want {
		t.Errorf("expected path %q, got %q", want, gotPath)
	}
}

func TestNotify_GzipCompressesBody(t *testing.T) {
	var gotBody []byte
	var gotPath string
	ts := fakeS3(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		gotBody = body
		w.WriteHeader(http.StatusOK)
	})

	logPath := writeLogFile(t, `{"constants":{},"events":[{"a":1}]}`)
	n := testNotifier(t, ts, Config{Gzip: true})

	event := &notify.CompletionEvent{FinalLogPath: logPath}
	if err := n.Notify(context.Background(), event); err != nil {
		t.Fatalf("notify: %v", err)
	}

	if want := "/netlog-bucket/run-42.json.gz"; gotPath != want {
		t.Errorf("expected path %q, got %q", want, gotPath)
	}

	gr, err := gzip.NewReader(bytes.NewReader(gotBody))
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	decompressed, err := io.ReadAll(gr)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if string(decompressed) != `{"constants":{},"events":[{"a":1}]}` {
		t.Errorf("unexpected decompressed body: %s", decompressed)
	}
}

func TestNotify_RetriesOn5xxThenSucceeds(t *testing.T) {
	var attempts atomic.Int32
	ts := fakeS3(t, func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	logPath := writeLogFile(t, `{}`)
	n := testNotifier(t, ts, Config{Retries: 2, Timeout: time.Second})

	event := &notify.CompletionEvent{FinalLogPath: logPath}
	if err := n.Notify(context.Background(), event); err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if attempts.Load() != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts.Load())
	}
}

func TestNotify_NonRetriableAccessDeniedFailsImmediately(t *testing.T) {
	var attempts atomic.Int32
	ts := fakeS3(t, func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`<Error><Code>AccessDenied</Code><Message>denied</Message></Error>`))
	})

	logPath := writeLogFile(t, `{}`)
	n := testNotifier(t, ts, Config{Retries: 3, Timeout: time.Second})

	event := &notify.CompletionEvent{FinalLogPath: logPath}
	if err := n.Notify(context.Background(), event); err == nil {
		t.Fatal("expected an error for an AccessDenied response")
	}
	if attempts.Load() != 1 {
		t.Errorf("expected exactly 1 attempt for a non-retriable error, got %d", attempts.Load())
	}
}

func TestNotify_MissingFileFailsFast(t *testing.T) {
	ts := fakeS3(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach the server when the log file is missing")
	})

	n := testNotifier(t, ts, Config{})

	event := &notify.CompletionEvent{FinalLogPath: filepath.Join(t.TempDir(), "missing.json")}
	if err := n.Notify(context.Background(), event); err == nil {
		t.Fatal("expected an error for a missing log file")
	}
}

func TestNew_RequiresBucket(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")
	t.Setenv("AWS_REGION", "us-east-1")

	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatal("expected an error for a missing bucket")
	}
}
