package http_test

import (
	"bytes"
	"errors"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	zimhttp "github.com/meigma/zim/http"
)

func TestSourceReadAt(t *testing.T) {
	data := []byte("zim archive bytes served over http")
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		nethttp.ServeContent(w, r, "archive.zim", time.Time{}, bytes.NewReader(data))
	}))
	t.Cleanup(server.Close)

	src, err := zimhttp.NewSource(server.URL)
	if err != nil {
		t.Fatalf("NewSource() error = %v", err)
	}
	if src.Size() != int64(len(data)) {
		t.Fatalf("Size() = %d, want %d", src.Size(), len(data))
	}

	buf := make([]byte, 7)
	n, err := src.ReadAt(buf, 4)
	if err != nil {
		t.Fatalf("ReadAt() error = %v", err)
	}
	if n != len(buf) {
		t.Fatalf("ReadAt() n = %d, want %d", n, len(buf))
	}
	if string(buf) != "archive" {
		t.Fatalf("ReadAt() got %q, want %q", string(buf), "archive")
	}

	edge := make([]byte, 10)
	n, err = src.ReadAt(edge, int64(len(data)-4))
	if err != io.EOF {
		t.Fatalf("ReadAt() error = %v, want io.EOF", err)
	}
	if n != 4 {
		t.Fatalf("ReadAt() n = %d, want 4", n)
	}
	if string(edge[:n]) != "http" {
		t.Fatalf("ReadAt() got %q, want %q", string(edge[:n]), "http")
	}

	if _, err := src.ReadAt(buf, int64(len(data))); err != io.EOF {
		t.Fatalf("ReadAt() past end error = %v, want io.EOF", err)
	}
}

func TestSourceRangeUnsupported(t *testing.T) {
	data := []byte("range unsupported")
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method == nethttp.MethodHead {
			w.Header().Set("Content-Length", strconv.Itoa(len(data)))
			return
		}
		_, _ = w.Write(data)
	}))
	t.Cleanup(server.Close)

	_, err := zimhttp.NewSource(server.URL)
	if !errors.Is(err, zimhttp.ErrRangeUnsupported) {
		t.Fatalf("NewSource() error = %v, want ErrRangeUnsupported", err)
	}
}

func TestSourceArchiveChanged(t *testing.T) {
	data := []byte("first published revision of the archive")

	var mu sync.Mutex
	etag := `"rev-1"`
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		mu.Lock()
		tag := etag
		mu.Unlock()
		w.Header().Set("ETag", tag)
		nethttp.ServeContent(w, r, "archive.zim", time.Time{}, bytes.NewReader(data))
	}))
	t.Cleanup(server.Close)

	src, err := zimhttp.NewSource(server.URL)
	if err != nil {
		t.Fatalf("NewSource() error = %v", err)
	}

	buf := make([]byte, 5)
	if _, err := src.ReadAt(buf, 0); err != nil {
		t.Fatalf("ReadAt() error = %v", err)
	}

	mu.Lock()
	etag = `"rev-2"`
	mu.Unlock()

	_, err = src.ReadAt(buf, 0)
	if !errors.Is(err, zimhttp.ErrArchiveChanged) {
		t.Fatalf("ReadAt() after swap error = %v, want ErrArchiveChanged", err)
	}
}

func TestSourceSendsHeaders(t *testing.T) {
	data := []byte("authorized archive")
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer token" {
			t.Errorf("Authorization = %q, want %q", got, "Bearer token")
		}
		nethttp.ServeContent(w, r, "archive.zim", time.Time{}, bytes.NewReader(data))
	}))
	t.Cleanup(server.Close)

	src, err := zimhttp.NewSource(server.URL, zimhttp.WithHeader("Authorization", "Bearer token"))
	if err != nil {
		t.Fatalf("NewSource() error = %v", err)
	}
	buf := make([]byte, 10)
	if _, err := src.ReadAt(buf, 0); err != nil {
		t.Fatalf("ReadAt() error = %v", err)
	}
}

// countingSource counts ReadAt calls so tests can observe cache behavior.
type countingSource struct {
	data  []byte
	calls atomic.Int64
}

func (c *countingSource) ReadAt(p []byte, off int64) (int, error) {
	c.calls.Add(1)
	if off < 0 {
		return 0, errors.New("negative offset")
	}
	if off >= int64(len(c.data)) {
		return 0, io.EOF
	}
	n := copy(p, c.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (c *countingSource) Size() int64 {
	return int64(len(c.data))
}

func testData(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i)
	}
	return data
}

func TestBlockSourceCaching(t *testing.T) {
	src := &countingSource{data: testData(100)}
	bs, err := zimhttp.NewBlockSource(src, zimhttp.WithBlockSize(16), zimhttp.WithBlockCount(8))
	if err != nil {
		t.Fatalf("NewBlockSource() error = %v", err)
	}

	buf := make([]byte, 10)
	n, err := bs.ReadAt(buf, 10)
	if err != nil {
		t.Fatalf("ReadAt() error = %v", err)
	}
	if n != len(buf) {
		t.Fatalf("ReadAt() n = %d, want %d", n, len(buf))
	}
	if !bytes.Equal(buf, src.data[10:20]) {
		t.Fatalf("ReadAt() got %v, want %v", buf, src.data[10:20])
	}
	if got := src.calls.Load(); got != 2 {
		t.Fatalf("source calls = %d, want 2 (blocks 0 and 1)", got)
	}

	// Both blocks are cached now.
	if _, err := bs.ReadAt(buf, 10); err != nil {
		t.Fatalf("ReadAt() error = %v", err)
	}
	if _, err := bs.ReadAt(buf[:8], 0); err != nil {
		t.Fatalf("ReadAt() error = %v", err)
	}
	if got := src.calls.Load(); got != 2 {
		t.Fatalf("source calls = %d, want 2 after cached reads", got)
	}
}

func TestBlockSourceBypassesLargeReads(t *testing.T) {
	src := &countingSource{data: testData(100)}
	bs, err := zimhttp.NewBlockSource(src,
		zimhttp.WithBlockSize(8),
		zimhttp.WithBlockCount(4),
		zimhttp.WithMaxBlocksPerRead(2),
	)
	if err != nil {
		t.Fatalf("NewBlockSource() error = %v", err)
	}

	// Five blocks, over the limit: one direct read, nothing cached.
	buf := make([]byte, 40)
	if _, err := bs.ReadAt(buf, 0); err != nil {
		t.Fatalf("ReadAt() error = %v", err)
	}
	if !bytes.Equal(buf, src.data[:40]) {
		t.Fatalf("ReadAt() got %v, want %v", buf, src.data[:40])
	}
	if got := src.calls.Load(); got != 1 {
		t.Fatalf("source calls = %d, want 1 direct read", got)
	}
	if _, err := bs.ReadAt(buf, 0); err != nil {
		t.Fatalf("ReadAt() error = %v", err)
	}
	if got := src.calls.Load(); got != 2 {
		t.Fatalf("source calls = %d, want 2 direct reads", got)
	}
}

func TestBlockSourceClipsAtEnd(t *testing.T) {
	src := &countingSource{data: testData(20)}
	bs, err := zimhttp.NewBlockSource(src, zimhttp.WithBlockSize(8), zimhttp.WithBlockCount(4))
	if err != nil {
		t.Fatalf("NewBlockSource() error = %v", err)
	}
	if bs.Size() != 20 {
		t.Fatalf("Size() = %d, want 20", bs.Size())
	}

	buf := make([]byte, 10)
	n, err := bs.ReadAt(buf, 15)
	if err != io.EOF {
		t.Fatalf("ReadAt() error = %v, want io.EOF", err)
	}
	if n != 5 {
		t.Fatalf("ReadAt() n = %d, want 5", n)
	}
	if !bytes.Equal(buf[:n], src.data[15:]) {
		t.Fatalf("ReadAt() got %v, want %v", buf[:n], src.data[15:])
	}

	if _, err := bs.ReadAt(buf, 20); err != io.EOF {
		t.Fatalf("ReadAt() at end error = %v, want io.EOF", err)
	}
	if _, err := bs.ReadAt(buf, -1); err == nil {
		t.Fatal("ReadAt() negative offset: expected error")
	}
}

func TestBlockSourceOverHTTP(t *testing.T) {
	data := []byte("blocks fetched over range requests")
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		nethttp.ServeContent(w, r, "archive.zim", time.Time{}, bytes.NewReader(data))
	}))
	t.Cleanup(server.Close)

	src, err := zimhttp.NewSource(server.URL)
	if err != nil {
		t.Fatalf("NewSource() error = %v", err)
	}
	bs, err := zimhttp.NewBlockSource(src, zimhttp.WithBlockSize(8), zimhttp.WithBlockCount(8))
	if err != nil {
		t.Fatalf("NewBlockSource() error = %v", err)
	}

	buf := make([]byte, 7)
	if _, err := bs.ReadAt(buf, 7); err != nil {
		t.Fatalf("ReadAt() error = %v", err)
	}
	if string(buf) != "fetched" {
		t.Fatalf("ReadAt() got %q, want %q", string(buf), "fetched")
	}
}
