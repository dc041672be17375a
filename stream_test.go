package urlfile_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/nuln/urlfile"
)

// remote is a test double for the far side of a Stream: it serves a fixed
// body on GET, captures the body of POST uploads, and counts requests.
type remote struct {
	mu         sync.Mutex
	body       []byte
	getHeader  http.Header
	getStatus  int
	postStatus int
	getDelay   time.Duration

	gets     int
	posts    int
	uploaded []byte
	postLen  int64
}

func newRemote(t *testing.T, body string) (*remote, string) {
	t.Helper()
	rm := &remote{
		body:       []byte(body),
		getStatus:  http.StatusOK,
		postStatus: http.StatusOK,
	}
	srv := httptest.NewServer(http.HandlerFunc(rm.handle))
	t.Cleanup(srv.Close)
	return rm, srv.URL
}

func (rm *remote) handle(w http.ResponseWriter, r *http.Request) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	switch r.Method {
	case http.MethodGet:
		rm.gets++
		if rm.getDelay > 0 {
			time.Sleep(rm.getDelay)
		}
		for k, vs := range rm.getHeader {
			for _, v := range vs {
				w.Header().Add(k, v)
			}
		}
		w.WriteHeader(rm.getStatus)
		if rm.getStatus >= 200 && rm.getStatus < 300 {
			_, _ = w.Write(rm.body)
		} else {
			_, _ = w.Write([]byte("remote error detail"))
		}
	case http.MethodPost:
		rm.posts++
		rm.postLen = r.ContentLength
		rm.uploaded, _ = io.ReadAll(r.Body)
		w.WriteHeader(rm.postStatus)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (rm *remote) counts() (gets, posts int) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.gets, rm.posts
}

func (rm *remote) lastUpload() []byte {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.uploaded
}

func (rm *remote) uploadLen() int64 {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.postLen
}

func TestOpenInvalidMode(t *testing.T) {
	_, err := urlfile.Open(context.Background(), "http://example.com", urlfile.Mode(0))
	if !errors.Is(err, urlfile.ErrInvalidMode) {
		t.Errorf("Open with zero mode = %v, want ErrInvalidMode", err)
	}
}

func TestReadFetchesOnce(t *testing.T) {
	rm, url := newRemote(t, "hello world")

	s, err := urlfile.Open(context.Background(), url, urlfile.ReadBinary)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = s.Close() }()

	if gets, _ := rm.counts(); gets != 0 {
		t.Fatalf("gets after Open = %d, want 0 (fetch must be lazy)", gets)
	}

	var got bytes.Buffer
	chunk := make([]byte, 3)
	for {
		n, err := s.Read(chunk)
		got.Write(chunk[:n])
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
	}
	if got.String() != "hello world" {
		t.Errorf("content = %q, want %q", got.String(), "hello world")
	}

	if gets, _ := rm.counts(); gets != 1 {
		t.Errorf("gets = %d, want 1 for any number of reads", gets)
	}
}

func TestReadTextDecodesCharset(t *testing.T) {
	rm, url := newRemote(t, "caf\xe9")
	rm.getHeader = http.Header{"Content-Type": []string{"text/plain; charset=iso-8859-1"}}

	s, err := urlfile.Open(context.Background(), url, urlfile.ReadText)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = s.Close() }()

	got, err := io.ReadAll(s)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "café" {
		t.Errorf("content = %q, want %q", got, "café")
	}
	if s.Encoding() != "iso-8859-1" {
		t.Errorf("Encoding = %q, want %q", s.Encoding(), "iso-8859-1")
	}
}

func TestWriteCommitsOnClose(t *testing.T) {
	rm, url := newRemote(t, "stale remote content")

	s, err := urlfile.Open(context.Background(), url, urlfile.WriteBinary)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := s.Write([]byte("hello ")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := s.Write([]byte("world")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	// The upload starts from offset zero no matter where the caller
	// left the cursor.
	if _, err := s.Seek(3, io.SeekStart); err != nil {
		t.Fatalf("Seek: %v", err)
	}

	if _, posts := rm.counts(); posts != 0 {
		t.Fatal("POST before Close")
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	gets, posts := rm.counts()
	if gets != 0 {
		t.Errorf("gets = %d, want 0 (write mode never fetches)", gets)
	}
	if posts != 1 {
		t.Errorf("posts = %d, want 1", posts)
	}
	if got := rm.lastUpload(); string(got) != "hello world" {
		t.Errorf("uploaded = %q, want %q", got, "hello world")
	}
	if n := rm.uploadLen(); n != int64(len("hello world")) {
		t.Errorf("Content-Length = %d, want %d", n, len("hello world"))
	}
}

func TestCloseAfterUploadReleasesOnce(t *testing.T) {
	tests := []struct {
		name      string
		threshold int64
		payload   []byte
	}{
		{"in memory", 0, []byte("hello world")},
		{"spilled", 8, bytes.Repeat([]byte("0123456789"), 200)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rm, url := newRemote(t, "")
			fs := afero.NewMemMapFs()

			s, err := urlfile.Open(context.Background(), url, urlfile.WriteBinary,
				urlfile.WithMemThreshold(tt.threshold),
				urlfile.WithSpoolFs(fs),
			)
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			if _, err := s.Write(tt.payload); err != nil {
				t.Fatalf("Write: %v", err)
			}

			// The transport reads the buffer but must not close it; the
			// release step does, exactly once.
			if err := s.Close(); err != nil {
				t.Fatalf("Close after successful upload = %v, want nil", err)
			}
			if got := rm.lastUpload(); !bytes.Equal(got, tt.payload) {
				t.Errorf("uploaded %d bytes, want %d", len(got), len(tt.payload))
			}
			if n := countSpillFiles(t, fs); n != 0 {
				t.Errorf("spill files after Close = %d, want 0", n)
			}
			if err := s.Close(); !errors.Is(err, urlfile.ErrClosed) {
				t.Errorf("second Close = %v, want ErrClosed", err)
			}
		})
	}
}

func TestWriteModeReadsOwnBuffer(t *testing.T) {
	rm, url := newRemote(t, "remote content")

	s, err := urlfile.Open(context.Background(), url, urlfile.WriteBinary)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = s.Discard() }()

	if _, err := s.Write([]byte("local")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := s.Seek(0, io.SeekStart); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	got, err := io.ReadAll(s)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "local" {
		t.Errorf("content = %q, want %q", got, "local")
	}
	if gets, _ := rm.counts(); gets != 0 {
		t.Errorf("gets = %d, want 0 (reading in write mode must not fetch)", gets)
	}
}

func TestAppendExtendsRemoteContent(t *testing.T) {
	rm, url := newRemote(t, "hello")

	s, err := urlfile.Open(context.Background(), url, urlfile.AppendBinary)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if gets, _ := rm.counts(); gets != 1 {
		t.Fatalf("gets after append Open = %d, want 1 (eager fetch)", gets)
	}
	if s.Tell() != int64(len("hello")) {
		t.Errorf("Tell after append Open = %d, want %d", s.Tell(), len("hello"))
	}

	if _, err := s.WriteString(" world"); err != nil {
		t.Fatalf("WriteString: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := rm.lastUpload(); string(got) != "hello world" {
		t.Errorf("uploaded = %q, want %q", got, "hello world")
	}
}

func TestAppendOpenSurfacesFetchError(t *testing.T) {
	rm, url := newRemote(t, "")
	rm.getStatus = http.StatusInternalServerError

	_, err := urlfile.Open(context.Background(), url, urlfile.AppendBinary)
	var ferr *urlfile.FetchError
	if !errors.As(err, &ferr) {
		t.Fatalf("Open = %v, want *FetchError", err)
	}
	if ferr.StatusCode != http.StatusInternalServerError {
		t.Errorf("StatusCode = %d, want 500", ferr.StatusCode)
	}
	if !bytes.Contains(ferr.Body, []byte("remote error detail")) {
		t.Errorf("Body = %q, want the response detail", ferr.Body)
	}
}

func TestFailedFetchLeavesBufferEmptyAndRetries(t *testing.T) {
	rm, url := newRemote(t, "never served")
	rm.getStatus = http.StatusNotFound

	s, err := urlfile.Open(context.Background(), url, urlfile.ReadBinary)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = s.Close() }()

	var ferr *urlfile.FetchError
	if _, err := s.Read(make([]byte, 8)); !errors.As(err, &ferr) {
		t.Fatalf("first Read = %v, want *FetchError", err)
	}
	if s.Len() != 0 {
		t.Errorf("Len after failed fetch = %d, want 0", s.Len())
	}

	// The fetch is re-attempted, not silently skipped, and fails again
	// while the server still errors.
	if _, err := s.Read(make([]byte, 8)); !errors.As(err, &ferr) {
		t.Fatalf("second Read = %v, want *FetchError", err)
	}
	if gets, _ := rm.counts(); gets != 2 {
		t.Errorf("gets = %d, want 2", gets)
	}
}

func TestUploadErrorStillReleases(t *testing.T) {
	rm, url := newRemote(t, "")
	rm.postStatus = http.StatusBadGateway

	fs := afero.NewMemMapFs()
	s, err := urlfile.Open(context.Background(), url, urlfile.WriteBinary,
		urlfile.WithMemThreshold(8),
		urlfile.WithSpoolFs(fs),
	)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := s.Write(bytes.Repeat([]byte("x"), 64)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n := countSpillFiles(t, fs); n != 1 {
		t.Fatalf("spill files before Close = %d, want 1", n)
	}

	var uerr *urlfile.UploadError
	if err := s.Close(); !errors.As(err, &uerr) {
		t.Fatalf("Close = %v, want *UploadError", err)
	}
	if uerr.StatusCode != http.StatusBadGateway {
		t.Errorf("StatusCode = %d, want 502", uerr.StatusCode)
	}

	// The release step ran even though the upload failed.
	if n := countSpillFiles(t, fs); n != 0 {
		t.Errorf("spill files after failed Close = %d, want 0", n)
	}
	if err := s.Close(); !errors.Is(err, urlfile.ErrClosed) {
		t.Errorf("second Close = %v, want ErrClosed", err)
	}
}

func TestDiscardSkipsUpload(t *testing.T) {
	rm, url := newRemote(t, "")

	s, err := urlfile.Open(context.Background(), url, urlfile.WriteBinary)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := s.Write([]byte("half-written")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := s.Discard(); err != nil {
		t.Fatalf("Discard: %v", err)
	}
	if _, posts := rm.counts(); posts != 0 {
		t.Errorf("posts = %d, want 0 after Discard", posts)
	}
	if _, err := s.Write([]byte("x")); !errors.Is(err, urlfile.ErrClosed) {
		t.Errorf("Write after Discard = %v, want ErrClosed", err)
	}
}

func TestDiscardAfterCloseIsNoop(t *testing.T) {
	rm, url := newRemote(t, "")

	s, err := urlfile.Open(context.Background(), url, urlfile.WriteBinary)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := s.Write([]byte("committed")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Discard(); err != nil {
		t.Errorf("Discard after Close = %v, want nil", err)
	}
	if _, posts := rm.counts(); posts != 1 {
		t.Errorf("posts = %d, want exactly 1", posts)
	}
}

func TestCloseReadModeMakesNoNetworkCall(t *testing.T) {
	rm, url := newRemote(t, "content")

	s, err := urlfile.Open(context.Background(), url, urlfile.ReadBinary)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := io.ReadAll(s); err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, posts := rm.counts(); posts != 0 {
		t.Errorf("posts = %d, want 0 for read mode", posts)
	}
	if err := s.Close(); !errors.Is(err, urlfile.ErrClosed) {
		t.Errorf("second Close = %v, want ErrClosed", err)
	}
}

func TestSpillIsTransparentOverHTTP(t *testing.T) {
	payload := bytes.Repeat([]byte("0123456789"), 200) // 2000 bytes
	_, url := newRemote(t, string(payload))

	for _, threshold := range []int64{-1, 100} {
		fs := afero.NewMemMapFs()
		s, err := urlfile.Open(context.Background(), url, urlfile.ReadBinary,
			urlfile.WithMemThreshold(threshold),
			urlfile.WithSpoolFs(fs),
		)
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		got, err := io.ReadAll(s)
		if err != nil {
			t.Fatalf("ReadAll: %v", err)
		}
		if !bytes.Equal(got, payload) {
			t.Errorf("threshold %d: read %d bytes, want %d", threshold, len(got), len(payload))
		}
		if err := s.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
		if n := countSpillFiles(t, fs); n != 0 {
			t.Errorf("threshold %d: spill files after Close = %d, want 0", threshold, n)
		}
	}
}

func TestWriteOnReadMode(t *testing.T) {
	_, url := newRemote(t, "content")

	s, err := urlfile.Open(context.Background(), url, urlfile.ReadText)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = s.Close() }()

	if _, err := s.Write([]byte("nope")); !errors.Is(err, urlfile.ErrNotWritable) {
		t.Errorf("Write = %v, want ErrNotWritable", err)
	}
	if _, err := s.WriteString("nope"); !errors.Is(err, urlfile.ErrNotWritable) {
		t.Errorf("WriteString = %v, want ErrNotWritable", err)
	}
}

func TestIsEmptyPreservesCursor(t *testing.T) {
	_, url := newRemote(t, "")

	s, err := urlfile.Open(context.Background(), url, urlfile.WriteBinary)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = s.Discard() }()

	if !s.IsEmpty() {
		t.Error("fresh write stream: IsEmpty = false")
	}
	if _, err := s.Write([]byte("data")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := s.Seek(0, io.SeekStart); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if _, err := io.ReadAll(s); err != nil {
		t.Fatalf("ReadAll: %v", err)
	}

	before := s.Tell()
	if s.IsEmpty() {
		t.Error("IsEmpty = true after write")
	}
	if s.Tell() != before {
		t.Errorf("IsEmpty moved cursor from %d to %d", before, s.Tell())
	}
}

func TestClosedStreamReportsNoContent(t *testing.T) {
	_, url := newRemote(t, "content")

	s, err := urlfile.Open(context.Background(), url, urlfile.ReadBinary)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := io.ReadAll(s); err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if got := s.Tell(); got != 0 {
		t.Errorf("Tell after Close = %d, want 0", got)
	}
	if got := s.Len(); got != 0 {
		t.Errorf("Len after Close = %d, want 0", got)
	}
	if !s.IsEmpty() {
		t.Error("IsEmpty after Close = false, want true")
	}
}

func TestTryOpen(t *testing.T) {
	rm, url := newRemote(t, "fine")

	if m := urlfile.TryOpen(context.Background(), url, urlfile.ReadBinary); !m.IsOK() {
		t.Errorf("TryOpen read = %v, want ok", m.Err())
	} else {
		_ = m.Value().Close()
	}

	rm.getStatus = http.StatusForbidden
	m := urlfile.TryOpen(context.Background(), url, urlfile.AppendBinary)
	if m.IsOK() {
		t.Fatal("TryOpen append against failing remote: IsOK = true")
	}
	var ferr *urlfile.FetchError
	if !errors.As(m.Err(), &ferr) {
		t.Errorf("TryOpen err = %v, want *FetchError", m.Err())
	}
	if m.Value() != nil {
		t.Error("TryOpen fault value != nil")
	}
}

func TestTransportOptionsReachTheWire(t *testing.T) {
	var gotToken, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("X-Token")
		gotQuery = r.URL.Query().Get("version")
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	s, err := urlfile.Open(context.Background(), srv.URL, urlfile.ReadBinary,
		urlfile.WithTransportOptions(urlfile.Options{
			Header: http.Header{"X-Token": []string{"tkn"}},
			Query:  map[string][]string{"version": {"7"}},
		}),
	)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = s.Close() }()

	if _, err := io.ReadAll(s); err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if gotToken != "tkn" {
		t.Errorf("header = %q, want %q", gotToken, "tkn")
	}
	if gotQuery != "7" {
		t.Errorf("query = %q, want %q", gotQuery, "7")
	}
}

func TestTransportTimeout(t *testing.T) {
	rm, url := newRemote(t, "slow")
	rm.getDelay = 300 * time.Millisecond

	s, err := urlfile.Open(context.Background(), url, urlfile.ReadBinary,
		urlfile.WithTransportOptions(urlfile.Options{Timeout: 20 * time.Millisecond}),
	)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = s.Close() }()

	if _, err := s.Read(make([]byte, 4)); err == nil {
		t.Error("Read under a 20ms timeout against a 300ms remote: expected error")
	}
}

func TestAppendTextReencodesOnUpload(t *testing.T) {
	rm, url := newRemote(t, "caf\xe9")
	rm.getHeader = http.Header{"Content-Type": []string{"text/plain; charset=iso-8859-1"}}

	s, err := urlfile.Open(context.Background(), url, urlfile.AppendText)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := s.WriteString(" au lait"); err != nil {
		t.Fatalf("WriteString: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// The buffer held UTF-8; the wire carries the discovered charset.
	want := []byte("caf\xe9 au lait")
	if got := rm.lastUpload(); !bytes.Equal(got, want) {
		t.Errorf("uploaded = %q, want %q", got, want)
	}
}

func TestWriteTextDeclaredEncoding(t *testing.T) {
	rm, url := newRemote(t, "")

	s, err := urlfile.Open(context.Background(), url, urlfile.WriteText,
		urlfile.WithEncoding("iso-8859-1"),
	)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := s.WriteString("café"); err != nil {
		t.Fatalf("WriteString: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := rm.lastUpload(); !bytes.Equal(got, []byte("caf\xe9")) {
		t.Errorf("uploaded = %q, want %q", got, "caf\xe9")
	}
}

func countSpillFiles(t *testing.T, fs afero.Fs) int {
	t.Helper()
	n := 0
	err := afero.Walk(fs, "/", func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			n++
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	return n
}
