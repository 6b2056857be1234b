package fetch

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestReadAtRange(t *testing.T) {
	want := []byte("hello ranged world, this is the fetch payload")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		http.ServeContent(w, req, "obj", time.Time{}, newReaderAt(want))
	}))
	defer srv.Close()

	r := New(context.Background(), srv.URL, http.DefaultTransport)

	p := make([]byte, 5)
	n, err := r.ReadAt(p, 6)
	if err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if got, want := string(p[:n]), "ranged"[:5]; got != want {
		t.Fatalf("ReadAt(6) = %q, want %q", got, want)
	}
}

func TestReadAtFollowsRedirect(t *testing.T) {
	want := []byte("redirected payload contents")

	final := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		http.ServeContent(w, req, "obj", time.Time{}, newReaderAt(want))
	}))
	defer final.Close()

	redirector := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		http.Redirect(w, req, final.URL, http.StatusFound)
	}))
	defer redirector.Close()

	r := New(context.Background(), redirector.URL, http.DefaultTransport)

	p := make([]byte, len(want))
	n, err := r.ReadAt(p, 0)
	if err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if string(p[:n]) != string(want) {
		t.Fatalf("ReadAt = %q, want %q", p[:n], want)
	}
}

func TestReadAtRejectsNonRangeServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("no range support here"))
	}))
	defer srv.Close()

	r := New(context.Background(), srv.URL, http.DefaultTransport)
	p := make([]byte, 4)
	if _, err := r.ReadAt(p, 0); err == nil {
		t.Fatal("expected error for a server that doesn't support range requests")
	}
}

// newReaderAt adapts a byte slice to io.ReadSeeker for http.ServeContent.
func newReaderAt(b []byte) io.ReadSeeker {
	return &sliceReadSeeker{b: b}
}

type sliceReadSeeker struct {
	b   []byte
	pos int64
}

func (s *sliceReadSeeker) Read(p []byte) (int, error) {
	if s.pos >= int64(len(s.b)) {
		return 0, io.EOF
	}
	n := copy(p, s.b[s.pos:])
	s.pos += int64(n)
	return n, nil
}

func (s *sliceReadSeeker) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		s.pos = offset
	case io.SeekCurrent:
		s.pos += offset
	case io.SeekEnd:
		s.pos = int64(len(s.b)) + offset
	}
	return s.pos, nil
}
