package archive

import (
	"bytes"
	stdgzip "compress/gzip"
	"io"
	"sync"
	"sync/atomic"
	"testing"
)

type byteReaderAt []byte

func (b byteReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(b)) {
		return 0, io.EOF
	}
	n := copy(p, b[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// countingReaderAt counts how many times the compressed source is read.
type countingReaderAt struct {
	byteReaderAt
	calls atomic.Int32
}

func (c *countingReaderAt) ReadAt(p []byte, off int64) (int, error) {
	c.calls.Add(1)
	return c.byteReaderAt.ReadAt(p, off)
}

func gzipOf(t *testing.T, want []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := stdgzip.NewWriter(&buf)
	if _, err := w.Write(want); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return buf.Bytes()
}

func TestReadAt(t *testing.T) {
	want := bytes.Repeat([]byte("archive cached reader payload "), 2000)
	src := gzipOf(t, want)

	r := NewReader(byteReaderAt(src), int64(len(src)))

	got := make([]byte, len(want))
	n, err := r.ReadAt(got, 0)
	if err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if !bytes.Equal(got[:n], want) {
		t.Fatalf("ReadAt(0) mismatch")
	}

	// A second, offset read should be served from the cache, not a
	// fresh decompression.
	tail := make([]byte, 10)
	n, err = r.ReadAt(tail, int64(len(want)-10))
	if err != nil {
		t.Fatalf("ReadAt(tail): %v", err)
	}
	if !bytes.Equal(tail[:n], want[len(want)-10:]) {
		t.Fatalf("ReadAt(tail) mismatch")
	}
}

func TestReadAtConcurrentCoalesces(t *testing.T) {
	want := bytes.Repeat([]byte("concurrent payload "), 5000)
	src := gzipOf(t, want)

	ra := &countingReaderAt{byteReaderAt: src}
	r := NewReader(ra, int64(len(src)))

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p := make([]byte, len(want))
			_, err := r.ReadAt(p, 0)
			errs[i] = err
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("goroutine %d: ReadAt: %v", i, err)
		}
	}
	if got := ra.calls.Load(); got != 1 {
		t.Fatalf("compressed source read %d times, want 1", got)
	}
}

func TestEncodeDecode(t *testing.T) {
	want := bytes.Repeat([]byte("index payload "), 100)
	src := gzipOf(t, want)

	r := NewReader(byteReaderAt(src), int64(len(src)))

	var buf bytes.Buffer
	if err := r.Encode(&buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	idx, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if idx.Size != int64(len(want)) {
		t.Fatalf("idx.Size = %d, want %d", idx.Size, len(want))
	}
}

func TestReadAtPastEnd(t *testing.T) {
	want := []byte("short payload")
	src := gzipOf(t, want)

	r := NewReader(byteReaderAt(src), int64(len(src)))

	p := make([]byte, 4)
	if _, err := r.ReadAt(p, int64(len(want)+100)); err != io.EOF {
		t.Fatalf("ReadAt past end: got %v, want io.EOF", err)
	}
}
