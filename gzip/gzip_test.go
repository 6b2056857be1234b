package gzip

import (
	"bytes"
	stdgzip "compress/gzip"
	"testing"
)

// gzipOf encodes want with the standard library's gzip writer, purely
// as a test fixture generator (see tinf's deflateOf for the same
// rationale: the corpus carries no third-party DEFLATE encoder).
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

func TestDecompressRoundTrip(t *testing.T) {
	want := bytes.Repeat([]byte("gzip round trip payload "), 500)
	src := gzipOf(t, want)

	dst := make([]byte, len(want))
	n, err := Decompress(dst, src)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if !bytes.Equal(dst[:n], want) {
		t.Fatalf("round trip mismatch: got %d bytes, want %d", n, len(want))
	}
}

func TestDecompressMultiMember(t *testing.T) {
	a := []byte("first member payload\n")
	b := []byte("second member payload, a different one\n")

	src := append(gzipOf(t, a), gzipOf(t, b)...)

	dst := make([]byte, len(a)+len(b))
	n, err := Decompress(dst, src)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	want := append(append([]byte(nil), a...), b...)
	if !bytes.Equal(dst[:n], want) {
		t.Fatalf("multi-member round trip mismatch: got %q, want %q", dst[:n], want)
	}
}

func TestDecompressBadMagic(t *testing.T) {
	src := []byte{0x00, 0x00, 8, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	dst := make([]byte, 16)
	if _, err := Decompress(dst, src); err == nil {
		t.Fatal("expected error for bad magic")
	}
}

func TestDecompressCorruptedCRC(t *testing.T) {
	want := []byte("crc check payload")
	src := gzipOf(t, want)
	src[len(src)-5] ^= 0xff // flip every bit of the trailer CRC-32's last byte

	dst := make([]byte, len(want))
	if _, err := Decompress(dst, src); err == nil {
		t.Fatal("expected CRC or ISIZE mismatch error")
	}
}

func TestDecompressFNAMEAndFCOMMENT(t *testing.T) {
	want := []byte("payload with name and comment set")
	var buf bytes.Buffer
	w := stdgzip.NewWriter(&buf)
	w.Name = "hello.txt"
	w.Comment = "a test fixture"
	if _, err := w.Write(want); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	dst := make([]byte, len(want))
	n, err := Decompress(dst, buf.Bytes())
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if !bytes.Equal(dst[:n], want) {
		t.Fatalf("round trip mismatch with FNAME/FCOMMENT set")
	}
}
