package zlib

import (
	"bytes"
	stdzlib "compress/zlib"
	"testing"
)

func zlibOf(t *testing.T, want []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := stdzlib.NewWriter(&buf)
	if _, err := w.Write(want); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return buf.Bytes()
}

func TestDecompressRoundTrip(t *testing.T) {
	want := bytes.Repeat([]byte("zlib round trip payload "), 500)
	src := zlibOf(t, want)

	dst := make([]byte, len(want))
	n, err := Decompress(dst, src)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if !bytes.Equal(dst[:n], want) {
		t.Fatalf("round trip mismatch: got %d bytes, want %d", n, len(want))
	}
}

func TestDecompressBadHeaderChecksum(t *testing.T) {
	want := []byte("header checksum payload")
	src := zlibOf(t, want)
	src[1] ^= 0xff

	dst := make([]byte, len(want))
	if _, err := Decompress(dst, src); err == nil {
		t.Fatal("expected header checksum error")
	}
}

func TestDecompressFDICTRejected(t *testing.T) {
	want := []byte("fdict payload")
	src := zlibOf(t, want)
	src[1] |= 0x20 // set FDICT
	// Recompute FCHECK so the header checksum still holds and the
	// rejection comes from the FDICT bit itself.
	src[1] &^= 0x1f
	src[1] += byte((31 - (uint16(src[0])*256+uint16(src[1]))%31) % 31)

	dst := make([]byte, len(want))
	if _, err := Decompress(dst, src); err == nil {
		t.Fatal("expected FDICT to be rejected")
	}
}

func TestDecompressCorruptedAdler(t *testing.T) {
	want := []byte("adler check payload")
	src := zlibOf(t, want)
	src[len(src)-1] ^= 0xff

	dst := make([]byte, len(want))
	if _, err := Decompress(dst, src); err == nil {
		t.Fatal("expected Adler-32 mismatch error")
	}
}
