// Package zlib parses the zlib (RFC 1950) container around a DEFLATE
// payload: it validates the two-byte CMF/FLG header, hands the
// payload to tinf, and validates the trailing Adler-32 checksum.
// Encoding and preset dictionaries (FDICT) are out of scope.
package zlib

import (
	"encoding/binary"
	"fmt"
	"hash/adler32"

	"github.com/go-tinflate/tinflate/tinf"
)

const cmDeflate = 8

// Decompress decodes the zlib stream in src into dst, returning the
// number of bytes written.
func Decompress(dst, src []byte) (int, error) {
	if len(src) < 6 {
		return 0, fmt.Errorf("zlib: header truncated")
	}

	cmf, flg := src[0], src[1]
	if cmf&0x0f != cmDeflate {
		return 0, fmt.Errorf("zlib: unsupported compression method %d", cmf&0x0f)
	}
	if (uint16(cmf)*256+uint16(flg))%31 != 0 {
		return 0, fmt.Errorf("zlib: header checksum mismatch")
	}
	if flg&0x20 != 0 {
		return 0, fmt.Errorf("zlib: preset dictionaries (FDICT) are not supported")
	}

	payloadEnd := len(src) - 4
	n, err := tinf.Decompress(dst, src[2:payloadEnd])
	if err != nil {
		return 0, fmt.Errorf("zlib: %w", err)
	}

	wantAdler := binary.BigEndian.Uint32(src[payloadEnd:])
	gotAdler := adler32.Checksum(dst[:n])
	if gotAdler != wantAdler {
		return 0, fmt.Errorf("zlib: Adler-32 mismatch: got %08x, want %08x", gotAdler, wantAdler)
	}

	return n, nil
}
