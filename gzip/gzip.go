// Package gzip parses the gzip (RFC 1952) container around a DEFLATE
// payload: it locates the payload, hands it to tinf, and validates
// the trailing CRC-32 and ISIZE fields. Encoding is out of scope.
package gzip

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/go-tinflate/tinflate/tinf"
)

const (
	magic0 = 0x1f
	magic1 = 0x8b
	cmDeflate = 8
)

// Flag bits in the gzip header (RFC 1952 section 2.3.1).
const (
	flagText    = 1 << 0
	flagHCRC    = 1 << 1
	flagExtra   = 1 << 2
	flagName    = 1 << 3
	flagComment = 1 << 4
)

// Decompress decodes the gzip stream in src into dst, returning the
// number of bytes written. src may contain multiple concatenated
// gzip members, as produced by `gzip(1)` on more than one input; all
// of them are decoded and appended.
func Decompress(dst, src []byte) (int, error) {
	total := 0
	for len(src) > 0 {
		member, rest, err := decompressMember(dst[total:], src)
		if err != nil {
			return 0, err
		}
		total += member
		src = rest
	}
	return total, nil
}

func decompressMember(dst, src []byte) (n int, rest []byte, err error) {
	if len(src) < 10 {
		return 0, nil, fmt.Errorf("gzip: header truncated")
	}
	if src[0] != magic0 || src[1] != magic1 {
		return 0, nil, fmt.Errorf("gzip: bad magic %02x%02x", src[0], src[1])
	}
	if src[2] != cmDeflate {
		return 0, nil, fmt.Errorf("gzip: unsupported compression method %d", src[2])
	}

	flags := src[3]
	if flags&^(flagText|flagHCRC|flagExtra|flagName|flagComment) != 0 {
		return 0, nil, fmt.Errorf("gzip: reserved flag bits set in %02x", flags)
	}
	pos := 10

	if flags&flagExtra != 0 {
		if len(src) < pos+2 {
			return 0, nil, fmt.Errorf("gzip: truncated FEXTRA length")
		}
		xlen := int(binary.LittleEndian.Uint16(src[pos:]))
		pos += 2
		if len(src) < pos+xlen {
			return 0, nil, fmt.Errorf("gzip: truncated FEXTRA field")
		}
		pos += xlen
	}
	if flags&flagName != 0 {
		pos, err = skipCString(src, pos)
		if err != nil {
			return 0, nil, fmt.Errorf("gzip: %w", err)
		}
	}
	if flags&flagComment != 0 {
		pos, err = skipCString(src, pos)
		if err != nil {
			return 0, nil, fmt.Errorf("gzip: %w", err)
		}
	}
	if flags&flagHCRC != 0 {
		if len(src) < pos+2 {
			return 0, nil, fmt.Errorf("gzip: truncated FHCRC")
		}
		pos += 2
	}

	// DecompressPrefix reports exactly how many bytes of src the
	// DEFLATE stream consumed, so a concatenated member (or the 8-byte
	// trailer) immediately following it is found precisely rather than
	// assumed to sit at len(src)-8 — that assumption only holds for a
	// single-member stream.
	var consumed int
	n, consumed, err = tinf.DecompressPrefix(dst, src[pos:])
	if err != nil {
		return 0, nil, fmt.Errorf("gzip: %w", err)
	}
	payloadEnd := pos + consumed

	if len(src) < payloadEnd+8 {
		return 0, nil, fmt.Errorf("gzip: truncated trailer")
	}

	wantCRC := binary.LittleEndian.Uint32(src[payloadEnd:])
	wantISize := binary.LittleEndian.Uint32(src[payloadEnd+4:])

	gotCRC := crc32.ChecksumIEEE(dst[:n])
	if gotCRC != wantCRC {
		return 0, nil, fmt.Errorf("gzip: CRC-32 mismatch: got %08x, want %08x", gotCRC, wantCRC)
	}
	if uint32(n) != wantISize {
		return 0, nil, fmt.Errorf("gzip: ISIZE mismatch: got %d, want %d", n, wantISize)
	}

	return n, src[payloadEnd+8:], nil
}

func skipCString(src []byte, pos int) (int, error) {
	for i := pos; i < len(src); i++ {
		if src[i] == 0 {
			return i + 1, nil
		}
	}
	return 0, fmt.Errorf("unterminated string field")
}
