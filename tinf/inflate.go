// Package tinf decodes a single complete DEFLATE (RFC 1951) stream
// from a compressed byte buffer into a caller-provided uncompressed
// byte buffer. It has no encoder, no streaming/incremental API, and
// no concurrency: one call owns its decoder state exclusively from
// start to finish.
package tinf

// endOfBlock is the literal/length symbol that terminates a block's
// symbol stream.
const endOfBlock = 256

// maxLengthsScratch holds every code length a dynamic header can ever
// describe: up to 286 literal/length codes plus up to 30 distance
// codes.
const maxLengthsScratch = maxHLIT + maxHDIST

// decoder holds all state for one Decompress call: the bit reader,
// the output cursor, the two reusable Huffman trees, and scratch
// space for dynamic header decoding.
type decoder struct {
	bits    bitReader
	dest    []byte
	destPos int

	ltree, dtree huffmanTree
	lengths      [maxLengthsScratch]byte
}

// Decompress decodes the DEFLATE stream in src into dst, returning
// the number of bytes written. It never writes more than len(dst)
// bytes and never reads past len(src).
//
// On success it returns (n, nil) with n <= len(dst). On failure it
// returns (0, err), where err is either a *DataError (malformed
// input) or a *BufError (dst too small for the decoded output); dst's
// contents are then undefined and must not be relied upon.
func Decompress(dst, src []byte) (int, error) {
	n, _, err := DecompressPrefix(dst, src)
	return n, err
}

// DecompressPrefix is like Decompress, but additionally reports how
// many bytes of src the DEFLATE stream actually occupied. Container
// formats that may concatenate several DEFLATE streams back to back
// (gzip members) need this to find where the next one starts; plain
// Decompress doesn't expose it because spec.md's core interface has
// no use for it.
func DecompressPrefix(dst, src []byte) (n, consumed int, err error) {
	d := decoder{bits: newBitReader(src), dest: dst}

	for {
		final := d.bits.getBits(1)
		btype := d.bits.getBits(2)

		var err error
		switch btype {
		case 0:
			err = d.decodeUncompressedBlock()
		case 1:
			buildFixedTrees(&d.ltree, &d.dtree)
			err = d.decodeBlockData(&d.ltree, &d.dtree)
		case 2:
			if err = d.decodeDynamicHeader(&d.ltree, &d.dtree); err == nil {
				err = d.decodeBlockData(&d.ltree, &d.dtree)
			}
		default:
			err = dataError("reserved block type 3")
		}
		if err != nil {
			return 0, 0, err
		}

		if final == 1 {
			break
		}
	}

	if d.bits.overflow {
		return 0, 0, dataError("unexpected end of input")
	}

	return d.destPos, d.bits.pos, nil
}
