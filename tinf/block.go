package tinf

// lengthBase and lengthBits give the base value and extra-bit count
// for length symbols 257..285 (RFC 1951 section 3.2.5), indexed by
// symbol-257.
var lengthBase = [29]uint32{
	3, 4, 5, 6, 7, 8, 9, 10, 11, 13, 15, 17, 19, 23, 27, 31,
	35, 43, 51, 59, 67, 83, 99, 115, 131, 163, 195, 227, 258,
}

var lengthBits = [29]uint{
	0, 0, 0, 0, 0, 0, 0, 0, 1, 1, 1, 1, 2, 2, 2, 2,
	3, 3, 3, 3, 4, 4, 4, 4, 5, 5, 5, 5, 0,
}

// distBase and distBits give the base value and extra-bit count for
// distance symbols 0..29.
var distBase = [30]uint32{
	1, 2, 3, 4, 5, 7, 9, 13, 17, 25, 33, 49, 65, 97, 129, 193,
	257, 385, 513, 769, 1025, 1537, 2049, 3073, 4097, 6145, 8193, 12289, 16385, 24577,
}

var distBits = [30]uint{
	0, 0, 0, 0, 1, 1, 2, 2, 3, 3, 4, 4, 5, 5, 6, 6,
	7, 7, 8, 8, 9, 9, 10, 10, 11, 11, 12, 12, 13, 13,
}

// decodeBlockData drives the literal/length/distance symbol loop for
// a fixed or dynamic Huffman block, writing directly into d.dest
// (spec section 4.6).
func (d *decoder) decodeBlockData(lt, dt *huffmanTree) error {
	for {
		sym := int(lt.decodeSymbol(&d.bits))
		if d.bits.overflow {
			return dataError("unexpected end of input decoding block symbol")
		}

		if sym == endOfBlock {
			return nil
		}

		if sym < endOfBlock {
			if d.destPos >= len(d.dest) {
				return bufError("no room for literal byte")
			}
			d.dest[d.destPos] = byte(sym)
			d.destPos++
			continue
		}

		if int32(sym) > lt.maxSym || sym-257 > 28 || dt.maxSym == -1 {
			return dataError("invalid length symbol %d", sym)
		}

		idx := sym - 257
		length := int(d.bits.getBitsBase(lengthBits[idx], lengthBase[idx]))

		dsym := int(dt.decodeSymbol(&d.bits))
		if d.bits.overflow {
			return dataError("unexpected end of input decoding distance symbol")
		}
		if int32(dsym) > dt.maxSym || dsym > 29 {
			return dataError("invalid distance symbol %d", dsym)
		}

		offset := int(d.bits.getBitsBase(distBits[dsym], distBase[dsym]))
		if offset > d.destPos {
			return dataError("distance %d exceeds output produced so far (%d)", offset, d.destPos)
		}
		if len(d.dest)-d.destPos < length {
			return bufError("no room for match of length %d", length)
		}

		// Byte-by-byte copy: when offset < length the copy must
		// observe its own writes to reproduce the run-length pattern
		// correctly. A bulk copy of the source range is wrong here.
		for i := 0; i < length; i++ {
			d.dest[d.destPos] = d.dest[d.destPos-offset]
			d.destPos++
		}
	}
}

// decodeUncompressedBlock copies a stored block verbatim (spec
// section 4.7), after realigning the bit reader to a byte boundary.
func (d *decoder) decodeUncompressedBlock() error {
	d.bits.align()

	var hdr [4]byte
	for i := range hdr {
		b, ok := d.bits.takeByte()
		if !ok {
			return dataError("truncated stored block header")
		}
		hdr[i] = b
	}

	length := int(hdr[0]) | int(hdr[1])<<8
	inverse := int(hdr[2]) | int(hdr[3])<<8
	if length != (^inverse)&0xffff {
		return dataError("stored block length/complement mismatch")
	}

	if length == 0 {
		d.bits.tag = 0
		d.bits.bitcount = 0
		return nil
	}

	if len(d.bits.source)-d.bits.pos < length {
		return dataError("stored block runs past end of input")
	}
	if len(d.dest)-d.destPos < length {
		return bufError("no room for stored block of length %d", length)
	}

	copy(d.dest[d.destPos:], d.bits.source[d.bits.pos:d.bits.pos+length])
	d.destPos += length
	d.bits.pos += length

	d.bits.tag = 0
	d.bits.bitcount = 0
	return nil
}
