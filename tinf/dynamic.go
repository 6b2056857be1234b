package tinf

// codeLengthOrder is the order in which code-length-alphabet lengths
// are transmitted in a dynamic block header (RFC 1951 section 3.2.7).
var codeLengthOrder = [19]int{16, 17, 18, 0, 8, 7, 9, 6, 10, 5, 11, 4, 12, 3, 13, 2, 14, 1, 15}

const (
	maxHLIT  = 286
	maxHDIST = 30
)

// decodeDynamicHeader reads HLIT, HDIST, HCLEN, the code-length
// alphabet, and then the literal/length and distance trees they
// describe (spec section 4.5). It reuses d.lengths as scratch and
// writes the resulting trees into lt and dt.
func (d *decoder) decodeDynamicHeader(lt, dt *huffmanTree) error {
	hlit := int(d.bits.getBits(5)) + 257
	hdist := int(d.bits.getBits(5)) + 1
	hclen := int(d.bits.getBits(4)) + 4

	if hlit > maxHLIT {
		return dataError("HLIT %d out of range", hlit)
	}
	if hdist > maxHDIST {
		return dataError("HDIST %d out of range", hdist)
	}

	var codeLengths [19]byte
	for i := 0; i < hclen; i++ {
		codeLengths[codeLengthOrder[i]] = byte(d.bits.getBits(3))
	}

	var clTree huffmanTree
	if err := clTree.build(codeLengths[:]); err != nil {
		return err
	}
	if clTree.maxSym < 0 {
		return dataError("empty code-length tree")
	}

	total := hlit + hdist
	for i := range d.lengths[:total] {
		d.lengths[i] = 0
	}

	for i := 0; i < total; {
		sym := clTree.decodeSymbol(&d.bits)
		if d.bits.overflow {
			return dataError("unexpected end of input decoding code lengths")
		}
		if int32(sym) > clTree.maxSym {
			return dataError("invalid code-length symbol %d", sym)
		}

		switch {
		case sym <= 15:
			d.lengths[i] = byte(sym)
			i++
		case sym == 16:
			if i == 0 {
				return dataError("repeat code 16 with no previous length")
			}
			prev := d.lengths[i-1]
			rep := int(d.bits.getBitsBase(2, 3))
			if i+rep > total {
				return dataError("repeat code 16 overshoots code length table")
			}
			for j := 0; j < rep; j++ {
				d.lengths[i] = prev
				i++
			}
		case sym == 17:
			rep := int(d.bits.getBitsBase(3, 3))
			if i+rep > total {
				return dataError("repeat code 17 overshoots code length table")
			}
			for j := 0; j < rep; j++ {
				d.lengths[i] = 0
				i++
			}
		case sym == 18:
			rep := int(d.bits.getBitsBase(7, 11))
			if i+rep > total {
				return dataError("repeat code 18 overshoots code length table")
			}
			for j := 0; j < rep; j++ {
				d.lengths[i] = 0
				i++
			}
		default:
			return dataError("invalid code-length symbol %d", sym)
		}
	}

	if d.lengths[256] == 0 {
		return dataError("missing end-of-block code")
	}

	if err := lt.build(d.lengths[:hlit]); err != nil {
		return err
	}
	if err := dt.build(d.lengths[hlit:total]); err != nil {
		return err
	}

	return nil
}
