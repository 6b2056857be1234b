package tinf

// maxCodeLength is the longest Huffman code length DEFLATE allows.
const maxCodeLength = 15

// huffmanTree is a canonical Huffman decode table, reused across
// blocks for both the literal/length and distance alphabets.
//
//   - table[l] is the number of symbols assigned a code of length l;
//     table[0] is always 0.
//   - trans holds the symbols in canonical order (sorted by code
//     length, then by symbol index); only the first sum(table)
//     entries are meaningful.
//   - maxSym is the largest symbol index with a non-zero code length,
//     or -1 if the tree has no codes at all.
type huffmanTree struct {
	table  [maxCodeLength + 1]uint16
	trans  [288]uint16
	maxSym int32
}

// build turns a vector of code lengths (each in [0, 15]) into a
// canonical Huffman decode table. It implements spec section 4.2
// exactly, including the single-code degenerate-tree fix-up.
func (t *huffmanTree) build(lengths []byte) error {
	for i := range t.table {
		t.table[i] = 0
	}
	t.maxSym = -1

	for i, l := range lengths {
		if l == 0 {
			continue
		}
		t.maxSym = int32(i)
		t.table[l]++
	}
	t.table[0] = 0

	// max tracks the number of still-assignable codes at the current
	// length: it doubles on entry to each length (every unused slot
	// at length l-1 splits into two slots at length l), then the
	// codes actually assigned at this length are subtracted.
	var offs [maxCodeLength + 1]uint16
	sum := 0
	max := 1
	soleLength := 0
	for l := 1; l <= maxCodeLength; l++ {
		max *= 2
		if int(t.table[l]) > max {
			return dataError("huffman tree oversubscribed at length %d", l)
		}
		max -= int(t.table[l])
		offs[l] = uint16(sum)
		sum += int(t.table[l])
		if t.table[l] > 0 {
			soleLength = l
		}
	}

	// The degenerate single-code exception (zlib compatibility: a
	// tree with exactly one code is accepted even though it leaves
	// the codespace half-unused) only applies when that lone code's
	// length is 1 — the same condition the teacher's own
	// huffmanDecoder.init guards with "code == 1 && max == 1". A sole
	// code at any other length still violates the Kraft inequality
	// and must be rejected like any other incomplete tree.
	if sum > 1 && max > 0 || sum == 1 && soleLength != 1 {
		return dataError("huffman tree incomplete")
	}

	for i, l := range lengths {
		if l == 0 {
			continue
		}
		t.trans[offs[l]] = uint16(i)
		offs[l]++
	}

	if sum == 1 {
		// A single code of length 1 leaves its sibling code unused.
		// Route it to an out-of-range symbol so the caller rejects it.
		t.table[1] = 2
		t.trans[1] = uint16(t.maxSym + 1)
	}

	return nil
}

// decodeSymbol reads one symbol from r according to t, descending the
// canonical code bit by bit (spec section 4.3).
func (t *huffmanTree) decodeSymbol(r *bitReader) uint16 {
	sum, cur, length := int32(0), int32(0), uint(0)
	for {
		cur = 2*cur + int32(r.getBits(1))
		length++
		sum += int32(t.table[length])
		cur -= int32(t.table[length])
		if cur < 0 {
			break
		}
	}
	return t.trans[sum+cur]
}

// buildFixedTrees materializes the RFC 1951 section 3.2.6 fixed
// literal/length and distance trees without calling build, since the
// counts are fixed and known in advance (spec section 4.4).
func buildFixedTrees(lt, dt *huffmanTree) {
	lt.table = [maxCodeLength + 1]uint16{}
	lt.table[7] = 24
	lt.table[8] = 152
	lt.table[9] = 112
	lt.maxSym = 285

	i := 0
	for sym := 256; sym <= 279; sym++ {
		lt.trans[i] = uint16(sym)
		i++
	}
	for sym := 0; sym <= 143; sym++ {
		lt.trans[i] = uint16(sym)
		i++
	}
	for sym := 280; sym <= 287; sym++ {
		lt.trans[i] = uint16(sym)
		i++
	}
	for sym := 144; sym <= 255; sym++ {
		lt.trans[i] = uint16(sym)
		i++
	}

	dt.table = [maxCodeLength + 1]uint16{}
	dt.table[5] = 32
	dt.maxSym = 29
	for i := 0; i < 32; i++ {
		dt.trans[i] = uint16(i)
	}
}
