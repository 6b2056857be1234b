package tinf

import "golang.org/x/exp/constraints"

// clamp restricts v to [lo, hi].
func clamp[T constraints.Integer](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// EstimateOutputSize returns a starting guess for how large a
// destination buffer Decompress will need for a DEFLATE stream of
// srcLen compressed bytes, since Decompress itself takes no dynamic
// allocation strategy and requires the caller to pre-size dst (spec
// section 1, non-goals). DEFLATE caps the compression ratio a
// conforming encoder can produce at roughly 1032:1 (a run of the
// maximum 258-byte match encoded in a handful of bits, repeated), so
// a caller that retries with a larger buffer on *BufError never needs
// more than about 1032 times srcLen; this only picks a reasonable
// first guess.
func EstimateOutputSize(srcLen int) int {
	const (
		minGuess   = 64
		maxGuess   = 1 << 28
		ratioGuess = 4
	)
	return clamp(srcLen*ratioGuess, minGuess, maxGuess)
}
