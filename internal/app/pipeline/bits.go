package pipeline

import "math/bits"

// IsolateBits splits n into its set bits, lowest first. Each step extracts the
// lowest set bit with n & -n and clears it, so the loop runs popcount(n) times.
func IsolateBits(n uint64) []uint64 {
	out := make([]uint64, 0, bits.OnesCount64(n))
	for n != 0 {
		b := n & -n
		out = append(out, b)
		n ^= b
	}
	return out
}

// BitPosition is the 1-based index of the single bit set in b.
func BitPosition(b uint64) int { return bits.Len64(b) }
