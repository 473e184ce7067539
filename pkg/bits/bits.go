// Package bits provides helpers for the 1-indexed bit numbering used
// throughout ISO/IEC 7816, where bit 1 is the least significant bit of a
// byte and bit 8 the most significant.
package bits

// Mask returns a byte with only the n-th bit set (n in 1..8).
// Out-of-range values yield 0.
func Mask(n uint) byte {
	if n < 1 || n > 8 {
		return 0
	}
	return 1 << (n - 1)
}

// IsSet reports whether the n-th bit of b is set (n in 1..8).
func IsSet(b byte, n uint) bool {
	return b&Mask(n) != 0
}

// Set returns b with the n-th bit set (n in 1..8).
func Set(b byte, n uint) byte {
	return b | Mask(n)
}

// GetRange extracts the value carried by bits high..low of b.
// Example: GetRange(0b0000_1100, 4, 3) == 0b11.
func GetRange(b byte, high, low uint) byte {
	if high < low || high > 8 || low < 1 {
		return 0
	}
	width := high - low + 1
	return (b >> (low - 1)) & byte((1<<width)-1)
}
