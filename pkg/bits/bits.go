// Package bits reads and writes the bits of a byte numbered the way
// ISO/IEC 7816, ETSI and GlobalPlatform tables number them: b8 is the most
// significant bit, b1 the least. Out of range positions read as zero and
// leave the byte unchanged.
package bits

func mask(n uint) byte {
	if n < 1 || n > 8 {
		return 0
	}
	return 1 << (n - 1)
}

// IsSet reports whether bn is set.
func IsSet(b byte, n uint) bool {
	return b&mask(n) != 0
}

// Set returns b with bn set.
func Set(b byte, n uint) byte {
	return b | mask(n)
}

// Clear returns b with bn cleared.
func Clear(b byte, n uint) byte {
	return b &^ mask(n)
}

// GetRange returns the field bhigh..blow shifted down, so that
// GetRange(0x0C, 4, 3) is 3.
func GetRange(b byte, high, low uint) byte {
	if low < 1 || high > 8 || high < low {
		return 0
	}
	return b >> (low - 1) & (0xFF >> (8 - (high - low + 1)))
}

// Names returns the names of the set bits of b, from b8 down to b1. names[0]
// is the name of b8; empty names are skipped.
func Names(b byte, names [8]string) []string {
	var set []string
	for i, name := range names {
		if name != "" && IsSet(b, uint(8-i)) {
			set = append(set, name)
		}
	}
	return set
}
