package tlv

import "fmt"

// LENGTH ENCODING:
//
// BER-TLV (ISO/IEC 7816-4 Section 5.2.2.2):
//   - Short form: one byte 00..7F holding the length.
//   - Long form:  one byte 8N followed by N bytes of big-endian length.
//     '80' (indefinite length) is not allowed in card data objects.
//
//     Length        Encoding
//     0..127        L
//     128..255      81 L
//     256..65535    82 LL LL
//     ...           83 LL LL LL, 84 LL LL LL LL
//
// DGI (GlobalPlatform Card Specification Section 11.11.3.2):
//   - 0..254:    one byte.
//   - 255..65535: FF followed by 2 bytes of big-endian length.

const (
	// maxBERLengthOctets is the widest long-form length this package produces or accepts.
	maxBERLengthOctets = 4

	// MaxBERLength is the largest value length representable with 4 length octets.
	MaxBERLength uint64 = 1<<32 - 1

	// MaxDGILength is the largest value length representable in DGI framing.
	MaxDGILength = 0xFFFF
)

// ReadLength reads a BER length field from the front of b.
// It returns the decoded length and the number of bytes consumed. It does not
// check the length against the bytes that follow; the codec does.
func ReadLength(b []byte) (int, int, error) {
	if len(b) == 0 {
		return 0, 0, fmt.Errorf("%w: missing length", ErrMalformedLength)
	}

	first := b[0]
	if first < 0x80 {
		return int(first), 1, nil
	}

	count := int(first & 0x7F)
	if count == 0 {
		return 0, 0, fmt.Errorf("%w: indefinite form not supported", ErrMalformedLength)
	}
	if count > len(b)-1 {
		return 0, 0, fmt.Errorf("%w: %d length octets announced, %d available", ErrMalformedLength, count, len(b)-1)
	}

	var n uint64
	significant := 0
	for _, octet := range b[1 : 1+count] {
		if significant == 0 && octet == 0 {
			continue
		}
		significant++
		if significant > maxBERLengthOctets {
			return 0, 0, fmt.Errorf("%w: length wider than %d octets", ErrMalformedLength, maxBERLengthOctets)
		}
		n = n<<8 | uint64(octet)
	}

	if uint64(int(n)) != n || int(n) < 0 {
		return 0, 0, fmt.Errorf("%w: length %d overflows int", ErrMalformedLength, n)
	}

	return int(n), 1 + count, nil
}

// AppendLength appends the minimal BER encoding of n to dst.
func AppendLength(dst []byte, n int) ([]byte, error) {
	if n < 0 {
		return dst, fmt.Errorf("%w: negative length %d", ErrInvalidValue, n)
	}
	if uint64(n) > MaxBERLength {
		return dst, fmt.Errorf("%w: %d bytes exceed BER length limit", ErrValueTooLong, n)
	}

	if n < 0x80 {
		return append(dst, byte(n)), nil
	}

	count := 0
	for v := uint64(n); v > 0; v >>= 8 {
		count++
	}

	dst = append(dst, 0x80|byte(count))
	for i := count - 1; i >= 0; i-- {
		dst = append(dst, byte(uint64(n)>>(8*uint(i))))
	}
	return dst, nil
}

// ReadDGILength reads a DGI length field from the front of b.
func ReadDGILength(b []byte) (int, int, error) {
	if len(b) == 0 {
		return 0, 0, fmt.Errorf("%w: missing DGI length", ErrMalformedLength)
	}
	if b[0] != 0xFF {
		return int(b[0]), 1, nil
	}
	if len(b) < 3 {
		return 0, 0, fmt.Errorf("%w: truncated extended DGI length", ErrMalformedLength)
	}
	return int(b[1])<<8 | int(b[2]), 3, nil
}

// AppendDGILength appends the DGI encoding of n to dst.
func AppendDGILength(dst []byte, n int) ([]byte, error) {
	switch {
	case n < 0:
		return dst, fmt.Errorf("%w: negative length %d", ErrInvalidValue, n)
	case n > MaxDGILength:
		return dst, fmt.Errorf("%w: %d bytes exceed DGI length limit", ErrValueTooLong, n)
	case n < 0xFF:
		return append(dst, byte(n)), nil
	default:
		return append(dst, 0xFF, byte(n>>8), byte(n)), nil
	}
}
