package tlv

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/gregLibert/apdu-trace/pkg/bits"
)

// TAG ENCODING (ISO/IEC 7816-4 Section 5.2.2.1, ISO/IEC 8825-1 subset):
//
// First byte:
//   - Bits 8-7: Class (00 universal, 01 application, 10 context-specific, 11 private).
//   - Bit 6:    Primitive (0) or Constructed (1) encoding.
//   - Bits 5-1: Tag number; '11111' means the number continues in subsequent bytes.
//
// Subsequent bytes:
//   - Bit 8:    1 if another byte follows, 0 on the last byte.
//
// Cards pad before, between and after data objects with '00' or 'FF'. A '00'
// never starts a tag. 'FF' does start the private constructed tags used by
// GlobalPlatform and ARA-M (FF21, FF40, ...), so it only counts as padding when
// nothing but padding follows it.
//
// DGI TAGS (GlobalPlatform Card Specification Section 11.11.3.2):
// A Data Grouping Identifier is a plain 2-byte big-endian number with no
// class or continuation structure.

// maxTagBytes bounds a BER tag so that it fits in a Tag value.
const maxTagBytes = 4

// Class is the class of a BER tag, as encoded in bits 8-7 of its first byte.
type Class byte

const (
	ClassUniversal       Class = 0x00
	ClassApplication     Class = 0x40
	ClassContextSpecific Class = 0x80
	ClassPrivate         Class = 0xC0
)

func (c Class) String() string {
	switch c {
	case ClassUniversal:
		return "universal"
	case ClassApplication:
		return "application"
	case ClassContextSpecific:
		return "context-specific"
	case ClassPrivate:
		return "private"
	default:
		return fmt.Sprintf("Class(0x%02X)", byte(c))
	}
}

// Tag is a BER-TLV or DGI tag, held as the big-endian number formed by its
// encoded bytes (e.g. 0x9F70 for the two bytes 9F 70).
type Tag uint32

// Len returns the number of bytes of the BER encoding of t.
func (t Tag) Len() int {
	switch {
	case t > 0xFFFFFF:
		return 4
	case t > 0xFFFF:
		return 3
	case t > 0xFF:
		return 2
	default:
		return 1
	}
}

// Bytes returns the BER encoding of t.
func (t Tag) Bytes() []byte {
	return t.append(nil, t.Len())
}

func (t Tag) append(dst []byte, n int) []byte {
	for i := n - 1; i >= 0; i-- {
		dst = append(dst, byte(t>>(8*uint(i))))
	}
	return dst
}

func (t Tag) first() byte {
	return byte(t >> (8 * uint(t.Len()-1)))
}

// Class returns the class encoded in the first tag byte.
func (t Tag) Class() Class {
	return Class(t.first() & 0xC0)
}

// IsConstructed reports whether bit 6 of the first tag byte is set.
func (t Tag) IsConstructed() bool {
	return bits.IsSet(t.first(), 6)
}

// Valid reports whether t is a well-formed BER tag, i.e. whether its bytes
// decode back to the same tag.
func (t Tag) Valid() bool {
	b := t.Bytes()
	if b[0] == 0x00 {
		return false
	}
	got, n, err := ReadTag(b)
	return err == nil && n == len(b) && got == t
}

// String returns the upper-case hex form of the tag bytes, e.g. "9F70".
func (t Tag) String() string {
	return strings.ToUpper(hex.EncodeToString(t.Bytes()))
}

// ParseTag parses a hex tag such as "9F70" or "df20".
// It accepts the tag strings produced by github.com/moov-io/bertlv.
func ParseTag(s string) (Tag, error) {
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) == 0 || len(raw) > maxTagBytes {
		return 0, fmt.Errorf("%w: %q", ErrMalformedTag, s)
	}
	var t Tag
	for _, b := range raw {
		t = t<<8 | Tag(b)
	}
	return t, nil
}

// ReadTag reads one BER tag from the front of b.
// It returns the tag and the number of bytes consumed.
func ReadTag(b []byte) (Tag, int, error) {
	if len(b) == 0 {
		return 0, 0, fmt.Errorf("%w: empty buffer", ErrMalformedTag)
	}

	t := Tag(b[0])
	n := 1

	// Low 5 bits all set: tag number continues in subsequent bytes.
	if b[0]&0x1F == 0x1F {
		for {
			if n >= len(b) {
				return 0, 0, fmt.Errorf("%w: truncated after %d bytes", ErrMalformedTag, n)
			}
			if n >= maxTagBytes {
				return 0, 0, fmt.Errorf("%w: longer than %d bytes", ErrMalformedTag, maxTagBytes)
			}
			next := b[n]
			t = t<<8 | Tag(next)
			n++
			if !bits.IsSet(next, 8) {
				break
			}
		}
	}

	return t, n, nil
}

// AppendTag appends the BER encoding of t to dst.
func AppendTag(dst []byte, t Tag) []byte {
	return t.append(dst, t.Len())
}

// ReadDGITag reads a 2-byte DGI tag from the front of b.
func ReadDGITag(b []byte) (Tag, int, error) {
	if len(b) < 2 {
		return 0, 0, fmt.Errorf("%w: DGI needs 2 bytes, have %d", ErrMalformedTag, len(b))
	}
	return Tag(b[0])<<8 | Tag(b[1]), 2, nil
}

// AppendDGITag appends the 2-byte encoding of a DGI tag to dst.
func AppendDGITag(dst []byte, t Tag) []byte {
	return append(dst, byte(t>>8), byte(t))
}
