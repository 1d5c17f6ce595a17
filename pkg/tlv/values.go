package tlv

import (
	"encoding/asn1"
	"fmt"
	"strconv"
	"strings"
)

// Codec converts the value bytes of a primitive data object to and from a Go value.
type Codec interface {
	Decode(raw []byte) (any, error)
	Encode(v any) ([]byte, error)
}

type funcCodec[T any] struct {
	dec func([]byte) (T, error)
	enc func(T) ([]byte, error)
}

// Func builds a Codec from a typed decoder and encoder.
// Encoding a value of any other type than T fails with ErrInvalidValue.
func Func[T any](dec func([]byte) (T, error), enc func(T) ([]byte, error)) Codec {
	return funcCodec[T]{dec: dec, enc: enc}
}

func (c funcCodec[T]) Decode(raw []byte) (any, error) {
	v, err := c.dec(raw)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (c funcCodec[T]) Encode(v any) ([]byte, error) {
	t, ok := v.(T)
	if !ok {
		var zero T
		return nil, fmt.Errorf("%w: want %T, got %T", ErrInvalidValue, zero, v)
	}
	return c.enc(t)
}

// Bytes keeps the value as HexBytes.
var Bytes = Func(
	func(b []byte) (HexBytes, error) { return HexBytes(append([]byte(nil), b...)), nil },
	func(h HexBytes) ([]byte, error) { return h, nil },
)

// FixedBytes is like Bytes but requires exactly n value bytes.
func FixedBytes(n int) Codec {
	return Func(
		func(b []byte) (HexBytes, error) {
			if len(b) != n {
				return nil, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidValue, n, len(b))
			}
			return HexBytes(append([]byte(nil), b...)), nil
		},
		func(h HexBytes) ([]byte, error) {
			if len(h) != n {
				return nil, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidValue, n, len(h))
			}
			return h, nil
		},
	)
}

// ASCII decodes the value as a text string.
var ASCII = Func(
	func(b []byte) (string, error) { return string(b), nil },
	func(s string) ([]byte, error) { return []byte(s), nil },
)

// Uint decodes a big-endian unsigned integer of up to 8 bytes.
// Encoding emits the minimal number of bytes, and a single 00 for zero.
var Uint = Func(decodeUint, encodeUint)

func decodeUint(b []byte) (uint64, error) {
	if len(b) == 0 || len(b) > 8 {
		return 0, fmt.Errorf("%w: integer of %d bytes", ErrInvalidValue, len(b))
	}
	var v uint64
	for _, x := range b {
		v = v<<8 | uint64(x)
	}
	return v, nil
}

func encodeUint(v uint64) ([]byte, error) {
	out := []byte{byte(v)}
	for v >>= 8; v > 0; v >>= 8 {
		out = append([]byte{byte(v)}, out...)
	}
	return out, nil
}

// Uint8 decodes a single byte.
var Uint8 = Func(
	func(b []byte) (uint8, error) {
		if len(b) != 1 {
			return 0, fmt.Errorf("%w: want 1 byte, got %d", ErrInvalidValue, len(b))
		}
		return b[0], nil
	},
	func(v uint8) ([]byte, error) { return []byte{v}, nil },
)

// Uint16 decodes a 2-byte big-endian integer.
var Uint16 = Func(
	func(b []byte) (uint16, error) {
		if len(b) != 2 {
			return 0, fmt.Errorf("%w: want 2 bytes, got %d", ErrInvalidValue, len(b))
		}
		return uint16(b[0])<<8 | uint16(b[1]), nil
	},
	func(v uint16) ([]byte, error) { return []byte{byte(v >> 8), byte(v)}, nil },
)

// Empty accepts only a zero-length value. Nodes carry no Value.
var Empty Codec = emptyCodec{}

type emptyCodec struct{}

func (emptyCodec) Decode(raw []byte) (any, error) {
	if len(raw) != 0 {
		return nil, fmt.Errorf("%w: want empty value, got %d bytes", ErrInvalidValue, len(raw))
	}
	return nil, nil
}

func (emptyCodec) Encode(v any) ([]byte, error) {
	if v != nil {
		return nil, fmt.Errorf("%w: empty value cannot hold %T", ErrInvalidValue, v)
	}
	return nil, nil
}

// Byte builds a codec for a one-byte enumeration such as a key type or a
// lifecycle state. Any byte value is accepted.
func Byte[T ~uint8]() Codec {
	return Func(
		func(b []byte) (T, error) {
			if len(b) != 1 {
				return 0, fmt.Errorf("%w: want 1 byte, got %d", ErrInvalidValue, len(b))
			}
			return T(b[0]), nil
		},
		func(v T) ([]byte, error) { return []byte{byte(v)}, nil },
	)
}

// OID decodes a DER object identifier body (without tag and length) into
// dotted notation such as "1.2.840.114283.1".
var OID = Func(decodeOID, encodeOID)

func decodeOID(b []byte) (string, error) {
	// Re-frame as a universal OBJECT IDENTIFIER so encoding/asn1 can parse it.
	der, err := AppendLength([]byte{0x06}, len(b))
	if err != nil {
		return "", err
	}
	var oid asn1.ObjectIdentifier
	rest, err := asn1.Unmarshal(append(der, b...), &oid)
	if err != nil || len(rest) != 0 {
		return "", fmt.Errorf("%w: object identifier %X", ErrInvalidValue, b)
	}
	return oid.String(), nil
}

func encodeOID(s string) ([]byte, error) {
	var oid asn1.ObjectIdentifier
	for _, part := range strings.Split(s, ".") {
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("%w: object identifier %q", ErrInvalidValue, s)
		}
		oid = append(oid, n)
	}
	der, err := asn1.Marshal(oid)
	if err != nil {
		return nil, fmt.Errorf("%w: object identifier %q: %v", ErrInvalidValue, s, err)
	}
	_, hdr, err := ReadLength(der[1:])
	if err != nil {
		return nil, err
	}
	return der[1+hdr:], nil
}
