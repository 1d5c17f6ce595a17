package tlv

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Hex decodes hex fixtures such as Hex("00A40400", "07 A0000000041010").
// Whitespace is ignored. It panics on invalid input and is meant for tables
// and tests.
func Hex(parts ...string) []byte {
	s := strings.Join(strings.Fields(strings.Join(parts, " ")), "")
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(fmt.Sprintf("tlv.Hex(%q): %v", s, err))
	}
	return b
}

// HexBytes is a byte string written as lower-case hex in text and JSON.
type HexBytes []byte

func (h HexBytes) String() string {
	return hex.EncodeToString(h)
}

func (h HexBytes) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText accepts hex of either case, with or without spaces.
func (h *HexBytes) UnmarshalText(text []byte) error {
	b, err := hex.DecodeString(strings.Join(strings.Fields(string(text)), ""))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	*h = b
	return nil
}
