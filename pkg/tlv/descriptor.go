package tlv

import "fmt"

// Framing selects the tag and length encoding of a data object.
type Framing uint8

const (
	// BER is ISO/IEC 7816-4 BER-TLV framing: variable tag, short or long form length.
	BER Framing = iota
	// DGI is GlobalPlatform DGI framing: 2-byte tag, 1 or 3-byte length.
	DGI
)

func (f Framing) String() string {
	switch f {
	case BER:
		return "BER-TLV"
	case DGI:
		return "DGI"
	default:
		return fmt.Sprintf("Framing(%d)", uint8(f))
	}
}

// readHeader reads tag and length from the front of b and returns them with
// the header size.
func (f Framing) readHeader(b []byte) (Tag, int, int, error) {
	var (
		tag       Tag
		tagLen    int
		length    int
		lengthLen int
		err       error
	)

	if f == DGI {
		if tag, tagLen, err = ReadDGITag(b); err != nil {
			return 0, 0, 0, err
		}
		length, lengthLen, err = ReadDGILength(b[tagLen:])
	} else {
		if tag, tagLen, err = ReadTag(b); err != nil {
			return 0, 0, 0, err
		}
		length, lengthLen, err = ReadLength(b[tagLen:])
	}
	if err != nil {
		return 0, 0, 0, fmt.Errorf("tag %s: %w", tag, err)
	}

	return tag, length, tagLen + lengthLen, nil
}

func (f Framing) appendHeader(dst []byte, t Tag, n int) ([]byte, error) {
	if f == DGI {
		return AppendDGILength(AppendDGITag(dst, t), n)
	}
	return AppendLength(AppendTag(dst, t), n)
}

func (f Framing) validTag(t Tag) bool {
	if f == DGI {
		return t <= 0xFFFF
	}
	return t.Valid()
}

// Descriptor declares one kind of data object.
//
// A descriptor is either primitive, with a Codec turning the value bytes into a
// Go value (a nil Codec keeps the bytes as HexBytes), or constructed, with the
// list of descriptors permitted inside its value. Descriptors are declared as
// package-level values and become read-only once a Registry or Collection has
// been built from them.
type Descriptor struct {
	Name    string
	Tag     Tag
	Framing Framing
	Codec   Codec
	Nested  []*Descriptor
}

// Primitive declares a BER data object whose value is handled by codec.
func Primitive(name string, tag Tag, codec Codec) *Descriptor {
	return &Descriptor{Name: name, Tag: tag, Codec: codec}
}

// Constructed declares a BER data object whose value is a sequence of nested objects.
func Constructed(name string, tag Tag, nested ...*Descriptor) *Descriptor {
	return &Descriptor{Name: name, Tag: tag, Nested: nested}
}

// AsDGI switches d to DGI framing and returns it, for use in declarations.
func (d *Descriptor) AsDGI() *Descriptor {
	d.Framing = DGI
	return d
}

// IsConstructed reports whether d declares nested objects.
func (d *Descriptor) IsConstructed() bool {
	return len(d.Nested) > 0
}

func (d *Descriptor) String() string {
	return fmt.Sprintf("%s (%s %s)", d.Name, d.Framing, d.Tag)
}
