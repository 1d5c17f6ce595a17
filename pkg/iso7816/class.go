package iso7816

import (
	"fmt"
	"strings"

	"github.com/gregLibert/apdu-trace/pkg/bits"
)

// The CLA byte carries the logical channel, secure messaging and chaining.
//
//	b8 b7 b6 b5 b4 b3 b2 b1
//	0  0  x  c  sm sm ch ch    first interindustry, channels 0-3
//	0  1  sm c  ch ch ch ch    further interindustry, channels 4-19
//	1  ...                     proprietary
//
// ETSI TS 102 221 and GlobalPlatform lay their proprietary classes out the same
// way on b7-b1 ('80' and '81' are channels 0 and 1, 'C4' is channel 8), so the
// fields are decoded from them too.

// SecureMessaging is the secure messaging indication of a class byte.
type SecureMessaging int

const (
	SMNone         SecureMessaging = iota
	SMProprietary                  // first interindustry only
	SMHeaderNoProc                 // ISO SM, header not processed
	SMHeaderAuth                   // ISO SM, header authenticated; first interindustry only
)

var smNames = map[SecureMessaging]string{
	SMNone:         "no SM",
	SMProprietary:  "proprietary SM",
	SMHeaderNoProc: "SM",
	SMHeaderAuth:   "SM with authenticated header",
}

func (sm SecureMessaging) String() string {
	if n, ok := smNames[sm]; ok {
		return n
	}
	return fmt.Sprintf("SM(%d)", int(sm))
}

// Class is a decoded CLA byte.
type Class struct {
	Raw             byte
	IsProprietary   bool
	IsChained       bool
	SecureMessaging SecureMessaging
	Channel         uint8 // 0-19
}

const maxChannel = 19

// NewClass decodes cla. 'FF' is reserved for PPS and rejected.
func NewClass(cla byte) (Class, error) {
	if cla == 0xFF {
		return Class{}, fmt.Errorf("invalid CLA FF")
	}

	c := Class{
		Raw:           cla,
		IsProprietary: bits.IsSet(cla, 8),
		IsChained:     bits.IsSet(cla, 5),
	}
	if bits.IsSet(cla, 7) {
		if bits.IsSet(cla, 6) {
			c.SecureMessaging = SMHeaderNoProc
		}
		c.Channel = 4 + bits.GetRange(cla, 4, 1)
	} else {
		c.SecureMessaging = SecureMessaging(bits.GetRange(cla, 4, 3))
		c.Channel = bits.GetRange(cla, 2, 1)
	}
	return c, nil
}

// NewInterindustryClass builds an interindustry class, in the first or
// further layout depending on channel.
func NewInterindustryClass(chained bool, sm SecureMessaging, channel uint8) (Class, error) {
	if channel > maxChannel {
		return Class{}, fmt.Errorf("channel %d out of range 0-%d", channel, maxChannel)
	}
	if channel >= 4 && sm != SMNone && sm != SMHeaderNoProc {
		return Class{}, fmt.Errorf("%s not available on channel %d", sm, channel)
	}

	c := Class{IsChained: chained, SecureMessaging: sm, Channel: channel}
	raw, err := c.Encode()
	if err != nil {
		return Class{}, err
	}
	c.Raw = raw
	return c, nil
}

// Encode returns the CLA byte of c. Proprietary classes are returned as
// decoded.
func (c *Class) Encode() (byte, error) {
	if c.IsProprietary {
		return c.Raw, nil
	}
	if c.Channel > maxChannel {
		return 0, fmt.Errorf("channel %d out of range 0-%d", c.Channel, maxChannel)
	}

	var cla byte
	if c.IsChained {
		cla = bits.Set(cla, 5)
	}
	if c.Channel < 4 {
		return cla | byte(c.SecureMessaging)<<2 | c.Channel, nil
	}
	cla = bits.Set(cla, 7)
	if c.SecureMessaging != SMNone {
		cla = bits.Set(cla, 6)
	}
	return cla | (c.Channel - 4), nil
}

// String summarises the class, as in "00 channel 0" or
// "91 proprietary, channel 1, chained".
func (c Class) String() string {
	parts := []string{fmt.Sprintf("channel %d", c.Channel)}
	if c.IsProprietary {
		parts = append([]string{"proprietary"}, parts...)
	} else if c.SecureMessaging != SMNone {
		parts = append(parts, c.SecureMessaging.String())
	}
	if c.IsChained {
		parts = append(parts, "chained")
	}
	return fmt.Sprintf("%02X %s", c.Raw, strings.Join(parts, ", "))
}
