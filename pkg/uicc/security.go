package uicc

import (
	"bytes"
	"fmt"

	"github.com/gregLibert/apdu-trace/pkg/apdu"
	"github.com/gregLibert/apdu-trace/pkg/tlv"
)

// KeyReference names the PIN or key referenced by P2 of the PIN commands
// (ETSI TS 102 221 Table 9.3).
func KeyReference(p2 byte) string {
	switch {
	case p2 >= 0x01 && p2 <= 0x08:
		return fmt.Sprintf("PIN appl %d", p2)
	case p2 >= 0x0A && p2 <= 0x0E:
		return fmt.Sprintf("ADM%d", p2-0x09)
	case p2 == 0x11:
		return "universal PIN"
	case p2 >= 0x81 && p2 <= 0x88:
		return fmt.Sprintf("second PIN appl %d", p2-0x80)
	case p2 >= 0x8A && p2 <= 0x8E:
		return fmt.Sprintf("ADM%d", p2-0x84)
	default:
		return fmt.Sprintf("RFU (%02X)", p2)
	}
}

// PIN is the payload of VERIFY PIN, CHANGE PIN, DISABLE PIN, ENABLE PIN
// and UNBLOCK PIN.
type PIN struct {
	apdu.Decoded
	KeyReference      string `json:"key_reference"`
	PIN               string `json:"pin,omitempty"`
	NewPIN            string `json:"new_pin,omitempty"`
	PUK               string `json:"puk,omitempty"`
	RemainingAttempts *int   `json:"remaining_attempts,omitempty"`
}

// pinValue renders an 8-byte PIN block: digits padded with 'FF', or hex
// when the block holds anything else.
func pinValue(b []byte) string {
	v := bytes.TrimRight(b, "\xff")
	for _, c := range v {
		if c < 0x20 || c > 0x7E {
			return fmt.Sprintf("%X", b)
		}
	}
	return string(v)
}

type pinLayout int

const (
	layoutVerify pinLayout = iota
	layoutChange
	layoutUnblock
)

func decodePIN(layout pinLayout) apdu.DecodeFunc {
	return func(c *apdu.Command) (apdu.Payload, error) {
		p := PIN{KeyReference: KeyReference(c.Header().P2)}

		data := c.Data()
		switch {
		case len(data) == 0:
			// A status query.
		case layout == layoutVerify && len(data) == 8:
			p.PIN = pinValue(data)
		case layout == layoutChange && len(data) == 16:
			p.PIN = pinValue(data[:8])
			p.NewPIN = pinValue(data[8:])
		case layout == layoutUnblock && len(data) == 16:
			p.PUK = pinValue(data[:8])
			p.NewPIN = pinValue(data[8:])
		default:
			return nil, fmt.Errorf("%w: %d byte PIN block", tlv.ErrInvalidValue, len(data))
		}

		if sw := c.SW(); sw.SW1() == 0x63 && sw.SW2()&0xF0 == 0xC0 {
			n := int(sw.SW2() & 0x0F)
			p.RemainingAttempts = &n
		}
		return p, nil
	}
}

// Challenge is the payload of GET CHALLENGE.
type Challenge struct {
	apdu.Decoded
	Length    int          `json:"length"`
	Challenge tlv.HexBytes `json:"challenge,omitempty"`
}

func decodeChallenge(c *apdu.Command) (apdu.Payload, error) {
	p := Challenge{Length: c.Header().Ne}
	if c.Succeeded() {
		p.Challenge = orNil(c.Response())
	}
	return p, nil
}

// Authenticate is the payload of the generic AUTHENTICATE. Applications
// register their own decoders for the authentication contexts they define.
type Authenticate struct {
	apdu.Decoded
	Context  string       `json:"context"`
	Data     tlv.HexBytes `json:"data,omitempty"`
	Response tlv.HexBytes `json:"response,omitempty"`
}

func decodeAuthenticate(c *apdu.Command) (apdu.Payload, error) {
	p := Authenticate{
		Context: fmt.Sprintf("P2 %02X", c.Header().P2),
		Data:    orNil(c.Data()),
	}
	if c.Succeeded() {
		p.Response = orNil(c.Response())
	}
	return p, nil
}
