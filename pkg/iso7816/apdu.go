package iso7816

import (
	"fmt"

	"github.com/skythen/apdu"
)

// A command APDU is a 4-byte header (CLA INS P1 P2) optionally followed by
// Lc, a data field and Le. The four ISO 7816-3 cases follow from whether the
// data field and Le are present. Lengths switch to the extended form when the
// data field exceeds 255 bytes or Ne exceeds 256.
//
// A response APDU is an optional data field followed by the SW1 SW2 trailer.

// Length limits of ISO 7816-3.
const (
	MaxShortLc    = 255
	MaxShortLe    = 256 // encoded as '00'
	MaxExtendedLc = 65535
	MaxExtendedLe = 65536 // encoded as '0000'

	// MaxAPDUBufferSize fits the longest extended command: header, 3-byte Lc,
	// data, 2-byte Le and one spare byte.
	MaxAPDUBufferSize = 4 + 3 + MaxExtendedLc + 2 + 1
)

// CommandAPDU is a command sent to the card.
type CommandAPDU struct {
	Class       Class
	Instruction Instruction
	P1, P2      byte
	Data        []byte
	Ne          int // 0 when no response data is expected
}

func NewCommandAPDU(cla Class, ins Instruction, p1, p2 byte, data []byte, ne int) *CommandAPDU {
	return &CommandAPDU{Class: cla, Instruction: ins, P1: p1, P2: p2, Data: data, Ne: ne}
}

// Bytes encodes the command, in the short form when it fits.
func (c *CommandAPDU) Bytes() ([]byte, error) {
	cla, err := c.Class.Encode()
	if err != nil {
		return nil, fmt.Errorf("encode class: %w", err)
	}
	if len(c.Data) > MaxExtendedLc || c.Ne < 0 || c.Ne > MaxExtendedLe {
		return nil, fmt.Errorf("command %s: Nc %d or Ne %d out of range", c.Instruction.Raw, len(c.Data), c.Ne)
	}
	capdu := apdu.Capdu{Cla: cla, Ins: byte(c.Instruction.Raw), P1: c.P1, P2: c.P2, Data: c.Data, Ne: c.Ne}
	raw, err := capdu.Bytes()
	if err != nil {
		return nil, fmt.Errorf("encode command %s: %w", c.Instruction.Raw, err)
	}
	return raw, nil
}

// Header returns CLA INS P1 P2 as sent on the wire.
func (c *CommandAPDU) Header() ([4]byte, error) {
	cla, err := c.Class.Encode()
	if err != nil {
		return [4]byte{}, err
	}
	return [4]byte{cla, byte(c.Instruction.Raw), c.P1, c.P2}, nil
}

// ParseCommandAPDU parses a short or extended command. CLA and INS are
// checked as by NewClass and NewInstruction.
func ParseCommandAPDU(raw []byte) (*CommandAPDU, error) {
	c, err := apdu.ParseCapdu(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid command APDU %X: %w", raw, err)
	}
	cla, err := NewClass(c.Cla)
	if err != nil {
		return nil, err
	}
	ins, err := NewInstruction(InsCode(c.Ins))
	if err != nil {
		return nil, err
	}
	return NewCommandAPDU(cla, ins, c.P1, c.P2, c.Data, c.Ne), nil
}

// Case returns the ISO 7816-3 case given by the presence of data and Le.
func (c *CommandAPDU) Case() int {
	hasData, hasLe := len(c.Data) > 0, c.Ne > 0
	switch {
	case hasData && hasLe:
		return 4
	case hasData:
		return 3
	case hasLe:
		return 2
	}
	return 1
}

func (c *CommandAPDU) String() string {
	return fmt.Sprintf("%s P1=%02X P2=%02X Nc=%d Ne=%d",
		c.Instruction.Verbose(), c.P1, c.P2, len(c.Data), c.Ne)
}

// ResponseAPDU is the reply of the card.
type ResponseAPDU struct {
	Data   []byte
	Status StatusWord
}

// ParseResponseAPDU splits raw into the data field and the status word.
func ParseResponseAPDU(raw []byte) (*ResponseAPDU, error) {
	if len(raw) < 2 {
		return nil, fmt.Errorf("response APDU of %d bytes has no status word", len(raw))
	}
	r, err := apdu.ParseRapdu(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid response APDU %X: %w", raw, err)
	}
	return &ResponseAPDU{Data: r.Data, Status: NewStatusWord(r.SW1, r.SW2)}, nil
}

// Bytes encodes the data field followed by SW1 SW2.
func (r *ResponseAPDU) Bytes() []byte {
	out := make([]byte, 0, len(r.Data)+2)
	out = append(out, r.Data...)
	return append(out, r.Status.SW1(), r.Status.SW2())
}

func (r *ResponseAPDU) String() string {
	return fmt.Sprintf("%d bytes %s", len(r.Data), r.Status.Verbose())
}
