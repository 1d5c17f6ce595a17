package iso7816

import (
	"fmt"

	"github.com/gregLibert/apdu-trace/pkg/bits"
)

// InsCode is the INS byte of a command. With an interindustry class, an
// odd INS announces BER-TLV data (READ BINARY 'B0' vs 'B1'). Values '6X'
// and '9X' are procedure bytes of ISO 7816-3 and never an INS.
type InsCode byte

// Instructions the command builders use.
const (
	INS_SELECT       InsCode = 0xA4
	INS_READ_BINARY  InsCode = 0xB0
	INS_READ_RECORD  InsCode = 0xB2
	INS_GET_RESPONSE InsCode = 0xC0
)

// interindustry names the even INS codes of ISO 7816-4 Table 4.
var interindustry = map[InsCode]string{
	0x04: "DEACTIVATE FILE",
	0x0C: "ERASE RECORD",
	0x0E: "ERASE BINARY",
	0x10: "PERFORM SCQL OPERATION",
	0x12: "PERFORM TRANSACTION OPERATION",
	0x14: "PERFORM USER OPERATION",
	0x20: "VERIFY",
	0x22: "MANAGE SECURITY ENVIRONMENT",
	0x24: "CHANGE REFERENCE DATA",
	0x26: "DISABLE VERIFICATION REQUIREMENT",
	0x28: "ENABLE VERIFICATION REQUIREMENT",
	0x2A: "PERFORM SECURITY OPERATION",
	0x2C: "RESET RETRY COUNTER",
	0x44: "ACTIVATE FILE",
	0x46: "GENERATE ASYMMETRIC KEY PAIR",
	0x70: "MANAGE CHANNEL",
	0x82: "EXTERNAL AUTHENTICATE",
	0x84: "GET CHALLENGE",
	0x86: "GENERAL AUTHENTICATE",
	0x88: "INTERNAL AUTHENTICATE",
	0xA0: "SEARCH BINARY",
	0xA2: "SEARCH RECORD",
	0xA4: "SELECT",
	0xB0: "READ BINARY",
	0xB2: "READ RECORD",
	0xC0: "GET RESPONSE",
	0xC2: "ENVELOPE",
	0xCA: "GET DATA",
	0xD0: "WRITE BINARY",
	0xD2: "WRITE RECORD",
	0xD6: "UPDATE BINARY",
	0xDA: "PUT DATA",
	0xDC: "UPDATE RECORD",
	0xE0: "CREATE FILE",
	0xE2: "APPEND RECORD",
	0xE4: "DELETE FILE",
	0xE6: "TERMINATE DF",
	0xE8: "TERMINATE EF",
	0xFE: "TERMINATE CARD USAGE",
}

// String returns the ISO 7816-4 name of the instruction, with a "(BER-TLV)"
// suffix for the odd variants.
func (i InsCode) String() string {
	if name, ok := interindustry[i]; ok {
		return name
	}
	if name, ok := interindustry[i&^1]; ok && i&1 == 1 {
		return name + " (BER-TLV)"
	}
	return fmt.Sprintf("INS %02X", byte(i))
}

// Instruction is a validated INS byte.
type Instruction struct {
	Raw      InsCode
	IsBERTLV bool
}

// NewInstruction validates ins.
func NewInstruction(ins InsCode) (Instruction, error) {
	switch byte(ins) & 0xF0 {
	case 0x60, 0x90:
		return Instruction{}, fmt.Errorf("invalid INS %02X: 6X and 9X are procedure bytes", byte(ins))
	}
	return Instruction{Raw: ins, IsBERTLV: bits.IsSet(byte(ins), 1)}, nil
}

// Verbose returns the INS byte and its name.
func (i Instruction) Verbose() string {
	return fmt.Sprintf("%02X %s", byte(i.Raw), i.Raw)
}
