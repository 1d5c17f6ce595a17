package uicc

import (
	"fmt"
	"strings"

	"github.com/gregLibert/apdu-trace/pkg/fs"
	"github.com/gregLibert/apdu-trace/pkg/tlv"
)

// EF.DIR (ETSI TS 102 221 Section 13.1): one application template per record.
var (
	ApplicationIdentifier = tlv.Primitive("application_identifier", 0x4F, tlv.Bytes)
	ApplicationLabel      = tlv.Primitive("application_label", 0x50, tlv.ASCII)
	DiscretionaryData     = tlv.Primitive("discretionary_data", 0x73, tlv.Bytes)
	ApplicationTemplate   = tlv.Constructed("application_template", 0x61,
		ApplicationIdentifier, ApplicationLabel, DiscretionaryData)

	// DirRecord decodes one record of EF.DIR.
	DirRecord = tlv.MustCollection("ef_dir_record", ApplicationTemplate)
)

// ICCID decodes the card number of EF.ICCID, stored as swapped BCD.
var ICCID = tlv.Func(DecodeSwappedBCD, EncodeSwappedBCD)

// DecodeSwappedBCD reads digits low nibble first, stopping at an 'F' filler.
func DecodeSwappedBCD(b []byte) (string, error) {
	var sb strings.Builder
	for _, v := range b {
		for _, d := range [2]byte{v & 0x0F, v >> 4} {
			if d == 0x0F {
				return sb.String(), nil
			}
			if d > 9 {
				return "", fmt.Errorf("%w: non-decimal digit %X in %X", tlv.ErrInvalidValue, d, b)
			}
			sb.WriteByte('0' + d)
		}
	}
	return sb.String(), nil
}

// EncodeSwappedBCD is the inverse of DecodeSwappedBCD, padding an odd
// number of digits with 'F'.
func EncodeSwappedBCD(s string) ([]byte, error) {
	out := make([]byte, 0, (len(s)+1)/2)
	for i := 0; i < len(s); i += 2 {
		lo, err := bcdDigit(s[i])
		if err != nil {
			return nil, err
		}
		hi := byte(0x0F)
		if i+1 < len(s) {
			if hi, err = bcdDigit(s[i+1]); err != nil {
				return nil, err
			}
		}
		out = append(out, hi<<4|lo)
	}
	return out, nil
}

func bcdDigit(c byte) (byte, error) {
	if c < '0' || c > '9' {
		return 0, fmt.Errorf("%w: %q is not a digit", tlv.ErrInvalidValue, c)
	}
	return c - '0', nil
}

// MF returns the MF of a UICC with the files of ETSI TS 102 221 and
// the telecom and GSM DFs of TS 51.011 / TS 31.102.
func MF() *fs.File {
	return fs.MF(
		fs.EF("EF.DIR", 0x2F00, fs.TypeLinearFixed, fs.WithSFI(0x1E),
			fs.WithDesc("Application directory"), fs.WithContent(DirRecord.AsCodec())),
		fs.EF("EF.ICCID", 0x2FE2, fs.TypeTransparent, fs.WithSFI(0x02),
			fs.WithDesc("ICC identification"), fs.WithContent(ICCID)),
		fs.EF("EF.PL", 0x2F05, fs.TypeTransparent, fs.WithSFI(0x05), fs.WithDesc("Preferred languages")),
		fs.EF("EF.ARR", 0x2F06, fs.TypeLinearFixed, fs.WithSFI(0x06), fs.WithDesc("Access rule reference")),
		fs.EF("EF.UMPC", 0x2F08, fs.TypeTransparent, fs.WithSFI(0x08), fs.WithDesc("UICC maximum power consumption")),
		fs.DF("DF.TELECOM", 0x7F10,
			fs.EF("EF.ADN", 0x6F3A, fs.TypeLinearFixed, fs.WithDesc("Abbreviated dialling numbers")),
			fs.EF("EF.FDN", 0x6F3B, fs.TypeLinearFixed, fs.WithDesc("Fixed dialling numbers")),
			fs.EF("EF.SMS", 0x6F3C, fs.TypeLinearFixed, fs.WithDesc("Short messages")),
			fs.EF("EF.MSISDN", 0x6F40, fs.TypeLinearFixed, fs.WithDesc("MSISDN")),
			fs.EF("EF.SMSP", 0x6F42, fs.TypeLinearFixed, fs.WithDesc("Short message service parameters")),
			fs.EF("EF.EXT1", 0x6F4A, fs.TypeLinearFixed, fs.WithDesc("Extension 1")),
			fs.EF("EF.ARR", 0x6F06, fs.TypeLinearFixed, fs.WithDesc("Access rule reference")),
			fs.DF("DF.GRAPHICS", 0x5F50,
				fs.EF("EF.IMG", 0x4F20, fs.TypeLinearFixed, fs.WithDesc("Image")),
			),
			fs.DF("DF.PHONEBOOK", 0x5F3A,
				fs.EF("EF.PBR", 0x4F30, fs.TypeLinearFixed, fs.WithDesc("Phone book reference")),
			),
		),
		fs.DF("DF.GSM", 0x7F20,
			fs.EF("EF.IMSI", 0x6F07, fs.TypeTransparent, fs.WithDesc("IMSI")),
			fs.EF("EF.Kc", 0x6F20, fs.TypeTransparent, fs.WithDesc("Ciphering key Kc")),
		),
	)
}
