package usim

import (
	"bytes"
	"fmt"

	"github.com/gregLibert/apdu-trace/pkg/fs"
	"github.com/gregLibert/apdu-trace/pkg/tlv"
	"github.com/gregLibert/apdu-trace/pkg/uicc"
)

var (
	AIDUSIM = tlv.Hex("A0000000871002")
	AIDISIM = tlv.Hex("A0000000871004")
)

// IMSI decodes EF.IMSI: a length byte, then swapped BCD digits whose first
// nibble is the parity indicator.
var IMSI = tlv.Func(decodeIMSI, encodeIMSI)

func decodeIMSI(b []byte) (string, error) {
	if len(b) == 0 || int(b[0]) > len(b)-1 {
		return "", fmt.Errorf("%w: IMSI length %X", tlv.ErrInvalidValue, b)
	}
	if b[0] == 0 || b[0] == 0xFF {
		return "", nil
	}
	digits, err := uicc.DecodeSwappedBCD(b[1 : 1+int(b[0])])
	if err != nil {
		return "", err
	}
	if digits == "" {
		return "", nil
	}
	return digits[1:], nil
}

func encodeIMSI(s string) ([]byte, error) {
	parity := "1"
	if len(s)%2 == 1 {
		parity = "9"
	}
	bcd, err := uicc.EncodeSwappedBCD(parity + s)
	if err != nil {
		return nil, err
	}
	return append([]byte{byte(len(bcd))}, bcd...), nil
}

// ServiceName is the content of EF.SPN.
type ServiceName struct {
	DisplayCondition uint8  `json:"display_condition"`
	Name             string `json:"name"`
}

// SPN decodes EF.SPN. Names are stored in the default alphabet padded with
// 'FF'; only the ASCII-compatible subset is rendered as text.
var SPN = tlv.Func(
	func(b []byte) (ServiceName, error) {
		if len(b) == 0 {
			return ServiceName{}, fmt.Errorf("%w: empty EF.SPN", tlv.ErrInvalidValue)
		}
		return ServiceName{
			DisplayCondition: b[0],
			Name:             tlv.MakeSafeASCII(bytes.TrimRight(b[1:], "\xff")),
		}, nil
	},
	func(s ServiceName) ([]byte, error) {
		return append([]byte{s.DisplayCondition}, s.Name...), nil
	},
)

// ServiceTable decodes the bitmap of EF.UST, EF.EST and EF.IST into the
// numbers of the services that are set, starting at service 1.
var ServiceTable = tlv.Func(
	func(b []byte) ([]int, error) {
		out := []int{}
		for i, v := range b {
			for bit := 0; bit < 8; bit++ {
				if v&(1<<bit) != 0 {
					out = append(out, i*8+bit+1)
				}
			}
		}
		return out, nil
	},
	func(services []int) ([]byte, error) {
		var out []byte
		for _, n := range services {
			if n < 1 {
				return nil, fmt.Errorf("%w: service %d", tlv.ErrInvalidValue, n)
			}
			for len(out) < (n+7)/8 {
				out = append(out, 0)
			}
			out[(n-1)/8] |= 1 << ((n - 1) % 8)
		}
		return out, nil
	},
)

// USIM status words (TS 31.102 Section 7.3).
var StatusWords = map[uint16]string{
	0x9862: "Authentication error, incorrect MAC",
	0x9863: "Security session or association expired",
	0x9864: "Authentication error, security context not supported",
	0x9865: "Key freshness failure",
	0x9866: "Authentication error, no memory space available",
	0x9867: "Authentication error, no memory space available in EF MUK",
}

// ADF returns the USIM application.
func ADF() *fs.Application {
	return &fs.Application{
		Name:        "ADF.USIM",
		AID:         AIDUSIM,
		StatusWords: StatusWords,
		Files: []*fs.File{
			fs.EF("EF.ECC", 0x6FB7, fs.TypeLinearFixed, fs.WithSFI(0x01), fs.WithDesc("Emergency call codes")),
			fs.EF("EF.Li", 0x6F05, fs.TypeTransparent, fs.WithSFI(0x02), fs.WithDesc("Language indication")),
			fs.EF("EF.AD", 0x6FAD, fs.TypeTransparent, fs.WithSFI(0x03), fs.WithDesc("Administrative data")),
			fs.EF("EF.UST", 0x6F38, fs.TypeTransparent, fs.WithSFI(0x04),
				fs.WithDesc("USIM service table"), fs.WithContent(ServiceTable)),
			fs.EF("EF.EST", 0x6F56, fs.TypeTransparent, fs.WithSFI(0x05),
				fs.WithDesc("Enabled services table"), fs.WithContent(ServiceTable)),
			fs.EF("EF.ACC", 0x6F78, fs.TypeTransparent, fs.WithSFI(0x06), fs.WithDesc("Access control class")),
			fs.EF("EF.IMSI", 0x6F07, fs.TypeTransparent, fs.WithSFI(0x07),
				fs.WithDesc("IMSI"), fs.WithContent(IMSI)),
			fs.EF("EF.KEYS", 0x6F08, fs.TypeTransparent, fs.WithSFI(0x08), fs.WithDesc("Ciphering and integrity keys")),
			fs.EF("EF.KEYSPS", 0x6F09, fs.TypeTransparent, fs.WithSFI(0x09),
				fs.WithDesc("Ciphering and integrity keys for packet switched domain")),
			fs.EF("EF.LOCI", 0x6F7E, fs.TypeTransparent, fs.WithSFI(0x0B), fs.WithDesc("Location information")),
			fs.EF("EF.PSLOCI", 0x6F73, fs.TypeTransparent, fs.WithSFI(0x0C), fs.WithDesc("Packet switched location information")),
			fs.EF("EF.FPLMN", 0x6F7B, fs.TypeTransparent, fs.WithSFI(0x0D), fs.WithDesc("Forbidden PLMNs")),
			fs.EF("EF.START-HFN", 0x6F5B, fs.TypeTransparent, fs.WithSFI(0x0F), fs.WithDesc("Initialisation values for hyperframe number")),
			fs.EF("EF.THRESHOLD", 0x6F5C, fs.TypeTransparent, fs.WithSFI(0x10), fs.WithDesc("Maximum value of START")),
			fs.EF("EF.HPPLMN", 0x6F31, fs.TypeTransparent, fs.WithSFI(0x12), fs.WithDesc("Higher priority PLMN search period")),
			fs.EF("EF.ARR", 0x6F06, fs.TypeLinearFixed, fs.WithSFI(0x17), fs.WithDesc("Access rule reference")),
			fs.EF("EF.EPSNSC", 0x6FE4, fs.TypeLinearFixed, fs.WithSFI(0x18), fs.WithDesc("EPS NAS security context")),
			fs.EF("EF.EPSLOCI", 0x6FE3, fs.TypeTransparent, fs.WithSFI(0x1E), fs.WithDesc("EPS location information")),
			fs.EF("EF.SPN", 0x6F46, fs.TypeTransparent,
				fs.WithDesc("Service provider name"), fs.WithContent(SPN)),
			fs.EF("EF.MSISDN", 0x6F40, fs.TypeLinearFixed, fs.WithDesc("MSISDN")),
			fs.DF("DF.PHONEBOOK", 0x5F3A,
				fs.EF("EF.PBR", 0x4F30, fs.TypeLinearFixed, fs.WithDesc("Phone book reference")),
			),
			fs.DF("DF.GSM-ACCESS", 0x5F3B,
				fs.EF("EF.Kc", 0x4F20, fs.TypeTransparent, fs.WithDesc("GSM ciphering key Kc")),
				fs.EF("EF.KcGPRS", 0x4F52, fs.TypeTransparent, fs.WithDesc("GPRS ciphering key KcGPRS")),
			),
		},
	}
}

// ISIM data objects (TS 31.103 Section 4.2).
var (
	NAI    = tlv.Primitive("nai", 0x80, tlv.ASCII)
	URI    = tlv.Primitive("uri", 0x80, tlv.ASCII)
	IMPI   = tlv.MustCollection("impi", NAI)
	IMPU   = tlv.MustCollection("impu", URI)
	Domain = tlv.MustCollection("domain", tlv.Primitive("domain_name", 0x80, tlv.ASCII))
	PCSCF  = tlv.MustCollection("pcscf", tlv.Primitive("pcscf_address", 0x80, tlv.Bytes))
)

// ISIM returns the ISIM application.
func ISIM() *fs.Application {
	return &fs.Application{
		Name:        "ADF.ISIM",
		AID:         AIDISIM,
		StatusWords: StatusWords,
		Files: []*fs.File{
			fs.EF("EF.IMPI", 0x6F02, fs.TypeTransparent, fs.WithSFI(0x02),
				fs.WithDesc("IMS private user identity"), fs.WithContent(IMPI.AsCodec())),
			fs.EF("EF.DOMAIN", 0x6F03, fs.TypeTransparent, fs.WithSFI(0x05),
				fs.WithDesc("Home network domain name"), fs.WithContent(Domain.AsCodec())),
			fs.EF("EF.IMPU", 0x6F04, fs.TypeLinearFixed, fs.WithSFI(0x04),
				fs.WithDesc("IMS public user identity"), fs.WithContent(IMPU.AsCodec())),
			fs.EF("EF.AD", 0x6FAD, fs.TypeTransparent, fs.WithSFI(0x03), fs.WithDesc("Administrative data")),
			fs.EF("EF.ARR", 0x6F06, fs.TypeLinearFixed, fs.WithSFI(0x06), fs.WithDesc("Access rule reference")),
			fs.EF("EF.IST", 0x6F07, fs.TypeTransparent, fs.WithSFI(0x07),
				fs.WithDesc("ISIM service table"), fs.WithContent(ServiceTable)),
			fs.EF("EF.P-CSCF", 0x6F09, fs.TypeLinearFixed, fs.WithSFI(0x08),
				fs.WithDesc("P-CSCF address"), fs.WithContent(PCSCF.AsCodec())),
		},
	}
}
