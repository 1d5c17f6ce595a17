package gp

import (
	"fmt"
	"strings"

	"github.com/gregLibert/apdu-trace/pkg/bits"
	"github.com/gregLibert/apdu-trace/pkg/tlv"
)

// KeyType identifies the algorithm of a key component (GP 2.1.1 Section
// 9.1.6, extended by GP 2.3.1 Section 11.1.8).
type KeyType uint8

const (
	KeyTypeDES              KeyType = 0x80
	KeyTypeTLSPSK           KeyType = 0x85
	KeyTypeAES              KeyType = 0x88
	KeyTypeHMACSHA1         KeyType = 0x90
	KeyTypeHMACSHA1_160     KeyType = 0x91
	KeyTypeECCKeyParameters KeyType = 0xF0
	KeyTypeNotAvailable     KeyType = 0xFF
)

var keyTypeNames = map[KeyType]string{
	KeyTypeDES:              "des",
	KeyTypeTLSPSK:           "tls_psk",
	KeyTypeAES:              "aes",
	KeyTypeHMACSHA1:         "hmac_sha1",
	KeyTypeHMACSHA1_160:     "hmac_sha1_160",
	0xA0:                    "rsa_public_exponent_e_cleartext",
	0xA1:                    "rsa_modulus_n_cleartext",
	0xA2:                    "rsa_modulus_n",
	0xA3:                    "rsa_private_exponent_d",
	0xA4:                    "rsa_chinese_remainder_p",
	0xA5:                    "rsa_chinese_remainder_q",
	0xA6:                    "rsa_chinese_remainder_pq",
	0xA7:                    "rsa_chinese_remainder_dp",
	0xA8:                    "rsa_chinese_remainder_dq",
	0xB0:                    "ecc_public_key",
	0xB1:                    "ecc_private_key",
	0xB2:                    "ecc_field_parameter_p",
	0xB3:                    "ecc_field_parameter_a",
	0xB4:                    "ecc_field_parameter_b",
	0xB5:                    "ecc_field_parameter_g",
	0xB6:                    "ecc_field_parameter_n",
	0xB7:                    "ecc_field_parameter_k",
	KeyTypeECCKeyParameters: "ecc_key_parameters_reference",
	KeyTypeNotAvailable:     "not_available",
}

func (k KeyType) String() string {
	return enumName(keyTypeNames, k)
}

// MarshalText renders the type by name.
func (k KeyType) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// IsRSA reports whether k is one of the RSA components.
func (k KeyType) IsRSA() bool {
	return k >= 0xA0 && k <= 0xA8
}

// IsECC reports whether k is one of the ECC components.
func (k KeyType) IsECC() bool {
	return k >= 0xB0 && k <= 0xB7
}

// LifeCycle is the life cycle state of an application or load file
// (GP 2.3 Section 11.1.1).
type LifeCycle uint8

const (
	LifeCycleLoaded       LifeCycle = 0x01
	LifeCycleInstalled    LifeCycle = 0x03
	LifeCycleSelectable   LifeCycle = 0x07
	LifeCyclePersonalized LifeCycle = 0x0F
	LifeCycleLocked       LifeCycle = 0x83
)

var lifeCycleNames = map[LifeCycle]string{
	LifeCycleLoaded:       "loaded",
	LifeCycleInstalled:    "installed",
	LifeCycleSelectable:   "selectable",
	LifeCyclePersonalized: "personalized",
	LifeCycleLocked:       "locked",
}

func (l LifeCycle) String() string {
	return enumName(lifeCycleNames, l)
}

// MarshalText renders the state by name.
func (l LifeCycle) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// CardLifeCycle is the life cycle state of the card, reported for the ISD
// (GP 2.1.1 Section 9.1.1).
type CardLifeCycle uint8

var cardLifeCycleNames = map[CardLifeCycle]string{
	0x01: "op_ready",
	0x07: "initialized",
	0x0F: "secured",
	0x7F: "card_locked",
	0xFF: "terminated",
}

func (l CardLifeCycle) String() string {
	return enumName(cardLifeCycleNames, l)
}

// StatusSubset is P1 of GET STATUS (GP 2.3 Section 11.4.2.1).
type StatusSubset uint8

const (
	SubsetISD             StatusSubset = 0x80
	SubsetApplications    StatusSubset = 0x40
	SubsetFiles           StatusSubset = 0x20
	SubsetFilesAndModules StatusSubset = 0x10
)

var statusSubsetNames = map[StatusSubset]string{
	SubsetISD:             "isd",
	SubsetApplications:    "applications",
	SubsetFiles:           "files",
	SubsetFilesAndModules: "files_and_modules",
}

func (s StatusSubset) String() string {
	return enumName(statusSubsetNames, s)
}

// SetStatusScope is P1 of SET STATUS (GP 2.3 Table 11-86).
type SetStatusScope uint8

var setStatusScopeNames = map[SetStatusScope]string{
	0x80: "isd",
	0x40: "app_or_ssd",
	0xC0: "isd_and_assoc_apps",
}

func (s SetStatusScope) String() string {
	return enumName(setStatusScopeNames, s)
}

// KeyAccess restricts the entities allowed to use a key (GP 2.3 Section
// 11.1.10).
type KeyAccess uint8

var keyAccessNames = map[KeyAccess]string{
	0x00: "sd_and_any_assoc_app",
	0x01: "sd_only",
	0x02: "any_assoc_app_but_not_sd",
	0xFF: "not_available",
}

func (k KeyAccess) String() string {
	return enumName(keyAccessNames, k)
}

// MarshalText renders the access condition by name.
func (k KeyAccess) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// CurveReference names the ECC domain parameters of a key.
type CurveReference uint8

var curveNames = map[CurveReference]string{
	0x00: "secp256r1",
	0x01: "secp384r1",
	0x02: "secp521r1",
	0x03: "brainpoolP256r1",
	0x04: "brainpoolP256t1",
	0x05: "brainpoolP384r1",
	0x06: "brainpoolP384t1",
	0x07: "brainpoolP512r1",
	0x08: "brainpoolP512t1",
}

func (c CurveReference) String() string {
	return enumName(curveNames, c)
}

// MarshalText renders the curve by name.
func (c CurveReference) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func enumName[T ~uint8](names map[T]string, v T) string {
	if n, ok := names[v]; ok {
		return n
	}
	return fmt.Sprintf("%02x", uint8(v))
}

// Flags is a decoded bit field: the raw bytes and the names of the bits set.
type Flags struct {
	Raw tlv.HexBytes `json:"raw"`
	Set []string     `json:"set"`
}

func (f Flags) String() string {
	return strings.Join(f.Set, ",")
}

// Has reports whether the flag named name is set.
func (f Flags) Has(name string) bool {
	for _, s := range f.Set {
		if s == name {
			return true
		}
	}
	return false
}

// flagBits lists the names of bits 8 to 1 of one byte; "" marks RFU bits.
type flagBits [8]string

// flagsCodec decodes up to len(layout) bytes of flags. The first byte is
// mandatory.
func flagsCodec(layout ...flagBits) tlv.Codec {
	return tlv.Func(
		func(b []byte) (Flags, error) {
			if len(b) == 0 || len(b) > len(layout) {
				return Flags{}, fmt.Errorf("%w: want 1 to %d flag bytes, got %d", tlv.ErrInvalidValue, len(layout), len(b))
			}
			f := Flags{Raw: append(tlv.HexBytes(nil), b...), Set: []string{}}
			for i, v := range b {
				f.Set = append(f.Set, bits.Names(v, layout[i])...)
			}
			return f, nil
		},
		func(f Flags) ([]byte, error) {
			if len(f.Raw) == 0 || len(f.Raw) > len(layout) {
				return nil, fmt.Errorf("%w: want 1 to %d flag bytes, got %d", tlv.ErrInvalidValue, len(layout), len(f.Raw))
			}
			return f.Raw, nil
		},
	)
}
