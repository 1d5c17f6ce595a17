// Package aram decodes the data objects of the Access Rule Application
// Master (GlobalPlatform Secure Element Access Control v1.1), exchanged
// through GET DATA and STORE DATA.
package aram

import (
	"fmt"

	"github.com/gregLibert/apdu-trace/pkg/fs"
	"github.com/gregLibert/apdu-trace/pkg/gp"
	"github.com/gregLibert/apdu-trace/pkg/tlv"
)

// AID is the AID of the ARA-M.
var AID = tlv.Hex("A00000015141434C00")

// ApduFilter lets through the APDUs whose header matches Header under Mask.
type ApduFilter struct {
	Header tlv.HexBytes `json:"header"`
	Mask   tlv.HexBytes `json:"mask"`
}

// ApduRule is the value of an APDU-AR-DO: a generic rule or a list of
// filters.
type ApduRule struct {
	GenericAccessRule string       `json:"generic_access_rule,omitempty"`
	Filters           []ApduFilter `json:"apdu_filter,omitempty"`
}

var apduRule = tlv.Func(decodeApduRule, encodeApduRule)

func decodeApduRule(b []byte) (ApduRule, error) {
	if len(b) == 1 {
		switch b[0] {
		case 0x00:
			return ApduRule{GenericAccessRule: "never"}, nil
		case 0x01:
			return ApduRule{GenericAccessRule: "always"}, nil
		}
		return ApduRule{}, fmt.Errorf("%w: generic APDU access rule %02X", tlv.ErrInvalidValue, b[0])
	}
	if len(b) == 0 || len(b)%8 != 0 {
		return ApduRule{}, fmt.Errorf("%w: APDU filter of %d bytes", tlv.ErrInvalidValue, len(b))
	}
	var r ApduRule
	for off := 0; off < len(b); off += 8 {
		r.Filters = append(r.Filters, ApduFilter{
			Header: tlv.HexBytes(append([]byte(nil), b[off:off+4]...)),
			Mask:   tlv.HexBytes(append([]byte(nil), b[off+4:off+8]...)),
		})
	}
	return r, nil
}

func encodeApduRule(r ApduRule) ([]byte, error) {
	switch r.GenericAccessRule {
	case "never":
		return []byte{0x00}, nil
	case "always":
		return []byte{0x01}, nil
	case "":
	default:
		return nil, fmt.Errorf("%w: generic APDU access rule %q", tlv.ErrInvalidValue, r.GenericAccessRule)
	}
	if len(r.Filters) == 0 {
		return nil, fmt.Errorf("%w: APDU access rule without filter", tlv.ErrInvalidValue)
	}
	var out []byte
	for _, f := range r.Filters {
		if len(f.Header) != 4 || len(f.Mask) != 4 {
			return nil, fmt.Errorf("%w: APDU filter header and mask must be 4 bytes each", tlv.ErrInvalidValue)
		}
		out = append(out, f.Header...)
		out = append(out, f.Mask...)
	}
	return out, nil
}

// EventAccess is the NFC event access rule.
type EventAccess uint8

func (e EventAccess) String() string {
	switch e {
	case 0:
		return "never"
	case 1:
		return "always"
	}
	return fmt.Sprintf("%02x", uint8(e))
}

// MarshalText renders the rule by name.
func (e EventAccess) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// Version is a device interface version.
type Version struct {
	Major uint8 `json:"major"`
	Minor uint8 `json:"minor"`
	Patch uint8 `json:"patch"`
}

var version = tlv.Func(
	func(b []byte) (Version, error) {
		if len(b) != 3 {
			return Version{}, fmt.Errorf("%w: version of %d bytes", tlv.ErrInvalidValue, len(b))
		}
		return Version{Major: b[0], Minor: b[1], Patch: b[2]}, nil
	},
	func(v Version) ([]byte, error) { return []byte{v.Major, v.Minor, v.Patch}, nil },
)

// Block locates a chunk of a long response.
type Block struct {
	Offset uint16 `json:"offset"`
	Length uint8  `json:"length"`
}

var block = tlv.Func(
	func(b []byte) (Block, error) {
		if len(b) != 3 {
			return Block{}, fmt.Errorf("%w: block of %d bytes", tlv.ErrInvalidValue, len(b))
		}
		return Block{Offset: uint16(b[0])<<8 | uint16(b[1]), Length: b[2]}, nil
	},
	func(v Block) ([]byte, error) { return []byte{byte(v.Offset >> 8), byte(v.Offset), v.Length}, nil },
)

// Reference and access rule data objects (SEAC v1.1 Section 6).
var (
	AidRefDO      = tlv.Primitive("aid_ref_do", 0x4F, tlv.Bytes)
	AidRefEmptyDO = tlv.Primitive("aid_ref_empty_do", 0xC0, tlv.Empty)
	DevAppIdRefDO = tlv.Primitive("dev_app_id_ref_do", 0xC1, tlv.Bytes)
	PkgRefDO      = tlv.Primitive("pkg_ref_do", 0xCA, tlv.ASCII)
	RefDO         = tlv.Constructed("ref_do", 0xE1, AidRefDO, AidRefEmptyDO, DevAppIdRefDO, PkgRefDO)

	ApduArDO = tlv.Primitive("apdu_ar_do", 0xD0, apduRule)
	NfcArDO  = tlv.Primitive("nfc_ar_do", 0xD1, tlv.Byte[EventAccess]())
	PermArDO = tlv.Primitive("perm_ar_do", 0xDB, tlv.FixedBytes(8))
	ArDO     = tlv.Constructed("ar_do", 0xE3, ApduArDO, NfcArDO, PermArDO)
	RefArDO  = tlv.Constructed("ref_ar_do", 0xE2, RefDO, ArDO)

	DeviceInterfaceVersionDO = tlv.Primitive("device_interface_version_do", 0xE6, version)
	DeviceConfigDO           = tlv.Constructed("device_config_do", 0xE4, DeviceInterfaceVersionDO)
	AramConfigDO             = tlv.Constructed("aram_config_do", 0xE5, DeviceInterfaceVersionDO)
	BlockDO                  = tlv.Primitive("block_do", 0xE7, block)
)

// Response data objects (SEAC v1.1 Sections 4 and 5).
var (
	ResponseAllRefArDO     = tlv.Constructed("response_all_ref_ar_do", 0xFF40, RefArDO)
	ResponseArDO           = tlv.Constructed("response_ar_do", 0xFF50, ArDO)
	ResponseRefreshTagDO   = tlv.Primitive("response_refresh_tag_do", 0xDF20, tlv.FixedBytes(8))
	ResponseAramConfigDO   = tlv.Constructed("response_aram_config_do", 0xDF21, AramConfigDO)
	ResponseDeviceConfigDO = tlv.Constructed("response_device_config_do", 0xFF7F, DeviceConfigDO)
	ResponseAracAidDO      = tlv.Constructed("response_arac_aid_do", 0xFF70, AidRefDO, AidRefEmptyDO)
)

// STORE DATA commands (SEAC v1.1 Section 5.1).
var (
	CommandStoreRefArDO         = tlv.Constructed("command_store_ref_ar_do", 0xF0, RefArDO)
	CommandDelete               = tlv.Constructed("command_delete", 0xF1, AidRefDO, AidRefEmptyDO, RefDO, RefArDO)
	CommandUpdateRefreshTagDO   = tlv.Primitive("command_update_refresh_tag_do", 0xF2, nil)
	CommandRegisterClientAidsDO = tlv.Constructed("command_register_client_aids_do", 0xF7, AidRefDO, AidRefEmptyDO)
	CommandGet                  = tlv.Constructed("command_get", 0xF3, AidRefDO, AidRefEmptyDO)
	CommandGetAll               = tlv.Primitive("command_get_all", 0xF4, nil)
	CommandGetClientAidsDO      = tlv.Primitive("command_get_client_aids_do", 0xF6, nil)
	CommandGetNext              = tlv.Primitive("command_get_next", 0xF5, nil)
	CommandGetDeviceConfigDO    = tlv.Primitive("command_get_device_config_do", 0xF8, nil)
)

// Collections of the GET DATA and STORE DATA data fields.
var (
	GetCommand = tlv.MustCollection("get_command", RefDO, DeviceConfigDO)

	GetResponse = tlv.MustCollection("get_response",
		ResponseAllRefArDO, ResponseArDO, ResponseRefreshTagDO, ResponseAramConfigDO)

	StoreCommand = tlv.MustCollection("store_command",
		BlockDO, CommandStoreRefArDO, CommandDelete, CommandUpdateRefreshTagDO,
		CommandRegisterClientAidsDO, CommandGet, CommandGetAll, CommandGetClientAidsDO,
		CommandGetNext, CommandGetDeviceConfigDO)

	StoreResponse = tlv.MustCollection("store_response",
		ResponseAllRefArDO, ResponseAracAidDO, ResponseDeviceConfigDO)
)

// StatusWords describes the status words of the ARA-M.
var StatusWords = map[uint16]string{
	0x6381: "Rule successfully stored but an access rule already exists",
	0x6382: "Rule successfully stored but contained at least one unknown (discarded) BER-TLV",
	0x6581: "Memory Problem",
	0x6700: "Wrong Length in Lc",
	0x6981: "DO is not supported by the ARA-M/ARA-C",
	0x6982: "Security status not satisfied",
	0x6984: "Rules have been updated and must be read again / logical channels in use",
	0x6985: "Conditions not satisfied",
	0x6A80: "Incorrect values in the command data",
	0x6A84: "Rules have been updated and must be read again",
	0x6A86: "Incorrect P1 P2",
	0x6A88: "Referenced data not found",
	0x6A89: "Conflicting access rule already exists in the Secure Element",
	0x6D00: "Invalid instruction",
	0x6E00: "Invalid class",
}

// Application returns the ARA-M. It answers SELECT with a security domain
// FCI.
func Application() *fs.Application {
	return &fs.Application{
		Name:              "ADF.ARA-M",
		AID:               AID,
		FCI:               gp.FCI,
		GetDataCommand:    GetCommand,
		GetDataResponse:   GetResponse,
		StoreData:         StoreCommand,
		StoreDataResponse: StoreResponse,
		StatusWords:       StatusWords,
	}
}
