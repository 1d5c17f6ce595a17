// Package uicc holds the UICC command set of ETSI TS 102 221 and the file
// system of the MF it addresses.
package uicc

import (
	"github.com/gregLibert/apdu-trace/pkg/apdu"
)

// Commands returns the UICC command table.
func Commands() apdu.Table {
	ii, prop := apdu.Interindustry, apdu.Proprietary
	return apdu.Table{
		Name: "uicc",
		Definitions: []*apdu.Definition{
			{Name: "SELECT", Class: ii, INS: 0xA4, Case: apdu.Case4, Decode: decodeSelect, Process: processSelect},
			{Name: "STATUS", Class: prop, INS: 0xF2, Case: apdu.Case2, Decode: decodeStatus},

			{Name: "READ BINARY", Class: ii, INS: 0xB0, Case: apdu.Case2, Decode: decodeBinary(false), Process: processBinary},
			{Name: "UPDATE BINARY", Class: ii, INS: 0xD6, Case: apdu.Case3, Decode: decodeBinary(true), Process: processBinary},
			{Name: "READ RECORD", Class: ii, INS: 0xB2, Case: apdu.Case2, Decode: decodeRecord(false), Process: processRecord},
			{Name: "UPDATE RECORD", Class: ii, INS: 0xDC, Case: apdu.Case3, Decode: decodeRecord(true), Process: processRecord},
			{Name: "SEARCH RECORD", Class: ii, INS: 0xA2, Case: apdu.Case4, Decode: decodeSearch, Process: processRecord},
			{Name: "INCREASE", Class: prop, INS: 0x32, Case: apdu.Case4, Decode: decodeIncrease},

			{Name: "VERIFY PIN", Class: ii, INS: 0x20, Case: apdu.Case3, Decode: decodePIN(layoutVerify)},
			{Name: "CHANGE PIN", Class: ii, INS: 0x24, Case: apdu.Case3, Decode: decodePIN(layoutChange)},
			{Name: "DISABLE PIN", Class: ii, INS: 0x26, Case: apdu.Case3, Decode: decodePIN(layoutVerify)},
			{Name: "ENABLE PIN", Class: ii, INS: 0x28, Case: apdu.Case3, Decode: decodePIN(layoutVerify)},
			{Name: "UNBLOCK PIN", Class: ii, INS: 0x2C, Case: apdu.Case3, Decode: decodePIN(layoutUnblock)},

			{Name: "DEACTIVATE FILE", Class: ii, INS: 0x04, Case: apdu.Case3, Decode: apdu.DecodeRaw},
			{Name: "ACTIVATE FILE", Class: ii, INS: 0x44, Case: apdu.Case3, Decode: apdu.DecodeRaw},
			{Name: "AUTHENTICATE", Class: ii, INS: 0x88, Case: apdu.Case4, Decode: decodeAuthenticate},
			{Name: "GET CHALLENGE", Class: ii, INS: 0x84, Case: apdu.Case2, Decode: decodeChallenge},

			{Name: "TERMINAL CAPABILITY", Class: prop, INS: 0xAA, Case: apdu.Case3, Decode: apdu.DecodeTLV(TerminalCapability, nil)},
			{Name: "TERMINAL PROFILE", Class: prop, INS: 0x10, Case: apdu.Case3, Decode: apdu.DecodeRaw},
			{Name: "ENVELOPE", Class: prop, INS: 0xC2, Case: apdu.Case4, Decode: apdu.DecodeTLV(Envelope, nil)},
			{Name: "FETCH", Class: prop, INS: 0x12, Case: apdu.Case2, Decode: apdu.DecodeTLV(nil, Fetch)},
			{Name: "TERMINAL RESPONSE", Class: prop, INS: 0x14, Case: apdu.Case3, Decode: apdu.DecodeRaw},

			{Name: "MANAGE CHANNEL", Class: ii, INS: 0x70, Case: apdu.Case2, Decode: decodeManageChannel, Process: processManageChannel},
			{Name: "MANAGE SECURE CHANNEL", Class: ii, INS: 0x73, Case: apdu.Case4, Decode: apdu.DecodeRaw},
			{Name: "TRANSACT DATA", Class: ii, INS: 0x75, Case: apdu.Case4, Decode: apdu.DecodeRaw},
			{Name: "SUSPEND UICC", Class: prop, INS: 0x76, Case: apdu.Case4, Decode: decodeSuspend},
			{Name: "GET IDENTITY", Class: prop, INS: 0x78, Case: apdu.Case4, Decode: apdu.DecodeRaw},
			{Name: "GET RESPONSE", Class: apdu.AnyClass, INS: 0xC0, Case: apdu.Case2, Decode: apdu.DecodeRaw},
		},
	}
}

// Registry merges the UICC table alone.
func Registry() *apdu.Registry {
	return apdu.Merge(Commands())
}
