// Package usim holds the USIM and ISIM applications of 3GPP TS 31.102 and
// TS 31.103 and the AUTHENTICATE command they define.
package usim

import (
	"fmt"

	"github.com/gregLibert/apdu-trace/pkg/apdu"
	"github.com/gregLibert/apdu-trace/pkg/tlv"
)

// Authentication contexts, P2 bits 3-1.
const (
	ContextGSM   = 0b000
	Context3G    = 0b001
	ContextVGCS  = 0b010
	ContextGBA   = 0b100
	ContextMBMS  = 0b101
	ContextLocal = 0b110
)

func contextName(p2 byte) string {
	switch p2 & 0x07 {
	case ContextGSM:
		return "GSM"
	case Context3G:
		return "3G"
	case ContextVGCS:
		return "VGCS/VBS"
	case ContextGBA:
		return "GBA"
	case ContextMBMS:
		return "MBMS"
	case ContextLocal:
		return "local key establishment"
	default:
		return fmt.Sprintf("RFU (%03b)", p2&0x07)
	}
}

// Authenticate is the payload of AUTHENTICATE on a USIM.
type Authenticate struct {
	apdu.Decoded
	Context string       `json:"context"`
	RAND    tlv.HexBytes `json:"rand,omitempty"`
	AUTN    tlv.HexBytes `json:"autn,omitempty"`
	Result  string       `json:"result,omitempty"`
	SRES    tlv.HexBytes `json:"sres,omitempty"`
	RES     tlv.HexBytes `json:"res,omitempty"`
	CK      tlv.HexBytes `json:"ck,omitempty"`
	IK      tlv.HexBytes `json:"ik,omitempty"`
	Kc      tlv.HexBytes `json:"kc,omitempty"`
	AUTS    tlv.HexBytes `json:"auts,omitempty"`
	Other   tlv.HexBytes `json:"other,omitempty"`
}

// lv splits a length-prefixed field off b.
type lv []byte

func (b *lv) next(field string) (tlv.HexBytes, error) {
	if len(*b) == 0 {
		return nil, fmt.Errorf("%w: missing %s", tlv.ErrMalformedLength, field)
	}
	n := int((*b)[0])
	if len(*b) < 1+n {
		return nil, fmt.Errorf("%w: %s needs %d bytes, %d left", tlv.ErrMalformedLength, field, n, len(*b)-1)
	}
	v := tlv.HexBytes(append([]byte(nil), (*b)[1:1+n]...))
	*b = (*b)[1+n:]
	return v, nil
}

func decodeAuthenticate(c *apdu.Command) (apdu.Payload, error) {
	p2 := c.Header().P2
	p := Authenticate{Context: contextName(p2)}
	ctx := p2 & 0x07

	if ctx != ContextGSM && ctx != Context3G {
		p.Other = orNil(c.Data())
		if c.Succeeded() {
			p.Result = "success"
		}
		return p, nil
	}

	var err error
	data := lv(c.Data())
	if p.RAND, err = data.next("RAND"); err != nil {
		return nil, err
	}
	if ctx == Context3G {
		if p.AUTN, err = data.next("AUTN"); err != nil {
			return nil, err
		}
	}

	if !c.Succeeded() || len(c.Response()) == 0 {
		return p, nil
	}

	resp := lv(c.Response())
	if ctx == ContextGSM {
		p.Result = "success"
		if p.SRES, err = resp.next("SRES"); err != nil {
			return nil, err
		}
		if p.Kc, err = resp.next("Kc"); err != nil {
			return nil, err
		}
		return p, nil
	}

	tag := resp[0]
	resp = resp[1:]
	switch tag {
	case 0xDB:
		p.Result = "success"
		if p.RES, err = resp.next("RES"); err != nil {
			return nil, err
		}
		if p.CK, err = resp.next("CK"); err != nil {
			return nil, err
		}
		if p.IK, err = resp.next("IK"); err != nil {
			return nil, err
		}
		// Kc follows when GSM access (service 27) is available.
		if len(resp) > 0 {
			if p.Kc, err = resp.next("Kc"); err != nil {
				return nil, err
			}
		}
	case 0xDC:
		p.Result = "synchronisation failure"
		if p.AUTS, err = resp.next("AUTS"); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: authentication response tag %02X", tlv.ErrUnexpectedElement, tag)
	}
	return p, nil
}

func orNil(b []byte) tlv.HexBytes {
	if len(b) == 0 {
		return nil
	}
	return tlv.HexBytes(b)
}

// Commands returns the USIM table. Merged after the UICC table, its
// AUTHENTICATE replaces the generic one.
func Commands() apdu.Table {
	return apdu.Table{
		Name: "usim",
		Definitions: []*apdu.Definition{
			{Name: "AUTHENTICATE", Class: apdu.Interindustry, INS: 0x88, Case: apdu.Case4, Decode: decodeAuthenticate},
		},
	}
}
