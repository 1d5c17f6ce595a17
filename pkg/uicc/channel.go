package uicc

import (
	"fmt"

	"github.com/gregLibert/apdu-trace/pkg/apdu"
	"github.com/gregLibert/apdu-trace/pkg/session"
	"github.com/gregLibert/apdu-trace/pkg/tlv"
)

// ManageChannel is the payload of MANAGE CHANNEL.
type ManageChannel struct {
	apdu.Decoded
	Mode    string `json:"mode"`
	Channel int    `json:"channel"`
}

func decodeManageChannel(c *apdu.Command) (apdu.Payload, error) {
	h := c.Header()
	p := ManageChannel{Channel: int(h.P2)}
	switch h.P1 {
	case 0x00:
		p.Mode = "open"
		// With P2 '00' the card assigns the channel number.
		if h.P2 == 0 && c.Succeeded() {
			resp := c.Response()
			if len(resp) == 0 {
				return nil, fmt.Errorf("%w: no channel number assigned", tlv.ErrInvalidValue)
			}
			p.Channel = int(resp[0])
		}
	case 0x80:
		p.Mode = "close"
		// P2 '00' closes the channel the command is sent on.
		if h.P2 == 0 {
			p.Channel = int(c.Channel)
		}
	default:
		return nil, fmt.Errorf("%w: P1 %02X", tlv.ErrInvalidValue, h.P1)
	}
	return p, nil
}

func processManageChannel(c *apdu.Command, s *session.State) error {
	p, ok := c.Payload.(ManageChannel)
	if !ok || !c.Succeeded() {
		return nil
	}
	if p.Mode == "open" {
		s.Open(uint8(p.Channel))
		return nil
	}
	s.Close(uint8(p.Channel))
	return nil
}

// Terminal capability (ETSI TS 102 221 Section 11.1.19.2).
var (
	TerminalPowerSupply      = tlv.Primitive("terminal_power_supply", 0x80, tlv.FixedBytes(3))
	ExtendedLogicalChannels  = tlv.Primitive("extended_logical_channels", 0x81, tlv.Empty)
	AdditionalInterfaces     = tlv.Primitive("additional_interfaces", 0x82, tlv.Uint8)
	EUICCRelatedCapabilities = tlv.Primitive("euicc_related_capabilities", 0x83, tlv.Uint8)

	TerminalCapabilityTemplate = tlv.Constructed("terminal_capability", 0xA9,
		TerminalPowerSupply, ExtendedLogicalChannels, AdditionalInterfaces, EUICCRelatedCapabilities)

	TerminalCapability = tlv.MustCollection("terminal_capability", TerminalCapabilityTemplate)
)

// CAT envelopes and proactive commands (ETSI TS 102 223). Their content is
// COMPREHENSION-TLV and kept as hex.
var (
	SMSPPDownload         = tlv.Primitive("sms_pp_download", 0xD1, tlv.Bytes)
	CellBroadcastDownload = tlv.Primitive("cell_broadcast_download", 0xD2, tlv.Bytes)
	MenuSelection         = tlv.Primitive("menu_selection", 0xD3, tlv.Bytes)
	CallControl           = tlv.Primitive("call_control", 0xD4, tlv.Bytes)
	MOShortMessageControl = tlv.Primitive("mo_short_message_control", 0xD5, tlv.Bytes)
	EventDownload         = tlv.Primitive("event_download", 0xD6, tlv.Bytes)
	TimerExpiration       = tlv.Primitive("timer_expiration", 0xD7, tlv.Bytes)
	ProactiveCommand      = tlv.Primitive("proactive_command", 0xD0, tlv.Bytes)

	Envelope = tlv.MustCollection("envelope",
		SMSPPDownload, CellBroadcastDownload, MenuSelection, CallControl,
		MOShortMessageControl, EventDownload, TimerExpiration)
	Fetch = tlv.MustCollection("fetch", ProactiveCommand)
)

// Suspend is the payload of SUSPEND UICC.
type Suspend struct {
	apdu.Decoded
	Operation string       `json:"operation"`
	Duration  tlv.HexBytes `json:"duration,omitempty"`
	ResumeKey tlv.HexBytes `json:"resume_token,omitempty"`
}

func decodeSuspend(c *apdu.Command) (apdu.Payload, error) {
	p := Suspend{}
	switch c.Header().P1 {
	case 0x00:
		p.Operation = "suspend"
		p.Duration = orNil(c.Data())
		if c.Succeeded() {
			p.ResumeKey = orNil(c.Response())
		}
	case 0x01:
		p.Operation = "resume"
		p.ResumeKey = orNil(c.Data())
	default:
		p.Operation = fmt.Sprintf("RFU (%02X)", c.Header().P1)
	}
	return p, nil
}
