package apdu

import (
	"fmt"

	"github.com/gregLibert/apdu-trace/pkg/fs"
	"github.com/gregLibert/apdu-trace/pkg/iso7816"
	"github.com/gregLibert/apdu-trace/pkg/session"
	"github.com/gregLibert/apdu-trace/pkg/tlv"
)

// DecodeFunc builds the payload of c from its exchange and the context
// captured at decode time.
type DecodeFunc func(c *Command) (Payload, error)

// ProcessFunc applies the navigation side effects of c.
type ProcessFunc func(c *Command, s *session.State) error

// Payload is the decoded content of one exchange. Every command family
// declares its own payload types; embedding Decoded satisfies the interface.
type Payload interface {
	payload()
}

// Decoded marks a struct as a Payload.
type Decoded struct{}

func (Decoded) payload() {}

// Command is one decoded exchange.
type Command struct {
	// Def is nil when the instruction is unknown.
	Def     *Definition
	Name    string
	Channel uint8
	Tx      iso7816.Transaction

	// File and App are the selection of the channel when the command was
	// decoded. Path is the matching File ID path from the MF.
	File       *fs.File
	App        *fs.Application
	Path       []fs.FID
	PathString string

	// Tree is the file system model, for read-only lookups while decoding.
	Tree *fs.Tree

	Payload Payload
}

// Raw is the payload of exchanges that are not decoded further.
type Raw struct {
	Decoded
	Data     tlv.HexBytes `json:"data,omitempty"`
	Response tlv.HexBytes `json:"response,omitempty"`
}

// TLV is the payload of exchanges whose data fields are data object
// collections.
type TLV struct {
	Decoded
	Command  tlv.Elements `json:"command,omitempty"`
	Response tlv.Elements `json:"response,omitempty"`
}

// Decode classifies tx against the registry and decodes its payload in the
// context of the channel it was sent on.
//
// Decoding is atomic: on error the returned Command, when not nil, carries
// a Raw payload and nothing else that was decoded. An unknown instruction
// yields such a Command together with ErrUnknownInstruction.
func (r *Registry) Decode(tx iso7816.Transaction, s *session.State) (*Command, error) {
	if tx.Command == nil {
		return nil, fmt.Errorf("apdu: exchange without command")
	}
	h := tx.Command
	ch := s.Channel(h.Class.Channel)

	c := &Command{
		Name:       "UNKNOWN",
		Channel:    ch.Number(),
		Tx:         tx,
		File:       ch.File(),
		App:        ch.Application(),
		Path:       ch.Path(),
		PathString: ch.PathString(),
		Tree:       s.Tree(),
	}

	def, err := r.Lookup(h.Class.Raw, byte(h.Instruction.Raw), h.P1, h.P2)
	if err != nil {
		c.Payload = c.raw()
		return c, err
	}
	c.Def = def
	c.Name = def.Name

	if def.Decode == nil {
		c.Payload = c.raw()
		return c, nil
	}
	p, err := def.Decode(c)
	if err != nil {
		c.Payload = c.raw()
		return c, fmt.Errorf("%s: %w", def.Name, err)
	}
	c.Payload = p
	return c, nil
}

// Process runs the side effects of the command against s.
func (c *Command) Process(s *session.State) error {
	if c.Def == nil || c.Def.Process == nil {
		return nil
	}
	return c.Def.Process(c, s)
}

// Header returns the command APDU.
func (c *Command) Header() *iso7816.CommandAPDU {
	return c.Tx.Command
}

// Data returns the command data field.
func (c *Command) Data() []byte {
	return c.Tx.Command.Data
}

// Response returns the response data field.
func (c *Command) Response() []byte {
	if c.Tx.Response == nil {
		return nil
	}
	return c.Tx.Response.Data
}

// SW returns the status word, or 0 when there was no response.
func (c *Command) SW() iso7816.StatusWord {
	if c.Tx.Response == nil {
		return 0
	}
	return c.Tx.Response.Status
}

// Succeeded reports a normal ending: '9000', or '91XX'/'92XX' which UICCs
// use to signal a pending proactive command or a retried write.
func (c *Command) Succeeded() bool {
	sw1 := c.SW().SW1()
	return c.SW() == iso7816.SW_NO_ERROR || sw1 == 0x91 || sw1 == 0x92
}

func (c *Command) raw() Raw {
	return Raw{Data: orNil(c.Data()), Response: orNil(c.Response())}
}

func orNil(b []byte) tlv.HexBytes {
	if len(b) == 0 {
		return nil
	}
	return b
}

// DecodeRaw keeps both data fields as hex.
func DecodeRaw(c *Command) (Payload, error) {
	return c.raw(), nil
}

// DecodeTLV decodes the command data with cmd and, on success, the response
// data with resp. Either collection may be nil.
func DecodeTLV(cmd, resp *tlv.Collection) DecodeFunc {
	return func(c *Command) (Payload, error) {
		var p TLV
		var err error
		if cmd != nil && len(c.Data()) > 0 {
			if p.Command, err = cmd.Decode(c.Data()); err != nil {
				return nil, fmt.Errorf("command data: %w", err)
			}
		}
		if resp != nil && c.Succeeded() && len(c.Response()) > 0 {
			if p.Response, err = resp.Decode(c.Response()); err != nil {
				return nil, fmt.Errorf("response data: %w", err)
			}
		}
		return p, nil
	}
}
