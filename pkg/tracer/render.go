package tracer

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/gregLibert/apdu-trace/pkg/apdu"
	"github.com/gregLibert/apdu-trace/pkg/source"
	"github.com/gregLibert/apdu-trace/pkg/tlv"
)

const separator = "==============================="

// identifier is implemented by payloads with a short identifier for the
// ID column, like a record number.
type identifier interface {
	ColumnID() string
}

func columnID(c *apdu.Command) string {
	if id, ok := c.Payload.(identifier); ok {
		return id.ColumnID()
	}
	return ""
}

// StatusText describes the status word of c, with the table of the
// application it was sent to first.
func StatusText(c *apdu.Command) string {
	sw := c.SW()
	if c.App != nil {
		if desc, ok := c.App.DescribeStatus(uint16(sw)); ok {
			return desc
		}
	}
	return sw.Verbose()
}

// TextRenderer writes one line per command:
//
//	channel name path id sw payload
//
// with the payload as JSON, followed by a separator.
type TextRenderer struct {
	w io.Writer

	// ShowRaw writes the C-APDU and R-APDU before the decoded line.
	ShowRaw bool
	// Details writes the multi-line report of the command after it.
	Details bool
}

// NewTextRenderer returns a TextRenderer writing to w.
func NewTextRenderer(w io.Writer) *TextRenderer {
	return &TextRenderer{w: w}
}

func (r *TextRenderer) Command(c *apdu.Command) error {
	if r.ShowRaw {
		if err := writeRaw(r.w, c); err != nil {
			return err
		}
	}

	payload, err := json.Marshal(c.Payload)
	if err != nil {
		payload = []byte(fmt.Sprintf("%q", err.Error()))
	}
	_, err = fmt.Fprintf(r.w, "%02d %-16s %-35s %-8s %04X %s\n",
		c.Channel, c.Name, c.PathString, columnID(c), uint16(c.SW()), payload)
	if err != nil {
		return err
	}
	if !c.Succeeded() && !c.SW().IsSuccess() {
		fmt.Fprintf(r.w, "   %s\n", StatusText(c))
	}
	if r.Details {
		fmt.Fprintln(r.w, c.Describe())
	}
	_, err = fmt.Fprintln(r.w, separator)
	return err
}

func (r *TextRenderer) Reset(ev source.Reset) error {
	_, err := fmt.Fprintf(r.w, "%s\n%s\n", ev, separator)
	return err
}

func writeRaw(w io.Writer, c *apdu.Command) error {
	capdu, err := c.Header().Bytes()
	if err != nil {
		return err
	}
	var rapdu []byte
	if c.Tx.Response != nil {
		rapdu = c.Tx.Response.Bytes()
	}
	_, err = fmt.Fprintf(w, "%X %X\n", capdu, rapdu)
	return err
}

// JSONRenderer writes one JSON object per event and line.
type JSONRenderer struct {
	enc *json.Encoder

	// ShowRaw adds the C-APDU and R-APDU to each command.
	ShowRaw bool
}

// NewJSONRenderer returns a JSONRenderer writing to w.
func NewJSONRenderer(w io.Writer) *JSONRenderer {
	return &JSONRenderer{enc: json.NewEncoder(w)}
}

type jsonCommand struct {
	Event   string       `json:"event"`
	Channel uint8        `json:"channel"`
	Name    string       `json:"name"`
	Path    string       `json:"path"`
	ID      string       `json:"id,omitempty"`
	SW      string       `json:"sw"`
	Status  string       `json:"status"`
	CAPDU   tlv.HexBytes `json:"capdu,omitempty"`
	RAPDU   tlv.HexBytes `json:"rapdu,omitempty"`
	Payload apdu.Payload `json:"payload"`
}

type jsonReset struct {
	Event string       `json:"event"`
	ATR   tlv.HexBytes `json:"atr,omitempty"`
}

func (r *JSONRenderer) Command(c *apdu.Command) error {
	out := jsonCommand{
		Event:   "command",
		Channel: c.Channel,
		Name:    c.Name,
		Path:    c.PathString,
		ID:      columnID(c),
		SW:      fmt.Sprintf("%04X", uint16(c.SW())),
		Status:  StatusText(c),
		Payload: c.Payload,
	}
	if r.ShowRaw {
		capdu, err := c.Header().Bytes()
		if err != nil {
			return err
		}
		out.CAPDU = capdu
		if c.Tx.Response != nil {
			out.RAPDU = c.Tx.Response.Bytes()
		}
	}
	return r.enc.Encode(out)
}

func (r *JSONRenderer) Reset(ev source.Reset) error {
	return r.enc.Encode(jsonReset{Event: "reset", ATR: ev.ATR})
}
