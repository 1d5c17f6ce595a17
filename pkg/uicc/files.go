package uicc

import (
	"fmt"
	"strings"

	"github.com/gregLibert/apdu-trace/pkg/apdu"
	"github.com/gregLibert/apdu-trace/pkg/fs"
	"github.com/gregLibert/apdu-trace/pkg/iso7816"
	"github.com/gregLibert/apdu-trace/pkg/session"
	"github.com/gregLibert/apdu-trace/pkg/tlv"
)

// targetFile resolves the EF a file access command works on: the EF with
// short identifier sfi under the current DF, or the current EF when sfi is 0.
func targetFile(c *apdu.Command, sfi byte) *fs.File {
	cur := c.File
	if sfi == 0 {
		if cur != nil && !cur.Type.IsDF() {
			return cur
		}
		return nil
	}
	if cur == nil {
		if c.Tree == nil {
			return nil
		}
		cur = c.Tree.MF()
	}
	f, _ := cur.DF().ChildBySFI(sfi)
	return f
}

func fileName(f *fs.File) string {
	if f == nil {
		return ""
	}
	return f.Name
}

// decodeContent interprets data with the codec of f, when it has one.
func decodeContent(f *fs.File, data []byte) (any, error) {
	if f == nil || f.Content == nil || len(data) == 0 {
		return nil, nil
	}
	v, err := f.Content.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s content: %w", f.Name, err)
	}
	return v, nil
}

// Binary is the payload of READ BINARY and UPDATE BINARY.
type Binary struct {
	apdu.Decoded
	File    string       `json:"file,omitempty"`
	SFI     byte         `json:"sfi,omitempty"`
	Offset  int          `json:"offset"`
	Data    tlv.HexBytes `json:"data,omitempty"`
	Content any          `json:"content,omitempty"`
}

func binarySFI(p1 byte) byte {
	if p1&0x80 != 0 {
		return p1 & 0x1F
	}
	return 0
}

func binaryOffset(p1, p2 byte) int {
	if p1&0x80 != 0 {
		return int(p2)
	}
	return int(p1&0x7F)<<8 | int(p2)
}

func decodeBinary(update bool) apdu.DecodeFunc {
	return func(c *apdu.Command) (apdu.Payload, error) {
		h := c.Header()
		sfi := binarySFI(h.P1)
		f := targetFile(c, sfi)
		p := Binary{File: fileName(f), SFI: sfi, Offset: binaryOffset(h.P1, h.P2)}

		data := c.Data()
		if !update {
			if !c.Succeeded() {
				return p, nil
			}
			data = c.Response()
		}
		p.Data = orNil(data)

		// Contents are only meaningful from the start of the file.
		if p.Offset == 0 {
			v, err := decodeContent(f, data)
			if err != nil {
				return nil, err
			}
			p.Content = v
		}
		return p, nil
	}
}

func processBinary(c *apdu.Command, s *session.State) error {
	sfi := binarySFI(c.Header().P1)
	if sfi == 0 || !c.Succeeded() {
		return nil
	}
	_, err := s.SelectSFI(c.Channel, sfi)
	return err
}

// Record is the payload of READ RECORD and UPDATE RECORD.
type Record struct {
	apdu.Decoded
	File    string       `json:"file,omitempty"`
	SFI     byte         `json:"sfi,omitempty"`
	Record  int          `json:"record"`
	Mode    string       `json:"mode"`
	Data    tlv.HexBytes `json:"data,omitempty"`
	Content any          `json:"content,omitempty"`
}

// ColumnID is the record number.
func (p Record) ColumnID() string {
	return fmt.Sprintf("%02d", p.Record)
}

func updateRecordMode(m byte) string {
	switch m {
	case 0b010:
		return "next record"
	case 0b011:
		return "previous record"
	case 0b100:
		return "absolute/current record"
	default:
		return fmt.Sprintf("RFU (%03b)", m)
	}
}

func decodeRecord(update bool) apdu.DecodeFunc {
	return func(c *apdu.Command) (apdu.Payload, error) {
		h := c.Header()
		sfi, mode := iso7816.ParseRecordP2(h.P2)
		f := targetFile(c, sfi)
		p := Record{File: fileName(f), SFI: sfi, Record: int(h.P1)}

		data := c.Data()
		if update {
			p.Mode = updateRecordMode(byte(mode))
		} else {
			p.Mode = mode.String()
			if !c.Succeeded() {
				return p, nil
			}
			data = c.Response()
		}
		p.Data = orNil(data)

		v, err := decodeContent(f, data)
		if err != nil {
			return nil, err
		}
		p.Content = v
		return p, nil
	}
}

func processRecord(c *apdu.Command, s *session.State) error {
	sfi, _ := iso7816.ParseRecordP2(c.Header().P2)
	if sfi == 0 || !c.Succeeded() {
		return nil
	}
	_, err := s.SelectSFI(c.Channel, sfi)
	return err
}

// Describe writes the record report with the content of known files.
func (p Record) Describe(c *apdu.Command) string {
	var sb strings.Builder
	h := c.Header()

	fmt.Fprintf(&sb, "=== %s REPORT ===\n", c.Name)
	fmt.Fprintf(&sb, "[1] Command: %s\n", c.Name)
	fmt.Fprintf(&sb, "    + Record:  %02X (%d)\n", h.P1, p.Record)
	if p.SFI != 0 {
		fmt.Fprintf(&sb, "    + Target:  SFI %02X (%d)\n", p.SFI, p.SFI)
	} else {
		sb.WriteString("    + Target:  Current EF\n")
	}
	if p.File != "" {
		fmt.Fprintf(&sb, "    + File:    %s\n", p.File)
	}
	fmt.Fprintf(&sb, "    + Mode:    %s\n", p.Mode)
	sb.WriteString(apdu.ResultLine(c.SW()))
	sb.WriteString("\n")
	apdu.WriteDump(&sb, p.Data)

	if elems, ok := p.Content.(tlv.Elements); ok && len(elems) > 0 {
		var nodes strings.Builder
		tlv.WriteNodes(&nodes, "content", elems)
		sb.WriteString(nodes.String() + "\n")
	} else if p.Content != nil {
		fmt.Fprintf(&sb, "    + Content: %v\n", p.Content)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// Search is the payload of SEARCH RECORD.
type Search struct {
	apdu.Decoded
	File    string       `json:"file,omitempty"`
	SFI     byte         `json:"sfi,omitempty"`
	Record  int          `json:"record"`
	Mode    string       `json:"mode"`
	Pattern tlv.HexBytes `json:"pattern,omitempty"`
	Matches []int        `json:"matches,omitempty"`
}

func searchMode(m byte) string {
	switch m {
	case 0b100:
		return "forward from P1"
	case 0b101:
		return "backward from P1"
	case 0b110:
		return "enhanced"
	case 0b010:
		return "forward from next record"
	case 0b011:
		return "backward from previous record"
	default:
		return fmt.Sprintf("RFU (%03b)", m)
	}
}

func decodeSearch(c *apdu.Command) (apdu.Payload, error) {
	h := c.Header()
	sfi := h.P2 >> 3
	p := Search{
		File:    fileName(targetFile(c, sfi)),
		SFI:     sfi,
		Record:  int(h.P1),
		Mode:    searchMode(h.P2 & 0x07),
		Pattern: orNil(c.Data()),
	}
	if c.Succeeded() {
		for _, r := range c.Response() {
			p.Matches = append(p.Matches, int(r))
		}
	}
	return p, nil
}

// Increase is the payload of INCREASE.
type Increase struct {
	apdu.Decoded
	File   string       `json:"file,omitempty"`
	Value  tlv.HexBytes `json:"value,omitempty"`
	Result tlv.HexBytes `json:"result,omitempty"`
	Added  tlv.HexBytes `json:"added,omitempty"`
}

func decodeIncrease(c *apdu.Command) (apdu.Payload, error) {
	h := c.Header()
	sfi := h.P1 & 0x1F
	if h.P1&0x80 == 0 {
		sfi = 0
	}
	p := Increase{File: fileName(targetFile(c, sfi)), Value: orNil(c.Data())}

	// The response is the new record value followed by the added value.
	resp := c.Response()
	if c.Succeeded() && len(resp) > 0 {
		n := len(c.Data())
		if n == 0 || n >= len(resp) {
			return nil, fmt.Errorf("%w: %d response bytes for a %d byte increment",
				tlv.ErrInvalidValue, len(resp), n)
		}
		p.Result = orNil(resp[:len(resp)-n])
		p.Added = orNil(resp[len(resp)-n:])
	}
	return p, nil
}
