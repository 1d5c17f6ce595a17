package uicc

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gregLibert/apdu-trace/pkg/apdu"
	"github.com/gregLibert/apdu-trace/pkg/fs"
	"github.com/gregLibert/apdu-trace/pkg/iso7816"
	"github.com/gregLibert/apdu-trace/pkg/session"
	"github.com/gregLibert/apdu-trace/pkg/tlv"
)

// FileInfo summarizes the FCP returned by SELECT or STATUS.
type FileInfo struct {
	FileDescriptor tlv.HexBytes `json:"file_descriptor,omitempty"`
	FileType       string       `json:"file_type,omitempty"`
	FileID         tlv.HexBytes `json:"file_identifier,omitempty"`
	DFName         tlv.HexBytes `json:"df_name,omitempty"`
	SFI            tlv.HexBytes `json:"short_file_identifier,omitempty"`
	FileSize       uint64       `json:"file_size,omitempty"`
	LifeCycle      tlv.HexBytes `json:"life_cycle_status,omitempty"`
	Label          string       `json:"application_label,omitempty"`
}

func newFileInfo(r *iso7816.SelectResponse) *FileInfo {
	if r == nil || r.FCP == nil {
		return nil
	}
	fcp := r.FCP
	info := &FileInfo{
		FileDescriptor: orNil(fcp.FileDescriptor),
		FileID:         orNil(fcp.FileID),
		DFName:         orNil(r.AID()),
		SFI:            orNil(fcp.SFI),
		FileSize:       fcp.FileSize,
		LifeCycle:      orNil(fcp.LifeCycleStatus),
		Label:          r.Label(),
	}
	if len(fcp.FileDescriptor) > 0 {
		info.FileType = fs.TypeFromDescriptor(fcp.FileDescriptor[0]).String()
	}
	return info
}

func orNil(b []byte) tlv.HexBytes {
	if len(b) == 0 {
		return nil
	}
	return tlv.HexBytes(b)
}

// Select is the payload of SELECT.
type Select struct {
	apdu.Decoded
	Method    string       `json:"method"`
	Control   string       `json:"control"`
	Terminate bool         `json:"terminate,omitempty"`
	Target    tlv.HexBytes `json:"target,omitempty"`
	FCP       *FileInfo    `json:"fcp,omitempty"`
	FCI       tlv.Elements `json:"fci,omitempty"`

	params iso7816.SelectParams
	resp   *iso7816.SelectResponse
}

// ColumnID is the selection target.
func (p Select) ColumnID() string {
	return fmt.Sprintf("%X", []byte(p.Target))
}

// selectAccepted treats '61XX' as success: in captures the response data
// follows in a separate GET RESPONSE.
func selectAccepted(c *apdu.Command) bool {
	return c.Succeeded() || c.SW().SW1() == 0x61
}

func selectTarget(c *apdu.Command) session.Target {
	return session.Target{Method: iso7816.SelectionMethod(c.Header().P1), Data: c.Data()}
}

func decodeSelect(c *apdu.Command) (apdu.Payload, error) {
	h := c.Header()
	params := iso7816.ParseSelectParams(h.P1, h.P2)
	p := Select{
		Method:    params.Method.String(),
		Control:   params.Control.String(),
		Terminate: params.Terminate,
		Target:    orNil(c.Data()),
		params:    params,
	}

	resp := c.Response()
	if !c.Succeeded() || len(resp) == 0 {
		return p, nil
	}

	if app := selectedApplication(c); app != nil && app.FCI != nil && resp[0] == 0x6F {
		elems, err := app.FCI.Decode(resp, tlv.AllowUnknown())
		if err != nil {
			return nil, fmt.Errorf("%s FCI: %w", app.Name, err)
		}
		p.FCI = elems
		return p, nil
	}

	r, err := iso7816.ParseSelectResponse(resp, params.Control)
	if err != nil {
		return nil, err
	}
	p.resp = r
	p.FCP = newFileInfo(r)
	return p, nil
}

// selectedApplication resolves a SELECT by DF name without touching the
// session.
func selectedApplication(c *apdu.Command) *fs.Application {
	if c.Tree == nil || iso7816.SelectionMethod(c.Header().P1) != iso7816.SelectByDFName {
		return nil
	}
	if adf, ok := c.Tree.ADFByAID(c.Data()); ok {
		return adf.App
	}
	return nil
}

func processSelect(c *apdu.Command, s *session.State) error {
	t := selectTarget(c)
	if !selectAccepted(c) {
		return fmt.Errorf("%w: %s answered %04X", fs.ErrFileNotFound, t, uint16(c.SW()))
	}

	_, err := s.Select(c.Channel, t)
	if errors.Is(err, fs.ErrFileNotFound) {
		if _, derr := s.Discover(c.Channel, t, discoveredType(c)); derr == nil {
			return nil
		}
	}
	return err
}

func discoveredType(c *apdu.Command) fs.FileType {
	if p, ok := c.Payload.(Select); ok && p.FCP != nil && len(p.FCP.FileDescriptor) > 0 {
		return fs.TypeFromDescriptor(p.FCP.FileDescriptor[0])
	}
	if iso7816.SelectionMethod(c.Header().P1) == iso7816.SelectByDFName {
		return fs.TypeADF
	}
	return fs.TypeUnknown
}

// Describe writes the SELECT report: request, result and parsed FCI.
func (p Select) Describe(c *apdu.Command) string {
	var sb strings.Builder
	h := c.Header()

	sb.WriteString("=== SELECT COMMAND REPORT ===\n")
	sb.WriteString("[1] Command: SELECT FILE\n")
	fmt.Fprintf(&sb, "    + P1 P2:   %02X %02X -> %s\n", h.P1, h.P2, p.params)
	if len(p.Target) > 0 {
		fmt.Fprintf(&sb, "    + Data:    %X (%q)\n", []byte(p.Target), tlv.MakeSafeASCII(p.Target))
	}
	sb.WriteString(apdu.ResultLine(c.SW()))
	sb.WriteString("\n[=] FINAL OUTCOME:\n")

	switch {
	case len(p.FCI) > 0:
		sb.WriteString("    - Structure: FCI")
		var nodes strings.Builder
		tlv.WriteNodes(&nodes, "FCI", p.FCI)
		sb.WriteString("\n" + nodes.String())
	case p.resp != nil:
		var structures []string
		if p.resp.FCP != nil {
			structures = append(structures, "FCP")
		}
		if p.resp.FMD != nil {
			structures = append(structures, "FMD")
		}
		if len(p.resp.Proprietary) > 0 {
			structures = append(structures, "proprietary")
		}
		fmt.Fprintf(&sb, "    - Structure: %s", strings.Join(structures, " + "))

		var fields strings.Builder
		tlv.WriteFields(&fields, "FCP", p.resp.FCP)
		tlv.WriteFields(&fields, "FMD", p.resp.FMD)
		if fields.Len() > 0 {
			sb.WriteString("\n" + fields.String())
		}
		if len(p.resp.Proprietary) > 0 {
			fmt.Fprintf(&sb, "\n    - Proprietary:   %X", []byte(p.resp.Proprietary))
		}
	default:
		sb.WriteString("    - No Data returned to parse.")
	}

	return sb.String()
}

// Status is the payload of STATUS.
type Status struct {
	apdu.Decoded
	Indication string       `json:"indication"`
	Returns    string       `json:"returns"`
	FCP        *FileInfo    `json:"fcp,omitempty"`
	DFName     tlv.HexBytes `json:"df_name,omitempty"`
}

func decodeStatus(c *apdu.Command) (apdu.Payload, error) {
	h := c.Header()
	p := Status{}

	switch h.P1 {
	case 0x00:
		p.Indication = "no indication"
	case 0x01:
		p.Indication = "application initialized"
	case 0x02:
		p.Indication = "application terminating"
	default:
		p.Indication = fmt.Sprintf("RFU (%02X)", h.P1)
	}

	resp := c.Response()
	switch h.P2 {
	case 0x00:
		p.Returns = "FCP"
		if c.Succeeded() && len(resp) > 0 {
			r, err := iso7816.ParseSelectResponse(resp, iso7816.ReturnFCP)
			if err != nil {
				return nil, fmt.Errorf("status response: %w", err)
			}
			p.FCP = newFileInfo(r)
		}
	case 0x01:
		p.Returns = "DF name"
		if c.Succeeded() && len(resp) > 0 {
			name, err := tlv.Find(resp, 0x84)
			if err != nil {
				return nil, fmt.Errorf("status response: %w", err)
			}
			p.DFName = name
		}
	case 0x0C:
		p.Returns = "no data"
	default:
		p.Returns = fmt.Sprintf("RFU (%02X)", h.P2)
	}

	return p, nil
}
