package apdu

import (
	"fmt"
	"strings"

	"github.com/gregLibert/apdu-trace/pkg/iso7816"
	"github.com/gregLibert/apdu-trace/pkg/tlv"
)

// Describer is implemented by payloads that can write a multi-line report
// of the exchange they were decoded from.
type Describer interface {
	Describe(c *Command) string
}

// Describe returns the report of c: the payload's own when it has one,
// else a generic header, result and data dump.
func (c *Command) Describe() string {
	if d, ok := c.Payload.(Describer); ok {
		return d.Describe(c)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "=== %s ===\n", c.Name)
	h := c.Header()
	fmt.Fprintf(&sb, "[1] Command: %s\n", c.Name)
	fmt.Fprintf(&sb, "    + Header:  %02X %02X %02X %02X\n", h.Class.Raw, byte(h.Instruction.Raw), h.P1, h.P2)
	fmt.Fprintf(&sb, "    + Class:   %s\n", h.Class)
	if len(c.Data()) > 0 {
		fmt.Fprintf(&sb, "    + Data:    %X\n", c.Data())
	}
	sb.WriteString(ResultLine(c.SW()))
	sb.WriteString("\n")
	WriteDump(&sb, c.Response())
	return strings.TrimRight(sb.String(), "\n")
}

// ResultLine renders a status word as a report line, flagging anything but
// a normal ending.
func ResultLine(sw iso7816.StatusWord) string {
	sw1, sw2 := sw.SW1(), sw.SW2()

	resultMsg := "[OK]"
	resultDesc := "SW_NO_ERROR"

	switch {
	case sw1 == 0x61:
		resultDesc = fmt.Sprintf("%02X (%d) bytes still available", sw2, sw2)
	case sw1 == 0x6C:
		resultMsg = "[!!]"
		resultDesc = fmt.Sprintf("Wrong length, correct is %02X (%d)", sw2, sw2)
	case sw1 == 0x91:
		resultDesc = fmt.Sprintf("Proactive command pending, %d bytes", sw2)
	case sw != iso7816.SW_NO_ERROR:
		resultMsg = "[!!]"
		resultDesc = sw.Verbose()
	}

	return fmt.Sprintf("    + Result:  [%02X %02X] %s %s\n", sw1, sw2, resultMsg, resultDesc)
}

// WriteDump writes the data outcome section of a report.
func WriteDump(sb *strings.Builder, data []byte) {
	sb.WriteString("[=] DATA OUTCOME:\n")
	if len(data) == 0 {
		sb.WriteString("    - No Data Received.\n")
		return
	}
	fmt.Fprintf(sb, "    + Length: %d bytes\n", len(data))
	fmt.Fprintf(sb, "    + Dump:   %X\n", data)
	fmt.Fprintf(sb, "    + ASCII:  %q\n", tlv.MakeSafeASCII(data))
}

// Describe writes the decoded data objects of both directions.
func (p TLV) Describe(c *Command) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "=== %s ===\n", c.Name)
	sb.WriteString(ResultLine(c.SW()))
	if len(p.Command) > 0 {
		sb.WriteString("[>] COMMAND DATA:")
		var nodes strings.Builder
		tlv.WriteNodes(&nodes, "cmd", p.Command)
		sb.WriteString("\n" + nodes.String() + "\n")
	}
	if len(p.Response) > 0 {
		sb.WriteString("[<] RESPONSE DATA:")
		var nodes strings.Builder
		tlv.WriteNodes(&nodes, "rsp", p.Response)
		sb.WriteString("\n" + nodes.String() + "\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
