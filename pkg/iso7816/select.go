package iso7816

import "fmt"

// SELECT (INS 'A4') makes a file or an application current. P1 says how the
// target in the data field is given; P2 says which occurrence is meant
// (b2-b1) and what the card returns (b4-b3). ETSI TS 102 221 adds b7 to
// terminate an application session instead of activating it.

// SelectionMethod is the P1 of SELECT.
type SelectionMethod byte

const (
	SelectByFileID          SelectionMethod = 0x00
	SelectChildDF           SelectionMethod = 0x01
	SelectEFUnderCurrentDF  SelectionMethod = 0x02
	SelectParentDF          SelectionMethod = 0x03
	SelectByDFName          SelectionMethod = 0x04 // by AID
	SelectPathFromMF        SelectionMethod = 0x08
	SelectPathFromCurrentDF SelectionMethod = 0x09
)

var methodNames = map[SelectionMethod]string{
	SelectByFileID:          "by file ID",
	SelectChildDF:           "child DF",
	SelectEFUnderCurrentDF:  "EF under current DF",
	SelectParentDF:          "parent DF",
	SelectByDFName:          "by DF name",
	SelectPathFromMF:        "path from MF",
	SelectPathFromCurrentDF: "path from current DF",
}

func (m SelectionMethod) String() string {
	if n, ok := methodNames[m]; ok {
		return n
	}
	return fmt.Sprintf("method %02X", byte(m))
}

// FileOccurrence is b2-b1 of the P2 of SELECT.
type FileOccurrence byte

const (
	FirstOrOnlyOccurrence FileOccurrence = 0b00
	LastOccurrence        FileOccurrence = 0b01
	NextOccurrence        FileOccurrence = 0b10
	PreviousOccurrence    FileOccurrence = 0b11
)

func (f FileOccurrence) String() string {
	return [...]string{"first or only", "last", "next", "previous"}[f&0b11]
}

// SelectionControl is b4-b3 of the P2 of SELECT.
type SelectionControl byte

const (
	ReturnFCI    SelectionControl = 0b0000
	ReturnFCP    SelectionControl = 0b0100
	ReturnFMD    SelectionControl = 0b1000
	ReturnNoData SelectionControl = 0b1100
)

func (s SelectionControl) String() string {
	return [...]string{"FCI", "FCP", "FMD", "no data"}[(s>>2)&0b11]
}

const terminateSession = 0x40

// SelectParams are the decoded P1 and P2 of a SELECT.
type SelectParams struct {
	Method     SelectionMethod
	Occurrence FileOccurrence
	Control    SelectionControl
	Terminate  bool
}

// ParseSelectParams decodes the SELECT parameters. Bits of P2 outside the
// occurrence, control and termination fields are ignored.
func ParseSelectParams(p1, p2 byte) SelectParams {
	return SelectParams{
		Method:     SelectionMethod(p1),
		Occurrence: FileOccurrence(p2 & 0x03),
		Control:    SelectionControl(p2 & 0x0C),
		Terminate:  p2&terminateSession != 0,
	}
}

// P2 encodes the occurrence, control and termination fields.
func (p SelectParams) P2() byte {
	p2 := byte(p.Control) | byte(p.Occurrence)
	if p.Terminate {
		p2 |= terminateSession
	}
	return p2
}

func (p SelectParams) String() string {
	s := fmt.Sprintf("%s, %s occurrence, return %s", p.Method, p.Occurrence, p.Control)
	if p.Terminate {
		s += ", terminate session"
	}
	return s
}

// NewSelectCommand builds a SELECT. Commands without data ask for up to 256
// bytes unless no data is wanted. Commands with data leave Le out; a T=0
// card then answers 61XX and the Client fetches the data.
func NewSelectCommand(cla Class, params SelectParams, data []byte) *CommandAPDU {
	ins, _ := NewInstruction(INS_SELECT)
	ne := 0
	if len(data) == 0 && params.Control != ReturnNoData {
		ne = MaxShortLe
	}
	return NewCommandAPDU(cla, ins, byte(params.Method), params.P2(), data, ne)
}

// SelectByAID selects an application by its AID, asking for the FCI.
func SelectByAID(cla Class, aid []byte) *CommandAPDU {
	return NewSelectCommand(cla, SelectParams{Method: SelectByDFName, Control: ReturnFCI}, aid)
}

// SelectMF selects the master file.
func SelectMF(cla Class) *CommandAPDU {
	return NewSelectCommand(cla, SelectParams{Method: SelectByFileID, Control: ReturnFCI}, nil)
}

// SelectFile selects a file by its identifier, asking for the FCP as UICCs
// expect.
func SelectFile(cla Class, fid uint16) *CommandAPDU {
	return NewSelectCommand(cla, SelectParams{Method: SelectByFileID, Control: ReturnFCP},
		[]byte{byte(fid >> 8), byte(fid)})
}
