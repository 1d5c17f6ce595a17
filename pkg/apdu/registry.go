// Package apdu maps observed command headers to command definitions and
// turns each command/response exchange into a typed Command.
//
// Command sets are declared as Tables and merged into an immutable Registry
// at startup. When two tables define the same key, the later one replaces
// the earlier one: an application command set specializes the generic UICC
// set by being merged after it.
package apdu

import (
	"errors"
	"fmt"
	"math/bits"
)

// ErrUnknownInstruction is returned when no definition matches a header.
var ErrUnknownInstruction = errors.New("apdu: unknown instruction")

// Case is the ISO 7816-3 command case.
type Case int

const (
	CaseUnknown Case = iota
	Case1            // no data, no response data
	Case2            // response data only
	Case3            // command data only
	Case4            // both
)

// HasCommandData reports whether the case carries Lc and data.
func (c Case) HasCommandData() bool {
	return c == Case3 || c == Case4
}

// HasResponseData reports whether the case carries Le.
func (c Case) HasResponseData() bool {
	return c == Case2 || c == Case4
}

// ClassMatch selects CLA bytes: cla&Mask == Value.
type ClassMatch struct {
	Mask, Value byte
}

var (
	// AnyClass matches every CLA.
	AnyClass = ClassMatch{}
	// Interindustry matches CLA bytes with bit 8 clear, on any channel.
	Interindustry = ClassMatch{Mask: 0x80, Value: 0x00}
	// Proprietary matches CLA bytes with bit 8 set, on any channel.
	Proprietary = ClassMatch{Mask: 0x80, Value: 0x80}
)

// ExactClass matches one CLA value.
func ExactClass(cla byte) ClassMatch {
	return ClassMatch{Mask: 0xFF, Value: cla}
}

// Matches reports whether cla is selected.
func (m ClassMatch) Matches(cla byte) bool {
	return cla&m.Mask == m.Value
}

func (m ClassMatch) String() string {
	if m.Mask == 0 {
		return "any"
	}
	return fmt.Sprintf("%02X/%02X", m.Value, m.Mask)
}

// ParamMatch selects P1P2 values: (P1<<8|P2)&Mask == Value.
// The zero value matches everything.
type ParamMatch struct {
	Mask, Value uint16
}

// P2Bits matches commands whose P2 has the given bits set.
func P2Bits(b byte) ParamMatch {
	return ParamMatch{Mask: uint16(b), Value: uint16(b)}
}

// Matches reports whether p1, p2 are selected.
func (m ParamMatch) Matches(p1, p2 byte) bool {
	return (uint16(p1)<<8|uint16(p2))&m.Mask == m.Value
}

// Definition describes one command.
type Definition struct {
	Name   string
	Class  ClassMatch
	INS    byte
	Params ParamMatch
	Case   Case

	// Decode builds the payload of an exchange; nil keeps it raw.
	Decode DecodeFunc

	// Process applies the side effects of a decoded command.
	Process ProcessFunc
}

type key struct {
	class  ClassMatch
	ins    byte
	params ParamMatch
}

func (d *Definition) key() key {
	return key{class: d.Class, ins: d.INS, params: d.Params}
}

func (d *Definition) specificity() int {
	return bits.OnesCount8(d.Class.Mask) + bits.OnesCount16(d.Params.Mask)
}

// Table is a named command set.
type Table struct {
	Name        string
	Definitions []*Definition
}

type entry struct {
	def   *Definition
	table string
	order int
}

// Registry resolves command headers to definitions. It is immutable and
// safe for concurrent use.
type Registry struct {
	tables []string
	byINS  map[byte][]entry
}

// Merge builds a Registry from tables, in order.
func Merge(tables ...Table) *Registry {
	r := &Registry{byINS: make(map[byte][]entry)}
	order := 0
	for _, t := range tables {
		r.tables = append(r.tables, t.Name)
		for _, d := range t.Definitions {
			list := r.byINS[d.INS]
			for i, e := range list {
				if e.def.key() == d.key() {
					list = append(list[:i:i], list[i+1:]...)
					break
				}
			}
			r.byINS[d.INS] = append(list, entry{def: d, table: t.Name, order: order})
			order++
		}
	}
	return r
}

// Tables returns the names of the merged tables, in merge order.
func (r *Registry) Tables() []string {
	return append([]string(nil), r.tables...)
}

// Lookup returns the definition for a command header. Among matching
// definitions the one with the most specific class and parameter masks
// wins; ties go to the one merged last.
func (r *Registry) Lookup(cla, ins, p1, p2 byte) (*Definition, error) {
	var best *entry
	list := r.byINS[ins]
	for i := range list {
		e := &list[i]
		if !e.def.Class.Matches(cla) || !e.def.Params.Matches(p1, p2) {
			continue
		}
		if best == nil || e.def.specificity() > best.def.specificity() ||
			(e.def.specificity() == best.def.specificity() && e.order > best.order) {
			best = e
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: CLA %02X INS %02X P1 %02X P2 %02X", ErrUnknownInstruction, cla, ins, p1, p2)
	}
	return best.def, nil
}

// Case returns the ISO 7816-3 case of a header, as declared by its
// definition.
func (r *Registry) Case(cla, ins, p1, p2 byte) (Case, bool) {
	d, err := r.Lookup(cla, ins, p1, p2)
	if err != nil || d.Case == CaseUnknown {
		return CaseUnknown, false
	}
	return d.Case, true
}
