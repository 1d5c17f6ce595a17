package tlv

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Node is one decoded data object.
//
// For a primitive descriptor Value holds the Go value produced by its codec;
// for a constructed descriptor Children holds the nested objects in wire order.
// A node without descriptor is an unknown object kept as raw bytes.
type Node struct {
	Tag      Tag
	Framing  Framing
	Desc     *Descriptor
	Raw      []byte
	Value    any
	Children []Node
}

// New returns a primitive node of kind d holding v.
func New(d *Descriptor, v any) Node {
	return Node{Tag: d.Tag, Framing: d.Framing, Desc: d, Value: v}
}

// NewConstructed returns a constructed node of kind d holding children.
func NewConstructed(d *Descriptor, children ...Node) Node {
	return Node{Tag: d.Tag, Framing: d.Framing, Desc: d, Children: children}
}

// NewRaw returns a node for an object with no descriptor.
func NewRaw(tag Tag, framing Framing, raw []byte) Node {
	return Node{Tag: tag, Framing: framing, Raw: bytes.Clone(raw)}
}

// Name returns the descriptor name, or "unknown_<tag>" for raw nodes.
func (n Node) Name() string {
	if n.Desc == nil {
		return "unknown_" + n.Tag.String()
	}
	return n.Desc.Name
}

// IsKnown reports whether the node was matched to a descriptor.
func (n Node) IsKnown() bool {
	return n.Desc != nil
}

// Child returns the first direct child named name.
func (n Node) Child(name string) (Node, bool) {
	for _, c := range n.Children {
		if c.Name() == name {
			return c, true
		}
	}
	return Node{}, false
}

// All returns every direct child named name, in wire order.
func (n Node) All(name string) []Node {
	var out []Node
	for _, c := range n.Children {
		if c.Name() == name {
			out = append(out, c)
		}
	}
	return out
}

// As returns the decoded value of n as a T.
func As[T any](n Node) (T, bool) {
	v, ok := n.Value.(T)
	return v, ok
}

// MarshalJSON renders the node as {"name": value} or {"name": [children...]}.
func (n Node) MarshalJSON() ([]byte, error) {
	var inner any
	switch {
	case n.Desc != nil && n.Desc.IsConstructed():
		children := n.Children
		if children == nil {
			children = []Node{}
		}
		inner = children
	case n.Desc != nil && n.Value != nil:
		inner = n.Value
	default:
		inner = HexBytes(n.Raw)
	}
	return json.Marshal(map[string]any{n.Name(): inner})
}

func (n Node) String() string {
	out, err := n.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("%s: %x", n.Name(), n.Raw)
	}
	return string(out)
}
