package tlv

import (
	"errors"
	"fmt"
)

// Collection decodes a byte string as a sequence of top-level data objects,
// each matching one of a fixed set of alternatives.
//
// It is the shape of a command's data field or a response's data: a GET DATA
// response, a STORE DATA payload, a record of EF.DIR.
type Collection struct {
	reg *Registry
}

// NewCollection validates alts as a Registry and wraps it.
func NewCollection(name string, alts ...*Descriptor) (*Collection, error) {
	reg, err := NewRegistry(name, alts...)
	if err != nil {
		return nil, err
	}
	return &Collection{reg: reg}, nil
}

// MustCollection is like NewCollection but panics on error.
func MustCollection(name string, alts ...*Descriptor) *Collection {
	c, err := NewCollection(name, alts...)
	if err != nil {
		panic(err)
	}
	return c
}

// Name returns the collection name.
func (c *Collection) Name() string {
	return c.reg.name
}

// Registry returns the top-level registry of the collection.
func (c *Collection) Registry() *Registry {
	return c.reg
}

// AsCodec adapts c to a Codec whose values are Elements.
func (c *Collection) AsCodec() Codec {
	return Func(func(b []byte) (Elements, error) { return c.Decode(b) }, c.Encode)
}

// Decode decodes buf in full. A top-level object matching no alternative fails
// with ErrUnexpectedElement; nested failures keep their own error kinds.
// Trailing padding is accepted and dropped.
func (c *Collection) Decode(buf []byte, opts ...DecodeOption) (Elements, error) {
	cfg := newDecodeConfig(opts)

	nodes, rest, err := c.reg.decodeAll(buf, cfg, 0, ErrUnexpectedElement)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.reg.name, err)
	}
	if !allPadding(rest) {
		return nil, fmt.Errorf("%s: %w: %d trailing bytes after padding",
			c.reg.name, ErrMalformedLength, len(rest))
	}

	return Elements(nodes), nil
}

// Encode serializes elements, rejecting objects that are not alternatives of c.
func (c *Collection) Encode(elems Elements) ([]byte, error) {
	for _, n := range elems {
		if n.Desc == nil {
			continue
		}
		if d, ok := c.reg.byTag[n.Tag]; !ok || d != n.Desc {
			return nil, fmt.Errorf("%s: %w: %s", c.reg.name, ErrUnexpectedElement, n.Name())
		}
	}
	return Encode(elems...)
}

// Elements is a decoded collection in wire order.
type Elements []Node

// First returns the first element named name.
func (e Elements) First(name string) (Node, bool) {
	for _, n := range e {
		if n.Name() == name {
			return n, true
		}
	}
	return Node{}, false
}

// All returns every element named name.
func (e Elements) All(name string) []Node {
	var out []Node
	for _, n := range e {
		if n.Name() == name {
			out = append(out, n)
		}
	}
	return out
}

// Names lists element names in wire order.
func (e Elements) Names() []string {
	out := make([]string, len(e))
	for i, n := range e {
		out[i] = n.Name()
	}
	return out
}

// IsStructural reports whether err comes from malformed input rather than
// from an unknown or unexpected object.
func IsStructural(err error) bool {
	return errors.Is(err, ErrMalformedTag) || errors.Is(err, ErrMalformedLength) || errors.Is(err, ErrValueTooLong)
}
