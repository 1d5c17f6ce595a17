package tlv

import (
	"bytes"
	"fmt"
)

// DecodeOption changes how unknown objects are handled while decoding.
type DecodeOption func(*decodeConfig)

type decodeConfig struct {
	allowUnknown bool
}

// AllowUnknown keeps objects whose tag is not registered as raw nodes instead
// of failing with ErrUnknownTag or ErrUnexpectedElement.
func AllowUnknown() DecodeOption {
	return func(c *decodeConfig) { c.allowUnknown = true }
}

func newDecodeConfig(opts []DecodeOption) decodeConfig {
	var cfg decodeConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

func isPadding(b byte) bool {
	return b == 0x00 || b == 0xFF
}

// paddingAt reports whether the BER tag position at the front of b holds padding.
func paddingAt(b []byte) bool {
	if b[0] == 0x00 {
		return true
	}
	return b[0] == 0xFF && allPadding(b)
}

func allPadding(b []byte) bool {
	for _, v := range b {
		if !isPadding(v) {
			return false
		}
	}
	return true
}

// Decode reads data objects from buf until it is exhausted.
//
// Under BER framing decoding stops at the first padding byte in tag position
// ('00', or 'FF' followed only by padding); the unread bytes from there on are
// returned as leftover.
// A top-level or nested tag that is not registered fails with ErrUnknownTag
// unless AllowUnknown is given. Decoding is atomic: on error no nodes are returned.
func (r *Registry) Decode(buf []byte, opts ...DecodeOption) ([]Node, []byte, error) {
	cfg := newDecodeConfig(opts)
	return r.decodeAll(buf, cfg, 0, ErrUnknownTag)
}

// DecodeOne reads a single data object from the front of buf and returns the
// remaining bytes. It is meant for streams of back-to-back objects.
func (r *Registry) DecodeOne(buf []byte, opts ...DecodeOption) (Node, []byte, error) {
	cfg := newDecodeConfig(opts)
	n, used, err := r.decodeElement(buf, cfg, 0, ErrUnknownTag)
	if err != nil {
		return Node{}, nil, err
	}
	return n, buf[used:], nil
}

func (r *Registry) decodeAll(buf []byte, cfg decodeConfig, base int, unknown error) ([]Node, []byte, error) {
	var nodes []Node
	off := 0

	for off < len(buf) {
		if r.framing == BER && paddingAt(buf[off:]) {
			return nodes, buf[off:], nil
		}

		n, used, err := r.decodeElement(buf[off:], cfg, base+off, unknown)
		if err != nil {
			return nil, nil, err
		}
		nodes = append(nodes, n)
		off += used
	}

	return nodes, nil, nil
}

func (r *Registry) decodeElement(buf []byte, cfg decodeConfig, off int, unknown error) (Node, int, error) {
	tag, length, hdr, err := r.framing.readHeader(buf)
	if err != nil {
		return Node{}, 0, fmt.Errorf("%s at offset %d: %w", r.name, off, err)
	}
	if length > len(buf)-hdr {
		return Node{}, 0, fmt.Errorf("%w: %s tag %s at offset %d claims %d bytes, %d remain",
			ErrMalformedLength, r.name, tag, off, length, len(buf)-hdr)
	}

	raw := bytes.Clone(buf[hdr : hdr+length])
	used := hdr + length

	d, ok := r.byTag[tag]
	if !ok {
		if !cfg.allowUnknown {
			return Node{}, 0, fmt.Errorf("%w: %s at offset %d in %s", unknown, tag, off, r.name)
		}
		return Node{Tag: tag, Framing: r.framing, Raw: raw}, used, nil
	}

	n := Node{Tag: tag, Framing: r.framing, Desc: d, Raw: raw}

	if d.IsConstructed() {
		children, rest, err := r.nested[d].decodeAll(raw, cfg, off+hdr, ErrUnknownTag)
		if err != nil {
			return Node{}, 0, err
		}
		if !allPadding(rest) {
			return Node{}, 0, fmt.Errorf("%w: %s at offset %d has %d undecodable trailing bytes",
				ErrMalformedLength, d.Name, off, len(rest))
		}
		n.Children = children
		return n, used, nil
	}

	v, err := decodeValue(d, raw)
	if err != nil {
		return Node{}, 0, fmt.Errorf("%s (%s) at offset %d: %w", d.Name, tag, off, err)
	}
	n.Value = v

	return n, used, nil
}

func decodeValue(d *Descriptor, raw []byte) (any, error) {
	if d.Codec == nil {
		return HexBytes(raw), nil
	}
	return d.Codec.Decode(raw)
}

// Encode serializes nodes back to bytes, each with the framing it carries.
//
// Values are re-encoded through their descriptor's codec, so decoding a
// minimal encoding and encoding the result reproduces the input. Raw nodes
// are written back unchanged.
func Encode(nodes ...Node) ([]byte, error) {
	var out []byte
	for _, n := range nodes {
		var err error
		if out, err = appendNode(out, n); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func appendNode(dst []byte, n Node) ([]byte, error) {
	value, err := n.encodeValue()
	if err != nil {
		return nil, err
	}

	dst, err = n.Framing.appendHeader(dst, n.Tag, len(value))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", n.Name(), err)
	}
	return append(dst, value...), nil
}

func (n Node) encodeValue() ([]byte, error) {
	switch {
	case n.Desc != nil && n.Desc.IsConstructed():
		for _, c := range n.Children {
			if c.Desc != nil && !permits(n.Desc, c.Desc) {
				return nil, fmt.Errorf("%w: %s not permitted in %s", ErrUnexpectedElement, c.Name(), n.Desc.Name)
			}
		}
		return Encode(n.Children...)

	case n.Desc != nil && n.Value != nil:
		if n.Desc.Codec == nil {
			b, ok := n.Value.(HexBytes)
			if !ok {
				return nil, fmt.Errorf("%w: %s wants HexBytes, got %T", ErrInvalidValue, n.Desc.Name, n.Value)
			}
			return b, nil
		}
		b, err := n.Desc.Codec.Encode(n.Value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", n.Desc.Name, err)
		}
		return b, nil

	default:
		return n.Raw, nil
	}
}

func permits(parent, child *Descriptor) bool {
	for _, d := range parent.Nested {
		if d == child {
			return true
		}
	}
	return false
}
