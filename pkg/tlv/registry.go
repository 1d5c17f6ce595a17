package tlv

import "fmt"

// Registry maps the tags permitted at one nesting level to their descriptors,
// and holds the registries of every constructed descriptor below that level.
//
// A Registry is built once, validated as a whole, and never modified
// afterwards; it is safe for concurrent use.
type Registry struct {
	name    string
	framing Framing
	alts    []*Descriptor
	byTag   map[Tag]*Descriptor

	// nested is shared by all registries built in the same NewRegistry call.
	nested map[*Descriptor]*Registry
}

// NewRegistry validates alts and every descriptor reachable from them.
//
// It fails with ErrDescriptorConflict when two descriptors of one level share
// a tag, when a level mixes BER and DGI framing, when a descriptor is both
// primitive and constructed, or when a descriptor nests one of its ancestors.
// It fails with ErrMalformedTag when a tag cannot be encoded in its framing.
func NewRegistry(name string, alts ...*Descriptor) (*Registry, error) {
	b := &registryBuilder{
		compiled: make(map[*Descriptor]*Registry),
		visiting: make(map[*Descriptor]bool),
	}
	return b.build(name, alts)
}

// MustRegistry is like NewRegistry but panics on error.
// It is meant for package-level declarations evaluated at startup.
func MustRegistry(name string, alts ...*Descriptor) *Registry {
	r, err := NewRegistry(name, alts...)
	if err != nil {
		panic(err)
	}
	return r
}

type registryBuilder struct {
	compiled map[*Descriptor]*Registry
	visiting map[*Descriptor]bool
}

func (b *registryBuilder) build(name string, alts []*Descriptor) (*Registry, error) {
	r := &Registry{
		name:   name,
		alts:   append([]*Descriptor(nil), alts...),
		byTag:  make(map[Tag]*Descriptor, len(alts)),
		nested: b.compiled,
	}

	for i, d := range alts {
		if d == nil {
			return nil, fmt.Errorf("%w: %s: nil descriptor at position %d", ErrDescriptorConflict, name, i)
		}
		if i == 0 {
			r.framing = d.Framing
		} else if d.Framing != r.framing {
			return nil, fmt.Errorf("%w: %s: %s mixes %s with %s siblings",
				ErrDescriptorConflict, name, d, d.Framing, r.framing)
		}
		if !d.Framing.validTag(d.Tag) {
			return nil, fmt.Errorf("%w: %s: %s", ErrMalformedTag, name, d)
		}
		if d.Codec != nil && d.IsConstructed() {
			return nil, fmt.Errorf("%w: %s: %s is both primitive and constructed", ErrDescriptorConflict, name, d)
		}
		if prev, ok := r.byTag[d.Tag]; ok {
			return nil, fmt.Errorf("%w: %s: %s and %s share tag %s",
				ErrDescriptorConflict, name, prev.Name, d.Name, d.Tag)
		}
		r.byTag[d.Tag] = d
	}

	for _, d := range alts {
		if !d.IsConstructed() {
			continue
		}
		if _, done := b.compiled[d]; done {
			continue
		}
		if b.visiting[d] {
			return nil, fmt.Errorf("%w: %s: %s nests itself", ErrDescriptorConflict, name, d)
		}

		b.visiting[d] = true
		child, err := b.build(d.Name, d.Nested)
		b.visiting[d] = false
		if err != nil {
			return nil, err
		}
		b.compiled[d] = child
	}

	return r, nil
}

// Name returns the name the registry was built with.
func (r *Registry) Name() string {
	return r.name
}

// Framing returns the framing shared by all descriptors of this level.
func (r *Registry) Framing() Framing {
	return r.framing
}

// Lookup returns the descriptor registered for tag at this level.
func (r *Registry) Lookup(tag Tag) (*Descriptor, bool) {
	d, ok := r.byTag[tag]
	return d, ok
}

// Alternatives returns the descriptors of this level in declaration order.
func (r *Registry) Alternatives() []*Descriptor {
	return append([]*Descriptor(nil), r.alts...)
}

// Nested returns the registry of the objects permitted inside d.
func (r *Registry) Nested(d *Descriptor) (*Registry, bool) {
	n, ok := r.nested[d]
	return n, ok
}
