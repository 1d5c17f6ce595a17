package tlv

import "errors"

// Structural errors reported by the codec. Callers match them with errors.Is;
// the returned errors wrap them with the offending tag and offset.
var (
	// ErrMalformedTag is returned when a BER tag is truncated or wider than 4 bytes.
	ErrMalformedTag = errors.New("tlv: malformed tag")

	// ErrMalformedLength is returned for truncated, indefinite or over-long length fields,
	// and for lengths that claim more bytes than the buffer holds.
	ErrMalformedLength = errors.New("tlv: malformed length")

	// ErrUnknownTag is returned when a nested element carries a tag absent from its registry.
	ErrUnknownTag = errors.New("tlv: unknown tag")

	// ErrUnexpectedElement is returned when a top-level element matches none of the
	// alternatives of a collection.
	ErrUnexpectedElement = errors.New("tlv: unexpected element")

	// ErrDescriptorConflict is returned when a registry or collection is built from
	// descriptors that cannot coexist (shared tag, mixed framing, cycle).
	ErrDescriptorConflict = errors.New("tlv: descriptor conflict")

	// ErrValueTooLong is returned when a value cannot be represented in the target framing.
	ErrValueTooLong = errors.New("tlv: value too long")

	// ErrInvalidValue is returned when a value codec rejects the bytes or the Go value it is given.
	ErrInvalidValue = errors.New("tlv: invalid value")
)
