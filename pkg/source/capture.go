package source

import (
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// A capture is a stream of CBOR records, one per event.
const (
	kindReset    = "reset"
	kindExchange = "exchange"
)

type record struct {
	Kind  string `cbor:"kind"`
	ATR   []byte `cbor:"atr,omitempty"`
	CAPDU []byte `cbor:"capdu,omitempty"`
	RAPDU []byte `cbor:"rapdu,omitempty"`
}

// Capture replays a capture written by CaptureWriter.
type Capture struct {
	dec *cbor.Decoder
	n   int
}

// NewCapture returns a Capture reading from r.
func NewCapture(r io.Reader) (*Capture, error) {
	decMode, err := cbor.DecOptions{ExtraReturnErrors: cbor.ExtraDecErrorUnknownField}.DecMode()
	if err != nil {
		return nil, err
	}
	return &Capture{dec: decMode.NewDecoder(r)}, nil
}

// Read returns the next recorded event.
func (c *Capture) Read() (Event, error) {
	var rec record
	if err := c.dec.Decode(&rec); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("%w: record %d: %v", ErrMalformed, c.n, err)
	}
	c.n++

	switch rec.Kind {
	case kindReset:
		return Reset{ATR: rec.ATR}, nil
	case kindExchange:
		ex, err := NewExchange(rec.CAPDU, rec.RAPDU)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", c.n-1, err)
		}
		return ex, nil
	}
	return nil, fmt.Errorf("%w: record %d: unknown kind %q", ErrMalformed, c.n-1, rec.Kind)
}

// CaptureWriter records events.
type CaptureWriter struct {
	enc *cbor.Encoder
}

// NewCaptureWriter returns a CaptureWriter writing to w.
func NewCaptureWriter(w io.Writer) *CaptureWriter {
	return &CaptureWriter{enc: cbor.NewEncoder(w)}
}

// Write appends ev to the capture.
func (w *CaptureWriter) Write(ev Event) error {
	var rec record
	switch ev := ev.(type) {
	case Reset:
		rec = record{Kind: kindReset, ATR: ev.ATR}
	case Exchange:
		capdu, rapdu, err := ev.Bytes()
		if err != nil {
			return err
		}
		rec = record{Kind: kindExchange, CAPDU: capdu, RAPDU: rapdu}
	default:
		return fmt.Errorf("source: cannot record %T", ev)
	}
	return w.enc.Encode(rec)
}

// Tee returns a source that records every event read from src to w. The
// returned source is an io.Closer that closes src when src is one.
func Tee(src Source, w *CaptureWriter) Source {
	return &tee{src: src, w: w}
}

type tee struct {
	src Source
	w   *CaptureWriter
}

func (t *tee) Read() (Event, error) {
	ev, err := t.src.Read()
	if err != nil {
		return nil, err
	}
	if err := t.w.Write(ev); err != nil {
		return nil, fmt.Errorf("record: %w", err)
	}
	return ev, nil
}

// Close closes the recorded source when it can be closed.
func (t *tee) Close() error {
	if c, ok := t.src.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
