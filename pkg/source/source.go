// Package source reads the exchanges of a card session: from hex traces,
// CBOR captures, GSMTAP packets or a live card.
package source

import (
	"errors"
	"fmt"

	"github.com/gregLibert/apdu-trace/pkg/iso7816"
	"github.com/gregLibert/apdu-trace/pkg/tlv"
)

// ErrMalformed is returned for input that does not hold a valid event.
var ErrMalformed = errors.New("source: malformed input")

// Event is what a source yields: an Exchange or a Reset.
type Event interface {
	event()
}

// Exchange is one command APDU and the response the card gave to it.
type Exchange struct {
	Tx iso7816.Transaction
}

// Reset is a card reset. ATR is empty when the source did not see it.
type Reset struct {
	ATR tlv.HexBytes
}

func (Exchange) event() {}
func (Reset) event()    {}

func (r Reset) String() string {
	if len(r.ATR) == 0 {
		return "RESET"
	}
	return fmt.Sprintf("RESET ATR %X", []byte(r.ATR))
}

// Source yields events in order. Read returns io.EOF at the end of the
// stream.
type Source interface {
	Read() (Event, error)
}

// NewExchange parses a raw C-APDU and R-APDU.
func NewExchange(capdu, rapdu []byte) (Exchange, error) {
	c, err := iso7816.ParseCommandAPDU(capdu)
	if err != nil {
		return Exchange{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	r, err := iso7816.ParseResponseAPDU(rapdu)
	if err != nil {
		return Exchange{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return Exchange{Tx: iso7816.Transaction{Command: c, Response: r}}, nil
}

// Bytes returns the raw C-APDU and R-APDU.
func (e Exchange) Bytes() (capdu, rapdu []byte, err error) {
	capdu, rapdu, err = e.Tx.Bytes()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return capdu, rapdu, nil
}
