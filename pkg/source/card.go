package source

import (
	"io"

	"github.com/gregLibert/apdu-trace/pkg/iso7816"
	"github.com/gregLibert/apdu-trace/pkg/tlv"
)

// Card drives a live card with a script of commands. It first yields a
// reset with the card's ATR, then every atomic transaction the client
// performs, including the GET RESPONSE and Le retries of 61XX and 6CXX.
type Card struct {
	client  *iso7816.Client
	atr     tlv.HexBytes
	script  []*iso7816.CommandAPDU
	pending iso7816.Trace
	err     error
	started bool
}

// NewCard returns a Card sending script through t.
func NewCard(t iso7816.Transmitter, atr []byte, script []*iso7816.CommandAPDU) *Card {
	return &Card{
		client: iso7816.NewClient(t),
		atr:    atr,
		script: script,
	}
}

// Read returns the next event. The script is sent lazily, one logical
// command at a time. The transactions a failing command made are returned
// before its error, which then ends the source.
func (c *Card) Read() (Event, error) {
	if !c.started {
		c.started = true
		return Reset{ATR: c.atr}, nil
	}

	for len(c.pending) == 0 {
		if c.err != nil {
			return nil, c.err
		}
		if len(c.script) == 0 {
			return nil, io.EOF
		}
		cmd := c.script[0]
		c.script = c.script[1:]
		c.pending, c.err = c.client.Send(cmd)
	}

	tx := c.pending[0]
	c.pending = c.pending[1:]
	return Exchange{Tx: tx}, nil
}
