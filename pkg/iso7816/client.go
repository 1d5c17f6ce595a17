package iso7816

import (
	"errors"
	"fmt"

	"github.com/gregLibert/apdu-trace/pkg/bits"
)

// Transmitter sends a raw command to the card and returns its raw response.
// *scard.Card satisfies it.
type Transmitter interface {
	Transmit(cmd []byte) ([]byte, error)
}

// MaxExchanges bounds the transactions one Send performs.
const MaxExchanges = 16

// ErrTooManyExchanges is returned when the card keeps answering 61XX or 6CXX.
var ErrTooManyExchanges = errors.New("too many exchanges")

// Client sends commands the way a T=0 terminal does: a 61XX answer is
// followed by a GET RESPONSE on the same channel, and a 6CXX answer by the
// same command with Le set to XX.
type Client struct {
	Card Transmitter
}

func NewClient(card Transmitter) *Client {
	return &Client{Card: card}
}

// Send transmits cmd and the follow-up commands the card asks for. The
// trace holds every transaction made, also when an error is returned.
func (c *Client) Send(cmd *CommandAPDU) (Trace, error) {
	var trace Trace
	for next := cmd; next != nil; {
		if len(trace) == MaxExchanges {
			return trace, fmt.Errorf("%s: %w (%d)", cmd.Instruction.Raw, ErrTooManyExchanges, len(trace))
		}
		tx, err := c.transmit(next)
		if err != nil {
			return trace, err
		}
		trace = append(trace, tx)
		next = followUp(tx)
	}
	return trace, nil
}

func (c *Client) transmit(cmd *CommandAPDU) (Transaction, error) {
	raw, err := cmd.Bytes()
	if err != nil {
		return Transaction{}, err
	}
	rsp, err := c.Card.Transmit(raw)
	if err != nil {
		return Transaction{}, fmt.Errorf("transmit %X: %w", raw, err)
	}
	resp, err := ParseResponseAPDU(rsp)
	if err != nil {
		return Transaction{}, err
	}
	return Transaction{Command: cmd, Response: resp}, nil
}

// followUp returns the command the status of tx calls for, if any.
func followUp(tx Transaction) *CommandAPDU {
	sw := tx.Response.Status
	switch sw.SW1() {
	case 0x61:
		cla := tx.Command.Class
		cla.IsChained = false
		cla.Raw = bits.Clear(cla.Raw, 5)
		ins, _ := NewInstruction(INS_GET_RESPONSE)
		return NewCommandAPDU(cla, ins, 0x00, 0x00, nil, shortLe(sw.SW2()))
	case 0x6C:
		retry := *tx.Command
		retry.Ne = shortLe(sw.SW2())
		return &retry
	}
	return nil
}

// shortLe converts a length carried in SW2 to Ne; '00' stands for 256.
func shortLe(sw2 byte) int {
	if sw2 == 0 {
		return MaxShortLe
	}
	return int(sw2)
}
