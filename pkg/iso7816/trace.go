package iso7816

import (
	"errors"
	"fmt"
)

// Transaction is one command and the response the card gave to it.
type Transaction struct {
	Command  *CommandAPDU
	Response *ResponseAPDU
}

// IsSuccess reports whether the response carries a normal ending. A
// transaction without response did not succeed.
func (t Transaction) IsSuccess() bool {
	return t.Response != nil && t.Response.Status.IsSuccess()
}

// Bytes encodes both APDUs of the transaction.
func (t Transaction) Bytes() (capdu, rapdu []byte, err error) {
	if t.Command == nil || t.Response == nil {
		return nil, nil, errors.New("incomplete transaction")
	}
	capdu, err = t.Command.Bytes()
	if err != nil {
		return nil, nil, err
	}
	return capdu, t.Response.Bytes(), nil
}

func (t Transaction) String() string {
	capdu, rapdu, err := t.Bytes()
	if err != nil {
		return fmt.Sprintf("<%v>", err)
	}
	return fmt.Sprintf("%X -> %X", capdu, rapdu)
}

// Trace is the run of transactions a single logical command took: the
// command itself, then the GET RESPONSE or Le retry the card asked for with
// 61XX or 6CXX.
type Trace []Transaction

// Last returns the final transaction, nil for an empty trace.
func (t Trace) Last() *Transaction {
	if len(t) == 0 {
		return nil
	}
	return &t[len(t)-1]
}

// IsSuccess tells whether the final transaction succeeded.
func (t Trace) IsSuccess() bool {
	last := t.Last()
	return last != nil && last.IsSuccess()
}

// Data returns the response data of the final transaction.
func (t Trace) Data() []byte {
	if last := t.Last(); last != nil && last.Response != nil {
		return last.Response.Data
	}
	return nil
}
