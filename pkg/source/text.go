package source

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/gregLibert/apdu-trace/pkg/iso7816"
)

// Text reads a line oriented hex trace:
//
//	# comment
//	RESET 3B9F96801F878031E073FE211B674A4C753034054BA9
//	00A40004023F00 612F
//	00C000002F 622D...9000
//
// A line holds a C-APDU and its R-APDU, or RESET with an optional ATR.
type Text struct {
	sc   *bufio.Scanner
	line int
}

// NewText returns a Text source reading from r.
func NewText(r io.Reader) *Text {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 2*iso7816.MaxAPDUBufferSize)
	return &Text{sc: sc}
}

// next returns the fields of the next line that is not blank or a comment.
func (t *Text) next() ([]string, error) {
	for t.sc.Scan() {
		t.line++
		line := t.sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		if f := strings.Fields(line); len(f) > 0 {
			return f, nil
		}
	}
	if err := t.sc.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

// Read returns the event of the next line.
func (t *Text) Read() (Event, error) {
	f, err := t.next()
	if err != nil {
		return nil, err
	}

	if strings.EqualFold(f[0], "RESET") {
		atr, err := hex.DecodeString(strings.Join(f[1:], ""))
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: ATR: %v", ErrMalformed, t.line, err)
		}
		return Reset{ATR: atr}, nil
	}

	if len(f) != 2 {
		return nil, fmt.Errorf("%w: line %d: want <c-apdu> <r-apdu>, got %d fields", ErrMalformed, t.line, len(f))
	}
	capdu, err := hex.DecodeString(f[0])
	if err != nil {
		return nil, fmt.Errorf("%w: line %d: %v", ErrMalformed, t.line, err)
	}
	rapdu, err := hex.DecodeString(f[1])
	if err != nil {
		return nil, fmt.Errorf("%w: line %d: %v", ErrMalformed, t.line, err)
	}
	ex, err := NewExchange(capdu, rapdu)
	if err != nil {
		return nil, fmt.Errorf("line %d: %w", t.line, err)
	}
	return ex, nil
}

// ReadScript reads one hex C-APDU per line, with the comment rules of Text.
func ReadScript(r io.Reader) ([]*iso7816.CommandAPDU, error) {
	t := NewText(r)
	var out []*iso7816.CommandAPDU
	for {
		f, err := t.next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		raw, err := hex.DecodeString(strings.Join(f, ""))
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformed, t.line, err)
		}
		cmd, err := iso7816.ParseCommandAPDU(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrMalformed, t.line, err)
		}
		out = append(out, cmd)
	}
}
