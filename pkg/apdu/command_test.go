package apdu

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gregLibert/apdu-trace/pkg/fs"
	"github.com/gregLibert/apdu-trace/pkg/iso7816"
	"github.com/gregLibert/apdu-trace/pkg/session"
	"github.com/gregLibert/apdu-trace/pkg/tlv"
)

var (
	testAID       = tlv.Primitive("aid", 0x4F, tlv.Bytes)
	testTemplate  = tlv.Constructed("template", 0x61, testAID)
	testTemplates = tlv.MustCollection("templates", testTemplate)
)

func exchange(t *testing.T, capdu, rapdu string) iso7816.Transaction {
	t.Helper()
	c, err := iso7816.ParseCommandAPDU(tlv.Hex(capdu))
	require.NoError(t, err)
	r, err := iso7816.ParseResponseAPDU(tlv.Hex(rapdu))
	require.NoError(t, err)
	return iso7816.Transaction{Command: c, Response: r}
}

func testState(t *testing.T) *session.State {
	t.Helper()
	tree, err := fs.NewTree(fs.MF(fs.DF("DF.TELECOM", 0x7F11)))
	require.NoError(t, err)
	return session.New(tree, nil)
}

func selectByFID(c *Command, s *session.State) error {
	_, err := s.Select(c.Channel, session.Target{
		Method: iso7816.SelectionMethod(c.Header().P1),
		Data:   c.Data(),
	})
	return err
}

func testRegistry() *Registry {
	return Merge(Table{Name: "test", Definitions: []*Definition{
		{Name: "SELECT", Class: Interindustry, INS: 0xA4, Case: Case4, Process: selectByFID},
		{Name: "READ", Class: Interindustry, INS: 0xB2, Case: Case2, Decode: DecodeTLV(nil, testTemplates)},
		{Name: "STORE", Class: Proprietary, INS: 0xE2, Case: Case3, Decode: DecodeTLV(testTemplates, nil)},
		{Name: "FAILS", Class: Interindustry, INS: 0x10, Decode: func(*Command) (Payload, error) {
			return nil, errors.New("boom")
		}},
	}})
}

func TestDecode_ContextAndProcess(t *testing.T) {
	r := testRegistry()
	s := testState(t)

	cmd, err := r.Decode(exchange(t, "01A40004027F11", "9000"), s)
	require.NoError(t, err)
	assert.Equal(t, "SELECT", cmd.Name)
	assert.Equal(t, uint8(1), cmd.Channel)
	assert.Empty(t, cmd.Path)
	require.NoError(t, cmd.Process(s))

	// The path is captured when the next command is decoded.
	cmd, err = r.Decode(exchange(t, "01B2010400", "61034F01AA9000"), s)
	require.NoError(t, err)
	assert.Equal(t, []fs.FID{0x7F11}, cmd.Path)
	assert.Equal(t, "MF/DF.TELECOM", cmd.PathString)

	p, ok := cmd.Payload.(TLV)
	require.True(t, ok)
	require.Len(t, p.Response, 1)
	aid, ok := p.Response[0].Child("aid")
	require.True(t, ok)
	assert.Equal(t, tlv.HexBytes{0xAA}, aid.Value)

	// Channel 0 was never touched.
	assert.Empty(t, s.Channel(0).Path())
}

func TestDecode_UnknownInstruction(t *testing.T) {
	r := testRegistry()
	s := testState(t)

	cmd, err := r.Decode(exchange(t, "00EE000000", "6D00"), s)
	assert.ErrorIs(t, err, ErrUnknownInstruction)
	require.NotNil(t, cmd)
	assert.Nil(t, cmd.Def)
	assert.Equal(t, "UNKNOWN", cmd.Name)
	assert.Equal(t, Raw{}, cmd.Payload)
	assert.NoError(t, cmd.Process(s))

	// The next exchange decodes normally.
	cmd, err = r.Decode(exchange(t, "80E20000036101AA", "9000"), s)
	assert.ErrorIs(t, err, tlv.ErrMalformedLength)
	assert.Equal(t, "STORE", cmd.Name)

	cmd, err = r.Decode(exchange(t, "80E20000026100", "9000"), s)
	require.NoError(t, err)
	p := cmd.Payload.(TLV)
	assert.Equal(t, []string{"template"}, p.Command.Names())
}

func TestDecode_Atomic(t *testing.T) {
	r := testRegistry()
	s := testState(t)

	cmd, err := r.Decode(exchange(t, "0010000001AB", "9000"), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FAILS: boom")
	assert.Equal(t, Raw{Data: tlv.HexBytes{0xAB}}, cmd.Payload)

	cmd, err = r.Decode(exchange(t, "00B2010400", "61054F01AA9000"), s)
	assert.ErrorIs(t, err, tlv.ErrMalformedLength)
	assert.Equal(t, Raw{Response: tlv.HexBytes{0x61, 0x05, 0x4F, 0x01, 0xAA}}, cmd.Payload)
}

func TestDecode_ErrorResponseNotDecoded(t *testing.T) {
	r := testRegistry()
	cmd, err := r.Decode(exchange(t, "00B2010400", "6A83"), testState(t))
	require.NoError(t, err)
	assert.Equal(t, TLV{}, cmd.Payload)
	assert.False(t, cmd.Succeeded())
	assert.Equal(t, iso7816.SW_ERR_RECORD_NOT_FOUND, cmd.SW())
}
