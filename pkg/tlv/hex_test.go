package tlv

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHex(t *testing.T) {
	assert.Equal(t, []byte{0x00, 0xA4}, Hex("00", "A4"))
	assert.Equal(t, []byte{0x00, 0xA4, 0x04, 0x00}, Hex("00 A4", " 04\t00 "))
	assert.Equal(t, []byte{0xCA, 0xFE}, Hex("ca", "FE"))
	assert.Equal(t, []byte{}, Hex())

	for _, bad := range []string{"ZZ", "123"} {
		assert.Panics(t, func() { Hex(bad) }, bad)
	}
}

func TestHexBytesJSON(t *testing.T) {
	type doc struct {
		AID HexBytes `json:"aid"`
	}

	out, err := json.Marshal(doc{AID: Hex("A0000000871002")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"aid":"a0000000871002"}`, string(out))

	var in doc
	require.NoError(t, json.Unmarshal([]byte(`{"aid":"A000 0000 87"}`), &in))
	assert.Equal(t, HexBytes(Hex("A000000087")), in.AID)

	err = json.Unmarshal([]byte(`{"aid":"A0X"}`), &in)
	assert.ErrorIs(t, err, ErrInvalidValue)
}
