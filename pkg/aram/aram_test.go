package aram

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gregLibert/apdu-trace/pkg/apdu"
	"github.com/gregLibert/apdu-trace/pkg/fs"
	"github.com/gregLibert/apdu-trace/pkg/gp"
	"github.com/gregLibert/apdu-trace/pkg/iso7816"
	"github.com/gregLibert/apdu-trace/pkg/session"
	"github.com/gregLibert/apdu-trace/pkg/tlv"
	"github.com/gregLibert/apdu-trace/pkg/uicc"
)

var registry = apdu.Merge(uicc.Commands(), gp.Commands())

const devAppID = "0102030405060708090A0B0C0D0E0F1011121314"

func exchange(t *testing.T, capdu, rapdu string) iso7816.Transaction {
	t.Helper()
	c, err := iso7816.ParseCommandAPDU(tlv.Hex(capdu))
	require.NoError(t, err)
	r, err := iso7816.ParseResponseAPDU(tlv.Hex(rapdu))
	require.NoError(t, err)
	return iso7816.Transaction{Command: c, Response: r}
}

// selected returns a session with the ARA-M selected on channel 1.
func selected(t *testing.T) *session.State {
	t.Helper()
	tree, err := fs.NewTree(uicc.MF(), Application())
	require.NoError(t, err)
	s := session.New(tree, nil)

	cmd, err := registry.Decode(exchange(t, "01A4040009A00000015141434C00", "9000"), s)
	require.NoError(t, err)
	require.NoError(t, cmd.Process(s))
	require.Equal(t, "MF/ADF.ARA-M", s.Channel(1).PathString())
	return s
}

func TestApduArDO(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want ApduRule
		json string
	}{
		{
			name: "always",
			raw:  "01",
			want: ApduRule{GenericAccessRule: "always"},
			json: `{"generic_access_rule": "always"}`,
		},
		{
			name: "never",
			raw:  "00",
			want: ApduRule{GenericAccessRule: "never"},
			json: `{"generic_access_rule": "never"}`,
		},
		{
			name: "two filters",
			raw:  "80CA0000 FFFF0000 00A40400 FFFFFF00",
			want: ApduRule{Filters: []ApduFilter{
				{Header: tlv.Hex("80CA0000"), Mask: tlv.Hex("FFFF0000")},
				{Header: tlv.Hex("00A40400"), Mask: tlv.Hex("FFFFFF00")},
			}},
			json: `{"apdu_filter": [{"header": "80ca0000", "mask": "ffff0000"},
				{"header": "00a40400", "mask": "ffffff00"}]}`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			v, err := apduRule.Decode(tlv.Hex(tc.raw))
			require.NoError(t, err)
			if diff := cmp.Diff(tc.want, v); diff != "" {
				t.Errorf("Mismatch (-want +got):\n%s", diff)
			}

			js, err := json.Marshal(v)
			require.NoError(t, err)
			assert.JSONEq(t, tc.json, string(js))

			raw, err := apduRule.Encode(v)
			require.NoError(t, err)
			assert.Equal(t, tlv.Hex(tc.raw), raw)
		})
	}
}

func TestApduArDOInvalid(t *testing.T) {
	for _, raw := range []string{"02", "", "0102", "80CA0000FFFF00"} {
		_, err := apduRule.Decode(tlv.Hex(raw))
		assert.ErrorIs(t, err, tlv.ErrInvalidValue, "value %q", raw)
	}

	_, err := apduRule.Encode(ApduRule{GenericAccessRule: "sometimes"})
	assert.ErrorIs(t, err, tlv.ErrInvalidValue)
	_, err = apduRule.Encode(ApduRule{Filters: []ApduFilter{{Header: tlv.Hex("80CA"), Mask: tlv.Hex("FFFF")}}})
	assert.ErrorIs(t, err, tlv.ErrInvalidValue)
}

func TestGetAll(t *testing.T) {
	s := selected(t)

	cmd, err := registry.Decode(exchange(t, "81CAFF4000",
		"FF4029 E227 E116 C114"+devAppID+" E30D D00101 DB080000000000000001 9000"), s)
	require.NoError(t, err)
	assert.Equal(t, "MF/ADF.ARA-M", cmd.PathString)

	p, ok := cmd.Payload.(gp.GetData)
	require.True(t, ok)
	require.Len(t, p.Response, 1)
	assert.Equal(t, "response_all_ref_ar_do", p.Response[0].Name())

	refAr, ok := p.Response[0].Child("ref_ar_do")
	require.True(t, ok)
	ref, ok := refAr.Child("ref_do")
	require.True(t, ok)
	id, ok := ref.Child("dev_app_id_ref_do")
	require.True(t, ok)
	assert.Equal(t, tlv.HexBytes(tlv.Hex(devAppID)), id.Value)

	ar, ok := refAr.Child("ar_do")
	require.True(t, ok)
	rule, ok := ar.Child("apdu_ar_do")
	require.True(t, ok)
	assert.Equal(t, ApduRule{GenericAccessRule: "always"}, rule.Value)

	assert.True(t, strings.Contains(cmd.Describe(), "apdu_ar_do"))
}

func TestGetAllInvalidRule(t *testing.T) {
	s := selected(t)

	cmd, err := registry.Decode(exchange(t, "81CAFF4000",
		"FF4009 E207 E100 E303 D00102 9000"), s)
	assert.ErrorIs(t, err, tlv.ErrInvalidValue)
	assert.IsType(t, apdu.Raw{}, cmd.Payload)
}

func TestGetConfig(t *testing.T) {
	s := selected(t)

	cmd, err := registry.Decode(exchange(t, "81CADF2107 E405E603000001 00",
		"DF2107 E505E603010000 9000"), s)
	require.NoError(t, err)

	p, ok := cmd.Payload.(gp.GetData)
	require.True(t, ok)
	assert.Equal(t, "DF21", p.Tag)
	require.Len(t, p.Command, 1)
	assert.Equal(t, "device_config_do", p.Command[0].Name())

	cfg, ok := p.Response[0].Child("aram_config_do")
	require.True(t, ok)
	v, ok := cfg.Child("device_interface_version_do")
	require.True(t, ok)
	assert.Equal(t, Version{Major: 1}, v.Value)
}

func TestStoreRefArDO(t *testing.T) {
	s := selected(t)

	cmd, err := registry.Decode(exchange(t, "81E2900023 F021 E21F E118 C000 C114"+devAppID+" E303 D00101", "9000"), s)
	require.NoError(t, err)

	p, ok := cmd.Payload.(gp.StoreData)
	require.True(t, ok)
	assert.Equal(t, "ber_tlv", p.Params.Structure)
	assert.True(t, p.Params.LastBlock)
	require.Len(t, p.Command, 1)
	assert.Equal(t, "command_store_ref_ar_do", p.Command[0].Name())

	raw, err := StoreCommand.Encode(p.Command)
	require.NoError(t, err)
	assert.Equal(t, tlv.Hex("F021 E21F E118 C000 C114"+devAppID+" E303 D00101"), raw)
}

func TestDeleteAll(t *testing.T) {
	s := selected(t)

	cmd, err := registry.Decode(exchange(t, "81E2900002 F100", "9000"), s)
	require.NoError(t, err)
	p, ok := cmd.Payload.(gp.StoreData)
	require.True(t, ok)
	assert.Equal(t, []string{"command_delete"}, p.Command.Names())
	assert.Empty(t, p.Command[0].Children)
}

func TestStatusWords(t *testing.T) {
	desc, ok := Application().DescribeStatus(0x6A89)
	require.True(t, ok)
	assert.Equal(t, "Conflicting access rule already exists in the Secure Element", desc)
}
