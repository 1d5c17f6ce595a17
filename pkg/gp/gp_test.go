package gp

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gregLibert/apdu-trace/pkg/apdu"
	"github.com/gregLibert/apdu-trace/pkg/fs"
	"github.com/gregLibert/apdu-trace/pkg/iso7816"
	"github.com/gregLibert/apdu-trace/pkg/session"
	"github.com/gregLibert/apdu-trace/pkg/tlv"
	"github.com/gregLibert/apdu-trace/pkg/uicc"
)

var registry = apdu.Merge(uicc.Commands(), Commands())

func exchange(t *testing.T, capdu, rapdu string) iso7816.Transaction {
	t.Helper()
	c, err := iso7816.ParseCommandAPDU(tlv.Hex(capdu))
	require.NoError(t, err)
	r, err := iso7816.ParseResponseAPDU(tlv.Hex(rapdu))
	require.NoError(t, err)
	return iso7816.Transaction{Command: c, Response: r}
}

func newSession(t *testing.T) *session.State {
	t.Helper()
	tree, err := fs.NewTree(uicc.MF(), ISD())
	require.NoError(t, err)
	return session.New(tree, nil)
}

func run(t *testing.T, s *session.State, capdu, rapdu string) *apdu.Command {
	t.Helper()
	cmd, err := registry.Decode(exchange(t, capdu, rapdu), s)
	require.NoError(t, err)
	require.NoError(t, cmd.Process(s))
	return cmd
}

func selectISD(t *testing.T, s *session.State) {
	t.Helper()
	cmd := run(t, s, "00A4040008A000000003000000", "6F108408A000000003000000A5049F6501FF 9000")
	p, ok := cmd.Payload.(uicc.Select)
	require.True(t, ok)
	require.Len(t, p.FCI, 1)
	assert.Equal(t, "fci_template", p.FCI[0].Name())
	assert.Equal(t, "MF/ADF.ISD", s.Channel(0).PathString())
}

func TestKeyInformationData(t *testing.T) {
	coll := tlv.MustCollection("key_information_data", KeyInformationData)
	raw := tlv.Hex("c00401708010")

	elems, err := coll.Decode(raw)
	require.NoError(t, err)
	require.Len(t, elems, 1)

	got, ok := tlv.As[KeyInfo](elems[0])
	require.True(t, ok)
	want := KeyInfo{
		KeyIdentifier:    1,
		KeyVersionNumber: 112,
		KeyTypes:         []KeyTypeLength{{Length: 16, Type: KeyTypeDES}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Mismatch (-want +got):\n%s", diff)
	}

	js, err := json.Marshal(elems[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"key_information_data": {"key_identifier": 1, "key_version_number": 112,
		"key_types": [{"length": 16, "type": "des"}]}}`, string(js))

	out, err := coll.Encode(elems)
	require.NoError(t, err)
	assert.Equal(t, raw, out)
}

func TestKeyInformationDataInvalid(t *testing.T) {
	_, err := tlv.MustCollection("key_information_data", KeyInformationData).Decode(tlv.Hex("c003017080"))
	assert.ErrorIs(t, err, tlv.ErrInvalidValue)
}

func TestGetData(t *testing.T) {
	tests := []struct {
		name  string
		capdu string
		rapdu string
		tag   string
		first string
	}{
		{"key information", "80CA00E000", "E006C00401708010 9000", "00E0", "key_information"},
		{"list of applications", "80CA2F0000", "61094F07A0000000871002 9000", "2F00", "application_template"},
		{"extended card resources", "80CAFF2100", "FF210C8101058203010000830200FF 9000", "FF21", "extended_card_resources_info"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := newSession(t)
			selectISD(t, s)

			cmd := run(t, s, tc.capdu, tc.rapdu)
			p, ok := cmd.Payload.(GetData)
			require.True(t, ok)
			assert.Equal(t, tc.tag, p.Tag)
			require.NotEmpty(t, p.Response)
			assert.Equal(t, tc.first, p.Response[0].Name())
		})
	}
}

func TestCardData(t *testing.T) {
	elems, err := DataCollection.Decode(tlv.Hex(
		"6619 7317 06072A864886FC6B01 600C 060A2A864886FC6B02020201"))
	require.NoError(t, err)

	crd, ok := elems[0].Child("card_recognition_data")
	require.True(t, ok)
	oid, ok := crd.Child("object_identifier")
	require.True(t, ok)
	assert.Equal(t, "1.2.840.114283.1", oid.Value)

	mgmt, ok := crd.Child("card_management_type_and_version")
	require.True(t, ok)
	require.Len(t, mgmt.Children, 1)
	assert.Equal(t, "1.2.840.114283.2.2.2.1", mgmt.Children[0].Value)
}

func TestGetStatus(t *testing.T) {
	s := newSession(t)
	selectISD(t, s)

	cmd := run(t, s, "80F24002024F0000",
		"E3104F07A00000008710029F700107C50100 E30B4F05A0000001519F70010F 6310")
	assert.Equal(t, "GET STATUS", cmd.Name)

	p, ok := cmd.Payload.(GetStatus)
	require.True(t, ok)
	assert.Equal(t, "applications", p.Subset)
	assert.True(t, p.More)
	require.Len(t, p.Entries, 2)
	assert.Equal(t, []string{"gp_registry_related_data", "gp_registry_related_data"}, p.Entries.Names())

	lc, ok := p.Entries[0].Child("life_cycle_state")
	require.True(t, ok)
	assert.Equal(t, LifeCycleSelectable, lc.Value)

	priv, ok := p.Entries[0].Child("privileges")
	require.True(t, ok)
	assert.Equal(t, Flags{Raw: tlv.HexBytes{0x00}, Set: []string{}}, priv.Value)

	lc, ok = p.Entries[1].Child("life_cycle_state")
	require.True(t, ok)
	assert.Equal(t, "personalized", lc.Value.(LifeCycle).String())
}

func TestGetStatusDoesNotShadowStatus(t *testing.T) {
	def, err := registry.Lookup(0x80, 0xF2, 0x40, 0x02)
	require.NoError(t, err)
	assert.Equal(t, "GET STATUS", def.Name)

	def, err = registry.Lookup(0x80, 0xF2, 0x00, 0x0C)
	require.NoError(t, err)
	assert.Equal(t, "STATUS", def.Name)
}

func TestParseStoreDataP1(t *testing.T) {
	tests := []struct {
		p1   byte
		want StoreDataParams
	}{
		{0x90, StoreDataParams{LastBlock: true, Encryption: "none", Structure: "ber_tlv", Response: "not_expected"}},
		{0x08, StoreDataParams{Encryption: "none", Structure: "dgi", Response: "not_expected"}},
		{0xE1, StoreDataParams{LastBlock: true, Encryption: "encrypted", Structure: "none", Response: "may_be_returned"}},
		{0x20, StoreDataParams{Encryption: "application_dependent", Structure: "none", Response: "not_expected"}},
	}
	for _, tc := range tests {
		if diff := cmp.Diff(tc.want, ParseStoreDataP1(tc.p1)); diff != "" {
			t.Errorf("P1 %02X: Mismatch (-want +got):\n%s", tc.p1, diff)
		}
	}
}

func TestStoreDataKeyLoading(t *testing.T) {
	s := newSession(t)
	selectISD(t, s)

	cmd := run(t, s, "80E288000E 00B90B B909950180800188820101", "9000")
	p, ok := cmd.Payload.(StoreData)
	require.True(t, ok)
	assert.Nil(t, p.Data)
	require.Len(t, p.Command, 1)
	assert.Equal(t, tlv.DGI, p.Command[0].Framing)

	crt, ok := p.Command[0].Child("control_reference_template")
	require.True(t, ok)
	kt, ok := crt.Child("key_type")
	require.True(t, ok)
	assert.Equal(t, KeyTypeAES, kt.Value)

	usage, ok := crt.Child("key_usage_qualifier")
	require.True(t, ok)
	assert.True(t, usage.Value.(Flags).Has("verification_encryption"))
}

func TestStoreDataEncryptedStaysRaw(t *testing.T) {
	s := newSession(t)
	cmd := run(t, s, "80E2E80004 01020304", "9000")
	p, ok := cmd.Payload.(StoreData)
	require.True(t, ok)
	assert.Equal(t, tlv.HexBytes{1, 2, 3, 4}, p.Data)
	assert.Empty(t, p.Command)
}

func TestPutKey(t *testing.T) {
	key := "000102030405060708090A0B0C0D0E0F"
	cmd := run(t, newSession(t), "80D8008117 01 8810"+key+"03AABBCC", "01AABBCC 9000")

	want := PutKey{
		OldKVN:       0,
		KeyID:        1,
		MultipleKeys: true,
		NewKVN:       1,
		Keys: []KeyComponent{
			{Type: KeyTypeAES, KeyBlock: tlv.Hex(key), KCV: tlv.Hex("AABBCC")},
		},
		Confirmation: tlv.Hex("01AABBCC"),
	}
	if diff := cmp.Diff(want, cmd.Payload); diff != "" {
		t.Errorf("Mismatch (-want +got):\n%s", diff)
	}
}

func TestPutKeyMalformed(t *testing.T) {
	cmd, err := registry.Decode(exchange(t, "80D8000104 01881000", "9000"), newSession(t))
	assert.ErrorIs(t, err, tlv.ErrMalformedLength)
	assert.IsType(t, apdu.Raw{}, cmd.Payload)
}

func TestInstallForPersonalization(t *testing.T) {
	cmd := run(t, newSession(t), "80E620000D 0000 07A0000000871002 000000", "9000")
	p, ok := cmd.Payload.(Install)
	require.True(t, ok)
	assert.True(t, p.Purpose.Has("for_personalization"))
	assert.Equal(t, []InstallField{{Name: "application_aid", Value: tlv.Hex("A0000000871002")}}, p.Fields)
	assert.Nil(t, p.Privileges)
}

func TestInstallForInstall(t *testing.T) {
	cmd := run(t, newSession(t),
		"80E60C0018 05A000000001 06A00000000101 06A00000000101 0180 00 00", "9000")
	p, ok := cmd.Payload.(Install)
	require.True(t, ok)
	assert.Equal(t, []string{"for_make_selectable", "for_install"}, p.Purpose.Set)
	require.NotNil(t, p.Privileges)
	assert.True(t, p.Privileges.Has("security_domain"))
}

func TestDelete(t *testing.T) {
	cmd := run(t, newSession(t), "80E4008006 D00101D20170", "00 9000")
	p, ok := cmd.Payload.(Delete)
	require.True(t, ok)
	assert.True(t, p.RelatedObjects)
	assert.Equal(t, []string{"key_identifier", "key_version_number"}, p.Command.Names())
}

func TestInitializeUpdate(t *testing.T) {
	div := "00010203040506070809"
	cmd := run(t, newSession(t), "8050300008 1122334455667788",
		div+"30 03 70 A1A2A3A4A5A6A7A8 C1C2C3C4C5C6C7C8 000001 9000")

	want := InitializeUpdate{
		KeyVersion:          0x30,
		HostChallenge:       tlv.Hex("1122334455667788"),
		DiversificationData: tlv.Hex(div),
		CardKeyVersion:      0x30,
		SCP:                 0x03,
		SCPParameter:        0x70,
		CardChallenge:       tlv.Hex("A1A2A3A4A5A6A7A8"),
		CardCryptogram:      tlv.Hex("C1C2C3C4C5C6C7C8"),
		SequenceCounter:     tlv.Hex("000001"),
	}
	if diff := cmp.Diff(want, cmd.Payload); diff != "" {
		t.Errorf("Mismatch (-want +got):\n%s", diff)
	}
}

func TestExternalAuthenticate(t *testing.T) {
	cmd := run(t, newSession(t), "8482330010 0102030405060708 1112131415161718", "9000")
	p, ok := cmd.Payload.(ExternalAuthenticate)
	require.True(t, ok)
	assert.Equal(t, []string{"r_encryption", "r_mac", "c_decryption", "c_mac"}, p.SecurityLevel.Set)
	assert.Equal(t, tlv.Hex("0102030405060708"), []byte(p.HostCryptogram))
}

func TestSetStatus(t *testing.T) {
	cmd := run(t, newSession(t), "80F0800F00", "9000")
	p, ok := cmd.Payload.(SetStatus)
	require.True(t, ok)
	assert.Equal(t, "isd", p.Scope)
	assert.Equal(t, "secured", p.State)
}

func TestISDStatusWords(t *testing.T) {
	desc, ok := ISD().DescribeStatus(0x6310)
	require.True(t, ok)
	assert.Equal(t, "More data available", desc)
}
