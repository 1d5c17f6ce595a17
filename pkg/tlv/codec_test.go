package tlv

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	isotlv "cunicu.li/go-iso7816/encoding/tlv"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testAID      = Primitive("aid", 0x4F, Bytes)
	testLabel    = Primitive("label", 0x50, ASCII)
	testPriority = Primitive("priority", 0x87, Uint8)
	testVersion  = Primitive("version", 0x9F70, Uint)
	testFlag     = Primitive("flag", 0x82, Empty)
	testApp      = Constructed("application", 0x61, testAID, testLabel, testPriority)
	testDir      = Constructed("directory", 0xFF40, testApp, testVersion)

	testDGIKey  = Primitive("key", 0x8137, Bytes).AsDGI()
	testDGICRT  = Primitive("crt", 0x00B9, Bytes).AsDGI()
	testDGIData = Primitive("data", 0x0036, Bytes).AsDGI()
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	reg, err := NewRegistry("test", testDir, testApp, testVersion, testFlag)
	require.NoError(t, err)
	return reg
}

func TestRegistryDecode(t *testing.T) {
	reg := testRegistry(t)

	tests := []struct {
		name         string
		input        []byte
		wantNames    []string
		wantLeftover []byte
	}{
		{
			name:      "Empty Buffer",
			input:     nil,
			wantNames: nil,
		},
		{
			name:      "Flat Sequence",
			input:     Hex("9F70 01 07", "82 00"),
			wantNames: []string{"version", "flag"},
		},
		{
			name:      "Nested",
			input:     Hex("FF40 0B", "61 09 4F 02 A000 50 03 414243"),
			wantNames: []string{"directory"},
		},
		{
			name:         "Stops At Zero Padding",
			input:        Hex("9F70 01 07", "00 00 9F70 01 08"),
			wantNames:    []string{"version"},
			wantLeftover: Hex("00 00 9F70 01 08"),
		},
		{
			name:         "Stops At Trailing FF",
			input:        Hex("82 00", "FF FF FF"),
			wantNames:    []string{"flag"},
			wantLeftover: Hex("FF FF FF"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nodes, rest, err := reg.Decode(tt.input)
			require.NoError(t, err)

			var names []string
			for _, n := range nodes {
				names = append(names, n.Name())
			}
			if diff := cmp.Diff(tt.wantNames, names); diff != "" {
				t.Errorf("Mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantLeftover, rest); diff != "" {
				t.Errorf("Leftover mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRegistryDecodeValues(t *testing.T) {
	reg := testRegistry(t)

	nodes, _, err := reg.Decode(Hex("FF40 0F", "61 09 4F 02 A000 50 03 414243", "9F70 01 07"))
	require.NoError(t, err)
	require.Len(t, nodes, 1)

	dir := nodes[0]
	app, ok := dir.Child("application")
	require.True(t, ok)

	aid, ok := app.Child("aid")
	require.True(t, ok)
	assert.Equal(t, HexBytes(Hex("A000")), aid.Value)

	label, _ := app.Child("label")
	got, ok := As[string](label)
	assert.True(t, ok)
	assert.Equal(t, "ABC", got)

	version, _ := dir.Child("version")
	v, ok := As[uint64](version)
	assert.True(t, ok)
	assert.Equal(t, uint64(7), v)
}

func TestRegistryDecodeErrors(t *testing.T) {
	reg := testRegistry(t)

	tests := []struct {
		name    string
		input   []byte
		wantErr error
	}{
		{"Length Exceeds Buffer", Hex("9F70 05 07"), ErrMalformedLength},
		{"Truncated Tag", Hex("9F"), ErrMalformedTag},
		{"Indefinite Length", Hex("FF40 80 61 00"), ErrMalformedLength},
		{"Unknown Top Level", Hex("DF20 01 01"), ErrUnknownTag},
		{"Unknown Nested", Hex("FF40 03", "84 01 01"), ErrUnknownTag},
		{"Nested Length Exceeds Parent", Hex("FF40 03", "61 05 4F 02 A000"), ErrMalformedLength},
		{"Codec Rejects Value", Hex("61 04", "87 02 0102"), ErrInvalidValue},
		{"Empty Value Not Empty", Hex("82 01 00"), ErrInvalidValue},
		{"Padding Inside Template", Hex("61 04", "87 01 01 00"), nil},
		{"Trailing Bytes Inside Template", Hex("61 05", "87 01 01 00 33"), ErrMalformedLength},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nodes, _, err := reg.Decode(tt.input)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Decode() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil && nodes != nil {
				t.Errorf("Decode() returned %d nodes alongside an error", len(nodes))
			}
		})
	}
}

func TestRegistryDecodeAllowUnknown(t *testing.T) {
	reg := testRegistry(t)
	input := Hex("DF20 02 0102", "FF40 07", "84 01 01", "9F70 01 02")

	nodes, rest, err := reg.Decode(input, AllowUnknown())
	require.NoError(t, err)
	require.Empty(t, rest)
	require.Len(t, nodes, 2)

	assert.False(t, nodes[0].IsKnown())
	assert.Equal(t, "unknown_DF20", nodes[0].Name())
	assert.Equal(t, "unknown_84", nodes[1].Children[0].Name())

	out, err := Encode(nodes...)
	require.NoError(t, err)
	if diff := cmp.Diff(input, out); diff != "" {
		t.Errorf("Mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeOne(t *testing.T) {
	reg := MustRegistry("records", testApp)

	stream := Hex("61 03 87 01 01", "61 03 87 01 02")

	first, rest, err := reg.DecodeOne(stream)
	require.NoError(t, err)
	assert.Equal(t, "application", first.Name())
	assert.Equal(t, Hex("61 03 87 01 02"), rest)

	second, rest, err := reg.DecodeOne(rest)
	require.NoError(t, err)
	prio, _ := second.Child("priority")
	assert.Equal(t, uint8(2), prio.Value)
	assert.Empty(t, rest)
}

// Minimal encodings decode and re-encode to the same bytes. The expected
// buffers are produced by an independent BER encoder.
func TestRoundTripAgainstReferenceEncoder(t *testing.T) {
	reg := testRegistry(t)

	long := make([]byte, 300)
	for i := range long {
		long[i] = byte(i)
	}

	tests := []struct {
		name string
		ref  []isotlv.TagValue
	}{
		{
			name: "Flat",
			ref: []isotlv.TagValue{
				isotlv.New(0x9F70, []byte{0x01, 0x00}),
				isotlv.New(0x82),
			},
		},
		{
			name: "Nested",
			ref: []isotlv.TagValue{
				isotlv.New(0xFF40,
					isotlv.New(0x61,
						isotlv.New(0x4F, []byte{0xA0, 0x00, 0x00, 0x01, 0x51}),
						isotlv.New(0x50, []byte("ARA-M")),
						isotlv.New(0x87, byte(0x01)),
					),
					isotlv.New(0x9F70, byte(0x07)),
				),
			},
		},
		{
			name: "Long Form Length",
			ref: []isotlv.TagValue{
				isotlv.New(0x61, isotlv.New(0x4F, long)),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			want, err := isotlv.EncodeBER(tt.ref...)
			require.NoError(t, err)

			nodes, rest, err := reg.Decode(want)
			require.NoError(t, err)
			require.Empty(t, rest)

			got, err := Encode(nodes...)
			require.NoError(t, err)
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("Mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEncodeBuiltNodes(t *testing.T) {
	tree := NewConstructed(testDir,
		NewConstructed(testApp,
			New(testAID, HexBytes(Hex("A0000001"))),
			New(testPriority, uint8(3)),
		),
		New(testVersion, uint64(0x0102)),
	)

	got, err := Encode(tree)
	require.NoError(t, err)
	if diff := cmp.Diff(Hex("FF40 10", "61 09 4F 04 A0000001 87 01 03", "9F70 02 0102"), got); diff != "" {
		t.Errorf("Mismatch (-want +got):\n%s", diff)
	}

	reg := testRegistry(t)
	nodes, _, err := reg.Decode(got)
	require.NoError(t, err)
	app, _ := nodes[0].Child("application")
	prio, _ := app.Child("priority")
	assert.Equal(t, uint8(3), prio.Value)
}

func TestEncodeErrors(t *testing.T) {
	t.Run("Child Not Permitted", func(t *testing.T) {
		_, err := Encode(NewConstructed(testApp, New(testVersion, uint64(1))))
		assert.ErrorIs(t, err, ErrUnexpectedElement)
	})

	t.Run("Wrong Value Type", func(t *testing.T) {
		_, err := Encode(New(testPriority, "high"))
		assert.ErrorIs(t, err, ErrInvalidValue)
	})

	t.Run("DGI Value Too Long", func(t *testing.T) {
		_, err := Encode(New(testDGIKey, HexBytes(make([]byte, 0x10000))))
		assert.ErrorIs(t, err, ErrValueTooLong)
	})
}

func TestDGIFraming(t *testing.T) {
	reg, err := NewRegistry("key loading", testDGICRT, testDGIKey, testDGIData)
	require.NoError(t, err)

	long := make([]byte, 0x100)
	input := append(Hex("00B9 02 0102", "8137 FF 0100"), long...)

	nodes, rest, err := reg.Decode(input)
	require.NoError(t, err)
	require.Empty(t, rest)
	require.Len(t, nodes, 2)
	assert.Equal(t, "crt", nodes[0].Name())
	assert.Equal(t, DGI, nodes[1].Framing)
	assert.Len(t, nodes[1].Raw, 0x100)

	out, err := Encode(nodes...)
	require.NoError(t, err)
	assert.Equal(t, input, out)
}

func TestDGILeadingZeroIsNotPadding(t *testing.T) {
	reg := MustRegistry("dgi", testDGIData)

	nodes, rest, err := reg.Decode(Hex("0036 01 AA"))
	require.NoError(t, err)
	assert.Empty(t, rest)
	require.Len(t, nodes, 1)
	assert.Equal(t, HexBytes{0xAA}, nodes[0].Value)
}

func TestNodeJSON(t *testing.T) {
	reg := testRegistry(t)
	nodes, _, err := reg.Decode(Hex("61 0A 4F 02 A000 50 01 41 87 01 01", "DF20 01 09"), AllowUnknown())
	require.NoError(t, err)

	got, err := json.Marshal(nodes)
	require.NoError(t, err)
	assert.JSONEq(t,
		`[{"application":[{"aid":"a000"},{"label":"A"},{"priority":1}]},{"unknown_DF20":"09"}]`,
		string(got))
}

func TestWriteNodes(t *testing.T) {
	reg := testRegistry(t)
	nodes, _, err := reg.Decode(Hex("FF40 0B", "61 09 4F 02 A000 50 03 414243"))
	require.NoError(t, err)

	var sb strings.Builder
	WriteNodes(&sb, "ARAM", nodes)

	want := []string{
		"    - ARAM.directory (FF40)",
		"    - ARAM.directory.application (61)",
		"    - ARAM.directory.application.aid (4F): A000",
		`    - ARAM.directory.application.label (50): "ABC"`,
	}
	if diff := cmp.Diff(want, strings.Split(sb.String(), "\n")); diff != "" {
		t.Errorf("Mismatch (-want +got):\n%s", diff)
	}
}
