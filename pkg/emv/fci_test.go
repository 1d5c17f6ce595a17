package emv

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gregLibert/apdu-trace/pkg/tlv"
)

func TestParseFCI(t *testing.T) {
	tests := []struct {
		name  string
		raw   []byte
		df    []byte
		label string
	}{
		{
			name:  "wrapped",
			raw:   tlv.Hex("6F1A 8407A0000000041010 A50F 500A4D617374657243617264 870101"),
			df:    tlv.Hex("A0000000041010"),
			label: "MasterCard",
		},
		{
			// Some cards leave out the 6F template.
			name: "unwrapped",
			raw:  tlv.Hex("840E325041592E5359532E4444463031 A508 880102 5F2D02656E"),
			df:   PPSEName,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseFCI(tc.raw)
			require.NoError(t, err)

			content := tlv.Elements(got)
			if tmpl, ok := got.First("fci_template"); ok {
				content = tmpl.Children
			}

			df, ok := content.First("df_name")
			require.True(t, ok)
			assert.Equal(t, tlv.HexBytes(tc.df), df.Value)

			if tc.label != "" {
				prop, ok := content.First("fci_proprietary_template")
				require.True(t, ok)
				lbl, ok := prop.Child("application_label")
				require.True(t, ok)
				assert.Equal(t, tc.label, lbl.Value)
			}
		})
	}
}

func TestParseFCI_Errors(t *testing.T) {
	for _, raw := range [][]byte{nil, tlv.Hex("6F0584")} {
		_, err := ParseFCI(raw)
		assert.Error(t, err, "%X", raw)
	}
}

func TestFCI_Describe(t *testing.T) {
	rawData := tlv.Hex(
		"6F 31",                                // FCI Template (Len 49)
		"84 07 A0000000031010",                 // DF Name (VISA)
		"A5 26",                                // Proprietary Template (Len 38)
		"50 04 56495341",                       // App Label: "VISA"
		"BF0C 17",                              // Issuer Discretionary Data (Len 23)
		"5F50 0E 7777772E6D795F62616E6B2E6575", // URL: "www.my_bank.eu"
		"99 04 11223344",                       // Unknown Tag inside BF0C (Discretionary)
		"9F38 03 9F1A02",                       // PDOL inside A5 (Proprietary)
	)

	fci, err := ParseFCI(rawData)
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}

	report := DescribeFCI(fci)
	actualLines := strings.Split(report, "\n")

	const prop = "FCI.fci_template.fci_proprietary_template"
	expectedLines := []string{
		"=== EMV FCI TEMPLATE ===",
		`    - FCI.fci_template (6F)`,
		`    - FCI.fci_template.df_name (84): A0000000031010`,
		`    - ` + prop + ` (A5)`,
		`    - ` + prop + `.application_label (50): "VISA"`,
		`    - ` + prop + `.fci_issuer_discretionary_data (BF0C)`,
		`    - ` + prop + `.fci_issuer_discretionary_data.issuer_url (5F50): "www.my_bank.eu"`,
		`    - ` + prop + `.fci_issuer_discretionary_data.unknown_99 (99): 11223344`,
		`    - ` + prop + `.pdol (9F38): 9F1A02`,
	}

	if diff := cmp.Diff(expectedLines, actualLines); diff != "" {
		t.Errorf("Report mismatch (-want +got):\n%s", diff)
	}
}

func TestFCI_PPSEDirectory(t *testing.T) {
	rawData := tlv.Hex(
		"6F 2C",
		"84 0E 325041592E5359532E4444463031",
		"A5 1A",
		"BF0C 17",
		"61 15",
		"4F 07 A0000000041010",
		"50 0A 4D617374657243617264",
	)

	fci, err := ParseFCI(rawData)
	if err != nil {
		t.Fatalf("ParseFCI() error = %v", err)
	}

	prop, _ := fci[0].Child("fci_proprietary_template")
	disc, _ := prop.Child("fci_issuer_discretionary_data")
	entries := disc.All("directory_entry")
	if len(entries) != 1 {
		t.Fatalf("want 1 directory entry, got %d", len(entries))
	}
	aid, _ := entries[0].Child("aid")
	if diff := cmp.Diff(tlv.HexBytes(tlv.Hex("A0000000041010")), aid.Value); diff != "" {
		t.Errorf("Mismatch (-want +got):\n%s", diff)
	}
}
