package fs

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gregLibert/apdu-trace/pkg/iso7816"
	"github.com/gregLibert/apdu-trace/pkg/tlv"
)

func testTree(t *testing.T) *Tree {
	t.Helper()
	usim := &Application{
		Name: "ADF.USIM",
		AID:  tlv.Hex("A0000000871002"),
		Files: []*File{
			EF("EF.IMSI", 0x6F07, TypeTransparent, WithSFI(0x07)),
		},
	}
	mf := MF(
		EF("EF.DIR", 0x2F00, TypeLinearFixed, WithSFI(0x1E)),
		DF("DF.TELECOM", 0x7F11,
			EF("EF.ADN", 0x6F3A, TypeLinearFixed),
			DF("DF.PHONEBOOK", 0x5F3A,
				EF("EF.PBR", 0x4F30, TypeLinearFixed),
			),
		),
		DF("DF.GSM", 0x7F20),
	)
	tree, err := NewTree(mf, usim)
	require.NoError(t, err)
	return tree
}

func TestTree_Select(t *testing.T) {
	tree := testTree(t)
	mf := tree.MF()
	telecom, _ := mf.Child(0x7F11)
	adn, _ := telecom.Child(0x6F3A)
	phonebook, _ := telecom.Child(0x5F3A)
	adf, _ := tree.ADFByAID(tlv.Hex("A0000000871002"))

	tests := []struct {
		name     string
		cur      *File
		method   iso7816.SelectionMethod
		data     string
		wantName string
		wantErr  bool
	}{
		{"MF By Empty Data", nil, iso7816.SelectByFileID, "", "MF", false},
		{"MF By FID", adn, iso7816.SelectByFileID, "3F00", "MF", false},
		{"Child DF", nil, iso7816.SelectByFileID, "7F11", "DF.TELECOM", false},
		{"EF Under DF", telecom, iso7816.SelectByFileID, "6F3A", "EF.ADN", false},
		{"Sibling Of Current EF", adn, iso7816.SelectByFileID, "5F3A", "DF.PHONEBOOK", false},
		{"Parent By FID", phonebook, iso7816.SelectByFileID, "7F11", "DF.TELECOM", false},
		{"Child Of Parent", phonebook, iso7816.SelectByFileID, "6F3A", "EF.ADN", false},
		{"Not Reachable", nil, iso7816.SelectByFileID, "6F3A", "", true},
		{"Current ADF", adf, iso7816.SelectByFileID, "7FFF", "ADF.USIM", false},
		{"Current ADF Without App", telecom, iso7816.SelectByFileID, "7FFF", "", true},
		{"Odd FID", nil, iso7816.SelectByFileID, "7F", "", true},
		{"Child DF Method", nil, iso7816.SelectChildDF, "7F20", "DF.GSM", false},
		{"Child DF Method Rejects EF", nil, iso7816.SelectChildDF, "2F00", "", true},
		{"EF Method", telecom, iso7816.SelectEFUnderCurrentDF, "6F3A", "EF.ADN", false},
		{"Parent", adn, iso7816.SelectParentDF, "", "MF", false},
		{"Parent Of MF", nil, iso7816.SelectParentDF, "", "", true},
		{"AID Exact", nil, iso7816.SelectByDFName, "A0000000871002", "ADF.USIM", false},
		{"AID Truncated", nil, iso7816.SelectByDFName, "A000000087", "ADF.USIM", false},
		{"AID Extended", nil, iso7816.SelectByDFName, "A0000000871002FF33", "ADF.USIM", false},
		{"AID Unknown", nil, iso7816.SelectByDFName, "A000000003", "", true},
		{"Path From MF", adf, iso7816.SelectPathFromMF, "7F115F3A4F30", "EF.PBR", false},
		{"Path From MF With Root", nil, iso7816.SelectPathFromMF, "3F007F11", "DF.TELECOM", false},
		{"Path Into Current ADF", adf, iso7816.SelectPathFromMF, "7FFF6F07", "EF.IMSI", false},
		{"Path From Current DF", telecom, iso7816.SelectPathFromCurrentDF, "5F3A4F30", "EF.PBR", false},
		{"Broken Path", telecom, iso7816.SelectPathFromCurrentDF, "5F3A6F3A", "", true},
		{"Unsupported Method", nil, iso7816.SelectionMethod(0x0C), "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tree.Select(tt.cur, tt.method, tlv.Hex(tt.data))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrFileNotFound)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, got.Name)
		})
	}
}

func TestFile_Path(t *testing.T) {
	tree := testTree(t)
	pbr, err := tree.Select(nil, iso7816.SelectPathFromMF, tlv.Hex("7F115F3A4F30"))
	require.NoError(t, err)

	if diff := cmp.Diff([]FID{0x7F11, 0x5F3A, 0x4F30}, pbr.FIDPath()); diff != "" {
		t.Errorf("Mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "MF/DF.TELECOM/DF.PHONEBOOK/EF.PBR", pbr.PathString())
	assert.Empty(t, tree.MF().FIDPath())
	assert.Equal(t, "7f11", FID(0x7F11).String())
}

func TestFile_SFI(t *testing.T) {
	tree := testTree(t)
	dir, ok := tree.MF().ChildBySFI(0x1E)
	require.True(t, ok)
	assert.Equal(t, "EF.DIR", dir.Name)

	_, ok = tree.MF().ChildBySFI(0)
	assert.False(t, ok)
}

func TestNewTree_Duplicates(t *testing.T) {
	_, err := NewTree(MF(
		EF("EF.A", 0x2F05, TypeTransparent),
		EF("EF.B", 0x2F05, TypeTransparent),
	))
	assert.ErrorIs(t, err, ErrDuplicateFile)

	_, err = NewTree(MF(
		EF("EF.A", 0x2F05, TypeTransparent, WithSFI(5)),
		EF("EF.B", 0x2F06, TypeTransparent, WithSFI(5)),
	))
	assert.ErrorIs(t, err, ErrDuplicateFile)

	app := &Application{Name: "A", AID: tlv.Hex("A000")}
	_, err = NewTree(MF(), app, &Application{Name: "B", AID: tlv.Hex("A000")})
	assert.ErrorIs(t, err, ErrDuplicateFile)

	_, err = NewTree(DF("DF.X", 0x7F10))
	assert.Error(t, err)
}

func TestTree_Dynamic(t *testing.T) {
	tree := testTree(t)
	gsm, _ := tree.MF().Child(0x7F20)

	tree.AddDynamic(gsm, EF("EF.6F99", 0x6F99, TypeTransparent))
	tree.AddDynamic(nil, &File{Name: "ADF.A0000000030000", AID: tlv.Hex("A0000000030000"), Type: TypeADF})

	f, err := tree.Select(gsm, iso7816.SelectByFileID, tlv.Hex("6F99"))
	require.NoError(t, err)
	assert.True(t, f.Dynamic)
	assert.Len(t, tree.ADFs(), 2)

	tree.DropDynamic()

	_, err = tree.Select(gsm, iso7816.SelectByFileID, tlv.Hex("6F99"))
	assert.ErrorIs(t, err, ErrFileNotFound)
	assert.Len(t, tree.ADFs(), 1)
}

func TestTypeFromDescriptor(t *testing.T) {
	tests := []struct {
		b    byte
		want FileType
	}{
		{0x78, TypeDF},
		{0x38, TypeDF},
		{0x41, TypeTransparent},
		{0x01, TypeTransparent},
		{0x42, TypeLinearFixed},
		{0x46, TypeCyclic},
		{0x39, TypeBERTLV},
		{0x00, TypeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, TypeFromDescriptor(tt.b))
		})
	}
}

func TestApplication_DescribeStatus(t *testing.T) {
	app := &Application{StatusWords: map[uint16]string{0x6A88: "Referenced data not found"}}
	s, ok := app.DescribeStatus(0x6A88)
	assert.True(t, ok)
	assert.Equal(t, "Referenced data not found", s)

	var none *Application
	_, ok = none.DescribeStatus(0x9000)
	assert.False(t, ok)
}
