package emv

import (
	"fmt"
	"strings"

	"github.com/gregLibert/apdu-trace/pkg/fs"
	"github.com/gregLibert/apdu-trace/pkg/tlv"
)

// PAYMENT SYSTEM DIRECTORY according to EMV Book 1 Section 12.2.3. The
// directory EF is read record by record; each record is wrapped in a
// Record Template (Tag '70').

var (
	AID     = tlv.Primitive("aid", 0x4F, tlv.Bytes)
	DDFName = tlv.Primitive("ddf_name", 0x9D, tlv.ASCII)

	ApplicationSelectionRegisteredProprietaryData = tlv.Primitive(
		"application_selection_registered_proprietary_data", 0x9F0A, tlv.Bytes)

	DirectoryDiscretionaryTemplate = tlv.Constructed("directory_discretionary_template", 0x73,
		ApplicationSelectionRegisteredProprietaryData, IssuerCountryCodeAlpha3, IssuerCountryCodeAlpha2,
		BankIdentifierCode, IBAN, IssuerURL, IssuerIdentificationNumber,
		IssuerIdentificationNumberExtended, LogEntry)

	// ApplicationTemplate (Tag '61') is an entry in the Payment System
	// Directory, with what is needed to select the application.
	ApplicationTemplate = tlv.Constructed("application_template", 0x61,
		AID, ApplicationLabel, ApplicationPriorityIndicator, DirectoryDiscretionaryTemplate,
		ApplicationPreferredName, DDFName)

	// A record can technically contain multiple application templates.
	RecordTemplate = tlv.Constructed("record_template", 0x70, ApplicationTemplate, DDFName)

	// DirectoryRecord decodes one record of the directory EF.
	DirectoryRecord = tlv.MustCollection("directory_record", RecordTemplate)
)

// ParseDirectoryRecord interprets raw bytes from a READ RECORD command as
// EMV directory data.
func ParseDirectoryRecord(data []byte) (tlv.Elements, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty record data")
	}
	if data[0] != 0x70 {
		return nil, fmt.Errorf("missing mandatory Record Template (Tag 70)")
	}
	elems, err := DirectoryRecord.Decode(data, tlv.AllowUnknown())
	if err != nil {
		return nil, fmt.Errorf("directory record: %w", err)
	}
	return elems, nil
}

// Applications returns the application templates of a decoded record.
func Applications(record tlv.Elements) []tlv.Node {
	var out []tlv.Node
	for _, r := range record.All("record_template") {
		out = append(out, r.All("application_template")...)
	}
	return out
}

// DescribeDirectory generates a report for all applications found in the
// record.
func DescribeDirectory(record tlv.Elements) string {
	var sb strings.Builder
	sb.WriteString("=== EMV DIRECTORY RECORD ===")
	for i, app := range Applications(record) {
		tlv.WriteNodes(&sb, fmt.Sprintf("App[%d]", i+1), app.Children)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// Directory names.
var (
	PSEName  = []byte("1PAY.SYS.DDF01")
	PPSEName = []byte("2PAY.SYS.DDF01")
)

// PSE returns the contact Payment System Environment. Its directory EF is
// only reachable by SFI; the File ID is a placeholder.
func PSE() *fs.Application {
	return &fs.Application{
		Name: "DDF.PSE",
		AID:  PSEName,
		FCI:  FCI,
		Files: []*fs.File{
			fs.EF("EF.DIR", 0x0001, fs.TypeLinearFixed, fs.WithSFI(0x01),
				fs.WithDesc("Payment system directory"), fs.WithContent(DirectoryRecord.AsCodec())),
		},
	}
}

// PPSE returns the contactless Proximity Payment System Environment, which
// lists its applications in the FCI.
func PPSE() *fs.Application {
	return &fs.Application{
		Name: "DDF.PPSE",
		AID:  PPSEName,
		FCI:  FCI,
	}
}
