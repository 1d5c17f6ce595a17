package emv

import (
	"fmt"
	"strings"

	"github.com/gregLibert/apdu-trace/pkg/tlv"
)

// FILE CONTROL INFORMATION (FCI) according to EMV Book 1 Section 11.3.4.

// Issuer discretionary data (Tag 'BF0C') which often contains specific bank
// or country information.
var (
	LogEntry                           = tlv.Primitive("log_entry", 0x9F4D, tlv.Bytes)
	IssuerIdentificationNumberExtended = tlv.Primitive("issuer_identification_number_extended", 0x9F0C, tlv.Bytes)
	IssuerCountryCodeAlpha3            = tlv.Primitive("issuer_country_code_alpha3", 0x5F56, tlv.ASCII)
	IssuerCountryCodeAlpha2            = tlv.Primitive("issuer_country_code_alpha2", 0x5F55, tlv.ASCII)
	BankIdentifierCode                 = tlv.Primitive("bank_identifier_code", 0x5F54, tlv.ASCII)
	IBAN                               = tlv.Primitive("iban", 0x5F53, tlv.ASCII)
	IssuerURL                          = tlv.Primitive("issuer_url", 0x5F50, tlv.ASCII)
	IssuerIdentificationNumber         = tlv.Primitive("issuer_identification_number", 0x42, tlv.Bytes)
)

// FCI proprietary template (Tag 'A5').
var (
	ApplicationLabel             = tlv.Primitive("application_label", 0x50, tlv.ASCII)
	ApplicationPriorityIndicator = tlv.Primitive("application_priority_indicator", 0x87, tlv.Uint8)
	SFI                          = tlv.Primitive("sfi_of_directory_elementary_file", 0x88, tlv.Uint8)
	PDOL                         = tlv.Primitive("pdol", 0x9F38, tlv.Bytes)
	LanguagePreference           = tlv.Primitive("language_preference", 0x5F2D, tlv.ASCII)
	IssuerCodeTableIndex         = tlv.Primitive("issuer_code_table_index", 0x9F11, tlv.Uint8)
	ApplicationPreferredName     = tlv.Primitive("application_preferred_name", 0x9F12, tlv.ASCII)
	KernelIdentifier             = tlv.Primitive("kernel_identifier", 0x9F2A, tlv.Bytes)

	// The PPSE lists its applications inside the discretionary data.
	DirectoryEntry = tlv.Constructed("directory_entry", 0x61,
		AID, ApplicationLabel, ApplicationPriorityIndicator, KernelIdentifier)

	IssuerDiscretionaryData = tlv.Constructed("fci_issuer_discretionary_data", 0xBF0C,
		LogEntry, IssuerIdentificationNumberExtended, IssuerCountryCodeAlpha3, IssuerCountryCodeAlpha2,
		BankIdentifierCode, IBAN, IssuerURL, IssuerIdentificationNumber, DirectoryEntry)

	ProprietaryTemplate = tlv.Constructed("fci_proprietary_template", 0xA5,
		ApplicationLabel, ApplicationPriorityIndicator, SFI, PDOL, LanguagePreference,
		IssuerCodeTableIndex, ApplicationPreferredName, IssuerDiscretionaryData)
)

var (
	DFName      = tlv.Primitive("df_name", 0x84, tlv.Bytes)
	FCITemplate = tlv.Constructed("fci_template", 0x6F, DFName, ProprietaryTemplate)

	// FCI decodes the SELECT response of an EMV application or directory.
	FCI = tlv.MustCollection("emv_fci", FCITemplate)

	// fciContent decodes an FCI sent without its '6F' wrapper.
	fciContent = tlv.MustCollection("emv_fci_content", DFName, ProprietaryTemplate)
)

// ParseFCI interprets raw byte data as an EMV FCI. Some cards omit the '6F'
// template; its content is accepted on its own.
func ParseFCI(data []byte) (tlv.Elements, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty data cannot be parsed")
	}
	coll := FCI
	if data[0] != 0x6F {
		coll = fciContent
	}
	elems, err := coll.Decode(data, tlv.AllowUnknown())
	if err != nil {
		return nil, fmt.Errorf("EMV FCI: %w", err)
	}
	return elems, nil
}

// DescribeFCI generates a report of the FCI content, one line per object.
func DescribeFCI(elems tlv.Elements) string {
	var sb strings.Builder
	sb.WriteString("=== EMV FCI TEMPLATE ===")
	tlv.WriteNodes(&sb, "FCI", elems)
	return strings.TrimRight(sb.String(), "\n")
}
