// Package gp decodes the GlobalPlatform card management commands and the
// data objects of the Issuer Security Domain.
package gp

import (
	"fmt"

	"github.com/gregLibert/apdu-trace/pkg/tlv"
)

// KeyTypeLength is one key component of a key information data object.
type KeyTypeLength struct {
	Length uint8   `json:"length"`
	Type   KeyType `json:"type"`
}

// KeyInfo is the value of the Key Information Data object (GP 2.1.1
// Section 9.3.3.1).
type KeyInfo struct {
	KeyIdentifier    uint8           `json:"key_identifier"`
	KeyVersionNumber uint8           `json:"key_version_number"`
	KeyTypes         []KeyTypeLength `json:"key_types"`
}

var keyInfoCodec = tlv.Func(
	func(b []byte) (KeyInfo, error) {
		if len(b) < 2 || len(b)%2 != 0 {
			return KeyInfo{}, fmt.Errorf("%w: key information of %d bytes", tlv.ErrInvalidValue, len(b))
		}
		ki := KeyInfo{KeyIdentifier: b[0], KeyVersionNumber: b[1], KeyTypes: []KeyTypeLength{}}
		for i := 2; i < len(b); i += 2 {
			ki.KeyTypes = append(ki.KeyTypes, KeyTypeLength{Type: KeyType(b[i]), Length: b[i+1]})
		}
		return ki, nil
	},
	func(ki KeyInfo) ([]byte, error) {
		out := []byte{ki.KeyIdentifier, ki.KeyVersionNumber}
		for _, kt := range ki.KeyTypes {
			out = append(out, byte(kt.Type), kt.Length)
		}
		return out, nil
	},
)

// Key information (GP 2.1.1 Section 9.3.3.1).
var (
	KeyInformationData = tlv.Primitive("key_information_data", 0xC0, keyInfoCodec)
	KeyInformation     = tlv.Constructed("key_information", 0xE0, KeyInformationData)
)

var keyUsageQualifier = flagsCodec(
	flagBits{"verification_encryption", "computation_decipherment", "sm_response", "sm_command",
		"confidentiality", "crypto_checksum", "digital_signature", "crypto_authorization"},
	flagBits{"key_agreement"},
)

// Key loading (GP 2.3 Section 11.11.4).
var (
	KeyUsageQualifier          = tlv.Primitive("key_usage_qualifier", 0x95, keyUsageQualifier)
	KeyAccessDO                = tlv.Primitive("key_access", 0x96, tlv.Byte[KeyAccess]())
	KeyTypeDO                  = tlv.Primitive("key_type", 0x80, tlv.Byte[KeyType]())
	KeyLength                  = tlv.Primitive("key_length", 0x81, tlv.Uint)
	KeyIdentifier              = tlv.Primitive("key_identifier", 0x82, tlv.Uint8)
	KeyVersionNumber           = tlv.Primitive("key_version_number", 0x83, tlv.Uint8)
	KeyParameterReferenceValue = tlv.Primitive("key_parameter_reference_value", 0x85, tlv.Byte[CurveReference]())

	ControlReferenceTemplate = tlv.Constructed("control_reference_template", 0xB9,
		KeyUsageQualifier, KeyAccessDO, KeyTypeDO, KeyLength, KeyIdentifier, KeyVersionNumber,
		KeyParameterReferenceValue)

	KeyControlReferenceTemplate = tlv.Constructed("key_control_reference_template", 0x00B9,
		ControlReferenceTemplate).AsDGI()
	EccPublicKey  = tlv.Primitive("ecc_public_key", 0x0036, tlv.Bytes).AsDGI()
	EccPrivateKey = tlv.Primitive("ecc_private_key", 0x8137, tlv.Bytes).AsDGI()

	// KeyLoading decodes DGI-structured STORE DATA blocks.
	KeyLoading = tlv.MustCollection("key_loading", KeyControlReferenceTemplate, EccPublicKey, EccPrivateKey)
)

var cipherSuites = flagsCodec(
	flagBits{"ecdsa_ecc384_sha384", "ecdsa_ecc256_sha256", "cmac_aes256", "cmac_aes192",
		"cmac_aes128", "single_des_plus_final_triple_des_mac_16b", "rsa_gt1024_pss_sha256",
		"rsa1024_pkcsv15_sha1"},
	flagBits{6: "ecdsa_ecc_521_sha512", 7: "ecdsa_ecc512_sha512"},
)

// Card capability information (GP 2.3.1 Section H.4).
var (
	ScpType                = tlv.Primitive("scp_type", 0x80, tlv.Uint8)
	ListOfSupportedOptions = tlv.Primitive("list_of_supported_options", 0x81, tlv.Bytes)
	SupportedKeysForScp03  = tlv.Primitive("supported_keys_for_scp03", 0x82,
		flagsCodec(flagBits{5: "aes256", 6: "aes192", 7: "aes128"}))

	SupportedTlsCipherSuites = tlv.Primitive("supported_tls_cipher_suites_for_scp81", 0x83, tlv.Bytes)
	ScpInformation           = tlv.Constructed("scp_information", 0xA0,
		ScpType, ListOfSupportedOptions, SupportedKeysForScp03, SupportedTlsCipherSuites)

	PrivilegesAvailableSSD         = tlv.Primitive("privileges_available_ssd", 0x81, tlv.Bytes)
	PrivilegesAvailableApplication = tlv.Primitive("privileges_available_application", 0x82, tlv.Bytes)
	SupportedLFDBHAlgorithms       = tlv.Primitive("supported_lfdbh_algorithms", 0x83, tlv.Bytes)
	CiphersForLFDBEncryption       = tlv.Primitive("ciphers_for_lfdb_encryption", 0x84,
		flagsCodec(flagBits{"icv_supported_for_lfdb", 4: "aes256", 5: "aes192", 6: "aes128", 7: "tripledes16"}))

	CiphersForTokens          = tlv.Primitive("ciphers_for_tokens", 0x85, cipherSuites)
	CiphersForReceipts        = tlv.Primitive("ciphers_for_receipts", 0x86, cipherSuites)
	CiphersForDAPs            = tlv.Primitive("ciphers_for_daps", 0x87, cipherSuites)
	KeyParameterReferenceList = tlv.Constructed("key_parameter_reference_list", 0x88, KeyParameterReferenceValue)

	CardCapabilityInformation = tlv.Constructed("card_capability_information", 0x67,
		ScpInformation, PrivilegesAvailableSSD, PrivilegesAvailableApplication, SupportedLFDBHAlgorithms,
		CiphersForLFDBEncryption, CiphersForTokens, CiphersForReceipts, CiphersForDAPs,
		KeyParameterReferenceList)

	CurrentSecurityLevel = tlv.Primitive("current_security_level", 0xD3, tlv.Uint8)
)

// Applications and resources (GP 2.3.1 Section 11.3.3.1).
var (
	ApplicationAID      = tlv.Primitive("application_aid", 0x4F, tlv.Bytes)
	ApplicationTemplate = tlv.Constructed("application_template", 0x61, ApplicationAID)

	// ListOfApplications decodes GET DATA '2F00'. Its wire tag is not a
	// valid BER tag, so the response is read as the sequence of templates.
	ListOfApplications = tlv.MustCollection("list_of_applications", ApplicationTemplate)

	NumberOfInstalledApps = tlv.Primitive("number_of_installed_app", 0x81, tlv.Uint)
	FreeNonVolatileMemory = tlv.Primitive("free_non_volatile_memory", 0x82, tlv.Uint)
	FreeVolatileMemory    = tlv.Primitive("free_volatile_memory", 0x83, tlv.Uint)
	ExtendedCardResources = tlv.Constructed("extended_card_resources_info", 0xFF21,
		NumberOfInstalledApps, FreeNonVolatileMemory, FreeVolatileMemory)

	SecurityDomainManagerURL = tlv.Primitive("security_domain_manager_url", 0x5F50, tlv.ASCII)
)

// Card recognition data (GP 2.1.1 Table F-1).
var (
	ObjectIdentifier             = tlv.Primitive("object_identifier", 0x06, tlv.OID)
	CardManagementTypeAndVersion = tlv.Constructed("card_management_type_and_version", 0x60, ObjectIdentifier)
	CardIdentificationScheme     = tlv.Constructed("card_identification_scheme", 0x63, ObjectIdentifier)
	SecureChannelProtocolOfISD   = tlv.Constructed("secure_channel_protocol_of_isd", 0x64, ObjectIdentifier)
	CardConfigurationDetails     = tlv.Primitive("card_configuration_details", 0x65, tlv.Bytes)
	CardChipDetails              = tlv.Primitive("card_chip_details", 0x66, tlv.Bytes)

	CardRecognitionData = tlv.Constructed("card_recognition_data", 0x73,
		ObjectIdentifier, CardManagementTypeAndVersion, CardIdentificationScheme,
		SecureChannelProtocolOfISD, CardConfigurationDetails, CardChipDetails)
	CardData = tlv.Constructed("card_data", 0x66, CardRecognitionData)

	IssuerIdentificationNumber  = tlv.Primitive("issuer_identification_number", 0x42, tlv.Bytes)
	CardImageNumber             = tlv.Primitive("card_image_number", 0x45, tlv.Bytes)
	SequenceCounterOfDefaultKvn = tlv.Primitive("sequence_counter_of_default_kvn", 0xC1, tlv.Uint)
	ConfirmationCounter         = tlv.Primitive("confirmation_counter", 0xC2, tlv.Uint)
)

// DataCollection holds every object GET DATA can return from a security
// domain.
var DataCollection = tlv.MustCollection("data_collection",
	IssuerIdentificationNumber, CardImageNumber, CardData, KeyInformation,
	SequenceCounterOfDefaultKvn, ConfirmationCounter, CardCapabilityInformation,
	CurrentSecurityLevel, ExtendedCardResources, SecurityDomainManagerURL)

// FCI of a security domain (GP 2.1.1 Section 9.9.3.1).
var (
	ApplicationID                      = tlv.Primitive("application_id", 0x84, tlv.Bytes)
	SecurityDomainManagementData       = tlv.Primitive("security_domain_management_data", 0x73, tlv.Bytes)
	ApplicationProductionLifeCycleData = tlv.Primitive("application_production_life_cycle_data", 0x9F6E, tlv.Bytes)
	MaximumCommandDataLength           = tlv.Primitive("maximum_length_of_data_field_in_command_message", 0x9F65, tlv.Uint)
	ProprietaryData                    = tlv.Constructed("proprietary_data", 0xA5,
		SecurityDomainManagementData, ApplicationProductionLifeCycleData, MaximumCommandDataLength)

	FciTemplate = tlv.Constructed("fci_template", 0x6F,
		ApplicationID, SecurityDomainManagementData, ApplicationProductionLifeCycleData,
		MaximumCommandDataLength, ProprietaryData)

	// FCI decodes the SELECT response of a security domain.
	FCI = tlv.MustCollection("fci", FciTemplate)
)

var privileges = flagsCodec(
	flagBits{"security_domain", "dap_verification", "delegated_management", "card_lock",
		"card_terminate", "card_reset", "cvm_management", "mandated_dap_verification"},
	flagBits{"trusted_path", "authorized_management", "token_management", "global_delete",
		"global_lock", "global_registry", "final_application", "global_service"},
	flagBits{"receipt_generation", "ciphered_load_file_data_block", "contactless_activation",
		"contactless_self_activation"},
)

// ImplicitSelection is the value of the implicit selection parameter
// (GP 2.3 Section 11.1.7).
type ImplicitSelection struct {
	ContactlessIO  bool  `json:"contactless_io"`
	ContactIO      bool  `json:"contact_io"`
	RFU            bool  `json:"rfu,omitempty"`
	LogicalChannel uint8 `json:"logical_channel_number"`
}

var implicitSelection = tlv.Func(
	func(b []byte) (ImplicitSelection, error) {
		if len(b) != 1 {
			return ImplicitSelection{}, fmt.Errorf("%w: want 1 byte, got %d", tlv.ErrInvalidValue, len(b))
		}
		return ImplicitSelection{
			ContactlessIO:  b[0]&0x80 != 0,
			ContactIO:      b[0]&0x40 != 0,
			RFU:            b[0]&0x20 != 0,
			LogicalChannel: b[0] & 0x1F,
		}, nil
	},
	func(s ImplicitSelection) ([]byte, error) {
		v := s.LogicalChannel & 0x1F
		for _, f := range []struct {
			set bool
			bit byte
		}{{s.ContactlessIO, 0x80}, {s.ContactIO, 0x40}, {s.RFU, 0x20}} {
			if f.set {
				v |= f.bit
			}
		}
		return []byte{v}, nil
	},
)

// Registry entries returned by GET STATUS (GP 2.3 Table 11-36).
var (
	LifeCycleState                  = tlv.Primitive("life_cycle_state", 0x9F70, tlv.Byte[LifeCycle]())
	Privileges                      = tlv.Primitive("privileges", 0xC5, privileges)
	ImplicitSelectionParameter      = tlv.Primitive("implicit_selection_parameter", 0xCF, implicitSelection)
	ExecutableLoadFileAID           = tlv.Primitive("executable_load_file_aid", 0xC4, tlv.Bytes)
	ExecutableLoadFileVersionNumber = tlv.Primitive("executable_load_file_version_number", 0xCE, tlv.Bytes)
	ExecutableModuleAID             = tlv.Primitive("executable_module_aid", 0x84, tlv.Bytes)
	AssociatedSecurityDomainAID     = tlv.Primitive("associated_security_domain_aid", 0xCC, tlv.Bytes)

	GpRegistryRelatedData = tlv.Constructed("gp_registry_related_data", 0xE3,
		ApplicationAID, LifeCycleState, Privileges, ImplicitSelectionParameter,
		ExecutableLoadFileAID, ExecutableLoadFileVersionNumber, ExecutableModuleAID,
		AssociatedSecurityDomainAID)

	// GetStatusCollection decodes a GET STATUS response in the TLV format.
	GetStatusCollection = tlv.MustCollection("get_status", GpRegistryRelatedData)
)

// Search criteria of GET STATUS.
var (
	TagList = tlv.Primitive("tag_list", 0x5C, tlv.Bytes)

	GetStatusCriteria = tlv.MustCollection("get_status_criteria", ApplicationAID, TagList)
)

// DELETE data (GP 2.3 Section 11.2.2.3).
var (
	DeleteKeyIdentifier    = tlv.Primitive("key_identifier", 0xD0, tlv.Uint8)
	DeleteKeyVersion       = tlv.Primitive("key_version_number", 0xD2, tlv.Uint8)
	DeleteToken            = tlv.Primitive("delete_token", 0x9E, tlv.Bytes)
	ControlReferenceDelete = tlv.Constructed("control_reference_template_for_digital_signature", 0xB6,
		tlv.Primitive("security_domain_identification_number", 0x42, tlv.Bytes),
		tlv.Primitive("security_domain_image_number", 0x45, tlv.Bytes),
		tlv.Primitive("application_provider_identifier", 0x5F20, tlv.Bytes),
		tlv.Primitive("token_identifier", 0x93, tlv.Bytes))

	DeleteCollection = tlv.MustCollection("delete",
		ApplicationAID, DeleteKeyIdentifier, DeleteKeyVersion, ControlReferenceDelete, DeleteToken)
)

// StatusWords describes the status words of the card manager.
var StatusWords = map[uint16]string{
	0x6200: "Logical Channel already closed",
	0x6283: "Card Life Cycle State is CARD_LOCKED",
	0x6310: "More data available",
	0x6400: "No specific diagnosis",
	0x6581: "Memory failure",
	0x6700: "Wrong length in Lc",
	0x6881: "Logical channel not supported or active",
	0x6882: "Secure messaging not supported",
	0x6982: "Security Status not satisfied",
	0x6985: "Conditions of use not satisfied",
	0x6A80: "Incorrect values in command data",
	0x6A81: "Function not supported e.g. card Life Cycle State is CARD_LOCKED",
	0x6A82: "Application not found",
	0x6A84: "Not enough memory space",
	0x6A86: "Incorrect P1 P2",
	0x6A88: "Referenced data not found",
	0x6D00: "Invalid instruction",
	0x6E00: "Invalid class",
	0x9484: "Algorithm not supported",
	0x9485: "Invalid key check value",
}
