package gp

import (
	"fmt"
	"strings"

	"github.com/gregLibert/apdu-trace/pkg/apdu"
	"github.com/gregLibert/apdu-trace/pkg/tlv"
)

// SWMoreData signals that GET STATUS has further entries.
const SWMoreData = 0x6310

// Commands returns the GlobalPlatform card management table.
func Commands() apdu.Table {
	prop := apdu.Proprietary
	return apdu.Table{
		Name: "gp",
		Definitions: []*apdu.Definition{
			{Name: "GET DATA", Class: apdu.AnyClass, INS: 0xCA, Case: apdu.Case2, Decode: decodeGetData},
			{Name: "GET DATA", Class: apdu.AnyClass, INS: 0xCB, Case: apdu.Case4, Decode: decodeGetData},
			{Name: "GET STATUS", Class: prop, INS: 0xF2, Params: apdu.P2Bits(0x02), Case: apdu.Case4, Decode: decodeGetStatus},
			{Name: "SET STATUS", Class: prop, INS: 0xF0, Case: apdu.Case3, Decode: decodeSetStatus},
			{Name: "STORE DATA", Class: prop, INS: 0xE2, Case: apdu.Case4, Decode: decodeStoreData},
			{Name: "PUT KEY", Class: prop, INS: 0xD8, Case: apdu.Case4, Decode: decodePutKey},
			{Name: "DELETE", Class: prop, INS: 0xE4, Case: apdu.Case4, Decode: decodeDelete},
			{Name: "INSTALL", Class: prop, INS: 0xE6, Case: apdu.Case4, Decode: decodeInstall},
			{Name: "LOAD", Class: prop, INS: 0xE8, Case: apdu.Case4, Decode: apdu.DecodeRaw},
			{Name: "INITIALIZE UPDATE", Class: prop, INS: 0x50, Case: apdu.Case4, Decode: decodeInitializeUpdate},
			{Name: "EXTERNAL AUTHENTICATE", Class: prop, INS: 0x82, Case: apdu.Case3, Decode: decodeExternalAuthenticate},
		},
	}
}

func orNil(b []byte) tlv.HexBytes {
	if len(b) == 0 {
		return nil
	}
	return tlv.HexBytes(append([]byte(nil), b...))
}

// describe writes a report made of extra header lines and the decoded data
// objects of both directions.
func describe(c *apdu.Command, lines []string, cmd, resp tlv.Elements) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "=== %s ===\n", c.Name)
	for _, l := range lines {
		sb.WriteString("    + " + l + "\n")
	}
	body := apdu.TLV{Command: cmd, Response: resp}.Describe(c)
	// Skip the title line already written above.
	if i := strings.IndexByte(body, '\n'); i >= 0 {
		sb.WriteString(body[i+1:])
	}
	return strings.TrimRight(sb.String(), "\n")
}

// GetData is the payload of GET DATA.
type GetData struct {
	apdu.Decoded
	Tag      string       `json:"tag"`
	Command  tlv.Elements `json:"command,omitempty"`
	Response tlv.Elements `json:"response,omitempty"`
}

// decodeGetData decodes the object named by P1P2 with the collections of
// the selected application, or with the security domain ones.
func decodeGetData(c *apdu.Command) (apdu.Payload, error) {
	h := c.Header()
	tag := uint16(h.P1)<<8 | uint16(h.P2)
	p := GetData{Tag: fmt.Sprintf("%04X", tag)}

	cmdColl, respColl := (*tlv.Collection)(nil), DataCollection
	if app := c.App; app != nil && app.GetDataResponse != nil {
		cmdColl, respColl = app.GetDataCommand, app.GetDataResponse
	}
	if tag == 0x2F00 {
		respColl = ListOfApplications
	}

	var err error
	if cmdColl != nil && len(c.Data()) > 0 {
		if p.Command, err = cmdColl.Decode(c.Data()); err != nil {
			return nil, fmt.Errorf("command data: %w", err)
		}
	}
	if c.Succeeded() && len(c.Response()) > 0 {
		if p.Response, err = respColl.Decode(c.Response(), tlv.AllowUnknown()); err != nil {
			return nil, fmt.Errorf("response data: %w", err)
		}
	}
	return p, nil
}

func (p GetData) Describe(c *apdu.Command) string {
	return describe(c, []string{"Tag:     " + p.Tag}, p.Command, p.Response)
}

// GetStatus is the payload of GET STATUS in the TLV format.
type GetStatus struct {
	apdu.Decoded
	Subset   string       `json:"subset"`
	Next     bool         `json:"next_occurrence,omitempty"`
	Criteria tlv.Elements `json:"criteria,omitempty"`
	Entries  tlv.Elements `json:"entries,omitempty"`
	More     bool         `json:"more,omitempty"`
}

func decodeGetStatus(c *apdu.Command) (apdu.Payload, error) {
	h := c.Header()
	p := GetStatus{
		Subset: StatusSubset(h.P1).String(),
		Next:   h.P2&0x01 != 0,
		More:   c.SW() == SWMoreData,
	}
	var err error
	if len(c.Data()) > 0 {
		if p.Criteria, err = GetStatusCriteria.Decode(c.Data()); err != nil {
			return nil, fmt.Errorf("search criteria: %w", err)
		}
	}
	if (c.Succeeded() || p.More) && len(c.Response()) > 0 {
		if p.Entries, err = GetStatusCollection.Decode(c.Response()); err != nil {
			return nil, fmt.Errorf("registry data: %w", err)
		}
	}
	return p, nil
}

func (p GetStatus) Describe(c *apdu.Command) string {
	lines := []string{"Subset:  " + p.Subset, fmt.Sprintf("Entries: %d", len(p.Entries))}
	if p.More {
		lines = append(lines, "More:    yes")
	}
	return describe(c, lines, p.Criteria, p.Entries)
}

// SetStatus is the payload of SET STATUS.
type SetStatus struct {
	apdu.Decoded
	Scope string       `json:"scope"`
	State string       `json:"state"`
	AID   tlv.HexBytes `json:"aid,omitempty"`
}

func decodeSetStatus(c *apdu.Command) (apdu.Payload, error) {
	h := c.Header()
	scope := SetStatusScope(h.P1)
	p := SetStatus{Scope: scope.String(), AID: orNil(c.Data())}
	if scope == 0x80 {
		p.State = CardLifeCycle(h.P2).String()
	} else {
		p.State = LifeCycle(h.P2).String()
	}
	return p, nil
}

// StoreDataParams is the P1 bit field of STORE DATA (GP 2.3 Table 11-89).
type StoreDataParams struct {
	LastBlock  bool   `json:"last_block"`
	Encryption string `json:"encryption"`
	Structure  string `json:"structure"`
	Response   string `json:"response"`
}

var (
	storeEncryption = [4]string{"none", "application_dependent", "rfu", "encrypted"}
	storeStructure  = [4]string{"none", "dgi", "ber_tlv", "rfu"}
)

// ParseStoreDataP1 splits the P1 of STORE DATA.
func ParseStoreDataP1(p1 byte) StoreDataParams {
	p := StoreDataParams{
		LastBlock:  p1&0x80 != 0,
		Encryption: storeEncryption[p1>>5&0x03],
		Structure:  storeStructure[p1>>3&0x03],
		Response:   "not_expected",
	}
	if p1&0x01 != 0 {
		p.Response = "may_be_returned"
	}
	return p
}

// StoreData is the payload of STORE DATA.
type StoreData struct {
	apdu.Decoded
	Params   StoreDataParams `json:"params"`
	Block    uint8           `json:"block_number"`
	Data     tlv.HexBytes    `json:"data,omitempty"`
	Command  tlv.Elements    `json:"command,omitempty"`
	Response tlv.Elements    `json:"response,omitempty"`
}

// decodeStoreData decodes DGI blocks as key loading data and BER-TLV
// blocks with the collections of the selected application. Encrypted
// blocks stay raw.
func decodeStoreData(c *apdu.Command) (apdu.Payload, error) {
	h := c.Header()
	p := StoreData{Params: ParseStoreDataP1(h.P1), Block: h.P2}
	app := c.App

	var coll *tlv.Collection
	switch {
	case p.Params.Encryption == "encrypted":
	case p.Params.Structure == "dgi":
		coll = KeyLoading
	case p.Params.Structure == "ber_tlv" && app != nil:
		coll = app.StoreData
	}

	var err error
	if coll != nil && len(c.Data()) > 0 {
		opts := []tlv.DecodeOption{}
		if coll == KeyLoading {
			opts = append(opts, tlv.AllowUnknown())
		}
		if p.Command, err = coll.Decode(c.Data(), opts...); err != nil {
			return nil, fmt.Errorf("command data: %w", err)
		}
	} else {
		p.Data = orNil(c.Data())
	}

	if app != nil && app.StoreDataResponse != nil && c.Succeeded() && len(c.Response()) > 0 {
		if p.Response, err = app.StoreDataResponse.Decode(c.Response()); err != nil {
			return nil, fmt.Errorf("response data: %w", err)
		}
	}
	return p, nil
}

func (p StoreData) Describe(c *apdu.Command) string {
	lines := []string{
		fmt.Sprintf("Block:   %d (last: %t)", p.Block, p.Params.LastBlock),
		"Format:  " + p.Params.Structure + ", encryption " + p.Params.Encryption,
	}
	if len(p.Data) > 0 {
		lines = append(lines, fmt.Sprintf("Data:    %X", []byte(p.Data)))
	}
	return describe(c, lines, p.Command, p.Response)
}

// splitLV cuts one length-prefixed field off b.
func splitLV(b []byte, field string) (tlv.HexBytes, []byte, error) {
	if len(b) == 0 {
		return nil, nil, fmt.Errorf("%w: missing %s", tlv.ErrMalformedLength, field)
	}
	n := int(b[0])
	if len(b) < 1+n {
		return nil, nil, fmt.Errorf("%w: %s needs %d bytes, %d left", tlv.ErrMalformedLength, field, n, len(b)-1)
	}
	return orNil(b[1 : 1+n]), b[1+n:], nil
}

// KeyComponent is one key data block of PUT KEY in the basic format.
type KeyComponent struct {
	Type     KeyType      `json:"key_type"`
	KeyBlock tlv.HexBytes `json:"kcb"`
	KCV      tlv.HexBytes `json:"kcv,omitempty"`
}

// PutKey is the payload of PUT KEY (GP 2.3 Section 11.8).
type PutKey struct {
	apdu.Decoded
	OldKVN       uint8          `json:"old_key_version_number"`
	KeyID        uint8          `json:"key_identifier"`
	MultipleKeys bool           `json:"multiple_keys,omitempty"`
	NewKVN       uint8          `json:"key_version_number"`
	Keys         []KeyComponent `json:"keys"`
	Confirmation tlv.HexBytes   `json:"confirmation,omitempty"`
}

func decodePutKey(c *apdu.Command) (apdu.Payload, error) {
	h := c.Header()
	p := PutKey{
		OldKVN:       h.P1,
		KeyID:        h.P2 & 0x7F,
		MultipleKeys: h.P2&0x80 != 0,
		Confirmation: orNil(c.Response()),
	}
	data := c.Data()
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: missing key version number", tlv.ErrMalformedLength)
	}
	p.NewKVN, data = data[0], data[1:]

	for len(data) > 0 {
		k := KeyComponent{Type: KeyType(data[0])}
		if k.Type == KeyTypeNotAvailable {
			return nil, fmt.Errorf("%w: extended key format", tlv.ErrInvalidValue)
		}
		var err error
		if k.KeyBlock, data, err = splitLV(data[1:], "key data"); err != nil {
			return nil, err
		}
		if k.KCV, data, err = splitLV(data, "key check value"); err != nil {
			return nil, err
		}
		p.Keys = append(p.Keys, k)
	}
	return p, nil
}

// Delete is the payload of DELETE.
type Delete struct {
	apdu.Decoded
	RelatedObjects bool         `json:"delete_related_objects,omitempty"`
	Command        tlv.Elements `json:"command,omitempty"`
	Confirmation   tlv.HexBytes `json:"confirmation,omitempty"`
}

func decodeDelete(c *apdu.Command) (apdu.Payload, error) {
	p := Delete{
		RelatedObjects: c.Header().P2&0x80 != 0,
		Confirmation:   orNil(c.Response()),
	}
	var err error
	if p.Command, err = DeleteCollection.Decode(c.Data()); err != nil {
		return nil, fmt.Errorf("command data: %w", err)
	}
	return p, nil
}

func (p Delete) Describe(c *apdu.Command) string {
	return describe(c, []string{fmt.Sprintf("Related: %t", p.RelatedObjects)}, p.Command, nil)
}

var installPurpose = flagBits{"more_commands", "for_registry_update", "for_personalization",
	"for_extradition", "for_make_selectable", "for_install", "for_load"}

var (
	loadFields    = []string{"load_file_aid", "security_domain_aid", "load_file_data_block_hash", "load_parameters", "load_token"}
	installFields = []string{"executable_load_file_aid", "executable_module_aid", "application_aid", "privileges", "install_parameters", "install_token"}
	moveFields    = []string{"security_domain_aid", "", "application_aid", "privileges", "parameters", "token"}
)

// InstallField is one length-prefixed field of INSTALL.
type InstallField struct {
	Name  string       `json:"name"`
	Value tlv.HexBytes `json:"value"`
}

// Install is the payload of INSTALL (GP 2.3 Section 11.5).
type Install struct {
	apdu.Decoded
	Purpose    Flags          `json:"purpose"`
	Fields     []InstallField `json:"fields,omitempty"`
	Privileges *Flags         `json:"privileges,omitempty"`
}

func decodeInstall(c *apdu.Command) (apdu.Payload, error) {
	v, err := flagsCodec(installPurpose).Decode([]byte{c.Header().P1})
	if err != nil {
		return nil, err
	}
	p := Install{Purpose: v.(Flags)}

	names := installFields
	switch {
	case p.Purpose.Has("for_load"):
		names = loadFields
	case p.Purpose.Has("for_extradition"), p.Purpose.Has("for_registry_update"):
		names = moveFields
	}

	data := c.Data()
	for _, name := range names {
		if len(data) == 0 {
			break
		}
		var value tlv.HexBytes
		if value, data, err = splitLV(data, name); err != nil {
			return nil, err
		}
		if len(value) == 0 || name == "" {
			continue
		}
		p.Fields = append(p.Fields, InstallField{Name: name, Value: value})
		if name == "privileges" {
			pv, err := privileges.Decode(value)
			if err != nil {
				return nil, fmt.Errorf("privileges: %w", err)
			}
			f := pv.(Flags)
			p.Privileges = &f
		}
	}
	if len(data) > 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", tlv.ErrMalformedLength, len(data))
	}
	return p, nil
}

// InitializeUpdate is the payload of INITIALIZE UPDATE, split for SCP02
// and SCP03 responses.
type InitializeUpdate struct {
	apdu.Decoded
	KeyVersion          uint8        `json:"key_version_number"`
	KeyID               uint8        `json:"key_identifier"`
	HostChallenge       tlv.HexBytes `json:"host_challenge"`
	DiversificationData tlv.HexBytes `json:"key_diversification_data,omitempty"`
	CardKeyVersion      uint8        `json:"card_key_version_number,omitempty"`
	SCP                 uint8        `json:"scp,omitempty"`
	SCPParameter        uint8        `json:"scp_i,omitempty"`
	SequenceCounter     tlv.HexBytes `json:"sequence_counter,omitempty"`
	CardChallenge       tlv.HexBytes `json:"card_challenge,omitempty"`
	CardCryptogram      tlv.HexBytes `json:"card_cryptogram,omitempty"`
}

func decodeInitializeUpdate(c *apdu.Command) (apdu.Payload, error) {
	h := c.Header()
	p := InitializeUpdate{KeyVersion: h.P1, KeyID: h.P2, HostChallenge: orNil(c.Data())}

	r := c.Response()
	if !c.Succeeded() || len(r) == 0 {
		return p, nil
	}
	if len(r) < 28 {
		return nil, fmt.Errorf("%w: response of %d bytes", tlv.ErrInvalidValue, len(r))
	}
	p.DiversificationData = orNil(r[:10])
	p.CardKeyVersion = r[10]
	p.SCP = r[11]
	switch {
	case p.SCP == 0x02 && len(r) == 28:
		p.SequenceCounter = orNil(r[12:14])
		p.CardChallenge = orNil(r[14:20])
		p.CardCryptogram = orNil(r[20:28])
	case p.SCP == 0x03 && (len(r) == 29 || len(r) == 32):
		p.SCPParameter = r[12]
		p.CardChallenge = orNil(r[13:21])
		p.CardCryptogram = orNil(r[21:29])
		p.SequenceCounter = orNil(r[29:])
	default:
		return nil, fmt.Errorf("%w: SCP%02X response of %d bytes", tlv.ErrInvalidValue, p.SCP, len(r))
	}
	return p, nil
}

var securityLevel = flagsCodec(flagBits{2: "r_encryption", 3: "r_mac", 6: "c_decryption", 7: "c_mac"})

// ExternalAuthenticate is the payload of EXTERNAL AUTHENTICATE.
type ExternalAuthenticate struct {
	apdu.Decoded
	SecurityLevel  Flags        `json:"security_level"`
	HostCryptogram tlv.HexBytes `json:"host_cryptogram"`
	MAC            tlv.HexBytes `json:"mac,omitempty"`
}

func decodeExternalAuthenticate(c *apdu.Command) (apdu.Payload, error) {
	v, err := securityLevel.Decode([]byte{c.Header().P1})
	if err != nil {
		return nil, err
	}
	data := c.Data()
	if len(data) < 8 {
		return nil, fmt.Errorf("%w: want at least 8 bytes of cryptogram, got %d", tlv.ErrInvalidValue, len(data))
	}
	return ExternalAuthenticate{
		SecurityLevel:  v.(Flags),
		HostCryptogram: orNil(data[:8]),
		MAC:            orNil(data[8:]),
	}, nil
}
