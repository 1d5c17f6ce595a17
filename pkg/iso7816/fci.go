package iso7816

import (
	"fmt"
	"reflect"

	"github.com/moov-io/bertlv"

	"github.com/gregLibert/apdu-trace/pkg/tlv"
)

// What a card returns to SELECT depends on the control bits of P2: an FCI
// template ('6F') wrapping an FCP ('62') and/or FMD ('64'), a bare FCP or
// FMD, or nothing. Some cards answer FCI requests with the FCP content
// unwrapped, and proprietary data starts with a tag from 'C0' on.

// FCP is the File Control Parameters template, with the fields ETSI TS 102
// 221 adds for UICC files.
type FCP struct {
	FileSize               uint64           `tlv:"80,file_size"`
	TotalFileSize          uint64           `tlv:"81,total_file_size"`
	FileDescriptor         tlv.HexBytes     `tlv:"82,file_descriptor"`
	FileID                 tlv.HexBytes     `tlv:"83,file_identifier"`
	DFName                 tlv.HexBytes     `tlv:"84,df_name"`
	ProprietaryInfo        tlv.HexBytes     `tlv:"85,proprietary_information"`
	SecurityAttrProp       tlv.HexBytes     `tlv:"86,security_attributes_proprietary"`
	SFI                    tlv.HexBytes     `tlv:"88,short_file_identifier"`
	LifeCycleStatus        tlv.HexBytes     `tlv:"8A,life_cycle_status"`
	SecurityAttrReferenced tlv.HexBytes     `tlv:"8B,security_attributes_referenced"`
	SecurityAttrCompact    tlv.HexBytes     `tlv:"8C,security_attributes_compact"`
	SecurityAttrExpanded   tlv.HexBytes     `tlv:"AB,security_attributes_expanded"`
	UICCProprietary        *UICCProprietary `tlv:"A5,proprietary_template"`
	PINStatus              tlv.HexBytes     `tlv:"C6,pin_status_template"`

	Unknown []bertlv.TLV `tlv:",unknown"`
}

// UICCProprietary is the proprietary template ('A5') of a UICC FCP.
type UICCProprietary struct {
	Characteristics  tlv.HexBytes `tlv:"80,uicc_characteristics"`
	PowerConsumption tlv.HexBytes `tlv:"81,application_power_consumption"`
	MinClock         tlv.HexBytes `tlv:"82,minimum_application_clock_frequency"`
	AvailableMemory  uint64       `tlv:"83,available_memory"`
	FileDetails      tlv.HexBytes `tlv:"84,file_details"`
	ReservedFileSize uint64       `tlv:"85,reserved_file_size"`

	Unknown []bertlv.TLV `tlv:",unknown"`
}

// FMD is the File Management Data template.
type FMD struct {
	ApplicationID    tlv.HexBytes `tlv:"84,application_identifier"`
	ApplicationLabel string       `tlv:"50,application_label"`
	Discretionary    tlv.HexBytes `tlv:"53,discretionary_data"`
	DiscretionaryDOs tlv.HexBytes `tlv:"73,discretionary_template"`

	Unknown []bertlv.TLV `tlv:",unknown"`
}

// SelectResponse is the decoded data field of a SELECT response.
type SelectResponse struct {
	FCP *FCP
	FMD *FMD

	// Proprietary holds data that is not BER-TLV from '62'/'64'/'6F'.
	Proprietary tlv.HexBytes
}

// AID returns the DF name from the FCP, else the application identifier of
// the FMD.
func (r *SelectResponse) AID() []byte {
	if r.FCP != nil && len(r.FCP.DFName) > 0 {
		return r.FCP.DFName
	}
	if r.FMD != nil {
		return r.FMD.ApplicationID
	}
	return nil
}

// Label returns the application label of the FMD.
func (r *SelectResponse) Label() string {
	if r.FMD != nil {
		return r.FMD.ApplicationLabel
	}
	return ""
}

const (
	tagFCI = "6F"
	tagFCP = "62"
	tagFMD = "64"
)

// ParseSelectResponse decodes the data field of a SELECT response sent with
// the given control. It returns nil for empty data and ReturnNoData.
func ParseSelectResponse(data []byte, control SelectionControl) (*SelectResponse, error) {
	if len(data) == 0 || control == ReturnNoData {
		return nil, nil
	}
	if data[0] >= 0xC0 {
		return &SelectResponse{Proprietary: data}, nil
	}

	objs, err := bertlv.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("select response: %w: %v", tlv.ErrMalformedLength, err)
	}

	r := &SelectResponse{}
	switch control {
	case ReturnFCP:
		r.FCP = &FCP{}
		return r, unmarshalTemplate(objs, tagFCP, r.FCP, true)
	case ReturnFMD:
		r.FMD = &FMD{}
		return r, unmarshalTemplate(objs, tagFMD, r.FMD, true)
	}

	if fci := findObject(objs, tagFCI); fci != nil {
		objs = fci.TLVs
	}
	fcp, fmd := &FCP{}, &FMD{}
	if err := unmarshalTemplate(objs, tagFCP, fcp, false); err != nil {
		return nil, err
	}
	if err := unmarshalTemplate(objs, tagFMD, fmd, false); err != nil {
		return nil, err
	}
	if findObject(objs, tagFCP) == nil && findObject(objs, tagFMD) == nil {
		// Unwrapped content: FCP fields first, the rest offered to the FMD.
		if err := tlv.UnmarshalTLVs(objs, fcp); err != nil {
			return nil, err
		}
		if err := tlv.UnmarshalTLVs(fcp.Unknown, fmd); err != nil {
			return nil, err
		}
		fcp.Unknown = nil
	}
	r.FCP, r.FMD = nonZero(fcp), nonZero(fmd)
	return r, nil
}

func findObject(objs []bertlv.TLV, tag string) *bertlv.TLV {
	for i := range objs {
		if equalTag(objs[i].Tag, tag) {
			return &objs[i]
		}
	}
	return nil
}

func equalTag(a, b string) bool {
	ta, errA := tlv.ParseTag(a)
	tb, errB := tlv.ParseTag(b)
	return errA == nil && errB == nil && ta == tb
}

func unmarshalTemplate(objs []bertlv.TLV, tag string, v any, mandatory bool) error {
	obj := findObject(objs, tag)
	if obj == nil {
		if mandatory {
			return fmt.Errorf("select response: template '%s' missing", tag)
		}
		return nil
	}
	if err := tlv.UnmarshalTLVs(obj.TLVs, v); err != nil {
		return fmt.Errorf("select response '%s': %w", tag, err)
	}
	return nil
}

func nonZero[T any](v *T) *T {
	if reflect.ValueOf(v).Elem().IsZero() {
		return nil
	}
	return v
}
