package tlv

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/moov-io/bertlv"
)

// The struct mapper fills Go structs from templates of fixed layout, such as
// the FCP a card returns to SELECT. A field tagged `tlv:"84,df_name"`
// receives the object with tag '84'; the optional second part names the
// field in reports. Supported field types:
//
//	[]byte, HexBytes    raw value
//	string              ASCII value
//	uint8 .. uint64     big-endian unsigned value
//	struct, *struct     constructed object
//	[]T                 repeated object of one of the above
//	Unmarshaler         custom decoding of the raw value
//
// A []bertlv.TLV field tagged `tlv:",unknown"` collects the objects no field
// claimed.

// Unmarshaler decodes the raw value of an object into itself.
type Unmarshaler interface {
	UnmarshalTLV(value []byte) error
}

var (
	unmarshalerType = reflect.TypeOf((*Unmarshaler)(nil)).Elem()
	tlvsType        = reflect.TypeOf([]bertlv.TLV(nil))
)

type mappedField struct {
	index int
	tag   Tag
	name  string
}

type structLayout struct {
	fields  []mappedField
	unknown int // -1 without an unknown field
}

var layouts sync.Map // reflect.Type -> *structLayout

func layoutOf(t reflect.Type) (*structLayout, error) {
	if l, ok := layouts.Load(t); ok {
		return l.(*structLayout), nil
	}

	l := &structLayout{unknown: -1}
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		spec, ok := sf.Tag.Lookup("tlv")
		if !ok || !sf.IsExported() {
			continue
		}
		tagHex, name, _ := strings.Cut(spec, ",")
		if tagHex == "" {
			if name != "unknown" || sf.Type != tlvsType {
				return nil, fmt.Errorf("tlv: %s.%s: bad tag %q", t.Name(), sf.Name, spec)
			}
			l.unknown = i
			continue
		}
		tag, err := ParseTag(tagHex)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", t.Name(), sf.Name, err)
		}
		if name == "" {
			name = sf.Name
		}
		l.fields = append(l.fields, mappedField{index: i, tag: tag, name: name})
	}

	actual, _ := layouts.LoadOrStore(t, l)
	return actual.(*structLayout), nil
}

// Unmarshal decodes BER-TLV data into the struct v points to.
func Unmarshal(data []byte, v any) error {
	objs, err := bertlv.Decode(data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedLength, err)
	}
	return UnmarshalTLVs(objs, v)
}

// UnmarshalTLVs maps already decoded objects into the struct v points to.
func UnmarshalTLVs(objs []bertlv.TLV, v any) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("tlv: unmarshal needs a non-nil struct pointer, got %T", v)
	}
	return unmarshalStruct(objs, rv.Elem())
}

func unmarshalStruct(objs []bertlv.TLV, sv reflect.Value) error {
	l, err := layoutOf(sv.Type())
	if err != nil {
		return err
	}

	var unknown []bertlv.TLV
next:
	for _, obj := range objs {
		tag, err := ParseTag(obj.Tag)
		if err != nil {
			return err
		}
		for _, f := range l.fields {
			if f.tag != tag {
				continue
			}
			if err := setField(sv.Field(f.index), obj); err != nil {
				return fmt.Errorf("%s (%s): %w", f.name, tag, err)
			}
			continue next
		}
		unknown = append(unknown, obj)
	}

	if l.unknown >= 0 && len(unknown) > 0 {
		sv.Field(l.unknown).Set(reflect.ValueOf(unknown))
	}
	return nil
}

func setField(fv reflect.Value, obj bertlv.TLV) error {
	if fv.CanAddr() && fv.Addr().Type().Implements(unmarshalerType) {
		return fv.Addr().Interface().(Unmarshaler).UnmarshalTLV(rawValue(obj))
	}

	switch fv.Kind() {
	case reflect.Slice:
		if fv.Type().Elem().Kind() == reflect.Uint8 {
			fv.SetBytes(append([]byte(nil), rawValue(obj)...))
			return nil
		}
		elem := reflect.New(fv.Type().Elem()).Elem()
		if err := setField(elem, obj); err != nil {
			return err
		}
		fv.Set(reflect.Append(fv, elem))

	case reflect.String:
		fv.SetString(string(obj.Value))

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if len(obj.Value) == 0 || len(obj.Value) > int(fv.Type().Size()) {
			return fmt.Errorf("%w: %d bytes for %s", ErrInvalidValue, len(obj.Value), fv.Type())
		}
		var n uint64
		for _, b := range obj.Value {
			n = n<<8 | uint64(b)
		}
		fv.SetUint(n)

	case reflect.Pointer:
		if fv.Type().Elem().Kind() != reflect.Struct {
			return fmt.Errorf("tlv: unsupported field type %s", fv.Type())
		}
		if fv.IsNil() {
			fv.Set(reflect.New(fv.Type().Elem()))
		}
		return setField(fv.Elem(), obj)

	case reflect.Struct:
		children := obj.TLVs
		if len(children) == 0 && len(obj.Value) > 0 {
			var err error
			if children, err = bertlv.Decode(obj.Value); err != nil {
				return fmt.Errorf("%w: %v", ErrMalformedLength, err)
			}
		}
		return unmarshalStruct(children, fv)

	default:
		return fmt.Errorf("tlv: unsupported field type %s", fv.Type())
	}
	return nil
}

// rawValue returns the value bytes of obj; bertlv keeps only the children
// of constructed objects.
func rawValue(obj bertlv.TLV) []byte {
	if len(obj.TLVs) > 0 {
		if b, err := bertlv.Encode(obj.TLVs); err == nil {
			return b
		}
	}
	return obj.Value
}

// Find returns the value of the first top-level object of data with tag.
func Find(data []byte, tag Tag) ([]byte, error) {
	objs, err := bertlv.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedLength, err)
	}
	for _, obj := range objs {
		if t, err := ParseTag(obj.Tag); err == nil && t == tag {
			return rawValue(obj), nil
		}
	}
	return nil, fmt.Errorf("%w: %s not found", ErrUnknownTag, tag)
}
