package tlv

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/moov-io/bertlv"
)

// Reports list one data object per line:
//
//	    - prefix.name (TAG): value
//
// Constructed objects get a line of their own and prefix their children with
// their name.

// WriteNodes writes the report of a decoded tree.
func WriteNodes(sb *strings.Builder, prefix string, nodes []Node) {
	var lines []string
	nodeLines(&lines, prefix, nodes)
	writeLines(sb, lines)
}

func nodeLines(lines *[]string, prefix string, nodes []Node) {
	for _, n := range nodes {
		label := fmt.Sprintf("%s.%s (%s)", prefix, n.Name(), n.Tag)
		switch {
		case n.Desc != nil && n.Desc.IsConstructed():
			*lines = append(*lines, "    - "+label)
			nodeLines(lines, prefix+"."+n.Name(), n.Children)
		case n.Desc != nil && n.Value != nil:
			*lines = append(*lines, fmt.Sprintf("    - %s: %s", label, formatValue(n.Value)))
		default:
			*lines = append(*lines, fmt.Sprintf("    - %s: %X", label, n.Raw))
		}
	}
}

// WriteFields writes the report of a struct filled by Unmarshal. Zero
// fields are left out; nil pointers write nothing.
func WriteFields(sb *strings.Builder, prefix string, v any) {
	var lines []string
	fieldLines(&lines, prefix, reflect.ValueOf(v))
	writeLines(sb, lines)
}

func fieldLines(lines *[]string, prefix string, rv reflect.Value) {
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return
	}
	l, err := layoutOf(rv.Type())
	if err != nil {
		return
	}

	for _, f := range l.fields {
		fv := rv.Field(f.index)
		if fv.IsZero() {
			continue
		}
		label := fmt.Sprintf("%s.%s (%s)", prefix, f.name, f.tag)
		if fv.Kind() == reflect.Slice && fv.Type().Elem().Kind() != reflect.Uint8 {
			for i := 0; i < fv.Len(); i++ {
				fieldLine(lines, fmt.Sprintf("%s[%d]", prefix+"."+f.name, i), label, fv.Index(i))
			}
			continue
		}
		fieldLine(lines, prefix+"."+f.name, label, fv)
	}

	if l.unknown >= 0 {
		for _, obj := range rv.Field(l.unknown).Interface().([]bertlv.TLV) {
			*lines = append(*lines, fmt.Sprintf("    - %s.unknown (%s): %X", prefix, strings.ToUpper(obj.Tag), rawValue(obj)))
		}
	}
}

func fieldLine(lines *[]string, path, label string, fv reflect.Value) {
	if _, ok := fv.Interface().(fmt.Stringer); !ok && isStruct(fv) {
		*lines = append(*lines, "    - "+label)
		fieldLines(lines, path, fv)
		return
	}
	*lines = append(*lines, fmt.Sprintf("    - %s: %s", label, formatValue(fv.Interface())))
}

func isStruct(v reflect.Value) bool {
	t := v.Type()
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Kind() == reflect.Struct
}

func writeLines(sb *strings.Builder, lines []string) {
	if len(lines) == 0 {
		return
	}
	if sb.Len() > 0 {
		sb.WriteString("\n")
	}
	sb.WriteString(strings.Join(lines, "\n"))
}

func formatValue(v any) string {
	switch x := v.(type) {
	case HexBytes:
		return strings.ToUpper(x.String())
	case []byte:
		return fmt.Sprintf("%X", x)
	case string:
		return fmt.Sprintf("%q", x)
	default:
		return fmt.Sprintf("%v", x)
	}
}

// MakeSafeASCII replaces every non-printable byte with a dot.
func MakeSafeASCII(data []byte) string {
	return strings.Map(func(r rune) rune {
		if r >= 32 && r <= 126 {
			return r
		}
		return '.'
	}, string(data))
}
