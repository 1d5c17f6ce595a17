package fs

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/gregLibert/apdu-trace/pkg/iso7816"
)

// Tree is the file system of one card profile: the MF with its static
// children plus the application DFs registered at setup.
type Tree struct {
	mf *File
}

// NewTree links mf and the ADFs of apps into one tree. Sibling File IDs,
// SFIs and application AIDs must be unique.
func NewTree(mf *File, apps ...*Application) (*Tree, error) {
	if mf == nil || mf.Type != TypeMF {
		return nil, fmt.Errorf("fs: tree root must be an MF")
	}
	for _, app := range apps {
		for _, c := range mf.children {
			if c.Type == TypeADF && bytes.Equal(c.AID, app.AID) {
				return nil, fmt.Errorf("%w: AID %X registered twice", ErrDuplicateFile, app.AID)
			}
		}
		mf.children = append(mf.children, ADF(app))
	}
	if err := mf.link(); err != nil {
		return nil, err
	}
	return &Tree{mf: mf}, nil
}

// MustTree is like NewTree but panics on error.
func MustTree(mf *File, apps ...*Application) *Tree {
	t, err := NewTree(mf, apps...)
	if err != nil {
		panic(err)
	}
	return t
}

// MF returns the root.
func (t *Tree) MF() *File {
	return t.mf
}

// ADFs returns the application DFs known to the tree.
func (t *Tree) ADFs() []*File {
	var out []*File
	for _, c := range t.mf.children {
		if c.Type == TypeADF {
			out = append(out, c)
		}
	}
	return out
}

// ADFByAID finds the application selected by aid. An exact match wins;
// otherwise the first ADF whose AID is a prefix of aid, or extends it,
// is returned.
func (t *Tree) ADFByAID(aid []byte) (*File, bool) {
	adfs := t.ADFs()
	for _, f := range adfs {
		if bytes.Equal(f.AID, aid) {
			return f, true
		}
	}
	for _, f := range adfs {
		if f.MatchesAID(aid) {
			return f, true
		}
	}
	return nil, false
}

// Select resolves a SELECT target relative to cur, which is the currently
// selected file (nil stands for the MF). data is the command data field.
func (t *Tree) Select(cur *File, method iso7816.SelectionMethod, data []byte) (*File, error) {
	if cur == nil {
		cur = t.mf
	}
	df := cur.DF()

	switch method {
	case iso7816.SelectByFileID:
		if len(data) == 0 {
			return t.mf, nil
		}
		fid, err := singleFID(data)
		if err != nil {
			return nil, err
		}
		return t.byFID(df, fid)

	case iso7816.SelectChildDF, iso7816.SelectEFUnderCurrentDF:
		fid, err := singleFID(data)
		if err != nil {
			return nil, err
		}
		c, ok := df.Child(fid)
		if !ok || c.Type.IsDF() != (method == iso7816.SelectChildDF) {
			return nil, fmt.Errorf("%w: %s under %s", ErrFileNotFound, fid, df.Name)
		}
		return c, nil

	case iso7816.SelectParentDF:
		if df.parent == nil {
			return nil, fmt.Errorf("%w: MF has no parent", ErrFileNotFound)
		}
		return df.parent, nil

	case iso7816.SelectByDFName:
		f, ok := t.ADFByAID(data)
		if !ok {
			return nil, fmt.Errorf("%w: AID %s", ErrFileNotFound, hex.EncodeToString(data))
		}
		return f, nil

	case iso7816.SelectPathFromMF:
		fids, err := splitPath(data)
		if err != nil {
			return nil, err
		}
		if len(fids) > 0 && fids[0] == FIDMF {
			fids = fids[1:]
		}
		start := t.mf
		if len(fids) > 0 && fids[0] == FIDCurrentADF {
			if start = cur.ADF(); start == nil {
				return nil, fmt.Errorf("%w: no current ADF", ErrFileNotFound)
			}
			fids = fids[1:]
		}
		return walk(start, fids)

	case iso7816.SelectPathFromCurrentDF:
		fids, err := splitPath(data)
		if err != nil {
			return nil, err
		}
		return walk(df, fids)
	}

	return nil, fmt.Errorf("%w: unsupported selection method %02X", ErrFileNotFound, byte(method))
}

// byFID applies the search order of ETSI TS 102 221 Section 8.4.1: the
// current DF and its children, the parent DF and its children.
func (t *Tree) byFID(df *File, fid FID) (*File, error) {
	switch fid {
	case FIDMF:
		return t.mf, nil
	case FIDCurrentADF:
		if adf := df.ADF(); adf != nil {
			return adf, nil
		}
		return nil, fmt.Errorf("%w: no current ADF", ErrFileNotFound)
	}

	if df.FID == fid && df.Type != TypeADF {
		return df, nil
	}
	if c, ok := df.Child(fid); ok {
		return c, nil
	}
	if p := df.parent; p != nil {
		if p.FID == fid {
			return p, nil
		}
		if c, ok := p.Child(fid); ok {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: %s from %s", ErrFileNotFound, fid, df.Name)
}

func walk(from *File, fids []FID) (*File, error) {
	cur := from
	for _, fid := range fids {
		c, ok := cur.Child(fid)
		if !ok {
			return nil, fmt.Errorf("%w: %s under %s", ErrFileNotFound, fid, cur.Name)
		}
		cur = c
	}
	return cur, nil
}

func singleFID(data []byte) (FID, error) {
	if len(data) != 2 {
		return 0, fmt.Errorf("%w: file ID must be 2 bytes, got %X", ErrFileNotFound, data)
	}
	return FID(binary.BigEndian.Uint16(data)), nil
}

func splitPath(data []byte) ([]FID, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("%w: odd path length %X", ErrFileNotFound, data)
	}
	out := make([]FID, 0, len(data)/2)
	for i := 0; i < len(data); i += 2 {
		out = append(out, FID(binary.BigEndian.Uint16(data[i:])))
	}
	return out, nil
}

// AddDynamic attaches a file discovered while tracing under parent and
// marks it for removal by DropDynamic.
func (t *Tree) AddDynamic(parent *File, f *File) *File {
	if parent == nil {
		parent = t.mf
	}
	f.Dynamic = true
	f.parent = parent
	parent.children = append(parent.children, f)
	return f
}

// DropDynamic removes every file added with AddDynamic.
func (t *Tree) DropDynamic() {
	dropDynamic(t.mf)
}

func dropDynamic(f *File) {
	kept := f.children[:0]
	for _, c := range f.children {
		if c.Dynamic {
			continue
		}
		dropDynamic(c)
		kept = append(kept, c)
	}
	for i := len(kept); i < len(f.children); i++ {
		f.children[i] = nil
	}
	f.children = kept
}

// TypeFromDescriptor maps the first byte of an FCP file descriptor ('82')
// to a FileType, per ETSI TS 102 221 Table 11.5.
func TypeFromDescriptor(b byte) FileType {
	switch {
	case b&0xBF == 0x38:
		return TypeDF
	case b == 0x39:
		return TypeBERTLV
	}
	switch b & 0x07 {
	case 0x01:
		return TypeTransparent
	case 0x02:
		return TypeLinearFixed
	case 0x06:
		return TypeCyclic
	}
	return TypeUnknown
}
