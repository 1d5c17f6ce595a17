// Package fs models the hierarchical file system of a UICC: one MF, dedicated
// files, application DFs and elementary files, as catalogued for a card
// profile and extended with files discovered while tracing.
package fs

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/gregLibert/apdu-trace/pkg/tlv"
)

// FILE SYSTEM (ISO/IEC 7816-4 Section 5.3, ETSI TS 102 221 Section 8):
//
// The Master File '3F00' is the root. Dedicated files group other files and
// are addressed by a 2-byte File ID; Application DFs (ADFs) are addressed by
// their AID and sit logically under the MF. The reserved FID '7FFF' refers to
// the ADF of the current application. Elementary files hold data and may also
// carry a 5-bit Short File Identifier (SFI) usable in READ/UPDATE commands.

// ErrFileNotFound is returned when a selection target cannot be resolved.
var ErrFileNotFound = errors.New("fs: file not found")

// ErrDuplicateFile is returned when two siblings share a File ID, SFI or AID.
var ErrDuplicateFile = errors.New("fs: duplicate file")

// FID is a 2-byte File Identifier.
type FID uint16

const (
	FIDMF         FID = 0x3F00
	FIDCurrentADF FID = 0x7FFF
)

// String returns the lower-case hex form, e.g. "7f11".
func (f FID) String() string {
	return fmt.Sprintf("%04x", uint16(f))
}

// FileType distinguishes the structures of ETSI TS 102 221 Section 8.
type FileType int

const (
	TypeUnknown FileType = iota
	TypeMF
	TypeDF
	TypeADF
	TypeTransparent
	TypeLinearFixed
	TypeCyclic
	TypeBERTLV
)

func (t FileType) String() string {
	switch t {
	case TypeMF:
		return "MF"
	case TypeDF:
		return "DF"
	case TypeADF:
		return "ADF"
	case TypeTransparent:
		return "transparent"
	case TypeLinearFixed:
		return "linear-fixed"
	case TypeCyclic:
		return "cyclic"
	case TypeBERTLV:
		return "BER-TLV"
	default:
		return "unknown"
	}
}

// IsDF reports whether files of this type can hold children.
func (t FileType) IsDF() bool {
	return t == TypeMF || t == TypeDF || t == TypeADF
}

// IsRecordBased reports whether content is addressed by record number.
func (t FileType) IsRecordBased() bool {
	return t == TypeLinearFixed || t == TypeCyclic
}

// File is one node of the tree.
type File struct {
	FID  FID
	SFI  byte // 0 when the file has none
	AID  []byte
	Name string
	Desc string
	Type FileType

	// App is set on ADFs and names the application behind them.
	App *Application

	// Content decodes the body of READ BINARY/READ RECORD responses and
	// UPDATE commands, when the file layout is known.
	Content tlv.Codec

	// Dynamic marks nodes added while tracing; they are dropped on reset.
	Dynamic bool

	parent   *File
	children []*File
}

// Option customizes a file declaration.
type Option func(*File)

// WithSFI sets the Short File Identifier.
func WithSFI(sfi byte) Option {
	return func(f *File) { f.SFI = sfi }
}

// WithDesc sets a free text description.
func WithDesc(desc string) Option {
	return func(f *File) { f.Desc = desc }
}

// WithContent sets the decoder for the file body.
func WithContent(c tlv.Codec) Option {
	return func(f *File) { f.Content = c }
}

// MF declares the Master File.
func MF(children ...*File) *File {
	return &File{FID: FIDMF, Name: "MF", Type: TypeMF, children: children}
}

// DF declares a dedicated file.
func DF(name string, fid FID, children ...*File) *File {
	return &File{FID: fid, Name: name, Type: TypeDF, children: children}
}

// EF declares an elementary file.
func EF(name string, fid FID, typ FileType, opts ...Option) *File {
	f := &File{FID: fid, Name: name, Type: typ}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Parent returns the parent DF, or nil for the MF.
func (f *File) Parent() *File {
	return f.parent
}

// Children returns the direct children in declaration order.
func (f *File) Children() []*File {
	return append([]*File(nil), f.children...)
}

// Child returns the direct child with the given File ID.
func (f *File) Child(fid FID) (*File, bool) {
	for _, c := range f.children {
		if c.FID == fid && c.Type != TypeADF {
			return c, true
		}
	}
	return nil, false
}

// ChildBySFI returns the direct child EF with the given Short File Identifier.
func (f *File) ChildBySFI(sfi byte) (*File, bool) {
	if sfi == 0 {
		return nil, false
	}
	for _, c := range f.children {
		if c.SFI == sfi {
			return c, true
		}
	}
	return nil, false
}

// ADF returns the closest application DF at or above f.
func (f *File) ADF() *File {
	for n := f; n != nil; n = n.parent {
		if n.Type == TypeADF {
			return n
		}
	}
	return nil
}

// DF returns f if it is a DF, else its parent.
func (f *File) DF() *File {
	if f.Type.IsDF() || f.parent == nil {
		return f
	}
	return f.parent
}

// Path returns the files from below the MF down to f.
func (f *File) Path() []*File {
	var out []*File
	for n := f; n != nil && n.Type != TypeMF; n = n.parent {
		out = append([]*File{n}, out...)
	}
	return out
}

// FIDPath returns the File IDs of Path.
func (f *File) FIDPath() []FID {
	path := f.Path()
	out := make([]FID, len(path))
	for i, n := range path {
		out[i] = n.FID
	}
	return out
}

// PathString renders the names from the MF down, e.g. "MF/DF.TELECOM/EF.ADN".
func (f *File) PathString() string {
	names := []string{"MF"}
	for _, n := range f.Path() {
		names = append(names, n.Name)
	}
	return strings.Join(names, "/")
}

// MatchesAID reports whether aid selects f: either equal to the file AID, a
// truncated form of it, or a longer form extending it.
func (f *File) MatchesAID(aid []byte) bool {
	if len(f.AID) == 0 || len(aid) == 0 {
		return false
	}
	return bytes.HasPrefix(f.AID, aid) || bytes.HasPrefix(aid, f.AID)
}

func (f *File) String() string {
	if len(f.AID) > 0 {
		return fmt.Sprintf("%s (%s %s)", f.Name, f.Type, hex.EncodeToString(f.AID))
	}
	return fmt.Sprintf("%s (%s %s)", f.Name, f.Type, f.FID)
}

func (f *File) link() error {
	seen := make(map[FID]*File)
	sfis := make(map[byte]*File)
	for _, c := range f.children {
		if c.Type != TypeADF {
			if prev, ok := seen[c.FID]; ok {
				return fmt.Errorf("%w: %s and %s share FID %s under %s", ErrDuplicateFile, prev.Name, c.Name, c.FID, f.Name)
			}
			seen[c.FID] = c
		}
		if c.SFI != 0 {
			if prev, ok := sfis[c.SFI]; ok {
				return fmt.Errorf("%w: %s and %s share SFI %02X under %s", ErrDuplicateFile, prev.Name, c.Name, c.SFI, f.Name)
			}
			sfis[c.SFI] = c
		}
		c.parent = f
		if err := c.link(); err != nil {
			return err
		}
	}
	return nil
}
