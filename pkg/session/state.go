// Package session tracks where each logical channel of a card currently
// stands in its file system, as commands are observed one by one.
package session

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gregLibert/apdu-trace/pkg/fs"
	"github.com/gregLibert/apdu-trace/pkg/iso7816"
	"github.com/gregLibert/apdu-trace/pkg/logger"
)

// NavState is the navigation state of one logical channel.
type NavState int

const (
	Unselected NavState = iota
	MFSelected
	DFSelected
)

func (s NavState) String() string {
	switch s {
	case MFSelected:
		return "MF-selected"
	case DFSelected:
		return "selected"
	default:
		return "unselected"
	}
}

// Channel is the navigation context of one logical channel.
type Channel struct {
	number uint8
	file   *fs.File
}

// Number returns the logical channel number.
func (c *Channel) Number() uint8 {
	return c.number
}

// State returns the navigation state.
func (c *Channel) State() NavState {
	switch {
	case c.file == nil:
		return Unselected
	case c.file.Type == fs.TypeMF:
		return MFSelected
	default:
		return DFSelected
	}
}

// File returns the selected file, or nil while Unselected.
func (c *Channel) File() *fs.File {
	return c.file
}

// ADF returns the selected application DF, if any.
func (c *Channel) ADF() *fs.File {
	if c.file == nil {
		return nil
	}
	return c.file.ADF()
}

// Application returns the selected application, if any.
func (c *Channel) Application() *fs.Application {
	if adf := c.ADF(); adf != nil {
		return adf.App
	}
	return nil
}

// Path returns the File IDs walked from the MF to the selected file.
// It is empty while Unselected or on the MF itself.
func (c *Channel) Path() []fs.FID {
	if c.file == nil {
		return []fs.FID{}
	}
	return c.file.FIDPath()
}

// PathString renders the selected file by name, e.g. "MF/ADF.USIM/EF.IMSI".
func (c *Channel) PathString() string {
	if c.file == nil {
		return ""
	}
	return c.file.PathString()
}

// Target is the selection requested by a SELECT command.
type Target struct {
	Method iso7816.SelectionMethod
	Data   []byte
}

func (t Target) String() string {
	return fmt.Sprintf("%s %X", t.Method, t.Data)
}

// State holds the channels of one card session.
type State struct {
	tree     *fs.Tree
	channels map[uint8]*Channel
	log      logger.Logger
}

// New returns a session over tree with every channel Unselected.
func New(tree *fs.Tree, log logger.Logger) *State {
	if log == nil {
		log = logger.Nop()
	}
	return &State{
		tree:     tree,
		channels: make(map[uint8]*Channel),
		log:      log.WithPrefix("session"),
	}
}

// Tree returns the file system model of the session.
func (s *State) Tree() *fs.Tree {
	return s.tree
}

// Channel returns channel n, allocating it Unselected on first use.
func (s *State) Channel(n uint8) *Channel {
	if ch, ok := s.channels[n]; ok {
		return ch
	}
	ch := &Channel{number: n}
	s.channels[n] = ch
	return ch
}

// Lookup returns channel n only if it was already allocated.
func (s *State) Lookup(n uint8) (*Channel, bool) {
	ch, ok := s.channels[n]
	return ch, ok
}

// Open allocates a fresh Unselected channel n, replacing any previous one.
func (s *State) Open(n uint8) *Channel {
	ch := &Channel{number: n}
	s.channels[n] = ch
	s.log.Debug("opened channel %d", n)
	return ch
}

// Close frees channel n. The basic channel cannot be closed and is only
// returned to Unselected.
func (s *State) Close(n uint8) {
	if n == 0 {
		s.Open(0)
		return
	}
	delete(s.channels, n)
	s.log.Debug("closed channel %d", n)
}

// Channels returns the allocated channel numbers in ascending order.
func (s *State) Channels() []uint8 {
	out := make([]uint8, 0, len(s.channels))
	for n := range s.channels {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Reset returns every channel to Unselected and forgets the files that
// were discovered during the session.
func (s *State) Reset() {
	s.channels = make(map[uint8]*Channel)
	s.tree.DropDynamic()
	s.log.Debug("card reset")
}

// Select resolves t relative to channel n and, on success, makes the
// result the selected file. On error the channel is left unchanged.
func (s *State) Select(n uint8, t Target) (*fs.File, error) {
	ch := s.Channel(n)
	f, err := s.tree.Select(ch.file, t.Method, t.Data)
	if err != nil {
		return nil, err
	}
	ch.file = f
	return f, nil
}

// Discover records a target the model could not resolve but the card
// accepted. The new file is added under the current DF, or under the MF
// for an application, and becomes the selected file. typ is taken from
// the FCP returned by the card.
func (s *State) Discover(n uint8, t Target, typ fs.FileType) (*fs.File, error) {
	ch := s.Channel(n)
	cur := ch.file
	if cur == nil {
		cur = s.tree.MF()
	}

	var f *fs.File
	switch t.Method {
	case iso7816.SelectByDFName:
		if len(t.Data) == 0 {
			return nil, fmt.Errorf("%w: empty AID", fs.ErrFileNotFound)
		}
		f = &fs.File{
			FID:  fs.FIDCurrentADF,
			AID:  append([]byte(nil), t.Data...),
			Name: "ADF." + strings.ToUpper(fmt.Sprintf("%x", t.Data)),
			Type: fs.TypeADF,
		}
		f = s.tree.AddDynamic(nil, f)

	case iso7816.SelectByFileID, iso7816.SelectChildDF, iso7816.SelectEFUnderCurrentDF:
		if len(t.Data) != 2 {
			return nil, fmt.Errorf("%w: cannot record %s", fs.ErrFileNotFound, t)
		}
		fid := fs.FID(uint16(t.Data[0])<<8 | uint16(t.Data[1]))
		prefix := "EF."
		if typ.IsDF() {
			prefix = "DF."
			if typ == fs.TypeADF {
				typ = fs.TypeDF
			}
		}
		f = &fs.File{FID: fid, Name: prefix + strings.ToUpper(fid.String()), Type: typ}
		f = s.tree.AddDynamic(cur.DF(), f)

	default:
		return nil, fmt.Errorf("%w: cannot record %s", fs.ErrFileNotFound, t)
	}

	s.log.Info("discovered %s on channel %d", f.PathString(), n)
	ch.file = f
	return f, nil
}

// SelectSFI makes the EF with short identifier sfi under the current DF
// the selected file, as a READ or UPDATE referencing an SFI does.
func (s *State) SelectSFI(n uint8, sfi byte) (*fs.File, error) {
	ch := s.Channel(n)
	cur := ch.file
	if cur == nil {
		cur = s.tree.MF()
	}
	f, ok := cur.DF().ChildBySFI(sfi)
	if !ok {
		return nil, fmt.Errorf("%w: SFI %02X under %s", fs.ErrFileNotFound, sfi, cur.DF().Name)
	}
	ch.file = f
	return f, nil
}
