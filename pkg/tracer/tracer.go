// Package tracer decodes the events of a source against the card model and
// renders each command.
package tracer

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/gregLibert/apdu-trace/pkg/apdu"
	"github.com/gregLibert/apdu-trace/pkg/fs"
	"github.com/gregLibert/apdu-trace/pkg/logger"
	"github.com/gregLibert/apdu-trace/pkg/session"
	"github.com/gregLibert/apdu-trace/pkg/source"
)

// Renderer prints decoded events.
type Renderer interface {
	Command(c *apdu.Command) error
	Reset(r source.Reset) error
}

// Options tune what the tracer shows.
type Options struct {
	// SuppressSelect and SuppressStatus hide SELECT and STATUS. Later
	// commands still show the path they selected.
	SuppressSelect bool
	SuppressStatus bool

	Log logger.Logger
}

// DefaultOptions hides SELECT and STATUS.
func DefaultOptions() Options {
	return Options{SuppressSelect: true, SuppressStatus: true}
}

// Tracer is the main loop: a reset clears the navigation state, an exchange
// is decoded, processed and rendered.
type Tracer struct {
	src   source.Source
	reg   *apdu.Registry
	state *session.State
	out   Renderer
	opts  Options
	log   logger.Logger
}

// New returns a tracer over src. Every channel starts unselected.
func New(src source.Source, reg *apdu.Registry, tree *fs.Tree, out Renderer, opts Options) *Tracer {
	log := opts.Log
	if log == nil {
		log = logger.Nop()
	}
	return &Tracer{
		src:   src,
		reg:   reg,
		state: session.New(tree, log),
		out:   out,
		opts:  opts,
		log:   log.WithPrefix("tracer"),
	}
}

// State returns the navigation state.
func (t *Tracer) State() *session.State {
	return t.state
}

// Run reads events until the source is exhausted or ctx is done. The end
// of the stream is not an error.
func (t *Tracer) Run(ctx context.Context) error {
	for n := 0; ; n++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		ev, err := t.src.Read()
		if errors.Is(err, io.EOF) {
			t.log.Info("end of source after %d events", n)
			return nil
		}
		if err != nil {
			return fmt.Errorf("read event %d: %w", n, err)
		}
		if err := t.Handle(ev); err != nil {
			return err
		}
	}
}

// Handle processes one event. Only rendering errors are returned; decode
// and navigation failures are logged and the command is still rendered.
func (t *Tracer) Handle(ev source.Event) error {
	switch ev := ev.(type) {
	case source.Reset:
		t.state.Reset()
		return t.out.Reset(ev)
	case source.Exchange:
		return t.exchange(ev)
	}
	return fmt.Errorf("tracer: unexpected event %T", ev)
}

func (t *Tracer) exchange(ev source.Exchange) error {
	c, err := t.reg.Decode(ev.Tx, t.state)
	if c == nil {
		t.log.Warn("dropping exchange: %v", err)
		return nil
	}
	if err != nil {
		t.log.Warn("channel %d %s: %v", c.Channel, c.Name, err)
	}
	if err := c.Process(t.state); err != nil {
		t.log.Warn("channel %d %s: %v", c.Channel, c.Name, err)
	}

	if t.suppressed(c) {
		return nil
	}
	return t.out.Command(c)
}

func (t *Tracer) suppressed(c *apdu.Command) bool {
	if c.Def == nil {
		return false
	}
	switch c.Def.Name {
	case "SELECT":
		return t.opts.SuppressSelect
	case "STATUS":
		return t.opts.SuppressStatus
	}
	return false
}
