package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/ebfe/scard"
	"github.com/gregLibert/apdu-trace/pkg/apdu"
	"github.com/gregLibert/apdu-trace/pkg/aram"
	"github.com/gregLibert/apdu-trace/pkg/emv"
	"github.com/gregLibert/apdu-trace/pkg/fs"
	"github.com/gregLibert/apdu-trace/pkg/gp"
	"github.com/gregLibert/apdu-trace/pkg/iso7816"
	"github.com/gregLibert/apdu-trace/pkg/logger"
	"github.com/gregLibert/apdu-trace/pkg/source"
	"github.com/gregLibert/apdu-trace/pkg/tracer"
	"github.com/gregLibert/apdu-trace/pkg/uicc"
	"github.com/gregLibert/apdu-trace/pkg/usim"
)

// config holds the command line.
type config struct {
	source      string
	file        string
	bind        string
	reader      int
	script      string
	record      string
	format      string
	commandSets string
	details     bool
	verbose     bool

	opts    tracer.Options
	showRaw bool
}

// commandSets are the instruction tables that can be merged, by name.
var commandSets = map[string]func() apdu.Table{
	"uicc": uicc.Commands,
	"usim": usim.Commands,
	"gp":   gp.Commands,
}

func parseFlags() config {
	cfg := config{opts: tracer.DefaultOptions()}

	flag.StringVar(&cfg.source, "source", "text", "APDU source: text, capture, gsmtap or pcsc")
	flag.StringVar(&cfg.file, "file", "-", "input file of the text and capture sources")
	flag.StringVar(&cfg.bind, "bind", source.DefaultGSMTAPAddr, "UDP address the gsmtap source listens on")
	flag.IntVar(&cfg.reader, "reader", 0, "index of the PC/SC reader of the pcsc source")
	flag.StringVar(&cfg.script, "script", "", "file of command APDUs the pcsc source sends (default: EMV directory discovery)")
	flag.StringVar(&cfg.record, "record", "", "write a CBOR capture of every event read")
	flag.StringVar(&cfg.format, "format", "text", "output format: text or json")
	flag.StringVar(&cfg.commandSets, "command-sets", "uicc,usim,gp", "instruction tables, later ones win")
	flag.BoolVar(&cfg.details, "details", false, "write the full report of each command")
	flag.BoolVar(&cfg.verbose, "v", false, "debug logging")

	noSelect := flag.Bool("no-suppress-select", false, "show SELECT commands")
	noStatus := flag.Bool("no-suppress-status", false, "show STATUS commands")
	flag.BoolVar(&cfg.showRaw, "show-raw-apdu", false, "show the raw APDUs as well")
	flag.Parse()

	cfg.opts.SuppressSelect = !*noSelect
	cfg.opts.SuppressStatus = !*noStatus
	return cfg
}

func main() {
	cfg := parseFlags()

	level := logger.LevelInfo
	if cfg.verbose {
		level = logger.LevelDebug
	}
	lg := logger.New(os.Stderr, level)
	cfg.opts.Log = lg

	registry, err := buildRegistry(cfg.commandSets)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	lg.Debug("command sets: %s", strings.Join(registry.Tables(), ", "))

	tree, err := fs.NewTree(uicc.MF(),
		usim.ADF(), usim.ISIM(), gp.ISD(), aram.Application(), emv.PSE(), emv.PPSE())
	if err != nil {
		log.Fatalf("Error building the card model: %v", err)
	}

	lg.Info("opening source %s", cfg.source)
	src, closeSrc, err := openSource(cfg, registry, lg)
	if err != nil {
		log.Fatalf("Error opening source: %v", err)
	}
	defer closeSrc()

	if cfg.record != "" {
		f, err := os.Create(cfg.record)
		if err != nil {
			log.Fatalf("Error creating capture: %v", err)
		}
		defer func() {
			if err := f.Close(); err != nil {
				log.Printf("Warning: Failed to close capture: %v", err)
			}
		}()
		src = source.Tee(src, source.NewCaptureWriter(f))
	}

	var out tracer.Renderer
	switch cfg.format {
	case "text":
		r := tracer.NewTextRenderer(os.Stdout)
		r.ShowRaw = cfg.showRaw
		r.Details = cfg.details
		out = r
	case "json":
		r := tracer.NewJSONRenderer(os.Stdout)
		r.ShowRaw = cfg.showRaw
		out = r
	default:
		log.Fatalf("Error: unknown format %q", cfg.format)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// A blocked network read only returns once the socket is closed.
	if c, ok := src.(io.Closer); ok {
		go func() {
			<-ctx.Done()
			_ = c.Close()
		}()
	}

	lg.Info("entering main loop")
	if err := tracer.New(src, registry, tree, out, cfg.opts).Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("Error: %v", err)
	}
}

// buildRegistry merges the named command sets in order.
func buildRegistry(names string) (*apdu.Registry, error) {
	var tables []apdu.Table
	for _, name := range strings.Split(names, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		table, ok := commandSets[name]
		if !ok {
			return nil, fmt.Errorf("unknown command set %q", name)
		}
		tables = append(tables, table())
	}
	if len(tables) == 0 {
		return nil, fmt.Errorf("no command set selected")
	}
	return apdu.Merge(tables...), nil
}

// openSource returns the source selected by cfg and the function releasing
// it.
func openSource(cfg config, reg *apdu.Registry, lg logger.Logger) (source.Source, func(), error) {
	switch cfg.source {
	case "text", "capture":
		r, closeFile, err := openInput(cfg.file)
		if err != nil {
			return nil, nil, err
		}
		if cfg.source == "text" {
			return source.NewText(r), closeFile, nil
		}
		c, err := source.NewCapture(r)
		if err != nil {
			closeFile()
			return nil, nil, err
		}
		return c, closeFile, nil

	case "gsmtap":
		g, err := source.ListenGSMTAP(cfg.bind, reg, lg)
		if err != nil {
			return nil, nil, err
		}
		lg.Info("listening for GSMTAP on %s", g.Addr())
		return g, func() { _ = g.Close() }, nil

	case "pcsc":
		script, err := loadScript(cfg.script)
		if err != nil {
			return nil, nil, err
		}
		ctx, card, err := connectToCard(cfg.reader)
		if err != nil {
			return nil, nil, err
		}
		release := func() {
			if err := card.Disconnect(scard.LeaveCard); err != nil {
				log.Printf("Warning: Failed to disconnect card: %v", err)
			}
			if err := ctx.Release(); err != nil {
				log.Printf("Warning: Failed to release context: %v", err)
			}
		}
		var atr []byte
		if st, err := card.Status(); err == nil {
			atr = st.Atr
		} else {
			lg.Warn("no ATR: %v", err)
		}
		return source.NewCard(card, atr, script), release, nil
	}
	return nil, nil, fmt.Errorf("unknown source %q", cfg.source)
}

func openInput(name string) (io.Reader, func(), error) {
	if name == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(name)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}

func loadScript(name string) ([]*iso7816.CommandAPDU, error) {
	if name == "" {
		return discoveryScript(), nil
	}
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return source.ReadScript(f)
}

// discoveryScript selects the contact PSE, reads the first records of its
// directory, then selects the contactless PPSE.
func discoveryScript() []*iso7816.CommandAPDU {
	cls, _ := iso7816.NewClass(0x00)
	script := []*iso7816.CommandAPDU{iso7816.SelectByAID(cls, emv.PSEName)}
	for rec := byte(1); rec <= 4; rec++ {
		script = append(script, iso7816.ReadRecord(cls, 1, rec))
	}
	return append(script, iso7816.SelectByAID(cls, emv.PPSEName))
}

// connectToCard handles the PC/SC context establishment and reader connection.
func connectToCard(reader int) (*scard.Context, *scard.Card, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, nil, fmt.Errorf("establishing context: %w", err)
	}

	readers, err := ctx.ListReaders()
	if err != nil || reader < 0 || reader >= len(readers) {
		if relErr := ctx.Release(); relErr != nil {
			log.Printf("Warning: Failed to release context during error handling: %v", relErr)
		}
		return nil, nil, fmt.Errorf("no smart card reader at index %d (%d found): %v", reader, len(readers), err)
	}

	log.Printf("Using reader: %s", readers[reader])

	// Force T=0 or T=1 to avoid "Parameter Incorrect" errors (Error 57)
	card, err := ctx.Connect(readers[reader], scard.ShareShared, scard.ProtocolT0|scard.ProtocolT1)
	if err != nil {
		if relErr := ctx.Release(); relErr != nil {
			log.Printf("Warning: Failed to release context during error handling: %v", relErr)
		}
		return nil, nil, fmt.Errorf("connecting to card: %w", err)
	}

	return ctx, card, nil
}
