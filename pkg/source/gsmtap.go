package source

import (
	"errors"
	"fmt"
	"net"

	"github.com/gregLibert/apdu-trace/pkg/apdu"
	"github.com/gregLibert/apdu-trace/pkg/logger"
)

// GSMTAP carries SIM traffic from tracers such as SIMtrace2 as UDP
// datagrams. A GSMTAP v2 header is 16 bytes:
//
//	version(1) hdr_len(1, in 32-bit words) type(1) timeslot(1)
//	arfcn(2) signal_dbm(1) snr_db(1) frame_number(4)
//	sub_type(1) antenna_nr(1) sub_slot(1) res(1)
//
// For type SIM the sub-type tells an APDU from an ATR. An APDU packet holds
// the T=0 byte stream of one exchange: the 5-byte header, the command data
// if any, then the response data and the status word.
const (
	DefaultGSMTAPAddr = "127.0.0.1:4729"

	gsmtapVersion   = 0x02
	gsmtapHeaderLen = 16
	gsmtapTypeSIM   = 0x04
	gsmtapSIMAPDU   = 0x00
	gsmtapSIMATR    = 0x01
)

// ErrNotSIM is returned for GSMTAP packets that do not carry SIM traffic.
var ErrNotSIM = errors.New("gsmtap: not a SIM packet")

// Classifier gives the ISO 7816-3 case of a command header. *apdu.Registry
// implements it.
type Classifier interface {
	Case(cla, ins, p1, p2 byte) (apdu.Case, bool)
}

// ParseGSMTAP decodes one GSMTAP datagram.
func ParseGSMTAP(pkt []byte, cases Classifier) (Event, error) {
	if len(pkt) < gsmtapHeaderLen {
		return nil, fmt.Errorf("%w: gsmtap packet of %d bytes", ErrMalformed, len(pkt))
	}
	if pkt[0] != gsmtapVersion {
		return nil, fmt.Errorf("%w: gsmtap version %d", ErrMalformed, pkt[0])
	}
	hdrLen := int(pkt[1]) * 4
	if hdrLen < gsmtapHeaderLen || hdrLen > len(pkt) {
		return nil, fmt.Errorf("%w: gsmtap header length %d", ErrMalformed, hdrLen)
	}
	if pkt[2] != gsmtapTypeSIM {
		return nil, ErrNotSIM
	}

	body := pkt[hdrLen:]
	switch sub := pkt[12]; sub {
	case gsmtapSIMATR:
		return Reset{ATR: append([]byte(nil), body...)}, nil
	case gsmtapSIMAPDU:
		capdu, rapdu, err := SplitT0(body, cases)
		if err != nil {
			return nil, err
		}
		return NewExchange(capdu, rapdu)
	default:
		return nil, fmt.Errorf("%w: sub-type %02X", ErrNotSIM, sub)
	}
}

// SplitT0 cuts a T=0 byte stream into its C-APDU and R-APDU. P3 is Lc
// when the command carries data and Le otherwise; the case declared by the
// registry decides. For an unknown instruction, P3 is taken as Lc when the
// stream holds exactly P3 data bytes and a status word after the header.
func SplitT0(b []byte, cases Classifier) (capdu, rapdu []byte, err error) {
	if len(b) < 5+2 {
		return nil, nil, fmt.Errorf("%w: T=0 exchange of %d bytes", ErrMalformed, len(b))
	}
	cla, ins, p1, p2, p3 := b[0], b[1], b[2], b[3], int(b[4])

	c, ok := cases.Case(cla, ins, p1, p2)
	if !ok {
		c = apdu.Case2
		if len(b) == 5+p3+2 && p3 > 0 {
			c = apdu.Case3
		}
	}

	switch c {
	case apdu.Case1:
		// P3 is a dummy '00'.
		return clone(b[:4]), clone(b[5:]), nil
	case apdu.Case3, apdu.Case4:
		if len(b) < 5+p3+2 {
			return nil, nil, fmt.Errorf("%w: %d bytes of command data announced, %d left",
				ErrMalformed, p3, len(b)-5-2)
		}
		return clone(b[:5+p3]), clone(b[5+p3:]), nil
	default:
		return clone(b[:5]), clone(b[5:]), nil
	}
}

func clone(b []byte) []byte {
	return append([]byte(nil), b...)
}

// GSMTAPListener receives GSMTAP SIM packets on a UDP socket.
type GSMTAPListener struct {
	conn  *net.UDPConn
	cases Classifier
	log   logger.Logger
	buf   []byte
}

// ListenGSMTAP binds addr ("host:port"). Packets that are not SIM traffic
// are skipped, as are malformed ones, with a warning.
func ListenGSMTAP(addr string, cases Classifier, log logger.Logger) (*GSMTAPListener, error) {
	if log == nil {
		log = logger.Nop()
	}
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve UDP address %s: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return &GSMTAPListener{
		conn:  conn,
		cases: cases,
		log:   log.WithPrefix("gsmtap"),
		buf:   make([]byte, 65536),
	}, nil
}

// Addr returns the local address of the socket.
func (g *GSMTAPListener) Addr() net.Addr {
	return g.conn.LocalAddr()
}

// Read blocks until a SIM packet arrives. Closing the listener unblocks it.
func (g *GSMTAPListener) Read() (Event, error) {
	for {
		n, from, err := g.conn.ReadFromUDP(g.buf)
		if err != nil {
			return nil, err
		}
		ev, err := ParseGSMTAP(g.buf[:n], g.cases)
		switch {
		case errors.Is(err, ErrNotSIM):
			g.log.Debug("skipping packet from %s: %v", from, err)
			continue
		case err != nil:
			g.log.Warn("dropping packet from %s: %v", from, err)
			continue
		}
		return ev, nil
	}
}

// Close closes the socket.
func (g *GSMTAPListener) Close() error {
	return g.conn.Close()
}
