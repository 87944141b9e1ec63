// Package transport executes membership.Tick values as real network I/O:
// persistent TCP connections, each framed with a 4-byte big-endian length
// prefix, following a gossip-style receiveLoop/sendMessage connection
// handling shape adapted from UDP fire-and-forget to persistent TCP
// connections, because HyParView's active set is, by definition, a set of
// open connections, unlike SWIM's stateless probing.
package transport

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/google/uuid"
	logging "github.com/ipfs/go-log/v2"

	"github.com/weftmesh/weft/internal/domain"
	"github.com/weftmesh/weft/internal/infra/membership"
)

var log = logging.Logger("transport")

// Addr is the concrete transport address type: a TCP host:port string. It
// satisfies domain.Addr (comparable, with String()).
type Addr string

func (a Addr) String() string { return string(a) }

// ParseAddr validates s as a host:port pair and returns it as an Addr.
func ParseAddr(s string) (Addr, error) {
	if _, _, err := net.SplitHostPort(s); err != nil {
		return "", fmt.Errorf("transport: invalid address %q: %w", s, err)
	}
	return Addr(s), nil
}

const maxFrameSize = 1 << 20 // 1 MiB

// conn tracks one open peer connection and the random session id assigned
// to it when it was opened. Nothing reads or logs the session id.
type conn struct {
	sessionID string
	nc        net.Conn
	mu        sync.Mutex // guards writes; reads happen only in receiveLoop
}

func (c *conn) writeFrame(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(b)))
	if _, err := c.nc.Write(length[:]); err != nil {
		return err
	}
	_, err := c.nc.Write(b)
	return err
}

func readFrame(r io.Reader) ([]byte, error) {
	var length [4]byte
	if _, err := io.ReadFull(r, length[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(length[:])
	if n > maxFrameSize {
		return nil, fmt.Errorf("transport: frame of %d bytes exceeds limit", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Transport owns the engine's live TCP connections and turns its Ticks
// into real I/O. One Transport serves one Engine.
type Transport struct {
	engine  *membership.Engine[Addr]
	self    domain.PartialPeerInfo[Addr]
	metrics *membership.Metrics

	mu    sync.Mutex
	conns map[domain.PeerId]*conn

	listener net.Listener
}

// SetMetrics attaches the Prometheus collectors receiveLoop reports applied
// messages and transitions through. Optional: a Transport with no metrics
// set simply skips reporting.
func (t *Transport) SetMetrics(m *membership.Metrics) { t.metrics = m }

// New constructs a Transport for engine, representing the local node as
// self in outgoing handshakes.
func New(engine *membership.Engine[Addr], self domain.PartialPeerInfo[Addr]) *Transport {
	return &Transport{
		engine: engine,
		self:   self,
		conns:  make(map[domain.PeerId]*conn),
	}
}

// Listen starts accepting inbound connections on addr. Run must be called
// to serve them.
func (t *Transport) Listen(addr Addr) error {
	ln, err := net.Listen("tcp", string(addr))
	if err != nil {
		return fmt.Errorf("transport: listen %s: %w", addr, err)
	}
	t.listener = ln
	return nil
}

// Run accepts inbound connections until ctx is cancelled.
func (t *Transport) Run(ctx context.Context) error {
	if t.listener == nil {
		return fmt.Errorf("transport: Listen must be called before Run")
	}
	go func() {
		<-ctx.Done()
		t.listener.Close()
	}()
	for {
		nc, err := t.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("transport: accept: %w", err)
			}
		}
		go t.handleInbound(ctx, nc)
	}
}

func (t *Transport) handleInbound(ctx context.Context, nc net.Conn) {
	c := &conn{sessionID: uuid.NewString(), nc: nc}
	t.receiveLoop(ctx, "", c)
}

// Dial opens a connection to peer at addr and sends hello as the opening
// message, registering the connection under peer once established.
// Grounded on the Connect tick contract (engine.go's TickConnect).
func (t *Transport) Dial(ctx context.Context, peer domain.PeerId, addr Addr, hello membership.Message[Addr]) error {
	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", string(addr))
	if err != nil {
		return fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	c := &conn{sessionID: uuid.NewString(), nc: nc}
	t.register(peer, c)
	if err := t.send(c, hello); err != nil {
		t.forget(peer)
		nc.Close()
		return err
	}
	go t.receiveLoop(ctx, peer, c)
	return nil
}

func (t *Transport) register(peer domain.PeerId, c *conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if old, ok := t.conns[peer]; ok {
		old.nc.Close()
	}
	t.conns[peer] = c
}

func (t *Transport) forget(peer domain.PeerId) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.conns, peer)
}

func (t *Transport) send(c *conn, msg membership.Message[Addr]) error {
	b, err := membership.MarshalMessage(msg)
	if err != nil {
		return err
	}
	return c.writeFrame(b)
}

// receiveLoop reads framed messages off c and feeds them to the engine,
// executing whatever Ticks come back. peer is empty until the first
// message (necessarily a Join or Neighbour) names who we're talking to.
func (t *Transport) receiveLoop(ctx context.Context, peer domain.PeerId, c *conn) {
	defer func() {
		if peer != "" {
			t.forget(peer)
			t.Execute(ctx, t.engine.ConnectionLost(t.self, peer))
		}
		c.nc.Close()
	}()

	for {
		b, err := readFrame(c.nc)
		if err != nil {
			return
		}
		msg, err := membership.UnmarshalMessage(b, ParseAddr)
		if err != nil {
			continue
		}
		if peer == "" {
			peer = msg.Sender.PeerId
			t.register(peer, c)
		}
		remoteAddr, _ := ParseAddr(c.nc.RemoteAddr().String())
		tnt, err := t.engine.Apply(peer, remoteAddr, msg)
		if t.metrics != nil {
			t.metrics.ObserveMessageApplied(msg.Kind)
		}
		if err != nil {
			log.Debugw("apply rejected message", "peer", peer, "err", err)
			return
		}
		if t.metrics != nil {
			membership.ObserveTransitions(t.metrics, tnt.Transitions)
		}
		t.Execute(ctx, tnt)
	}
}

// Execute performs the deferred I/O a TnT batch describes. Transitions are
// not acted on here; callers that care about them (metrics, the API debug
// surface) observe them at the call site that produced the TnT.
func (t *Transport) Execute(ctx context.Context, tnt membership.TnT[Addr]) {
	for _, tick := range tnt.Ticks {
		t.executeTick(ctx, tick)
	}
}

func (t *Transport) executeTick(ctx context.Context, tick membership.Tick[Addr]) {
	switch tick.Kind {
	case membership.TickConnect:
		if err := t.Dial(ctx, tick.Peer, tick.Addr, tick.Message); err != nil {
			lost := t.engine.ConnectionLost(t.self, tick.Peer)
			t.Execute(ctx, lost)
		}
	case membership.TickReply, membership.TickTry:
		t.mu.Lock()
		c, ok := t.conns[tick.Peer]
		t.mu.Unlock()
		if !ok {
			return
		}
		if err := t.send(c, tick.Message); err != nil {
			c.nc.Close()
		}
	case membership.TickDisconnect:
		t.mu.Lock()
		c, ok := t.conns[tick.Peer]
		delete(t.conns, tick.Peer)
		t.mu.Unlock()
		if ok {
			c.nc.Close()
		}
	}
}

// Close closes every open connection and the listener, if any.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, c := range t.conns {
		c.nc.Close()
	}
	if t.listener != nil {
		return t.listener.Close()
	}
	return nil
}
