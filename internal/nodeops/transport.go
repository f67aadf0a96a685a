package nodeops

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dreamware/nimbusdb/internal/gossip"
	"github.com/dreamware/nimbusdb/internal/nimberr"
	"github.com/dreamware/nimbusdb/internal/wire"
)

// internodePort is the fixed port every node's plaintext internode
// listener binds (spec section 6: "port numbers are implementation-
// chosen constants; coordinator and replicas must use the same pair").
const internodePort = 9142

func internodeAddr(a netip.Addr) string {
	return fmt.Sprintf("%s:%d", a, internodePort)
}

// Transport implements both coordinator.Transport (fire-and-forget
// query dispatch) and gossip.Dialer (synchronous Syn/Ack2 round trips)
// over the plaintext internode protocol, backed by a single cache of
// outbound TCP connections keyed "ip:port" (spec section 4.8's
// "connections map"). A failed send evicts the cache entry and marks
// the peer Dead in the gossiper, per the same section.
type Transport struct {
	self        netip.Addr
	dialTimeout time.Duration
	maxFrameLen uint32
	gossiper    *gossip.Gossiper
	log         *logrus.Entry

	mu    sync.Mutex
	conns map[string]net.Conn
}

func newTransport(self netip.Addr, dialTimeout time.Duration, maxFrameLen uint32, gossiper *gossip.Gossiper, log *logrus.Entry) *Transport {
	return &Transport{
		self:        self,
		dialTimeout: dialTimeout,
		maxFrameLen: maxFrameLen,
		gossiper:    gossiper,
		log:         log,
		conns:       make(map[string]net.Conn),
	}
}

// dial returns a cached connection to addr, or opens and caches a new
// one. Callers that get a fresh-looking but actually dead cached
// connection will fail their write and evict it themselves.
func (t *Transport) dial(ctx context.Context, addr netip.Addr) (net.Conn, error) {
	key := internodeAddr(addr)
	t.mu.Lock()
	if c, ok := t.conns[key]; ok {
		t.mu.Unlock()
		return c, nil
	}
	t.mu.Unlock()

	d := net.Dialer{Timeout: t.dialTimeout}
	c, err := d.DialContext(ctx, "tcp", key)
	if err != nil {
		t.gossiper.MarkUnreachable(addr)
		return nil, nimberr.Transport("dial "+key, err)
	}
	t.mu.Lock()
	t.conns[key] = c
	t.mu.Unlock()
	return c, nil
}

func (t *Transport) evict(addr netip.Addr, conn net.Conn) {
	key := internodeAddr(addr)
	t.mu.Lock()
	if t.conns[key] == conn {
		delete(t.conns, key)
	}
	t.mu.Unlock()
	_ = conn.Close()
	t.gossiper.MarkUnreachable(addr)
	if t.log != nil {
		t.log.Warnf("marking %s unreachable after failed send", addr)
	}
}

// SendQuery fire-and-forgets an InternodeQuery to to: the replica's own
// internode listener decodes it, runs it locally, and sends its
// InternodeResponse back as an independent outbound message to this
// node (spec section 4.7 step 4-5) rather than over this same
// connection.
func (t *Transport) SendQuery(ctx context.Context, to netip.Addr, q wire.InternodeQuery) error {
	conn, err := t.dial(ctx, to)
	if err != nil {
		return err
	}
	msg := wire.InternodeMessage{From: t.self, Kind: wire.KindQuery, Body: q.Encode()}
	if err := t.writeDeadline(conn, msg.Encode()); err != nil {
		t.evict(to, conn)
		return err
	}
	return nil
}

// SendResponse fire-and-forgets an InternodeResponse back to the
// coordinator that dispatched the query it answers.
func (t *Transport) SendResponse(ctx context.Context, to netip.Addr, resp wire.InternodeResponse) error {
	conn, err := t.dial(ctx, to)
	if err != nil {
		return err
	}
	msg := wire.InternodeMessage{From: t.self, Kind: wire.KindResponse, Body: resp.Encode()}
	if err := t.writeDeadline(conn, msg.Encode()); err != nil {
		t.evict(to, conn)
		return err
	}
	return nil
}

// Gossip implements gossip.Dialer: unlike SendQuery/SendResponse, a
// gossip round needs a synchronous reply (the Ack to a Syn, or
// whatever the peer sends back for an Ack2), so it always opens a
// fresh, short-lived connection rather than reusing the shared cache —
// reusing a connection another goroutine might concurrently be writing
// a Query frame on would interleave two independent read/write
// protocols on one stream.
func (t *Transport) Gossip(ctx context.Context, peer netip.Addr, msg wire.GossipMessage) (wire.GossipMessage, error) {
	d := net.Dialer{Timeout: t.dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", internodeAddr(peer))
	if err != nil {
		t.gossiper.MarkUnreachable(peer)
		return wire.GossipMessage{}, nimberr.Transport("gossip dial "+peer.String(), err)
	}
	defer conn.Close()

	out := wire.InternodeMessage{From: t.self, Kind: wire.KindGossip, Body: msg.Encode()}
	if err := t.writeDeadline(conn, out.Encode()); err != nil {
		t.gossiper.MarkUnreachable(peer)
		return wire.GossipMessage{}, err
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	} else {
		_ = conn.SetReadDeadline(time.Now().Add(t.dialTimeout))
	}
	body, err := wire.ReadFrame(conn, t.maxFrameLen)
	if err != nil {
		t.gossiper.MarkUnreachable(peer)
		return wire.GossipMessage{}, nimberr.Transport("gossip read reply from "+peer.String(), err)
	}
	reply, err := wire.DecodeInternodeMessage(body)
	if err != nil {
		return wire.GossipMessage{}, err
	}
	return wire.DecodeGossipMessage(reply.Body)
}

func (t *Transport) writeDeadline(conn net.Conn, frame []byte) error {
	_ = conn.SetWriteDeadline(time.Now().Add(t.dialTimeout))
	if err := wire.WriteFrame(conn, frame); err != nil {
		return nimberr.Transport("write internode frame", err)
	}
	return nil
}
