package nodeops

import (
	"fmt"
	"net/netip"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dreamware/nimbusdb/internal/coordinator"
	"github.com/dreamware/nimbusdb/internal/gossip"
	"github.com/dreamware/nimbusdb/internal/partition"
	"github.com/dreamware/nimbusdb/internal/schema"
	"github.com/dreamware/nimbusdb/internal/storage"
	"github.com/dreamware/nimbusdb/internal/wire"
)

// defaultDialTimeout bounds every outbound internode connect/write
// (spec section 5's "single small constant" cancellation rule).
const defaultDialTimeout = 2 * time.Second

// defaultMaxFrameLen rejects any internode/client frame claiming a
// length beyond this many bytes before allocating a buffer for it.
const defaultMaxFrameLen = 16 * 1024 * 1024

// reconcileInterval is how often the schema-materialization and
// ring-reconciliation loops re-check the gossiped view (spec's
// original_source/node/src/lib.rs reconciliation loop has no named
// constant; this follows the gossiper's own round interval so the two
// loops move in step).
const reconcileInterval = 2 * time.Second

// Config bundles the arguments New needs to build a Node: self and
// seeds drive the gossiper and ring, the rest configures listeners and
// storage (spec section 6's "one positional argument: its own IPv4
// address... a list of seed IPs from argv or from an implementation-
// chosen configuration mechanism").
type Config struct {
	Self            netip.Addr
	Seeds           []netip.Addr
	DataDir         string
	ClientListen    string
	InternodeListen string
	DebugListen     string
	CertsDir        string
	AuthPassword    string
	DialTimeout     time.Duration
	MaxFrameLen     uint32
}

func (c Config) dialTimeout() time.Duration {
	if c.DialTimeout > 0 {
		return c.DialTimeout
	}
	return defaultDialTimeout
}

func (c Config) maxFrameLen() uint32 {
	if c.MaxFrameLen > 0 {
		return c.MaxFrameLen
	}
	return defaultMaxFrameLen
}

// Node is the per-process runtime: one TLS client listener, one
// plaintext internode listener, one gossiper, one storage engine, and
// the ring+schema pointers every other subsystem reads through Node's
// accessor methods (spec section 4.8, section 5).
type Node struct {
	self netip.Addr
	cfg  Config
	log  *logrus.Entry

	engine    *storage.Engine
	gossiper  *gossip.Gossiper
	transport *Transport
	coord     *coordinator.Coordinator

	// mu guards ring and schema together: a reconciliation tick clones
	// the current schema, mutates the clone, and swaps both pointers in
	// one critical section so a reader never observes a ring rebuilt
	// from one gossip snapshot paired with a schema from another.
	mu     sync.RWMutex
	ring   *partition.Ring
	schema *schema.Envelope

	// ackMu/pendingAcks track bulk-redistribution moves awaiting the new
	// owner's InternodeResponse before the local row can be deleted
	// (storage.RelocatingRow's doc comment requires this ack-gating;
	// see DESIGN.md). Keyed by an id reserved from the coordinator's own
	// open-query counter so it can never collide with a live query.
	ackMu       sync.Mutex
	pendingAcks map[uint32]chan wire.InternodeResponse
}

// New builds a Node for cfg. It does not start any listener or
// background loop — call Run for that.
func New(cfg Config, log *logrus.Entry) (*Node, error) {
	if !cfg.Self.IsValid() {
		return nil, fmt.Errorf("nodeops: Config.Self is required")
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	n := &Node{
		self:        cfg.Self,
		cfg:         cfg,
		log:         log.WithField("component", "node"),
		engine:      storage.NewEngine(cfg.DataDir, cfg.Self, log.WithField("component", "storage")),
		ring:        partition.NewRing(),
		schema:      schema.NewEnvelope(),
		pendingAcks: make(map[uint32]chan wire.InternodeResponse),
	}
	n.ring.AddNode(cfg.Self)
	n.gossiper = gossip.New(cfg.Self, cfg.Seeds, log.WithField("component", "gossip"))
	n.transport = newTransport(cfg.Self, cfg.dialTimeout(), cfg.maxFrameLen(), n.gossiper, log.WithField("component", "transport"))
	n.coord = coordinator.NewCoordinator(cfg.Self, n.engine, n.transport, n.Ring, n.Snapshot, n.MutateSchema, log.WithField("component", "coordinator"))
	return n, nil
}

// Self returns the node's own address.
func (n *Node) Self() netip.Addr { return n.self }

// Engine returns the node's storage engine.
func (n *Node) Engine() *storage.Engine { return n.engine }

// Gossiper returns the node's gossip state machine.
func (n *Node) Gossiper() *gossip.Gossiper { return n.gossiper }

// Coordinator returns the node's query execution path, used by the
// client listener to run a parsed query to completion.
func (n *Node) Coordinator() *coordinator.Coordinator { return n.coord }

// Transport returns the node's internode transport, which also
// satisfies gossip.Dialer for the gossiper's own round trips.
func (n *Node) Transport() *Transport { return n.transport }

// Ring returns the node's current partitioner snapshot. The returned
// pointer is never mutated in place after being published — callers may
// hold and use it without a lock (spec section 5's copy-on-write split
// of the coarse critical-state lock, see DESIGN.md).
func (n *Node) Ring() *partition.Ring {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.ring
}

// Snapshot returns the node's current schema envelope, likewise
// immutable once published.
func (n *Node) Snapshot() *schema.Envelope {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.schema
}

// MutateSchema clones the current schema, applies fn to the clone, and
// publishes it as the node's new schema snapshot and the gossiper's
// local application state — the coordinator's DDL path (spec section
// 4.7 step 4) and the schema-materialization loop's own repairs both go
// through this single entry point so schema changes are never lost to a
// racing reconciliation tick.
func (n *Node) MutateSchema(fn func(*schema.Envelope) error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	clone := n.schema.Clone()
	if err := fn(clone); err != nil {
		return err
	}
	n.schema = clone
	n.gossiper.SetSchema(clone)
	return nil
}

// setRing publishes a freshly built ring, used by the reconciliation
// loop after every gossip tick (partition.Ring has no in-place update
// safe for concurrent readers, so a tick always builds a new one; see
// DESIGN.md's ring copy-on-write decision).
func (n *Node) setRing(r *partition.Ring) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ring = r
}

// registerAck opens a wait slot for id, reserved via
// coordinator.ReserveQueryID, and returns the channel its eventual
// InternodeResponse arrives on.
func (n *Node) registerAck(id uint32) chan wire.InternodeResponse {
	ch := make(chan wire.InternodeResponse, 1)
	n.ackMu.Lock()
	n.pendingAcks[id] = ch
	n.ackMu.Unlock()
	return ch
}

// takeAck removes and returns id's wait channel, if one is pending —
// called by the internode listener before falling back to routing a
// response through the coordinator's open-query table.
func (n *Node) takeAck(id uint32) (chan wire.InternodeResponse, bool) {
	n.ackMu.Lock()
	defer n.ackMu.Unlock()
	ch, ok := n.pendingAcks[id]
	if ok {
		delete(n.pendingAcks, id)
	}
	return ch, ok
}

// forgetAck releases id's wait slot without it ever having been
// answered, e.g. after a timeout.
func (n *Node) forgetAck(id uint32) {
	n.ackMu.Lock()
	delete(n.pendingAcks, id)
	n.ackMu.Unlock()
}
