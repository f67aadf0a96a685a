package gossip

import (
	"context"
	"math/rand"
	"net/netip"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dreamware/nimbusdb/internal/schema"
	"github.com/dreamware/nimbusdb/internal/wire"
)

// bootstrapGrace is how long a node stays in wire.Bootstrap status
// after starting before PromoteFromBootstrap moves it to wire.Normal, per
// original_source/gossip/src/structures/application_state.rs.
const bootstrapGrace = 3 * time.Second

// heartbeatInterval and gossipRoundInterval follow the teacher's
// gossiper timing idiom (other_examples' mcastellin-golang-mastery
// gossip package): a short heartbeat tick, a slightly longer round
// tick so a round always has at least one fresh heartbeat to report.
const (
	heartbeatInterval   = 1 * time.Second
	gossipRoundInterval = 2 * time.Second
	peersPerRound       = 3
)

// EndpointState is everything the local node knows about one endpoint
// (itself included): its heartbeat and its last-known application
// state (membership status + schema view).
type EndpointState struct {
	Heartbeat wire.Heartbeat
	App       wire.ApplicationState
}

// Dialer delivers a gossip message to a peer and returns its response,
// used only for the Syn->Ack and Ack2 legs a round initiates; a node
// receiving a Syn or Ack2 unsolicited applies it through HandleSyn /
// HandleAck2 from its own internode listener, not through Dialer.
type Dialer interface {
	Gossip(ctx context.Context, peer netip.Addr, msg wire.GossipMessage) (wire.GossipMessage, error)
}

// Gossiper is the per-node membership and schema state machine. All
// exported methods are safe for concurrent use.
type Gossiper struct {
	self       netip.Addr
	generation uint64
	startedAt  time.Time

	log *logrus.Entry

	mu        sync.RWMutex
	endpoints map[netip.Addr]EndpointState
}

// New returns a Gossiper for self, seeded with knowledge of self (in
// Bootstrap status, an empty schema) and of seeds (unknown state:
// generation and version 0, per the original implementation's
// with_seeds, so the first gossip round always pulls their real state).
func New(self netip.Addr, seeds []netip.Addr, log *logrus.Entry) *Gossiper {
	g := &Gossiper{
		self:       self,
		generation: uint64(time.Now().UnixNano() / 1000),
		startedAt:  time.Now(),
		log:        log,
		endpoints:  make(map[netip.Addr]EndpointState),
	}
	g.endpoints[self] = EndpointState{
		Heartbeat: wire.Heartbeat{GenerationHi: g.generation >> 32, GenerationLo: g.generation & 0xffffffff, Version: 0},
		App:       wire.ApplicationState{Status: wire.Bootstrap, Version: 0, Schema: schema.NewEnvelope()},
	}
	for _, s := range seeds {
		if s == self {
			continue
		}
		g.endpoints[s] = EndpointState{
			Heartbeat: wire.Heartbeat{},
			App:       wire.ApplicationState{Status: wire.Bootstrap, Version: 0, Schema: schema.NewEnvelope()},
		}
	}
	return g
}

// Self returns the node's own address.
func (g *Gossiper) Self() netip.Addr { return g.self }

// Beat increments the version of addr's heartbeat; called by Run for
// the local node on every heartbeat tick.
func (g *Gossiper) Beat(addr netip.Addr) {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, ok := g.endpoints[addr]
	if !ok {
		return
	}
	st.Heartbeat.Version++
	g.endpoints[addr] = st
}

// SetStatus updates the local node's own membership status, bumping
// its application-state version (spec §4.4 step 1's status lifecycle).
func (g *Gossiper) SetStatus(status wire.Status) {
	g.mu.Lock()
	defer g.mu.Unlock()
	st := g.endpoints[g.self]
	st.App.Status = status
	st.App.Version++
	g.endpoints[g.self] = st
}

// PromoteFromBootstrap moves the local node from Bootstrap to Normal
// once bootstrapGrace has elapsed since New. Safe to call repeatedly;
// a no-op once already Normal or past bootstrap.
func (g *Gossiper) PromoteFromBootstrap() {
	g.mu.RLock()
	st := g.endpoints[g.self]
	due := st.App.Status == wire.Bootstrap && time.Since(g.startedAt) >= bootstrapGrace
	g.mu.RUnlock()
	if due {
		g.SetStatus(wire.Normal)
	}
}

// SetSchema replaces the local node's view of the cluster schema,
// bumping its application-state version. Callers (the coordinator,
// after a successful DDL statement) are responsible for merging their
// change into env before calling this — Gossiper does not interpret
// schema contents.
func (g *Gossiper) SetSchema(env *schema.Envelope) {
	g.mu.Lock()
	defer g.mu.Unlock()
	st := g.endpoints[g.self]
	st.App.Schema = env
	st.App.Version++
	g.endpoints[g.self] = st
}

// Status returns the last-known status of addr, and whether addr is
// known at all.
func (g *Gossiper) Status(addr netip.Addr) (wire.Status, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	st, ok := g.endpoints[addr]
	if !ok {
		return 0, false
	}
	return st.App.Status, true
}

// LiveEndpoints returns every known address whose status is not Dead,
// including self — the view the partitioner's ring should be built
// from (spec §4.4's failure detection: a Dead endpoint is excluded
// from placement without being forgotten).
func (g *Gossiper) LiveEndpoints() []netip.Addr {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]netip.Addr, 0, len(g.endpoints))
	for addr, st := range g.endpoints {
		if st.App.Status != wire.Dead {
			out = append(out, addr)
		}
	}
	return out
}

// MarkUnreachable sets addr's status to Dead — the failure-detection
// half of spec §4.4: called by the node runtime's transport as soon as
// a single internode dial or send to addr fails, not by the gossip
// state machine itself (Gossiper has no notion of network failures).
func (g *Gossiper) MarkUnreachable(addr netip.Addr) {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, ok := g.endpoints[addr]
	if !ok {
		return
	}
	st.App.Status = wire.Dead
	st.App.Version++
	g.endpoints[addr] = st
}

// MostUpToDateSchema returns the schema envelope with the highest
// timestamp among every endpoint's last-known application state —
// schema convergence by max timestamp, per spec §4.4 / invariant I3.
func (g *Gossiper) MostUpToDateSchema() *schema.Envelope {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var best *schema.Envelope
	for _, st := range g.endpoints {
		if st.App.Schema == nil {
			continue
		}
		if best == nil || st.App.Schema.Timestamp > best.Timestamp {
			best = st.App.Schema
		}
	}
	return best
}

func (g *Gossiper) digestLocked(addr netip.Addr, hb wire.Heartbeat) wire.Digest {
	return wire.Digest{Addr: addr, Heartbeat: hb}
}

// CreateSyn builds the Syn message a gossip round sends to a peer: a
// digest of every endpoint this node currently knows (spec §4.4 step 4).
func (g *Gossiper) CreateSyn() wire.Syn {
	g.mu.RLock()
	defer g.mu.RUnlock()
	digests := make([]wire.Digest, 0, len(g.endpoints))
	for addr, st := range g.endpoints {
		digests = append(digests, g.digestLocked(addr, st.Heartbeat))
	}
	return wire.Syn{Digests: digests}
}

// HandleSyn answers an incoming Syn: for every digest the peer sent,
// the receiver is either behind (it reports its own stale digest so
// the sender pushes full state), ahead (it pushes its own full state
// back), or caught up (nothing to do). An address the receiver has
// never heard of is reported maximally stale (generation=version=0),
// exactly mirroring original_source/gossip/src/lib.rs's handle_syn.
func (g *Gossiper) HandleSyn(syn wire.Syn) wire.Ack {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ack wire.Ack
	for _, digest := range syn.Digests {
		mine, ok := g.endpoints[digest.Addr]
		if !ok {
			ack.StaleDigests = append(ack.StaleDigests, wire.Digest{Addr: digest.Addr})
			continue
		}
		myDigest := g.digestLocked(digest.Addr, mine.Heartbeat)
		if digest.Heartbeat.Equal(myDigest.Heartbeat) {
			continue
		}
		if digest.Heartbeat.Less(myDigest.Heartbeat) {
			ack.UpdatedInfo = append(ack.UpdatedInfo, wire.AckInfo{Digest: myDigest, State: mine.App})
		} else {
			ack.StaleDigests = append(ack.StaleDigests, myDigest)
		}
	}
	return ack
}

// HandleAck processes a received Ack, updating local state from its
// UpdatedInfo and building the Ack2 reply that answers its
// StaleDigests with this node's current full state for each
// (mirrors original_source's handle_ack).
func (g *Gossiper) HandleAck(ack wire.Ack) wire.Ack2 {
	g.mu.Lock()
	defer g.mu.Unlock()

	var ack2 wire.Ack2
	for _, digest := range ack.StaleDigests {
		mine, ok := g.endpoints[digest.Addr]
		if !ok {
			continue
		}
		myDigest := g.digestLocked(digest.Addr, mine.Heartbeat)
		if digest.Heartbeat.Equal(myDigest.Heartbeat) {
			continue
		}
		if digest.Heartbeat.Less(myDigest.Heartbeat) {
			ack2.UpdatedInfo = append(ack2.UpdatedInfo, wire.AckInfo{Digest: myDigest, State: mine.App})
		}
		// A StaleDigest claiming to be ahead of our own state should
		// never happen (we computed it from our own digest); the
		// original panics here, this implementation just drops it.
	}

	for _, info := range ack.UpdatedInfo {
		g.endpoints[info.Digest.Addr] = EndpointState{Heartbeat: info.Digest.Heartbeat, App: info.State}
	}

	return ack2
}

// HandleAck2 applies the final leg of the exchange: full state for
// every digest this node had marked stale in its Ack.
func (g *Gossiper) HandleAck2(ack2 wire.Ack2) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, info := range ack2.UpdatedInfo {
		g.endpoints[info.Digest.Addr] = EndpointState{Heartbeat: info.Digest.Heartbeat, App: info.State}
	}
}

// Run drives periodic heartbeats and gossip rounds until ctx is
// canceled, following the teacher gossiper's ticker-loop shape
// (heartBeatLoop/gossipRound run as separate goroutines).
func (g *Gossiper) Run(ctx context.Context, dialer Dialer) {
	go g.heartbeatLoop(ctx)
	go g.gossipRoundLoop(ctx, dialer)
}

func (g *Gossiper) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.Beat(g.self)
			g.PromoteFromBootstrap()
		}
	}
}

func (g *Gossiper) gossipRoundLoop(ctx context.Context, dialer Dialer) {
	ticker := time.NewTicker(gossipRoundInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.runOneRound(ctx, dialer)
		}
	}
}

func (g *Gossiper) runOneRound(ctx context.Context, dialer Dialer) {
	peers := g.pickPeers(peersPerRound)
	if len(peers) == 0 {
		return
	}
	syn := g.CreateSyn()
	for _, peer := range peers {
		resp, err := dialer.Gossip(ctx, peer, wire.GossipMessage{
			From: g.self, Kind: wire.GossipSyn, Payload: syn.Encode(),
		})
		if err != nil {
			g.logf("gossip round: %s unreachable: %v", peer, err)
			continue
		}
		if resp.Kind != wire.GossipAck {
			continue
		}
		ack, err := wire.DecodeAck(resp.Payload)
		if err != nil {
			g.logf("gossip round: malformed ack from %s: %v", peer, err)
			continue
		}
		ack2 := g.HandleAck(ack)
		if len(ack2.UpdatedInfo) == 0 {
			continue
		}
		if _, err := dialer.Gossip(ctx, peer, wire.GossipMessage{
			From: g.self, Kind: wire.GossipAck2, Payload: ack2.Encode(),
		}); err != nil {
			g.logf("gossip round: failed delivering ack2 to %s: %v", peer, err)
		}
	}
}

func (g *Gossiper) pickPeers(n int) []netip.Addr {
	g.mu.RLock()
	candidates := make([]netip.Addr, 0, len(g.endpoints))
	for addr, st := range g.endpoints {
		if addr == g.self || st.App.Status == wire.Dead {
			continue
		}
		candidates = append(candidates, addr)
	}
	g.mu.RUnlock()

	rand.Shuffle(len(candidates), func(i, j int) { candidates[i], candidates[j] = candidates[j], candidates[i] })
	if len(candidates) > n {
		candidates = candidates[:n]
	}
	return candidates
}

func (g *Gossiper) logf(format string, args ...any) {
	if g.log != nil {
		g.log.Debugf(format, args...)
	}
}
