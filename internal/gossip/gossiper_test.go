package gossip

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/nimbusdb/internal/schema"
	"github.com/dreamware/nimbusdb/internal/wire"
)

func hb(gen uint64, version uint32) wire.Heartbeat {
	return wire.Heartbeat{GenerationHi: gen >> 32, GenerationLo: gen & 0xffffffff, Version: version}
}

func newTestGossiper(self netip.Addr) *Gossiper {
	return &Gossiper{self: self, endpoints: make(map[netip.Addr]EndpointState)}
}

func TestHandleSynPeerBehindSendsUpdatedInfo(t *testing.T) {
	self := netip.MustParseAddr("127.0.0.1")
	peer := netip.MustParseAddr("127.0.0.2")
	g := newTestGossiper(self)
	g.endpoints[peer] = EndpointState{
		Heartbeat: hb(3, 3),
		App:       wire.ApplicationState{Status: wire.Normal, Version: 6, Schema: schema.NewEnvelope()},
	}

	syn := wire.Syn{Digests: []wire.Digest{{Addr: peer, Heartbeat: hb(3, 2)}}}
	ack := g.HandleSyn(syn)

	assert.Empty(t, ack.StaleDigests)
	require.Len(t, ack.UpdatedInfo, 1)
	assert.Equal(t, peer, ack.UpdatedInfo[0].Digest.Addr)
	assert.Equal(t, wire.Normal, ack.UpdatedInfo[0].State.Status)
}

func TestHandleSynPeerAheadSendsStale(t *testing.T) {
	self := netip.MustParseAddr("127.0.0.1")
	peer := netip.MustParseAddr("127.0.0.2")
	g := newTestGossiper(self)
	g.endpoints[peer] = EndpointState{
		Heartbeat: hb(4, 8),
		App:       wire.ApplicationState{Status: wire.Normal, Version: 6, Schema: schema.NewEnvelope()},
	}

	syn := wire.Syn{Digests: []wire.Digest{{Addr: peer, Heartbeat: hb(7, 3)}}}
	ack := g.HandleSyn(syn)

	require.Len(t, ack.StaleDigests, 1)
	assert.Equal(t, peer, ack.StaleDigests[0].Addr)
	assert.True(t, ack.StaleDigests[0].Heartbeat.Equal(hb(4, 8)))
	assert.Empty(t, ack.UpdatedInfo)
}

func TestHandleSynUnknownPeerIsMaximallyStale(t *testing.T) {
	self := netip.MustParseAddr("127.0.0.1")
	unknown := netip.MustParseAddr("127.0.0.7")
	g := newTestGossiper(self)

	syn := wire.Syn{Digests: []wire.Digest{{Addr: unknown, Heartbeat: hb(1, 1)}}}
	ack := g.HandleSyn(syn)

	require.Len(t, ack.StaleDigests, 1)
	assert.Equal(t, unknown, ack.StaleDigests[0].Addr)
	assert.True(t, ack.StaleDigests[0].Heartbeat.Equal(wire.Heartbeat{}))
}

func TestHandleSynEqualDigestNoOp(t *testing.T) {
	self := netip.MustParseAddr("127.0.0.1")
	peer := netip.MustParseAddr("127.0.0.2")
	g := newTestGossiper(self)
	g.endpoints[peer] = EndpointState{
		Heartbeat: hb(3, 3),
		App:       wire.ApplicationState{Status: wire.Normal, Version: 6, Schema: schema.NewEnvelope()},
	}

	syn := wire.Syn{Digests: []wire.Digest{{Addr: peer, Heartbeat: hb(3, 3)}}}
	ack := g.HandleSyn(syn)
	assert.Empty(t, ack.StaleDigests)
	assert.Empty(t, ack.UpdatedInfo)
}

func TestHandleAckAppliesUpdatedInfoAndAnswersStale(t *testing.T) {
	self := netip.MustParseAddr("127.0.0.1")
	peerA := netip.MustParseAddr("127.0.0.2") // the incoming Ack marks this one stale; we're ahead of its claim
	peerB := netip.MustParseAddr("127.0.0.3") // incoming Ack pushes newer info for this one
	g := newTestGossiper(self)
	g.endpoints[peerA] = EndpointState{
		Heartbeat: hb(7, 2),
		App:       wire.ApplicationState{Status: wire.Bootstrap, Version: 2, Schema: schema.NewEnvelope()},
	}
	g.endpoints[peerB] = EndpointState{
		Heartbeat: hb(7, 2),
		App:       wire.ApplicationState{Status: wire.Normal, Version: 6, Schema: schema.NewEnvelope()},
	}

	ack := wire.Ack{
		StaleDigests: []wire.Digest{{Addr: peerA, Heartbeat: hb(6, 1)}}, // we're ahead of the peer's claim: answer
		UpdatedInfo: []wire.AckInfo{{
			Digest: wire.Digest{Addr: peerB, Heartbeat: hb(8, 7)},
			State:  wire.ApplicationState{Status: wire.Removing, Version: 9, Schema: schema.NewEnvelope()},
		}},
	}

	ack2 := g.HandleAck(ack)
	require.Len(t, ack2.UpdatedInfo, 1)
	assert.Equal(t, peerA, ack2.UpdatedInfo[0].Digest.Addr)

	assert.True(t, g.endpoints[peerB].Heartbeat.Equal(hb(8, 7)))
	assert.Equal(t, wire.Removing, g.endpoints[peerB].App.Status)
}

func TestHandleAck2AppliesUpdatedInfo(t *testing.T) {
	self := netip.MustParseAddr("127.0.0.1")
	peer := netip.MustParseAddr("127.0.0.2")
	g := newTestGossiper(self)

	ack2 := wire.Ack2{UpdatedInfo: []wire.AckInfo{{
		Digest: wire.Digest{Addr: peer, Heartbeat: hb(1, 1)},
		State:  wire.ApplicationState{Status: wire.Bootstrap, Version: 1, Schema: schema.NewEnvelope()},
	}}}

	g.HandleAck2(ack2)
	assert.True(t, g.endpoints[peer].Heartbeat.Equal(hb(1, 1)))
	assert.Equal(t, wire.Bootstrap, g.endpoints[peer].App.Status)
}

func TestMostUpToDateSchemaPicksMaxTimestamp(t *testing.T) {
	self := netip.MustParseAddr("127.0.0.1")
	peer := netip.MustParseAddr("127.0.0.2")
	g := newTestGossiper(self)

	older := schema.NewEnvelope()
	older.Timestamp = 100
	newer := schema.NewEnvelope()
	newer.Timestamp = 200

	g.endpoints[self] = EndpointState{App: wire.ApplicationState{Schema: older}}
	g.endpoints[peer] = EndpointState{App: wire.ApplicationState{Schema: newer}}

	best := g.MostUpToDateSchema()
	require.NotNil(t, best)
	assert.Equal(t, int64(200), best.Timestamp)
}

func TestLiveEndpointsExcludesDead(t *testing.T) {
	self := netip.MustParseAddr("127.0.0.1")
	peer := netip.MustParseAddr("127.0.0.2")
	g := newTestGossiper(self)
	g.endpoints[self] = EndpointState{App: wire.ApplicationState{Status: wire.Normal}}
	g.endpoints[peer] = EndpointState{App: wire.ApplicationState{Status: wire.Normal}}

	g.MarkUnreachable(peer)

	live := g.LiveEndpoints()
	assert.Len(t, live, 1)
	assert.Equal(t, self, live[0])
}

func TestBeatIncrementsVersion(t *testing.T) {
	self := netip.MustParseAddr("127.0.0.1")
	g := newTestGossiper(self)
	g.endpoints[self] = EndpointState{Heartbeat: hb(1, 0)}
	g.Beat(self)
	g.Beat(self)
	assert.True(t, g.endpoints[self].Heartbeat.Equal(hb(1, 2)))
}
