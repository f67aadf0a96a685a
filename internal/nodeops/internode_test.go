package nodeops

import (
	"context"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/nimbusdb/internal/query"
	"github.com/dreamware/nimbusdb/internal/schema"
	"github.com/dreamware/nimbusdb/internal/storage"
	"github.com/dreamware/nimbusdb/internal/wire"
)

func newTestNodeWithTable(t *testing.T) *Node {
	t.Helper()
	n := newTestNode(t)
	tbl, err := schema.NewTable("flights", []schema.Column{
		{Name: "route", Type: schema.Ascii, IsPartitionKey: true},
		{Name: "gate", Type: schema.Ascii, AllowsNull: true},
	})
	require.NoError(t, err)
	err = n.MutateSchema(func(env *schema.Envelope) error {
		ks, err := schema.NewKeyspace("sky", "SimpleStrategy", 1)
		if err != nil {
			return err
		}
		ks.Tables["flights"] = tbl
		env.Keyspaces["sky"] = ks
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, n.engine.CreateKeyspace("sky"))
	tblSnap, ok := n.Snapshot().Table("sky", "flights")
	require.True(t, ok)
	require.NoError(t, n.engine.CreateTable("sky", tblSnap))
	return n
}

func TestHandleInboundQueryAppliesInsertAndResponds(t *testing.T) {
	n := newTestNodeWithTable(t)
	iq := wire.InternodeQuery{
		QueryString:  "INSERT INTO sky.flights (route, gate) VALUES ('AA1', 'G1')",
		OpenQueryID:  1,
		KeyspaceName: "sky",
		Timestamp:    100,
	}
	msg := wire.InternodeMessage{From: n.self, Kind: wire.KindQuery, Body: iq.Encode()}
	n.handleInboundQuery(context.Background(), msg)

	tbl, _ := n.Snapshot().Table("sky", "flights")
	rows, err := n.engine.Select(storage.SelectInput{
		Keyspace: "sky",
		Table:    tbl,
		Where:    query.Predicate{Equals: map[string]string{"route": "AA1"}},
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "G1", rows[0].Values["gate"])
}

func TestHandleInboundResponseRoutesToPendingAckBeforeCoordinator(t *testing.T) {
	n := newTestNode(t)
	ch := n.registerAck(42)

	resp := wire.InternodeResponse{OpenQueryID: 42, Status: wire.StatusOK}
	msg := wire.InternodeMessage{From: n.self, Kind: wire.KindResponse, Body: resp.Encode()}
	n.handleInboundResponse(context.Background(), msg)

	select {
	case got := <-ch:
		assert.Equal(t, wire.StatusOK, got.Status)
	default:
		t.Fatal("expected the pending ack channel to receive the response")
	}
}

func TestDispatchInternodeGossipSynReturnsAck(t *testing.T) {
	n := newTestNode(t)
	peer := netip.MustParseAddr("10.0.0.2")
	syn := wire.Syn{Digests: []wire.Digest{{Addr: peer}}}
	gm := wire.GossipMessage{From: peer, Kind: wire.GossipSyn, Payload: syn.Encode()}
	msg := wire.InternodeMessage{From: peer, Kind: wire.KindGossip, Body: gm.Encode()}

	reply, ok := n.dispatchInternode(context.Background(), msg)
	require.True(t, ok)
	out, err := wire.DecodeInternodeMessage(wire.InternodeMessage{From: n.self, Kind: wire.KindGossip, Body: reply}.Encode())
	require.NoError(t, err)
	gmOut, err := wire.DecodeGossipMessage(out.Body)
	require.NoError(t, err)
	assert.Equal(t, wire.GossipAck, gmOut.Kind)
}

func TestDispatchInternodeQueryAndResponseHaveNoReply(t *testing.T) {
	n := newTestNodeWithTable(t)
	iq := wire.InternodeQuery{QueryString: "SELECT * FROM sky.flights WHERE route = 'AA1'", OpenQueryID: 9, KeyspaceName: "sky"}
	msg := wire.InternodeMessage{From: n.self, Kind: wire.KindQuery, Body: iq.Encode()}
	_, hasReply := n.dispatchInternode(context.Background(), msg)
	assert.False(t, hasReply)
}
