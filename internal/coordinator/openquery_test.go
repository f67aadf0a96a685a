package coordinator

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/nimbusdb/internal/query"
	"github.com/dreamware/nimbusdb/internal/wire"
)

func TestOpenQueryTableClosesOnQuorum(t *testing.T) {
	tab := NewOpenQueryTable()
	oq := tab.Register(&query.Query{Kind: query.KindSelect, Select: &query.Select{}}, nil, LevelQuorum, 3)

	a := netip.MustParseAddr("10.0.0.1")
	b := netip.MustParseAddr("10.0.0.2")

	_, closed := tab.AddResponse(oq.ID, a, wire.InternodeResponse{OpenQueryID: oq.ID, Status: wire.StatusOK})
	assert.False(t, closed)

	got, closed := tab.AddResponse(oq.ID, b, wire.InternodeResponse{OpenQueryID: oq.ID, Status: wire.StatusOK})
	require.True(t, closed)
	assert.Equal(t, 2, got.okCount)

	_, stillThere := tab.Get(oq.ID)
	assert.False(t, stillThere)
}

func TestOpenQueryTableClosesOnUnreachable(t *testing.T) {
	tab := NewOpenQueryTable()
	oq := tab.Register(&query.Query{Kind: query.KindInsert}, nil, LevelQuorum, 3)

	a := netip.MustParseAddr("10.0.0.1")
	b := netip.MustParseAddr("10.0.0.2")

	_, closed := tab.AddResponse(oq.ID, a, wire.InternodeResponse{OpenQueryID: oq.ID, Status: wire.StatusErr})
	assert.False(t, closed)

	// QUORUM of 3 needs 2 oks; with 2 errors only 1 response remains so 3-2=1 < 2 required: unreachable.
	got, closed := tab.AddResponse(oq.ID, b, wire.InternodeResponse{OpenQueryID: oq.ID, Status: wire.StatusErr})
	require.True(t, closed)
	assert.Equal(t, 2, got.errCount)
}

func TestOpenQueryTableUnknownIDIsNoOp(t *testing.T) {
	tab := NewOpenQueryTable()
	oq, closed := tab.AddResponse(999, netip.MustParseAddr("10.0.0.1"), wire.InternodeResponse{})
	assert.Nil(t, oq)
	assert.False(t, closed)
}

func TestReserveIDDoesNotCollideWithRegister(t *testing.T) {
	tab := NewOpenQueryTable()
	reserved := tab.ReserveID()
	oq := tab.Register(&query.Query{Kind: query.KindInsert}, nil, LevelOne, 1)
	assert.NotEqual(t, reserved, oq.ID)
}
