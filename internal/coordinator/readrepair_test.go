package coordinator

import (
	"context"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/nimbusdb/internal/partition"
	"github.com/dreamware/nimbusdb/internal/schema"
	"github.com/dreamware/nimbusdb/internal/storage"
	"github.com/dreamware/nimbusdb/internal/wire"
)

func flightsTable(t *testing.T) *schema.Table {
	t.Helper()
	tbl, err := schema.NewTable("flights", []schema.Column{
		{Name: "route", Type: schema.Ascii, IsPartitionKey: true},
		{Name: "departs_at", Type: schema.Timestamp, IsClusteringColumn: true, ClusteringOrder: schema.Asc},
		{Name: "gate", Type: schema.Ascii, AllowsNull: true},
	})
	require.NoError(t, err)
	return tbl
}

func TestRepairRowsPicksNewestAndRepairsLocalReplica(t *testing.T) {
	tbl := flightsTable(t)
	self := netip.MustParseAddr("10.0.0.1")
	other := netip.MustParseAddr("10.0.0.2")

	ring := partition.NewRing()
	ring.AddNode(self)
	ring.AddNode(other)

	engine := storage.NewEngine(t.TempDir(), self, nil)
	require.NoError(t, engine.CreateKeyspace("sky"))
	require.NoError(t, engine.CreateTable("sky", tbl))

	owner, err := ring.Owner(tbl.PartitionKeyBytes([]string{"BOS-JFK", "1000", "A1"}))
	require.NoError(t, err)

	// self holds a stale row and other the winning newer row, unless
	// self owns the partition, in which case the two roles swap.
	staleReplica := self
	winningReplica := other
	if owner == self {
		staleReplica, winningReplica = other, self
	}

	responses := []accumulated{
		{Replica: staleReplica, Response: wire.InternodeResponse{
			Status: wire.StatusOK,
			Rows:   []wire.Row{{Values: []string{"BOS-JFK", "1000", "A1"}, Timestamp: 100}},
		}},
		{Replica: winningReplica, Response: wire.InternodeResponse{
			Status: wire.StatusOK,
			Rows:   []wire.Row{{Values: []string{"BOS-JFK", "1000", "A2"}, Timestamp: 200}},
		}},
	}

	reserve := func() uint32 { return 1 }
	winners, err := repairRows(context.Background(), "sky", tbl, ring, self, responses, engine, nil, reserve)
	require.NoError(t, err)
	require.Len(t, winners, 1)
	assert.Equal(t, "A2", winners[0].Values[2])
	assert.Equal(t, int64(200), winners[0].Timestamp)

	if staleReplica == self {
		rows, err := engine.Select(storage.SelectInput{
			Keyspace: "sky", Table: tbl,
			IsReplication: owner != self,
		})
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "A2", rows[0].Values["gate"])
	}
}

func TestRepairRowsNoDivergenceReturnsSingleWinnerNoRepair(t *testing.T) {
	tbl := flightsTable(t)
	self := netip.MustParseAddr("10.0.0.1")
	other := netip.MustParseAddr("10.0.0.2")
	ring := partition.NewRing()
	ring.AddNode(self)
	ring.AddNode(other)
	engine := storage.NewEngine(t.TempDir(), self, nil)
	require.NoError(t, engine.CreateKeyspace("sky"))
	require.NoError(t, engine.CreateTable("sky", tbl))

	responses := []accumulated{
		{Replica: self, Response: wire.InternodeResponse{
			Status: wire.StatusOK,
			Rows:   []wire.Row{{Values: []string{"BOS-JFK", "1000", "A1"}, Timestamp: 100}},
		}},
		{Replica: other, Response: wire.InternodeResponse{
			Status: wire.StatusOK,
			Rows:   []wire.Row{{Values: []string{"BOS-JFK", "1000", "A1"}, Timestamp: 100}},
		}},
	}

	winners, err := repairRows(context.Background(), "sky", tbl, ring, self, responses, engine, nil, func() uint32 { return 1 })
	require.NoError(t, err)
	require.Len(t, winners, 1)
	assert.Equal(t, "A1", winners[0].Values[2])
}

// fakeTransport records every InternodeQuery it's asked to send instead
// of putting one on the wire.
type fakeTransport struct {
	sent []wire.InternodeQuery
}

func (f *fakeTransport) SendQuery(_ context.Context, _ netip.Addr, q wire.InternodeQuery) error {
	f.sent = append(f.sent, q)
	return nil
}

func TestRepairRowsQuotesMultiWordValueSentToRemoteReplica(t *testing.T) {
	tbl := flightsTable(t)
	self := netip.MustParseAddr("10.0.0.1")
	other := netip.MustParseAddr("10.0.0.2")
	ring := partition.NewRing()
	ring.AddNode(self)
	ring.AddNode(other)
	engine := storage.NewEngine(t.TempDir(), self, nil)
	require.NoError(t, engine.CreateKeyspace("sky"))
	require.NoError(t, engine.CreateTable("sky", tbl))

	// other holds a stale row and must receive the repair over transport
	// (never self, so the local-engine branch isn't the one exercised);
	// self holds the winning row with a multi-word, comma-containing
	// value that must be quoted before it's shipped to other.
	responses := []accumulated{
		{Replica: other, Response: wire.InternodeResponse{
			Status: wire.StatusOK,
			Rows:   []wire.Row{{Values: []string{"BOS-JFK", "1000", "A1"}, Timestamp: 100}},
		}},
		{Replica: self, Response: wire.InternodeResponse{
			Status: wire.StatusOK,
			Rows:   []wire.Row{{Values: []string{"BOS-JFK", "1000", "Gate A, near security"}, Timestamp: 200}},
		}},
	}

	transport := &fakeTransport{}
	reserve := func() uint32 { return 1 }
	winners, err := repairRows(context.Background(), "sky", tbl, ring, self, responses, engine, transport, reserve)
	require.NoError(t, err)
	require.Len(t, winners, 1)
	assert.Equal(t, "Gate A, near security", winners[0].Values[2])

	require.Len(t, transport.sent, 1)
	assert.Contains(t, transport.sent[0].QueryString, "'Gate A, near security'")
	assert.Contains(t, transport.sent[0].QueryString, "'BOS-JFK'")
	assert.Contains(t, transport.sent[0].QueryString, "'1000'")
}
